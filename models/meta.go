// models/meta.go
package models

import "time"

// RunManifest records what a pipeline run did and where it left its artifacts.
type RunManifest struct {
	RunID      string    `json:"run_id"`
	StartYear  int       `json:"start_year"`
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	FlightRows        int      `json:"flight_rows,omitempty"`
	FlightRowsDropped int      `json:"flight_rows_dropped,omitempty"`
	Airports          []string `json:"airports,omitempty"`
	WeatherRows       int      `json:"weather_rows,omitempty"`
	WeatherFailures   []string `json:"weather_failures,omitempty"`
	JoinedRows        int      `json:"joined_rows,omitempty"`
	OriginMatches     int      `json:"origin_weather_matches,omitempty"`
	DestMatches       int      `json:"dest_weather_matches,omitempty"`
	DuplicateWeather  int      `json:"duplicate_weather_keys,omitempty"`

	Artifacts map[string]string `json:"artifacts,omitempty"`
}

// AddArtifact records the path of an artifact under a short name.
func (m *RunManifest) AddArtifact(name, path string) {
	if m.Artifacts == nil {
		m.Artifacts = make(map[string]string)
	}
	m.Artifacts[name] = path
}
