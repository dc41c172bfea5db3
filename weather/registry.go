package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/gewnthar/flightwx/httpclient"
)

var (
	// ErrStationNotFound means no weather station is registered for the airport.
	ErrStationNotFound = errors.New("weather station not found")
	// ErrNoObservations means the station returned no rows in the requested range.
	ErrNoObservations = errors.New("no weather observations")
)

type stationEntry struct {
	ID          string `json:"id"`
	Identifiers struct {
		ICAO string `json:"icao"`
	} `json:"identifiers"`
}

// Registry maps ICAO codes to station ids. It is downloaded once per run.
type Registry struct {
	byICAO map[string]string
}

// NewRegistry builds a registry from an ICAO -> station id map.
func NewRegistry(byICAO map[string]string) *Registry {
	r := &Registry{byICAO: make(map[string]string, len(byICAO))}
	for icao, id := range byICAO {
		r.byICAO[strings.ToUpper(icao)] = id
	}
	return r
}

// LoadRegistry downloads {baseURL}/stations/lite.json.gz.
func LoadRegistry(ctx context.Context, client *httpclient.BaseClient, baseURL string) (*Registry, error) {
	url := baseURL + "/stations/lite.json.gz"
	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch station registry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch station registry %s: status code %d", url, resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to open station registry stream: %w", err)
	}
	defer gz.Close()

	var entries []stationEntry
	if err := json.NewDecoder(gz).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode station registry: %w", err)
	}

	byICAO := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Identifiers.ICAO == "" {
			continue
		}
		// first station wins when several share an ICAO code
		if _, ok := byICAO[strings.ToUpper(e.Identifiers.ICAO)]; !ok {
			byICAO[strings.ToUpper(e.Identifiers.ICAO)] = e.ID
		}
	}
	slog.Info("weather: station registry loaded", "stations", len(entries), "with_icao", len(byICAO))
	return NewRegistry(byICAO), nil
}

// Lookup returns the station id for icao.
func (r *Registry) Lookup(icao string) (string, error) {
	if id, ok := r.byICAO[strings.ToUpper(strings.TrimSpace(icao))]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: icao %q", ErrStationNotFound, icao)
}

func (r *Registry) Len() int { return len(r.byICAO) }
