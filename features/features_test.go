package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/flightwx/models"
)

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func TestDelayCategory_Boundaries(t *testing.T) {
	tests := []struct {
		delay float64
		dir   Direction
		want  string
	}{
		{-1, Departure, EarlyDeparture},
		{-0.5, Arrival, EarlyArrival},
		{0, Departure, OnTime},
		{15, Departure, OnTime},
		{15.5, Departure, MinorDelay},
		{16, Departure, MinorDelay},
		{30, Arrival, MinorDelay},
		{31, Arrival, ModerateDelay},
		{60, Departure, ModerateDelay},
		{61, Departure, SevereDelay},
		{120, Departure, SevereDelay},
		{121, Arrival, ExtremeDelay},
	}
	for _, tt := range tests {
		got := DelayCategory(f64(tt.delay), tt.dir)
		require.NotNil(t, got)
		assert.Equal(t, tt.want, *got, "delay %v", tt.delay)
	}
	assert.Nil(t, DelayCategory(nil, Departure))
	assert.Nil(t, DelayCategory(nil, Arrival))
}

func TestClassifyWeather(t *testing.T) {
	tests := []struct {
		name string
		r    Reading
		want string
	}{
		{"clear", Reading{Precipitation: f64(0), Temperature: f64(10), Humidity: f64(40), WindSpeed: f64(10)}, "Clear"},
		{"clear boundary", Reading{Precipitation: f64(0), Temperature: f64(35), Humidity: f64(49), WindSpeed: f64(19)}, "Clear"},
		{"partly cloudy", Reading{Precipitation: f64(0), Temperature: f64(10), Humidity: f64(75), WindSpeed: f64(29)}, "Partly Cloudy"},
		{"cloudy", Reading{Precipitation: f64(0), Temperature: f64(10), Humidity: f64(90)}, "Cloudy"},
		{"light rain", Reading{Precipitation: f64(1), Temperature: f64(10), Humidity: f64(80), WindSpeed: f64(5)}, "Light Rain"},
		{"heavy rain", Reading{Precipitation: f64(12), Temperature: f64(10), Humidity: f64(80), WindSpeed: f64(5)}, "Heavy Rain"},
		{"snow", Reading{Precipitation: f64(1), Temperature: f64(-3), Humidity: f64(80)}, "Snow"},
		{"windy rain", Reading{Precipitation: f64(3), Temperature: f64(10), Humidity: f64(80), WindSpeed: f64(30)}, "Windy Rain"},
		{"stormy", Reading{Precipitation: f64(3), Temperature: f64(10), Humidity: f64(80), WindSpeed: f64(38)}, "Stormy"},
		{"severe storm", Reading{Precipitation: f64(6), Temperature: f64(10), Humidity: f64(80), WindSpeed: f64(60)}, "Severe Storm"},
		{"hot and dry", Reading{Precipitation: f64(0), Temperature: f64(40), Humidity: f64(20), WindSpeed: f64(10)}, "Hot and Dry"},
		{"extreme cold", Reading{Temperature: f64(-20), WindSpeed: f64(5)}, "Extreme Cold"},
		{"missing precipitation", Reading{Temperature: f64(10), Humidity: f64(40), WindSpeed: f64(10)}, Unknown},
		{"empty", Reading{}, Unknown},
		{"code overrides rules", Reading{Precipitation: f64(0), Temperature: f64(10), Humidity: f64(40), WindSpeed: f64(10), Code: f64(26)}, "Severe Storm"},
		{"code without rule match", Reading{Code: f64(8)}, "Light Rain"},
		{"code outside table", Reading{Precipitation: f64(0), Temperature: f64(10), Humidity: f64(40), WindSpeed: f64(10), Code: f64(99)}, "Clear"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyWeather(tt.r))
			assert.Equal(t, tt.want, ClassifyWeather(tt.r), "classification is deterministic")
		})
	}
}

func TestCodeCondition_Table(t *testing.T) {
	want := map[string][]float64{
		"Clear":        {1, 2},
		"Cloudy":       {3, 4, 5, 6},
		"Light Rain":   {7, 8, 17},
		"Heavy Rain":   {9, 10, 11, 18},
		"Snow":         {12, 14, 15, 19, 21, 24},
		"Heavy Snow":   {13, 16, 20, 22},
		"Stormy":       {23, 25, 27},
		"Severe Storm": {26},
	}
	for label, codes := range want {
		for _, c := range codes {
			got, ok := CodeCondition(c)
			assert.True(t, ok, "code %v", c)
			assert.Equal(t, label, got, "code %v", c)
		}
	}
	_, ok := CodeCondition(0)
	assert.False(t, ok)
}

func TestLocalDeparture(t *testing.T) {
	day := time.Date(2018, 3, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2018, 3, 4, 15, 0, 0, 0, time.UTC), LocalDeparture(day, 1512, time.UTC))
	assert.Equal(t, time.Date(2018, 3, 4, 0, 0, 0, 0, time.UTC), LocalDeparture(day, 5, time.UTC))
	assert.Equal(t, time.Date(2018, 3, 5, 0, 0, 0, 0, time.UTC), LocalDeparture(day, 2400, time.UTC))
}

func TestZonesTimes(t *testing.T) {
	z := NewZones()
	f := models.EnrichedFlight{
		FlightRecord: models.FlightRecord{
			FlightDate:        "2020-01-01",
			DepTime:           f64(905),
			ActualElapsedTime: f64(330),
		},
		TimeZoneOrigin: str("America/New_York"),
		TimeZoneDest:   str("America/Los_Angeles"),
	}
	times := z.Times(f)

	require.NotNil(t, times.DepLocal)
	assert.Equal(t, "2020-01-01 09:00:00", times.DepLocal.Format(models.TimestampLayout))
	require.NotNil(t, times.DepUTC)
	assert.Equal(t, time.Date(2020, 1, 1, 14, 0, 0, 0, time.UTC), *times.DepUTC)
	// 330 minutes rounds to 6 hours
	require.NotNil(t, times.ArrUTC)
	assert.Equal(t, time.Date(2020, 1, 1, 20, 0, 0, 0, time.UTC), *times.ArrUTC)
	require.NotNil(t, times.ArrLocal)
	assert.Equal(t, "2020-01-01 12:00:00", times.ArrLocal.Format(models.TimestampLayout))
}

func TestZonesTimes_UnknownZone(t *testing.T) {
	z := NewZones()
	f := models.EnrichedFlight{
		FlightRecord:   models.FlightRecord{FlightDate: "2020-01-01", CRSDepTime: f64(700), ActualElapsedTime: f64(60)},
		TimeZoneOrigin: str("Unknown"),
	}
	times := z.Times(f)
	require.NotNil(t, times.DepLocal, "scheduled time is used when the actual one is missing")
	assert.Equal(t, 7, times.DepLocal.Hour())
	assert.Nil(t, times.DepUTC)
	assert.Nil(t, times.ArrUTC)
	assert.Nil(t, times.ArrLocal)

	assert.Nil(t, z.Load(str("Not/AZone")))
	assert.Nil(t, NormalizeTimeZone(str("Unknown")))
}

func jfkFlight() models.EnrichedFlight {
	return models.EnrichedFlight{
		FlightRecord: models.FlightRecord{
			FlightDate:        "2020-01-01",
			Carrier:           "AA",
			FlightNumber:      "100",
			Origin:            "JFK",
			Dest:              "LAX",
			DepTime:           f64(930),
			DepDelay:          f64(16),
			ArrDelay:          f64(-3),
			ActualElapsedTime: f64(360),
		},
		TimeZoneOrigin: str("America/New_York"),
		TimeZoneDest:   str("America/Los_Angeles"),
	}
}

func TestJoin_OriginClear(t *testing.T) {
	idx := NewWeatherIndex([]models.WeatherObservation{{
		Time: time.Date(2020, 1, 1, 14, 0, 0, 0, time.UTC), Airport: "JFK",
		Precipitation: f64(0), Temperature: f64(10), Humidity: f64(40), WindSpeed: f64(10),
	}})
	j := NewJoiner(idx, nil)

	r := j.Join(jfkFlight())
	require.NotNil(t, r.OriginCondition)
	assert.Equal(t, "Clear", *r.OriginCondition)
	assert.Equal(t, 10.0, *r.OriginTemperature)
	assert.Equal(t, MinorDelay, *r.DepDelayCategory)
	assert.Equal(t, EarlyArrival, *r.ArrDelayCategory)
	assert.Nil(t, r.DestCondition)
	assert.Equal(t, JoinStats{Rows: 1, OriginMatches: 1}, j.Stats)
}

func TestJoin_CodeOverridesRules(t *testing.T) {
	idx := NewWeatherIndex([]models.WeatherObservation{{
		Time: time.Date(2020, 1, 1, 14, 0, 0, 0, time.UTC), Airport: "JFK",
		Precipitation: f64(0), Temperature: f64(10), Humidity: f64(40), WindSpeed: f64(10), Code: f64(26),
	}})
	r := NewJoiner(idx, nil).Join(jfkFlight())
	assert.Equal(t, "Severe Storm", *r.OriginCondition)
}

func TestJoin_DestinationUsesArrivalHour(t *testing.T) {
	idx := NewWeatherIndex([]models.WeatherObservation{
		{Time: time.Date(2020, 1, 1, 20, 0, 0, 0, time.UTC), Airport: "LAX", Temperature: f64(18)},
		{Time: time.Date(2020, 1, 1, 20, 0, 0, 0, time.UTC), Airport: "JFK", Temperature: f64(-1)},
	})
	r := NewJoiner(idx, nil).Join(jfkFlight())
	assert.Nil(t, r.OriginTemperature)
	require.NotNil(t, r.DestTemperature)
	assert.Equal(t, 18.0, *r.DestTemperature)
	assert.Equal(t, Unknown, *r.DestCondition)
}

func TestJoin_EmptyWeather(t *testing.T) {
	j := NewJoiner(NewWeatherIndex(nil), nil)
	flights := []models.EnrichedFlight{jfkFlight(), jfkFlight(), {FlightRecord: models.FlightRecord{FlightDate: "bad"}}}

	var rows []models.JoinedRecord
	for _, f := range flights {
		rows = append(rows, j.Join(f))
	}
	require.Len(t, rows, len(flights))
	for _, r := range rows {
		assert.Nil(t, r.OriginTemperature)
		assert.Nil(t, r.OriginCondition)
		assert.Nil(t, r.DestTemperature)
		assert.Nil(t, r.DestCondition)
	}
	assert.Equal(t, 0, j.Stats.OriginMatches+j.Stats.DestMatches)
}

func TestWeatherIndex_FirstWins(t *testing.T) {
	at := time.Date(2020, 1, 1, 14, 0, 0, 0, time.UTC)
	idx := NewWeatherIndex([]models.WeatherObservation{
		{Time: at, Airport: "JFK", Temperature: f64(1)},
		{Time: at, Airport: "JFK", Temperature: f64(2)},
		{Time: at, Airport: "LGA", Temperature: f64(3)},
	})
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 1, idx.Duplicates)

	p, ok := idx.Lookup("JFK", &at)
	require.True(t, ok)
	assert.Equal(t, 1.0, *p.Temperature)

	later := at.Add(time.Minute)
	_, ok = idx.Lookup("JFK", &later)
	assert.False(t, ok)
	_, ok = idx.Lookup("JFK", nil)
	assert.False(t, ok)
}
