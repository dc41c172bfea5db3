package weather

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/flightwx/httpclient"
	"github.com/gewnthar/flightwx/models"
)

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func str(s string) *string { return &s }

func testHTTP() *httpclient.BaseClient {
	return httpclient.New(nil, "weather-test", "flightwx-test", httpclient.WithSleepFunc(func(time.Duration) {}))
}

const hourly2018 = `2017-12-31,23,1.0,,80,0.0,,,10.0,,,,2
2018-01-01,0,-2.5,-5.0,70,0.0,,250,12.0,,1020.1,,1
2018-01-01,1,-2.8,-5.0,71,,,250,11.0,,1020.0,,
2018-01-05,0,3.0,,90,2.0,,,5.0,,,,8
`

func TestClientHourly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hourly/2018/72503.csv.gz":
			w.Write(gz(t, hourly2018))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testHTTP(), time.Second)
	start, end := Range(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), 3)

	obs, err := c.Hourly(context.Background(), "72503", start, end)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), obs[0].Time)
	assert.Equal(t, -2.5, *obs[0].Temperature)
	assert.Equal(t, 70.0, *obs[0].Humidity)
	assert.Equal(t, 12.0, *obs[0].WindSpeed)
	assert.Equal(t, 1.0, *obs[0].Code)
	assert.Nil(t, obs[1].Precipitation)
	assert.Nil(t, obs[1].Code)
}

func TestClientHourly_SpansYears(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/hourly/2017/72503.csv.gz":
			w.Write(gz(t, "2017-12-31,22,0.5,,80,0.0,,,10.0,,,,2\n"))
		case "/hourly/2018/72503.csv.gz":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testHTTP(), time.Second)
	start, end := Range(time.Date(2017, 12, 31, 0, 0, 0, 0, time.UTC), time.Date(2017, 12, 31, 0, 0, 0, 0, time.UTC), 3)
	obs, err := c.Hourly(context.Background(), "72503", start, end)
	require.NoError(t, err)
	assert.Len(t, obs, 1)
}

func TestClientHourly_NoRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testHTTP(), time.Second)
	_, err := c.Hourly(context.Background(), "00000",
		time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2018, 1, 4, 23, 59, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNoObservations)
}

func TestLoadRegistry(t *testing.T) {
	body := `[{"id":"72503","identifiers":{"icao":"KLGA"}},{"id":"74486","identifiers":{"icao":"KJFK"}},{"id":"99999","identifiers":{}}]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stations/lite.json.gz", r.URL.Path)
		w.Write(gz(t, body))
	}))
	defer srv.Close()

	reg, err := LoadRegistry(context.Background(), testHTTP(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	id, err := reg.Lookup("kjfk")
	require.NoError(t, err)
	assert.Equal(t, "74486", id)

	_, err = reg.Lookup("KXXX")
	assert.ErrorIs(t, err, ErrStationNotFound)
}

func TestRange(t *testing.T) {
	start, end := Range(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2018, 12, 31, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2019, 1, 3, 23, 59, 0, 0, time.UTC), end)
}

type fakeSource struct {
	calls atomic.Int32
	fn    func(ctx context.Context, station string) ([]models.WeatherObservation, error)
}

func (f *fakeSource) Hourly(ctx context.Context, station string, start, end time.Time) ([]models.WeatherObservation, error) {
	f.calls.Add(1)
	return f.fn(ctx, station)
}

func obsAt(hour int) models.WeatherObservation {
	return models.WeatherObservation{Time: time.Date(2018, 1, 1, hour, 0, 0, 0, time.UTC), Temperature: models.Float64Ptr(float64(hour))}
}

func TestFetchAll_FailureIsolation(t *testing.T) {
	reg := NewRegistry(map[string]string{"KJFK": "74486", "KORD": "72530", "KLAX": "72295"})
	src := &fakeSource{fn: func(ctx context.Context, station string) ([]models.WeatherObservation, error) {
		switch station {
		case "72530":
			<-ctx.Done()
			return nil, errors.New("timed out")
		case "72295":
			return nil, ErrNoObservations
		}
		return []models.WeatherObservation{obsAt(2), obsAt(1)}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slowCtx, slowCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer slowCancel()
	src.fn = wrapTimeout(slowCtx, src.fn)

	f := NewFetcher(reg, src, 3)
	targets := []Target{
		{Code: "JFK", ICAO: str("KJFK")},
		{Code: "ORD", ICAO: str("KORD")},
		{Code: "LAX", ICAO: str("KLAX")},
		{Code: "XYZ", Country: str("CA")},
	}
	res, err := f.FetchAll(ctx, targets, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, []string{"LAX", "ORD", "XYZ"}, res.FailedAirports())
	require.Len(t, res.Observations, 2)
	assert.Equal(t, "JFK", res.Observations[0].Airport)
	assert.Equal(t, "74486", res.Observations[0].Station)
	assert.True(t, res.Observations[0].Time.Before(res.Observations[1].Time))
	assert.Equal(t, map[string]string{"JFK": "74486"}, res.Stations)
	assert.ErrorIs(t, res.Failures[2].Err, ErrStationNotFound)
}

func TestFetchAll_FailingStationsDoNotBlockOthers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/AAA."), strings.Contains(r.URL.Path, "/BBB."):
			w.WriteHeader(http.StatusInternalServerError)
		case r.URL.Path == "/hourly/2018/CCC.csv.gz":
			w.Write(gz(t, hourly2018))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testHTTP(), time.Second)
	f := NewFetcher(NewRegistry(nil), c, 1)
	targets := []Target{
		{Code: "A", StationID: str("AAA")},
		{Code: "B", StationID: str("BBB")},
		{Code: "C", StationID: str("CCC")},
	}
	day := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	start, end := Range(day, day, 3)

	res, err := f.FetchAll(context.Background(), targets, start, end)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, res.FailedAirports())
	require.NotEmpty(t, res.Observations)
	for _, o := range res.Observations {
		assert.Equal(t, "C", o.Airport)
	}
	assert.Equal(t, map[string]string{"C": "CCC"}, res.Stations)
}

// wrapTimeout makes the slow station observe a short deadline instead of the caller's context.
func wrapTimeout(slow context.Context, fn func(context.Context, string) ([]models.WeatherObservation, error)) func(context.Context, string) ([]models.WeatherObservation, error) {
	return func(ctx context.Context, station string) ([]models.WeatherObservation, error) {
		if station == "72530" {
			return fn(slow, station)
		}
		return fn(ctx, station)
	}
}

func TestFetchAll_StationResolution(t *testing.T) {
	reg := NewRegistry(map[string]string{"KDEN": "72565"})
	var seen []string
	src := &fakeSource{fn: func(ctx context.Context, station string) ([]models.WeatherObservation, error) {
		seen = append(seen, station)
		return []models.WeatherObservation{obsAt(0)}, nil
	}}

	f := NewFetcher(reg, src, 1)
	targets := []Target{
		{Code: "DEN", Country: str("US")},
		{Code: "SEA", StationID: str("72793")},
	}
	res, err := f.FetchAll(context.Background(), targets, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	assert.Equal(t, []string{"72565", "72793"}, seen)
	assert.Equal(t, "72565", res.Stations["DEN"])
}

func TestFetchAll_Cancelled(t *testing.T) {
	src := &fakeSource{fn: func(ctx context.Context, station string) ([]models.WeatherObservation, error) {
		return nil, nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(NewRegistry(nil), src, 1).FetchAll(ctx, []Target{{Code: "JFK", StationID: str("1")}}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, strings.Contains(err.Error(), "canceled"))
}
