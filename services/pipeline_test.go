package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/flightwx/config"
	"github.com/gewnthar/flightwx/export"
	"github.com/gewnthar/flightwx/models"
)

const referenceCSV = `code,icao,name,latitude,longitude,time_zone,city,state,country,type
JFK,KJFK,John F Kennedy International Airport,40.6413,-73.7781,America/New_York,,New York,US,large_airport
LAX,KLAX,Los Angeles International Airport,33.9416,-118.4085,America/Los_Angeles,Los Angeles,California,US,large_airport
LHR,EGLL,London Heathrow Airport,51.47,-0.4543,Europe/London,London,England,GB,large_airport
`

const carrierPage = `<html><body><table class="wikitable sortable">
<tr><th>Airline</th><th>Image</th><th>IATA</th><th>ICAO</th><th>Callsign</th></tr>
<tr><td>American</td><td>img</td><td>AA</td><td>AAL</td><td>American Airlines</td></tr>
</table></body></html>`

const jfkHourly = "2019-01-01,15,10.0,,40,0.0,,,10.0,,,,\n2019-01-01,16,9.0,,45,0.0,,,12.0,,,,\n"
const laxHourly = "2019-01-01,21,18.0,,,,,,,,,,\n"

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type upstream struct {
	srv          *httptest.Server
	geocodeCalls atomic.Int32
	hourlyCalls  atomic.Int32
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{}
	stations := `[{"id":"74486","identifiers":{"icao":"KJFK"}},{"id":"72295","identifiers":{"icao":"KLAX"}}]`
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/airports.csv":
			w.Write([]byte(referenceCSV))
		case "/carriers":
			w.Write([]byte(carrierPage))
		case "/reverse":
			u.geocodeCalls.Add(1)
			w.Write([]byte(`{"address":{"city":"New York","state":"New York","country":"United States"}}`))
		case "/stations/lite.json.gz":
			w.Write(gzipped(t, stations))
		case "/hourly/2019/74486.csv.gz":
			u.hourlyCalls.Add(1)
			w.Write(gzipped(t, jfkHourly))
		case "/hourly/2019/72295.csv.gz":
			u.hourlyCalls.Add(1)
			w.Write(gzipped(t, laxHourly))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func testConfig(t *testing.T, baseURL string) config.Config {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Run.StartYear = 2019
	cfg.Run.OutputDir = filepath.Join(root, "out")
	cfg.Sources.WhitelistPath = filepath.Join(root, "airport_whitelist.csv")
	cfg.Sources.AirportsCSVURL = baseURL + "/airports.csv"
	cfg.Sources.CarrierPageURL = baseURL + "/carriers"
	cfg.Flights.SourceDir = filepath.Join(root, "flights")
	cfg.Flights.ChunkSize = 2
	cfg.Cache.Dir = filepath.Join(root, "cache")
	cfg.Geocoder.BaseURL = baseURL
	cfg.Geocoder.RatePerSecond = 1000
	cfg.Geocoder.Timeout = time.Second
	cfg.Weather.BaseURL = baseURL
	cfg.Weather.Timeout = 5 * time.Second
	cfg.Output.Format = "csv"

	writeFile(t, cfg.Sources.WhitelistPath, "ORIGIN,ORIGIN_CITY_NAME\nJFK,New York\nLAX,Los Angeles\nLHR,London\n")
	writeFile(t, filepath.Join(cfg.Flights.SourceDir, "2019.csv"), flightHeader+
		"2019-01-01,AA,23,JFK,LAX,1000.0,1012.0,12.0,1330.0,1312.0,-18.0,0.0,0.0,360.0\n"+
		"2019-01-01,AA,24,JFK,ORD,1000.0,1000.0,0.0,1200.0,1200.0,0.0,0.0,0.0,120.0\n"+
		"2019-01-02,DL,7,LAX,JFK,800.0,845.0,45.0,1630.0,1720.0,50.0,0.0,0.0,315.0\n")
	require.NoError(t, os.MkdirAll(cfg.Run.OutputDir, 0755))
	require.NoError(t, os.MkdirAll(cfg.Cache.Dir, 0755))
	return cfg
}

func readJoined(t *testing.T, path string) []map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	var out []map[string]string
	for _, rec := range records[1:] {
		row := make(map[string]string, len(rec))
		for i, col := range records[0] {
			row[col] = rec[i]
		}
		out = append(out, row)
	}
	return out
}

func TestPipeline_RunAll(t *testing.T) {
	up := newUpstream(t)
	cfg := testConfig(t, up.srv.URL)

	p, err := NewPipeline(context.Background(), cfg, "run-1")
	require.NoError(t, err)
	defer p.Close()

	m, err := p.Run(context.Background(), StageAll)
	require.NoError(t, err)

	assert.Equal(t, 2, m.FlightRows)
	assert.Equal(t, 1, m.FlightRowsDropped)
	assert.Equal(t, []string{"JFK", "LAX"}, m.Airports)
	assert.Equal(t, 3, m.WeatherRows)
	assert.Empty(t, m.WeatherFailures)
	assert.Equal(t, 2, m.JoinedRows)
	assert.Equal(t, 1, m.OriginMatches)
	assert.Equal(t, 1, m.DestMatches)
	assert.Equal(t, int32(1), up.geocodeCalls.Load())

	rows := readJoined(t, cfg.OutputPath(JoinedCSVFile))
	require.Len(t, rows, 2)
	jfk := rows[0]
	assert.Equal(t, "JFK", jfk["ORIGIN"])
	assert.Equal(t, "American Airlines", jfk["OP_CARRIER_NAME"])
	assert.Equal(t, "New York", jfk["CITY_ORIGIN"])
	assert.Equal(t, "Clear", jfk["ORIGIN_WEATHER_CONDITION"])
	destTemp, err := strconv.ParseFloat(jfk["DEST_TEMPERATURE_DEG_C"], 64)
	require.NoError(t, err)
	assert.Equal(t, 18.0, destTemp)
	assert.Equal(t, "On-Time", jfk["DEP_DELAY_CATEGORY"])
	assert.Equal(t, "", rows[1]["OP_CARRIER_NAME"])
	assert.Equal(t, "Moderate Delay", rows[1]["DEP_DELAY_CATEGORY"])

	errs, err := os.ReadFile(cfg.OutputPath(ErrorFile))
	require.NoError(t, err)
	assert.Empty(t, errs)

	var onDisk models.RunManifest
	data, err := os.ReadFile(cfg.OutputPath(ManifestFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "run-1", onDisk.RunID)
	assert.Equal(t, cfg.OutputPath(JoinedCSVFile), onDisk.Artifacts["joined"])
	assert.Equal(t, cfg.OutputPath(AirportIDsFile), onDisk.Artifacts["origin_dest_airport_ids"])

	// station ids resolved from the registry are cached with the airports
	cached, err := os.ReadFile(filepath.Join(cfg.Cache.Dir, "airports.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(cached), "74486")

	// the join stage alone re-reads the artifacts of the earlier stages
	hourly := up.hourlyCalls.Load()
	again, err := p.Run(context.Background(), StageJoin)
	require.NoError(t, err)
	assert.Equal(t, 2, again.JoinedRows)
	assert.Equal(t, 1, again.OriginMatches)
	assert.Equal(t, hourly, up.hourlyCalls.Load())
}

// cancellingSink cancels the run after its first chunk.
type cancellingSink struct {
	export.Sink
	cancel context.CancelFunc
	writes int
}

func (c *cancellingSink) Write(ctx context.Context, rows []models.JoinedRecord) error {
	c.writes++
	defer c.cancel()
	return c.Sink.Write(ctx, rows)
}

func TestPipeline_CancelledJoinLeavesNoArtifact(t *testing.T) {
	up := newUpstream(t)
	cfg := testConfig(t, up.srv.URL)

	p, err := NewPipeline(context.Background(), cfg, "run-4")
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Run(context.Background(), StageAll)
	require.NoError(t, err)
	joined := cfg.OutputPath(JoinedCSVFile)
	require.NoError(t, os.Remove(joined))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &cancellingSink{cancel: cancel}
	p.Join = NewJoinService(1)
	p.SinkFactory = func(ctx context.Context) (export.Sink, string, error) {
		inner, path, err := p.openSink(ctx)
		sink.Sink = inner
		return sink, path, err
	}

	_, err = p.Run(ctx, StageJoin)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sink.writes)
	assert.NoFileExists(t, joined)
	leftovers, err := filepath.Glob(joined + ".*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPipeline_WeatherFailureDoesNotAbort(t *testing.T) {
	up := newUpstream(t)
	cfg := testConfig(t, up.srv.URL)
	cfg.Weather.BaseURL = up.srv.URL + "/missing"

	p, err := NewPipeline(context.Background(), cfg, "run-2")
	require.NoError(t, err)
	defer p.Close()

	m, err := p.Run(context.Background(), StageAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"JFK", "LAX"}, m.WeatherFailures)
	assert.Equal(t, 2, m.JoinedRows)
	assert.Zero(t, m.OriginMatches)

	errs, err := os.ReadFile(cfg.OutputPath(ErrorFile))
	require.NoError(t, err)
	assert.Equal(t, "JFK,\nLAX", string(errs))
}

func TestPipeline_MissingWhitelist(t *testing.T) {
	up := newUpstream(t)
	cfg := testConfig(t, up.srv.URL)
	cfg.Sources.WhitelistPath = filepath.Join(t.TempDir(), "absent.csv")

	p, err := NewPipeline(context.Background(), cfg, "run-3")
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Run(context.Background(), StageFlights)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestPipeline_UnknownStage(t *testing.T) {
	assert.False(t, ValidStage("bogus"))
	p := &Pipeline{}
	_, err := p.Run(context.Background(), "bogus")
	assert.Error(t, err)
}
