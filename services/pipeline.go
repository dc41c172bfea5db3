// services/pipeline.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gewnthar/flightwx/config"
	"github.com/gewnthar/flightwx/database"
	"github.com/gewnthar/flightwx/export"
	"github.com/gewnthar/flightwx/geocode"
	"github.com/gewnthar/flightwx/httpclient"
	"github.com/gewnthar/flightwx/models"
	"github.com/gewnthar/flightwx/scraper"
	"github.com/gewnthar/flightwx/weather"
)

// Output artifact names, relative to the run output directory.
const (
	EnrichedFile      = "airline_delay_cancellation_data.csv"
	AirportIDsFile    = "airport_ids.txt" // origin and destination codes
	MergedWeatherFile = "merged_weather.csv"
	ErrorFile         = "error.txt"
	JoinedParquetFile = "joined_flights.parquet"
	JoinedCSVFile     = "joined_flights.csv"
	ManifestFile      = "run_manifest.json"
)

// Stages a run can be limited to.
const (
	StageAll     = "all"
	StageFlights = "flights"
	StageWeather = "weather"
	StageJoin    = "join"
)

// ValidStage reports whether stage names a stage.
func ValidStage(stage string) bool {
	switch stage {
	case StageAll, StageFlights, StageWeather, StageJoin:
		return true
	}
	return false
}

// Pipeline wires the services for one run.
type Pipeline struct {
	cfg   config.Config
	runID string
	store database.LookupStore

	Carriers *CarrierService
	Airports *AirportService
	Flights  *FlightService
	Weather  *WeatherService
	Join     *JoinService

	// Publisher uploads artifacts when set.
	Publisher *export.Publisher
	// SinkFactory overrides how the joined table sink is opened.
	SinkFactory func(ctx context.Context) (export.Sink, string, error)
}

// NewPipeline opens the lookup store and builds the services from cfg.
func NewPipeline(ctx context.Context, cfg config.Config, runID string) (*Pipeline, error) {
	store, err := database.OpenLookupStore(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open lookup cache: %w", err)
	}

	geocoder := geocode.NewClient(geocode.Config{
		BaseURL:       cfg.Geocoder.BaseURL,
		UserAgent:     cfg.Geocoder.UserAgent,
		Timeout:       cfg.Geocoder.Timeout,
		RatePerSecond: cfg.Geocoder.RatePerSecond,
	})

	weatherHTTP := httpclient.New(&http.Client{}, "weather", cfg.Weather.UserAgent)
	registry := &lazyRegistry{load: func(ctx context.Context) (*weather.Registry, error) {
		return weather.LoadRegistry(ctx, weatherHTTP, cfg.Weather.BaseURL)
	}}
	fetcher := &registryFetcher{
		registry:    registry,
		source:      weather.NewClient(cfg.Weather.BaseURL, weatherHTTP, cfg.Weather.Timeout),
		concurrency: cfg.Weather.Concurrency,
	}

	p := &Pipeline{
		cfg:   cfg,
		runID: runID,
		store: store,
		Carriers: NewCarrierService(store, func(ctx context.Context) ([]models.CarrierInfo, error) {
			return scraper.ScrapeCarriers(ctx, cfg.Sources.CarrierPageURL)
		}),
		Airports: NewAirportService(store, func(ctx context.Context) ([]scraper.AirportReference, error) {
			return scraper.FetchAirportReference(ctx, cfg.Sources.AirportsCSVURL)
		}, geocoder, AirportServiceConfig{
			Country:       cfg.Run.Country,
			Concurrency:   cfg.Geocoder.Concurrency,
			RefillMissing: cfg.Geocoder.RefillMissing,
		}),
		Flights: NewFlightService(FlightServiceConfig{
			SourceDir:           cfg.Flights.SourceDir,
			DownloadURLTemplate: cfg.Flights.DownloadURLTemplate,
			EndYear:             cfg.Flights.EndYear,
			ChunkSize:           cfg.Flights.ChunkSize,
			OutputDir:           cfg.Run.OutputDir,
		}),
		Weather: NewWeatherService(fetcher, cfg.Weather.BufferDays, cfg.Run.Country, cfg.Run.OutputDir),
		Join:    NewJoinService(cfg.Flights.ChunkSize),
	}

	if cfg.Output.S3Bucket != "" {
		pub, err := export.NewS3Publisher(ctx, cfg.Output.S3Bucket, cfg.Output.S3Prefix)
		if err != nil {
			store.Close()
			return nil, err
		}
		p.Publisher = pub
	}
	p.SinkFactory = p.openSink
	return p, nil
}

// Close releases the lookup store.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Run executes stage and returns the run manifest, which is also written to the
// output directory. Only missing required inputs and cancellation abort a run.
func (p *Pipeline) Run(ctx context.Context, stage string) (*models.RunManifest, error) {
	if !ValidStage(stage) {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	m := &models.RunManifest{
		RunID:     p.runID,
		StartYear: p.cfg.Run.StartYear,
		Stage:     stage,
		StartedAt: time.Now().UTC(),
	}

	var (
		summary  models.FlightSummary
		airports models.AirportDirectory
		haveSum  bool
		obs      []models.WeatherObservation
		haveObs  bool
		err      error
	)

	if stage == StageAll || stage == StageFlights || stage == StageWeather {
		airports, err = p.lookups(ctx)
		if err != nil {
			return m, err
		}
	}

	if stage == StageAll || stage == StageFlights {
		log.Println("Service: === Stage: flights ===")
		whitelist, err := p.whitelist()
		if err != nil {
			return m, err
		}
		carriers, err := p.Carriers.Resolve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return m, ctx.Err()
			}
			log.Printf("WARN Service: Carrier names unavailable, continuing without them: %v\n", err)
			carriers = models.CarrierDirectory{}
		}
		summary, err = p.Flights.Load(ctx, p.cfg.Run.StartYear, whitelist, carriers, airports)
		if err != nil {
			return m, err
		}
		haveSum = true
		m.FlightRows = summary.Rows
		m.FlightRowsDropped = summary.Dropped
		m.Airports = summary.Airports
		m.AddArtifact("enriched_flights", p.Flights.EnrichedPath())
		m.AddArtifact("origin_dest_airport_ids", p.cfg.OutputPath(AirportIDsFile))
		log.Printf("Service: Enriched %d flights (%d dropped) across %d airports\n", summary.Rows, summary.Dropped, len(summary.Airports))
	}

	if stage == StageAll || stage == StageWeather {
		log.Println("Service: === Stage: weather ===")
		if !haveSum {
			summary, err = ScanEnriched(ctx, p.Flights.EnrichedPath(), p.cfg.Flights.ChunkSize)
			if err != nil {
				return m, err
			}
		}
		res, err := p.Weather.Run(ctx, summary, airports)
		if err != nil {
			return m, err
		}
		obs, haveObs = res.Observations, true
		m.WeatherRows = len(res.Observations)
		m.WeatherFailures = res.FailedAirports()
		m.AddArtifact("merged_weather", p.cfg.OutputPath(MergedWeatherFile))
		m.AddArtifact("weather_errors", p.cfg.OutputPath(ErrorFile))
		if err := p.Airports.RecordStations(ctx, res.Stations); err != nil {
			log.Printf("WARN Service: Could not cache station ids: %v\n", err)
		}
	}

	if stage == StageAll || stage == StageJoin {
		log.Println("Service: === Stage: join ===")
		if !haveObs {
			obs, err = LoadMergedWeather(p.cfg.OutputPath(MergedWeatherFile))
			if err != nil {
				return m, err
			}
		}
		sink, path, err := p.SinkFactory(ctx)
		if err != nil {
			return m, err
		}
		res, err := p.Join.Run(ctx, p.Flights.EnrichedPath(), obs, sink)
		if err != nil {
			sink.Abort()
			return m, err
		}
		if err := sink.Close(); err != nil {
			return m, err
		}
		m.JoinedRows = res.Rows
		m.OriginMatches = res.OriginMatches
		m.DestMatches = res.DestMatches
		m.DuplicateWeather = res.DuplicateWeather
		m.AddArtifact("joined", path)
		log.Printf("Service: Joined %d flights (%d origin, %d destination weather matches) into %s\n",
			res.Rows, res.OriginMatches, res.DestMatches, path)
	}

	m.FinishedAt = time.Now().UTC()
	manifestPath := p.cfg.OutputPath(ManifestFile)
	if err := writeManifest(manifestPath, m); err != nil {
		return m, err
	}

	if p.Publisher != nil {
		files := make([]string, 0, len(m.Artifacts)+1)
		for _, name := range sortedKeys(m.Artifacts) {
			files = append(files, m.Artifacts[name])
		}
		files = append(files, manifestPath)
		if _, err := p.Publisher.Publish(ctx, p.runID, files...); err != nil {
			log.Printf("WARN Service: Publishing artifacts failed: %v\n", err)
		}
	}
	return m, nil
}

// lookups builds the airport directory. The weather stage needs it for ICAO codes
// and station ids; the flights stage also for enrichment.
func (p *Pipeline) lookups(ctx context.Context) (models.AirportDirectory, error) {
	whitelist, err := p.whitelist()
	if err != nil {
		return nil, err
	}
	airports, stats, err := p.Airports.BuildDirectory(ctx, whitelist)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("WARN Service: Airport directory unavailable, continuing without airport attributes: %v\n", err)
		return models.AirportDirectory{}, nil
	}
	log.Printf("Service: Airport directory has %d airports (geocoded %d of %d attempted)\n", len(airports), stats.Filled, stats.Attempted)
	return airports, nil
}

func (p *Pipeline) whitelist() (scraper.Whitelist, error) {
	w, err := scraper.LoadWhitelist(p.cfg.Sources.WhitelistPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingInput, err)
	}
	return w, nil
}

func (p *Pipeline) openSink(ctx context.Context) (export.Sink, string, error) {
	var (
		sink export.Sink
		path string
		err  error
	)
	switch p.cfg.Output.Format {
	case "csv":
		path = p.cfg.OutputPath(JoinedCSVFile)
		sink, err = export.NewCSVSink(path)
	default:
		path = p.cfg.OutputPath(JoinedParquetFile)
		sink, err = export.NewParquetSink(path)
	}
	if err != nil {
		return nil, "", err
	}
	if p.cfg.Output.ClickHouse.Host == "" {
		return sink, path, nil
	}
	ch, err := export.OpenClickHouseSink(ctx, p.cfg.Output.ClickHouse)
	if err != nil {
		sink.Abort()
		return nil, "", err
	}
	return export.MultiSink{sink, ch}, path, nil
}

func writeManifest(path string, m *models.RunManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run manifest: %w", err)
	}
	return nil
}
