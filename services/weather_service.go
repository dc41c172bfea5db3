// services/weather_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gewnthar/flightwx/export"
	"github.com/gewnthar/flightwx/models"
	"github.com/gewnthar/flightwx/scraper"
	"github.com/gewnthar/flightwx/weather"
)

// AllFetcher is the weather fetch the service drives.
type AllFetcher interface {
	FetchAll(ctx context.Context, targets []weather.Target, start, end time.Time) (weather.Result, error)
}

// WeatherService fetches weather for every airport of the flight table and writes the
// merged weather table and the error list.
type WeatherService struct {
	fetcher    AllFetcher
	bufferDays int
	country    string
	outputDir  string
}

func NewWeatherService(fetcher AllFetcher, bufferDays int, country, outputDir string) *WeatherService {
	return &WeatherService{fetcher: fetcher, bufferDays: bufferDays, country: country, outputDir: outputDir}
}

// Run fetches observations for summary.Airports over the flight date range plus the
// buffer. Airports unknown to the directory are still attempted with the run country.
func (s *WeatherService) Run(ctx context.Context, summary models.FlightSummary, airports models.AirportDirectory) (weather.Result, error) {
	if summary.Rows == 0 || len(summary.Airports) == 0 {
		log.Println("WARN Service: No flights, skipping weather fetch")
		res := weather.Result{Stations: map[string]string{}}
		return res, s.write(res)
	}

	start, end := weather.Range(summary.MinDate, summary.MaxDate, s.bufferDays)
	targets := make([]weather.Target, 0, len(summary.Airports))
	for _, code := range summary.Airports {
		t := weather.Target{Code: code}
		if a := airports.Lookup(code); a != nil {
			t = weather.TargetFromAirport(*a)
		}
		if t.Country == nil && s.country != "" {
			t.Country = models.StringPtr(s.country)
		}
		targets = append(targets, t)
	}

	log.Printf("Service: Fetching weather for %d airports from %s to %s\n",
		len(targets), start.Format(models.WeatherTimeLayout), end.Format(models.WeatherTimeLayout))
	res, err := s.fetcher.FetchAll(ctx, targets, start, end)
	if err != nil {
		return res, err
	}
	log.Printf("Service: Weather fetched: %d observations, %d airports failed\n", len(res.Observations), len(res.Failures))
	return res, s.write(res)
}

func (s *WeatherService) write(res weather.Result) error {
	out, err := export.NewCSVWriter[models.WeatherRow](filepath.Join(s.outputDir, MergedWeatherFile))
	if err != nil {
		return err
	}
	defer out.Abort()

	const batch = 10000
	rows := make([]models.WeatherRow, 0, batch)
	for _, o := range res.Observations {
		rows = append(rows, o.Row())
		if len(rows) == batch {
			if err := out.Append(rows); err != nil {
				return err
			}
			rows = rows[:0]
		}
	}
	if err := out.Append(rows); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return WriteLines(filepath.Join(s.outputDir, ErrorFile), res.FailedAirports(), ",\n")
}

// LoadMergedWeather reads a merged weather table written by Run.
func LoadMergedWeather(path string) ([]models.WeatherObservation, error) {
	cr, err := scraper.OpenChunkReader[models.WeatherRow](path, 50000)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: merged weather table %s", ErrMissingInput, path)
		}
		return nil, err
	}
	defer cr.Close()

	var out []models.WeatherObservation
	for {
		chunk, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range chunk {
			o, err := r.Observation()
			if err != nil {
				log.Printf("WARN Service: Skipping weather row with bad time %q\n", r.Time)
				continue
			}
			out = append(out, o)
		}
	}
	return out, nil
}
