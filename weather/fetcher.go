// Package weather fetches hourly observations for a set of airports from the
// meteostat bulk data service.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gewnthar/flightwx/models"
	"github.com/gewnthar/flightwx/utils"
)

// StationLookup resolves an ICAO code to a station id.
type StationLookup interface {
	Lookup(icao string) (string, error)
}

// HourlySource returns the hourly observations of a station.
type HourlySource interface {
	Hourly(ctx context.Context, station string, start, end time.Time) ([]models.WeatherObservation, error)
}

// Target is an airport to fetch weather for.
type Target struct {
	Code      string
	ICAO      *string
	Country   *string
	StationID *string
}

// TargetFromAirport builds a Target from a directory entry.
func TargetFromAirport(a models.AirportInfo) Target {
	return Target{Code: a.Code, ICAO: a.ICAO, Country: a.Country, StationID: a.StationID}
}

// Failure records why one airport has no weather.
type Failure struct {
	Airport string
	Err     error
}

// Result is the merged output of FetchAll.
type Result struct {
	// Observations are sorted by airport, then time.
	Observations []models.WeatherObservation
	Failures     []Failure
	// Stations holds the station id used for each airport that succeeded.
	Stations map[string]string
}

// FailedAirports returns the codes of failed airports in order.
func (r Result) FailedAirports() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Airport
	}
	return out
}

// Fetcher fetches all targets with bounded concurrency. A failing airport never
// stops the others.
type Fetcher struct {
	stations    StationLookup
	source      HourlySource
	concurrency int
}

func NewFetcher(stations StationLookup, source HourlySource, concurrency int) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{stations: stations, source: source, concurrency: concurrency}
}

// Range returns the weather window for flights between minDate and maxDate:
// midnight UTC of minDate through 23:59 UTC of maxDate plus bufferDays.
func Range(minDate, maxDate time.Time, bufferDays int) (time.Time, time.Time) {
	start := time.Date(minDate.Year(), minDate.Month(), minDate.Day(), 0, 0, 0, 0, time.UTC)
	last := maxDate.AddDate(0, 0, bufferDays)
	end := time.Date(last.Year(), last.Month(), last.Day(), 23, 59, 0, 0, time.UTC)
	return start, end
}

// FetchAll fetches every target between start and end. Only a cancelled ctx is
// returned as an error; per-airport failures are collected in Result.Failures.
func (f *Fetcher) FetchAll(ctx context.Context, targets []Target, start, end time.Time) (Result, error) {
	var (
		mu       sync.Mutex
		perCode  = make(map[string][]models.WeatherObservation, len(targets))
		stations = make(map[string]string, len(targets))
		failures []Failure
	)

	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)

	for i, t := range targets {
		i, t := i, t
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			slog.Info("weather: fetching", "airport", t.Code, "progress", fmt.Sprintf("%d/%d", i+1, len(targets)))
			station, obs, err := f.fetchOne(ctx, t, start, end)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("weather: fetch failed", "airport", t.Code, "error", err)
				failures = append(failures, Failure{Airport: t.Code, Err: err})
				return nil
			}
			perCode[t.Code] = obs
			stations[t.Code] = station
			slog.Info("weather: fetched", "airport", t.Code, "station", station, "rows", len(obs))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	codes := make([]string, 0, len(perCode))
	total := 0
	for code, obs := range perCode {
		codes = append(codes, code)
		total += len(obs)
	}
	sort.Strings(codes)

	res := Result{Observations: make([]models.WeatherObservation, 0, total), Stations: stations}
	for _, code := range codes {
		res.Observations = append(res.Observations, perCode[code]...)
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Airport < failures[j].Airport })
	res.Failures = failures
	return res, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, t Target, start, end time.Time) (string, []models.WeatherObservation, error) {
	station, err := f.resolveStation(t)
	if err != nil {
		return "", nil, err
	}
	obs, err := f.source.Hourly(ctx, station, start, end)
	if err != nil {
		return station, nil, err
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Time.Before(obs[j].Time) })
	for i := range obs {
		obs[i].Airport = t.Code
		obs[i].Station = station
	}
	return station, obs, nil
}

func (f *Fetcher) resolveStation(t Target) (string, error) {
	if t.StationID != nil && *t.StationID != "" {
		return *t.StationID, nil
	}
	var icao string
	if t.ICAO != nil {
		icao = *t.ICAO
	}
	if icao != "" {
		id, err := f.stations.Lookup(icao)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrStationNotFound) {
			return "", err
		}
	}
	country := ""
	if t.Country != nil {
		country = *t.Country
	}
	if guess := utils.GuessICAO(t.Code, country); guess != "" && guess != icao {
		return f.stations.Lookup(guess)
	}
	return "", fmt.Errorf("%w: airport %s", ErrStationNotFound, t.Code)
}
