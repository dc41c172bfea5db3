// services/airport_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gewnthar/flightwx/database"
	"github.com/gewnthar/flightwx/features"
	"github.com/gewnthar/flightwx/geocode"
	"github.com/gewnthar/flightwx/models"
	"github.com/gewnthar/flightwx/scraper"
)

// AirportReferenceFunc downloads the public airport reference table.
type AirportReferenceFunc func(ctx context.Context) ([]scraper.AirportReference, error)

// GeocodeStats counts reverse-geocoding outcomes of one directory build.
type GeocodeStats struct {
	Attempted int
	Filled    int
	NoAddress int
	Failed    int
}

// AirportService builds the airport directory and keeps the airport cache current.
type AirportService struct {
	store         database.LookupStore
	reference     AirportReferenceFunc
	geocoder      geocode.ReverseGeocoder
	country       string
	concurrency   int
	refillMissing bool
}

type AirportServiceConfig struct {
	Country       string
	Concurrency   int
	RefillMissing bool
}

func NewAirportService(store database.LookupStore, reference AirportReferenceFunc, geocoder geocode.ReverseGeocoder, cfg AirportServiceConfig) *AirportService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &AirportService{
		store:         store,
		reference:     reference,
		geocoder:      geocoder,
		country:       cfg.Country,
		concurrency:   cfg.Concurrency,
		refillMissing: cfg.RefillMissing,
	}
}

// BuildDirectory returns the airport directory. On a cache miss the reference table is
// downloaded and reduced to the target country and the whitelist. Rows missing city,
// state or country are reverse-geocoded on a fresh build, and on cached runs only when
// refill is enabled. Geocoding never replaces a value that is already present.
func (s *AirportService) BuildDirectory(ctx context.Context, whitelist scraper.Whitelist) (models.AirportDirectory, GeocodeStats, error) {
	var stats GeocodeStats

	rows, err := s.store.LoadAirports(ctx)
	fresh := false
	switch {
	case err == nil:
		log.Printf("Service: Loaded %d airports from cache\n", len(rows))
	case errors.Is(err, database.ErrCacheMiss):
		log.Println("Service: Airport cache empty, downloading airport reference...")
		rows, err = s.fromReference(ctx, whitelist)
		if err != nil {
			return nil, stats, err
		}
		fresh = true
	default:
		return nil, stats, fmt.Errorf("failed to load airport cache: %w", err)
	}

	for i := range rows {
		rows[i].TimeZone = features.NormalizeTimeZone(rows[i].TimeZone)
	}

	if fresh || s.refillMissing {
		stats, err = s.fillGeography(ctx, rows)
		if err != nil {
			return nil, stats, err
		}
		log.Printf("Service: Geocoding done: %d attempted, %d filled, %d without address, %d failed\n",
			stats.Attempted, stats.Filled, stats.NoAddress, stats.Failed)
	}

	if err := s.store.MergeFillAirports(ctx, rows); err != nil {
		return nil, stats, fmt.Errorf("failed to cache airports: %w", err)
	}
	if err := s.store.Persist(ctx); err != nil {
		return nil, stats, fmt.Errorf("failed to persist airports: %w", err)
	}

	merged, err := s.store.LoadAirports(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to reload airports: %w", err)
	}
	dir := make(models.AirportDirectory, len(merged))
	for _, a := range merged {
		a.TimeZone = features.NormalizeTimeZone(a.TimeZone)
		dir[a.Code] = a
	}
	return dir, stats, nil
}

func (s *AirportService) fromReference(ctx context.Context, whitelist scraper.Whitelist) ([]models.AirportInfo, error) {
	ref, err := s.reference(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download airport reference: %w", err)
	}
	var rows []models.AirportInfo
	for _, r := range ref {
		if r.Country == nil || !strings.EqualFold(*r.Country, s.country) {
			continue
		}
		if !whitelist.Contains(r.Code) {
			continue
		}
		rows = append(rows, r.AirportInfo)
	}
	log.Printf("Service: Kept %d of %d reference airports (country %s, whitelisted)\n", len(rows), len(ref), s.country)
	return rows, nil
}

// fillGeography reverse-geocodes rows with missing geography in place. Each goroutine
// writes only its own row.
func (s *AirportService) fillGeography(ctx context.Context, rows []models.AirportInfo) (GeocodeStats, error) {
	var (
		mu    sync.Mutex
		stats GeocodeStats
	)
	if s.geocoder == nil {
		return stats, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i := range rows {
		a := &rows[i]
		if !a.MissingGeography() || a.Latitude == nil || a.Longitude == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			addr, err := s.geocoder.Reverse(ctx, *a.Latitude, *a.Longitude)

			mu.Lock()
			defer mu.Unlock()
			stats.Attempted++
			switch {
			case errors.Is(err, geocode.ErrNoAddress):
				stats.NoAddress++
				log.Printf("WARN Service: No address for airport %s\n", a.Code)
				return nil
			case err != nil:
				stats.Failed++
				log.Printf("WARN Service: Geocoding failed for airport %s: %v\n", a.Code, err)
				return nil
			}
			if a.FillFrom(models.AirportInfo{City: addr.Locality(), State: addr.State, Country: addr.Country}) > 0 {
				stats.Filled++
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats, ctx.Err()
}

// RecordStations merge-fills resolved weather station ids into the airport cache.
func (s *AirportService) RecordStations(ctx context.Context, stations map[string]string) error {
	if len(stations) == 0 {
		return nil
	}
	rows := make([]models.AirportInfo, 0, len(stations))
	for code, id := range stations {
		rows = append(rows, models.AirportInfo{Code: code, StationID: models.StringPtr(id)})
	}
	if err := s.store.MergeFillAirports(ctx, rows); err != nil {
		return fmt.Errorf("failed to cache station ids: %w", err)
	}
	return s.store.Persist(ctx)
}
