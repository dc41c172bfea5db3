// services/carrier_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gewnthar/flightwx/database"
	"github.com/gewnthar/flightwx/models"
)

// CarrierScrapeFunc fetches the carrier reference table from its live source.
type CarrierScrapeFunc func(ctx context.Context) ([]models.CarrierInfo, error)

// CarrierService resolves carrier codes to display names.
type CarrierService struct {
	store  database.LookupStore
	scrape CarrierScrapeFunc
}

func NewCarrierService(store database.LookupStore, scrape CarrierScrapeFunc) *CarrierService {
	return &CarrierService{store: store, scrape: scrape}
}

// Resolve returns the carrier directory, from the cache when present and from the
// live reference otherwise. A scraped table is merged into the cache.
func (s *CarrierService) Resolve(ctx context.Context) (models.CarrierDirectory, error) {
	rows, err := s.store.LoadCarriers(ctx)
	switch {
	case err == nil:
		log.Printf("Service: Loaded %d carrier codes from cache\n", len(rows))
	case errors.Is(err, database.ErrCacheMiss):
		log.Println("Service: Carrier cache empty, scraping the carrier reference page...")
		scraped, scrapeErr := s.scrape(ctx)
		if scrapeErr != nil {
			return nil, fmt.Errorf("failed to scrape carrier codes: %w", scrapeErr)
		}
		if err := s.store.MergeFillCarriers(ctx, scraped); err != nil {
			return nil, fmt.Errorf("failed to cache carrier codes: %w", err)
		}
		if err := s.store.Persist(ctx); err != nil {
			return nil, fmt.Errorf("failed to persist carrier codes: %w", err)
		}
		if rows, err = s.store.LoadCarriers(ctx); err != nil {
			return nil, fmt.Errorf("failed to reload carrier codes: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to load carrier cache: %w", err)
	}

	dir := make(models.CarrierDirectory, len(rows))
	for _, r := range rows {
		if r.Carrier != nil {
			dir[r.Code] = *r.Carrier
		}
	}
	return dir, nil
}
