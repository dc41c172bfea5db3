// database/lookup_store.go
package database

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gewnthar/flightwx/config"
	"github.com/gewnthar/flightwx/models"
)

// ErrCacheMiss is returned by Load when the cached table does not exist or is empty.
var ErrCacheMiss = errors.New("lookup cache miss")

// LookupStore persists the airport and carrier reference tables between runs.
// MergeFill inserts unknown codes and fills only the null fields of known codes;
// a value already cached is never replaced.
type LookupStore interface {
	LoadAirports(ctx context.Context) ([]models.AirportInfo, error)
	MergeFillAirports(ctx context.Context, rows []models.AirportInfo) error
	LoadCarriers(ctx context.Context) ([]models.CarrierInfo, error)
	MergeFillCarriers(ctx context.Context, rows []models.CarrierInfo) error
	Persist(ctx context.Context) error
	Close() error
}

// OpenLookupStore returns the backend selected by cfg.Backend.
func OpenLookupStore(cfg config.CacheConfig) (LookupStore, error) {
	switch cfg.Backend {
	case "", "csv":
		return NewCSVStore(cfg.Dir), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "mysql":
		return OpenMySQL(cfg.MySQL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func sortAirports(rows []models.AirportInfo) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
}

func sortCarriers(rows []models.CarrierInfo) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
}
