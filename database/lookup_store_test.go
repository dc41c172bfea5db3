package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/flightwx/config"
	"github.com/gewnthar/flightwx/models"
)

func str(s string) *string { return &s }

func openStores(t *testing.T) map[string]LookupStore {
	t.Helper()
	dir := t.TempDir()
	sqlite, err := OpenSQLite(filepath.Join(dir, "lookup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]LookupStore{
		"csv":    NewCSVStore(filepath.Join(dir, "csv")),
		"sqlite": sqlite,
	}
}

func TestLookupStore_EmptyIsCacheMiss(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.LoadAirports(context.Background())
			assert.ErrorIs(t, err, ErrCacheMiss)
			_, err = store.LoadCarriers(context.Background())
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestLookupStore_FillNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			first := []models.AirportInfo{
				{Code: "JFK", Name: str("John F Kennedy Intl"), City: str("New York"), Latitude: models.Float64Ptr(40.64)},
				{Code: "DEN", Name: str("Denver Intl")},
			}
			require.NoError(t, store.MergeFillAirports(ctx, first))

			second := []models.AirportInfo{
				{Code: "JFK", City: str("Jamaica"), State: str("New York"), Latitude: models.Float64Ptr(0)},
				{Code: "DEN", City: str("Denver"), State: str(""), Country: str("United States")},
				{Code: "ORD", Name: str("Chicago O'Hare Intl")},
			}
			require.NoError(t, store.MergeFillAirports(ctx, second))
			require.NoError(t, store.Persist(ctx))

			got, err := store.LoadAirports(ctx)
			require.NoError(t, err)
			require.Len(t, got, 3)

			byCode := map[string]models.AirportInfo{}
			for _, a := range got {
				byCode[a.Code] = a
			}
			jfk := byCode["JFK"]
			assert.Equal(t, "New York", *jfk.City)
			assert.Equal(t, 40.64, *jfk.Latitude)
			require.NotNil(t, jfk.State)
			assert.Equal(t, "New York", *jfk.State)

			den := byCode["DEN"]
			assert.Equal(t, "Denver", *den.City)
			assert.Nil(t, den.State)
			assert.Equal(t, "United States", *den.Country)

			assert.Equal(t, "Chicago O'Hare Intl", *byCode["ORD"].Name)
		})
	}
}

func TestLookupStore_Carriers(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.MergeFillCarriers(ctx, []models.CarrierInfo{
				{Code: "AA", Carrier: str("American Airlines")},
				{Code: "ZZ"},
			}))
			require.NoError(t, store.MergeFillCarriers(ctx, []models.CarrierInfo{
				{Code: "AA", Carrier: str("Renamed")},
				{Code: "ZZ", Carrier: str("Zed Air")},
			}))
			require.NoError(t, store.Persist(ctx))

			got, err := store.LoadCarriers(ctx)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "AA", got[0].Code)
			assert.Equal(t, "American Airlines", *got[0].Carrier)
			assert.Equal(t, "Zed Air", *got[1].Carrier)
		})
	}
}

func TestLookupStore_MergeFillConverges(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rows := []models.AirportInfo{{Code: "SEA", Name: str("Seattle Tacoma Intl"), TimeZone: str("America/Los_Angeles")}}
			require.NoError(t, store.MergeFillAirports(ctx, rows))
			once, err := store.LoadAirports(ctx)
			require.NoError(t, err)

			require.NoError(t, store.MergeFillAirports(ctx, rows))
			twice, err := store.LoadAirports(ctx)
			require.NoError(t, err)
			assert.Equal(t, once, twice)
		})
	}
}

func TestCSVStore_PersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := NewCSVStore(dir)
	require.NoError(t, store.MergeFillAirports(ctx, []models.AirportInfo{
		{Code: "LAX", Name: str("Los Angeles Intl"), Longitude: models.Float64Ptr(-118.4)},
	}))
	require.NoError(t, store.Persist(ctx))
	assert.FileExists(t, filepath.Join(dir, AirportsFile))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}

	reopened := NewCSVStore(dir)
	got, err := reopened.LoadAirports(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, -118.4, *got[0].Longitude)
	assert.Nil(t, got[0].City)
}

func TestOpenLookupStore_UnknownBackend(t *testing.T) {
	_, err := OpenLookupStore(config.CacheConfig{Backend: "redis"})
	assert.Error(t, err)
}
