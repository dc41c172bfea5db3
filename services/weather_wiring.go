// services/weather_wiring.go
package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gewnthar/flightwx/weather"
)

// lazyRegistry downloads the station registry on first use, once per run.
type lazyRegistry struct {
	load func(ctx context.Context) (*weather.Registry, error)

	once sync.Once
	reg  *weather.Registry
	err  error
}

func (l *lazyRegistry) get(ctx context.Context) (*weather.Registry, error) {
	l.once.Do(func() {
		l.reg, l.err = l.load(ctx)
	})
	return l.reg, l.err
}

// registryFetcher builds a weather.Fetcher once the registry is available.
type registryFetcher struct {
	registry    *lazyRegistry
	source      weather.HourlySource
	concurrency int
}

func (r *registryFetcher) FetchAll(ctx context.Context, targets []weather.Target, start, end time.Time) (weather.Result, error) {
	reg, err := r.registry.get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return weather.Result{}, ctx.Err()
		}
		// Without the registry only airports with a cached station id can be fetched.
		slog.Warn("station registry unavailable", "err", err)
		reg = weather.NewRegistry(nil)
	}
	return weather.NewFetcher(reg, r.source, r.concurrency).FetchAll(ctx, targets, start, end)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
