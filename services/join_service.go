// services/join_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gewnthar/flightwx/export"
	"github.com/gewnthar/flightwx/features"
	"github.com/gewnthar/flightwx/models"
	"github.com/gewnthar/flightwx/scraper"
)

// JoinResult summarizes a join run.
type JoinResult struct {
	features.JoinStats
	DuplicateWeather int
}

// JoinService streams the enriched flight table against the hourly weather index.
type JoinService struct {
	chunkSize int
}

func NewJoinService(chunkSize int) *JoinService {
	return &JoinService{chunkSize: chunkSize}
}

// Run joins every flight of enrichedPath with observations and writes each chunk to sink.
// The sink is not closed.
func (s *JoinService) Run(ctx context.Context, enrichedPath string, observations []models.WeatherObservation, sink export.Sink) (JoinResult, error) {
	index := features.NewWeatherIndex(observations)
	if index.Duplicates > 0 {
		log.Printf("WARN Service: %d weather observations share an (airport, hour) key; the first one is used\n", index.Duplicates)
	}
	joiner := features.NewJoiner(index, features.NewZones())

	cr, err := scraper.OpenChunkReader[models.EnrichedFlight](enrichedPath, s.chunkSize)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return JoinResult{}, fmt.Errorf("%w: enriched flight table %s", ErrMissingInput, enrichedPath)
		}
		return JoinResult{}, err
	}
	defer cr.Close()

	for {
		if err := ctx.Err(); err != nil {
			return JoinResult{}, err
		}
		chunk, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return JoinResult{}, fmt.Errorf("reading %s: %w", enrichedPath, err)
		}

		rows := make([]models.JoinedRecord, len(chunk))
		for i := range chunk {
			rows[i] = joiner.Join(chunk[i])
		}
		if err := sink.Write(ctx, rows); err != nil {
			return JoinResult{}, fmt.Errorf("writing joined rows: %w", err)
		}
		log.Printf("Service: Joined %d rows\n", joiner.Stats.Rows)
	}

	return JoinResult{JoinStats: joiner.Stats, DuplicateWeather: index.Duplicates}, nil
}
