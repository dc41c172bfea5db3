// Package export writes the joined table to its output artifacts.
package export

import (
	"context"
	"errors"

	"github.com/gewnthar/flightwx/models"
)

// Sink receives the joined table chunk by chunk. Close finalizes the artifact;
// Abort releases it without publishing a partial artifact.
type Sink interface {
	Write(ctx context.Context, rows []models.JoinedRecord) error
	Close() error
	Abort()
}

// MultiSink writes every chunk to all of its sinks.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rows []models.JoinedRecord) error {
	for _, s := range m {
		if err := s.Write(ctx, rows); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Abort aborts every sink.
func (m MultiSink) Abort() {
	for _, s := range m {
		s.Abort()
	}
}
