package export

import (
	"context"

	"github.com/gewnthar/flightwx/models"
)

// CSVSink writes the joined table as CSV.
type CSVSink struct {
	w *CSVWriter[models.JoinedRecord]
}

func NewCSVSink(path string) (*CSVSink, error) {
	w, err := NewCSVWriter[models.JoinedRecord](path)
	if err != nil {
		return nil, err
	}
	return &CSVSink{w: w}, nil
}

func (s *CSVSink) Write(ctx context.Context, rows []models.JoinedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.w.Append(rows)
}

func (s *CSVSink) Close() error { return s.w.Close() }

func (s *CSVSink) Abort() { s.w.Abort() }
