// scraper/csv_parser.go
package scraper

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/klauspost/compress/gzip"

	"github.com/gewnthar/flightwx/models"
)

// AirportReference is one row of the public airport reference table. The table has
// more columns (elevation, url, county...), csvutil skips the ones not tagged here.
type AirportReference struct {
	models.AirportInfo
	Type *string `csv:"type"`
}

// ParseAirportReference decodes the airport reference CSV.
func ParseAirportReference(reader io.Reader) ([]AirportReference, error) {
	var rows []AirportReference

	decoder, err := csvutil.NewDecoder(csv.NewReader(reader))
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder for airport reference: %w", err)
	}
	if err := decoder.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode airport reference CSV data: %w", err)
	}

	log.Printf("Scraper: Parsed %d airports from reference CSV.\n", len(rows))
	return rows, nil
}

// ChunkReader streams rows of type T from a CSV source in fixed-size chunks.
type ChunkReader[T any] struct {
	decoder *csvutil.Decoder
	closers []io.Closer
	size    int
	line    int

	// Skipped counts rows dropped because a cell could not be converted.
	Skipped int
}

// OpenChunkReader opens path for chunked decoding. Files ending in .gz are decompressed.
func OpenChunkReader[T any](path string, chunkSize int) (*ChunkReader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var r io.Reader = bufio.NewReaderSize(f, 1<<20)
	closers := []io.Closer{f}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		r = gz
		closers = append([]io.Closer{gz}, closers...)
	}

	cr, err := NewChunkReader[T](r, chunkSize)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cr.closers = closers
	return cr, nil
}

// NewChunkReader reads the header from r and prepares chunked decoding.
func NewChunkReader[T any](r io.Reader, chunkSize int) (*ChunkReader[T], error) {
	if chunkSize <= 0 {
		chunkSize = 50000
	}
	decoder, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder: %w", err)
	}
	return &ChunkReader[T]{decoder: decoder, size: chunkSize}, nil
}

// Next returns up to the chunk size of rows. It returns io.EOF once no rows are left.
// Rows with unconvertible cells are skipped and counted.
func (c *ChunkReader[T]) Next() ([]T, error) {
	chunk := make([]T, 0, c.size)
	for len(chunk) < c.size {
		var row T
		err := c.decoder.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		c.line++
		var typeErr *csvutil.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			c.Skipped++
			continue
		}
		if err != nil {
			return chunk, fmt.Errorf("failed to decode row %d: %w", c.line, err)
		}
		chunk = append(chunk, row)
	}
	if len(chunk) == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}

// Header returns the column names of the source.
func (c *ChunkReader[T]) Header() []string {
	return c.decoder.Header()
}

func (c *ChunkReader[T]) Close() error {
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	return errors.Join(errs...)
}
