package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
)

// CSVWriter streams rows of type T to a CSV file with a header taken from the csv tags.
// The file is written under a temporary name and moved into place by Close.
type CSVWriter[T any] struct {
	path string
	tmp  *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	enc  *csvutil.Encoder
	rows int
}

func NewCSVWriter[T any](path string) (*CSVWriter[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	buf := bufio.NewWriterSize(tmp, 1<<20)
	w := csv.NewWriter(buf)
	enc := csvutil.NewEncoder(w)

	// Write the header even when no rows follow.
	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	return &CSVWriter[T]{path: path, tmp: tmp, buf: buf, csv: w, enc: enc}, nil
}

func (c *CSVWriter[T]) Append(rows []T) error {
	for i := range rows {
		if err := c.enc.Encode(rows[i]); err != nil {
			return fmt.Errorf("failed to encode row %d of %s: %w", c.rows+i, c.path, err)
		}
	}
	c.rows += len(rows)
	return nil
}

// Rows returns how many rows were appended.
func (c *CSVWriter[T]) Rows() int { return c.rows }

func (c *CSVWriter[T]) Path() string { return c.path }

func (c *CSVWriter[T]) Close() error {
	if c.tmp == nil {
		return nil
	}
	tmp := c.tmp
	c.tmp = nil
	defer os.Remove(tmp.Name())

	c.csv.Flush()
	if err := c.csv.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", c.path, err)
	}
	if err := c.buf.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", c.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", c.path, err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", c.path, err)
	}
	return nil
}

// Abort discards the partial file.
func (c *CSVWriter[T]) Abort() {
	if c.tmp == nil {
		return
	}
	c.tmp.Close()
	os.Remove(c.tmp.Name())
	c.tmp = nil
}
