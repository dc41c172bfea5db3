// database/csv_store.go
package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/jszwec/csvutil"

	"github.com/gewnthar/flightwx/models"
)

const (
	AirportsFile = "airports.csv"
	CarriersFile = "codes_to_carrier.csv"
)

// CSVStore keeps the lookup tables as CSV files in dir. Changes are held in memory
// until Persist, which replaces each file atomically.
type CSVStore struct {
	dir string

	mu       sync.Mutex
	airports map[string]models.AirportInfo
	carriers map[string]models.CarrierInfo
	loaded   bool
	dirty    bool
}

func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{dir: dir}
}

func (s *CSVStore) load() error {
	if s.loaded {
		return nil
	}
	s.airports = make(map[string]models.AirportInfo)
	s.carriers = make(map[string]models.CarrierInfo)

	var airports []models.AirportInfo
	if err := readCSV(filepath.Join(s.dir, AirportsFile), &airports); err != nil {
		return err
	}
	for _, a := range airports {
		s.airports[a.Code] = a
	}

	var carriers []models.CarrierInfo
	if err := readCSV(filepath.Join(s.dir, CarriersFile), &carriers); err != nil {
		return err
	}
	for _, c := range carriers {
		s.carriers[c.Code] = c
	}
	s.loaded = true
	return nil
}

func (s *CSVStore) LoadAirports(ctx context.Context) ([]models.AirportInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	if len(s.airports) == 0 {
		return nil, ErrCacheMiss
	}
	out := make([]models.AirportInfo, 0, len(s.airports))
	for _, a := range s.airports {
		out = append(out, a)
	}
	sortAirports(out)
	return out, nil
}

func (s *CSVStore) MergeFillAirports(ctx context.Context, rows []models.AirportInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	for _, r := range rows {
		existing, ok := s.airports[r.Code]
		if !ok {
			s.airports[r.Code] = r
			s.dirty = true
			continue
		}
		if existing.FillFrom(r) > 0 {
			s.airports[r.Code] = existing
			s.dirty = true
		}
	}
	return nil
}

func (s *CSVStore) LoadCarriers(ctx context.Context) ([]models.CarrierInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	if len(s.carriers) == 0 {
		return nil, ErrCacheMiss
	}
	out := make([]models.CarrierInfo, 0, len(s.carriers))
	for _, c := range s.carriers {
		out = append(out, c)
	}
	sortCarriers(out)
	return out, nil
}

func (s *CSVStore) MergeFillCarriers(ctx context.Context, rows []models.CarrierInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	for _, r := range rows {
		existing, ok := s.carriers[r.Code]
		if !ok {
			s.carriers[r.Code] = r
			s.dirty = true
			continue
		}
		if existing.FillFrom(r) > 0 {
			s.carriers[r.Code] = existing
			s.dirty = true
		}
	}
	return nil
}

// Persist writes both tables when anything changed since the last load or persist.
func (s *CSVStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || !s.dirty {
		return nil
	}

	airports := make([]models.AirportInfo, 0, len(s.airports))
	for _, a := range s.airports {
		airports = append(airports, a)
	}
	sortAirports(airports)
	if err := writeCSVAtomic(filepath.Join(s.dir, AirportsFile), airports); err != nil {
		return err
	}

	carriers := make([]models.CarrierInfo, 0, len(s.carriers))
	for _, c := range s.carriers {
		carriers = append(carriers, c)
	}
	sortCarriers(carriers)
	if err := writeCSVAtomic(filepath.Join(s.dir, CarriersFile), carriers); err != nil {
		return err
	}

	s.dirty = false
	log.Printf("CSVStore: Persisted %d airports and %d carriers to %s", len(airports), len(carriers), s.dir)
	return nil
}

func (s *CSVStore) Close() error { return nil }

// readCSV decodes path into out. A missing or empty file leaves out untouched.
func readCSV(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := csvutil.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeCSVAtomic(path string, rows interface{}) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
