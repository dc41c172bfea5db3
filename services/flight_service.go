// services/flight_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gewnthar/flightwx/export"
	"github.com/gewnthar/flightwx/models"
	"github.com/gewnthar/flightwx/scraper"
)

// ErrMissingInput is returned when a required input (flight data, whitelist) is absent.
var ErrMissingInput = errors.New("required input missing")

var yearFilePattern = regexp.MustCompile(`^(\d{4})\.csv(\.gz)?$`)

// YearFile is one yearly flight file.
type YearFile struct {
	Year int
	Path string
}

// FlightService loads the yearly flight files and writes the enriched flight table.
type FlightService struct {
	sourceDir   string
	urlTemplate string
	endYear     int
	chunkSize   int
	outputDir   string
}

type FlightServiceConfig struct {
	SourceDir           string
	DownloadURLTemplate string
	EndYear             int
	ChunkSize           int
	OutputDir           string
}

func NewFlightService(cfg FlightServiceConfig) *FlightService {
	return &FlightService{
		sourceDir:   cfg.SourceDir,
		urlTemplate: cfg.DownloadURLTemplate,
		endYear:     cfg.EndYear,
		chunkSize:   cfg.ChunkSize,
		outputDir:   cfg.OutputDir,
	}
}

// EnrichedPath is where Load writes the enriched flight table.
func (s *FlightService) EnrichedPath() string {
	return filepath.Join(s.outputDir, EnrichedFile)
}

// YearFiles lists the flight files of startYear and later (through the end year when set),
// sorted by year. A plain and a gzipped file for the same year resolve to the plain one.
func (s *FlightService) YearFiles(startYear int) ([]YearFile, error) {
	entries, err := os.ReadDir(s.sourceDir)
	if err != nil {
		return nil, fmt.Errorf("%w: flight source directory %s: %v", ErrMissingInput, s.sourceDir, err)
	}
	byYear := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := yearFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		if year < startYear || (s.endYear > 0 && year > s.endYear) {
			continue
		}
		if prev, ok := byYear[year]; ok && !strings.HasSuffix(prev, ".gz") {
			continue
		}
		byYear[year] = filepath.Join(s.sourceDir, e.Name())
	}

	files := make([]YearFile, 0, len(byYear))
	for y, p := range byYear {
		files = append(files, YearFile{Year: y, Path: p})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Year < files[j].Year })
	return files, nil
}

// DownloadMissing fetches years startYear..endYear that have no local file, when a
// download template is configured. A failed year is logged and skipped.
func (s *FlightService) DownloadMissing(ctx context.Context, startYear int) error {
	if s.urlTemplate == "" || s.endYear == 0 {
		return nil
	}
	have, err := s.YearFiles(startYear)
	if err != nil {
		return err
	}
	present := make(map[int]bool, len(have))
	for _, f := range have {
		present[f.Year] = true
	}
	for year := startYear; year <= s.endYear; year++ {
		if present[year] {
			continue
		}
		url := fmt.Sprintf(s.urlTemplate, year)
		dest := filepath.Join(s.sourceDir, fmt.Sprintf("%d.csv", year))
		if strings.HasSuffix(url, ".gz") {
			dest += ".gz"
		}
		if err := scraper.DownloadFile(ctx, url, dest); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("WARN Service: Could not download flights for %d: %v\n", year, err)
		}
	}
	return nil
}

// Enrich attaches the carrier name and both airports' attributes to rec.
// Unknown codes leave the corresponding fields nil.
func Enrich(rec models.FlightRecord, carriers models.CarrierDirectory, airports models.AirportDirectory) models.EnrichedFlight {
	e := models.EnrichedFlight{FlightRecord: rec, CarrierName: carriers.Name(rec.Carrier)}
	e.SetOrigin(airports.Lookup(rec.Origin))
	e.SetDest(airports.Lookup(rec.Dest))
	return e
}

// summaryBuilder accumulates a FlightSummary while rows stream by.
type summaryBuilder struct {
	sum      models.FlightSummary
	airports map[string]struct{}
}

func newSummaryBuilder() *summaryBuilder {
	return &summaryBuilder{airports: make(map[string]struct{})}
}

func (b *summaryBuilder) add(rec models.FlightRecord) {
	b.sum.Rows++
	b.airports[rec.Origin] = struct{}{}
	b.airports[rec.Dest] = struct{}{}
	d, err := rec.Date()
	if err != nil {
		return
	}
	if b.sum.MinDate.IsZero() || d.Before(b.sum.MinDate) {
		b.sum.MinDate = d
	}
	if d.After(b.sum.MaxDate) {
		b.sum.MaxDate = d
	}
}

func (b *summaryBuilder) summary() models.FlightSummary {
	s := b.sum
	s.Airports = make([]string, 0, len(b.airports))
	for c := range b.airports {
		s.Airports = append(s.Airports, c)
	}
	sort.Strings(s.Airports)
	return s
}

// Load streams the flight files of startYear and later in chunks, drops flights whose
// origin or destination is not whitelisted, enriches the rest and writes the enriched
// table and the airport id list.
func (s *FlightService) Load(ctx context.Context, startYear int, whitelist scraper.Whitelist,
	carriers models.CarrierDirectory, airports models.AirportDirectory) (models.FlightSummary, error) {
	if len(whitelist) == 0 {
		return models.FlightSummary{}, fmt.Errorf("%w: airport whitelist is empty", ErrMissingInput)
	}
	if err := s.DownloadMissing(ctx, startYear); err != nil {
		return models.FlightSummary{}, err
	}
	files, err := s.YearFiles(startYear)
	if err != nil {
		return models.FlightSummary{}, err
	}
	if len(files) == 0 {
		return models.FlightSummary{}, fmt.Errorf("%w: no flight files for %d or later in %s", ErrMissingInput, startYear, s.sourceDir)
	}

	out, err := export.NewCSVWriter[models.EnrichedFlight](s.EnrichedPath())
	if err != nil {
		return models.FlightSummary{}, err
	}
	defer out.Abort()

	b := newSummaryBuilder()
	for _, f := range files {
		log.Printf("Service: Loading flights from %s\n", f.Path)
		start := time.Now()
		kept, dropped, skipped, err := s.loadFile(ctx, f.Path, whitelist, carriers, airports, out, b)
		if err != nil {
			return models.FlightSummary{}, err
		}
		b.sum.Dropped += dropped + skipped
		log.Printf("Service: %s: kept %d, dropped %d not whitelisted, skipped %d malformed (%s)\n",
			filepath.Base(f.Path), kept, dropped, skipped, time.Since(start).Round(time.Millisecond))
	}

	if err := out.Close(); err != nil {
		return models.FlightSummary{}, err
	}
	sum := b.summary()
	// Destinations are listed too: weather is fetched for both ends of a flight.
	if err := WriteLines(filepath.Join(s.outputDir, AirportIDsFile), sum.Airports, "\n"); err != nil {
		return sum, err
	}
	return sum, nil
}

func (s *FlightService) loadFile(ctx context.Context, path string, whitelist scraper.Whitelist,
	carriers models.CarrierDirectory, airports models.AirportDirectory,
	out *export.CSVWriter[models.EnrichedFlight], b *summaryBuilder) (kept, dropped, skipped int, err error) {
	cr, err := scraper.OpenChunkReader[models.FlightRecord](path, s.chunkSize)
	if err != nil {
		return 0, 0, 0, err
	}
	defer cr.Close()

	for {
		if err := ctx.Err(); err != nil {
			return kept, dropped, cr.Skipped, err
		}
		chunk, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return kept, dropped, cr.Skipped, fmt.Errorf("reading %s: %w", path, err)
		}

		enriched := make([]models.EnrichedFlight, 0, len(chunk))
		for _, rec := range chunk {
			if !whitelist.Contains(rec.Origin) || !whitelist.Contains(rec.Dest) {
				dropped++
				continue
			}
			enriched = append(enriched, Enrich(rec, carriers, airports))
			b.add(rec)
		}
		if err := out.Append(enriched); err != nil {
			return kept, dropped, cr.Skipped, err
		}
		kept += len(enriched)
	}
	return kept, dropped, cr.Skipped, nil
}

// ScanEnriched re-reads an enriched flight table and rebuilds its summary.
func ScanEnriched(ctx context.Context, path string, chunkSize int) (models.FlightSummary, error) {
	cr, err := scraper.OpenChunkReader[models.EnrichedFlight](path, chunkSize)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.FlightSummary{}, fmt.Errorf("%w: enriched flight table %s", ErrMissingInput, path)
		}
		return models.FlightSummary{}, err
	}
	defer cr.Close()

	b := newSummaryBuilder()
	for {
		if err := ctx.Err(); err != nil {
			return models.FlightSummary{}, err
		}
		chunk, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.FlightSummary{}, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, f := range chunk {
			b.add(f.FlightRecord)
		}
	}
	return b.summary(), nil
}

// WriteLines writes items joined by sep to path.
func WriteLines(path string, items []string, sep string) error {
	data := strings.Join(items, sep)
	if sep == "\n" && len(items) > 0 {
		data += "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
