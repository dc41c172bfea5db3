package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"

	"github.com/gewnthar/flightwx/models"
)

var (
	utcTimestamp   = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
	localTimestamp = &arrow.TimestampType{Unit: arrow.Microsecond}
)

type column struct {
	field  arrow.Field
	append func(b array.Builder, r *models.JoinedRecord)
}

func stringCol(name string, get func(*models.JoinedRecord) string) column {
	return column{
		field:  arrow.Field{Name: name, Type: arrow.BinaryTypes.String},
		append: func(b array.Builder, r *models.JoinedRecord) { b.(*array.StringBuilder).Append(get(r)) },
	}
}

func nullStringCol(name string, get func(*models.JoinedRecord) *string) column {
	return column{
		field: arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true},
		append: func(b array.Builder, r *models.JoinedRecord) {
			if v := get(r); v != nil {
				b.(*array.StringBuilder).Append(*v)
			} else {
				b.AppendNull()
			}
		},
	}
}

func floatCol(name string, get func(*models.JoinedRecord) *float64) column {
	return column{
		field: arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		append: func(b array.Builder, r *models.JoinedRecord) {
			if v := get(r); v != nil {
				b.(*array.Float64Builder).Append(*v)
			} else {
				b.AppendNull()
			}
		},
	}
}

// timeCol stores UTC instants as zoned timestamps and local ones as wall-clock timestamps.
func timeCol(name string, local bool, get func(*models.JoinedRecord) *models.Timestamp) column {
	typ := utcTimestamp
	if local {
		typ = localTimestamp
	}
	return column{
		field: arrow.Field{Name: name, Type: typ, Nullable: true},
		append: func(b array.Builder, r *models.JoinedRecord) {
			v := get(r)
			if v == nil {
				b.AppendNull()
				return
			}
			t := v.Time
			if local {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
			}
			b.(*array.TimestampBuilder).Append(arrow.Timestamp(t.UnixMicro()))
		},
	}
}

// joinedColumns is the output schema, in output column order.
var joinedColumns = []column{
	stringCol("FL_DATE", func(r *models.JoinedRecord) string { return r.FlightDate }),
	stringCol("ORIGIN", func(r *models.JoinedRecord) string { return r.Origin }),
	stringCol("DEST", func(r *models.JoinedRecord) string { return r.Dest }),
	stringCol("OP_CARRIER", func(r *models.JoinedRecord) string { return r.Carrier }),
	stringCol("OP_CARRIER_FL_NUM", func(r *models.JoinedRecord) string { return r.FlightNumber }),
	nullStringCol("OP_CARRIER_NAME", func(r *models.JoinedRecord) *string { return r.CarrierName }),
	nullStringCol("AIRPORT_NAME_ORIGIN", func(r *models.JoinedRecord) *string { return r.AirportNameOrigin }),
	nullStringCol("AIRPORT_NAME_DEST", func(r *models.JoinedRecord) *string { return r.AirportNameDest }),
	floatCol("CRS_DEP_TIME", func(r *models.JoinedRecord) *float64 { return r.CRSDepTime }),
	floatCol("DEP_TIME", func(r *models.JoinedRecord) *float64 { return r.DepTime }),
	floatCol("DEP_DELAY", func(r *models.JoinedRecord) *float64 { return r.DepDelay }),
	nullStringCol("DEP_DELAY_CATEGORY", func(r *models.JoinedRecord) *string { return r.DepDelayCategory }),
	floatCol("CANCELLED", func(r *models.JoinedRecord) *float64 { return r.Cancelled }),
	floatCol("DIVERTED", func(r *models.JoinedRecord) *float64 { return r.Diverted }),
	nullStringCol("CITY_ORIGIN", func(r *models.JoinedRecord) *string { return r.CityOrigin }),
	nullStringCol("STATE_ORIGIN", func(r *models.JoinedRecord) *string { return r.StateOrigin }),
	nullStringCol("COUNTRY_ORIGIN", func(r *models.JoinedRecord) *string { return r.CountryOrigin }),
	floatCol("LONGITUDE_ORIGIN", func(r *models.JoinedRecord) *float64 { return r.LongitudeOrigin }),
	floatCol("LATITUDE_ORIGIN", func(r *models.JoinedRecord) *float64 { return r.LatitudeOrigin }),
	nullStringCol("TIME_ZONE_DEST", func(r *models.JoinedRecord) *string { return r.TimeZoneDest }),
	nullStringCol("TIME_ZONE_ORIGIN", func(r *models.JoinedRecord) *string { return r.TimeZoneOrigin }),
	timeCol("DEP_TIME_LOCAL", true, func(r *models.JoinedRecord) *models.Timestamp { return r.DepTimeLocal }),
	timeCol("DEP_TIME_UTC", false, func(r *models.JoinedRecord) *models.Timestamp { return r.DepTimeUTC }),
	timeCol("ARR_TIME_LOCAL", true, func(r *models.JoinedRecord) *models.Timestamp { return r.ArrTimeLocal }),
	timeCol("ARR_TIME_UTC", false, func(r *models.JoinedRecord) *models.Timestamp { return r.ArrTimeUTC }),
	floatCol("ARR_TIME", func(r *models.JoinedRecord) *float64 { return r.ArrTime }),
	floatCol("ARR_DELAY", func(r *models.JoinedRecord) *float64 { return r.ArrDelay }),
	nullStringCol("ARR_DELAY_CATEGORY", func(r *models.JoinedRecord) *string { return r.ArrDelayCategory }),
	nullStringCol("CITY_DEST", func(r *models.JoinedRecord) *string { return r.CityDest }),
	nullStringCol("STATE_DEST", func(r *models.JoinedRecord) *string { return r.StateDest }),
	nullStringCol("COUNTRY_DEST", func(r *models.JoinedRecord) *string { return r.CountryDest }),
	floatCol("LONGITUDE_DEST", func(r *models.JoinedRecord) *float64 { return r.LongitudeDest }),
	floatCol("LATITUDE_DEST", func(r *models.JoinedRecord) *float64 { return r.LatitudeDest }),
	floatCol("ORIGIN_TEMPERATURE_DEG_C", func(r *models.JoinedRecord) *float64 { return r.OriginTemperature }),
	floatCol("ORIGIN_WIND_SPEED_KM_PER_HR", func(r *models.JoinedRecord) *float64 { return r.OriginWindSpeed }),
	floatCol("ORIGIN_RELATIVE_HUMIDITY", func(r *models.JoinedRecord) *float64 { return r.OriginHumidity }),
	floatCol("ORIGIN_PRECIPITATION", func(r *models.JoinedRecord) *float64 { return r.OriginPrecipitation }),
	nullStringCol("ORIGIN_WEATHER_CONDITION", func(r *models.JoinedRecord) *string { return r.OriginCondition }),
	floatCol("DEST_TEMPERATURE_DEG_C", func(r *models.JoinedRecord) *float64 { return r.DestTemperature }),
	floatCol("DEST_WIND_SPEED_KM_PER_HR", func(r *models.JoinedRecord) *float64 { return r.DestWindSpeed }),
	floatCol("DEST_RELATIVE_HUMIDITY", func(r *models.JoinedRecord) *float64 { return r.DestHumidity }),
	floatCol("DEST_PRECIPITATION", func(r *models.JoinedRecord) *float64 { return r.DestPrecipitation }),
	nullStringCol("DEST_WEATHER_CONDITION", func(r *models.JoinedRecord) *string { return r.DestCondition }),
}

// JoinedSchema returns the arrow schema of the joined table.
func JoinedSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(joinedColumns))
	for i, c := range joinedColumns {
		fields[i] = c.field
	}
	return arrow.NewSchema(fields, nil)
}

// ParquetSink writes the joined table to a single snappy-compressed Parquet file,
// one row group per chunk.
type ParquetSink struct {
	path    string
	file    *os.File
	writer  *pqarrow.FileWriter
	builder *array.RecordBuilder
	rows    int
}

func NewParquetSink(path string) (*ParquetSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	schema := JoinedSchema()
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithCreatedBy("flightwx"),
	)
	w, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to create parquet writer for %s: %w", path, err)
	}

	return &ParquetSink{
		path:    path,
		file:    f,
		writer:  w,
		builder: array.NewRecordBuilder(memory.DefaultAllocator, schema),
	}, nil
}

func (s *ParquetSink) Write(ctx context.Context, rows []models.JoinedRecord) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for i := range rows {
		for c, col := range joinedColumns {
			col.append(s.builder.Field(c), &rows[i])
		}
	}
	rec := s.builder.NewRecord()
	defer rec.Release()

	if err := s.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write row group to %s: %w", s.path, err)
	}
	s.rows += len(rows)
	return nil
}

// Rows returns how many rows were written.
func (s *ParquetSink) Rows() int { return s.rows }

// Close writes the footer and moves the file into place.
func (s *ParquetSink) Close() error {
	if s.writer == nil {
		return nil
	}
	defer s.builder.Release()
	tmp := s.file.Name()
	defer os.Remove(tmp)

	err := s.writer.Close()
	s.writer = nil
	// The writer may already have closed the file.
	s.file.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize %s: %w", s.path, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", s.path, err)
	}
	return nil
}

// Abort drops the temp file without moving it into place.
func (s *ParquetSink) Abort() {
	if s.writer == nil {
		return
	}
	s.writer.Close()
	s.writer = nil
	s.file.Close()
	os.Remove(s.file.Name())
	s.builder.Release()
}
