package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/apache/arrow/go/v17/arrow"

	"github.com/gewnthar/flightwx/config"
	"github.com/gewnthar/flightwx/models"
)

// ClickHouseSink inserts the joined table into a MergeTree table, one batch per chunk.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
	rows  int
}

// OpenClickHouseSink connects and creates the table when it does not exist.
func OpenClickHouseSink(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	s := &ClickHouseSink{conn: conn, table: cfg.Table}
	if err := conn.Exec(ctx, s.createTableSQL()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create table %s: %w", cfg.Table, err)
	}
	return s, nil
}

func (s *ClickHouseSink) createTableSQL() string {
	cols := make([]string, len(joinedColumns))
	for i, c := range joinedColumns {
		cols[i] = fmt.Sprintf("\t%s %s", c.field.Name, clickHouseType(c.field))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)\nENGINE = MergeTree()\nORDER BY (FL_DATE, ORIGIN, DEST, OP_CARRIER, OP_CARRIER_FL_NUM)",
		s.table, strings.Join(cols, ",\n"))
}

func clickHouseType(f arrow.Field) string {
	var t string
	switch f.Type.ID() {
	case arrow.FLOAT64:
		t = "Float64"
	case arrow.TIMESTAMP:
		t = "DateTime"
	default:
		t = "String"
	}
	if f.Nullable {
		return "Nullable(" + t + ")"
	}
	return t
}

func (s *ClickHouseSink) insertSQL() string {
	names := make([]string, len(joinedColumns))
	for i, c := range joinedColumns {
		names[i] = c.field.Name
	}
	return fmt.Sprintf("INSERT INTO %s (%s)", s.table, strings.Join(names, ", "))
}

func (s *ClickHouseSink) Write(ctx context.Context, rows []models.JoinedRecord) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, s.insertSQL())
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for i := range rows {
		if err := batch.Append(clickHouseValues(&rows[i])...); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	s.rows += len(rows)
	return nil
}

// Abort closes the connection. Batches already sent stay in the table.
func (s *ClickHouseSink) Abort() {
	s.conn.Close()
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}

func wallClock(t *models.Timestamp) *time.Time {
	if t == nil {
		return nil
	}
	w := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	return &w
}

// clickHouseValues returns the row in joinedColumns order.
func clickHouseValues(r *models.JoinedRecord) []any {
	return []any{
		r.FlightDate, r.Origin, r.Dest, r.Carrier, r.FlightNumber,
		r.CarrierName, r.AirportNameOrigin, r.AirportNameDest,
		r.CRSDepTime, r.DepTime, r.DepDelay, r.DepDelayCategory,
		r.Cancelled, r.Diverted,
		r.CityOrigin, r.StateOrigin, r.CountryOrigin, r.LongitudeOrigin, r.LatitudeOrigin,
		r.TimeZoneDest, r.TimeZoneOrigin,
		wallClock(r.DepTimeLocal), wallClock(r.DepTimeUTC), wallClock(r.ArrTimeLocal), wallClock(r.ArrTimeUTC),
		r.ArrTime, r.ArrDelay, r.ArrDelayCategory,
		r.CityDest, r.StateDest, r.CountryDest, r.LongitudeDest, r.LatitudeDest,
		r.OriginTemperature, r.OriginWindSpeed, r.OriginHumidity, r.OriginPrecipitation, r.OriginCondition,
		r.DestTemperature, r.DestWindSpeed, r.DestHumidity, r.DestPrecipitation, r.DestCondition,
	}
}
