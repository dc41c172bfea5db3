// database/sql_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gewnthar/flightwx/models"
)

type dialect struct {
	name string
	// fill renders the update assignment that sets col only while the stored value is NULL.
	fill     func(col string) string
	conflict string
	schema   []string
}

var sqliteDialect = dialect{
	name:     "sqlite",
	fill:     func(col string) string { return fmt.Sprintf("%s = COALESCE(%s, excluded.%s)", col, col, col) },
	conflict: "ON CONFLICT(code) DO UPDATE SET ",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS airports (
			code TEXT PRIMARY KEY,
			icao TEXT, name TEXT, latitude REAL, longitude REAL, time_zone TEXT,
			city TEXT, state TEXT, country TEXT, station_id TEXT)`,
		`CREATE TABLE IF NOT EXISTS carriers (code TEXT PRIMARY KEY, carrier TEXT)`,
	},
}

var mysqlDialect = dialect{
	name:     "mysql",
	fill:     func(col string) string { return fmt.Sprintf("%s = COALESCE(%s, VALUES(%s))", col, col, col) },
	conflict: "ON DUPLICATE KEY UPDATE ",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS airports (
			code VARCHAR(8) PRIMARY KEY,
			icao VARCHAR(8), name VARCHAR(255), latitude DOUBLE, longitude DOUBLE, time_zone VARCHAR(64),
			city VARCHAR(255), state VARCHAR(255), country VARCHAR(255), station_id VARCHAR(16))`,
		`CREATE TABLE IF NOT EXISTS carriers (code VARCHAR(8) PRIMARY KEY, carrier VARCHAR(255))`,
	},
}

var airportColumns = []string{"code", "icao", "name", "latitude", "longitude", "time_zone", "city", "state", "country", "station_id"}

// SQLStore is the LookupStore over SQLite or MySQL. Every MergeFill runs in one
// transaction, so Persist has nothing left to do.
type SQLStore struct {
	db      *sql.DB
	dialect dialect

	upsertAirport string
	upsertCarrier string
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}

	fills := make([]string, 0, len(airportColumns)-1)
	for _, col := range airportColumns[1:] {
		fills = append(fills, d.fill(col))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(airportColumns)), ", ")

	return &SQLStore{
		db:      db,
		dialect: d,
		upsertAirport: fmt.Sprintf("INSERT INTO airports (%s) VALUES (%s) %s%s",
			strings.Join(airportColumns, ", "), placeholders, d.conflict, strings.Join(fills, ", ")),
		upsertCarrier: fmt.Sprintf("INSERT INTO carriers (code, carrier) VALUES (?, ?) %s%s",
			d.conflict, d.fill("carrier")),
	}, nil
}

func (s *SQLStore) LoadAirports(ctx context.Context) ([]models.AirportInfo, error) {
	query := fmt.Sprintf("SELECT %s FROM airports ORDER BY code", strings.Join(airportColumns, ", "))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying airports: %w", err)
	}
	defer rows.Close()

	var out []models.AirportInfo
	for rows.Next() {
		var a models.AirportInfo
		if err := rows.Scan(&a.Code, &a.ICAO, &a.Name, &a.Latitude, &a.Longitude, &a.TimeZone,
			&a.City, &a.State, &a.Country, &a.StationID); err != nil {
			return nil, fmt.Errorf("error scanning airport row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating airport rows: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrCacheMiss
	}
	return out, nil
}

func (s *SQLStore) MergeFillAirports(ctx context.Context, rows []models.AirportInfo) error {
	return s.inTx(ctx, s.upsertAirport, len(rows), func(stmt *sql.Stmt, i int) error {
		a := normalizeAirport(rows[i])
		_, err := stmt.ExecContext(ctx, a.Code, a.ICAO, a.Name, a.Latitude, a.Longitude, a.TimeZone,
			a.City, a.State, a.Country, a.StationID)
		return err
	})
}

func (s *SQLStore) LoadCarriers(ctx context.Context) ([]models.CarrierInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT code, carrier FROM carriers ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("error querying carriers: %w", err)
	}
	defer rows.Close()

	var out []models.CarrierInfo
	for rows.Next() {
		var c models.CarrierInfo
		if err := rows.Scan(&c.Code, &c.Carrier); err != nil {
			return nil, fmt.Errorf("error scanning carrier row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating carrier rows: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrCacheMiss
	}
	return out, nil
}

func (s *SQLStore) MergeFillCarriers(ctx context.Context, rows []models.CarrierInfo) error {
	return s.inTx(ctx, s.upsertCarrier, len(rows), func(stmt *sql.Stmt, i int) error {
		c := rows[i]
		var carrier models.CarrierInfo
		carrier.FillFrom(c)
		_, err := stmt.ExecContext(ctx, c.Code, carrier.Carrier)
		return err
	})
}

func (s *SQLStore) Persist(ctx context.Context) error { return nil }

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) inTx(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			return fmt.Errorf("upsert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// normalizeAirport turns empty strings into NULLs so COALESCE treats them as missing.
func normalizeAirport(in models.AirportInfo) models.AirportInfo {
	out := models.AirportInfo{Code: in.Code}
	out.FillFrom(in)
	return out
}
