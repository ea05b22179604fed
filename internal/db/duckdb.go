// Package db mirrors the district dataset into DuckDB for ad-hoc SQL.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rs/zerolog"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/joeblew999/plat-choropleth/internal/district"
)

// MaxRows caps the rows returned by Query.
const MaxRows = 1000

// ErrReadOnly is returned by Query for statements that could modify the
// database or run more than one statement.
var ErrReadOnly = errors.New("db: only single read-only statements are allowed")

// readOnlyKeywords are the statement kinds Query accepts.
var readOnlyKeywords = []string{"SELECT", "WITH", "FROM", "VALUES", "SHOW", "DESCRIBE", "SUMMARIZE", "EXPLAIN"}

// Config holds database configuration. An empty DataDir opens an in-memory
// database.
type Config struct {
	DataDir string
	DBName  string
}

// Store is a DuckDB database holding the districts table.
type Store struct {
	db      *sql.DB
	spatial bool
	log     zerolog.Logger
}

// Open opens the database and tries to load the spatial extension. Without
// it the districts table still carries WKT geometry.
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	dsn := ""
	if cfg.DataDir != "" {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "choropleth"
		}
		dsn = filepath.Join(dir, name+".duckdb")
	}

	sqlDB, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	s := &Store{db: sqlDB, log: log}

	if _, err := sqlDB.Exec("INSTALL spatial; LOAD spatial;"); err != nil {
		log.Debug().Err(err).Msg("duckdb spatial extension unavailable")
	} else {
		s.spatial = true
	}
	// Queries must not reach the filesystem or the network.
	if _, err := sqlDB.Exec("SET enable_external_access = false"); err != nil {
		log.Warn().Err(err).Msg("duckdb external access left enabled")
	}
	return s, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Spatial reports whether the spatial extension is loaded.
func (s *Store) Spatial() bool { return s.spatial }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SyncDistricts replaces the districts table with the collection's rows.
// Unknown populations are stored as NULL.
func (s *Store) SyncDistricts(ctx context.Context, c *district.Collection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `CREATE OR REPLACE TABLE districts (
		boro_cd VARCHAR,
		cd_name VARCHAR,
		pop2010 BIGINT,
		min_lng DOUBLE,
		min_lat DOUBLE,
		max_lng DOUBLE,
		max_lat DOUBLE,
		geom_wkt VARCHAR
	)`); err != nil {
		return fmt.Errorf("create districts table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO districts VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range c.Features() {
		var pop any
		if p := district.Population(f); !math.IsNaN(p) {
			pop = int64(p)
		}
		var geom any
		var minLng, minLat, maxLng, maxLat any
		if f.Geometry != nil {
			geom = wkt.MarshalString(f.Geometry)
			b := f.Geometry.Bound()
			minLng, minLat, maxLng, maxLat = b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()
		}
		if _, err := stmt.ExecContext(ctx,
			district.BoroCD(f), district.Name(f), pop,
			minLng, minLat, maxLng, maxLat, geom,
		); err != nil {
			return fmt.Errorf("insert district %s: %w", district.BoroCD(f), err)
		}
	}

	if s.spatial {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE districts ADD COLUMN geom GEOMETRY`); err != nil {
			return fmt.Errorf("add geometry column: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE districts SET geom = ST_GeomFromText(geom_wkt) WHERE geom_wkt IS NOT NULL`); err != nil {
			return fmt.Errorf("populate geometry column: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info().Int("rows", c.Len()).Bool("spatial", s.spatial).Msg("districts table synced")
	return nil
}

// Tables lists the tables in the database.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Result is a generic query result.
type Result struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool
}

// CheckReadOnly rejects anything but a single SELECT-like statement.
func CheckReadOnly(query string) error {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" || strings.Contains(q, ";") {
		return ErrReadOnly
	}
	q = strings.TrimLeft(q, "( \t\r\n")
	end := strings.IndexFunc(q, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z')
	})
	if end == -1 {
		end = len(q)
	}
	first := strings.ToUpper(q[:end])
	for _, kw := range readOnlyKeywords {
		if first == kw {
			return nil
		}
	}
	return ErrReadOnly
}

// Query runs a single read-only statement and returns at most MaxRows rows.
func (s *Store) Query(ctx context.Context, query string) (*Result, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		if len(res.Rows) == MaxRows {
			res.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = displayValue(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}

// displayValue turns driver values JSON cannot encode into strings.
func displayValue(v any) any {
	switch v := v.(type) {
	case []byte:
		return fmt.Sprintf("%x", v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	}
	return v
}
