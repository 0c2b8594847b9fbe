// Package sqlstore persists decisions and overrides in SQLite or Postgres.
// Each row keeps the indexed columns next to the JSON encoded record.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/kilianp07/consolidation/core/model"
	"github.com/kilianp07/consolidation/core/store"
)

type dialect int

const (
	sqlite dialect = iota
	postgres
)

// DB owns the connection pool shared by DecisionStore and OverrideStore.
type DB struct {
	db      *sql.DB
	dialect dialect
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	parcel_id TEXT NOT NULL,
	shadow_mode INTEGER NOT NULL,
	requested_at BIGINT NOT NULL,
	version BIGINT NOT NULL,
	record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS decisions_parcel_idx ON decisions (parcel_id, requested_at);
CREATE TABLE IF NOT EXISTS overrides (
	id TEXT PRIMARY KEY,
	decision_id TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	version BIGINT NOT NULL,
	record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS overrides_decision_idx ON overrides (decision_id);
`

// OpenSQLite opens or creates the database at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return initDB(ctx, db, sqlite)
}

// OpenPostgres connects through the pgx stdlib driver and ensures the
// schema.
func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return initDB(ctx, db, postgres)
}

func initDB(ctx context.Context, db *sql.DB, d dialect) (*DB, error) {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &DB{db: db, dialect: d}, nil
}

// Close closes the pool.
func (d *DB) Close() error { return d.db.Close() }

// Decisions returns a DecisionStore on this database.
func (d *DB) Decisions() *DecisionStore { return &DecisionStore{d} }

// Overrides returns an OverrideStore on this database.
func (d *DB) Overrides() *OverrideStore { return &OverrideStore{d} }

// bind rewrites ? placeholders for Postgres.
func (d *DB) bind(q string) string {
	if d.dialect != postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *DB) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, d.bind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// casResult maps a zero-row update to ErrNotFound or ErrConflict.
func (d *DB) casResult(ctx context.Context, table, id string, affected int64) error {
	if affected > 0 {
		return nil
	}
	var one int
	err := d.db.QueryRowContext(ctx, d.bind("SELECT 1 FROM "+table+" WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrConflict
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DecisionStore implements store.DecisionStore.
type DecisionStore struct{ d *DB }

func (s *DecisionStore) Create(ctx context.Context, rec model.DecisionRecord) (model.DecisionRecord, error) {
	rec.Version = 1
	data, err := json.Marshal(rec)
	if err != nil {
		return model.DecisionRecord{}, err
	}
	n, err := s.d.exec(ctx, `INSERT INTO decisions (id, parcel_id, shadow_mode, requested_at, version, record)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.ParcelID, boolInt(rec.ShadowMode), rec.RequestedAt.UnixNano(), rec.Version, string(data))
	if err != nil {
		return model.DecisionRecord{}, fmt.Errorf("insert decision: %w", err)
	}
	if n == 0 {
		return model.DecisionRecord{}, store.ErrDuplicate
	}
	return rec, nil
}

func (s *DecisionStore) FindByID(ctx context.Context, id string) (model.DecisionRecord, error) {
	var data string
	var version int64
	err := s.d.db.QueryRowContext(ctx, s.d.bind(`SELECT record, version FROM decisions WHERE id = ?`), id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DecisionRecord{}, store.ErrNotFound
	}
	if err != nil {
		return model.DecisionRecord{}, err
	}
	return decodeDecision(data, version)
}

func (s *DecisionStore) Find(ctx context.Context, f store.DecisionFilter) ([]model.DecisionRecord, error) {
	var args []any
	q := `SELECT record, version FROM decisions WHERE 1=1`
	if f.ParcelID != "" {
		q += ` AND parcel_id = ?`
		args = append(args, f.ParcelID)
	}
	if f.ShadowMode != nil {
		q += ` AND shadow_mode = ?`
		args = append(args, boolInt(*f.ShadowMode))
	}
	if !f.Since.IsZero() {
		q += ` AND requested_at >= ?`
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		q += ` AND requested_at <= ?`
		args = append(args, f.Until.UnixNano())
	}
	q += ` ORDER BY requested_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.d.db.QueryContext(ctx, s.d.bind(q), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]model.DecisionRecord, 0)
	for rows.Next() {
		var data string
		var version int64
		if err := rows.Scan(&data, &version); err != nil {
			return nil, err
		}
		rec, err := decodeDecision(data, version)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DecisionStore) Update(ctx context.Context, rec model.DecisionRecord) (model.DecisionRecord, error) {
	expected := rec.Version
	rec.Version++
	data, err := json.Marshal(rec)
	if err != nil {
		return model.DecisionRecord{}, err
	}
	n, err := s.d.exec(ctx, `UPDATE decisions SET record = ?, version = ? WHERE id = ? AND version = ?`,
		string(data), rec.Version, rec.ID, expected)
	if err != nil {
		return model.DecisionRecord{}, fmt.Errorf("update decision: %w", err)
	}
	if err := s.d.casResult(ctx, "decisions", rec.ID, n); err != nil {
		return model.DecisionRecord{}, err
	}
	return rec, nil
}

func decodeDecision(data string, version int64) (model.DecisionRecord, error) {
	var rec model.DecisionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return model.DecisionRecord{}, fmt.Errorf("unmarshal decision: %w", err)
	}
	rec.Version = version
	return rec, nil
}

// OverrideStore implements store.OverrideStore.
type OverrideStore struct{ d *DB }

func (s *OverrideStore) Create(ctx context.Context, rec model.OverrideRecord) (model.OverrideRecord, error) {
	rec.Version = 1
	data, err := json.Marshal(rec)
	if err != nil {
		return model.OverrideRecord{}, err
	}
	n, err := s.d.exec(ctx, `INSERT INTO overrides (id, decision_id, status, created_at, version, record)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.DecisionID, string(rec.Status), rec.CreatedAt.UnixNano(), rec.Version, string(data))
	if err != nil {
		return model.OverrideRecord{}, fmt.Errorf("insert override: %w", err)
	}
	if n == 0 {
		return model.OverrideRecord{}, store.ErrDuplicate
	}
	return rec, nil
}

func (s *OverrideStore) FindByID(ctx context.Context, id string) (model.OverrideRecord, error) {
	var data string
	var version int64
	err := s.d.db.QueryRowContext(ctx, s.d.bind(`SELECT record, version FROM overrides WHERE id = ?`), id).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OverrideRecord{}, store.ErrNotFound
	}
	if err != nil {
		return model.OverrideRecord{}, err
	}
	return decodeOverride(data, version)
}

func (s *OverrideStore) Find(ctx context.Context, f store.OverrideFilter) ([]model.OverrideRecord, error) {
	var args []any
	q := `SELECT record, version FROM overrides WHERE 1=1`
	if f.DecisionID != "" {
		q += ` AND decision_id = ?`
		args = append(args, f.DecisionID)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := s.d.db.QueryContext(ctx, s.d.bind(q), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]model.OverrideRecord, 0)
	for rows.Next() {
		var data string
		var version int64
		if err := rows.Scan(&data, &version); err != nil {
			return nil, err
		}
		rec, err := decodeOverride(data, version)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *OverrideStore) Update(ctx context.Context, rec model.OverrideRecord) (model.OverrideRecord, error) {
	expected := rec.Version
	rec.Version++
	data, err := json.Marshal(rec)
	if err != nil {
		return model.OverrideRecord{}, err
	}
	n, err := s.d.exec(ctx, `UPDATE overrides SET record = ?, status = ?, version = ? WHERE id = ? AND version = ?`,
		string(data), string(rec.Status), rec.Version, rec.ID, expected)
	if err != nil {
		return model.OverrideRecord{}, fmt.Errorf("update override: %w", err)
	}
	if err := s.d.casResult(ctx, "overrides", rec.ID, n); err != nil {
		return model.OverrideRecord{}, err
	}
	return rec, nil
}

func decodeOverride(data string, version int64) (model.OverrideRecord, error) {
	var rec model.OverrideRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return model.OverrideRecord{}, fmt.Errorf("unmarshal override: %w", err)
	}
	rec.Version = version
	return rec, nil
}
