package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	_ "modernc.org/sqlite"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

// Store backends.
const (
	BackendSQLCipher = "sqlcipher"
	BackendSQLite    = "sqlite"
)

const (
	storeDBName   = "discipline.db"
	schemaVersion = 2

	keyStreak      = "streak"
	keyBrotherhood = "brotherhood"
)

// SQLStore implements domain.Store over database/sql.
// Entities are stored as schema-versioned blobs next to the columns queries filter on.
type SQLStore struct {
	db     *sql.DB
	dbPath string
}

// OpenStore opens the configured backend under dataDir, creating the encryption key on first use.
func OpenStore(ctx context.Context, backend, path, dataDir string, keys domain.KeyProvider) (*SQLStore, error) {
	if path == "" {
		path = filepath.Join(dataDir, storeDBName)
	}

	var (
		s   *SQLStore
		err error
	)
	switch backend {
	case BackendSQLCipher, "":
		key, kerr := EnsureKey(keys)
		if kerr != nil {
			return nil, fmt.Errorf("failed to load store key: %w", kerr)
		}
		s, err = NewEncryptedStore(path, key)
	case BackendSQLite:
		s, err = NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// NewEncryptedStore opens (or creates) a SQLCipher database at path.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(path string, key []byte) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", path, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify encryption works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}
	return &SQLStore{db: db, dbPath: path}, nil
}

// NewSQLiteStore opens (or creates) an unencrypted SQLite database. ":memory:" is accepted.
func NewSQLiteStore(path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &SQLStore{db: db, dbPath: path}, nil
}

// NewSQLStoreWithDB wraps an existing handle. Used by tests.
func NewSQLStoreWithDB(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the schema if it doesn't exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		presented_at INTEGER NOT NULL,
		resolved_at INTEGER NOT NULL DEFAULT 0,
		payload BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS summaries (
		date TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify(err)
	}
	if err := s.addResolvedAt(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprint(schemaVersion))
	return classify(err)
}

// addResolvedAt upgrades version 1 databases, which only indexed records by presented_at.
// Existing rows take presented_at as their resolution time.
func (s *SQLStore) addResolvedAt(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('records') WHERE name = 'resolved_at'`).Scan(&n)
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE records ADD COLUMN resolved_at INTEGER NOT NULL DEFAULT 0`); err != nil {
			return classify(err)
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE records SET resolved_at = presented_at`); err != nil {
			return classify(err)
		}
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS records_resolved_at ON records (resolved_at)`)
	return classify(err)
}

// SaveRecord inserts a closed record. Re-saving the same ID is a no-op.
func (s *SQLStore) SaveRecord(ctx context.Context, r domain.PunishmentRecord) error {
	payload, err := domain.EncodeRecord(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO records (id, presented_at, resolved_at, payload) VALUES (?, ?, ?, ?)`,
		r.ID, r.PresentedAt.UnixMilli(), r.ResolvedAt.UnixMilli(), payload)
	return classify(err)
}

// ListRecords returns records resolved in [from, to), oldest first.
func (s *SQLStore) ListRecords(ctx context.Context, from, to time.Time) ([]domain.PunishmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE resolved_at >= ? AND resolved_at < ? ORDER BY resolved_at, id`,
		from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.PunishmentRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, classify(err)
		}
		r, err := domain.DecodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

// SaveSummary upserts a day summary.
func (s *SQLStore) SaveSummary(ctx context.Context, sum domain.DaySummary) error {
	payload, err := domain.EncodeSummary(sum)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO summaries (date, payload) VALUES (?, ?)`,
		sum.Date, payload)
	return classify(err)
}

// GetSummary returns the summary for a YYYY-MM-DD date.
func (s *SQLStore) GetSummary(ctx context.Context, date string) (*domain.DaySummary, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM summaries WHERE date = ?`, date).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	sum, err := domain.DecodeSummary(payload)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// ListSummaries returns summaries for dates in [from, to] inclusive, oldest first.
func (s *SQLStore) ListSummaries(ctx context.Context, from, to string) ([]domain.DaySummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM summaries WHERE date >= ? AND date <= ? ORDER BY date`, from, to)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.DaySummary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, classify(err)
		}
		sum, err := domain.DecodeSummary(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, classify(rows.Err())
}

// SaveStreak persists streak bookkeeping.
func (s *SQLStore) SaveStreak(ctx context.Context, st domain.StreakState) error {
	payload, err := domain.EncodeStreak(st)
	if err != nil {
		return err
	}
	return s.putState(ctx, keyStreak, payload)
}

// LoadStreak returns the persisted streak, or a zero state.
func (s *SQLStore) LoadStreak(ctx context.Context) (domain.StreakState, error) {
	payload, err := s.getState(ctx, keyStreak)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StreakState{}, nil
	}
	if err != nil {
		return domain.StreakState{}, err
	}
	return domain.DecodeStreak(payload)
}

// SaveBrotherhood persists the partner link state.
func (s *SQLStore) SaveBrotherhood(ctx context.Context, st domain.BrotherhoodState) error {
	payload, err := domain.EncodeBrotherhood(st)
	if err != nil {
		return err
	}
	return s.putState(ctx, keyBrotherhood, payload)
}

// LoadBrotherhood returns the persisted partner link state.
func (s *SQLStore) LoadBrotherhood(ctx context.Context) (*domain.BrotherhoodState, error) {
	payload, err := s.getState(ctx, keyBrotherhood)
	if err != nil {
		return nil, err
	}
	st, err := domain.DecodeBrotherhood(payload)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *SQLStore) putState(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state (key, payload, updated_at) VALUES (?, ?, ?)`,
		key, payload, time.Now().Unix())
	return classify(err)
}

func (s *SQLStore) getState(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("state %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	return payload, nil
}

// Path returns the database file path.
func (s *SQLStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// classify marks errors that mean the store is gone rather than busy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

// Ensure SQLStore implements domain.Store.
var _ domain.Store = (*SQLStore)(nil)
