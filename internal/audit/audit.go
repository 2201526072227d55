// Package audit provides the append-only SQLite audit log for mira.
//
// Two tables hold the trail:
// - inputs: one row per ingested item (source, arrival type, format, intent)
// - extracted_fields: one row per extraction call, referencing its input
//
// Rows are only ever inserted. Identifiers come from SQLite AUTOINCREMENT,
// so they are unique and strictly increasing.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.mira/audit.db"

// ErrNotFound is returned when an input id is unknown to the log.
var ErrNotFound = errors.New("audit: input not found")

// InputEvent is one ingested item.
type InputEvent struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	Type      string    `json:"type"`
	Format    string    `json:"format"`
	Intent    string    `json:"intent"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractedFieldsEvent is the output of one extraction call.
type ExtractedFieldsEvent struct {
	ID            int64           `json:"id"`
	InputID       int64           `json:"input_id"`
	Agent         string          `json:"agent"`
	Payload       json.RawMessage `json:"data"`
	CorrelationID string          `json:"thread_id"`
}

// Config holds configuration for Open.
type Config struct {
	DBPath        string
	BusyTimeoutMs int
}

// Store is the audit log on SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the audit database and applies the schema.
// Pass ":memory:" for an in-memory database (testing).
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	if cfg.BusyTimeoutMs <= 0 {
		cfg.BusyTimeoutMs = 5000
	}

	memory := cfg.DBPath == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(cfg.DBPath, cfg.BusyTimeoutMs, memory))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if memory {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// dsn applies pragmas through the modernc _pragma parameter so that every
// pooled connection gets them, not just the first one.
func dsn(path string, busyMs int, memory bool) string {
	pragmas := []string{
		"foreign_keys(1)",
		fmt.Sprintf("busy_timeout(%d)", busyMs),
	}
	if !memory {
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}
	var q []string
	for _, p := range pragmas {
		q = append(q, "_pragma="+p)
	}
	if memory {
		return ":memory:?" + strings.Join(q, "&")
	}
	return "file:" + path + "?" + strings.Join(q, "&")
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LogInput records a new InputEvent and returns its identifier. The
// timestamp is assigned here and never changes.
func (s *Store) LogInput(ctx context.Context, source, inputType, format, intent string) (int64, error) {
	now := time.Now().UTC()
	res, err := execRetry(ctx, s.db,
		`INSERT INTO inputs (source, type, timestamp, format, intent) VALUES (?, ?, ?, ?, ?)`,
		source, inputType, now.Format(time.RFC3339Nano), format, intent,
	)
	if err != nil {
		return 0, fmt.Errorf("logging input: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting input id: %w", err)
	}
	return id, nil
}

// InputTimestamp returns the log time of an input, or ErrNotFound.
func (s *Store) InputTimestamp(ctx context.Context, inputID int64) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT timestamp FROM inputs WHERE id = ?`, inputID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying input timestamp: %w", err)
	}
	return parseTimestamp(raw)
}

// LogExtractedFields appends an ExtractedFieldsEvent. The payload is stored
// as JSON text. The input must already exist.
func (s *Store) LogExtractedFields(ctx context.Context, inputID int64, agent string, payload any, correlationID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding extracted fields: %w", err)
	}
	if _, err := execRetry(ctx, s.db,
		`INSERT INTO extracted_fields (input_id, agent, data, thread_id) VALUES (?, ?, ?, ?)`,
		inputID, agent, string(data), correlationID,
	); err != nil {
		return fmt.Errorf("logging extracted fields for input %d: %w", inputID, err)
	}
	return nil
}

// GetInput returns the InputEvent with the given id, or ErrNotFound.
func (s *Store) GetInput(ctx context.Context, inputID int64) (*InputEvent, error) {
	var e InputEvent
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, type, timestamp, format, intent FROM inputs WHERE id = ?`, inputID,
	).Scan(&e.ID, &e.Source, &e.Type, &ts, &e.Format, &e.Intent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying input: %w", err)
	}
	if e.Timestamp, err = parseTimestamp(ts); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetExtractedFields returns every ExtractedFieldsEvent for an input in
// insertion order. An unknown input yields an empty slice.
func (s *Store) GetExtractedFields(ctx context.Context, inputID int64) ([]*ExtractedFieldsEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input_id, agent, data, COALESCE(thread_id, '')
		 FROM extracted_fields WHERE input_id = ? ORDER BY id ASC`, inputID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying extracted fields: %w", err)
	}
	defer rows.Close()

	events := make([]*ExtractedFieldsEvent, 0, 1)
	for rows.Next() {
		var e ExtractedFieldsEvent
		var data string
		if err := rows.Scan(&e.ID, &e.InputID, &e.Agent, &data, &e.CorrelationID); err != nil {
			return nil, fmt.Errorf("scanning extracted fields: %w", err)
		}
		e.Payload = json.RawMessage(data)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Stats reports row counts for both tables.
func (s *Store) Stats(ctx context.Context) (inputs, extracted int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inputs`).Scan(&inputs); err != nil {
		return 0, 0, fmt.Errorf("counting inputs: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extracted_fields`).Scan(&extracted); err != nil {
		return 0, 0, fmt.Errorf("counting extracted fields: %w", err)
	}
	return inputs, extracted, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored timestamp %q: %w", raw, err)
	}
	return ts, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
