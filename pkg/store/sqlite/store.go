// ABOUTME: SQLite-backed annotation store using the pure Go modernc driver
// ABOUTME: Owns the schema, connection lifecycle and operation instrumentation

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nainya/annostore/internal/logger"
	"github.com/nainya/annostore/internal/metrics"
	"github.com/nainya/annostore/pkg/model"
	"github.com/nainya/annostore/pkg/store"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ store.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS coders (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '#000000',
	permissions INTEGER NOT NULL DEFAULT 0,
	color_by_coder INTEGER NOT NULL DEFAULT 0,
	popup_width INTEGER NOT NULL DEFAULT 300,
	popup_autocomplete INTEGER NOT NULL DEFAULT 1,
	popup_decoration INTEGER NOT NULL DEFAULT 0,
	font_size INTEGER NOT NULL DEFAULT 14
);
CREATE TABLE IF NOT EXISTS coder_relations (
	coder_id INTEGER NOT NULL REFERENCES coders(id) ON DELETE CASCADE,
	other_coder_id INTEGER NOT NULL REFERENCES coders(id) ON DELETE CASCADE,
	view_statements INTEGER NOT NULL DEFAULT 1,
	edit_statements INTEGER NOT NULL DEFAULT 1,
	view_documents INTEGER NOT NULL DEFAULT 1,
	edit_documents INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (coder_id, other_coder_id)
);
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	text TEXT NOT NULL,
	coder_id INTEGER NOT NULL REFERENCES coders(id),
	author TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	section TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	date INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_documents_coder ON documents(coder_id);
CREATE TABLE IF NOT EXISTS statement_types (
	id INTEGER PRIMARY KEY,
	label TEXT NOT NULL UNIQUE,
	color TEXT NOT NULL DEFAULT '#000000'
);
CREATE TABLE IF NOT EXISTS variables (
	id INTEGER PRIMARY KEY,
	statement_type_id INTEGER NOT NULL REFERENCES statement_types(id) ON DELETE CASCADE,
	variable TEXT NOT NULL,
	data_type TEXT NOT NULL,
	position INTEGER NOT NULL,
	UNIQUE (statement_type_id, variable)
);
CREATE TABLE IF NOT EXISTS statements (
	id INTEGER PRIMARY KEY,
	statement_type_id INTEGER NOT NULL REFERENCES statement_types(id),
	document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	start INTEGER NOT NULL,
	stop INTEGER NOT NULL,
	coder_id INTEGER NOT NULL REFERENCES coders(id),
	CHECK (stop > start)
);
CREATE INDEX IF NOT EXISTS idx_statements_document ON statements(document_id);
CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY,
	variable_id INTEGER NOT NULL REFERENCES variables(id) ON DELETE CASCADE,
	value TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '#000000',
	parent_id INTEGER NOT NULL,
	UNIQUE (variable_id, value)
);
CREATE TABLE IF NOT EXISTS attribute_values (
	entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	attribute TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (entity_id, attribute)
);
CREATE TABLE IF NOT EXISTS data_short_text (
	statement_id INTEGER NOT NULL REFERENCES statements(id) ON DELETE CASCADE,
	variable_id INTEGER NOT NULL REFERENCES variables(id) ON DELETE CASCADE,
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	PRIMARY KEY (statement_id, variable_id)
);
CREATE TABLE IF NOT EXISTS data_long_text (
	statement_id INTEGER NOT NULL REFERENCES statements(id) ON DELETE CASCADE,
	variable_id INTEGER NOT NULL REFERENCES variables(id) ON DELETE CASCADE,
	value TEXT NOT NULL,
	PRIMARY KEY (statement_id, variable_id)
);
CREATE TABLE IF NOT EXISTS data_integer (
	statement_id INTEGER NOT NULL REFERENCES statements(id) ON DELETE CASCADE,
	variable_id INTEGER NOT NULL REFERENCES variables(id) ON DELETE CASCADE,
	value INTEGER NOT NULL,
	PRIMARY KEY (statement_id, variable_id)
);
CREATE TABLE IF NOT EXISTS data_boolean (
	statement_id INTEGER NOT NULL REFERENCES statements(id) ON DELETE CASCADE,
	variable_id INTEGER NOT NULL REFERENCES variables(id) ON DELETE CASCADE,
	value INTEGER NOT NULL,
	PRIMARY KEY (statement_id, variable_id)
);
CREATE TABLE IF NOT EXISTS regexes (
	label TEXT PRIMARY KEY,
	color TEXT NOT NULL DEFAULT '#000000'
);
`

const activeCoderKey = "active_coder"

// Store implements store.Store on a single SQLite database file
type Store struct {
	db      *sql.DB
	path    string
	log     *logger.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the database at path and applies the schema.
// log and m may be nil.
func Open(path string, log *logger.Logger, m *metrics.Metrics) (*Store, error) {
	if path == "" {
		path = "annostore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, storageErr("create dirs", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}

	s := &Store{db: db, path: path, log: log, metrics: m}

	start := time.Now()
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		s.observe("migrate", start, 0, err)
		return nil, storageErr("apply schema", err)
	}
	s.observe("migrate", start, 0, nil)

	s.log.DbLogger("open").Info("database ready").Str("path", path).Send()
	return s, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database; repeated calls return the first result
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if err := s.db.Close(); err != nil {
			s.closeErr = storageErr("close", err)
		}
	})
	return s.closeErr
}

// observe records the duration and outcome of a database operation
func (s *Store) observe(op string, start time.Time, n int, err error) {
	d := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDbOperation(op, status, d)
	s.log.LogDbOperation(op, d, n, err)
}

// storageErr wraps a driver failure so callers can match model.ErrStorage
func storageErr(op string, err error) error {
	if errors.Is(err, model.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", model.ErrStorage, op, err)
}

// inClause returns "?,?,?" and the matching arguments
func inClause(ids []int) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ","), args
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
