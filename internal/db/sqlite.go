package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spacesedan/sentiharvest/internal/models"
	_ "modernc.org/sqlite"
)

var ErrInvalidRecord = errors.New("invalid record")

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	unit TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	full_text TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '[deleted]',
	created_utc INTEGER NOT NULL DEFAULT 0,
	score INTEGER NOT NULL DEFAULT 0,
	upvote_ratio REAL NOT NULL DEFAULT 0,
	num_comments INTEGER NOT NULL DEFAULT 0,
	url TEXT NOT NULL DEFAULT '',
	permalink TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	fetched_at INTEGER NOT NULL DEFAULT 0,
	sentiment_positive REAL NOT NULL DEFAULT 0,
	sentiment_neutral REAL NOT NULL DEFAULT 1,
	sentiment_negative REAL NOT NULL DEFAULT 0,
	sentiment_compound REAL NOT NULL DEFAULT 0,
	sentiment TEXT NOT NULL DEFAULT 'Neutral',
	text_length INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS replies (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL,
	unit TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '[deleted]',
	body TEXT NOT NULL DEFAULT '',
	score INTEGER NOT NULL DEFAULT 0,
	created_utc INTEGER NOT NULL DEFAULT 0,
	permalink TEXT NOT NULL DEFAULT '',
	depth INTEGER NOT NULL DEFAULT 0,
	fetched_at INTEGER NOT NULL DEFAULT 0,
	sentiment_positive REAL NOT NULL DEFAULT 0,
	sentiment_neutral REAL NOT NULL DEFAULT 1,
	sentiment_negative REAL NOT NULL DEFAULT 0,
	sentiment_compound REAL NOT NULL DEFAULT 0,
	sentiment TEXT NOT NULL DEFAULT 'Neutral',
	text_length INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_items_created_utc ON items(created_utc);
CREATE INDEX IF NOT EXISTS idx_items_unit ON items(unit);
CREATE INDEX IF NOT EXISTS idx_items_sentiment ON items(sentiment);
CREATE INDEX IF NOT EXISTS idx_replies_created_utc ON replies(created_utc);
CREATE INDEX IF NOT EXISTS idx_replies_unit ON replies(unit);
CREATE INDEX IF NOT EXISTS idx_replies_item_id ON replies(item_id);
CREATE INDEX IF NOT EXISTS idx_replies_sentiment ON replies(sentiment);
`

// Columns added after the first release. Older databases get them on open.
var optionalColumns = []struct {
	table, name, definition string
}{
	{"items", "sentiment_bucket", "TEXT"},
	{"items", "first_seen_at", "INTEGER"},
	{"items", "updated_at", "INTEGER"},
	{"replies", "sentiment_bucket", "TEXT"},
	{"replies", "first_seen_at", "INTEGER"},
	{"replies", "updated_at", "INTEGER"},
}

// Store persists items and replies in a single SQLite file. It relies on
// SQLite's single writer and is not meant to share the file with other processes.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
}

func Open(dbPath string, clock clockwork.Clock) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db, clock: clock}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("[Store] Opened SQLite database", slog.String("path", dbPath))
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	for _, col := range optionalColumns {
		if err := s.ensureColumn(ctx, col.table, col.name, col.definition); err != nil {
			return err
		}
	}
	return nil
}

// ensureColumn adds table.name when an older schema lacks it.
func (s *Store) ensureColumn(ctx context.Context, table, name, definition string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}

	found := false
	for rows.Next() {
		var (
			cid       int
			colName   string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan %s columns: %w", table, err)
		}
		if colName == name {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if found {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, name, definition)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, name, err)
	}
	slog.Info("[Store] Added missing column", slog.String("table", table), slog.String("column", name))
	return nil
}

// upsertRows writes each row inside one transaction. A row that fails is rolled
// back to its savepoint and skipped. It returns the indexes of rows written.
func (s *Store) upsertRows(ctx context.Context, kind, query string, n int, row func(i int) (string, []any, error)) ([]int, error) {
	if n == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin %s upsert: %w", kind, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s upsert: %w", kind, err)
	}
	defer stmt.Close()

	written := make([]int, 0, n)
	for i := 0; i < n; i++ {
		id, args, err := row(i)
		if err != nil {
			slog.Warn("[Store] Skipping invalid row",
				slog.String("kind", kind),
				slog.String("id", id),
				slog.String("error", err.Error()))
			continue
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT upsert_row"); err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			slog.Warn("[Store] Failed to upsert row",
				slog.String("kind", kind),
				slog.String("id", id),
				slog.String("error", err.Error()))
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO upsert_row"); rbErr != nil {
				return nil, fmt.Errorf("failed to roll back row %s: %w", id, rbErr)
			}
		} else {
			written = append(written, i)
		}
		if _, err := tx.ExecContext(ctx, "RELEASE upsert_row"); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s upsert: %w", kind, err)
	}

	slog.Info("[Store] Upserted rows",
		slog.String("kind", kind),
		slog.Int("written", len(written)),
		slog.Int("skipped", n-len(written)))
	return written, nil
}

func pick[T any](rows []T, indexes []int) []T {
	out := make([]T, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, rows[i])
	}
	return out
}

// windowClause filters by unit ("" means every unit) and by created_utc over the
// trailing sinceDays days (<= 0 means all time). The cutoff is inclusive.
func (s *Store) windowClause(unit string, sinceDays int) (string, []any) {
	clause := " WHERE 1=1"
	var args []any
	if unit != "" {
		clause += " AND unit = ?"
		args = append(args, unit)
	}
	if sinceDays > 0 {
		cutoff := s.clock.Now().Add(-time.Duration(sinceDays) * 24 * time.Hour).Unix()
		clause += " AND created_utc >= ?"
		args = append(args, cutoff)
	}
	return clause, args
}

func sentimentDefaults(r models.SentimentResult) models.SentimentResult {
	if r.Label == "" {
		r.Label = models.LABEL_NEUTRAL
	}
	if r.Bucket == "" {
		r.Bucket = r.Label
	}
	return r
}

func authorOrDeleted(author string) string {
	if author == "" {
		return models.DELETED_AUTHOR
	}
	return author
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
