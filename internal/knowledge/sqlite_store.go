package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"
)

// sqliteDriver is go-sqlite3 with a fold(text) function that lowercases
// with Go's Unicode rules, so searches match the same entries as
// MemoryStore. Plain LIKE only folds ASCII.
const sqliteDriver = "sqlite3_fold"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

var (
	_ Store  = (*SQLiteStore)(nil)
	_ Writer = (*SQLiteStore)(nil)
)

// SQLiteStore persists learned entries and fixes in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	writes atomic.Bool
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open(sqliteDriver, path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge db: %w", err)
	}
	if path == ":memory:" {
		// Each new connection to :memory: would be a fresh, empty database.
		db.SetMaxOpenConns(1)
	}
	s := &SQLiteStore{db: db}
	s.writes.Store(true)
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate knowledge db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS learned_entries (
		id         TEXT PRIMARY KEY,
		category   TEXT NOT NULL,
		content    TEXT NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}',
		source     TEXT NOT NULL DEFAULT '',
		score      REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		UNIQUE(category, content)
	);
	CREATE INDEX IF NOT EXISTS idx_entries_category_score ON learned_entries(category, score DESC);

	CREATE TABLE IF NOT EXISTS fix_records (
		id         TEXT PRIMARY KEY,
		old_code   TEXT NOT NULL DEFAULT '',
		new_code   TEXT NOT NULL DEFAULT '',
		reason     TEXT NOT NULL DEFAULT '',
		score      REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fixes_score ON fix_records(score DESC);
	`)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SetWriteEnabled(enabled bool) { s.writes.Store(enabled) }
func (s *SQLiteStore) WriteEnabled() bool           { return s.writes.Load() }

func (s *SQLiteStore) Add(ctx context.Context, e LearnedEntry) (LearnedEntry, error) {
	if !s.WriteEnabled() {
		return LearnedEntry{}, ErrWritesDisabled
	}
	if err := validateEntry(e); err != nil {
		return LearnedEntry{}, err
	}
	e = stampEntry(e)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_entries (id, category, content, metadata, source, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category, content) DO NOTHING`,
		e.ID, e.Category.String(), e.Content, string(e.Metadata.Encode()), e.Source, e.Score, e.CreatedAt)
	if err != nil {
		return LearnedEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		rows, err := s.db.QueryContext(ctx, selectEntries+` WHERE category = ? AND content = ?`, e.Category.String(), e.Content)
		if err != nil {
			return LearnedEntry{}, err
		}
		defer rows.Close()
		existing, err := scanEntries(rows)
		if err != nil {
			return LearnedEntry{}, err
		}
		if len(existing) > 0 {
			return existing[0], nil
		}
	}
	return e, nil
}

func (s *SQLiteStore) AddFix(ctx context.Context, f FixRecord) (FixRecord, error) {
	if !s.WriteEnabled() {
		return FixRecord{}, ErrWritesDisabled
	}
	if f.OldCode == "" && f.NewCode == "" {
		return FixRecord{}, fmt.Errorf("fix record needs old or new code")
	}
	f = stampFix(f)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fix_records (id, old_code, new_code, reason, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.OldCode, f.NewCode, f.Reason, f.Score, f.CreatedAt)
	if err != nil {
		return FixRecord{}, fmt.Errorf("insert fix: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (map[Category]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM learned_entries GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[Category]int, NumCategories)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		cat, err := ParseCategory(name)
		if err != nil {
			continue
		}
		stats[cat] = count
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) SearchByKeyword(ctx context.Context, keyword string, cat Category, limit int) ([]LearnedEntry, error) {
	return s.like(ctx, keyword, cat, limit)
}

func (s *SQLiteStore) SearchByPattern(ctx context.Context, pattern string, cat Category, limit int) ([]LearnedEntry, error) {
	return s.like(ctx, pattern, cat, limit)
}

func (s *SQLiteStore) TopByCategory(ctx context.Context, cat Category, limit int, hint string) ([]LearnedEntry, error) {
	q := selectEntries + ` WHERE category = ? ORDER BY score DESC, rowid ASC`
	args := []any{cat.String()}
	if strings.TrimSpace(hint) == "" && limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", cat, err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	return truncate(rankByHint(entries, hint), limit), nil
}

func (s *SQLiteStore) SearchFixes(ctx context.Context, keywords []string, limit int) ([]FixRecord, error) {
	var clauses []string
	var args []any
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw == "" {
			continue
		}
		like := likePattern(kw)
		clauses = append(clauses, `(fold(old_code) LIKE ? ESCAPE '\' OR fold(new_code) LIKE ? ESCAPE '\' OR fold(reason) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	q := `SELECT id, old_code, new_code, reason, score, created_at FROM fix_records
		WHERE ` + strings.Join(clauses, " OR ") + ` ORDER BY score DESC, rowid ASC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search fixes: %w", err)
	}
	defer rows.Close()

	var out []FixRecord
	for rows.Next() {
		var f FixRecord
		if err := rows.Scan(&f.ID, &f.OldCode, &f.NewCode, &f.Reason, &f.Score, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const selectEntries = `SELECT id, category, content, metadata, source, score, created_at FROM learned_entries`

func (s *SQLiteStore) like(ctx context.Context, needle string, cat Category, limit int) ([]LearnedEntry, error) {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return nil, nil
	}
	q := selectEntries + ` WHERE category = ? AND fold(content) LIKE ? ESCAPE '\' ORDER BY score DESC, rowid ASC`
	args := []any{cat.String(), likePattern(needle)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", cat, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]LearnedEntry, error) {
	var out []LearnedEntry
	for rows.Next() {
		var (
			e       LearnedEntry
			catName string
			meta    string
			created time.Time
		)
		if err := rows.Scan(&e.ID, &catName, &e.Content, &meta, &e.Source, &e.Score, &created); err != nil {
			return nil, err
		}
		cat, err := ParseCategory(catName)
		if err != nil {
			continue
		}
		e.Category = cat
		e.Metadata = DecodeMetadata([]byte(meta))
		e.CreatedAt = created
		out = append(out, e)
	}
	return out, rows.Err()
}

// likePattern is the substring pattern for needle against fold()ed text.
func likePattern(needle string) string {
	return "%" + escapeLike(strings.ToLower(needle)) + "%"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
