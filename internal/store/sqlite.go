package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure Go driver registered as "sqlite"
)

// SQLiteRanker scores with SQLite FTS5 bm25() in an in-memory database.
type SQLiteRanker struct {
	db    *sql.DB
	count int
}

var _ LexicalRanker = (*SQLiteRanker)(nil)

const sqliteSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS fts_corpus USING fts5(
	ordinal UNINDEXED,
	content,
	tokenize = "unicode61 remove_diacritics 0 tokenchars '_'"
);`

// openFTS opens a private in-memory database with the FTS5 table. A single
// connection is kept because every :memory: connection is its own database.
func openFTS(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create fts5 table: %w", err)
	}
	return db, nil
}

// NewSQLiteRanker loads corpus into an FTS5 table keyed by ordinal.
func NewSQLiteRanker(ctx context.Context, corpus [][]string) (*SQLiteRanker, error) {
	db, err := openFTS(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_corpus(ordinal, content) VALUES (?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	for ord, tokens := range corpus {
		if _, err := stmt.ExecContext(ctx, ord, strings.Join(tokens, " ")); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			_ = db.Close()
			return nil, fmt.Errorf("insert chunk %d: %w", ord, err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &SQLiteRanker{db: db, count: len(corpus)}, nil
}

// Score implements LexicalRanker. FTS5 bm25() is negative with lower being
// better, so scores are negated. Match syntax errors yield all-zero scores.
func (r *SQLiteRanker) Score(ctx context.Context, queryTokens []string) ([]float64, error) {
	scores := make([]float64, r.count)
	match := ftsMatchExpr(queryTokens)
	if match == "" || r.count == 0 {
		return scores, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT ordinal, bm25(fts_corpus) FROM fts_corpus WHERE fts_corpus MATCH ?`, match)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return scores, nil
		}
		return nil, fmt.Errorf("fts5 query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ord   int
			score float64
		)
		if err := rows.Scan(&ord, &score); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if ord >= 0 && ord < r.count {
			scores[ord] = -score
		}
	}
	return scores, rows.Err()
}

// Name returns "sqlite".
func (r *SQLiteRanker) Name() string { return "sqlite" }

// Close closes the database.
func (r *SQLiteRanker) Close() error { return r.db.Close() }

// ftsMatchExpr quotes every term and ORs them together.
func ftsMatchExpr(tokens []string) string {
	terms := uniqueTerms(tokens)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}
