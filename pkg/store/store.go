package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

var (
	// ErrNotFound is returned when no definition has the requested name.
	ErrNotFound = errors.New("definition not found")
	// ErrExists is returned when creating a definition whose name is taken.
	ErrExists = errors.New("definition already exists")
)

// SetupSchema initializes the necessary tables in the provided database. It
// is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	schema := []string{
		`
CREATE TABLE IF NOT EXISTS synth_lists (
    list_id INTEGER PRIMARY KEY,
    list_name TEXT NOT NULL UNIQUE,
    list_unique INTEGER NOT NULL DEFAULT 0
);`,
		`
CREATE TABLE IF NOT EXISTS synth_list_values (
    value_id INTEGER PRIMARY KEY,
    list_id INTEGER NOT NULL,
    value_text TEXT NOT NULL,
    weight REAL
);`,
		`CREATE INDEX IF NOT EXISTS synth_list_values_list ON synth_list_values (list_id);`,
		`
CREATE TABLE IF NOT EXISTS synth_corpora (
    corpus_id INTEGER PRIMARY KEY,
    corpus_name TEXT NOT NULL UNIQUE,
    corpus_depth INTEGER NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS synth_sequences (
    sequence_id INTEGER PRIMARY KEY,
    corpus_id INTEGER NOT NULL,
    atoms TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS synth_sequences_corpus ON synth_sequences (corpus_id);`,
		`
CREATE TABLE IF NOT EXISTS synth_graphs (
    graph_id INTEGER PRIMARY KEY,
    graph_name TEXT NOT NULL UNIQUE
);`,
		`
CREATE TABLE IF NOT EXISTS synth_transitions (
    transition_id INTEGER PRIMARY KEY,
    graph_id INTEGER NOT NULL,
    from_state TEXT,
    to_state TEXT,
    weight REAL NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS synth_transitions_graph ON synth_transitions (graph_id);`,
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, stmt := range schema {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store reads and writes generator definitions. It holds the database
// connection and prepared SQL statements for the frequent queries.
type Store struct {
	db                  *sql.DB
	stmtGetLists        *sql.Stmt
	stmtGetListInfo     *sql.Stmt
	stmtAddList         *sql.Stmt
	stmtListValues      *sql.Stmt
	stmtListHasValue    *sql.Stmt
	stmtGetCorpora      *sql.Stmt
	stmtGetCorpusInfo   *sql.Stmt
	stmtAddCorpus       *sql.Stmt
	stmtCorpusSequences *sql.Stmt
	stmtGetGraphs       *sql.Stmt
	stmtGetGraphInfo    *sql.Stmt
	stmtAddGraph        *sql.Stmt
	stmtGraphEdges      *sql.Stmt
	logger              *slog.Logger
}

// New creates a Store on a database prepared with SetupSchema. It
// pre-compiles all frequent SQL statements, returning an error if any
// preparation fails.
func New(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	prepared := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetLists, `SELECT l.list_id, l.list_name, l.list_unique, COUNT(v.value_id) FROM synth_lists l LEFT JOIN synth_list_values v ON v.list_id = l.list_id GROUP BY l.list_id ORDER BY l.list_name;`},
		{&s.stmtGetListInfo, `SELECT l.list_id, l.list_unique, COUNT(v.value_id) FROM synth_lists l LEFT JOIN synth_list_values v ON v.list_id = l.list_id WHERE l.list_name = ? GROUP BY l.list_id;`},
		{&s.stmtAddList, `INSERT INTO synth_lists (list_name, list_unique) VALUES (?, ?);`},
		{&s.stmtListValues, `SELECT value_text, weight FROM synth_list_values WHERE list_id = ? ORDER BY value_id;`},
		{&s.stmtListHasValue, `SELECT COUNT(*) FROM synth_list_values WHERE list_id = ? AND value_text = ?;`},
		{&s.stmtGetCorpora, `SELECT c.corpus_id, c.corpus_name, c.corpus_depth, COUNT(q.sequence_id) FROM synth_corpora c LEFT JOIN synth_sequences q ON q.corpus_id = c.corpus_id GROUP BY c.corpus_id ORDER BY c.corpus_name;`},
		{&s.stmtGetCorpusInfo, `SELECT c.corpus_id, c.corpus_depth, COUNT(q.sequence_id) FROM synth_corpora c LEFT JOIN synth_sequences q ON q.corpus_id = c.corpus_id WHERE c.corpus_name = ? GROUP BY c.corpus_id;`},
		{&s.stmtAddCorpus, `INSERT INTO synth_corpora (corpus_name, corpus_depth) VALUES (?, ?);`},
		{&s.stmtCorpusSequences, `SELECT atoms FROM synth_sequences WHERE corpus_id = ? ORDER BY sequence_id;`},
		{&s.stmtGetGraphs, `SELECT g.graph_id, g.graph_name, COUNT(t.transition_id) FROM synth_graphs g LEFT JOIN synth_transitions t ON t.graph_id = g.graph_id GROUP BY g.graph_id ORDER BY g.graph_name;`},
		{&s.stmtGetGraphInfo, `SELECT g.graph_id, COUNT(t.transition_id) FROM synth_graphs g LEFT JOIN synth_transitions t ON t.graph_id = g.graph_id WHERE g.graph_name = ? GROUP BY g.graph_id;`},
		{&s.stmtAddGraph, `INSERT INTO synth_graphs (graph_name) VALUES (?);`},
		{&s.stmtGraphEdges, `SELECT from_state, to_state, weight FROM synth_transitions WHERE graph_id = ? ORDER BY transition_id;`},
	}
	for _, p := range prepared {
		stmt, err := db.Prepare(p.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*p.dst = stmt
	}
	return s, nil
}

// Close releases all prepared SQL statements held by the Store. The database
// itself is left open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetLists, s.stmtGetListInfo, s.stmtAddList, s.stmtListValues, s.stmtListHasValue,
		s.stmtGetCorpora, s.stmtGetCorpusInfo, s.stmtAddCorpus, s.stmtCorpusSequences,
		s.stmtGetGraphs, s.stmtGetGraphInfo, s.stmtAddGraph, s.stmtGraphEdges,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(kind, name string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", kind, name, ErrNotFound)
	}
	return fmt.Errorf("%s %q: %w", kind, name, err)
}

// removeRows deletes a definition row and its child rows in one transaction.
func (s *Store) removeRows(ctx context.Context, parentTable, childTable, idColumn string, id int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", childTable, idColumn), id); err != nil {
		return fmt.Errorf("failed to remove rows of %s %d: %w", idColumn, id, err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", parentTable, idColumn), id); err != nil {
		return fmt.Errorf("failed to remove %s %d: %w", idColumn, id, err)
	}
	return tx.Commit()
}

// clearName deletes the definition called name and its child rows inside tx.
// It is a no-op when no such definition exists.
func clearName(ctx context.Context, tx *sql.Tx, parentTable, childTable, idColumn, nameColumn, name string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s = ?)",
		childTable, idColumn, idColumn, parentTable, nameColumn)
	if _, err := tx.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to clear rows of %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", parentTable, nameColumn), name); err != nil {
		return fmt.Errorf("failed to clear %q: %w", name, err)
	}
	return nil
}
