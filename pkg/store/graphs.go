package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CTAG07/Nepenthes/pkg/statemachine"
)

// GraphInfo holds the metadata of a stored transition graph.
type GraphInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Transitions int    `json:"transitions"`
}

// Graphs returns the metadata of every stored graph, ordered by name.
func (s *Store) Graphs(ctx context.Context) ([]GraphInfo, error) {
	rows, err := s.stmtGetGraphs.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var graphs []GraphInfo
	for rows.Next() {
		var info GraphInfo
		if err = rows.Scan(&info.ID, &info.Name, &info.Transitions); err != nil {
			return nil, err
		}
		graphs = append(graphs, info)
	}
	return graphs, rows.Err()
}

// GraphInfo returns the metadata of a single graph.
func (s *Store) GraphInfo(ctx context.Context, name string) (GraphInfo, error) {
	info := GraphInfo{Name: name}
	err := s.stmtGetGraphInfo.QueryRowContext(ctx, name).Scan(&info.ID, &info.Transitions)
	if err != nil {
		return GraphInfo{}, notFound("graph", name, err)
	}
	return info, nil
}

// CreateGraph creates an empty graph.
func (s *Store) CreateGraph(ctx context.Context, name string) (GraphInfo, error) {
	if _, err := s.GraphInfo(ctx, name); err == nil {
		return GraphInfo{}, fmt.Errorf("graph %q: %w", name, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return GraphInfo{}, err
	}
	if _, err := s.stmtAddGraph.ExecContext(ctx, name); err != nil {
		return GraphInfo{}, fmt.Errorf("graph %q: %w", name, err)
	}
	s.logger.InfoContext(ctx, "Graph created", slog.String("graph_name", name))
	return s.GraphInfo(ctx, name)
}

// RemoveGraph deletes a graph and all of its transitions.
func (s *Store) RemoveGraph(ctx context.Context, name string) error {
	info, err := s.GraphInfo(ctx, name)
	if err != nil {
		return err
	}
	if err = s.removeRows(ctx, "synth_graphs", "synth_transitions", "graph_id", info.ID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Graph removed", slog.String("graph_name", name), slog.Int("graph_id", info.ID))
	return nil
}

// AddTransitions appends edges to a graph in a single transaction. Weights
// are validated first; on error nothing is written. Whether the graph can
// terminate is only checked when a machine built from it is initialized.
func (s *Store) AddTransitions(ctx context.Context, name string, ts []statemachine.Transition[string]) error {
	info, err := s.GraphInfo(ctx, name)
	if err != nil {
		return err
	}
	if err = statemachine.New[string]().AddTransitions(ts); err != nil {
		return fmt.Errorf("graph %q: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, t := range ts {
		if _, err = tx.ExecContext(ctx, `INSERT INTO synth_transitions (graph_id, from_state, to_state, weight) VALUES (?, ?, ?, ?);`,
			info.ID, nullable(t.From), nullable(t.To), t.Weight); err != nil {
			return fmt.Errorf("graph %q: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "Transitions added", slog.String("graph_name", name), slog.Int("transitions", len(ts)))
	return nil
}

// PutGraph stores a graph with ts, replacing any graph of the same name. The
// edges are validated before anything is written, and the replacement runs in
// a single transaction, so on error the previously stored graph is kept.
func (s *Store) PutGraph(ctx context.Context, name string, ts []statemachine.Transition[string]) (GraphInfo, error) {
	if err := statemachine.New[string]().AddTransitions(ts); err != nil {
		return GraphInfo{}, fmt.Errorf("graph %q: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return GraphInfo{}, err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = clearName(ctx, tx, "synth_graphs", "synth_transitions", "graph_id", "graph_name", name); err != nil {
		return GraphInfo{}, err
	}
	res, err := tx.StmtContext(ctx, s.stmtAddGraph).ExecContext(ctx, name)
	if err != nil {
		return GraphInfo{}, fmt.Errorf("graph %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return GraphInfo{}, err
	}
	for _, t := range ts {
		if _, err = tx.ExecContext(ctx, `INSERT INTO synth_transitions (graph_id, from_state, to_state, weight) VALUES (?, ?, ?, ?);`,
			id, nullable(t.From), nullable(t.To), t.Weight); err != nil {
			return GraphInfo{}, fmt.Errorf("graph %q: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return GraphInfo{}, err
	}
	s.logger.InfoContext(ctx, "Graph stored", slog.String("graph_name", name), slog.Int("transitions", len(ts)))
	return s.GraphInfo(ctx, name)
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func pointer(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// Transitions returns the stored edges of a graph in insertion order.
func (s *Store) Transitions(ctx context.Context, name string) ([]statemachine.Transition[string], error) {
	info, err := s.GraphInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	rows, err := s.stmtGraphEdges.QueryContext(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var ts []statemachine.Transition[string]
	for rows.Next() {
		var from, to sql.NullString
		var t statemachine.Transition[string]
		if err = rows.Scan(&from, &to, &t.Weight); err != nil {
			return nil, err
		}
		t.From, t.To = pointer(from), pointer(to)
		ts = append(ts, t)
	}
	return ts, rows.Err()
}

// LoadMachine builds a state machine from a stored graph. The machine still
// needs Init, which is where an unterminating graph is reported.
func (s *Store) LoadMachine(ctx context.Context, name string, opts ...statemachine.Option) (*statemachine.Machine[string], error) {
	ts, err := s.Transitions(ctx, name)
	if err != nil {
		return nil, err
	}
	m := statemachine.New[string](append([]statemachine.Option{statemachine.WithLogger(s.logger)}, opts...)...)
	if err = m.AddTransitions(ts); err != nil {
		return nil, fmt.Errorf("graph %q: %w", name, err)
	}
	return m, nil
}
