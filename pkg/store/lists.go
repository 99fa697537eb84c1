package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CTAG07/Nepenthes/pkg/sample"
)

// ListInfo holds the metadata of a stored weighted list.
type ListInfo struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Unique bool   `json:"unique"`
	Values int    `json:"values"`
}

// Lists returns the metadata of every stored list, ordered by name.
func (s *Store) Lists(ctx context.Context) ([]ListInfo, error) {
	rows, err := s.stmtGetLists.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var lists []ListInfo
	for rows.Next() {
		var info ListInfo
		if err = rows.Scan(&info.ID, &info.Name, &info.Unique, &info.Values); err != nil {
			return nil, err
		}
		lists = append(lists, info)
	}
	return lists, rows.Err()
}

// ListInfo returns the metadata of a single list.
func (s *Store) ListInfo(ctx context.Context, name string) (ListInfo, error) {
	info := ListInfo{Name: name}
	err := s.stmtGetListInfo.QueryRowContext(ctx, name).Scan(&info.ID, &info.Unique, &info.Values)
	if err != nil {
		return ListInfo{}, notFound("list", name, err)
	}
	return info, nil
}

// CreateList creates an empty list. A unique list rejects values that are
// already present.
func (s *Store) CreateList(ctx context.Context, name string, unique bool) (ListInfo, error) {
	if _, err := s.ListInfo(ctx, name); err == nil {
		return ListInfo{}, fmt.Errorf("list %q: %w", name, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return ListInfo{}, err
	}
	if _, err := s.stmtAddList.ExecContext(ctx, name, unique); err != nil {
		return ListInfo{}, fmt.Errorf("list %q: %w", name, err)
	}
	s.logger.InfoContext(ctx, "List created", slog.String("list_name", name), slog.Bool("unique", unique))
	return s.ListInfo(ctx, name)
}

// RemoveList deletes a list and all of its values.
func (s *Store) RemoveList(ctx context.Context, name string) error {
	info, err := s.ListInfo(ctx, name)
	if err != nil {
		return err
	}
	if err = s.removeRows(ctx, "synth_lists", "synth_list_values", "list_id", info.ID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "List removed", slog.String("list_name", name), slog.Int("list_id", info.ID))
	return nil
}

// AddListValues appends rows to a list in a single transaction. Weights are
// validated, and a unique list rejects values already stored or repeated in
// rows; on error nothing is written.
func (s *Store) AddListValues(ctx context.Context, name string, rows []sample.Row[string]) error {
	info, err := s.ListInfo(ctx, name)
	if err != nil {
		return err
	}

	check := sample.NewGenerator[string](sample.WithUnique(info.Unique))
	if err = check.AddRows(rows); err != nil {
		return fmt.Errorf("list %q: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	hasValue := tx.StmtContext(ctx, s.stmtListHasValue)
	for _, row := range rows {
		if info.Unique {
			var n int
			if err = hasValue.QueryRowContext(ctx, info.ID, row.Value).Scan(&n); err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("list %q: value %q: %w", name, row.Value, sample.ErrDuplicateValue)
			}
		}
		weight := sql.NullFloat64{Float64: row.Weight, Valid: row.HasWeight}
		if _, err = tx.ExecContext(ctx, `INSERT INTO synth_list_values (list_id, value_text, weight) VALUES (?, ?, ?);`,
			info.ID, row.Value, weight); err != nil {
			return fmt.Errorf("list %q: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "List values added", slog.String("list_name", name), slog.Int("values", len(rows)))
	return nil
}

// PutList stores a list with rows, replacing any list of the same name.
// Rows are validated before anything is written, and the replacement runs in
// a single transaction, so on error the previously stored list is kept.
func (s *Store) PutList(ctx context.Context, name string, unique bool, rows []sample.Row[string]) (ListInfo, error) {
	check := sample.NewGenerator[string](sample.WithUnique(unique))
	if err := check.AddRows(rows); err != nil {
		return ListInfo{}, fmt.Errorf("list %q: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ListInfo{}, err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = clearName(ctx, tx, "synth_lists", "synth_list_values", "list_id", "list_name", name); err != nil {
		return ListInfo{}, err
	}
	res, err := tx.StmtContext(ctx, s.stmtAddList).ExecContext(ctx, name, unique)
	if err != nil {
		return ListInfo{}, fmt.Errorf("list %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ListInfo{}, err
	}
	for _, row := range rows {
		weight := sql.NullFloat64{Float64: row.Weight, Valid: row.HasWeight}
		if _, err = tx.ExecContext(ctx, `INSERT INTO synth_list_values (list_id, value_text, weight) VALUES (?, ?, ?);`,
			id, row.Value, weight); err != nil {
			return ListInfo{}, fmt.Errorf("list %q: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return ListInfo{}, err
	}
	s.logger.InfoContext(ctx, "List stored", slog.String("list_name", name), slog.Int("values", len(rows)))
	return s.ListInfo(ctx, name)
}

// ListValues returns the rows of a list in insertion order.
func (s *Store) ListValues(ctx context.Context, name string) ([]sample.Row[string], error) {
	info, err := s.ListInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	rows, err := s.stmtListValues.QueryContext(ctx, info.ID)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var values []sample.Row[string]
	for rows.Next() {
		var row sample.Row[string]
		var weight sql.NullFloat64
		if err = rows.Scan(&row.Value, &weight); err != nil {
			return nil, err
		}
		row.Weight, row.HasWeight = weight.Float64, weight.Valid
		values = append(values, row)
	}
	return values, rows.Err()
}

// LoadList builds a weighted generator from a stored list. The list's unique
// flag is applied before opts. The generator still needs Init.
func (s *Store) LoadList(ctx context.Context, name string, opts ...sample.Option) (*sample.Generator[string], error) {
	info, err := s.ListInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	rows, err := s.ListValues(ctx, name)
	if err != nil {
		return nil, err
	}
	gen := sample.NewGenerator[string](append([]sample.Option{sample.WithUnique(info.Unique)}, opts...)...)
	if err = gen.AddRows(rows); err != nil {
		return nil, fmt.Errorf("list %q: %w", name, err)
	}
	return gen, nil
}
