package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/Nepenthes/pkg/markov"
	"github.com/CTAG07/Nepenthes/pkg/sample"
)

// CorpusInfo holds the metadata of a stored training corpus.
type CorpusInfo struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Depth     int    `json:"depth"`
	Sequences int    `json:"sequences"`
}

// Corpora returns the metadata of every stored corpus, ordered by name.
func (s *Store) Corpora(ctx context.Context) ([]CorpusInfo, error) {
	rows, err := s.stmtGetCorpora.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var corpora []CorpusInfo
	for rows.Next() {
		var info CorpusInfo
		if err = rows.Scan(&info.ID, &info.Name, &info.Depth, &info.Sequences); err != nil {
			return nil, err
		}
		corpora = append(corpora, info)
	}
	return corpora, rows.Err()
}

// CorpusInfo returns the metadata of a single corpus.
func (s *Store) CorpusInfo(ctx context.Context, name string) (CorpusInfo, error) {
	info := CorpusInfo{Name: name}
	err := s.stmtGetCorpusInfo.QueryRowContext(ctx, name).Scan(&info.ID, &info.Depth, &info.Sequences)
	if err != nil {
		return CorpusInfo{}, notFound("corpus", name, err)
	}
	return info, nil
}

// CreateCorpus creates an empty corpus whose models record windows of up to
// depth atoms.
func (s *Store) CreateCorpus(ctx context.Context, name string, depth int) (CorpusInfo, error) {
	if depth <= 0 {
		return CorpusInfo{}, fmt.Errorf("corpus %q with depth %d: %w", name, depth, markov.ErrInvalidDepth)
	}
	if _, err := s.CorpusInfo(ctx, name); err == nil {
		return CorpusInfo{}, fmt.Errorf("corpus %q: %w", name, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return CorpusInfo{}, err
	}
	if _, err := s.stmtAddCorpus.ExecContext(ctx, name, depth); err != nil {
		return CorpusInfo{}, fmt.Errorf("corpus %q: %w", name, err)
	}
	s.logger.InfoContext(ctx, "Corpus created", slog.String("corpus_name", name), slog.Int("depth", depth))
	return s.CorpusInfo(ctx, name)
}

// RemoveCorpus deletes a corpus and all of its sequences.
func (s *Store) RemoveCorpus(ctx context.Context, name string) error {
	info, err := s.CorpusInfo(ctx, name)
	if err != nil {
		return err
	}
	if err = s.removeRows(ctx, "synth_corpora", "synth_sequences", "corpus_id", info.ID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Corpus removed", slog.String("corpus_name", name), slog.Int("corpus_id", info.ID))
	return nil
}

// AddSequences appends training sequences to a corpus in a single
// transaction. Empty sequences are stored too; they count as sequences but
// teach the model nothing.
func (s *Store) AddSequences(ctx context.Context, name string, sequences [][]string) error {
	info, err := s.CorpusInfo(ctx, name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	insert, err := tx.PrepareContext(ctx, `INSERT INTO synth_sequences (corpus_id, atoms) VALUES (?, ?);`)
	if err != nil {
		return err
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(insert)

	for _, seq := range sequences {
		if err = insertSequence(ctx, insert, info.ID, seq); err != nil {
			return fmt.Errorf("corpus %q: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "Sequences added", slog.String("corpus_name", name), slog.Int("sequences", len(sequences)))
	return nil
}

// AddText splits text into sentences with tokenizer and stores one sequence
// per sentence. It returns the number of sentences stored.
func (s *Store) AddText(ctx context.Context, name string, tokenizer markov.Tokenizer, r io.Reader) (int, error) {
	info, err := s.CorpusInfo(ctx, name)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	insert, err := tx.PrepareContext(ctx, `INSERT INTO synth_sequences (corpus_id, atoms) VALUES (?, ?);`)
	if err != nil {
		return 0, err
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(insert)

	count, err := markov.SplitSentences(tokenizer, r, func(sentence []string) error {
		return insertSequence(ctx, insert, info.ID, sentence)
	})
	if err != nil {
		return 0, fmt.Errorf("corpus %q: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "Text added to corpus",
		slog.String("corpus_name", name),
		slog.Int("sentences_processed", count),
	)
	return count, nil
}

// PutCorpus stores a corpus with sequences, replacing any corpus of the same
// name in a single transaction. On error the previously stored corpus is kept.
func (s *Store) PutCorpus(ctx context.Context, name string, depth int, sequences [][]string) (CorpusInfo, error) {
	if depth <= 0 {
		return CorpusInfo{}, fmt.Errorf("corpus %q with depth %d: %w", name, depth, markov.ErrInvalidDepth)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CorpusInfo{}, err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = clearName(ctx, tx, "synth_corpora", "synth_sequences", "corpus_id", "corpus_name", name); err != nil {
		return CorpusInfo{}, err
	}
	res, err := tx.StmtContext(ctx, s.stmtAddCorpus).ExecContext(ctx, name, depth)
	if err != nil {
		return CorpusInfo{}, fmt.Errorf("corpus %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return CorpusInfo{}, err
	}

	insert, err := tx.PrepareContext(ctx, `INSERT INTO synth_sequences (corpus_id, atoms) VALUES (?, ?);`)
	if err != nil {
		return CorpusInfo{}, err
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(insert)

	for _, seq := range sequences {
		if err = insertSequence(ctx, insert, int(id), seq); err != nil {
			return CorpusInfo{}, fmt.Errorf("corpus %q: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return CorpusInfo{}, err
	}
	s.logger.InfoContext(ctx, "Corpus stored",
		slog.String("corpus_name", name),
		slog.Int("depth", depth),
		slog.Int("sequences", len(sequences)),
	)
	return s.CorpusInfo(ctx, name)
}

func insertSequence(ctx context.Context, insert *sql.Stmt, corpusID int, seq []string) error {
	if seq == nil {
		seq = []string{}
	}
	atoms, err := json.Marshal(seq)
	if err != nil {
		return err
	}
	_, err = insert.ExecContext(ctx, corpusID, string(atoms))
	return err
}

// Sequences returns the stored sequences of a corpus in insertion order.
func (s *Store) Sequences(ctx context.Context, name string) ([][]string, error) {
	info, err := s.CorpusInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	var out [][]string
	err = s.eachSequence(ctx, info, func(seq []string) {
		out = append(out, seq)
	})
	return out, err
}

func (s *Store) eachSequence(ctx context.Context, info CorpusInfo, fn func([]string)) error {
	rows, err := s.stmtCorpusSequences.QueryContext(ctx, info.ID)
	if err != nil {
		return err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	for rows.Next() {
		var atoms string
		if err = rows.Scan(&atoms); err != nil {
			return err
		}
		var seq []string
		if err = json.Unmarshal([]byte(atoms), &seq); err != nil {
			return fmt.Errorf("corpus %q: corrupt sequence: %w", info.Name, err)
		}
		fn(seq)
	}
	return rows.Err()
}

// LoadModel trains a new model of the corpus depth on every stored sequence.
func (s *Store) LoadModel(ctx context.Context, name string) (*markov.Model[string], error) {
	info, err := s.CorpusInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	m, err := markov.NewModel[string](info.Depth)
	if err != nil {
		return nil, fmt.Errorf("corpus %q: %w", name, err)
	}
	m.SetLogger(s.logger)
	if err = s.eachSequence(ctx, info, m.AddSequence); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "Model loaded from corpus",
		slog.String("corpus_name", name),
		slog.Int("sequences", m.Sequences()),
	)
	return m, nil
}

// LoadGenerator trains a model from a stored corpus and wraps it in a
// generator. A nil src selects sample.DefaultSource(). The generator still
// needs Init.
func (s *Store) LoadGenerator(ctx context.Context, name string, src sample.Source, opts ...markov.GenerateOption) (*markov.Generator[string], error) {
	m, err := s.LoadModel(ctx, name)
	if err != nil {
		return nil, err
	}
	return markov.NewOwnedGenerator(m, src, opts...), nil
}
