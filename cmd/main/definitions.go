package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CTAG07/Nepenthes/pkg/markov"
	"github.com/CTAG07/Nepenthes/pkg/statemachine"
	"github.com/CTAG07/Nepenthes/pkg/store"
)

// Definitions is the document format used to seed the store at startup and
// by the import/export endpoints. Both YAML and JSON documents decode into it.
type Definitions struct {
	Lists   []ListDefinition   `json:"lists,omitempty" yaml:"lists,omitempty"`
	Corpora []CorpusDefinition `json:"corpora,omitempty" yaml:"corpora,omitempty"`
	Graphs  []GraphDefinition  `json:"graphs,omitempty" yaml:"graphs,omitempty"`
}

// ListDefinition describes a weighted list.
type ListDefinition struct {
	Name   string            `json:"name" yaml:"name"`
	Unique bool              `json:"unique,omitempty" yaml:"unique,omitempty"`
	Values []ValueDefinition `json:"values" yaml:"values"`
}

// ValueDefinition is one list entry. A missing weight counts as 1.
type ValueDefinition struct {
	Value  string   `json:"value" yaml:"value"`
	Weight *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// CorpusDefinition describes a training corpus. Text is split into sentences
// and appended after Sequences.
type CorpusDefinition struct {
	Name      string     `json:"name" yaml:"name"`
	Depth     int        `json:"depth" yaml:"depth"`
	Sequences [][]string `json:"sequences,omitempty" yaml:"sequences,omitempty"`
	Text      string     `json:"text,omitempty" yaml:"text,omitempty"`
}

// GraphDefinition describes a transition graph in transition notation, e.g.
// "null->A, A->B^2, B->null".
type GraphDefinition struct {
	Name        string `json:"name" yaml:"name"`
	Transitions string `json:"transitions" yaml:"transitions"`
}

// ImportResult reports which definitions were created and which were skipped
// because a definition of the same name already existed.
type ImportResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// ParseDefinitions decodes a YAML or JSON definitions document.
func ParseDefinitions(data []byte) (*Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}
	return &defs, nil
}

// ApplyDefinitions writes defs to the store. Existing definitions are left
// untouched unless replace is set, in which case each one is swapped for its
// new version in a single transaction. A definition that fails validation
// aborts the import and leaves its stored version in place.
// Entries are reported as "list/name", "corpus/name" or "graph/name".
func ApplyDefinitions(ctx context.Context, s *store.Store, defs *Definitions, replace bool) (ImportResult, error) {
	var result ImportResult
	record := func(kind, name string, created bool) {
		if created {
			result.Created = append(result.Created, kind+"/"+name)
		} else {
			result.Skipped = append(result.Skipped, kind+"/"+name)
		}
	}

	for _, def := range defs.Lists {
		created, err := applyList(ctx, s, def, replace)
		if err != nil {
			return result, err
		}
		record("list", def.Name, created)
	}
	for _, def := range defs.Corpora {
		created, err := applyCorpus(ctx, s, def, replace)
		if err != nil {
			return result, err
		}
		record("corpus", def.Name, created)
	}
	for _, def := range defs.Graphs {
		created, err := applyGraph(ctx, s, def, replace)
		if err != nil {
			return result, err
		}
		record("graph", def.Name, created)
	}
	return result, nil
}

// shouldWrite reports whether a definition should be written: it is missing,
// or it exists and replace is set.
func shouldWrite(err error, replace bool) (bool, error) {
	if err == nil {
		return replace, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	return false, err
}

func applyList(ctx context.Context, s *store.Store, def ListDefinition, replace bool) (bool, error) {
	if def.Name == "" {
		return false, fmt.Errorf("%w: list without a name", errBadRequest)
	}
	_, err := s.ListInfo(ctx, def.Name)
	write, err := shouldWrite(err, replace)
	if err != nil || !write {
		return false, err
	}
	if _, err = s.PutList(ctx, def.Name, def.Unique, toRows(def.Values)); err != nil {
		return false, err
	}
	return true, nil
}

func applyCorpus(ctx context.Context, s *store.Store, def CorpusDefinition, replace bool) (bool, error) {
	if def.Name == "" {
		return false, fmt.Errorf("%w: corpus without a name", errBadRequest)
	}
	_, err := s.CorpusInfo(ctx, def.Name)
	write, err := shouldWrite(err, replace)
	if err != nil || !write {
		return false, err
	}

	sequences := def.Sequences
	if def.Text != "" {
		_, err = markov.SplitSentences(markov.NewTextTokenizer(), strings.NewReader(def.Text), func(sentence []string) error {
			sequences = append(sequences, append([]string(nil), sentence...))
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("corpus %q: %w", def.Name, err)
		}
	}
	if _, err = s.PutCorpus(ctx, def.Name, def.Depth, sequences); err != nil {
		return false, err
	}
	return true, nil
}

func applyGraph(ctx context.Context, s *store.Store, def GraphDefinition, replace bool) (bool, error) {
	if def.Name == "" {
		return false, fmt.Errorf("%w: graph without a name", errBadRequest)
	}
	ts, err := statemachine.ParseTransitions(def.Transitions)
	if err != nil {
		return false, fmt.Errorf("graph %q: %w", def.Name, err)
	}
	_, err = s.GraphInfo(ctx, def.Name)
	write, err := shouldWrite(err, replace)
	if err != nil || !write {
		return false, err
	}
	if _, err = s.PutGraph(ctx, def.Name, ts); err != nil {
		return false, err
	}
	return true, nil
}

// ExportDefinitions reads every stored definition. Corpora are exported as
// sequences.
func ExportDefinitions(ctx context.Context, s *store.Store) (*Definitions, error) {
	defs := &Definitions{}

	lists, err := s.Lists(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range lists {
		rows, err := s.ListValues(ctx, info.Name)
		if err != nil {
			return nil, err
		}
		def := ListDefinition{Name: info.Name, Unique: info.Unique, Values: make([]ValueDefinition, 0, len(rows))}
		for _, row := range rows {
			v := ValueDefinition{Value: row.Value}
			if row.HasWeight {
				w := row.Weight
				v.Weight = &w
			}
			def.Values = append(def.Values, v)
		}
		defs.Lists = append(defs.Lists, def)
	}

	corpora, err := s.Corpora(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range corpora {
		seqs, err := s.Sequences(ctx, info.Name)
		if err != nil {
			return nil, err
		}
		defs.Corpora = append(defs.Corpora, CorpusDefinition{Name: info.Name, Depth: info.Depth, Sequences: seqs})
	}

	graphs, err := s.Graphs(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range graphs {
		ts, err := s.Transitions(ctx, info.Name)
		if err != nil {
			return nil, err
		}
		text, err := statemachine.FormatTransitions(ts)
		if err != nil {
			return nil, fmt.Errorf("graph %q: %w", info.Name, err)
		}
		defs.Graphs = append(defs.Graphs, GraphDefinition{Name: info.Name, Transitions: text})
	}
	return defs, nil
}

// loadDefinitionsFile seeds the store from path. Definitions that already
// exist are kept, so the file can stay configured across restarts.
func loadDefinitionsFile(ctx context.Context, s *store.Store, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read definitions file: %w", err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return err
	}
	result, err := ApplyDefinitions(ctx, s, defs, false)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Definitions loaded",
		slog.String("path", path),
		slog.Int("created", len(result.Created)),
		slog.Int("skipped", len(result.Skipped)),
	)
	return nil
}
