// Package store persists generator definitions in a SQL database and builds
// ready-to-initialize generators from them.
//
// Three kinds of definition are stored, each under a unique name:
//
//   - lists: weighted values for a sample.Generator
//   - corpora: training sequences and a depth for a markov.Model
//   - graphs: weighted transitions for a statemachine.Machine
//
// The package uses only standard SQL through database/sql and has been
// tested against SQLite. Call SetupSchema once on a new database, then
// create a Store with New:
//
//	db, _ := sql.Open("sqlite", "nepenthes.db")
//	if err := store.SetupSchema(db); err != nil {
//		log.Fatal(err)
//	}
//	s, err := store.New(db)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	gen, err := s.LoadList(ctx, "colors")
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = gen.Init(ctx)
//
// A Store is safe for concurrent use; generators returned by its loaders are
// independent of the Store and of each other.
package store
