// Package preflight checks that retrieval can run before the server
// starts taking queries.
//
// The checks cover:
//   - the index bundle (present, consistent, with or without tokens)
//   - the embedding backend (reachable, dimension matches the index)
//   - the lexical backend (available, or retrieval degrades to vector-only)
//   - free disk space and the file descriptor limit
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, preflight.Target{IndexDir: dir, Embedder: emb})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
