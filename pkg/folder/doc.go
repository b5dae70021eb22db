// Package folder provides the public, embeddable entry point to one
// folder's semantic index: scanning, embedding, vector storage, keyword
// search, and their fusion, composed behind a single handle.
//
// This package follows Black Box Design principles (Eskil Steenberg):
//   - One handle type, Folder, hides every collaborator wiring decision;
//     besides it the package exports only Open, Options and SearchResult
//   - The embedding provider is chosen by Config, never by the caller
//     reaching into internals; the vector store is always the per-folder
//     SQLite store
//   - A caller drives the lifecycle through a handful of verbs and reads
//     results through a handful of queries
//
// # Architecture
//
//	┌────────────────────────┐
//	│        Folder          │  ← this package
//	└────────────┬────────────┘
//	             │
//	    ┌────────┴─────────┐
//	    │                  │
//	┌───▼────┐       ┌─────▼──────┐
//	│lifecycle│       │   search   │  (keyword summary index + RRF fusion)
//	│.Service │       └─────┬──────┘
//	└───┬────┘              │
//	    │             ┌─────▼──────┐
//	    │             │ store.Vector│ (embeddings, cosine search)
//	    │             │    Store    │
//	    │             └────────────┘
//	┌───▼─────────────────────────┐
//	│ scanner / changedetect /    │
//	│ orchestrator / queue /      │
//	│ filestate / embed           │
//	└──────────────────────────────┘
//
// # Usage
//
//	f, err := folder.Open(ctx, "/path/to/project", folder.Options{})
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	if err := f.Scan(ctx); err != nil {
//	    return err
//	}
//	if err := f.Index(ctx); err != nil {
//	    return err
//	}
//
//	results, err := f.Search(ctx, "change detection", 10)
//
// # Thread Safety
//
// A *Folder is safe for concurrent use by multiple goroutines; it is a
// thin wrapper over lifecycle.Service, which already serializes its own
// state transitions.
package folder
