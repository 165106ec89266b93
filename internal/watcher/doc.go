// Package watcher reloads the corpus index when the ingestion pipeline
// rewrites its bundle.
//
// Changes to bundle files in the index directory are observed with
// fsnotify, or by polling when fsnotify cannot be initialised (network
// mounts, some container volumes). Rapid events are debounced into one
// batch, after which the bundle is loaded and swapped into the engine.
// A failed load keeps the previous index serving.
//
// Usage:
//
//	r := watcher.NewReloader(dir, engine, watcher.StoreLoader(loadOpts), logger)
//	w, err := watcher.New(dir, r, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	go w.Run(ctx)
package watcher
