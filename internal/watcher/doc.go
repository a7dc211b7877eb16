// Package watcher notices new, changed and removed documents under input/
// so the index can be rebuilt without a manual command.
//
// fsnotify is used when the platform supports it; otherwise the directory is
// polled. Events are debounced so that copying a batch of files produces a
// single rebuild.
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, cfg.InputDir())
//
//	return watcher.Rebuild(ctx, w.Events(), func(ctx context.Context, batch []watcher.FileEvent) error {
//	    _, err := builder.Build(ctx)
//	    return err
//	})
package watcher
