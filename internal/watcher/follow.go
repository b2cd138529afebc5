package watcher

import "context"

// Follow calls fn for every event until ctx is done or the watcher stops.
// Errors are logged and otherwise ignored.
func (w *Watcher) Follow(ctx context.Context, fn func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev := <-w.events:
			fn(ev)
		case err := <-w.errors:
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}
