package watcher

import (
	"log/slog"
	"time"
)

// EventType tells what happened to a watched file.
type EventType int

const (
	// EventWritten fires once a created or rewritten file has stopped changing.
	EventWritten EventType = iota
	// EventRemoved fires when a watched file disappears, including the rename
	// half of an atomic save.
	EventRemoved
)

func (t EventType) String() string {
	if t == EventWritten {
		return "written"
	}
	if t == EventRemoved {
		return "removed"
	}
	return "unknown"
}

// Event describes a settled change to a watched file. Size and ModTime are
// only set for EventWritten.
type Event struct {
	Type    EventType
	Path    string
	Size    int64
	ModTime time.Time
}

// LogValue renders the event as a log group.
func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", e.Type.String()),
		slog.String("path", e.Path),
	}
	if e.Type == EventWritten {
		attrs = append(attrs, slog.Int64("size", e.Size), slog.Time("mod_time", e.ModTime))
	}
	return slog.GroupValue(attrs...)
}
