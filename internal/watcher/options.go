package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

const defaultSettleDelay = 100 * time.Millisecond

// Options tunes a Watcher. The zero value is ready to use.
type Options struct {
	// SettleDelay is the quiet period after the last write before EventWritten fires.
	SettleDelay time.Duration
	// Ignore reports whether a changed path should be skipped. Nil skips editor scratch files.
	Ignore func(path string) bool
}

func (o Options) withDefaults() Options {
	if o.SettleDelay <= 0 {
		o.SettleDelay = defaultSettleDelay
	}
	if o.Ignore == nil {
		o.Ignore = editorScratch
	}
	return o
}

// editorScratch matches swap, backup and lock files that editors write next
// to the file being saved.
func editorScratch(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".#") || name == "4913" {
		return true
	}
	for _, suffix := range []string{".swp", ".swx", "~", ".tmp"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
