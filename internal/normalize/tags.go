package normalize

import (
	"strings"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

// TagNames flattens a tag list to names, dropping blanks and case-folded duplicates.
// The first spelling seen wins.
func TagNames(tags wire.Tags) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		key := domain.FoldTag(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

// TagInput cleans caller-provided tag names before they are sent upstream.
func TagInput(names []string) []string {
	tags := make(wire.Tags, 0, len(names))
	for _, n := range names {
		tags = append(tags, wire.Tag{Name: strings.ToLower(n)})
	}
	return TagNames(tags)
}
