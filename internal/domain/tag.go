package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Tag is a topic label. Names are unique under case folding.
type Tag struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UsageCount  int       `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Version is the creation time; tags are read-mostly and carry no update stamp.
func (t Tag) Version() time.Time {
	return t.CreatedAt
}

var folder = cases.Fold()

// FoldTag returns the matching key for a tag name: NFC-normalized, case-folded, trimmed.
func FoldTag(name string) string {
	return folder.String(norm.NFC.String(strings.TrimSpace(name)))
}

// TagStats summarizes the cached tag set.
type TagStats struct {
	Total           int     `json:"total"`
	TotalUsage      int     `json:"total_usage"`
	AverageUsage    float64 `json:"average_usage"`
	MostUsed        string  `json:"most_used,omitempty"`
	WithDescription int     `json:"with_description"`
}
