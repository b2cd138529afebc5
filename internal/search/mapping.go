package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for question documents.
//
// Title and body use English stemming. Tags are keywords so compound tags
// like "go-modules" stay intact. Counters and timestamps are numeric for
// sorting.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	titleFieldMapping.IncludeTermVectors = true // highlighting
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	// Body is searchable but not stored.
	bodyFieldMapping := bleve.NewTextFieldMapping()
	bodyFieldMapping.Analyzer = en.AnalyzerName
	bodyFieldMapping.Store = false
	bodyFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("body", bodyFieldMapping)

	authorFieldMapping := bleve.NewTextFieldMapping()
	authorFieldMapping.Analyzer = simple.Name
	authorFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("author", authorFieldMapping)

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	tagsFieldMapping := bleve.NewTextFieldMapping()
	tagsFieldMapping.Analyzer = keyword.Name
	tagsFieldMapping.Store = true
	tagsFieldMapping.IncludeTermVectors = true // faceting
	docMapping.AddFieldMappingsAt("tags", tagsFieldMapping)

	for _, field := range []string{"answered", "closed"} {
		boolFieldMapping := bleve.NewBooleanFieldMapping()
		boolFieldMapping.Store = true
		docMapping.AddFieldMappingsAt(field, boolFieldMapping)
	}

	for _, field := range []string{"score", "answer_count", "created_at", "updated_at"} {
		numFieldMapping := bleve.NewNumericFieldMapping()
		numFieldMapping.Store = true
		docMapping.AddFieldMappingsAt(field, numFieldMapping)
	}

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
