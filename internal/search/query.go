package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

// SearchParams configures a search query.
type SearchParams struct {
	Query string
	// Tags restricts hits to questions carrying every listed tag.
	Tags       []string
	Unanswered bool // only questions without an accepted answer
	OpenOnly   bool // exclude closed questions

	Limit  int
	Offset int

	SortBy    string // "relevance", "recent", "score", "answers"
	SortOrder string // "asc", "desc"

	IncludeFacets bool
	Highlight     bool
}

// DefaultSearchParams returns the parameters used by the local API.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:         20,
		SortBy:        "relevance",
		SortOrder:     "desc",
		IncludeFacets: true,
		Highlight:     true,
	}
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string       `json:"query"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"took_ms"`
	Hits   []SearchHit  `json:"hits"`
	Facets []FacetCount `json:"tag_facets,omitempty"`
}

// SearchHit represents a single matching question.
type SearchHit struct {
	ID          string            `json:"id"`
	Relevance   float64           `json:"relevance"`
	Title       string            `json:"title"`
	Author      string            `json:"author,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Score       int               `json:"score"`
	AnswerCount int               `json:"answer_count"`
	Highlights  map[string]string `json:"highlights,omitempty"`
}

// FacetCount is a tag and the number of hits carrying it.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a search query.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = 20
	}

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	addSorting(req, params)

	if params.IncludeFacets {
		req.AddFacet("tags", bleve.NewFacetRequest("tags", 20))
	}
	if params.Highlight {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("title")
		req.Highlight.AddField("body")
	}
	req.Fields = []string{"title", "author", "tags", "score", "answer_count"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}

	for _, hit := range res.Hits {
		h := SearchHit{ID: hit.ID, Relevance: hit.Score}
		if t, ok := hit.Fields["title"].(string); ok {
			h.Title = t
		}
		if a, ok := hit.Fields["author"].(string); ok {
			h.Author = a
		}
		h.Tags = stringsField(hit.Fields["tags"])
		if v, ok := hit.Fields["score"].(float64); ok {
			h.Score = int(v)
		}
		if v, ok := hit.Fields["answer_count"].(float64); ok {
			h.AnswerCount = int(v)
		}
		if len(hit.Fragments) > 0 {
			h.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					h.Highlights[field] = fragments[0]
				}
			}
		}
		result.Hits = append(result.Hits, h)
	}

	if facet, ok := res.Facets["tags"]; ok && facet.Terms != nil {
		for _, term := range facet.Terms.Terms() {
			result.Facets = append(result.Facets, FacetCount{Value: term.Term, Count: term.Count})
		}
	}

	return result, nil
}

// QuestionIDs returns the ids of the best matches for text, most relevant first.
func (s *SearchIndex) QuestionIDs(ctx context.Context, text string, limit int) ([]string, error) {
	params := DefaultSearchParams()
	params.Query = text
	params.Limit = limit
	params.IncludeFacets = false
	params.Highlight = false

	res, err := s.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// stringsField reads a stored multi-value field. Bleve returns a bare string
// when only one value was indexed.
func stringsField(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if text := strings.TrimSpace(params.Query); text != "" {
		titleMatch := bleve.NewMatchQuery(text)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)

		bodyMatch := bleve.NewMatchQuery(text)
		bodyMatch.SetField("body")

		authorMatch := bleve.NewMatchQuery(text)
		authorMatch.SetField("author")
		authorMatch.SetBoost(0.5)

		// Typo tolerance on titles.
		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(text))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("title")
		fuzzy.SetBoost(0.8)

		textQueries := []query.Query{titleMatch, bodyMatch, authorMatch, fuzzy}

		if len(text) >= 2 && !strings.ContainsRune(text, ' ') {
			prefix := bleve.NewPrefixQuery(strings.ToLower(text))
			prefix.SetField("title")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	for _, tag := range params.Tags {
		tq := bleve.NewTermQuery(domain.FoldTag(tag))
		tq.SetField("tags")
		queries = append(queries, tq)
	}

	if params.Unanswered {
		bq := bleve.NewBoolFieldQuery(false)
		bq.SetField("answered")
		queries = append(queries, bq)
	}
	if params.OpenOnly {
		bq := bleve.NewBoolFieldQuery(false)
		bq.SetField("closed")
		queries = append(queries, bq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

func addSorting(req *bleve.SearchRequest, params SearchParams) {
	field := ""
	switch params.SortBy {
	case "recent":
		field = "created_at"
	case "score":
		field = "score"
	case "answers":
		field = "answer_count"
	default:
		req.SortBy([]string{"-_score"})
		return
	}
	if params.SortOrder == "asc" {
		req.SortBy([]string{field, "-_score"})
	} else {
		req.SortBy([]string{"-" + field, "-_score"})
	}
}
