package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stackitapp/stackit-sync/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchQuestions",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search cached questions",
		Description: "Full-text search over every question the client has seen, without a backend call",
		Tags:        []string{"Search"},
	}, s.handleSearch)
}

// SearchInput contains search parameters.
type SearchInput struct {
	Q          string   `query:"q" doc:"Search text"`
	Tags       []string `query:"tags" doc:"Required tags"`
	Unanswered bool     `query:"unanswered" doc:"Only questions without an accepted answer"`
	Open       bool     `query:"open" doc:"Exclude closed questions"`
	Sort       string   `query:"sort" enum:"relevance,recent,score,answers" default:"relevance" doc:"Sort field"`
	Order      string   `query:"order" enum:"asc,desc" default:"desc" doc:"Sort order"`
	Limit      int      `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Maximum hits"`
	Offset     int      `query:"offset" minimum:"0" default:"0" doc:"Hits to skip"`
}

// SearchOutput wraps search results for Huma.
type SearchOutput struct {
	Body search.SearchResult
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	params := search.DefaultSearchParams()
	params.Query = input.Q
	params.Tags = input.Tags
	params.Unanswered = input.Unanswered
	params.OpenOnly = input.Open
	params.SortBy = input.Sort
	params.SortOrder = input.Order
	params.Limit = input.Limit
	params.Offset = input.Offset

	res, err := s.services.Search.Search(ctx, params)
	if err != nil {
		return nil, toStatus(err)
	}
	if res.Hits == nil {
		res.Hits = []search.SearchHit{}
	}
	return &SearchOutput{Body: *res}, nil
}
