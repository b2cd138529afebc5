package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

func (s *Server) registerTagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags",
		Summary:     "List tags",
		Description: "Returns cached tags with aggregate stats",
		Tags:        []string{"Tags"},
	}, s.handleListTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "popularTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/popular",
		Summary:     "Popular tags",
		Tags:        []string{"Tags"},
	}, s.handlePopularTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "suggestTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/suggest",
		Summary:     "Suggest tags",
		Description: "Returns tags matching partial input for autocomplete",
		Tags:        []string{"Tags"},
	}, s.handleSuggestTags)
}

// TagListResponse contains tags.
type TagListResponse struct {
	Tags  []domain.Tag     `json:"tags" doc:"Tags"`
	Stats *domain.TagStats `json:"stats,omitempty" doc:"Aggregate usage"`
}

// TagListOutput wraps a tag list for Huma.
type TagListOutput struct {
	Body TagListResponse
}

// PopularTagsInput contains parameters for popular tags.
type PopularTagsInput struct {
	Limit int `query:"limit" minimum:"1" maximum:"100" default:"10" doc:"Maximum tags"`
}

// SuggestTagsInput contains parameters for tag suggestions.
type SuggestTagsInput struct {
	Q string `query:"q" doc:"Partial tag name"`
}

func (s *Server) handleListTags(_ context.Context, _ *struct{}) (*TagListOutput, error) {
	stats := s.services.Tags.Stats()
	return &TagListOutput{Body: TagListResponse{
		Tags:  nonNil(s.services.Tags.List()),
		Stats: &stats,
	}}, nil
}

func (s *Server) handlePopularTags(ctx context.Context, input *PopularTagsInput) (*TagListOutput, error) {
	tags, err := s.services.Tags.Popular(ctx, input.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TagListOutput{Body: TagListResponse{Tags: nonNil(tags)}}, nil
}

func (s *Server) handleSuggestTags(ctx context.Context, input *SuggestTagsInput) (*TagListOutput, error) {
	return &TagListOutput{Body: TagListResponse{Tags: nonNil(s.services.Tags.Suggest(ctx, input.Q))}}, nil
}
