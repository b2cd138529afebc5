package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/normalize"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

const resourceTags = "tags"

// ListTags fetches one page of tags.
func (c *Client) ListTags(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Tag], error) {
	var out wire.Page[wire.Tag]
	err := c.do(ctx, call{
		op:       "list tags",
		method:   http.MethodGet,
		resource: resourceTags,
		path:     "/tags",
		query:    pageQuery(req.Page, req.Size, req.SortBy, string(req.Dir)),
		fallback: "Failed to fetch tags",
	}, &out)
	if err != nil {
		return domain.Page[domain.Tag]{}, err
	}
	return normalize.Page(out, normalize.Tag), nil
}

// SearchTags returns tags whose names match query.
func (c *Client) SearchTags(ctx context.Context, query string) ([]domain.Tag, error) {
	return c.tagList(ctx, "search tags", "/tags/search", url.Values{"q": {query}}, "Failed to search tags")
}

// PopularTags returns the limit most used tags.
func (c *Client) PopularTags(ctx context.Context, limit int) ([]domain.Tag, error) {
	return c.tagList(ctx, "popular tags", "/tags/popular", url.Values{"limit": {strconv.Itoa(limit)}}, "Failed to fetch popular tags")
}

func (c *Client) tagList(ctx context.Context, op, path string, q url.Values, fallback string) ([]domain.Tag, error) {
	var out []wire.Tag
	err := c.do(ctx, call{
		op:       op,
		method:   http.MethodGet,
		resource: resourceTags,
		path:     path,
		query:    q,
		fallback: fallback,
	}, &out)
	if err != nil {
		return nil, err
	}
	return normalize.Tags(out), nil
}

// GetTag fetches a tag by id.
func (c *Client) GetTag(ctx context.Context, id string) (domain.Tag, error) {
	return c.tag(ctx, "get tag", "/tags/"+escape(id))
}

// GetTagByName fetches a tag by its name.
func (c *Client) GetTagByName(ctx context.Context, name string) (domain.Tag, error) {
	return c.tag(ctx, "get tag by name", "/tags/name/"+escape(name))
}

func (c *Client) tag(ctx context.Context, op, path string) (domain.Tag, error) {
	var out wire.Tag
	err := c.do(ctx, call{
		op:       op,
		method:   http.MethodGet,
		resource: resourceTags,
		path:     path,
		fallback: "Failed to fetch tag",
	}, &out)
	if err != nil {
		return domain.Tag{}, err
	}
	return normalize.Tag(out), nil
}
