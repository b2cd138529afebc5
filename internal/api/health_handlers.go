package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stackitapp/stackit-sync/internal/transport"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns sync health with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"push":   s.checkTransport(),
		"search": s.checkSearchIndex(),
		"feed":   s.checkFeed(),
	}

	overall := "healthy"
	for _, c := range components {
		switch c.Status {
		case "unhealthy":
			overall = "unhealthy"
		case "degraded":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkTransport reports the push connection. Reconnecting is degraded;
// a signed-out client with no connection is healthy.
func (s *Server) checkTransport() ComponentHealth {
	if s.services.Transport == nil {
		return ComponentHealth{Status: "degraded", Message: "push transport not configured"}
	}

	state := s.services.Transport.State()
	switch state {
	case transport.StateConnected:
		return ComponentHealth{Status: "healthy", Message: string(state)}
	case transport.StateIdle:
		if s.services.Session != nil && s.services.Session.UserID() != "" {
			return ComponentHealth{Status: "unhealthy", Message: "signed in but not connected"}
		}
		return ComponentHealth{Status: "healthy", Message: "signed out"}
	default:
		return ComponentHealth{Status: "degraded", Message: string(state)}
	}
}

// checkSearchIndex verifies the Bleve index is accessible.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services.Search == nil {
		return ComponentHealth{Status: "degraded", Message: "search index not configured"}
	}

	start := time.Now()
	docCount, err := s.services.Search.DocumentCount()
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "search index unreachable",
		}
	}
	return ComponentHealth{
		Status:  "healthy",
		Latency: latency.String(),
		Message: strconv.FormatUint(docCount, 10) + " questions indexed",
	}
}

func (s *Server) checkFeed() ComponentHealth {
	if s.services.Feed == nil {
		return ComponentHealth{Status: "degraded", Message: "change feed not configured"}
	}
	return ComponentHealth{Status: "healthy", Message: formatFeedStatus(s.services.Feed.ClientCount())}
}

func formatFeedStatus(count int) string {
	switch count {
	case 0:
		return "no connected clients"
	case 1:
		return "1 connected client"
	default:
		return strconv.Itoa(count) + " connected clients"
	}
}
