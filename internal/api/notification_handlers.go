package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stackitapp/stackit-sync/internal/domain"
)

func (s *Server) registerNotificationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listNotifications",
		Method:      http.MethodGet,
		Path:        "/api/v1/notifications",
		Summary:     "List notifications",
		Description: "Returns the signed-in user's cached notifications, newest first",
		Tags:        []string{"Notifications"},
	}, s.handleListNotifications)

	huma.Register(s.api, huma.Operation{
		OperationID: "notificationStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/notifications/stats",
		Summary:     "Notification stats",
		Tags:        []string{"Notifications"},
	}, s.handleNotificationStats)

	huma.Register(s.api, huma.Operation{
		OperationID:   "markNotificationRead",
		Method:        http.MethodPost,
		Path:          "/api/v1/notifications/{id}/read",
		Summary:       "Mark notification read",
		Tags:          []string{"Notifications"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleMarkRead)

	huma.Register(s.api, huma.Operation{
		OperationID:   "markAllNotificationsRead",
		Method:        http.MethodPost,
		Path:          "/api/v1/notifications/read-all",
		Summary:       "Mark all notifications read",
		Tags:          []string{"Notifications"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleMarkAllRead)
}

// ListNotificationsInput contains parameters for listing notifications.
type ListNotificationsInput struct {
	UnreadOnly bool `query:"unread" doc:"Only unread notifications"`
}

// NotificationListResponse contains notifications and the unread count.
type NotificationListResponse struct {
	Notifications []domain.Notification `json:"notifications" doc:"Notifications, newest first"`
	UnreadCount   int64                 `json:"unread_count" doc:"Unread notifications"`
}

// NotificationListOutput wraps the notification list for Huma.
type NotificationListOutput struct {
	Body NotificationListResponse
}

// NotificationStatsOutput wraps notification stats for Huma.
type NotificationStatsOutput struct {
	Body domain.NotificationStats
}

// NotificationIDInput identifies a notification.
type NotificationIDInput struct {
	ID string `path:"id" doc:"Notification ID"`
}

func (s *Server) handleListNotifications(_ context.Context, input *ListNotificationsInput) (*NotificationListOutput, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	ns := s.services.Notifications
	list := ns.List()
	if input.UnreadOnly {
		list = ns.Unread()
	}
	return &NotificationListOutput{Body: NotificationListResponse{
		Notifications: nonNil(list),
		UnreadCount:   ns.UnreadCount(),
	}}, nil
}

func (s *Server) handleNotificationStats(_ context.Context, _ *struct{}) (*NotificationStatsOutput, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}
	return &NotificationStatsOutput{Body: s.services.Notifications.Stats()}, nil
}

func (s *Server) handleMarkRead(ctx context.Context, input *NotificationIDInput) (*struct{}, error) {
	userID, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if err := s.services.Notifications.MarkAsRead(ctx, input.ID, userID); err != nil {
		return nil, toStatus(err)
	}
	return nil, nil
}

func (s *Server) handleMarkAllRead(ctx context.Context, _ *struct{}) (*struct{}, error) {
	userID, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if err := s.services.Notifications.MarkAllAsRead(ctx, userID); err != nil {
		return nil, toStatus(err)
	}
	return nil, nil
}
