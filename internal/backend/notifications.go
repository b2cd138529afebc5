package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/normalize"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

const resourceNotifications = "notifications"

// ListNotifications fetches one page of userID's notifications.
func (c *Client) ListNotifications(ctx context.Context, userID string, req domain.PageRequest) (domain.Page[domain.Notification], error) {
	var out wire.Page[wire.Notification]
	err := c.do(ctx, call{
		op:       "list notifications",
		method:   http.MethodGet,
		resource: resourceNotifications,
		path:     "/notifications/user/" + escape(userID),
		query:    pageQuery(req.Page, req.Size, "", ""),
		fallback: "Failed to fetch notifications",
	}, &out)
	if err != nil {
		return domain.Page[domain.Notification]{}, err
	}
	return normalize.Page(out, normalize.Notification), nil
}

// UnreadNotifications fetches every unread notification of userID.
func (c *Client) UnreadNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	var out []wire.Notification
	err := c.do(ctx, call{
		op:       "list unread notifications",
		method:   http.MethodGet,
		resource: resourceNotifications,
		path:     "/notifications/user/" + escape(userID) + "/unread",
		fallback: "Failed to fetch unread notifications",
	}, &out)
	if err != nil {
		return nil, err
	}
	list := make([]domain.Notification, 0, len(out))
	for _, n := range out {
		list = append(list, normalize.Notification(n))
	}
	return list, nil
}

// UnreadCount fetches userID's unread notification count.
func (c *Client) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var out wire.UnreadCount
	err := c.do(ctx, call{
		op:       "unread count",
		method:   http.MethodGet,
		resource: resourceNotifications,
		path:     "/notifications/user/" + escape(userID) + "/count",
		fallback: "Failed to fetch unread count",
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return c.do(ctx, call{
		op:       "mark notification read",
		method:   http.MethodPut,
		resource: resourceNotifications,
		path:     "/notifications/" + escape(id) + "/read",
		query:    url.Values{"userId": {userID}},
		fallback: "Failed to mark notification as read",
	}, nil)
}

// MarkAllNotificationsRead marks every notification of userID read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	return c.do(ctx, call{
		op:       "mark all notifications read",
		method:   http.MethodPut,
		resource: resourceNotifications,
		path:     "/notifications/user/" + escape(userID) + "/read-all",
		fallback: "Failed to mark all notifications as read",
	}, nil)
}
