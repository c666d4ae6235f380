package apiclient

import (
	"context"
	"net/http"

	"github.com/fastygo/deadlines/domain"
)

func (c *Client) GetNotifications(ctx context.Context) ([]domain.Notification, error) {
	body, err := c.do(ctx, Call{Method: http.MethodGet, Path: "/api/notifications", RequireAuth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Notification](body, "notifications")
}

func (c *Client) GetNotificationPreferences(ctx context.Context) (*domain.NotificationPreferences, error) {
	body, err := c.do(ctx, Call{Method: http.MethodGet, Path: "/api/notifications/preferences", RequireAuth: true})
	if err != nil {
		return nil, err
	}
	return decodeObject[domain.NotificationPreferences](body, "preferences")
}

func (c *Client) UpdateNotificationPreferences(ctx context.Context, prefs domain.NotificationPreferences) (*domain.NotificationPreferences, error) {
	body, err := c.do(ctx, Call{Method: http.MethodPut, Path: "/api/notifications/preferences", Body: prefs, RequireAuth: true})
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return &prefs, nil
	}
	return decodeObject[domain.NotificationPreferences](body, "preferences")
}
