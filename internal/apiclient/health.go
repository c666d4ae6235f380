package apiclient

import (
	"context"
	"net/http"
)

// HealthCheck calls the backend /health endpoint and returns its payload.
func (c *Client) HealthCheck(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	if err := c.Request(ctx, Call{Method: http.MethodGet, Path: "/health", Anonymous: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
