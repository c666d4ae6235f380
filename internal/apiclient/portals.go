package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fastygo/deadlines/domain"
)

func (c *Client) GetPortals(ctx context.Context) ([]domain.Portal, error) {
	body, err := c.do(ctx, Call{Method: http.MethodGet, Path: "/api/portals", RequireAuth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Portal](body, "portals")
}

func (c *Client) CreatePortal(ctx context.Context, portal domain.Portal) (*domain.Portal, error) {
	if portal.Name == "" || portal.PortalType == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "portal name and type are required")
	}
	body, err := c.do(ctx, Call{Method: http.MethodPost, Path: "/api/portals", Body: portal, RequireAuth: true})
	if err != nil {
		return nil, err
	}
	return decodeObject[domain.Portal](body, "portal")
}

// SyncPortal asks the backend to poll the portal now.
func (c *Client) SyncPortal(ctx context.Context, id string) (*domain.SyncResult, error) {
	if id == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "portal id is required")
	}
	var res domain.SyncResult
	err := c.Request(ctx, Call{Method: http.MethodPost, Path: portalPath(id) + "/sync", RequireAuth: true}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeletePortal(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewError(domain.ErrCodeInvalid, "portal id is required")
	}
	return c.Request(ctx, Call{Method: http.MethodDelete, Path: portalPath(id), RequireAuth: true}, nil)
}

func portalPath(id string) string {
	return "/api/portals/" + url.PathEscape(id)
}
