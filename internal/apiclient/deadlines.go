package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fastygo/deadlines/domain"
)

// DeadlineFilter narrows GetDeadlines. Zero values are not sent.
type DeadlineFilter struct {
	Status   string
	Priority string
	Limit    int
	Offset   int
}

func (f DeadlineFilter) query() string {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func (c *Client) GetDeadlines(ctx context.Context, filter DeadlineFilter) ([]domain.Deadline, error) {
	body, err := c.do(ctx, Call{Method: http.MethodGet, Path: "/api/deadlines" + filter.query(), RequireAuth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Deadline](body, "deadlines")
}

func (c *Client) GetDeadline(ctx context.Context, id string) (*domain.Deadline, error) {
	body, err := c.do(ctx, Call{Method: http.MethodGet, Path: deadlinePath(id), RequireAuth: true})
	if err != nil {
		return nil, err
	}
	return decodeObject[domain.Deadline](body, "deadline")
}

func (c *Client) CreateDeadline(ctx context.Context, in domain.DeadlineInput) (*domain.Deadline, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	body, err := c.do(ctx, Call{Method: http.MethodPost, Path: "/api/deadlines", Body: in, RequireAuth: true})
	if err != nil {
		return nil, err
	}
	return decodeObject[domain.Deadline](body, "deadline")
}

func (c *Client) UpdateDeadline(ctx context.Context, id string, in domain.DeadlineInput) (*domain.Deadline, error) {
	if id == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "deadline id is required")
	}
	body, err := c.do(ctx, Call{Method: http.MethodPut, Path: deadlinePath(id), Body: in, RequireAuth: true})
	if err != nil {
		return nil, err
	}
	return decodeObject[domain.Deadline](body, "deadline")
}

func (c *Client) DeleteDeadline(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewError(domain.ErrCodeInvalid, "deadline id is required")
	}
	return c.Request(ctx, Call{Method: http.MethodDelete, Path: deadlinePath(id), RequireAuth: true}, nil)
}

func deadlinePath(id string) string {
	return "/api/deadlines/" + url.PathEscape(id)
}
