package apiclient

import (
	"context"
	"net/http"

	"github.com/fastygo/deadlines/domain"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// Login signs in and, on success, stores the token and profile in the token source.
// The call is anonymous: a stale token is neither sent nor cleared by a 401.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	var res domain.AuthResult
	call := Call{
		Method:    http.MethodPost,
		Path:      "/api/auth/signin",
		Body:      credentials{Email: email, Password: password},
		Anonymous: true,
	}
	if err := c.Request(ctx, call, &res); err != nil {
		return nil, err
	}
	if res.Token() == "" {
		return nil, domain.NewError(domain.ErrCodeUnauthorized, "sign-in response carried no access token")
	}
	if err := c.completeProfile(ctx, &res); err != nil {
		return nil, err
	}
	if err := c.storeSession(ctx, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Register creates an account. A session is stored only when the backend issued a
// token; with email verification enabled it does not.
func (c *Client) Register(ctx context.Context, email, password, fullName string) (*domain.AuthResult, error) {
	var res domain.AuthResult
	call := Call{
		Method:    http.MethodPost,
		Path:      "/api/auth/signup",
		Body:      signupRequest{Email: email, Password: password, FullName: fullName},
		Anonymous: true,
		Timeout:   c.registerTimeout,
	}
	if err := c.Request(ctx, call, &res); err != nil {
		return nil, err
	}
	if res.Token() != "" {
		if err := c.completeProfile(ctx, &res); err != nil {
			return nil, err
		}
		if err := c.storeSession(ctx, &res); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

// Logout revokes the current token on the backend. It does not touch local state.
func (c *Client) Logout(ctx context.Context) error {
	return c.Request(ctx, Call{Method: http.MethodPost, Path: "/api/auth/signout", RequireAuth: true}, nil)
}

// Me returns the profile of the token holder.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	body, err := c.do(ctx, Call{Method: http.MethodGet, Path: "/api/auth/me", RequireAuth: true})
	if err != nil {
		return nil, err
	}
	return decodeObject[domain.User](body, "user")
}

// Revoke signs out the given token regardless of what the token source holds now.
func (c *Client) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return c.WithToken(token).Logout(ctx)
}

// MeWithToken returns the profile for an explicit token, leaving the token source alone.
func (c *Client) MeWithToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrNotAuthenticated
	}
	return c.WithToken(token).Me(ctx)
}

// completeProfile fills in the user of a sign-in response that carried only a
// token. It runs before anything is stored, so a failure leaves the current
// session in place.
func (c *Client) completeProfile(ctx context.Context, res *domain.AuthResult) error {
	if res.User != nil {
		return nil
	}
	user, err := c.MeWithToken(ctx, res.Token())
	if err != nil {
		return err
	}
	res.User = user
	return nil
}
