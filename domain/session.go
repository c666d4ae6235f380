package domain

// AuthResult is the backend response to signin/signup.
//
// Depending on the backend's email verification policy the token is either
// top-level, nested under "session", or missing entirely.
type AuthResult struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	User         *User        `json:"user,omitempty"`
	Session      *AuthSession `json:"session,omitempty"`
	Message      string       `json:"message,omitempty"`
}

type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// Token returns the bearer token carried by the result, if any.
func (r *AuthResult) Token() string {
	if r == nil {
		return ""
	}
	if r.AccessToken != "" {
		return r.AccessToken
	}
	if r.Session != nil {
		return r.Session.AccessToken
	}
	return ""
}

// Refresh returns the refresh token carried by the result, if any.
func (r *AuthResult) Refresh() string {
	if r == nil {
		return ""
	}
	if r.RefreshToken != "" {
		return r.RefreshToken
	}
	if r.Session != nil {
		return r.Session.RefreshToken
	}
	return ""
}
