package transport

import "strings"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Valid() bool {
	return strings.TrimSpace(r.Email) != "" && r.Password != ""
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (r RegisterRequest) Valid() bool {
	return strings.TrimSpace(r.Email) != "" && r.Password != ""
}
