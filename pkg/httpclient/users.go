package httpclient

import (
	"context"
	"fmt"
)

// User mirrors the users service payload. Timestamps stay as the wire
// strings; the services emit ISO 8601 without a zone.
type User struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
	LastLogin string `json:"last_login,omitempty"`
}

// TokenInfo is the users service's answer to a token validation.
type TokenInfo struct {
	Valid bool  `json:"valid"`
	User  *User `json:"user,omitempty"`
}

// UsersClient is the typed facade over the users service.
type UsersClient struct {
	client *ServiceClient
}

func NewUsersClient(client *ServiceClient) *UsersClient {
	return &UsersClient{client: client}
}

func (u *UsersClient) GetUser(ctx context.Context, id int, token string) (*User, error) {
	var user User
	err := u.client.GetJSON(ctx, fmt.Sprintf("/api/users/%d", id), &user, WithBearerToken(token))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *UsersClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	var info TokenInfo
	err := u.client.GetJSON(ctx, "/api/auth/validate", &info, WithBearerToken(token))
	if err != nil {
		return nil, err
	}
	return &info, nil
}
