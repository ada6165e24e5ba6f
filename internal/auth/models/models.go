package models

import (
	"maps"
	"time"
)

// Credentials is the token pair owned by the token store
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// UserProfile is the server-authoritative account record. The locally cached
// copy is only a hint and is re-fetched on every login and process start.
type UserProfile struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	PictureURL  string         `json:"picture_url,omitempty"`
	Memory      map[string]any `json:"memory"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
}

// DisplayName joins first and last name, falling back to the email.
func (u *UserProfile) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// Clone returns a copy that shares no mutable state with u.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	if u.Memory != nil {
		c.Memory = maps.Clone(u.Memory)
	}
	if u.UpdatedAt != nil {
		t := *u.UpdatedAt
		c.UpdatedAt = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// PendingAuthorization survives a full page navigation to the identity provider.
type PendingAuthorization struct {
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
	State        string `json:"state,omitempty"`
}

// AuthorizationRequest is a built authorization URL with the secrets needed to redeem its code.
type AuthorizationRequest struct {
	URL          string
	CodeVerifier string
	RedirectURI  string
	State        string
}

// AuthorizationResponse is what comes back from the provider in-process.
type AuthorizationResponse struct {
	Code  string
	State string
}

// ExchangeRequest is the body of POST /auth/google/callback
type ExchangeRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
}

// TokenResponse is returned by the code exchange
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *UserProfile `json:"user"`
	IsNewUser    bool         `json:"is_new_user"`
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse is returned by the refresh endpoint
type RefreshResponse struct {
	AccessToken string       `json:"access_token"`
	User        *UserProfile `json:"user,omitempty"`
}

// LoginResult tells the caller where to route after a login attempt.
type LoginResult struct {
	Authenticated bool
	IsNewUser     bool
	// Pending is set when control left the process (page redirect) and the
	// result will be delivered to the callback route instead.
	Pending bool
	User    *UserProfile
}
