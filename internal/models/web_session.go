package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WebSession is the server-side state behind the session cookie
type WebSession struct {
	ID             string     `json:"id"` // This is the session token
	AccessToken    string     `json:"-"`
	TokenType      string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
	UserEmail      string     `json:"userEmail,omitempty"`
	UserCreatedAt  *time.Time `json:"userCreatedAt,omitempty"`
	UserLoaded     bool       `json:"userLoaded"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	IPAddress      string     `json:"ipAddress,omitempty"`
	UserAgent      string     `json:"userAgent,omitempty"`
	IsActive       bool       `json:"isActive"`
}

// NewWebSession creates an anonymous session
func NewWebSession(ipAddress, userAgent string, duration time.Duration) *WebSession {
	now := time.Now().UTC()
	return &WebSession{
		ID:             uuid.New().String(),
		CreatedAt:      now,
		ExpiresAt:      now.Add(duration),
		LastActivityAt: now,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		IsActive:       true,
	}
}

// IsExpired checks if the session has expired
func (s *WebSession) IsExpired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

// Touch updates the last activity timestamp
func (s *WebSession) Touch() {
	s.LastActivityAt = time.Now().UTC()
}

// Invalidate marks the session as inactive
func (s *WebSession) Invalidate() {
	s.IsActive = false
}

// User returns the cached user, nil when signed out
func (s *WebSession) User() *User {
	if s.UserEmail == "" {
		return nil
	}
	user := &User{Email: s.UserEmail}
	if s.UserCreatedAt != nil {
		user.CreatedAt = *s.UserCreatedAt
	}
	return user
}

// SetUser caches the user and marks it loaded
func (s *WebSession) SetUser(user *User) {
	s.UserLoaded = true
	if user == nil {
		s.UserEmail = ""
		s.UserCreatedAt = nil
		return
	}
	created := user.CreatedAt
	s.UserEmail = user.Email
	s.UserCreatedAt = &created
}

// ClearUser drops the token and cached user
func (s *WebSession) ClearUser() {
	s.AccessToken = ""
	s.TokenType = ""
	s.RefreshToken = ""
	s.TokenExpiresAt = nil
	s.UserEmail = ""
	s.UserCreatedAt = nil
	s.UserLoaded = true
}

// TokenExpired reports whether the access token is past its exp claim
func (s *WebSession) TokenExpired(now time.Time) bool {
	return s.TokenExpiresAt != nil && !now.Before(*s.TokenExpiresAt)
}

// IsAuthenticated reports whether the session carries an access token
func (s *WebSession) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// Token returns the API token held by the session
func (s *WebSession) Token() *Token {
	if s.AccessToken == "" {
		return nil
	}
	return &Token{AccessToken: s.AccessToken, TokenType: s.TokenType}
}

type sessionContextKey struct{}

// ContextWithSession attaches the session to ctx
func ContextWithSession(ctx context.Context, s *WebSession) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session attached to ctx, if any
func SessionFromContext(ctx context.Context) *WebSession {
	if s, ok := ctx.Value(sessionContextKey{}).(*WebSession); ok {
		return s
	}
	return nil
}

// ErrSessionNotFound is returned when no stored session has the id
var ErrSessionNotFound = SessionError{"session not found"}

type SessionError struct {
	Message string
}

func (e SessionError) Error() string {
	return e.Message
}
