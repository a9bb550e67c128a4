package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/Dawstr8/polish-peaks/internal/apiclient"
	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
	"github.com/Dawstr8/polish-peaks/internal/repository"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// SessionAuthenticator resolves the signed-in user of a session
type SessionAuthenticator interface {
	RefreshIfExpired(ctx context.Context, session *models.WebSession)
	CurrentUser(ctx context.Context, session *models.WebSession) *models.User
}

// SessionCookie configures the session cookie
type SessionCookie struct {
	Name     string
	Secure   bool
	Duration time.Duration
}

// Set writes the cookie for a session
func (c SessionCookie) Set(w http.ResponseWriter, session *models.WebSession) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetUserFromContext retrieves the signed-in user from request context
func GetUserFromContext(ctx context.Context) *models.User {
	if user, ok := ctx.Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// GetSessionFromContext retrieves the web session from request context
func GetSessionFromContext(ctx context.Context) *models.WebSession {
	return models.SessionFromContext(ctx)
}

// SessionLoader gives every visitor a server-side session. Unknown, expired
// or invalidated cookies are replaced by a fresh anonymous session. The
// session, its user and its API token are attached to the request context.
func SessionLoader(sessionRepo repository.WebSessionRepo, auth SessionAuthenticator, cookie SessionCookie) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var session *models.WebSession
			if c, err := r.Cookie(cookie.Name); err == nil && c.Value != "" {
				found, err := sessionRepo.GetByID(ctx, c.Value)
				if err != nil {
					observability.WithContext(ctx).Errorf("Session lookup failed: %v", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				switch {
				case found == nil || !found.IsActive:
				case found.IsExpired():
					// the janitor reclaims it and its staged file on the next sweep
					if err := sessionRepo.Invalidate(ctx, found.ID); err != nil {
						observability.WithContext(ctx).Warnf("Failed to invalidate expired session: %v", err)
					}
				default:
					session = found
				}
			}

			if session == nil {
				session = models.NewWebSession(ClientIP(r), r.UserAgent(), cookie.Duration)
				if err := sessionRepo.Add(ctx, session); err != nil {
					observability.WithContext(ctx).Errorf("Failed to create session: %v", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				cookie.Set(w, session)
			} else {
				go sessionRepo.Touch(context.Background(), session.ID)
			}

			ctx = models.ContextWithSession(ctx, session)
			auth.RefreshIfExpired(ctx, session)
			user := auth.CurrentUser(ctx, session)

			ctx = context.WithValue(ctx, UserContextKey, user)
			if token := session.Token(); token != nil {
				ctx = apiclient.WithToken(ctx, token)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the request's remote address without the port
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
