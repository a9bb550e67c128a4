package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Dawstr8/polish-peaks/internal/apiclient"
	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
	"github.com/Dawstr8/polish-peaks/internal/repository"
)

// AuthAPI is the subset of the remote auth endpoints the service uses
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*apiclient.LoginResult, error)
	Register(ctx context.Context, create models.UserCreate) (*models.User, error)
	Me(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context, refreshToken string) (*models.Token, error)
}

// FieldErrors maps form field names to a message
type FieldErrors map[string]string

var fieldMessages = map[string]string{
	"email":    "Invalid email address",
	"password": "Password is required",
}

// AuthService keeps the signed-in user of each web session in sync with
// the remote API
type AuthService struct {
	api             AuthAPI
	sessionRepo     repository.WebSessionRepo
	validate        *validator.Validate
	sessionDuration time.Duration
	metrics         *observability.WizardMetrics
	now             func() time.Time
}

// NewAuthService creates a new AuthService
func NewAuthService(
	api AuthAPI,
	sessionRepo repository.WebSessionRepo,
	sessionDuration time.Duration,
	metrics *observability.WizardMetrics,
) *AuthService {
	if sessionDuration <= 0 {
		sessionDuration = 24 * time.Hour
	}
	return &AuthService{
		api:             api,
		sessionRepo:     sessionRepo,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		sessionDuration: sessionDuration,
		metrics:         metrics,
		now:             time.Now,
	}
}

// Attach subscribes the service to unauthorized events
func (s *AuthService) Attach(bus *EventBus) {
	bus.Subscribe(EventUnauthorized, s.handleUnauthorized)
}

// Validate checks a login or registration form. The result is empty when
// the form is valid.
func (s *AuthService) Validate(form interface{}) FieldErrors {
	errs := FieldErrors{}
	err := s.validate.Struct(form)
	if err == nil {
		return errs
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["form"] = err.Error()
		return errs
	}
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if _, seen := errs[field]; seen {
			continue
		}
		msg, ok := fieldMessages[field]
		if !ok {
			msg = fmt.Sprintf("%s is invalid", fe.Field())
		}
		errs[field] = msg
	}
	return errs
}

// CurrentUser returns the session's user. A token whose user was never
// loaded triggers exactly one /auth/me call; its outcome is cached either way.
func (s *AuthService) CurrentUser(ctx context.Context, session *models.WebSession) *models.User {
	if session == nil || !session.IsAuthenticated() {
		return nil
	}
	if session.UserLoaded {
		return session.User()
	}

	ctx, span := observability.StartServiceSpan(ctx, "AuthService", "CurrentUser")
	defer span.End()

	user, err := s.api.Me(apiclient.WithToken(ctx, session.Token()))
	if err != nil {
		observability.WithContext(ctx).WithField("session_id", session.ID).Warnf("Loading current user failed: %v", err)
		user = nil
	}

	// A 401 above has already cleared the session through the event bus
	if session.IsAuthenticated() {
		session.SetUser(user)
	}
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		observability.WithContext(ctx).Errorf("Failed to store session user: %v", err)
	}
	return session.User()
}

// Login signs the session in with email and password
func (s *AuthService) Login(ctx context.Context, session *models.WebSession, form models.LoginForm) error {
	ctx, span := observability.StartServiceSpan(ctx, "AuthService", "Login")
	defer span.End()

	result, err := s.api.Login(ctx, form.Email, form.Password)
	if err != nil {
		s.metrics.RecordAuthAttempt(ctx, "password", false)
		observability.RecordError(span, err)
		return err
	}
	s.metrics.RecordAuthAttempt(ctx, "password", true)

	session.AccessToken = result.Token.AccessToken
	session.TokenType = result.Token.TokenType
	session.RefreshToken = result.RefreshToken
	session.TokenExpiresAt = tokenExpiry(result.Token.AccessToken, result.Expiry)
	session.ExpiresAt = s.now().UTC().Add(s.sessionDuration)
	session.UserLoaded = false

	user, err := s.api.Me(apiclient.WithToken(ctx, session.Token()))
	if err != nil {
		// CurrentUser retries on the next request
		observability.WithContext(ctx).Warnf("Loading user after login failed: %v", err)
	} else {
		session.SetUser(user)
	}

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to store session: %w", err)
	}

	observability.WithContext(ctx).WithField("session_id", session.ID).Infof("Signed in %s", form.Email)
	return nil
}

// Register creates an account on the API
func (s *AuthService) Register(ctx context.Context, create models.UserCreate) (*models.User, error) {
	ctx, span := observability.StartServiceSpan(ctx, "AuthService", "Register")
	defer span.End()

	user, err := s.api.Register(ctx, create)
	s.metrics.RecordAuthAttempt(ctx, "register", err == nil)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return user, nil
}

// Logout ends the session's sign-in. API errors are logged and ignored.
func (s *AuthService) Logout(ctx context.Context, session *models.WebSession) error {
	if session.IsAuthenticated() {
		if err := s.api.Logout(apiclient.WithToken(ctx, session.Token())); err != nil {
			observability.WithContext(ctx).Warnf("API logout failed: %v", err)
		}
	}
	session.ClearUser()
	return s.sessionRepo.Update(ctx, session)
}

// Refresh trades the session's refresh token for a new access token. On
// failure the session is signed out.
func (s *AuthService) Refresh(ctx context.Context, session *models.WebSession) error {
	ctx, span := observability.StartServiceSpan(ctx, "AuthService", "Refresh")
	defer span.End()

	token, err := s.api.Refresh(ctx, session.RefreshToken)
	if err != nil {
		s.metrics.RecordAuthAttempt(ctx, "refresh", false)
		observability.RecordError(span, err)
		session.ClearUser()
		if uerr := s.sessionRepo.Update(ctx, session); uerr != nil {
			observability.WithContext(ctx).Errorf("Failed to clear session: %v", uerr)
		}
		return err
	}
	s.metrics.RecordAuthAttempt(ctx, "refresh", true)

	session.AccessToken = token.AccessToken
	session.TokenType = token.TokenType
	session.TokenExpiresAt = tokenExpiry(token.AccessToken, time.Time{})
	return s.sessionRepo.Update(ctx, session)
}

// RefreshIfExpired refreshes the access token once its exp claim has passed
func (s *AuthService) RefreshIfExpired(ctx context.Context, session *models.WebSession) {
	if !session.IsAuthenticated() || !session.TokenExpired(s.now()) {
		return
	}
	if err := s.Refresh(ctx, session); err != nil {
		observability.WithContext(ctx).WithField("session_id", session.ID).Infof("Token refresh failed, signed out: %v", err)
	}
}

// handleUnauthorized signs out the session whose token the API rejected
func (s *AuthService) handleUnauthorized(ctx context.Context, event Event) {
	session := models.SessionFromContext(ctx)
	if session == nil || session.ID != event.SessionID {
		var err error
		session, err = s.sessionRepo.GetByID(ctx, event.SessionID)
		if err != nil || session == nil {
			return
		}
	}

	session.ClearUser()
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		observability.WithContext(ctx).Errorf("Failed to clear unauthorized session: %v", err)
	}
}

// tokenExpiry reads the exp claim without verifying the signature, the API
// being the only party that checks it. fallback is used when the token
// carries no exp.
func tokenExpiry(accessToken string, fallback time.Time) *time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err == nil && claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		return &exp
	}
	if !fallback.IsZero() {
		exp := fallback.UTC()
		return &exp
	}
	return nil
}
