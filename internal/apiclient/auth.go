package apiclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// AuthClient talks to the auth endpoints
type AuthClient struct {
	c *Client
}

// NewAuthClient creates an auth client
func NewAuthClient(c *Client) *AuthClient {
	return &AuthClient{c: c}
}

// LoginResult is the outcome of a password grant
type LoginResult struct {
	Token        models.Token
	RefreshToken string
	// Expiry is zero when the API did not send expires_in
	Expiry time.Time
}

// Login exchanges email and password for an access token using the OAuth2
// password grant. The email is sent as the "username" form field.
func (a *AuthClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	cfg := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  a.c.URL(pathAuthLogin, nil),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	capture := &cookieCapture{name: refreshCookie, base: a.c.httpClient.Transport}
	hc := &http.Client{Transport: capture, Timeout: a.c.httpClient.Timeout}

	ctx, span := observability.StartAPISpan(ctx, http.MethodPost, pathAuthLogin)
	defer span.End()

	tok, err := cfg.PasswordCredentialsToken(context.WithValue(ctx, oauth2.HTTPClient, hc), email, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			apiErr := a.c.errorFromBody(re.Response.StatusCode, re.Body)
			observability.RecordError(span, apiErr)
			return nil, apiErr
		}
		observability.RecordError(span, err)
		return nil, err
	}
	observability.SetSuccess(span)

	return &LoginResult{
		Token: models.Token{
			AccessToken: tok.AccessToken,
			TokenType:   tok.TokenType,
		},
		RefreshToken: capture.Value(),
		Expiry:       tok.Expiry,
	}, nil
}

// Register creates an account
func (a *AuthClient) Register(ctx context.Context, create models.UserCreate) (*models.User, error) {
	var user models.User
	if err := a.c.postJSON(ctx, pathAuthRegister, create, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the user owning the token carried by ctx
func (a *AuthClient) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := a.c.get(ctx, pathAuthMe, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout ends the API side of the session
func (a *AuthClient) Logout(ctx context.Context) error {
	return a.c.do(ctx, http.MethodPost, pathAuthLogout, nil, nil, "", nil)
}

// Refresh trades a refresh token for a new access token
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (*models.Token, error) {
	if refreshToken == "" {
		return nil, models.ErrNotAuthenticated
	}

	req, err := a.c.newRequest(ctx, http.MethodPost, pathAuthRefresh, nil, nil, "")
	if err != nil {
		return nil, err
	}
	req.AddCookie(&http.Cookie{Name: refreshCookie, Value: refreshToken})

	var token models.Token
	if err := a.c.send(req, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// cookieCapture remembers one cookie set by the responses it carries
type cookieCapture struct {
	name string
	base http.RoundTripper

	mu    sync.Mutex
	value string
}

func (c *cookieCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	base := c.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == c.name {
			c.mu.Lock()
			c.value = cookie.Value
			c.mu.Unlock()
		}
	}
	return resp, nil
}

// Value returns the captured cookie value, empty when none was set
func (c *cookieCapture) Value() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
