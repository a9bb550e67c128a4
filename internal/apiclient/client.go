package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/oauth2"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// maxErrorBody caps how much of an error response is read
const maxErrorBody = 64 << 10

type tokenContextKey struct{}

// WithToken returns a context whose API calls carry the bearer token
func WithToken(ctx context.Context, token *models.Token) context.Context {
	if token == nil || token.AccessToken == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, &oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	})
}

func tokenFromContext(ctx context.Context) *oauth2.Token {
	if tok, ok := ctx.Value(tokenContextKey{}).(*oauth2.Token); ok {
		return tok
	}
	return nil
}

// Client is the shared HTTP plumbing for the Polish Peaks API
type Client struct {
	baseURL        string
	httpClient     *http.Client
	sanitizer      *bluemonday.Policy
	onUnauthorized func(ctx context.Context)
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// OnUnauthorized registers the hook run whenever the API answers 401
func (c *Client) OnUnauthorized(fn func(ctx context.Context)) {
	c.onUnauthorized = fn
}

// URL joins path and query onto the base URL
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := encodeJSON(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, payload, "application/json", out)
}

func (c *Client) postMultipart(ctx context.Context, path string, body io.Reader, contentType string, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, contentType, out)
}

func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
	payload, err := encodeJSON(body)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, path, nil, payload, "application/json", out)
}

func (c *Client) delete(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, "", out)
}

func encodeJSON(body interface{}) (io.Reader, error) {
	if body == nil {
		return nil, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := tokenFromContext(ctx); tok != nil {
		tok.SetAuthHeader(req)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

// send executes req inside a client span and decodes a 2xx body into out
func (c *Client) send(req *http.Request, out interface{}) error {
	ctx, span := observability.StartAPISpan(req.Context(), req.Method, req.URL.Path)
	defer span.End()

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := c.errorFromBody(resp.StatusCode, body)
		observability.RecordError(span, apiErr)
		if apiErr.IsUnauthorized() && c.onUnauthorized != nil {
			c.onUnauthorized(req.Context())
		}
		return apiErr
	}

	observability.SetSuccess(span)

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

type errorBody struct {
	Message string              `json:"message"`
	Detail  json.RawMessage     `json:"detail"`
	Errors  map[string][]string `json:"errors"`
}

type validationIssue struct {
	Loc []interface{} `json:"loc"`
	Msg string        `json:"msg"`
}

// errorFromBody picks the most specific message the API returned:
// message, then a string detail, then the errors map, then a validation
// detail list.
func (c *Client) errorFromBody(status int, body []byte) *models.APIError {
	apiErr := models.NewAPIError(status)

	var parsed errorBody
	if len(body) == 0 || json.Unmarshal(body, &parsed) != nil {
		return apiErr
	}

	var detail string
	_ = json.Unmarshal(parsed.Detail, &detail)

	var msg string
	switch {
	case parsed.Message != "":
		msg = parsed.Message
	case detail != "":
		msg = detail
	case len(parsed.Errors) > 0:
		msg = formatFieldErrors(parsed.Errors)
	default:
		msg = formatValidationDetail(parsed.Detail)
	}

	if msg = c.sanitize(msg); msg != "" {
		apiErr.Message = msg
	}
	return apiErr
}

func formatFieldErrors(errs map[string][]string) string {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(errs[field], ", ")))
	}
	return strings.Join(parts, "; ")
}

func formatValidationDetail(raw json.RawMessage) string {
	var issues []validationIssue
	if len(raw) == 0 || json.Unmarshal(raw, &issues) != nil {
		return ""
	}

	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		if issue.Msg == "" {
			continue
		}
		if n := len(issue.Loc); n > 0 {
			parts = append(parts, fmt.Sprintf("%v: %s", issue.Loc[n-1], issue.Msg))
		} else {
			parts = append(parts, issue.Msg)
		}
	}
	return strings.Join(parts, "; ")
}

// sanitize strips markup from API text before it reaches a page
func (c *Client) sanitize(msg string) string {
	return strings.TrimSpace(html.UnescapeString(c.sanitizer.Sanitize(msg)))
}
