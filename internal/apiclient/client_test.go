package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

func setupTestAPI(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/api", server.Client())
}

func TestClient_ErrorMessagePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "message wins",
			status: http.StatusBadRequest,
			body:   `{"message":"Bad file","detail":"ignored","errors":{"file":["x"]}}`,
			want:   "Bad file",
		},
		{
			name:   "detail string",
			status: http.StatusUnauthorized,
			body:   `{"detail":"Incorrect email or password"}`,
			want:   "Incorrect email or password",
		},
		{
			name:   "errors map sorted by field",
			status: http.StatusUnprocessableEntity,
			body:   `{"errors":{"password":["too short"],"email":["invalid","taken"]}}`,
			want:   "email: invalid, taken; password: too short",
		},
		{
			name:   "validation detail list",
			status: http.StatusUnprocessableEntity,
			body:   `{"detail":[{"loc":["body","email"],"msg":"value is not a valid email address"}]}`,
			want:   "email: value is not a valid email address",
		},
		{
			name:   "non json body",
			status: http.StatusBadGateway,
			body:   `<html>gateway</html>`,
			want:   "Request failed with status: 502",
		},
		{
			name:   "empty object",
			status: http.StatusInternalServerError,
			body:   `{}`,
			want:   "Request failed with status: 500",
		},
		{
			name:   "markup is stripped",
			status: http.StatusBadRequest,
			body:   `{"message":"<b>Peak</b> & <script>x</script>range"}`,
			want:   "Peak & range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			err := client.get(context.Background(), "/anything", nil, nil)

			var apiErr *models.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.want, apiErr.Message)
		})
	}
}

func TestClient_Headers(t *testing.T) {
	t.Run("json body sets content type and bearer token", func(t *testing.T) {
		var got *http.Request
		client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			got = r
			_, _ = io.WriteString(w, `{}`)
		})

		ctx := WithToken(context.Background(), &models.Token{AccessToken: "abc", TokenType: "bearer"})
		err := client.postJSON(ctx, "/things", map[string]string{"a": "b"}, nil)

		require.NoError(t, err)
		assert.Equal(t, "application/json", got.Header.Get("Accept"))
		assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer abc", got.Header.Get("Authorization"))
	})

	t.Run("get has no content type or token", func(t *testing.T) {
		var got *http.Request
		client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			got = r
			_, _ = io.WriteString(w, `[]`)
		})

		err := client.get(context.Background(), "/things", nil, nil)

		require.NoError(t, err)
		assert.Empty(t, got.Header.Get("Content-Type"))
		assert.Empty(t, got.Header.Get("Authorization"))
	})
}

func TestClient_UnauthorizedHook(t *testing.T) {
	client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
	})

	type key struct{}
	var calledWith interface{}
	client.OnUnauthorized(func(ctx context.Context) {
		calledWith = ctx.Value(key{})
	})

	ctx := context.WithValue(context.Background(), key{}, "session-1")
	err := client.get(ctx, "/auth/me", nil, nil)

	require.Error(t, err)
	assert.Equal(t, "session-1", calledWith)
}

func TestClient_PutAndDelete(t *testing.T) {
	var methods []string
	client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = io.WriteString(w, `{"name":"Rysy"}`)
	})

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, client.put(context.Background(), "/peaks/1", map[string]string{"name": "Rysy"}, &out))
	assert.Equal(t, "Rysy", out.Name)

	require.NoError(t, client.delete(context.Background(), "/peaks/1", &out))
	assert.Equal(t, []string{http.MethodPut, http.MethodDelete}, methods)
}

func TestPhotoClient_Upload(t *testing.T) {
	var (
		fileName    string
		fileContent string
		createJSON  string
	)
	client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/photos", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)

		fileName = header.Filename
		fileContent = string(data)
		createJSON = r.FormValue("summit_photo_create")

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":12,"file_name":"stored.jpg","uploaded_at":"2024-08-14T09:12:00.5","captured_at":null}`)
	})

	peakID := int64(3)
	lat := 49.179
	photo, err := NewPhotoClient(client).Upload(context.Background(), UploadRequest{
		File:        strings.NewReader("jpeg-bytes"),
		FileName:    "rysy.jpg",
		ContentType: "image/jpeg",
		Create:      &models.SummitPhotoCreate{Latitude: &lat, PeakID: &peakID},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(12), photo.ID)
	assert.Equal(t, "rysy.jpg", fileName)
	assert.Equal(t, "jpeg-bytes", fileContent)
	assert.JSONEq(t, `{"latitude":49.179,"peak_id":3}`, createJSON)
}

func TestPhotoClient_List(t *testing.T) {
	client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "captured_at", r.URL.Query().Get("sort_by"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		_, _ = io.WriteString(w, `[{"id":1,"file_name":"a.jpg","uploaded_at":"2024-08-14T09:12:00.123456","captured_at":"2024-08-13T06:30:00"}]`)
	})

	photos, err := NewPhotoClient(client).List(context.Background(), "captured_at", "desc")

	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "a.jpg", photos[0].FileName)
	assert.Equal(t, time.Date(2024, 8, 14, 9, 12, 0, 123456000, time.UTC), photos[0].UploadedAt)
	require.NotNil(t, photos[0].CapturedAt)
	assert.Equal(t, time.Date(2024, 8, 13, 6, 30, 0, 0, time.UTC), *photos[0].CapturedAt)
}

func TestPeakClient_FindNearby(t *testing.T) {
	t.Run("sends coordinates, limit and distance", func(t *testing.T) {
		client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "/api/peaks/find", r.URL.Path)
			assert.Equal(t, "49.179", q.Get("latitude"))
			assert.Equal(t, "20.088", q.Get("longitude"))
			assert.Equal(t, "6", q.Get("limit"))
			assert.Equal(t, "10000", q.Get("max_distance"))
			_, _ = io.WriteString(w, `[{"peak":{"id":1,"name":"Rysy","elevation":2499},"distance":120.5}]`)
		})

		maxDistance := 10000.0
		peaks, err := NewPeakClient(client).FindNearby(context.Background(), 49.179, 20.088, &maxDistance, 6)

		require.NoError(t, err)
		require.Len(t, peaks, 1)
		assert.Equal(t, "Rysy", peaks[0].Peak.Name)
		assert.Equal(t, 120.5, peaks[0].Distance)
	})

	t.Run("defaults limit and omits distance", func(t *testing.T) {
		client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "5", q.Get("limit"))
			assert.False(t, q.Has("max_distance"))
			_, _ = io.WriteString(w, `[]`)
		})

		peaks, err := NewPeakClient(client).FindNearby(context.Background(), 49.0, 20.0, nil, 0)

		require.NoError(t, err)
		assert.Empty(t, peaks)
	})
}

func TestAuthClient_Login(t *testing.T) {
	t.Run("password grant", func(t *testing.T) {
		client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/auth/login", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "password", r.PostForm.Get("grant_type"))
			assert.Equal(t, "anna@example.com", r.PostForm.Get("username"))
			assert.Equal(t, "secret", r.PostForm.Get("password"))

			http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "refresh-1", HttpOnly: true})
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"access-1","token_type":"bearer"}`)
		})

		result, err := NewAuthClient(client).Login(context.Background(), "anna@example.com", "secret")

		require.NoError(t, err)
		assert.Equal(t, "access-1", result.Token.AccessToken)
		assert.Equal(t, "bearer", result.Token.TokenType)
		assert.Equal(t, "refresh-1", result.RefreshToken)
	})

	t.Run("rejected credentials surface the detail", func(t *testing.T) {
		client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Incorrect email or password"}`)
		})

		hookCalled := false
		client.OnUnauthorized(func(context.Context) { hookCalled = true })

		_, err := NewAuthClient(client).Login(context.Background(), "anna@example.com", "wrong")

		var apiErr *models.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "Incorrect email or password", apiErr.Message)
		assert.False(t, hookCalled, "a failed login is not a lost session")
	})
}

func TestAuthClient_RegisterMeRefresh(t *testing.T) {
	client := setupTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/register":
			var body models.UserCreate
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "anna@example.com", body.Email)
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"email":"anna@example.com","created_at":"2024-08-14T09:12:00.123456"}`)
		case "/api/auth/me":
			assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, `{"email":"anna@example.com","created_at":"2024-08-14T09:12:00.123456"}`)
		case "/api/auth/refresh":
			cookie, err := r.Cookie("refresh_token")
			require.NoError(t, err)
			assert.Equal(t, "refresh-1", cookie.Value)
			_, _ = io.WriteString(w, `{"access_token":"access-2","token_type":"bearer"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	auth := NewAuthClient(client)

	user, err := auth.Register(context.Background(), models.UserCreate{Email: "anna@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", user.Email)

	ctx := WithToken(context.Background(), &models.Token{AccessToken: "access-1", TokenType: "bearer"})
	me, err := auth.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 8, 14, 9, 12, 0, 123456000, time.UTC), me.CreatedAt)

	token, err := auth.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", token.AccessToken)

	_, err = auth.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}
