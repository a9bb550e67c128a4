package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dawstr8/polish-peaks/internal/apiclient"
	"github.com/Dawstr8/polish-peaks/internal/handlers"
	"github.com/Dawstr8/polish-peaks/internal/middleware"
	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/repository"
	"github.com/Dawstr8/polish-peaks/internal/services"
)

const (
	testEmail    = "anna@example.com"
	testPassword = "secret"
	uploadsURL   = "http://uploads.test/"
)

// fakeAPI stands in for the Polish Peaks API
type fakeAPI struct {
	mu      sync.Mutex
	issued  int
	revoked bool
	photos  []models.SummitPhoto
	listErr bool
	peaks   []models.PeakWithDistance
	uploads []uploadCall
}

type uploadCall struct {
	FileName string
	Create   models.SummitPhotoCreate
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		peaks: []models.PeakWithDistance{
			{Peak: models.Peak{ID: 1, Name: "Rysy", Elevation: 2499, Range: "Tatry"}, Distance: 120.5},
			{Peak: models.Peak{ID: 2, Name: "Niżne Rysy", Elevation: 2430, Range: "Tatry"}, Distance: 870},
		},
	}
}

func (f *fakeAPI) issue(t *testing.T) string {
	f.mu.Lock()
	f.issued++
	n := f.issued
	f.mu.Unlock()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   testEmail,
		ID:        strconv.Itoa(n),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("api-secret"))
	require.NoError(t, err)
	return token
}

func (f *fakeAPI) revoke() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = true
}

func (f *fakeAPI) setPhotos(photos []models.SummitPhoto) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = photos
}

func (f *fakeAPI) failList() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = true
}

func (f *fakeAPI) recordedUploads() []uploadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uploadCall(nil), f.uploads...)
}

func (f *fakeAPI) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	return token != "" && !f.revoked
}

func apiJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	unauthorized := map[string]string{"detail": "Could not validate credentials"}

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != testEmail || r.PostForm.Get("password") != testPassword {
			apiJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "refresh-1", Path: "/"})
		apiJSON(w, http.StatusOK, map[string]string{"access_token": f.issue(t), "token_type": "bearer"})
	})
	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var create models.UserCreate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&create))
		if create.Email == "taken@example.com" {
			apiJSON(w, http.StatusBadRequest, map[string]string{"detail": "Email already registered"})
			return
		}
		apiJSON(w, http.StatusCreated, map[string]string{"email": create.Email, "created_at": "2024-08-14T09:12:00.123456"})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			apiJSON(w, http.StatusUnauthorized, unauthorized)
			return
		}
		apiJSON(w, http.StatusOK, map[string]string{"email": testEmail, "created_at": "2024-01-01T00:00:00"})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/photos", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" && !f.authorized(r) {
			apiJSON(w, http.StatusUnauthorized, unauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.listErr {
			apiJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Database unavailable"})
			return
		}
		apiJSON(w, http.StatusOK, f.photos)
	})
	mux.HandleFunc("POST /api/photos", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		file.Close()

		var create models.SummitPhotoCreate
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("summit_photo_create")), &create))

		f.mu.Lock()
		f.uploads = append(f.uploads, uploadCall{FileName: header.Filename, Create: create})
		f.mu.Unlock()

		apiJSON(w, http.StatusCreated, map[string]interface{}{
			"id":               7,
			"file_name":        "a1b2c3.png",
			"uploaded_at":      time.Now().UTC().Format("2006-01-02T15:04:05.999999"),
			"captured_at":      nil,
			"latitude":         create.Latitude,
			"longitude":        create.Longitude,
			"peak_id":          create.PeakID,
			"distance_to_peak": create.DistanceToPeak,
		})
	})
	mux.HandleFunc("GET /api/peaks/find", func(w http.ResponseWriter, r *http.Request) {
		apiJSON(w, http.StatusOK, f.peaks)
	})
	return mux
}

type testApp struct {
	t      *testing.T
	api    *fakeAPI
	server *httptest.Server
	client *http.Client
	drafts *repository.UploadDraftRepository
	bus    *services.EventBus
	hub    *services.WebSocketHub
}

func setupApp(t *testing.T, opts ...func(*Deps)) *testApp {
	t.Helper()

	api := newFakeAPI()
	apiServer := httptest.NewServer(api.handler(t))
	t.Cleanup(apiServer.Close)

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sessions := repository.NewWebSessionRepository(db)
	drafts := repository.NewUploadDraftRepository(db)

	staging, err := services.NewStagingService(t.TempDir(), nil, 5)
	require.NoError(t, err)

	bus := services.NewEventBus()
	client := apiclient.NewClient(apiServer.URL+"/api", apiServer.Client())
	client.OnUnauthorized(bus.UnauthorizedHook())

	formatter := services.NewMetadataFormatter(time.UTC)
	metadata := services.NewMetadataService(services.NewEXIFService(), formatter, nil)
	peaks := services.NewPeakService(apiclient.NewPeakClient(client), nil, services.PeakSearch{MaxDistance: 10000, Limit: 6}, nil)
	photos := apiclient.NewPhotoClient(client)

	auth := services.NewAuthService(apiclient.NewAuthClient(client), sessions, time.Hour, nil)
	auth.Attach(bus)
	wizard := services.NewUploadWizard(drafts, staging, metadata, peaks, photos, nil)

	hub := services.NewWebSocketHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	hub.Attach(bus)

	renderer, err := handlers.NewRenderer("", formatter, uploadsURL)
	require.NoError(t, err)

	deps := Deps{
		ServiceName: "polish-peaks-web-test",
		APIBaseURL:  apiServer.URL + "/api",
		Renderer:    renderer,
		Sessions:    sessions,
		Cookie:      middleware.SessionCookie{Name: "pp_session", Duration: time.Hour},
		Auth:        auth,
		Wizard:      wizard,
		Staging:     staging,
		Preview:     services.NewPreviewService(200),
		Metadata:    metadata,
		Photos:      photos,
		Bus:         bus,
		Hub:         hub,
		Store:       db,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	server := httptest.NewServer(NewRouter(deps))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testApp{
		t:      t,
		api:    api,
		server: server,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		drafts: drafts,
		bus:    bus,
		hub:    hub,
	}
}

func (a *testApp) do(req *http.Request) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.client.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp, string(body)
}

func (a *testApp) get(path string) (*http.Response, string) {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(a.t, err)
	return a.do(req)
}

func (a *testApp) post(path string, values url.Values) (*http.Response, string) {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(values.Encode()))
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

func (a *testApp) postFile(path, filename string, content []byte) (*http.Response, string) {
	a.t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(a.t, err)
	_, err = part.Write(content)
	require.NoError(a.t, err)
	require.NoError(a.t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, &body)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return a.do(req)
}

// expectRedirect asserts a 303 to target and returns the page it leads to
func (a *testApp) expectRedirect(resp *http.Response, target string) string {
	a.t.Helper()
	require.Equal(a.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(a.t, target, resp.Header.Get("Location"))
	_, body := a.get(target)
	return body
}

func (a *testApp) signIn() {
	a.t.Helper()
	resp, _ := a.post("/login", url.Values{"email": {testEmail}, "password": {testPassword}})
	require.Equal(a.t, http.StatusSeeOther, resp.StatusCode)
}

func (a *testApp) sessionID() string {
	a.t.Helper()
	u, err := url.Parse(a.server.URL)
	require.NoError(a.t, err)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == "pp_session" {
			return c.Value
		}
	}
	a.t.Fatal("no session cookie")
	return ""
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{G: 160, B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRouter_Home(t *testing.T) {
	app := setupApp(t)

	resp, body := app.get("/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Document Your Mountain Adventures")
	assert.Contains(t, body, "Upload Your First Summit")
	assert.Contains(t, body, strconv.Itoa(time.Now().Year())+" Polish Peaks. All rights reserved.")
	assert.NotEmpty(t, app.sessionID())
}

func TestRouter_Health(t *testing.T) {
	app := setupApp(t)

	resp, body := app.get("/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"healthy"`)
	assert.Contains(t, body, `"sessions":"ok"`)

	resp, body = app.get("/api/version")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"service":"polish-peaks-web"`)
}

func TestRouter_StaticAndNotFound(t *testing.T) {
	app := setupApp(t)

	resp, body := app.get("/static/app.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, ".masonry")

	resp, body = app.get("/no-such-page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "does not exist")
}

func TestRouter_Login(t *testing.T) {
	t.Run("invalid form is rejected before calling the API", func(t *testing.T) {
		app := setupApp(t)

		resp, body := app.post("/login", url.Values{"email": {"not-an-email"}})

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, body, "Invalid email address")
		assert.Contains(t, body, "Password is required")
		assert.Contains(t, body, `value="not-an-email"`)
	})

	t.Run("wrong password shows the API message", func(t *testing.T) {
		app := setupApp(t)

		resp, body := app.post("/login", url.Values{"email": {testEmail}, "password": {"nope"}})

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, body, "Incorrect email or password")
	})

	t.Run("sign in then sign out", func(t *testing.T) {
		app := setupApp(t)
		resp, _ := app.post("/login", url.Values{"email": {testEmail}, "password": {testPassword}})
		body := app.expectRedirect(resp, "/")

		assert.Contains(t, body, `class="account-email">`+testEmail)
		assert.Contains(t, body, "Welcome back")

		// flash is shown once
		_, body = app.get("/")
		assert.NotContains(t, body, "Welcome back")

		resp, _ = app.get("/login")
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "signed in users are redirected away from the form")

		resp, _ = app.post("/logout", nil)
		body = app.expectRedirect(resp, "/")
		assert.NotContains(t, body, testEmail)
		assert.Contains(t, body, "You have been signed out.")
	})

	t.Run("next is honoured for local paths only", func(t *testing.T) {
		app := setupApp(t)
		resp, _ := app.post("/login", url.Values{"email": {testEmail}, "password": {testPassword}, "next": {"/gallery"}})
		assert.Equal(t, "/gallery", resp.Header.Get("Location"))

		app = setupApp(t)
		resp, _ = app.post("/login", url.Values{"email": {testEmail}, "password": {testPassword}, "next": {"//evil.test"}})
		assert.Equal(t, "/", resp.Header.Get("Location"))
	})
}

func TestRouter_Register(t *testing.T) {
	t.Run("success sends the visitor to sign in", func(t *testing.T) {
		app := setupApp(t)

		resp, _ := app.post("/register", url.Values{"email": {"new@example.com"}, "password": {"pw"}})
		body := app.expectRedirect(resp, "/login")

		assert.Contains(t, body, "Account created. Please sign in.")
	})

	t.Run("API rejection is shown on the form", func(t *testing.T) {
		app := setupApp(t)

		resp, body := app.post("/register", url.Values{"email": {"taken@example.com"}, "password": {"pw"}})

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Contains(t, body, "Email already registered")
	})
}

func TestRouter_AuthRateLimit(t *testing.T) {
	app := setupApp(t, func(d *Deps) {
		d.Limiter = middleware.NewIPRateLimiter(1, 1)
	})

	// page views do not spend the budget
	for i := 0; i < 3; i++ {
		resp, _ := app.get("/login")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = app.get("/register")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, _ := app.post("/login", url.Values{"email": {testEmail}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := app.post("/login", url.Values{"email": {testEmail}, "password": {testPassword}})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Contains(t, body, "Too many attempts, please try again later")

	// the form itself stays reachable
	resp, _ = app.get("/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_UploadWizard(t *testing.T) {
	app := setupApp(t)
	app.signIn()

	var mu sync.Mutex
	var uploaded []services.Event
	app.bus.Subscribe(services.EventPhotoUploaded, func(_ context.Context, e services.Event) {
		mu.Lock()
		defer mu.Unlock()
		uploaded = append(uploaded, e)
	})

	_, body := app.get("/upload")
	assert.Contains(t, body, "Drag and drop or click to upload")

	resp, _ := app.postFile("/upload/select", "rysy.png", testPNG(t))
	body = app.expectRedirect(resp, "/upload")
	assert.Contains(t, body, "Captured At")
	assert.Contains(t, body, "No location or time data was found in this photo.")

	resp, preview := app.get("/upload/preview")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, preview)

	// pretend the photo carried a GPS block
	sessionID := app.sessionID()
	draft, err := app.drafts.GetBySessionID(context.Background(), sessionID)
	require.NoError(t, err)
	lat, lon, alt := 49.179, 20.088, 2499.0
	draft.Metadata = models.PhotoMetadata{Latitude: &lat, Longitude: &lon, Altitude: &alt}
	require.NoError(t, app.drafts.Save(context.Background(), draft))

	resp, _ = app.post("/upload/accept", nil)
	body = app.expectRedirect(resp, "/upload")
	assert.Contains(t, body, "Select a Peak")
	assert.Contains(t, body, "Rysy")
	assert.Contains(t, body, "120.5m away")
	assert.Contains(t, body, "2499m elevation")
	assert.NotContains(t, body, "Selected")

	resp, _ = app.post("/upload/peak", url.Values{"peak_id": {"1"}})
	body = app.expectRedirect(resp, "/upload")
	assert.Contains(t, body, "Selected")

	resp, _ = app.post("/upload/confirm", nil)
	body = app.expectRedirect(resp, "/upload")
	assert.Contains(t, body, "Upload Photo")
	assert.Contains(t, body, "Rysy")
	assert.Contains(t, body, "2499.0m")

	resp, _ = app.post("/upload/submit", nil)
	body = app.expectRedirect(resp, "/upload")
	assert.Contains(t, body, "Upload Successful!")
	assert.Contains(t, body, "#7")
	assert.Contains(t, body, uploadsURL+"a1b2c3.png")

	uploads := app.api.recordedUploads()
	require.Len(t, uploads, 1)
	call := uploads[0]
	assert.Equal(t, "rysy.png", call.FileName)
	require.NotNil(t, call.Create.PeakID)
	assert.Equal(t, int64(1), *call.Create.PeakID)
	assert.InDelta(t, 120.5, *call.Create.DistanceToPeak, 0.001)
	assert.InDelta(t, 49.179, *call.Create.Latitude, 0.0001)

	mu.Lock()
	require.Len(t, uploaded, 1)
	assert.Equal(t, sessionID, uploaded[0].SessionID)
	mu.Unlock()

	// going back after a successful upload is refused
	resp, _ = app.post("/upload/back", nil)
	body = app.expectRedirect(resp, "/upload")
	assert.Contains(t, body, "photo has already been uploaded")

	resp, _ = app.post("/upload/reset", nil)
	body = app.expectRedirect(resp, "/upload")
	assert.Contains(t, body, "Drag and drop or click to upload")
}

func TestRouter_UploadErrors(t *testing.T) {
	t.Run("actions out of order are refused", func(t *testing.T) {
		app := setupApp(t)

		resp, _ := app.post("/upload/accept", nil)
		body := app.expectRedirect(resp, "/upload")

		assert.Contains(t, body, "operation not available on this step")
		assert.Contains(t, body, "Drag and drop or click to upload")
	})

	t.Run("non image files are refused", func(t *testing.T) {
		app := setupApp(t)

		resp, _ := app.postFile("/upload/select", "notes.png", []byte("just some text"))
		body := app.expectRedirect(resp, "/upload")

		assert.Contains(t, body, "only image files are supported")
	})

	t.Run("no coordinates skips the lookup", func(t *testing.T) {
		app := setupApp(t)

		resp, _ := app.postFile("/upload/select", "rysy.png", testPNG(t))
		app.expectRedirect(resp, "/upload")
		resp, _ = app.post("/upload/accept", nil)
		body := app.expectRedirect(resp, "/upload")

		assert.Contains(t, body, "No Peaks Found")
	})

	t.Run("preview without a file", func(t *testing.T) {
		app := setupApp(t)

		resp, _ := app.get("/upload/preview")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRouter_Gallery(t *testing.T) {
	t.Run("lists photos", func(t *testing.T) {
		app := setupApp(t)
		captured := time.Now().Add(-3 * 24 * time.Hour)
		lat, lon := 49.179, 20.088
		app.api.setPhotos([]models.SummitPhoto{{
			ID:         3,
			FileName:   "summit.jpg",
			CapturedAt: &captured,
			Latitude:   &lat,
			Longitude:  &lon,
			Peak:       &models.Peak{ID: 1, Name: "Rysy", Elevation: 2499, Range: "Tatry"},
		}})

		resp, body := app.get("/gallery")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "#3")
		assert.Contains(t, body, "3 days ago")
		assert.Contains(t, body, uploadsURL+"summit.jpg")
		assert.Contains(t, body, "49.179000°, 20.088000°")
		assert.Contains(t, body, "2499.0m")
	})

	t.Run("empty gallery", func(t *testing.T) {
		app := setupApp(t)

		_, body := app.get("/gallery")

		assert.Contains(t, body, "No photos yet")
	})

	t.Run("API failure shows a banner", func(t *testing.T) {
		app := setupApp(t)
		app.api.failList()

		resp, body := app.get("/gallery")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Database unavailable")
	})
}

func TestRouter_UnauthorizedSignsOut(t *testing.T) {
	app := setupApp(t)
	app.signIn()
	sessionID := app.sessionID()

	u, err := url.Parse(app.server.URL)
	require.NoError(t, err)
	header := http.Header{}
	for _, c := range app.client.Jar.Cookies(u) {
		header.Add("Cookie", c.Name+"="+c.Value)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(app.server.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		return app.hub.SessionClientCount(sessionID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	app.api.revoke()
	_, body := app.get("/gallery")
	assert.Contains(t, body, "Could not validate credentials")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"unauthorized"}`, string(msg))

	_, body = app.get("/")
	assert.NotContains(t, body, testEmail)
	assert.Equal(t, sessionID, app.sessionID(), "the session survives, only the sign-in is dropped")
}

func TestRouter_MetadataAPI(t *testing.T) {
	app := setupApp(t)

	resp, body := app.postFile("/api/metadata", "rysy.png", testPNG(t))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.MetadataResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.True(t, out.Metadata.IsEmpty())
	assert.Equal(t, services.NotAvailable, out.Formatted.Latitude)
	assert.Equal(t, services.NotAvailable, out.Formatted.CapturedAt)

	req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/metadata", strings.NewReader("x"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/plain")
	resp, body = app.do(req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, `"error"`)
}
