package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Dawstr8/polish-peaks/internal/middleware"
	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
	"github.com/Dawstr8/polish-peaks/internal/services"
	"github.com/Dawstr8/polish-peaks/internal/web"
)

// Page is the data every template receives
type Page struct {
	Title string
	Nav   string
	User  *models.User
	Flash *Flash
	Year  int
	Data  interface{}
}

// Renderer executes page templates. Templates come from the embedded tree
// unless a directory is configured, in which case they are read from disk
// and reloaded when they change.
type Renderer struct {
	mu    sync.RWMutex
	pages map[string]*template.Template
	fsys  fs.FS
	funcs template.FuncMap

	watcher *fsnotify.Watcher
	now     func() time.Time
}

// NewRenderer parses all pages. dir may be empty.
func NewRenderer(dir string, formatter *services.MetadataFormatter, uploadsBaseURL string) (*Renderer, error) {
	r := &Renderer{
		fsys:  web.Templates(),
		funcs: templateFuncs(formatter, uploadsBaseURL),
		now:   time.Now,
	}

	if dir != "" {
		if _, err := os.Stat(filepath.Join(dir, "layout.html")); err != nil {
			observability.Warnf("Template directory %s has no layout.html, using embedded templates", dir)
			dir = ""
		} else {
			r.fsys = os.DirFS(dir)
		}
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	if dir != "" {
		if err := r.watch(dir); err != nil {
			observability.Warnf("Template reload disabled: %v", err)
		}
	}
	return r, nil
}

// load parses every page together with the layout and partials
func (r *Renderer) load() error {
	files, err := fs.Glob(r.fsys, "pages/*.html")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no page templates found")
	}

	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(path.Base(file), ".html")
		tmpl, err := template.New(name).Funcs(r.funcs).ParseFS(r.fsys, "layout.html", "partials/*.html", file)
		if err != nil {
			return fmt.Errorf("parse %s: %w", file, err)
		}
		pages[name] = tmpl
	}

	r.mu.Lock()
	r.pages = pages
	r.mu.Unlock()
	return nil
}

// watch reloads templates shortly after the last change under dir
func (r *Renderer) watch(dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, sub := range []string{"", "pages", "partials"} {
		if err := w.Add(filepath.Join(dir, sub)); err != nil {
			w.Close()
			return err
		}
	}
	r.watcher = w
	observability.Infof("Watching %s for template changes", dir)

	go func() {
		var pending bool
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 &&
					strings.HasSuffix(ev.Name, ".html") {
					pending = true
				}
			case <-ticker.C:
				if !pending {
					continue
				}
				pending = false
				if err := r.load(); err != nil {
					// keep serving the last good set
					observability.Errorf("Template reload failed: %v", err)
				} else {
					observability.Info("Templates reloaded")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				observability.Warnf("Template watch error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops watching the template directory
func (r *Renderer) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// HTML renders a page. The signed-in user, a pending flash message and the
// current year are filled in from the request.
func (r *Renderer) HTML(w http.ResponseWriter, req *http.Request, status int, name string, page Page) {
	r.mu.RLock()
	tmpl, ok := r.pages[name]
	r.mu.RUnlock()
	if !ok {
		observability.WithContext(req.Context()).Errorf("Unknown page template %q", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if page.User == nil {
		page.User = middleware.GetUserFromContext(req.Context())
	}
	if page.Flash == nil {
		page.Flash = popFlash(w, req)
	}
	page.Year = r.now().Year()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		observability.WithContext(req.Context()).Errorf("Failed to render %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

type errorPage struct {
	Status  int
	Message string
}

// Error renders the error page
func (r *Renderer) Error(w http.ResponseWriter, req *http.Request, status int, message string) {
	r.HTML(w, req, status, "error", Page{
		Title: http.StatusText(status),
		Data:  errorPage{Status: status, Message: message},
	})
}

// NotFound renders the error page for unknown routes
func (r *Renderer) NotFound(w http.ResponseWriter, req *http.Request) {
	r.Error(w, req, http.StatusNotFound, "The page you are looking for does not exist.")
}

func templateFuncs(f *services.MetadataFormatter, uploadsBaseURL string) template.FuncMap {
	return template.FuncMap{
		"lat":        f.FormatLatitude,
		"lon":        f.FormatLongitude,
		"alt":        f.FormatAltitude,
		"distance":   f.FormatDistance,
		"relative":   f.FormatRelative,
		"capturedAt": f.FormatCapturedAt,
		"elevation": func(metres int) string {
			v := float64(metres)
			return f.FormatAltitude(&v)
		},
		"location": func(lat, lon *float64) string {
			if lat == nil || lon == nil {
				return services.NotAvailable
			}
			return f.FormatLatitude(lat) + ", " + f.FormatLongitude(lon)
		},
		"photoURL": func(fileName string) string {
			return uploadsBaseURL + url.PathEscape(fileName)
		},
	}
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an ErrorResponse
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
