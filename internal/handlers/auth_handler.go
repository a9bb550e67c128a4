package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Dawstr8/polish-peaks/internal/middleware"
	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
	"github.com/Dawstr8/polish-peaks/internal/services"
)

const genericAuthError = "Something went wrong. Please try again."

// AuthHandler serves the sign in, sign up and sign out pages
type AuthHandler struct {
	authService *services.AuthService
	renderer    *Renderer
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *services.AuthService, renderer *Renderer) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		renderer:    renderer,
	}
}

type authForm struct {
	Email     string
	Next      string
	Errors    services.FieldErrors
	FormError string
}

// LoginPage renders the sign in form
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if middleware.GetUserFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, authForm{Next: safeNext(r.URL.Query().Get("next"))})
}

// Login signs the session in
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, authForm{FormError: "Invalid form submission"})
		return
	}

	form := models.LoginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	form.Normalize()
	view := authForm{Email: form.Email, Next: safeNext(r.PostFormValue("next"))}

	if errs := h.authService.Validate(form); len(errs) > 0 {
		view.Errors = errs
		h.renderLogin(w, r, http.StatusUnprocessableEntity, view)
		return
	}

	session := middleware.GetSessionFromContext(r.Context())
	if err := h.authService.Login(r.Context(), session, form); err != nil {
		status, message := authFailure(err)
		view.FormError = message
		h.renderLogin(w, r, status, view)
		return
	}

	target := view.Next
	if target == "" {
		target = "/"
	}
	redirectWithFlash(w, r, target, FlashSuccess, "Welcome back, "+form.Email+"!")
}

// RegisterPage renders the sign up form
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if middleware.GetUserFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderRegister(w, r, http.StatusOK, authForm{})
}

// Register creates an account and sends the visitor to sign in
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderRegister(w, r, http.StatusBadRequest, authForm{FormError: "Invalid form submission"})
		return
	}

	create := models.UserCreate{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	create.Normalize()
	view := authForm{Email: create.Email}

	if errs := h.authService.Validate(create); len(errs) > 0 {
		view.Errors = errs
		h.renderRegister(w, r, http.StatusUnprocessableEntity, view)
		return
	}

	if _, err := h.authService.Register(r.Context(), create); err != nil {
		status, message := authFailure(err)
		view.FormError = message
		h.renderRegister(w, r, status, view)
		return
	}

	redirectWithFlash(w, r, "/login", FlashSuccess, "Account created. Please sign in.")
}

// Logout signs the session out
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session != nil {
		if err := h.authService.Logout(r.Context(), session); err != nil {
			observability.WithContext(r.Context()).Errorf("Logout failed: %v", err)
		}
	}
	redirectWithFlash(w, r, "/", FlashInfo, "You have been signed out.")
}

// TooManyAttempts re-renders the submitted form once the rate limit is hit
func (h *AuthHandler) TooManyAttempts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	view := authForm{
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		FormError: models.ErrTooManyAttempts.Error(),
	}
	if strings.HasPrefix(r.URL.Path, "/register") {
		h.renderRegister(w, r, http.StatusTooManyRequests, view)
		return
	}
	view.Next = safeNext(r.PostFormValue("next"))
	h.renderLogin(w, r, http.StatusTooManyRequests, view)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, view authForm) {
	if view.Errors == nil {
		view.Errors = services.FieldErrors{}
	}
	h.renderer.HTML(w, r, status, "login", Page{Title: "Sign In", Nav: "login", Data: view})
}

func (h *AuthHandler) renderRegister(w http.ResponseWriter, r *http.Request, status int, view authForm) {
	if view.Errors == nil {
		view.Errors = services.FieldErrors{}
	}
	h.renderer.HTML(w, r, status, "register", Page{Title: "Sign Up", Nav: "register", Data: view})
}

// authFailure maps an API failure to a status and a message for the form.
// Messages from the API are shown as they are.
func authFailure(err error) (int, string) {
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			return http.StatusUnauthorized, apiErr.Message
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return http.StatusUnprocessableEntity, apiErr.Message
		}
		return http.StatusBadGateway, apiErr.Message
	}
	return http.StatusBadGateway, genericAuthError
}

// safeNext only allows local redirect targets
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}
