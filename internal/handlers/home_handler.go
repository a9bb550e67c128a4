package handlers

import "net/http"

// HomeHandler serves the landing page
type HomeHandler struct {
	renderer *Renderer
}

// NewHomeHandler creates a new HomeHandler
func NewHomeHandler(renderer *Renderer) *HomeHandler {
	return &HomeHandler{renderer: renderer}
}

// Home renders the landing page
func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.renderer.HTML(w, r, http.StatusOK, "home", Page{Nav: "home"})
}
