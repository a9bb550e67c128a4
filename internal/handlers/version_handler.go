package handlers

import "net/http"

// Set with -ldflags at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionResponse describes the running build and the API it fronts
type VersionResponse struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	API       string `json:"api"`
}

// NewVersionHandler reports build information
// @Summary Build information
// @Tags health
// @Produce json
// @Success 200 {object} VersionResponse
// @Router /api/version [get]
func NewVersionHandler(apiBaseURL string) http.HandlerFunc {
	resp := VersionResponse{
		Service:   "polish-peaks-web",
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		API:       apiBaseURL,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}
