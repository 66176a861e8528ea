package api

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

const indexFile = "index.html"

// dashboardHandler serves the embedded dashboard. Paths that are not files
// fall back to index.html so client-side routes like /users/3 load the app.
// Unknown /api/ paths stay JSON 404s.
type dashboardHandler struct {
	assets fs.FS
}

func newDashboardHandler(assets fs.FS) *dashboardHandler {
	return &dashboardHandler{assets: assets}
}

func (h *dashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if strings.HasPrefix(name, "api/") || name == "api" {
		writeError(w, http.StatusNotFound, "not found", nil)
		return
	}
	if name == "" || !h.isFile(name) {
		name = indexFile
	}

	if name == indexFile {
		// The page names the current asset set; always revalidate it.
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}
	http.ServeFileFS(w, r, h.assets, name)
}

func (h *dashboardHandler) isFile(name string) bool {
	info, err := fs.Stat(h.assets, name)
	return err == nil && !info.IsDir()
}
