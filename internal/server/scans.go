package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ayusman/codescan/internal/store"
)

// maxListLimit caps the limit query parameter of GET /api/scans.
const maxListLimit = 1000

// scansHandler serves the scan history.
type scansHandler struct {
	repo *store.ScanRepository
}

type listScansResponse struct {
	Scans []*store.Scan `json:"scans"`
	Total int           `json:"total"`
}

// list handles GET /api/scans?limit=n.
func (h *scansHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	scans, err := h.repo.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scans")
		return
	}
	total, err := h.repo.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count scans")
		return
	}

	if scans == nil {
		scans = []*store.Scan{}
	}
	writeJSON(w, http.StatusOK, listScansResponse{Scans: scans, Total: total})
}

// get handles GET /api/scans/{id}.
func (h *scansHandler) get(w http.ResponseWriter, r *http.Request) {
	scan, err := h.repo.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Scan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get scan")
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

// deleteAll handles DELETE /api/scans.
func (h *scansHandler) deleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.repo.DeleteAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete scans")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
