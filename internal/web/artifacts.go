package web

import (
	"io"
	"net/http"
	"strings"
)

// apiArtifact serves GET /api/artifacts/{id} (metadata) and GET
// /api/artifacts/{id}/data (raw bytes) for a tool-produced attachment
// internal/artifacts persisted after an attachment_uploaded event.
func (h *Handler) apiArtifact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config.Artifacts == nil {
		h.jsonError(w, "artifact storage not configured", http.StatusNotFound)
		return
	}

	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/artifacts/"))
	if len(parts) == 0 || parts[0] == "" {
		h.jsonError(w, "expected /api/artifacts/{id}", http.StatusBadRequest)
		return
	}
	artifactID := parts[0]
	wantData := len(parts) == 2 && parts[1] == "data"
	if len(parts) > 2 || (len(parts) == 2 && !wantData) {
		h.jsonError(w, "expected /api/artifacts/{id} or /api/artifacts/{id}/data", http.StatusBadRequest)
		return
	}

	artifact, data, err := h.config.Artifacts.GetArtifact(r.Context(), artifactID)
	if err != nil {
		h.jsonError(w, "artifact not found", http.StatusNotFound)
		return
	}
	defer data.Close()

	if !wantData {
		io.Copy(io.Discard, data) //nolint:errcheck
		h.jsonResponse(w, ArtifactResponse{
			ID:       artifact.Id,
			Type:     artifact.Type,
			MimeType: artifact.MimeType,
			Filename: artifact.Filename,
			Size:     artifact.Size,
		})
		return
	}

	if artifact.MimeType != "" {
		w.Header().Set("Content-Type", artifact.MimeType)
	}
	if _, err := io.Copy(w, data); err != nil {
		h.config.Logger.Error("artifact data copy error", "id", artifactID, "error", err)
	}
}
