package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/enrollment"
	"github.com/ignite/crm-engine/internal/segment"
)

// PreviewSegment handles GET /api/segments/{id}/preview — reports how many
// subscribers the segment currently resolves to, without enrolling anyone.
func (h *Handlers) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid segment id")
		return
	}

	seg, err := h.segments.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if seg == nil {
		respondDomainError(w, enrollment.ErrSegmentNotFound)
		return
	}

	var count int
	switch res := seg.Resolution.(type) {
	case segment.Dynamic:
		count, err = h.segments.CountDynamic(r.Context(), res.Query)
	default:
		var ids []uuid.UUID
		ids, err = h.segments.ResolveStatic(r.Context(), id)
		count = len(ids)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"segment_id":   seg.ID,
		"name":         seg.Name,
		"segment_type": seg.Type(),
		"count":        count,
	})
}

// ListSegmentFields handles GET /api/segments/fields — the allow-listed
// columns a dynamic segment condition may reference.
func (h *Handlers) ListSegmentFields(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fields": segment.AllowedFields(),
	})
}
