package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/enrollment"
)

// EnrollSubscribers handles POST /api/sequences/{id}/enroll
func (h *Handlers) EnrollSubscribers(w http.ResponseWriter, r *http.Request) {
	sequenceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sequence id")
		return
	}

	var req enrollment.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.enrollments.Enroll(r.Context(), sequenceID, &req)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	b := result.Batch
	resp := map[string]interface{}{
		"id":              b.ID,
		"status":          b.Status,
		"schedule":        b.Schedule,
		"source_details":  b.SourceDetails,
		"total_count":     b.TotalCount,
		"processed_count": b.ProcessedCount,
		"success_count":   b.SuccessCount,
		"error_count":     b.ErrorCount,
		"skipped_count":   b.SkippedCount,
	}
	if b.ScheduledAt != nil {
		resp["scheduled_at"] = b.ScheduledAt
	}
	if b.DripConfig != nil {
		resp["drip_config"] = b.DripConfig
	}
	if len(result.SubscriberErrors) > 0 {
		resp["subscriber_errors"] = result.SubscriberErrors
	}

	respondJSON(w, http.StatusCreated, resp)
}

// GetBatch handles GET /api/batches/{id}
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	batch, err := h.enrollments.GetBatch(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}
