package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ignite/crm-engine/internal/enrollment"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/segment"
	"github.com/ignite/crm-engine/internal/sequence"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	enrollments *enrollment.Service
	segments    *segment.Store
	sequences   *sequence.Store
	lifecycle   *sequence.Lifecycle
	linter      *sequence.Linter
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	enrollments *enrollment.Service,
	segments *segment.Store,
	sequences *sequence.Store,
	lifecycle *sequence.Lifecycle,
	linter *sequence.Linter,
) *Handlers {
	return &Handlers{
		enrollments: enrollments,
		segments:    segments,
		sequences:   sequences,
		lifecycle:   lifecycle,
		linter:      linter,
	}
}

// HealthCheck reports server liveness
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorKinds maps domain sentinels to a machine-distinguishable kind tag
// so clients do not have to parse error strings.
var errorKinds = map[error]string{
	enrollment.ErrInvalidSource:     "invalid_source",
	enrollment.ErrInvalidSchedule:   "invalid_schedule",
	enrollment.ErrEmailsRequired:    "emails_required",
	enrollment.ErrSegmentRequired:   "segment_required",
	enrollment.ErrNoSubscribers:     "no_subscribers",
	enrollment.ErrInactiveFirstStep: "inactive_first_step",
	enrollment.ErrSegmentNotFound:   "segment_not_found",
	enrollment.ErrSequenceNotFound:  "sequence_not_found",
	enrollment.ErrBatchNotFound:     "batch_not_found",
	sequence.ErrNotFound:            "sequence_not_found",
	sequence.ErrInvalidTransition:   "invalid_transition",
}

var notFoundErrors = []error{
	enrollment.ErrSegmentNotFound,
	enrollment.ErrSequenceNotFound,
	enrollment.ErrBatchNotFound,
	sequence.ErrNotFound,
}

var validationErrors = []error{
	enrollment.ErrInvalidSource,
	enrollment.ErrInvalidSchedule,
	enrollment.ErrEmailsRequired,
	enrollment.ErrSegmentRequired,
	enrollment.ErrNoSubscribers,
	enrollment.ErrInactiveFirstStep,
	sequence.ErrInvalidTransition,
}

// respondDomainError translates service errors: validation sentinels map to
// 400, not-found sentinels to 404, anything else is a 500 with a generic
// message (the real error goes to the log, not the client).
func respondDomainError(w http.ResponseWriter, err error) {
	for _, sentinel := range notFoundErrors {
		if errors.Is(err, sentinel) {
			respondJSON(w, http.StatusNotFound, map[string]string{
				"error": sentinel.Error(),
				"kind":  errorKinds[sentinel],
			})
			return
		}
	}
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			respondJSON(w, http.StatusBadRequest, map[string]string{
				"error": sentinel.Error(),
				"kind":  errorKinds[sentinel],
			})
			return
		}
	}
	logger.Error("request failed", "error", err.Error())
	respondError(w, http.StatusInternalServerError, "internal server error")
}
