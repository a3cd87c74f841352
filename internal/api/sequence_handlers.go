package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/crm-engine/internal/sequence"
)

// ValidateSequence handles POST /api/sequences/validate — lints an explicit
// sequence payload (steps included) without anything being stored.
func (h *Handlers) ValidateSequence(w http.ResponseWriter, r *http.Request) {
	var seq sequence.Sequence
	if err := json.NewDecoder(r.Body).Decode(&seq); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	respondIssues(w, h.linter.Validate(&seq))
}

// ValidateStoredSequence handles POST /api/sequences/{id}/validate — lints
// the stored steps for a sequence.
func (h *Handlers) ValidateStoredSequence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sequence id")
		return
	}

	seq, err := h.sequences.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if seq == nil {
		respondDomainError(w, sequence.ErrNotFound)
		return
	}
	respondIssues(w, h.linter.Validate(seq))
}

func respondIssues(w http.ResponseWriter, issues []sequence.Issue) {
	counts := map[sequence.Severity]int{}
	for _, issue := range issues {
		counts[issue.Severity]++
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":  counts[sequence.SeverityError] == 0,
		"issues": issues,
		"counts": counts,
	})
}

// ActivateSequence handles POST /api/sequences/{id}/activate — transitions
// draft/paused to active, reviving paused enrollments on resume.
func (h *Handlers) ActivateSequence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sequence id")
		return
	}

	result, err := h.lifecycle.Activate(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
