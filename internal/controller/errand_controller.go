package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mashughuli/escrow/internal/application/payout"
)

// ErrandController handles errand lifecycle endpoints.
type ErrandController struct {
	approval *payout.Approval
}

// NewErrandController creates a new ErrandController.
func NewErrandController(approval *payout.Approval) *ErrandController {
	return &ErrandController{approval: approval}
}

// Approve handles POST /api/v1/errands/{id}/approve. The requester signs
// off on the completed work, which releases the escrowed payout.
func (h *ErrandController) Approve(w http.ResponseWriter, r *http.Request) {
	errandID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid errand id", Code: "invalid_id"})
		return
	}

	requesterID, ok := authedUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}

	if err := h.approval.Approve(r.Context(), errandID, requesterID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}
