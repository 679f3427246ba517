package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mashughuli/escrow/internal/application/settlement"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/middleware"
)

// PaymentController handles payment initiation and transaction reads.
type PaymentController struct {
	initiation   *settlement.PaymentInitiation
	transactions escrow.TransactionRepository
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(initiation *settlement.PaymentInitiation, transactions escrow.TransactionRepository) *PaymentController {
	return &PaymentController{
		initiation:   initiation,
		transactions: transactions,
	}
}

// InitiatePayment handles POST /api/v1/payments.
func (h *PaymentController) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	payerID, ok := authedUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}

	errandID, _ := uuid.Parse(req.ErrandID)
	bidID, _ := uuid.Parse(req.BidID)

	res, err := h.initiation.Initiate(r.Context(), settlement.InitiatePaymentInput{
		ErrandID:    errandID,
		BidID:       bidID,
		PayerID:     payerID,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, fromInitiation(res))
}

// GetTransaction handles GET /api/v1/transactions/{id}.
func (h *PaymentController) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid transaction id", Code: "invalid_id"})
		return
	}

	t, err := h.transactions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	userID, ok := authedUserID(r)
	if !ok || (t.PayerID != userID && t.PayeeID != userID) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden", Code: "forbidden"})
		return
	}

	writeJSON(w, http.StatusOK, fromTransaction(t))
}

// authedUserID pulls the authenticated user's id out of the request
// context placed there by the auth middleware.
func authedUserID(r *http.Request) (uuid.UUID, bool) {
	raw, ok := middleware.GetUserID(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
