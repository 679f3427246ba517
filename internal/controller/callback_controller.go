package controller

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/application/settlement"
	"github.com/mashughuli/escrow/internal/infrastructure/observability"
)

// CallbackController receives the payment provider's asynchronous results.
type CallbackController struct {
	engine  *settlement.Engine
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewCallbackController creates a new CallbackController.
func NewCallbackController(engine *settlement.Engine, logger zerolog.Logger, metrics *observability.Metrics) *CallbackController {
	return &CallbackController{
		engine:  engine,
		logger:  logger.With().Str("component", "callback").Logger(),
		metrics: metrics,
	}
}

// StkCallback handles POST /api/v1/payments/callback.
//
// The provider expects an acknowledgement no matter what happened
// internally; the real outcome reaches the client asynchronously on the
// payment topic. Only an unparseable envelope gets a 400, since that
// indicates the provider and we disagree about the contract itself.
func (h *CallbackController) StkCallback(w http.ResponseWriter, r *http.Request) {
	var env StkCallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.logger.Error().Err(err).Msg("malformed callback envelope")
		if h.metrics != nil {
			h.metrics.CallbacksTotal.WithLabelValues("malformed").Inc()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed callback", Code: "invalid_body"})
		return
	}

	ev := env.Body.StkCallback.toCallbackEvent()
	h.logger.Info().
		Str("checkout_request_id", ev.CheckoutRequestID).
		Int("result_code", ev.ResultCode).
		Msg("payment callback received")

	result := "ok"
	if err := h.engine.SettleCallback(r.Context(), ev); err != nil {
		// Settlement already published a failure to the client topic;
		// the provider still gets its acknowledgement.
		h.logger.Error().Err(err).
			Str("checkout_request_id", ev.CheckoutRequestID).
			Msg("settlement error")
		result = "error"
	}
	if h.metrics != nil {
		h.metrics.CallbacksTotal.WithLabelValues(result).Inc()
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
