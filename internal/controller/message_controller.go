package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/domain/message"
	"github.com/mashughuli/escrow/internal/realtime"
)

const defaultHistoryLimit = 100

// ConversationRelay fans a payload out to a conversation topic so gateway
// subscribers see messages sent over REST as well.
type ConversationRelay interface {
	Relay(ctx context.Context, topic string, payload []byte) error
}

// MessageController serves the chat REST surface for clients that are
// not connected to the realtime gateway.
type MessageController struct {
	messages message.Repository
	relay    ConversationRelay
	logger   zerolog.Logger
}

// NewMessageController creates a new MessageController. relay may be nil,
// in which case REST-created messages are persisted but not broadcast.
func NewMessageController(messages message.Repository, relay ConversationRelay, logger zerolog.Logger) *MessageController {
	return &MessageController{messages: messages, relay: relay, logger: logger}
}

// Create handles POST /api/v1/messages.
func (h *MessageController) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid recipient id", Code: "invalid_id"})
		return
	}
	errandID, err := uuid.Parse(req.ErrandID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid errand id", Code: "invalid_id"})
		return
	}

	m := message.New(errandID, userID, recipientID, req.Message)
	if err := h.messages.Create(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}

	if h.relay != nil {
		topic := realtime.ConversationTopic(userID.String(), recipientID.String())
		if payload, err := realtime.NewMessageEvent(m); err == nil {
			// Relay failure leaves the stored message authoritative;
			// offline clients catch up through history.
			if err := h.relay.Relay(r.Context(), topic, payload); err != nil {
				h.logger.Error().Err(err).Str("topic", topic).Msg("failed to relay message")
			}
		}
	}

	writeJSON(w, http.StatusCreated, fromMessage(m))
}

// History handles GET /api/v1/messages/{otherUserId}.
func (h *MessageController) History(w http.ResponseWriter, r *http.Request) {
	otherID, err := uuid.Parse(chi.URLParam(r, "otherUserId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid user id", Code: "invalid_id"})
		return
	}

	userID, ok := authedUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}

	limit := defaultHistoryLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}

	msgs, err := h.messages.History(r.Context(), userID, otherID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, fromMessage(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// MarkConversationRead handles POST /api/v1/messages/{otherUserId}/read.
func (h *MessageController) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	otherID, err := uuid.Parse(chi.URLParam(r, "otherUserId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid user id", Code: "invalid_id"})
		return
	}

	userID, ok := authedUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}

	updated, err := h.messages.MarkConversationRead(r.Context(), userID, otherID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}
