package controller

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mashughuli/escrow/internal/application/settlement"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/domain/message"
	"github.com/mashughuli/escrow/internal/domain/notification"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// InitiatePaymentRequest asks to pay for an accepted-to-be bid via STK push.
type InitiatePaymentRequest struct {
	ErrandID    string `json:"errand_id" validate:"required,uuid"`
	BidID       string `json:"bid_id" validate:"required,uuid"`
	PhoneNumber string `json:"phone_number" validate:"required,min=10,max=15"`
}

type InitiatePaymentResponse struct {
	TransactionID     string `json:"transaction_id"`
	CheckoutRequestID string `json:"checkout_request_id"`
	MerchantRequestID string `json:"merchant_request_id"`
	Amount            int64  `json:"amount"`
	PlatformFee       int64  `json:"platform_fee"`
	CustomerMessage   string `json:"customer_message,omitempty"`
}

func fromInitiation(res *settlement.InitiatePaymentResult) *InitiatePaymentResponse {
	return &InitiatePaymentResponse{
		TransactionID:     res.TransactionID.String(),
		CheckoutRequestID: res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		Amount:            res.Amount,
		PlatformFee:       res.PlatformFee,
		CustomerMessage:   res.CustomerMessage,
	}
}

// Daraja STK callback envelope. Field names are the provider's contract
// and must not be renamed.
type StkCallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values arrive as a mix of strings and numbers depending on
// the field, so Value stays untyped until extraction.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// toCallbackEvent flattens the envelope into the settlement input,
// pulling receipt metadata out of the Name/Value item list.
func (c *StkCallback) toCallbackEvent() settlement.CallbackEvent {
	ev := settlement.CallbackEvent{
		MerchantRequestID: c.MerchantRequestID,
		CheckoutRequestID: c.CheckoutRequestID,
		ResultCode:        c.ResultCode,
		ResultDesc:        c.ResultDesc,
	}
	if c.CallbackMetadata == nil {
		return ev
	}
	for _, item := range c.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			ev.Amount = asInt64(item.Value)
		case "MpesaReceiptNumber":
			ev.ReceiptNumber = asString(item.Value)
		case "TransactionDate":
			ev.TransactionDate = asString(item.Value)
		case "PhoneNumber":
			ev.PhoneNumber = asString(item.Value)
		}
	}
	return ev
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

type TransactionResponse struct {
	ID                string  `json:"id"`
	ErrandID          string  `json:"errand_id"`
	PayerID           string  `json:"payer_id"`
	PayeeID           string  `json:"payee_id"`
	Amount            int64   `json:"amount"`
	PlatformFee       int64   `json:"platform_fee"`
	Status            string  `json:"status"`
	Reference         string  `json:"reference"`
	MerchantRequestID string  `json:"merchant_request_id"`
	CreatedAt         string  `json:"created_at"`
	CompletedAt       *string `json:"completed_at,omitempty"`
}

func fromTransaction(t *escrow.Transaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:                t.ID.String(),
		ErrandID:          t.ErrandID.String(),
		PayerID:           t.PayerID.String(),
		PayeeID:           t.PayeeID.String(),
		Amount:            t.Amount,
		PlatformFee:       t.PlatformFee,
		Status:            string(t.Status),
		Reference:         t.Reference,
		MerchantRequestID: t.MerchantRequestID,
		CreatedAt:         t.CreatedAt.Format(time.RFC3339),
	}
	if t.CompletedAt != nil {
		s := t.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

type NotificationResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func fromNotification(n *notification.Notification) *NotificationResponse {
	return &NotificationResponse{
		ID:        n.ID.String(),
		Type:      string(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

type NotificationListResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	Total         int                     `json:"total"`
	Unread        int                     `json:"unread"`
}

// SendMessageRequest creates a chat message over REST; the stored message
// is also relayed to the conversation topic for connected clients.
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
	ErrandID    string `json:"errand_id" validate:"required,uuid"`
	Message     string `json:"message" validate:"required,max=2000"`
}

type MessageResponse struct {
	ID          string `json:"id"`
	ErrandID    string `json:"errand_id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"created_at"`
}

func fromMessage(m *message.Message) *MessageResponse {
	return &MessageResponse{
		ID:          m.ID.String(),
		ErrandID:    m.ErrandID.String(),
		SenderID:    m.SenderID.String(),
		RecipientID: m.RecipientID.String(),
		Message:     m.Body,
		Read:        m.Read,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}
