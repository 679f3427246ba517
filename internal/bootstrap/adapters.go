package bootstrap

import (
	"context"

	"github.com/mashughuli/escrow/internal/application/settlement"
	"github.com/mashughuli/escrow/internal/infrastructure/daraja"
)

// StkInitiator adapts the Daraja client to the payment initiation port.
type StkInitiator struct {
	Client *daraja.Client
}

func (s *StkInitiator) InitiateStkPush(ctx context.Context, phoneNumber string, amount int64, accountRef, description string) (*settlement.StkPush, error) {
	resp, err := s.Client.STKPush(ctx, phoneNumber, amount, accountRef, description)
	if err != nil {
		return nil, err
	}
	return &settlement.StkPush{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// B2CDisburser adapts the Daraja client to the payout disbursement port.
type B2CDisburser struct {
	Client *daraja.Client
}

func (d *B2CDisburser) Disburse(ctx context.Context, phoneNumber string, amount int64, remarks string) (string, error) {
	resp, err := d.Client.B2CPayment(ctx, phoneNumber, amount, remarks)
	if err != nil {
		return "", err
	}
	return resp.ConversationID, nil
}
