package escrow

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
)

func TestNewTransactionSplitsFee(t *testing.T) {
	trx, err := NewTransaction(uuid.New(), uuid.New(), uuid.New(), 1000, "CO1", "MR1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trx.Amount != 1000 {
		t.Errorf("expected principal 1000, got %d", trx.Amount)
	}
	if trx.PlatformFee != 100 {
		t.Errorf("expected 10%% fee, got %d", trx.PlatformFee)
	}
	if trx.Status != StatusPending {
		t.Errorf("expected pending, got %s", trx.Status)
	}
	if trx.Reference != "CO1" {
		t.Errorf("expected checkout reference, got %q", trx.Reference)
	}
}

func TestNewTransactionValidation(t *testing.T) {
	if _, err := NewTransaction(uuid.New(), uuid.New(), uuid.New(), 0, "CO1", "MR1"); !errors.Is(err, domainErrors.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero amount, got %v", err)
	}
	if _, err := NewTransaction(uuid.New(), uuid.New(), uuid.New(), -5, "CO1", "MR1"); !errors.Is(err, domainErrors.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative amount, got %v", err)
	}
	if _, err := NewTransaction(uuid.New(), uuid.New(), uuid.New(), 100, "", "MR1"); !errors.Is(err, domainErrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty reference, got %v", err)
	}
}

func TestPlatformFeeFor(t *testing.T) {
	cases := []struct {
		amount int64
		fee    int64
	}{
		{1000, 100},
		{1, 0}, // truncates, no rounding up
		{15, 1},
		{99, 9},
	}
	for _, tc := range cases {
		if got := PlatformFeeFor(tc.amount); got != tc.fee {
			t.Errorf("PlatformFeeFor(%d) = %d, want %d", tc.amount, got, tc.fee)
		}
	}
}

func TestTransactionStateMachine(t *testing.T) {
	trx, _ := NewTransaction(uuid.New(), uuid.New(), uuid.New(), 500, "CO1", "MR1")

	if !trx.CanTransitionTo(StatusCompleted) || !trx.CanTransitionTo(StatusFailed) {
		t.Error("pending must allow both terminal transitions")
	}

	if err := trx.MarkCompleted("RCPT1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trx.Reference != "RCPT1" {
		t.Errorf("expected receipt to replace checkout reference, got %q", trx.Reference)
	}
	if trx.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}

	// Terminal states reject further transitions.
	if err := trx.MarkFailed(); !errors.Is(err, domainErrors.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
	if err := trx.MarkCompleted("RCPT2"); !errors.Is(err, domainErrors.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}
	if trx.Reference != "RCPT1" {
		t.Error("rejected transition must not touch the reference")
	}
}

func TestMarkCompletedKeepsReferenceWhenReceiptEmpty(t *testing.T) {
	trx, _ := NewTransaction(uuid.New(), uuid.New(), uuid.New(), 500, "CO1", "MR1")
	if err := trx.MarkCompleted(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trx.Reference != "CO1" {
		t.Errorf("expected checkout reference kept, got %q", trx.Reference)
	}
}

func TestMarkFailed(t *testing.T) {
	trx, _ := NewTransaction(uuid.New(), uuid.New(), uuid.New(), 500, "CO1", "MR1")
	if err := trx.MarkFailed(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trx.Status != StatusFailed {
		t.Errorf("expected failed, got %s", trx.Status)
	}
	if trx.Reference != "CO1" {
		t.Error("failure must keep the checkout reference")
	}
}

func TestNewPayoutCopiesPrincipal(t *testing.T) {
	trx, _ := NewTransaction(uuid.New(), uuid.New(), uuid.New(), 1000, "CO1", "MR1")
	_ = trx.MarkCompleted("RCPT1")

	p := NewPayout(trx)
	if p.Amount != 1000 {
		t.Errorf("expected payout of the principal, got %d", p.Amount)
	}
	if p.RunnerID != trx.PayeeID || p.ErrandID != trx.ErrandID || p.TransactionID != trx.ID {
		t.Error("expected payout bound to the transaction")
	}
	if p.Status != PayoutPending {
		t.Errorf("expected pending payout, got %s", p.Status)
	}
}
