package settlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/application/settlement"
	"github.com/mashughuli/escrow/internal/domain/errand"
	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/testutil"
)

type stubInitiator struct {
	push    *settlement.StkPush
	err     error
	calls   int
	phone   string
	amount  int64
	account string
}

func (s *stubInitiator) InitiateStkPush(_ context.Context, phoneNumber string, amount int64, accountRef, _ string) (*settlement.StkPush, error) {
	s.calls++
	s.phone = phoneNumber
	s.amount = amount
	s.account = accountRef
	if s.err != nil {
		return nil, s.err
	}
	return s.push, nil
}

func TestInitiate_ChargesPricePlusFee(t *testing.T) {
	transactions := testutil.NewMockTransactionRepository()
	errands := testutil.NewMockErrandRepository()
	requester := testutil.NewTestUser("requester", "254712345678")
	runner := testutil.NewTestUser("runner", "254700000002")

	e := testutil.NewTestErrand(requester.ID, "Deliver documents")
	errands.AddErrand(e)
	bid := testutil.NewTestBid(e.ID, runner.ID, 1000)
	errands.AddBid(bid)

	initiator := &stubInitiator{push: &settlement.StkPush{
		CheckoutRequestID: "CO1",
		MerchantRequestID: "MR1",
		CustomerMessage:   "Success. Request accepted for processing",
	}}
	svc := settlement.NewPaymentInitiation(transactions, errands, initiator, zerolog.Nop(), nil)

	result, err := svc.Initiate(context.Background(), settlement.InitiatePaymentInput{
		ErrandID:    e.ID,
		BidID:       bid.ID,
		PayerID:     requester.ID,
		PhoneNumber: "254712345678",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Payer is prompted for price plus the 10% platform fee.
	if initiator.amount != 1100 {
		t.Errorf("expected phone prompt for 1100, got %d", initiator.amount)
	}
	if initiator.account != e.ID.String() {
		t.Errorf("expected errand id as account reference, got %q", initiator.account)
	}
	if result.Amount != 1000 || result.PlatformFee != 100 {
		t.Errorf("expected amount/fee split 1000/100, got %d/%d", result.Amount, result.PlatformFee)
	}
	if result.CheckoutRequestID != "CO1" || result.MerchantRequestID != "MR1" {
		t.Error("expected checkout references passed through")
	}

	stored := transactions.Stored(result.TransactionID)
	if stored == nil {
		t.Fatal("expected transaction stored")
	}
	if stored.Amount != 1000 || stored.PlatformFee != 100 {
		t.Errorf("expected stored split 1000/100, got %d/%d", stored.Amount, stored.PlatformFee)
	}
	if stored.Status != escrow.StatusPending {
		t.Errorf("expected pending transaction, got %s", stored.Status)
	}
	if stored.Reference != "CO1" {
		t.Errorf("expected checkout reference stored, got %q", stored.Reference)
	}
	if stored.PayeeID != runner.ID {
		t.Error("expected payee bound to the bid's runner")
	}
}

func TestInitiate_OnlyRequesterMayPay(t *testing.T) {
	transactions := testutil.NewMockTransactionRepository()
	errands := testutil.NewMockErrandRepository()
	requester := testutil.NewTestUser("requester", "254712345678")
	intruder := testutil.NewTestUser("intruder", "254700000009")
	runner := testutil.NewTestUser("runner", "254700000002")

	e := testutil.NewTestErrand(requester.ID, "Fix sink")
	errands.AddErrand(e)
	bid := testutil.NewTestBid(e.ID, runner.ID, 500)
	errands.AddBid(bid)

	initiator := &stubInitiator{}
	svc := settlement.NewPaymentInitiation(transactions, errands, initiator, zerolog.Nop(), nil)

	_, err := svc.Initiate(context.Background(), settlement.InitiatePaymentInput{
		ErrandID:    e.ID,
		BidID:       bid.ID,
		PayerID:     intruder.ID,
		PhoneNumber: "254700000009",
	})
	if !errors.Is(err, domainErrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if initiator.calls != 0 {
		t.Error("expected no provider call")
	}
}

func TestInitiate_ErrandNotPayable(t *testing.T) {
	transactions := testutil.NewMockTransactionRepository()
	errands := testutil.NewMockErrandRepository()
	requester := testutil.NewTestUser("requester", "254712345678")
	runner := testutil.NewTestUser("runner", "254700000002")

	e := testutil.NewTestErrand(requester.ID, "Mow lawn")
	e.Status = errand.StatusInProgress
	errands.AddErrand(e)
	bid := testutil.NewTestBid(e.ID, runner.ID, 500)
	errands.AddBid(bid)

	svc := settlement.NewPaymentInitiation(transactions, errands, &stubInitiator{}, zerolog.Nop(), nil)

	_, err := svc.Initiate(context.Background(), settlement.InitiatePaymentInput{
		ErrandID: e.ID, BidID: bid.ID, PayerID: requester.ID, PhoneNumber: "254712345678",
	})
	if !errors.Is(err, domainErrors.ErrErrandNotPayable) {
		t.Fatalf("expected ErrErrandNotPayable, got %v", err)
	}
}

func TestInitiate_DisputedErrandIsPayable(t *testing.T) {
	transactions := testutil.NewMockTransactionRepository()
	errands := testutil.NewMockErrandRepository()
	requester := testutil.NewTestUser("requester", "254712345678")
	runner := testutil.NewTestUser("runner", "254700000002")

	e := testutil.NewTestErrand(requester.ID, "Disputed job")
	e.Status = errand.StatusDisputed
	errands.AddErrand(e)
	bid := testutil.NewTestBid(e.ID, runner.ID, 300)
	errands.AddBid(bid)

	initiator := &stubInitiator{push: &settlement.StkPush{CheckoutRequestID: "CO9", MerchantRequestID: "MR9"}}
	svc := settlement.NewPaymentInitiation(transactions, errands, initiator, zerolog.Nop(), nil)

	if _, err := svc.Initiate(context.Background(), settlement.InitiatePaymentInput{
		ErrandID: e.ID, BidID: bid.ID, PayerID: requester.ID, PhoneNumber: "254712345678",
	}); err != nil {
		t.Fatalf("expected disputed errand to accept payment, got %v", err)
	}
}

func TestInitiate_BidFromAnotherErrand(t *testing.T) {
	transactions := testutil.NewMockTransactionRepository()
	errands := testutil.NewMockErrandRepository()
	requester := testutil.NewTestUser("requester", "254712345678")
	runner := testutil.NewTestUser("runner", "254700000002")

	e1 := testutil.NewTestErrand(requester.ID, "First errand")
	e2 := testutil.NewTestErrand(requester.ID, "Second errand")
	errands.AddErrand(e1)
	errands.AddErrand(e2)
	bid := testutil.NewTestBid(e2.ID, runner.ID, 500)
	errands.AddBid(bid)

	svc := settlement.NewPaymentInitiation(transactions, errands, &stubInitiator{}, zerolog.Nop(), nil)

	_, err := svc.Initiate(context.Background(), settlement.InitiatePaymentInput{
		ErrandID: e1.ID, BidID: bid.ID, PayerID: requester.ID, PhoneNumber: "254712345678",
	})
	if !errors.Is(err, domainErrors.ErrBidNotFound) {
		t.Fatalf("expected ErrBidNotFound, got %v", err)
	}
}

func TestInitiate_NonPendingBidRejected(t *testing.T) {
	transactions := testutil.NewMockTransactionRepository()
	errands := testutil.NewMockErrandRepository()
	requester := testutil.NewTestUser("requester", "254712345678")
	runner := testutil.NewTestUser("runner", "254700000002")

	e := testutil.NewTestErrand(requester.ID, "Clean house")
	errands.AddErrand(e)
	bid := testutil.NewTestBid(e.ID, runner.ID, 500)
	bid.Status = errand.BidRejected
	errands.AddBid(bid)

	svc := settlement.NewPaymentInitiation(transactions, errands, &stubInitiator{}, zerolog.Nop(), nil)

	_, err := svc.Initiate(context.Background(), settlement.InitiatePaymentInput{
		ErrandID: e.ID, BidID: bid.ID, PayerID: requester.ID, PhoneNumber: "254712345678",
	})
	if !errors.Is(err, domainErrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestInitiate_ProviderFailureLeavesNoTransaction(t *testing.T) {
	transactions := testutil.NewMockTransactionRepository()
	errands := testutil.NewMockErrandRepository()
	requester := testutil.NewTestUser("requester", "254712345678")
	runner := testutil.NewTestUser("runner", "254700000002")

	e := testutil.NewTestErrand(requester.ID, "Walk dog")
	errands.AddErrand(e)
	bid := testutil.NewTestBid(e.ID, runner.ID, 500)
	errands.AddBid(bid)

	initiator := &stubInitiator{err: domainErrors.ErrProviderUnavailable}
	svc := settlement.NewPaymentInitiation(transactions, errands, initiator, zerolog.Nop(), nil)

	var created int
	transactions.CreateFunc = func(ctx context.Context, trx *escrow.Transaction) error {
		created++
		return nil
	}

	_, err := svc.Initiate(context.Background(), settlement.InitiatePaymentInput{
		ErrandID: e.ID, BidID: bid.ID, PayerID: requester.ID, PhoneNumber: "254712345678",
	})
	if !errors.Is(err, domainErrors.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if created != 0 {
		t.Error("expected no transaction created after provider failure")
	}
}

func TestInitiate_UnknownErrand(t *testing.T) {
	svc := settlement.NewPaymentInitiation(
		testutil.NewMockTransactionRepository(),
		testutil.NewMockErrandRepository(),
		&stubInitiator{}, zerolog.Nop(), nil)

	_, err := svc.Initiate(context.Background(), settlement.InitiatePaymentInput{
		ErrandID: uuid.New(), BidID: uuid.New(), PayerID: uuid.New(), PhoneNumber: "254712345678",
	})
	if !errors.Is(err, domainErrors.ErrErrandNotFound) {
		t.Fatalf("expected ErrErrandNotFound, got %v", err)
	}
}
