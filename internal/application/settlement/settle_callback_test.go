package settlement_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/application/settlement"
	"github.com/mashughuli/escrow/internal/domain/errand"
	"github.com/mashughuli/escrow/internal/domain/escrow"
	"github.com/mashughuli/escrow/internal/domain/notification"
	"github.com/mashughuli/escrow/internal/realtime"
	"github.com/mashughuli/escrow/internal/testutil"
)

type settlementFixture struct {
	transactions *testutil.MockTransactionRepository
	payouts      *testutil.MockPayoutRepository
	errands      *testutil.MockErrandRepository
	notes        *testutil.MockNotificationRepository
	txm          *testutil.MockTransactionManager
	publisher    *testutil.MockPublisher
	engine       *settlement.Engine
}

func newSettlementFixture() *settlementFixture {
	f := &settlementFixture{
		transactions: testutil.NewMockTransactionRepository(),
		payouts:      testutil.NewMockPayoutRepository(),
		errands:      testutil.NewMockErrandRepository(),
		notes:        testutil.NewMockNotificationRepository(),
		txm:          testutil.NewMockTransactionManager(),
		publisher:    testutil.NewMockPublisher(),
	}
	f.engine = settlement.NewEngine(
		f.transactions, f.payouts, f.errands, f.notes,
		f.txm, f.publisher, zerolog.Nop(), nil,
	)
	return f
}

func (f *settlementFixture) lastUpdate(t *testing.T) realtime.PaymentUpdate {
	t.Helper()
	published := f.publisher.Published()
	if len(published) == 0 {
		t.Fatal("expected at least one published outcome")
	}
	var update realtime.PaymentUpdate
	if err := json.Unmarshal(published[len(published)-1].Payload, &update); err != nil {
		t.Fatalf("unmarshal published payload: %v", err)
	}
	return update
}

func TestSettleCallback_Success(t *testing.T) {
	f := newSettlementFixture()

	requester := testutil.NewTestUser("requester", "254700000001")
	runner1 := testutil.NewTestUser("runner1", "254700000002")
	runner2 := testutil.NewTestUser("runner2", "254700000003")

	e := testutil.NewTestErrand(requester.ID, "Deliver documents")
	f.errands.AddErrand(e)
	b1 := testutil.NewTestBid(e.ID, runner1.ID, 1000)
	b2 := testutil.NewTestBid(e.ID, runner2.ID, 1200)
	f.errands.AddBid(b1)
	f.errands.AddBid(b2)

	trx := testutil.NewPendingTransaction(e.ID, requester.ID, runner1.ID, 1000, "CO1", "MR1")
	f.transactions.Add(trx)

	err := f.engine.SettleCallback(context.Background(), settlement.CallbackEvent{
		MerchantRequestID: "MR1",
		CheckoutRequestID: "CO1",
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		Amount:            1100,
		ReceiptNumber:     "RCPT001",
		TransactionDate:   "20260828120000",
		PhoneNumber:       "254700000001",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.transactions.Stored(trx.ID)
	if stored.Status != escrow.StatusCompleted {
		t.Errorf("expected transaction completed, got %s", stored.Status)
	}
	if stored.Reference != "RCPT001" {
		t.Errorf("expected receipt as reference, got %q", stored.Reference)
	}
	if stored.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	gotErrand := f.errands.StoredErrand(e.ID)
	if gotErrand.Status != errand.StatusInProgress {
		t.Errorf("expected errand in_progress, got %s", gotErrand.Status)
	}
	if gotErrand.RunnerID == nil || *gotErrand.RunnerID != runner1.ID {
		t.Error("expected runner bound to payee")
	}
	if gotErrand.FinalPrice == nil || *gotErrand.FinalPrice != 1000 {
		t.Error("expected final price bound to transaction amount")
	}
	if gotErrand.StartTime == nil {
		t.Error("expected start time stamped")
	}

	if got := f.errands.StoredBid(b1.ID).Status; got != errand.BidAccepted {
		t.Errorf("expected payee bid accepted, got %s", got)
	}
	if got := f.errands.StoredBid(b2.ID).Status; got != errand.BidRejected {
		t.Errorf("expected sibling bid rejected, got %s", got)
	}

	payouts := f.payouts.All()
	if len(payouts) != 1 {
		t.Fatalf("expected exactly one payout, got %d", len(payouts))
	}
	if payouts[0].Amount != 1000 {
		t.Errorf("expected payout amount 1000, got %d", payouts[0].Amount)
	}
	if payouts[0].RunnerID != runner1.ID {
		t.Error("expected payout addressed to accepted runner")
	}
	if payouts[0].TransactionID != trx.ID {
		t.Error("expected payout referencing the settled transaction")
	}

	// 1 accepted + 1 payer confirmation + 1 rejection.
	if len(f.notes.Notifications) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(f.notes.Notifications))
	}
	if got := f.notes.ForUser(runner1.ID); len(got) != 1 || got[0].Type != notification.TypeBidAccepted {
		t.Error("expected bid_accepted notification for runner")
	}
	if got := f.notes.ForUser(requester.ID); len(got) != 1 || got[0].Type != notification.TypePayment {
		t.Error("expected payment notification for requester")
	}
	if got := f.notes.ForUser(runner2.ID); len(got) != 1 || got[0].Type != notification.TypeBidRejected {
		t.Error("expected bid_rejected notification for losing bidder")
	}

	published := f.publisher.Published()
	if len(published) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(published))
	}
	if published[0].Topic != "payment:CO1:MR1" {
		t.Errorf("expected payment topic, got %q", published[0].Topic)
	}
	update := f.lastUpdate(t)
	if !update.Success || update.Status != realtime.PaymentStatusSuccess {
		t.Errorf("expected success update, got %+v", update)
	}
	if update.TransactionID != "RCPT001" {
		t.Errorf("expected receipt in update, got %q", update.TransactionID)
	}
	if update.ErrandID != e.ID.String() {
		t.Error("expected errand id in update")
	}
}

func TestSettleCallback_DuplicateCallbackIsIdempotent(t *testing.T) {
	f := newSettlementFixture()

	requester := testutil.NewTestUser("requester", "254700000001")
	runner := testutil.NewTestUser("runner", "254700000002")
	e := testutil.NewTestErrand(requester.ID, "Pick up parcel")
	f.errands.AddErrand(e)
	f.errands.AddBid(testutil.NewTestBid(e.ID, runner.ID, 500))
	trx := testutil.NewPendingTransaction(e.ID, requester.ID, runner.ID, 500, "CO2", "MR2")
	f.transactions.Add(trx)

	ev := settlement.CallbackEvent{
		CheckoutRequestID: "CO2",
		MerchantRequestID: "MR2",
		ResultCode:        0,
		ReceiptNumber:     "RCPT002",
	}

	if err := f.engine.SettleCallback(context.Background(), ev); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	if err := f.engine.SettleCallback(context.Background(), ev); err != nil {
		t.Fatalf("duplicate callback should not error: %v", err)
	}

	if got := f.transactions.Stored(trx.ID).Status; got != escrow.StatusCompleted {
		t.Errorf("expected transaction to stay completed, got %s", got)
	}
	if got := len(f.payouts.All()); got != 1 {
		t.Errorf("expected exactly one payout after duplicate, got %d", got)
	}
	published := f.publisher.Published()
	if len(published) != 2 {
		t.Fatalf("expected one publish per callback, got %d", len(published))
	}
	update := f.lastUpdate(t)
	if update.Success {
		t.Error("expected duplicate callback to publish a not-found outcome")
	}
}

func TestSettleCallback_UnknownReferenceIsNoOp(t *testing.T) {
	f := newSettlementFixture()

	err := f.engine.SettleCallback(context.Background(), settlement.CallbackEvent{
		CheckoutRequestID: "CO-UNKNOWN",
		MerchantRequestID: "MR-UNKNOWN",
		ResultCode:        0,
		ReceiptNumber:     "RCPT999",
	})
	if err != nil {
		t.Fatalf("unknown reference must not error: %v", err)
	}

	if got := len(f.payouts.All()); got != 0 {
		t.Errorf("expected no payouts, got %d", got)
	}
	if len(f.notes.Notifications) != 0 {
		t.Error("expected no notifications")
	}
	published := f.publisher.Published()
	if len(published) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(published))
	}
	update := f.lastUpdate(t)
	if update.Success || update.Status != realtime.PaymentStatusFailed {
		t.Errorf("expected failure-shaped outcome, got %+v", update)
	}
}

func TestSettleCallback_FailureResultCode(t *testing.T) {
	f := newSettlementFixture()

	requester := testutil.NewTestUser("requester", "254700000001")
	runner := testutil.NewTestUser("runner", "254700000002")
	e := testutil.NewTestErrand(requester.ID, "Buy groceries")
	f.errands.AddErrand(e)
	b := testutil.NewTestBid(e.ID, runner.ID, 800)
	f.errands.AddBid(b)
	trx := testutil.NewPendingTransaction(e.ID, requester.ID, runner.ID, 800, "CO3", "MR3")
	f.transactions.Add(trx)

	err := f.engine.SettleCallback(context.Background(), settlement.CallbackEvent{
		CheckoutRequestID: "CO3",
		MerchantRequestID: "MR3",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.transactions.Stored(trx.ID).Status; got != escrow.StatusFailed {
		t.Errorf("expected transaction failed, got %s", got)
	}
	// No side effects on the errand or bids.
	if got := f.errands.StoredErrand(e.ID).Status; got != errand.StatusOpen {
		t.Errorf("expected errand untouched, got %s", got)
	}
	if got := f.errands.StoredBid(b.ID).Status; got != errand.BidPending {
		t.Errorf("expected bid untouched, got %s", got)
	}
	if got := len(f.payouts.All()); got != 0 {
		t.Errorf("expected no payouts, got %d", got)
	}

	update := f.lastUpdate(t)
	if update.Success || update.Status != realtime.PaymentStatusFailed {
		t.Errorf("expected failure update, got %+v", update)
	}
	if update.ResultCode != 1032 {
		t.Errorf("expected provider result code passed through, got %d", update.ResultCode)
	}
}

func TestSettleCallback_MissingPayeeBidAbortsTransition(t *testing.T) {
	f := newSettlementFixture()

	requester := testutil.NewTestUser("requester", "254700000001")
	runner := testutil.NewTestUser("runner", "254700000002")
	stranger := testutil.NewTestUser("stranger", "254700000009")

	e := testutil.NewTestErrand(requester.ID, "Wash car")
	f.errands.AddErrand(e)
	b := testutil.NewTestBid(e.ID, runner.ID, 600)
	f.errands.AddBid(b)

	// Payee has no bid on this errand.
	trx := testutil.NewPendingTransaction(e.ID, requester.ID, stranger.ID, 600, "CO4", "MR4")
	f.transactions.Add(trx)

	err := f.engine.SettleCallback(context.Background(), settlement.CallbackEvent{
		CheckoutRequestID: "CO4",
		MerchantRequestID: "MR4",
		ResultCode:        0,
		ReceiptNumber:     "RCPT004",
	})
	if err == nil {
		t.Fatal("expected invariant violation to surface as error")
	}

	// The transition aborted whole; the fallback downgraded the
	// transaction to failed.
	if got := f.transactions.Stored(trx.ID).Status; got != escrow.StatusFailed {
		t.Errorf("expected transaction failed after abort, got %s", got)
	}
	if got := f.errands.StoredErrand(e.ID).Status; got != errand.StatusOpen {
		t.Errorf("expected errand untouched, got %s", got)
	}
	if got := f.errands.StoredBid(b.ID).Status; got != errand.BidPending {
		t.Errorf("expected bid untouched, got %s", got)
	}
	if got := len(f.payouts.All()); got != 0 {
		t.Errorf("expected no payouts, got %d", got)
	}
	if len(f.notes.Notifications) != 0 {
		t.Error("expected no notifications")
	}

	update := f.lastUpdate(t)
	if update.Success {
		t.Error("expected failure update after aborted transition")
	}
	if update.Message != "Payment processing failed" {
		t.Errorf("expected generic failure message, got %q", update.Message)
	}
}

func TestSettleCallback_StoreFailurePublishesGenericFailure(t *testing.T) {
	f := newSettlementFixture()

	requester := testutil.NewTestUser("requester", "254700000001")
	runner := testutil.NewTestUser("runner", "254700000002")
	e := testutil.NewTestErrand(requester.ID, "Fetch package")
	f.errands.AddErrand(e)
	f.errands.AddBid(testutil.NewTestBid(e.ID, runner.ID, 700))
	trx := testutil.NewPendingTransaction(e.ID, requester.ID, runner.ID, 700, "CO5", "MR5")
	f.transactions.Add(trx)

	f.transactions.UpdateFunc = func(context.Context, *escrow.Transaction) error {
		return fmt.Errorf("connection reset")
	}

	err := f.engine.SettleCallback(context.Background(), settlement.CallbackEvent{
		CheckoutRequestID: "CO5",
		MerchantRequestID: "MR5",
		ResultCode:        0,
		ReceiptNumber:     "RCPT005",
	})
	if err == nil {
		t.Fatal("expected store failure to surface as error")
	}

	if got := len(f.payouts.All()); got != 0 {
		t.Errorf("expected no payouts, got %d", got)
	}
	published := f.publisher.Published()
	if len(published) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(published))
	}
	update := f.lastUpdate(t)
	if update.Success || update.Message != "Payment processing failed" {
		t.Errorf("expected generic failure, got %+v", update)
	}
}
