package errand

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/mashughuli/escrow/internal/domain/errors"
)

func openErrand() *Errand {
	now := time.Now()
	return &Errand{
		ID:          uuid.New(),
		RequesterID: uuid.New(),
		Title:       "Deliver documents",
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestAssignFromOpen(t *testing.T) {
	e := openErrand()
	runnerID := uuid.New()

	if err := e.Assign(runnerID, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", e.Status)
	}
	if e.RunnerID == nil || *e.RunnerID != runnerID {
		t.Error("expected runner bound")
	}
	if e.FinalPrice == nil || *e.FinalPrice != 1000 {
		t.Error("expected final price bound")
	}
	if e.StartTime == nil {
		t.Error("expected start time stamped")
	}
}

func TestAssignFromDisputed(t *testing.T) {
	e := openErrand()
	e.Status = StatusDisputed

	if err := e.Assign(uuid.New(), 500); err != nil {
		t.Fatalf("re-settlement after dispute must be allowed: %v", err)
	}
	if e.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", e.Status)
	}
}

func TestAssignRejectedFromOtherStates(t *testing.T) {
	for _, status := range []Status{StatusInProgress, StatusCompleted, StatusCancelled} {
		e := openErrand()
		e.Status = status
		err := e.Assign(uuid.New(), 500)
		if !errors.Is(err, domainErrors.ErrInvalidStateTransition) {
			t.Errorf("status %s: expected ErrInvalidStateTransition, got %v", status, err)
		}
		if e.RunnerID != nil {
			t.Errorf("status %s: rejected assign must not bind a runner", status)
		}
	}
}

func TestCompleteFromInProgress(t *testing.T) {
	e := openErrand()
	if err := e.Assign(uuid.New(), 500); err != nil {
		t.Fatal(err)
	}
	if err := e.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", e.Status)
	}
	if e.EndTime == nil {
		t.Error("expected end time stamped")
	}
}

func TestCompleteRejectedFromOtherStates(t *testing.T) {
	for _, status := range []Status{StatusOpen, StatusCompleted, StatusDisputed, StatusCancelled} {
		e := openErrand()
		e.Status = status
		if err := e.Complete(); !errors.Is(err, domainErrors.ErrInvalidStateTransition) {
			t.Errorf("status %s: expected ErrInvalidStateTransition, got %v", status, err)
		}
	}
}
