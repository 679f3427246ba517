package errand

import (
	"time"

	"github.com/google/uuid"

	"github.com/mashughuli/escrow/internal/domain/errors"
)

// Status represents the errand lifecycle state
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDisputed   Status = "disputed"
	StatusCancelled  Status = "cancelled"
)

// Errand is a task posted by a requester and run by the assigned runner.
// in_progress is entered only as a side effect of a settled escrow payment;
// runner assignment and final price binding are atomic with confirmation.
type Errand struct {
	ID          uuid.UUID
	RequesterID uuid.UUID
	RunnerID    *uuid.UUID
	Title       string
	Status      Status
	FinalPrice  *int64
	StartTime   *time.Time
	EndTime     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assign binds the accepted runner and final price and moves the errand to
// in_progress. Valid only from open or disputed (re-settlement after dispute).
func (e *Errand) Assign(runnerID uuid.UUID, finalPrice int64) error {
	if e.Status != StatusOpen && e.Status != StatusDisputed {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot assign runner while errand is "+string(e.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	now := time.Now()
	e.Status = StatusInProgress
	e.RunnerID = &runnerID
	e.FinalPrice = &finalPrice
	e.StartTime = &now
	e.UpdatedAt = now
	return nil
}

// Complete marks an in-progress errand as completed.
func (e *Errand) Complete() error {
	if e.Status != StatusInProgress {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot complete errand while "+string(e.Status),
			errors.ErrInvalidStateTransition,
		)
	}
	now := time.Now()
	e.Status = StatusCompleted
	e.EndTime = &now
	e.UpdatedAt = now
	return nil
}
