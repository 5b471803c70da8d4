package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of one recipient within a batch.
type Outcome string

const (
	OutcomeSent    Outcome = "SENT"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
)

// Attempt is one row of the delivery audit trail. Rows are append-only,
// never mutated or deleted.
type Attempt struct {
	Timestamp       time.Time `json:"timestamp"`
	BatchID         uuid.UUID `json:"batch_id"`
	RecipientID     string    `json:"recipient_id"`
	RecipientName   string    `json:"recipient_name"`
	GroupTag        string    `json:"group_tag"`
	Body            string    `json:"body"`
	Outcome         Outcome   `json:"outcome"`
	StatusCode      int       `json:"status_code"`
	ProviderMessage string    `json:"provider_message"`
	// AttemptNumber is the delivery attempt that terminated this
	// recipient (0 for skips, which never reach the gateway).
	AttemptNumber int `json:"attempt_number"`
}

// Ledger is the append-only durable log of every delivery attempt.
type Ledger interface {
	// Append persists one attempt. A failed write returns a
	// PersistenceError and must never be swallowed.
	Append(ctx context.Context, a Attempt) error
	// ReadAll returns every attempt in append order.
	ReadAll(ctx context.Context) ([]Attempt, error)
}

// PersistenceError reports a failed ledger write or read.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "ledger " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
