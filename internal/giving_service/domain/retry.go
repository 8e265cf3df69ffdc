package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RetryEntry is a queued record of a contribution whose initial submission to
// the payment provider failed. It carries everything needed to resubmit the
// payment request without touching the contribution row.
//
// An entry is created when the initial submission fails, removed when a
// resubmission is *accepted* by the provider (not when the final payment
// outcome is known; that arrives later via webhook or poll), and becomes
// inert once RetryCount reaches the configured budget.
type RetryEntry struct {
	ID             uuid.UUID       `json:"id"`
	ContributionID uuid.UUID       `json:"contribution_id"`
	Reference      string          `json:"reference"`
	CorrelationID  uuid.UUID       `json:"correlation_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PayerMSISDN    string          `json:"payer_msisdn"`
	Note           string          `json:"note,omitempty"`
	RetryCount     int             `json:"retry_count"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewRetryEntry builds a retry entry for a contribution whose submission failed.
func NewRetryEntry(c *Contribution) *RetryEntry {
	return &RetryEntry{
		ID:             uuid.New(),
		ContributionID: c.ID,
		Reference:      c.Reference,
		CorrelationID:  c.CorrelationID,
		Amount:         c.Amount,
		Currency:       c.Currency,
		PayerMSISDN:    c.PayerMSISDN,
		Note:           c.Note,
		RetryCount:     0,
		CreatedAt:      time.Now().UTC(),
	}
}
