package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContributionStatus represents the payment lifecycle status of a contribution.
type ContributionStatus string

const (
	StatusPending    ContributionStatus = "PENDING"
	StatusSuccessful ContributionStatus = "SUCCESSFUL"
	StatusFailed     ContributionStatus = "FAILED"
)

// ParseContributionStatus validates a raw status value coming from a webhook
// or an administrative request. Unknown values are an ErrValidation.
func ParseContributionStatus(raw string) (ContributionStatus, error) {
	switch ContributionStatus(raw) {
	case StatusPending, StatusSuccessful, StatusFailed:
		return ContributionStatus(raw), nil
	default:
		return "", fmt.Errorf("%w: unrecognized contribution status %q", ErrValidation, raw)
	}
}

// IsTerminal reports whether no further transition is expected in normal operation.
func (s ContributionStatus) IsTerminal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

// counterWeights returns the per-status contribution to the aggregate
// success/failed counters. PENDING is not a counted status.
func (s ContributionStatus) counterWeights() (success, failed int) {
	switch s {
	case StatusSuccessful:
		return 1, 0
	case StatusFailed:
		return 0, 1
	default:
		return 0, 0
	}
}

// StatusDelta computes the signed aggregate counter delta for a transition
// from oldStatus to newStatus: decrement the counter of the old status if it
// was a counted status, increment the counter of the new one if it is. The
// rule is uniform over every status pair, including transitions between the
// two terminal statuses.
func StatusDelta(oldStatus, newStatus ContributionStatus) (successDelta, failedDelta int) {
	oldSuccess, oldFailed := oldStatus.counterWeights()
	newSuccess, newFailed := newStatus.counterWeights()
	return newSuccess - oldSuccess, newFailed - oldFailed
}

// Contribution is one recorded contribution attempt with its lifecycle status.
// Reference, CorrelationID, CategoryCode, Amount and CreatedAt are immutable
// once assigned; Status and SettlementID are mutated only by the transition
// engine.
type Contribution struct {
	ID            uuid.UUID          `json:"id"`
	Reference     string             `json:"reference"`      // e.g. TITHE-2026-0211-001
	CorrelationID uuid.UUID          `json:"correlation_id"` // opaque id shared with the payment provider
	CategoryCode  string             `json:"category_code"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      string             `json:"currency"`
	PayerMSISDN   string             `json:"payer_msisdn"`
	Note          string             `json:"note,omitempty"`
	Status        ContributionStatus `json:"status"`
	SettlementID  *string            `json:"settlement_id,omitempty"` // provider settlement id, set on SUCCESSFUL only
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// BucketDate is the daily aggregate bucket this contribution belongs to,
// determined by its creation date in UTC. It is never recomputed after
// creation, even when the contribution is updated later.
func (c *Contribution) BucketDate() time.Time {
	return c.CreatedAt.UTC().Truncate(24 * time.Hour)
}

// BuildReference assembles the human-readable reference for a contribution:
// category code, creation date and the per-bucket sequence number, e.g.
// "TITHE-2026-0211-001".
func BuildReference(categoryCode string, createdAt time.Time, sequence int64) string {
	return fmt.Sprintf("%s-%s-%03d", categoryCode, createdAt.UTC().Format("2006-0102"), sequence)
}
