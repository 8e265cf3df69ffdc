package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubjectContributionStatusChanged is the NATS subject status-change events
// are published on.
const SubjectContributionStatusChanged = "giving.contribution.status_changed"

// ContributionStatusChangedEvent is published after a status transition has
// been committed. Publication is best-effort; consumers must tolerate gaps
// and re-read from the store.
type ContributionStatusChangedEvent struct {
	Reference     string             `json:"reference"`
	CorrelationID uuid.UUID          `json:"correlation_id"`
	OldStatus     ContributionStatus `json:"old_status"`
	NewStatus     ContributionStatus `json:"new_status"`
	SettlementID  *string            `json:"settlement_id,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}
