package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/givebridge/giving_services/internal/giving_service/domain"
	"github.com/givebridge/giving_services/internal/giving_service/repository"
)

// EventPublisher is the slice of the message broker the engine needs.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// TransitionResult reports the outcome of a requested status transition.
type TransitionResult struct {
	Contribution *domain.Contribution
	Changed      bool
}

// TransitionEngine applies status changes to contributions. It is the only
// component allowed to mutate a contribution's status or the success/failed
// aggregate counters, and it applies both writes as one database transaction
// so no state is ever observable where they disagree.
type TransitionEngine struct {
	txm           repository.TxManager
	contributions repository.ContributionRepository
	aggregates    repository.AggregateRepository
	publisher     EventPublisher
	logger        *slog.Logger
}

// NewTransitionEngine creates a TransitionEngine. publisher may be nil when
// no broker is configured; events are then skipped.
func NewTransitionEngine(
	txm repository.TxManager,
	contributions repository.ContributionRepository,
	aggregates repository.AggregateRepository,
	publisher EventPublisher,
	logger *slog.Logger,
) *TransitionEngine {
	return &TransitionEngine{
		txm:           txm,
		contributions: contributions,
		aggregates:    aggregates,
		publisher:     publisher,
		logger:        logger.With("component", "transition_engine"),
	}
}

// Transition moves the contribution identified by reference to newStatus.
//
// The contribution row is locked for the duration of the transaction, so two
// transitions racing for the same reference serialize and the idempotence
// check observes a consistent prior state. If the current status already
// equals newStatus nothing is written and Changed is false; webhook, poll and
// retry-driven updates may all deliver the same final status independently.
// Otherwise the status write and the signed aggregate delta for the
// contribution's creation-date bucket commit together.
func (e *TransitionEngine) Transition(ctx context.Context, reference string, newStatus domain.ContributionStatus, settlementID *string) (*TransitionResult, error) {
	if _, err := domain.ParseContributionStatus(string(newStatus)); err != nil {
		return nil, err
	}

	var (
		result    TransitionResult
		oldStatus domain.ContributionStatus
	)
	err := e.txm.WithinTx(ctx, func(q repository.Querier) error {
		c, err := e.contributions.GetByReferenceForUpdate(ctx, q, reference)
		if err != nil {
			return err
		}
		oldStatus = c.Status

		if c.Status == newStatus {
			result = TransitionResult{Contribution: c, Changed: false}
			return nil
		}

		if c.Status.IsTerminal() {
			// Mechanically permitted by the general delta rule, but a
			// terminal status moving again means the provider delivered
			// conflicting or out-of-order outcomes.
			e.logger.WarnContext(ctx, "Anomalous transition from terminal status",
				"reference", reference, "old_status", c.Status, "new_status", newStatus)
		}

		// Settlement ids accompany successful outcomes only.
		var settlement *string
		if newStatus == domain.StatusSuccessful {
			settlement = settlementID
		}

		now := time.Now().UTC()
		if err := e.contributions.UpdateStatus(ctx, q, c.ID, newStatus, settlement, now); err != nil {
			return fmt.Errorf("apply status write for %s: %w", reference, err)
		}

		successDelta, failedDelta := domain.StatusDelta(c.Status, newStatus)
		if err := e.aggregates.ApplyStatusDelta(ctx, q, c.BucketDate(), c.CategoryCode, successDelta, failedDelta); err != nil {
			return fmt.Errorf("apply aggregate delta for %s: %w", reference, err)
		}

		updated := *c
		updated.Status = newStatus
		if settlement != nil {
			updated.SettlementID = settlement
		}
		updated.UpdatedAt = now
		result = TransitionResult{Contribution: &updated, Changed: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transitionsCounter.WithLabelValues(string(oldStatus), string(newStatus), strconv.FormatBool(result.Changed)).Inc()

	if result.Changed {
		e.logger.InfoContext(ctx, "Contribution status transitioned",
			"reference", reference, "old_status", oldStatus, "new_status", newStatus)
		e.publishStatusChanged(ctx, result.Contribution, oldStatus)
	} else {
		e.logger.InfoContext(ctx, "Transition was idempotent, no change applied",
			"reference", reference, "status", newStatus)
	}
	return &result, nil
}

// publishStatusChanged emits the status-change event after commit. Delivery
// is best-effort: the store is the source of truth and a publish failure must
// not fail the transition.
func (e *TransitionEngine) publishStatusChanged(ctx context.Context, c *domain.Contribution, oldStatus domain.ContributionStatus) {
	if e.publisher == nil {
		return
	}
	event := domain.ContributionStatusChangedEvent{
		Reference:     c.Reference,
		CorrelationID: c.CorrelationID,
		OldStatus:     oldStatus,
		NewStatus:     c.Status,
		SettlementID:  c.SettlementID,
		OccurredAt:    c.UpdatedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to marshal status-changed event", "error", err, "reference", c.Reference)
		return
	}
	if err := e.publisher.Publish(ctx, domain.SubjectContributionStatusChanged, data); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish status-changed event", "error", err, "reference", c.Reference)
	}
}
