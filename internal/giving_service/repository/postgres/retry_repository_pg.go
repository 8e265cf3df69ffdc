package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/givebridge/giving_services/internal/giving_service/domain"
	"github.com/givebridge/giving_services/internal/giving_service/repository"
)

type pgRetryRepository struct {
	logger *slog.Logger
}

// NewPgRetryRepository creates a RetryRepository backed by PostgreSQL.
func NewPgRetryRepository(logger *slog.Logger) repository.RetryRepository {
	return &pgRetryRepository{logger: logger.With("repository", "payment_retries")}
}

func (r *pgRetryRepository) Enqueue(ctx context.Context, q repository.Querier, entry *domain.RetryEntry) error {
	// contribution_id is unique: a contribution has at most one queued entry,
	// so a repeated enqueue (e.g. a racing second submission failure) is a no-op.
	query := `
		INSERT INTO payment_retries (id, contribution_id, reference, correlation_id, amount, currency,
		                             payer_msisdn, note, retry_count, last_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (contribution_id) DO NOTHING
	`
	_, err := q.Exec(ctx, query,
		entry.ID, entry.ContributionID, entry.Reference, entry.CorrelationID, entry.Amount, entry.Currency,
		entry.PayerMSISDN, entry.Note, entry.RetryCount, entry.LastAttemptAt, entry.CreatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error enqueueing retry entry", "error", err, "reference", entry.Reference)
		return fmt.Errorf("enqueue retry entry: %w", err)
	}
	r.logger.InfoContext(ctx, "Retry entry enqueued", "reference", entry.Reference, "contribution_id", entry.ContributionID)
	return nil
}

// ClaimDue picks the batch for one sweep: entries under the retry budget
// whose last attempt is absent or older than the cooldown window, oldest
// created first. The claim stamps last_attempt_at inside the same statement,
// so a concurrently running sweep (or one started before a crash recovery)
// skips the row both via SKIP LOCKED and via the cooldown predicate.
func (r *pgRetryRepository) ClaimDue(ctx context.Context, q repository.Querier, now time.Time, cooldown time.Duration, maxAttempts, limit int) ([]*domain.RetryEntry, error) {
	query := `
		WITH due AS (
			SELECT id
			FROM payment_retries
			WHERE retry_count < $1
			  AND (last_attempt_at IS NULL OR last_attempt_at <= $2)
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE payment_retries pr
		SET last_attempt_at = $4
		FROM due
		WHERE pr.id = due.id
		RETURNING pr.id, pr.contribution_id, pr.reference, pr.correlation_id, pr.amount, pr.currency,
		          pr.payer_msisdn, pr.note, pr.retry_count, pr.last_attempt_at, pr.created_at
	`
	cutoff := now.Add(-cooldown)
	rows, err := q.Query(ctx, query, maxAttempts, cutoff, limit, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error claiming due retry entries", "error", err)
		return nil, fmt.Errorf("claim due retry entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.RetryEntry
	for rows.Next() {
		entry := &domain.RetryEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.ContributionID, &entry.Reference, &entry.CorrelationID, &entry.Amount, &entry.Currency,
			&entry.PayerMSISDN, &entry.Note, &entry.RetryCount, &entry.LastAttemptAt, &entry.CreatedAt,
		); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning claimed retry entry", "error", err)
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *pgRetryRepository) RecordFailure(ctx context.Context, q repository.Querier, id uuid.UUID, attemptedAt time.Time) (int, error) {
	query := `
		UPDATE payment_retries
		SET retry_count = retry_count + 1, last_attempt_at = $2
		WHERE id = $1
		RETURNING retry_count
	`
	var retryCount int
	if err := q.QueryRow(ctx, query, id, attemptedAt).Scan(&retryCount); err != nil {
		r.logger.ErrorContext(ctx, "Error recording retry failure", "error", err, "entry_id", id)
		return 0, fmt.Errorf("record retry failure: %w", err)
	}
	return retryCount, nil
}

func (r *pgRetryRepository) Delete(ctx context.Context, q repository.Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `DELETE FROM payment_retries WHERE id = $1`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting retry entry", "error", err, "entry_id", id)
		return fmt.Errorf("delete retry entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgRetryRepository) CountExhausted(ctx context.Context, q repository.Querier, maxAttempts int) (int64, error) {
	var count int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM payment_retries WHERE retry_count >= $1`, maxAttempts).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count exhausted retry entries: %w", err)
	}
	return count, nil
}
