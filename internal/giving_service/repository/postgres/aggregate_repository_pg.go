package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/givebridge/giving_services/internal/giving_service/domain"
	"github.com/givebridge/giving_services/internal/giving_service/repository"
)

type pgAggregateRepository struct {
	logger *slog.Logger
}

// NewPgAggregateRepository creates an AggregateRepository backed by PostgreSQL.
func NewPgAggregateRepository(logger *slog.Logger) repository.AggregateRepository {
	return &pgAggregateRepository{logger: logger.With("repository", "daily_aggregates")}
}

// IncrementTotals upserts the bucket row and bumps the creation-time totals.
// The RETURNING total_count both acknowledges the write and yields the
// per-bucket sequence number for the new contribution's reference; the row
// lock taken by the upsert serializes concurrent creations in the same
// bucket, so sequences cannot collide.
func (r *pgAggregateRepository) IncrementTotals(ctx context.Context, q repository.Querier, bucketDate time.Time, categoryCode string, amount decimal.Decimal) (int64, error) {
	query := `
		INSERT INTO daily_aggregates (bucket_date, category_code, total_count, total_amount, success_count, failed_count, updated_at)
		VALUES ($1, $2, 1, $3, 0, 0, $4)
		ON CONFLICT (bucket_date, category_code) DO UPDATE
		SET total_count  = daily_aggregates.total_count + 1,
		    total_amount = daily_aggregates.total_amount + EXCLUDED.total_amount,
		    updated_at   = EXCLUDED.updated_at
		RETURNING total_count
	`
	var totalCount int64
	err := q.QueryRow(ctx, query, bucketDate, categoryCode, amount, time.Now().UTC()).Scan(&totalCount)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error incrementing aggregate totals", "error", err, "bucket_date", bucketDate, "category_code", categoryCode)
		return 0, fmt.Errorf("increment aggregate totals: %w", err)
	}
	return totalCount, nil
}

// ApplyStatusDelta moves the terminal-status counters. The WHERE guard
// refuses any delta that would drive a counter negative; together with a
// missing bucket row that surfaces as ErrInvariantViolation, since the
// transition engine only ever derives deltas from a locked contribution row.
func (r *pgAggregateRepository) ApplyStatusDelta(ctx context.Context, q repository.Querier, bucketDate time.Time, categoryCode string, successDelta, failedDelta int) error {
	if successDelta == 0 && failedDelta == 0 {
		return nil
	}
	query := `
		UPDATE daily_aggregates
		SET success_count = success_count + $3,
		    failed_count  = failed_count + $4,
		    updated_at    = $5
		WHERE bucket_date = $1 AND category_code = $2
		  AND success_count + $3 >= 0
		  AND failed_count + $4 >= 0
	`
	tag, err := q.Exec(ctx, query, bucketDate, categoryCode, successDelta, failedDelta, time.Now().UTC())
	if err != nil {
		r.logger.ErrorContext(ctx, "Error applying aggregate status delta", "error", err, "bucket_date", bucketDate, "category_code", categoryCode)
		return fmt.Errorf("apply aggregate status delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.ErrorContext(ctx, "Aggregate delta rejected: bucket missing or counter would go negative",
			"bucket_date", bucketDate, "category_code", categoryCode,
			"success_delta", successDelta, "failed_delta", failedDelta)
		return domain.ErrInvariantViolation
	}
	return nil
}

func (r *pgAggregateRepository) GetByBucket(ctx context.Context, q repository.Querier, bucketDate time.Time, categoryCode string) (*domain.DailyAggregate, error) {
	query := `
		SELECT bucket_date, category_code, total_count, total_amount, success_count, failed_count, updated_at
		FROM daily_aggregates
		WHERE bucket_date = $1 AND category_code = $2
	`
	agg := &domain.DailyAggregate{}
	err := q.QueryRow(ctx, query, bucketDate, categoryCode).Scan(
		&agg.BucketDate, &agg.CategoryCode, &agg.TotalCount, &agg.TotalAmount,
		&agg.SuccessCount, &agg.FailedCount, &agg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return agg, nil
}
