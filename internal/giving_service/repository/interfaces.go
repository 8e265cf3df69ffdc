package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/givebridge/giving_services/internal/giving_service/domain"
)

// Querier is the common interface satisfied by pgxpool.Pool and pgx.Tx, so
// repository methods can run either standalone or inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxManager runs a function inside a database transaction, committing when it
// returns nil and rolling back otherwise. The transition engine relies on it
// so that the status write and the aggregate delta are one atomic unit.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(q Querier) error) error
}

// ContributionRepository persists contribution rows. Status mutation goes
// through UpdateStatus only, and only the transition engine calls it.
type ContributionRepository interface {
	Create(ctx context.Context, q Querier, c *domain.Contribution) error
	GetByReference(ctx context.Context, q Querier, reference string) (*domain.Contribution, error)
	// GetByReferenceForUpdate locks the row for the duration of the enclosing
	// transaction, serializing concurrent transitions for the same reference.
	GetByReferenceForUpdate(ctx context.Context, q Querier, reference string) (*domain.Contribution, error)
	GetByCorrelationID(ctx context.Context, q Querier, correlationID uuid.UUID) (*domain.Contribution, error)
	UpdateStatus(ctx context.Context, q Querier, id uuid.UUID, status domain.ContributionStatus, settlementID *string, updatedAt time.Time) error
}

// AggregateRepository maintains the daily per-category rollups.
type AggregateRepository interface {
	// IncrementTotals upserts the bucket, adds one contribution of the given
	// amount to the totals and returns the post-increment total count, which
	// doubles as the per-bucket reference sequence.
	IncrementTotals(ctx context.Context, q Querier, bucketDate time.Time, categoryCode string, amount decimal.Decimal) (int64, error)
	// ApplyStatusDelta moves the success/failed counters by the signed
	// deltas. A delta that would drive a counter negative, or a missing
	// bucket, is reported as domain.ErrInvariantViolation.
	ApplyStatusDelta(ctx context.Context, q Querier, bucketDate time.Time, categoryCode string, successDelta, failedDelta int) error
	GetByBucket(ctx context.Context, q Querier, bucketDate time.Time, categoryCode string) (*domain.DailyAggregate, error)
}

// RetryRepository manages the resubmission queue.
type RetryRepository interface {
	Enqueue(ctx context.Context, q Querier, entry *domain.RetryEntry) error
	// ClaimDue selects up to limit entries that are under the retry budget
	// and past their cooldown, oldest-created first, stamping last_attempt_at
	// so overlapping sweeps cannot pick the same entry twice.
	ClaimDue(ctx context.Context, q Querier, now time.Time, cooldown time.Duration, maxAttempts, limit int) ([]*domain.RetryEntry, error)
	// RecordFailure increments the retry counter and returns its new value.
	RecordFailure(ctx context.Context, q Querier, id uuid.UUID, attemptedAt time.Time) (int, error)
	Delete(ctx context.Context, q Querier, id uuid.UUID) error
	CountExhausted(ctx context.Context, q Querier, maxAttempts int) (int64, error)
}

// CategoryRepository is the lookup contract for the external category catalog.
type CategoryRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}
