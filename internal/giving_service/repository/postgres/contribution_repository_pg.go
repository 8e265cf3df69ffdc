package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/givebridge/giving_services/internal/giving_service/domain"
	"github.com/givebridge/giving_services/internal/giving_service/repository"
)

const contributionColumns = `id, reference, correlation_id, category_code, amount, currency,
	       payer_msisdn, note, status, settlement_id, created_at, updated_at`

type pgContributionRepository struct {
	logger *slog.Logger
}

// NewPgContributionRepository creates a ContributionRepository backed by PostgreSQL.
func NewPgContributionRepository(logger *slog.Logger) repository.ContributionRepository {
	return &pgContributionRepository{logger: logger.With("repository", "contributions")}
}

func (r *pgContributionRepository) Create(ctx context.Context, q repository.Querier, c *domain.Contribution) error {
	query := `
		INSERT INTO contributions (` + contributionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := q.Exec(ctx, query,
		c.ID, c.Reference, c.CorrelationID, c.CategoryCode, c.Amount, c.Currency,
		c.PayerMSISDN, c.Note, c.Status, c.SettlementID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating contribution", "error", err, "reference", c.Reference)
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

func (r *pgContributionRepository) GetByReference(ctx context.Context, q repository.Querier, reference string) (*domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE reference = $1`
	return r.scanOne(ctx, q, query, reference)
}

func (r *pgContributionRepository) GetByReferenceForUpdate(ctx context.Context, q repository.Querier, reference string) (*domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE reference = $1 FOR UPDATE`
	return r.scanOne(ctx, q, query, reference)
}

func (r *pgContributionRepository) GetByCorrelationID(ctx context.Context, q repository.Querier, correlationID uuid.UUID) (*domain.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE correlation_id = $1`
	return r.scanOne(ctx, q, query, correlationID)
}

func (r *pgContributionRepository) UpdateStatus(ctx context.Context, q repository.Querier, id uuid.UUID, status domain.ContributionStatus, settlementID *string, updatedAt time.Time) error {
	query := `
		UPDATE contributions
		SET status = $1, settlement_id = COALESCE($2, settlement_id), updated_at = $3
		WHERE id = $4
	`
	tag, err := q.Exec(ctx, query, status, settlementID, updatedAt, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating contribution status", "error", err, "contribution_id", id, "new_status", status)
		return fmt.Errorf("update contribution status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgContributionRepository) scanOne(ctx context.Context, q repository.Querier, query string, arg any) (*domain.Contribution, error) {
	c := &domain.Contribution{}
	err := q.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.Reference, &c.CorrelationID, &c.CategoryCode, &c.Amount, &c.Currency,
		&c.PayerMSISDN, &c.Note, &c.Status, &c.SettlementID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error reading contribution", "error", err)
		return nil, err
	}
	return c, nil
}
