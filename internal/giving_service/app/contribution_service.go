package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/givebridge/giving_services/internal/giving_service/adapters/momo"
	"github.com/givebridge/giving_services/internal/giving_service/domain"
	"github.com/givebridge/giving_services/internal/giving_service/repository"
)

// CreateContributionRequest is the input of the creation flow.
type CreateContributionRequest struct {
	Amount       decimal.Decimal
	PayerMSISDN  string
	CategoryCode string
	Note         string
}

// WebhookEvent is the externally pushed status tuple from the provider.
type WebhookEvent struct {
	Reference    string
	Status       string
	SettlementID *string
}

// StatusResult is the poll driver's answer. Stale is set when the provider
// could not be reached and the status is the last locally known one.
type StatusResult struct {
	Reference string
	Status    domain.ContributionStatus
	Stale     bool
}

// ContributionService implements the creation flow and the three
// reconciliation drivers around the transition engine.
type ContributionService struct {
	txm           repository.TxManager
	db            repository.Querier // pool, for single-statement reads outside transactions
	contributions repository.ContributionRepository
	aggregates    repository.AggregateRepository
	retries       repository.RetryRepository
	categories    repository.CategoryRepository
	provider      momo.Client
	engine        *TransitionEngine
	logger        *slog.Logger

	currency        string
	providerTimeout time.Duration

	// Tracks in-flight initial submissions; tests wait on it.
	submitWG sync.WaitGroup
}

// NewContributionService wires the service.
func NewContributionService(
	txm repository.TxManager,
	db repository.Querier,
	contributions repository.ContributionRepository,
	aggregates repository.AggregateRepository,
	retries repository.RetryRepository,
	categories repository.CategoryRepository,
	provider momo.Client,
	engine *TransitionEngine,
	logger *slog.Logger,
	currency string,
	providerTimeout time.Duration,
) *ContributionService {
	if providerTimeout <= 0 {
		providerTimeout = 10 * time.Second
	}
	return &ContributionService{
		txm:             txm,
		db:              db,
		contributions:   contributions,
		aggregates:      aggregates,
		retries:         retries,
		categories:      categories,
		provider:        provider,
		engine:          engine,
		logger:          logger.With("service", "contributions"),
		currency:        currency,
		providerTimeout: providerTimeout,
	}
}

// Create validates and records a contribution, increments the daily aggregate
// totals in the same transaction, and then attempts the provider submission
// asynchronously. From the caller's perspective creation succeeds as soon as
// validation passes; the payment outcome resolves later through webhook or
// poll, and a failed submission lands in the retry queue instead of failing
// the response.
func (s *ContributionService) Create(ctx context.Context, req CreateContributionRequest) (*domain.Contribution, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", domain.ErrValidation, req.Amount)
	}
	if req.PayerMSISDN == "" {
		return nil, fmt.Errorf("%w: payer msisdn is required", domain.ErrValidation)
	}
	category, err := s.categories.GetByCode(ctx, req.CategoryCode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &domain.Contribution{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		CategoryCode:  category.Code,
		Amount:        req.Amount,
		Currency:      s.currency,
		PayerMSISDN:   req.PayerMSISDN,
		Note:          req.Note,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.txm.WithinTx(ctx, func(q repository.Querier) error {
		sequence, err := s.aggregates.IncrementTotals(ctx, q, c.BucketDate(), c.CategoryCode, c.Amount)
		if err != nil {
			return err
		}
		c.Reference = domain.BuildReference(c.CategoryCode, c.CreatedAt, sequence)
		return s.contributions.Create(ctx, q, c)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Contribution recorded",
		"reference", c.Reference, "category", c.CategoryCode, "amount", c.Amount)

	s.submitWG.Add(1)
	go func() {
		defer s.submitWG.Done()
		submitCtx, cancel := context.WithTimeout(context.Background(), s.providerTimeout)
		defer cancel()
		s.attemptInitialSubmission(submitCtx, c)
	}()

	return c, nil
}

// attemptInitialSubmission submits the payment request once; a failure is
// converted into a queued retry entry, never propagated.
func (s *ContributionService) attemptInitialSubmission(ctx context.Context, c *domain.Contribution) {
	err := s.provider.SubmitPayment(ctx, momo.PaymentRequest{
		Amount:        c.Amount,
		Currency:      c.Currency,
		PayerMSISDN:   c.PayerMSISDN,
		Reference:     c.Reference,
		CorrelationID: c.CorrelationID,
		Note:          c.Note,
	})
	if err == nil {
		s.logger.InfoContext(ctx, "Initial submission accepted", "reference", c.Reference)
		return
	}

	s.logger.WarnContext(ctx, "Initial submission failed, queueing for retry",
		"reference", c.Reference, "error", err)
	// The submission context has usually expired by now (a provider timeout
	// is the common failure here); the enqueue runs on its own deadline so
	// the entry is not lost to the deadline that caused it.
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.providerTimeout)
	defer cancel()
	if enqueueErr := s.retries.Enqueue(enqueueCtx, s.db, domain.NewRetryEntry(c)); enqueueErr != nil {
		// The contribution row exists either way; a lost enqueue only delays
		// reconciliation until a poll or webhook arrives.
		s.logger.ErrorContext(ctx, "Failed to enqueue retry entry",
			"reference", c.Reference, "error", enqueueErr)
	}
}

// StatusByReference is the on-demand poll driver. A terminal local status is
// returned immediately without contacting the provider. Otherwise the
// provider is queried under a timeout; a provider failure degrades to the
// last known local status with Stale set instead of propagating an error,
// and a differing provider status is applied through the transition engine.
func (s *ContributionService) StatusByReference(ctx context.Context, reference string) (*StatusResult, error) {
	c, err := s.contributions.GetByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}

	if c.Status.IsTerminal() {
		return &StatusResult{Reference: reference, Status: c.Status}, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	resp, err := s.provider.QueryStatus(queryCtx, c.CorrelationID)
	if err != nil {
		s.logger.WarnContext(ctx, "Provider status query failed, returning last known status",
			"reference", reference, "error", err)
		return &StatusResult{Reference: reference, Status: c.Status, Stale: true}, nil
	}

	providerStatus, ok := resp.Status.ContributionStatus()
	if !ok || providerStatus == c.Status {
		return &StatusResult{Reference: reference, Status: c.Status}, nil
	}

	result, err := s.engine.Transition(ctx, reference, providerStatus, resp.SettlementID)
	if err != nil {
		return nil, fmt.Errorf("apply polled status for %s: %w", reference, err)
	}
	return &StatusResult{Reference: reference, Status: result.Contribution.Status}, nil
}

// IngestWebhook is the webhook driver: validate the pushed status value and
// hand it to the transition engine. An unknown reference is a reportable
// anomaly surfaced as domain.ErrNotFound, not an internal failure.
func (s *ContributionService) IngestWebhook(ctx context.Context, event WebhookEvent) error {
	status, err := domain.ParseContributionStatus(event.Status)
	if err != nil {
		webhookEventsCounter.WithLabelValues("invalid").Inc()
		return err
	}

	result, err := s.engine.Transition(ctx, event.Reference, status, event.SettlementID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			webhookEventsCounter.WithLabelValues("not_found").Inc()
			s.logger.WarnContext(ctx, "Webhook references unknown contribution", "reference", event.Reference)
		}
		return err
	}
	if result.Changed {
		webhookEventsCounter.WithLabelValues("applied").Inc()
	} else {
		webhookEventsCounter.WithLabelValues("duplicate").Inc()
	}
	return nil
}

// UpdateStatusManually applies an administrative correction through the same
// engine path and reports whether anything changed.
func (s *ContributionService) UpdateStatusManually(ctx context.Context, reference, status string, settlementID *string) (bool, error) {
	parsed, err := domain.ParseContributionStatus(status)
	if err != nil {
		return false, err
	}
	result, err := s.engine.Transition(ctx, reference, parsed, settlementID)
	if err != nil {
		return false, err
	}
	return result.Changed, nil
}

// AggregateForBucket exposes a bucket's rollup for reporting callers.
func (s *ContributionService) AggregateForBucket(ctx context.Context, bucketDate time.Time, categoryCode string) (*domain.DailyAggregate, error) {
	return s.aggregates.GetByBucket(ctx, s.db, bucketDate.UTC().Truncate(24*time.Hour), categoryCode)
}

// WaitForSubmissions blocks until in-flight initial submissions finish. Used
// in tests and during graceful shutdown.
func (s *ContributionService) WaitForSubmissions() {
	s.submitWG.Wait()
}
