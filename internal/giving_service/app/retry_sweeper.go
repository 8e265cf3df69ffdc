package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/givebridge/giving_services/internal/giving_service/adapters/momo"
	"github.com/givebridge/giving_services/internal/giving_service/domain"
	"github.com/givebridge/giving_services/internal/giving_service/repository"
)

// SweeperConfig holds the retry scheduler's operating parameters.
type SweeperConfig struct {
	SweepInterval time.Duration `mapstructure:"RETRY_SWEEP_INTERVAL"`
	MaxAttempts   int           `mapstructure:"RETRY_MAX_ATTEMPTS"`
	Cooldown      time.Duration `mapstructure:"RETRY_COOLDOWN"`
	BatchSize     int           `mapstructure:"RETRY_BATCH_SIZE"`
}

// DefaultSweeperConfig returns the documented defaults: 60s sweeps, 5-attempt
// budget, 2m cooldown, batches of 10.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		SweepInterval: time.Minute,
		MaxAttempts:   5,
		Cooldown:      2 * time.Minute,
		BatchSize:     10,
	}
}

// RetrySweeper periodically re-submits payment requests whose initial
// submission failed. It never touches contribution status: an accepted
// resubmission only removes the queue entry, and the contribution stays
// PENDING until its outcome arrives via webhook or poll.
type RetrySweeper struct {
	retries  repository.RetryRepository
	db       repository.Querier
	provider momo.Client
	logger   *slog.Logger
	cfg      SweeperConfig
}

// NewRetrySweeper creates a RetrySweeper. Zero-valued config fields fall back
// to the defaults.
func NewRetrySweeper(retries repository.RetryRepository, db repository.Querier, provider momo.Client, logger *slog.Logger, cfg SweeperConfig) *RetrySweeper {
	def := DefaultSweeperConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &RetrySweeper{
		retries:  retries,
		db:       db,
		provider: provider,
		logger:   logger.With("component", "retry_sweeper"),
		cfg:      cfg,
	}
}

// Run sweeps once eagerly to drain any backlog left over from downtime, then
// on a fixed ticker until the context is cancelled. Sweep errors are logged
// and the loop keeps going; only cancellation stops it.
func (s *RetrySweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Retry sweeper starting",
		"sweep_interval", s.cfg.SweepInterval, "max_attempts", s.cfg.MaxAttempts,
		"cooldown", s.cfg.Cooldown, "batch_size", s.cfg.BatchSize)

	if _, err := s.SweepOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Initial retry sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Retry sweep failed", "error", err)
			}
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Retry sweeper stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// SweepOnce claims one batch of eligible entries and processes each
// independently: a provider acceptance removes the entry, a failure bumps its
// counter. Individual failures are counted and logged, never returned; the
// returned error covers only the claim query itself.
func (s *RetrySweeper) SweepOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(sweepDurationHist)
	defer timer.ObserveDuration()

	now := time.Now().UTC()
	entries, err := s.retries.ClaimDue(ctx, s.db, now, s.cfg.Cooldown, s.cfg.MaxAttempts, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due retry entries: %w", err)
	}
	if len(entries) == 0 {
		s.logger.DebugContext(ctx, "No eligible retry entries in this sweep")
		s.refreshExhaustedGauge(ctx)
		return 0, nil
	}

	s.logger.InfoContext(ctx, "Claimed retry entries for resubmission", "count", len(entries))
	for _, entry := range entries {
		s.processEntry(ctx, entry)
	}
	s.refreshExhaustedGauge(ctx)
	return len(entries), nil
}

func (s *RetrySweeper) processEntry(ctx context.Context, entry *domain.RetryEntry) {
	s.logger.InfoContext(ctx, "Resubmitting payment request",
		"reference", entry.Reference, "retry_count", entry.RetryCount)

	err := s.provider.SubmitPayment(ctx, momo.PaymentRequest{
		Amount:        entry.Amount,
		Currency:      entry.Currency,
		PayerMSISDN:   entry.PayerMSISDN,
		Reference:     entry.Reference,
		CorrelationID: entry.CorrelationID,
		Note:          entry.Note,
	})
	if err == nil {
		// Accepted means the provider acknowledged receipt, not that the
		// payment settled; the contribution remains PENDING.
		retryAttemptsCounter.WithLabelValues("accepted").Inc()
		if delErr := s.retries.Delete(ctx, s.db, entry.ID); delErr != nil {
			s.logger.ErrorContext(ctx, "Failed to remove accepted retry entry",
				"reference", entry.Reference, "error", delErr)
			return
		}
		s.logger.InfoContext(ctx, "Resubmission accepted, retry entry removed", "reference", entry.Reference)
		return
	}

	newCount, recErr := s.retries.RecordFailure(ctx, s.db, entry.ID, time.Now().UTC())
	if recErr != nil {
		s.logger.ErrorContext(ctx, "Failed to record resubmission failure",
			"reference", entry.Reference, "error", recErr)
		return
	}
	if newCount >= s.cfg.MaxAttempts {
		retryAttemptsCounter.WithLabelValues("exhausted").Inc()
		s.logger.WarnContext(ctx, "Retry budget exhausted, entry is now inert",
			"reference", entry.Reference, "retry_count", newCount, "error", err)
		return
	}
	retryAttemptsCounter.WithLabelValues("failed").Inc()
	s.logger.WarnContext(ctx, "Resubmission failed, entry stays queued",
		"reference", entry.Reference, "retry_count", newCount, "error", err)
}

func (s *RetrySweeper) refreshExhaustedGauge(ctx context.Context) {
	count, err := s.retries.CountExhausted(ctx, s.db, s.cfg.MaxAttempts)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to count exhausted retry entries", "error", err)
		return
	}
	exhaustedEntriesGauge.Set(float64(count))
}
