package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/givebridge/giving_services/internal/giving_service/adapters/momo"
	"github.com/givebridge/giving_services/internal/giving_service/domain"
	"github.com/givebridge/giving_services/internal/giving_service/repository"
)

// --- Mocks shared by the app-layer tests ---

type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithinTx(ctx context.Context, fn func(q repository.Querier) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	// Run the body with a nil Querier; the repository mocks ignore it.
	return fn(nil)
}

type MockContributionRepository struct {
	mock.Mock
}

func (m *MockContributionRepository) Create(ctx context.Context, q repository.Querier, c *domain.Contribution) error {
	args := m.Called(ctx, q, c)
	return args.Error(0)
}

func (m *MockContributionRepository) GetByReference(ctx context.Context, q repository.Querier, reference string) (*domain.Contribution, error) {
	args := m.Called(ctx, q, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contribution), args.Error(1)
}

func (m *MockContributionRepository) GetByReferenceForUpdate(ctx context.Context, q repository.Querier, reference string) (*domain.Contribution, error) {
	args := m.Called(ctx, q, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contribution), args.Error(1)
}

func (m *MockContributionRepository) GetByCorrelationID(ctx context.Context, q repository.Querier, correlationID uuid.UUID) (*domain.Contribution, error) {
	args := m.Called(ctx, q, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contribution), args.Error(1)
}

func (m *MockContributionRepository) UpdateStatus(ctx context.Context, q repository.Querier, id uuid.UUID, status domain.ContributionStatus, settlementID *string, updatedAt time.Time) error {
	args := m.Called(ctx, q, id, status, settlementID, updatedAt)
	return args.Error(0)
}

type MockAggregateRepository struct {
	mock.Mock
}

func (m *MockAggregateRepository) IncrementTotals(ctx context.Context, q repository.Querier, bucketDate time.Time, categoryCode string, amount decimal.Decimal) (int64, error) {
	args := m.Called(ctx, q, bucketDate, categoryCode, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAggregateRepository) ApplyStatusDelta(ctx context.Context, q repository.Querier, bucketDate time.Time, categoryCode string, successDelta, failedDelta int) error {
	args := m.Called(ctx, q, bucketDate, categoryCode, successDelta, failedDelta)
	return args.Error(0)
}

func (m *MockAggregateRepository) GetByBucket(ctx context.Context, q repository.Querier, bucketDate time.Time, categoryCode string) (*domain.DailyAggregate, error) {
	args := m.Called(ctx, q, bucketDate, categoryCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailyAggregate), args.Error(1)
}

type MockRetryRepository struct {
	mock.Mock
}

func (m *MockRetryRepository) Enqueue(ctx context.Context, q repository.Querier, entry *domain.RetryEntry) error {
	args := m.Called(ctx, q, entry)
	return args.Error(0)
}

func (m *MockRetryRepository) ClaimDue(ctx context.Context, q repository.Querier, now time.Time, cooldown time.Duration, maxAttempts, limit int) ([]*domain.RetryEntry, error) {
	args := m.Called(ctx, q, now, cooldown, maxAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RetryEntry), args.Error(1)
}

func (m *MockRetryRepository) RecordFailure(ctx context.Context, q repository.Querier, id uuid.UUID, attemptedAt time.Time) (int, error) {
	args := m.Called(ctx, q, id, attemptedAt)
	return args.Int(0), args.Error(1)
}

func (m *MockRetryRepository) Delete(ctx context.Context, q repository.Querier, id uuid.UUID) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}

func (m *MockRetryRepository) CountExhausted(ctx context.Context, q repository.Querier, maxAttempts int) (int64, error) {
	args := m.Called(ctx, q, maxAttempts)
	return args.Get(0).(int64), args.Error(1)
}

type MockCategoryRepository struct {
	mock.Mock
}

func (m *MockCategoryRepository) GetByCode(ctx context.Context, code string) (*domain.Category, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *MockCategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Category), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type MockPaymentClient struct {
	mock.Mock
}

func (m *MockPaymentClient) SubmitPayment(ctx context.Context, req momo.PaymentRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockPaymentClient) QueryStatus(ctx context.Context, correlationID uuid.UUID) (*momo.StatusResponse, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*momo.StatusResponse), args.Error(1)
}
