package momo

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockClient is a simulated payment provider for development and tests. It
// keeps an in-memory status map keyed by correlation id: a submitted payment
// starts PENDING and resolves to a terminal status once its settle delay has
// elapsed. failRate controls how often submissions are rejected.
type MockClient struct {
	logger      *slog.Logger
	failRate    float64 // 0.0 to 1.0
	settleDelay time.Duration

	mu       sync.Mutex
	payments map[uuid.UUID]mockPayment
}

type mockPayment struct {
	submittedAt  time.Time
	outcome      PaymentStatus
	settlementID string // assigned at submission so repeated queries agree
}

// NewMockClient creates a simulated provider.
func NewMockClient(logger *slog.Logger, failRate float64, settleDelay time.Duration) *MockClient {
	return &MockClient{
		logger:      logger.With("provider", "momo_mock"),
		failRate:    failRate,
		settleDelay: settleDelay,
		payments:    make(map[uuid.UUID]mockPayment),
	}
}

func (m *MockClient) SubmitPayment(ctx context.Context, req PaymentRequest) error {
	if rand.Float64() < m.failRate {
		m.logger.WarnContext(ctx, "MockClient: simulated submission failure", "reference", req.Reference)
		return &ProviderError{Op: "submit", StatusCode: 503, Message: "simulated provider outage"}
	}

	p := mockPayment{submittedAt: time.Now(), outcome: PaymentStatusSuccessful}
	if rand.Float64() < 0.2 {
		p.outcome = PaymentStatusFailed
	} else {
		p.settlementID = uuid.NewString()
	}

	m.mu.Lock()
	m.payments[req.CorrelationID] = p
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "MockClient: payment accepted (simulated)",
		"reference", req.Reference, "correlation_id", req.CorrelationID)
	return nil
}

func (m *MockClient) QueryStatus(ctx context.Context, correlationID uuid.UUID) (*StatusResponse, error) {
	m.mu.Lock()
	p, ok := m.payments[correlationID]
	m.mu.Unlock()

	if !ok {
		return nil, &ProviderError{Op: "query", StatusCode: 404, Message: "unknown correlation id"}
	}
	if time.Since(p.submittedAt) < m.settleDelay {
		return &StatusResponse{Status: PaymentStatusPending}, nil
	}
	resp := &StatusResponse{Status: p.outcome}
	if p.outcome == PaymentStatusSuccessful {
		settlementID := p.settlementID
		resp.SettlementID = &settlementID
	}
	return resp, nil
}
