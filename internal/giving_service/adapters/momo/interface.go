package momo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/givebridge/giving_services/internal/giving_service/domain"
)

// PaymentStatus is the provider-side status of a payment request.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusSuccessful PaymentStatus = "SUCCESSFUL"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// ContributionStatus maps the provider status onto the domain lifecycle.
func (s PaymentStatus) ContributionStatus() (domain.ContributionStatus, bool) {
	switch s {
	case PaymentStatusPending:
		return domain.StatusPending, true
	case PaymentStatusSuccessful:
		return domain.StatusSuccessful, true
	case PaymentStatusFailed:
		return domain.StatusFailed, true
	default:
		return "", false
	}
}

// PaymentRequest carries everything the provider needs for a request-to-pay.
type PaymentRequest struct {
	Amount        decimal.Decimal
	Currency      string
	PayerMSISDN   string
	Reference     string    // human-readable external id, shown on statements
	CorrelationID uuid.UUID // provider-facing id, used to match callbacks and queries
	Note          string
}

// StatusResponse is the provider's view of a payment request.
type StatusResponse struct {
	Status       PaymentStatus
	SettlementID *string // provider settlement/transaction id, present once settled
}

// Client is the opaque payment-provider collaborator. SubmitPayment returning
// nil means the request was *accepted* for processing, not that the payment
// settled; the outcome arrives later through a webhook or a status query.
// Credential acquisition is managed inside the implementation.
type Client interface {
	SubmitPayment(ctx context.Context, req PaymentRequest) error
	QueryStatus(ctx context.Context, correlationID uuid.UUID) (*StatusResponse, error)
}

// ProviderError is a failed interaction with the provider: unreachable,
// timed out or a non-success response. It unwraps to
// domain.ErrProviderUnavailable so callers can classify it with errors.Is.
type ProviderError struct {
	Op         string // "token", "submit", "query"
	StatusCode int    // HTTP status, 0 for transport errors
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("momo %s failed (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("momo %s failed: %s", e.Op, e.Message)
}

func (e *ProviderError) Unwrap() error { return domain.ErrProviderUnavailable }
