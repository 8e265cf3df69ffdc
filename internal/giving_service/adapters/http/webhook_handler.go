package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/givebridge/giving_services/internal/giving_service/app"
	"github.com/givebridge/giving_services/internal/giving_service/domain"
)

const MaxRequestBodySize = 1 << 20 // 1 MB

// WebhookIngestor is the slice of the application service the webhook
// handler needs. An interface so the handler tests with a mock.
type WebhookIngestor interface {
	IngestWebhook(ctx context.Context, event app.WebhookEvent) error
}

// PaymentWebhookRequest is the provider's status callback payload.
type PaymentWebhookRequest struct {
	Reference    string  `json:"reference" validate:"required"`
	Status       string  `json:"status" validate:"required"`
	SettlementID *string `json:"settlement_id,omitempty"`
}

type WebhookHandler struct {
	ingestor WebhookIngestor
	validate *validator.Validate
	logger   *slog.Logger
}

func NewWebhookHandler(ingestor WebhookIngestor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor: ingestor,
		validate: validator.New(),
		logger:   logger.With("component", "webhook_handler"),
	}
}

// HandlePaymentWebhook receives status callbacks from the payment provider.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var payload PaymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.WarnContext(ctx, "Failed to decode webhook payload", "error", err)
		http.Error(w, "Malformed webhook payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		logger.WarnContext(ctx, "Webhook payload failed validation", "error", err)
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}

	logger.InfoContext(ctx, "Received payment webhook",
		"reference", payload.Reference, "status", payload.Status)

	err := h.ingestor.IngestWebhook(ctx, app.WebhookEvent{
		Reference:    payload.Reference,
		Status:       payload.Status,
		SettlementID: payload.SettlementID,
	})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, "Unrecognized status value", http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		// Reported distinctly: the provider pushed a reference this system
		// never issued.
		logger.WarnContext(ctx, "Webhook for unknown reference", "reference", payload.Reference)
		http.Error(w, "Unknown contribution reference", http.StatusNotFound)
	default:
		logger.ErrorContext(ctx, "Error processing payment webhook", "error", err)
		http.Error(w, "Internal server error processing webhook", http.StatusInternalServerError)
	}
}
