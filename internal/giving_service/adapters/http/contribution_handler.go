package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/givebridge/giving_services/internal/giving_service/app"
	"github.com/givebridge/giving_services/internal/giving_service/domain"
)

// ContributionAppService is the application surface the HTTP layer drives.
type ContributionAppService interface {
	Create(ctx context.Context, req app.CreateContributionRequest) (*domain.Contribution, error)
	StatusByReference(ctx context.Context, reference string) (*app.StatusResult, error)
	UpdateStatusManually(ctx context.Context, reference, status string, settlementID *string) (bool, error)
}

// CreateContributionDTO is the POST /contributions request body.
type CreateContributionDTO struct {
	Amount       string `json:"amount" validate:"required"`
	PayerMSISDN  string `json:"payer_msisdn" validate:"required,min=8,max=15"`
	CategoryCode string `json:"category_code" validate:"required"`
	Note         string `json:"note,omitempty" validate:"max=160"`
}

// CreateContributionResponse echoes the identifiers the caller needs to
// follow the payment's progress.
type CreateContributionResponse struct {
	Reference     string `json:"reference"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
}

// StatusResponse is the GET status answer; Stale flags a degraded response
// served from the last known local status.
type StatusResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Stale     bool   `json:"stale,omitempty"`
}

// ManualStatusUpdateDTO is the administrative correction body.
type ManualStatusUpdateDTO struct {
	Status       string  `json:"status" validate:"required"`
	SettlementID *string `json:"settlement_id,omitempty"`
}

type ManualStatusUpdateResponse struct {
	Changed bool `json:"changed"`
}

type GenericErrorResponse struct {
	Error string `json:"error"`
}

type ContributionHandler struct {
	service  ContributionAppService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewContributionHandler(service ContributionAppService, logger *slog.Logger) *ContributionHandler {
	return &ContributionHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With("component", "contribution_handler"),
	}
}

// RegisterRoutes mounts the contribution routes on the given router.
func (h *ContributionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/contributions", h.CreateContribution)
	r.Get("/contributions/{reference}/status", h.GetContributionStatus)
	r.Patch("/contributions/{reference}/status", h.UpdateContributionStatus)
}

func (h *ContributionHandler) CreateContribution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var dto CreateContributionDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodySize)).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(dto.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount is not a valid decimal")
		return
	}

	c, err := h.service.Create(ctx, app.CreateContributionRequest{
		Amount:       amount,
		PayerMSISDN:  dto.PayerMSISDN,
		CategoryCode: dto.CategoryCode,
		Note:         dto.Note,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.ErrorContext(ctx, "Failed to create contribution", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, CreateContributionResponse{
		Reference:     c.Reference,
		CorrelationID: c.CorrelationID.String(),
		Status:        string(c.Status),
	})
}

func (h *ContributionHandler) GetContributionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference := chi.URLParam(r, "reference")

	result, err := h.service.StatusByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown contribution reference")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to resolve contribution status", "reference", reference, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Reference: result.Reference,
		Status:    string(result.Status),
		Stale:     result.Stale,
	})
}

func (h *ContributionHandler) UpdateContributionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reference := chi.URLParam(r, "reference")

	var dto ManualStatusUpdateDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodySize)).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	changed, err := h.service.UpdateStatusManually(ctx, reference, dto.Status, dto.SettlementID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ManualStatusUpdateResponse{Changed: changed})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown contribution reference")
	default:
		h.logger.ErrorContext(ctx, "Manual status update failed", "reference", reference, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, GenericErrorResponse{Error: msg})
}
