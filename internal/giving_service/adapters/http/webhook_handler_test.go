package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/givebridge/giving_services/internal/giving_service/app"
	"github.com/givebridge/giving_services/internal/giving_service/domain"
)

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) IngestWebhook(ctx context.Context, event app.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postWebhook(h *WebhookHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/momo", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.HandlePaymentWebhook(rr, req)
	return rr
}

func TestHandlePaymentWebhook_Applied(t *testing.T) {
	ingestor := new(MockIngestor)
	handler := NewWebhookHandler(ingestor, discardLogger())

	settlement := "FT-445566"
	ingestor.On("IngestWebhook", mock.Anything, app.WebhookEvent{
		Reference:    "TITHE-2026-0211-001",
		Status:       "SUCCESSFUL",
		SettlementID: &settlement,
	}).Return(nil)

	rr := postWebhook(handler, `{"reference":"TITHE-2026-0211-001","status":"SUCCESSFUL","settlement_id":"FT-445566"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"result":"ok"}`, rr.Body.String())
	ingestor.AssertExpectations(t)
}

func TestHandlePaymentWebhook_MalformedJSON(t *testing.T) {
	ingestor := new(MockIngestor)
	handler := NewWebhookHandler(ingestor, discardLogger())

	rr := postWebhook(handler, `{"reference":`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	ingestor.AssertNotCalled(t, "IngestWebhook", mock.Anything, mock.Anything)
}

func TestHandlePaymentWebhook_MissingFields(t *testing.T) {
	ingestor := new(MockIngestor)
	handler := NewWebhookHandler(ingestor, discardLogger())

	rr := postWebhook(handler, `{"reference":"TITHE-2026-0211-001"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	ingestor.AssertNotCalled(t, "IngestWebhook", mock.Anything, mock.Anything)
}

func TestHandlePaymentWebhook_UnrecognizedStatus(t *testing.T) {
	ingestor := new(MockIngestor)
	handler := NewWebhookHandler(ingestor, discardLogger())

	ingestor.On("IngestWebhook", mock.Anything, mock.Anything).
		Return(domain.ErrValidation)

	rr := postWebhook(handler, `{"reference":"TITHE-2026-0211-001","status":"COMPLETED"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlePaymentWebhook_UnknownReference(t *testing.T) {
	ingestor := new(MockIngestor)
	handler := NewWebhookHandler(ingestor, discardLogger())

	ingestor.On("IngestWebhook", mock.Anything, mock.Anything).
		Return(domain.ErrNotFound)

	rr := postWebhook(handler, `{"reference":"TITHE-2026-0211-999","status":"SUCCESSFUL"}`)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlePaymentWebhook_InternalError(t *testing.T) {
	ingestor := new(MockIngestor)
	handler := NewWebhookHandler(ingestor, discardLogger())

	ingestor.On("IngestWebhook", mock.Anything, mock.Anything).
		Return(errors.New("connection refused"))

	rr := postWebhook(handler, `{"reference":"TITHE-2026-0211-001","status":"SUCCESSFUL"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandlePaymentWebhook_MethodNotAllowed(t *testing.T) {
	ingestor := new(MockIngestor)
	handler := NewWebhookHandler(ingestor, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/webhooks/momo", nil)
	rr := httptest.NewRecorder()
	handler.HandlePaymentWebhook(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	ingestor.AssertNotCalled(t, "IngestWebhook", mock.Anything, mock.Anything)
}
