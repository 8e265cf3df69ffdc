package momo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/givebridge/giving_services/internal/giving_service/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPaymentRequest() PaymentRequest {
	return PaymentRequest{
		Amount:        decimal.NewFromInt(50),
		Currency:      "GHS",
		PayerMSISDN:   "233244000001",
		Reference:     "TITHE-2026-0211-001",
		CorrelationID: uuid.New(),
		Note:          "February tithe",
	}
}

// providerStub is a fake collections API recording token issuance and the
// submit/query traffic the client produces.
type providerStub struct {
	tokenRequests  atomic.Int32
	submitStatus   int
	queryStatus    int
	queryBody      string
	lastSubmitAuth string
	lastRefID      string
}

func (p *providerStub) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/collection/token/", func(w http.ResponseWriter, r *http.Request) {
		p.tokenRequests.Add(1)
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-abc","token_type":"access_token","expires_in":3600}`))
	})
	mux.HandleFunc("/collection/v1_0/requesttopay", func(w http.ResponseWriter, r *http.Request) {
		p.lastSubmitAuth = r.Header.Get("Authorization")
		p.lastRefID = r.Header.Get("X-Reference-Id")
		w.WriteHeader(p.submitStatus)
	})
	mux.HandleFunc("/collection/v1_0/requesttopay/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.queryStatus)
		_, _ = w.Write([]byte(p.queryBody))
	})
	return httptest.NewServer(mux)
}

func newStubClient(t *testing.T, stub *providerStub) *CollectionClient {
	t.Helper()
	srv := stub.server()
	t.Cleanup(srv.Close)
	return NewCollectionClient(testLogger(), srv.URL, "sub-key", "api-user", "api-key", "sandbox", srv.Client())
}

func TestSubmitPayment_Accepted(t *testing.T) {
	stub := &providerStub{submitStatus: http.StatusAccepted}
	client := newStubClient(t, stub)
	pr := testPaymentRequest()

	err := client.SubmitPayment(context.Background(), pr)

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-abc", stub.lastSubmitAuth)
	assert.Equal(t, pr.CorrelationID.String(), stub.lastRefID)
}

func TestSubmitPayment_TokenIsCachedAcrossCalls(t *testing.T) {
	stub := &providerStub{submitStatus: http.StatusAccepted}
	client := newStubClient(t, stub)

	require.NoError(t, client.SubmitPayment(context.Background(), testPaymentRequest()))
	require.NoError(t, client.SubmitPayment(context.Background(), testPaymentRequest()))

	assert.Equal(t, int32(1), stub.tokenRequests.Load())
}

func TestSubmitPayment_RejectionIsProviderError(t *testing.T) {
	stub := &providerStub{submitStatus: http.StatusServiceUnavailable}
	client := newStubClient(t, stub)

	err := client.SubmitPayment(context.Background(), testPaymentRequest())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "submit", perr.Op)
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
}

func TestSubmitPayment_UnauthorizedInvalidatesToken(t *testing.T) {
	stub := &providerStub{submitStatus: http.StatusUnauthorized}
	client := newStubClient(t, stub)

	err := client.SubmitPayment(context.Background(), testPaymentRequest())
	require.Error(t, err)

	// The rejected credential was dropped, so the next call fetches a new one.
	stub.submitStatus = http.StatusAccepted
	require.NoError(t, client.SubmitPayment(context.Background(), testPaymentRequest()))
	assert.Equal(t, int32(2), stub.tokenRequests.Load())
}

func TestSubmitPayment_UnreachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewCollectionClient(testLogger(), srv.URL, "sub-key", "api-user", "api-key", "sandbox", nil)

	err := client.SubmitPayment(context.Background(), testPaymentRequest())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))
}

func TestQueryStatus_Settled(t *testing.T) {
	stub := &providerStub{
		queryStatus: http.StatusOK,
		queryBody:   `{"status":"SUCCESSFUL","financialTransactionId":"FT-778899"}`,
	}
	client := newStubClient(t, stub)

	resp, err := client.QueryStatus(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, PaymentStatusSuccessful, resp.Status)
	require.NotNil(t, resp.SettlementID)
	assert.Equal(t, "FT-778899", *resp.SettlementID)
}

func TestQueryStatus_UnknownStatusTreatedAsPending(t *testing.T) {
	stub := &providerStub{
		queryStatus: http.StatusOK,
		queryBody:   `{"status":"ONGOING"}`,
	}
	client := newStubClient(t, stub)

	resp, err := client.QueryStatus(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, resp.Status)
	assert.Nil(t, resp.SettlementID)
}

func TestQueryStatus_NotFoundIsProviderError(t *testing.T) {
	stub := &providerStub{
		queryStatus: http.StatusNotFound,
		queryBody:   `{"message":"Requested resource was not found."}`,
	}
	client := newStubClient(t, stub)

	_, err := client.QueryStatus(context.Background(), uuid.New())

	require.Error(t, err)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "query", perr.Op)
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
}

func TestPaymentStatusMapping(t *testing.T) {
	testCases := []struct {
		provider PaymentStatus
		want     domain.ContributionStatus
		known    bool
	}{
		{PaymentStatusPending, domain.StatusPending, true},
		{PaymentStatusSuccessful, domain.StatusSuccessful, true},
		{PaymentStatusFailed, domain.StatusFailed, true},
		{PaymentStatus("ONGOING"), "", false},
	}

	for _, tc := range testCases {
		got, ok := tc.provider.ContributionStatus()
		assert.Equal(t, tc.known, ok)
		assert.Equal(t, tc.want, got)
	}
}

func TestMockClient_StableAcrossRepeatedQueries(t *testing.T) {
	client := NewMockClient(testLogger(), 0, 0)

	sawSettled := false
	for i := 0; i < 32; i++ {
		pr := testPaymentRequest()
		require.NoError(t, client.SubmitPayment(context.Background(), pr))

		first, err := client.QueryStatus(context.Background(), pr.CorrelationID)
		require.NoError(t, err)
		second, err := client.QueryStatus(context.Background(), pr.CorrelationID)
		require.NoError(t, err)

		assert.Equal(t, first.Status, second.Status)
		if first.Status == PaymentStatusSuccessful {
			sawSettled = true
			require.NotNil(t, first.SettlementID)
			require.NotNil(t, second.SettlementID)
			assert.Equal(t, *first.SettlementID, *second.SettlementID)
		}
	}
	require.True(t, sawSettled)
}
