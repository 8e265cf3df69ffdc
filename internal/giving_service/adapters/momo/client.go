package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// tokenExpiryMargin is subtracted from the provider-reported token lifetime
// so a token is refreshed before it can expire mid-request.
const tokenExpiryMargin = 30 * time.Second

// CollectionClient talks to a MoMo-collections-style HTTP API: a token
// endpoint issuing short-lived bearer credentials, a request-to-pay endpoint
// acknowledging with 202, and a per-correlation-id status endpoint.
type CollectionClient struct {
	logger          *slog.Logger
	httpClient      *http.Client
	baseURL         string
	subscriptionKey string
	apiUser         string
	apiKey          string
	targetEnv       string

	// The cached credential is process-wide shared state: any caller may
	// trigger a refresh and the result is shared with every other caller.
	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewCollectionClient creates a provider client. A nil httpClient gets a
// default with a 10s timeout; callers that need tighter bounds pass contexts.
func NewCollectionClient(logger *slog.Logger, baseURL, subscriptionKey, apiUser, apiKey, targetEnv string, httpClient *http.Client) *CollectionClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &CollectionClient{
		logger:          logger.With("provider", "momo_collections"),
		httpClient:      httpClient,
		baseURL:         baseURL,
		subscriptionKey: subscriptionKey,
		apiUser:         apiUser,
		apiKey:          apiKey,
		targetEnv:       targetEnv,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

type requestToPayBody struct {
	Amount       string       `json:"amount"`
	Currency     string       `json:"currency"`
	ExternalID   string       `json:"externalId"`
	Payer        requestParty `json:"payer"`
	PayerMessage string       `json:"payerMessage,omitempty"`
	PayeeNote    string       `json:"payeeNote,omitempty"`
}

type requestParty struct {
	PartyIDType string `json:"partyIdType"` // always MSISDN here
	PartyID     string `json:"partyId"`
}

type requestToPayResult struct {
	Status                 PaymentStatus `json:"status"`
	FinancialTransactionID *string       `json:"financialTransactionId,omitempty"`
	Reason                 *string       `json:"reason,omitempty"`
}

// ensureToken returns a valid bearer token, refreshing the shared cached one
// if it is absent or about to expire. Refresh failures surface as the
// triggering caller's ProviderError.
func (c *CollectionClient) ensureToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/collection/token/", nil)
	if err != nil {
		return "", &ProviderError{Op: "token", Message: err.Error()}
	}
	req.SetBasicAuth(c.apiUser, c.apiKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Token request failed", "error", err)
		return "", &ProviderError{Op: "token", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Op: "token", StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "Token request rejected", "status_code", resp.StatusCode)
		return "", &ProviderError{Op: "token", StatusCode: resp.StatusCode, Message: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", &ProviderError{Op: "token", StatusCode: resp.StatusCode, Message: "malformed token response"}
	}

	c.token = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryMargin)
	c.logger.InfoContext(ctx, "Provider credential refreshed", "expires_in_s", tr.ExpiresIn)
	return c.token, nil
}

// invalidateToken drops the cached credential after the provider rejected it.
func (c *CollectionClient) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenMu.Unlock()
}

// SubmitPayment issues a request-to-pay. A 202 from the provider is an
// acceptance acknowledgement only; settlement is reported asynchronously.
func (c *CollectionClient) SubmitPayment(ctx context.Context, pr PaymentRequest) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}

	reqBody := requestToPayBody{
		Amount:     pr.Amount.String(),
		Currency:   pr.Currency,
		ExternalID: pr.Reference,
		Payer: requestParty{
			PartyIDType: "MSISDN",
			PartyID:     pr.PayerMSISDN,
		},
		PayerMessage: pr.Note,
		PayeeNote:    pr.Reference,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request-to-pay body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/collection/v1_0/requesttopay", bytes.NewReader(payload))
	if err != nil {
		return &ProviderError{Op: "submit", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Reference-Id", pr.CorrelationID.String())
	req.Header.Set("X-Target-Environment", c.targetEnv)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Request-to-pay failed", "error", err, "reference", pr.Reference)
		return &ProviderError{Op: "submit", Message: err.Error()}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusAccepted:
		c.logger.InfoContext(ctx, "Request-to-pay accepted", "reference", pr.Reference, "correlation_id", pr.CorrelationID)
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		c.invalidateToken()
		fallthrough
	default:
		c.logger.WarnContext(ctx, "Request-to-pay rejected", "status_code", resp.StatusCode, "reference", pr.Reference)
		return &ProviderError{Op: "submit", StatusCode: resp.StatusCode, Message: string(body)}
	}
}

// QueryStatus fetches the provider's current view of a payment request.
func (c *CollectionClient) QueryStatus(ctx context.Context, correlationID uuid.UUID) (*StatusResponse, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/collection/v1_0/requesttopay/" + correlationID.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ProviderError{Op: "query", Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Target-Environment", c.targetEnv)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Status query failed", "error", err, "correlation_id", correlationID)
		return nil, &ProviderError{Op: "query", Message: err.Error()}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Op: "query", StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Op: "query", StatusCode: resp.StatusCode, Message: string(body)}
	}

	var result requestToPayResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ProviderError{Op: "query", StatusCode: resp.StatusCode, Message: "malformed status response"}
	}
	if _, ok := result.Status.ContributionStatus(); !ok {
		// Unknown provider statuses are treated as still pending rather than
		// guessed at; the webhook carries the authoritative outcome.
		c.logger.WarnContext(ctx, "Unknown provider status, treating as PENDING", "status", result.Status, "correlation_id", correlationID)
		result.Status = PaymentStatusPending
	}
	return &StatusResponse{
		Status:       result.Status,
		SettlementID: result.FinancialTransactionID,
	}, nil
}
