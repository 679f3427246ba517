package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/mashughuli/escrow/internal/domain/errors"
	"github.com/mashughuli/escrow/internal/infrastructure/config"
	"github.com/mashughuli/escrow/pkg/retry"
)

const (
	stkPushPath = "/mpesa/stkpush/v1/processrequest"
	b2cPath     = "/mpesa/b2c/v1/paymentrequest"
	oauthPath   = "/oauth/v1/generate?grant_type=client_credentials"

	transactionTypePayBill = "CustomerPayBillOnline"
	commandBusinessPayment = "BusinessPayment"

	timestampLayout = "20060102150405"
)

// Client talks to the Safaricom Daraja API. Requests go through a
// circuit breaker and exponential backoff so a flapping upstream does
// not stall callers indefinitely.
type Client struct {
	cfg      config.MpesaConfig
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	retryCfg retry.Config
	logger   zerolog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a Daraja API client.
func NewClient(cfg config.MpesaConfig, logger zerolog.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "daraja",
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		breaker: breaker,
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
		logger: logger.With().Str("component", "daraja").Logger(),
	}
}

// STKPush asks Daraja to prompt the customer's phone for payment.
// The returned CheckoutRequestID is the correlation key for the
// asynchronous result callback.
func (c *Client) STKPush(ctx context.Context, phoneNumber string, amount int64, accountRef, description string) (*StkPushResponse, error) {
	timestamp := time.Now().Format(timestampLayout)
	req := StkPushRequest{
		BusinessShortCode: c.cfg.BusinessShortCode,
		Password:          c.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		Amount:            amount,
		PartyA:            phoneNumber,
		PartyB:            c.cfg.BusinessShortCode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   description,
	}

	var resp StkPushResponse
	if err := c.post(ctx, stkPushPath, req, &resp); err != nil {
		return nil, err
	}
	if resp.ResponseCode != "0" {
		c.logger.Warn().
			Str("response_code", resp.ResponseCode).
			Str("description", resp.ResponseDescription).
			Msg("stk push rejected")
		return nil, fmt.Errorf("%w: %s", errors.ErrProviderRejected, resp.ResponseDescription)
	}
	return &resp, nil
}

// B2CPayment queues a disbursement from the business shortcode to a
// customer phone number.
func (c *Client) B2CPayment(ctx context.Context, phoneNumber string, amount int64, remarks string) (*B2CResponse, error) {
	req := B2CRequest{
		InitiatorName:      c.cfg.InitiatorName,
		SecurityCredential: c.cfg.SecurityCredential,
		CommandID:          commandBusinessPayment,
		Amount:             amount,
		PartyA:             c.cfg.BusinessShortCode,
		PartyB:             phoneNumber,
		Remarks:            remarks,
		QueueTimeOutURL:    c.cfg.B2CTimeoutURL,
		ResultURL:          c.cfg.B2CResultURL,
		Occassion:          remarks,
	}

	var resp B2CResponse
	if err := c.post(ctx, b2cPath, req, &resp); err != nil {
		return nil, err
	}
	if resp.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: %s", errors.ErrProviderRejected, resp.ResponseDescription)
	}
	return &resp, nil
}

func (c *Client) password(timestamp string) string {
	raw := c.cfg.BusinessShortCode + c.cfg.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// token returns a cached OAuth access token, refreshing when expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+oauthPath, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d", errors.ErrProviderUnavailable, res.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.accessToken = tok.AccessToken
	// Tokens last an hour; refresh a minute early to avoid using one
	// that dies mid-request.
	c.tokenExpiry = time.Now().Add(59 * time.Minute)
	return c.accessToken, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return retry.DoWithResult(ctx, c.retryCfg, func() ([]byte, error) {
			return c.doRequest(ctx, path, body)
		})
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return fmt.Errorf("%w: circuit open", errors.ErrProviderUnavailable)
		}
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode == http.StatusUnauthorized {
		// Token may have been revoked server-side; drop the cache so
		// the retry picks up a fresh one.
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: unauthorized", errors.ErrProviderUnavailable)
	}
	if res.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: upstream returned %d", errors.ErrProviderUnavailable, res.StatusCode)
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s", errors.ErrProviderRejected, string(raw))
	}
	return raw, nil
}
