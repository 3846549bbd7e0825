package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"broadcast-service/pkg/phone"
)

// SendResult carries the provider's acknowledgement for one message.
type SendResult struct {
	ProviderID string
}

// Transport sends one message to one address. Implementations must be safe
// for concurrent use; the broadcast fan-out calls Send from a worker pool.
type Transport interface {
	Send(ctx context.Context, recipient, body string) (*SendResult, error)
}

// Client talks to the SMS provider's REST API.
type Client struct {
	baseURL  string
	apiKey   string
	senderID string
	userID   string
	password string
	client   *http.Client
	logger   *zap.Logger
}

func NewClient(baseURL, apiKey, senderID, userID, password string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		senderID: senderID,
		userID:   userID,
		password: password,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

type providerResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason"`
}

func (c *Client) Send(ctx context.Context, recipient, body string) (*SendResult, error) {
	start := time.Now()

	form := url.Values{}
	form.Set("userid", c.userID)
	form.Set("password", c.password)
	form.Set("senderid", c.senderID)
	form.Set("sendMethod", "quick")
	form.Set("msgType", "text")
	form.Set("msg", body)
	form.Set("mobile", recipient)
	form.Set("duplicatecheck", "true")
	form.Set("output", "json")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.apiKey != "" {
		httpReq.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("sms send http error",
			zap.String("recipient", phone.Mask(recipient)),
			zap.Error(err))
		return nil, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("sms send failed",
			zap.String("recipient", phone.Mask(recipient)),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", duration))
		return nil, fmt.Errorf("sms api error: %s", string(raw))
	}

	var pr providerResponse
	if err := json.Unmarshal(raw, &pr); err == nil && strings.EqualFold(pr.Status, "error") {
		return nil, fmt.Errorf("sms api rejected message: %s", pr.Reason)
	}

	c.logger.Debug("sms sent",
		zap.String("recipient", phone.Mask(recipient)),
		zap.String("provider_id", pr.TransactionID),
		zap.Duration("duration", duration))

	return &SendResult{ProviderID: pr.TransactionID}, nil
}
