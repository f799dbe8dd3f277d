package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbourn/agrisense-backend/internal/config"
)

var (
	// ErrNotConfigured is returned when a channel has no credentials.
	ErrNotConfigured = errors.New("notification channel not configured")
	// ErrRejected is returned when the vendor answered but refused the request.
	ErrRejected = errors.New("notification rejected by provider")
)

// bulkSMSAccepted is the gateway's "SMS Submitted Successfully" code.
const bulkSMSAccepted = 202

// SMSResult is what gets stored on the alert record after an attempt.
type SMSResult struct {
	Success  bool           `json:"success"`
	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// AsMap flattens the result for the alert's sms_response column.
func (r SMSResult) AsMap() map[string]any {
	m := map[string]any{"success": r.Success}
	if r.Response != nil {
		m["response"] = r.Response
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// SMSSender sends one text message. A nil error means the gateway accepted it.
type SMSSender interface {
	Send(ctx context.Context, to, message string) (SMSResult, error)
}

// BulkSMSClient sends through the BulkSMSBD HTTP API.
type BulkSMSClient struct {
	APIURL   string
	APIKey   string
	SenderID string
	HTTP     *http.Client
}

// NewBulkSMSClient builds a client with a traced transport.
func NewBulkSMSClient(cfg config.SMSConfig, timeout time.Duration) *BulkSMSClient {
	return &BulkSMSClient{
		APIURL:   cfg.APIURL,
		APIKey:   cfg.APIKey,
		SenderID: cfg.SenderID,
		HTTP:     &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Send submits message to the already formatted number to.
func (c *BulkSMSClient) Send(ctx context.Context, to, message string) (SMSResult, error) {
	if c.APIKey == "" || c.APIURL == "" {
		return SMSResult{Error: ErrNotConfigured.Error()}, ErrNotConfigured
	}
	form := url.Values{}
	form.Set("api_key", c.APIKey)
	form.Set("type", "text")
	form.Set("number", to)
	form.Set("senderid", c.SenderID)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, strings.NewReader(form.Encode()))
	if err != nil {
		return SMSResult{Error: err.Error()}, errors.Wrap(err, "build sms request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return SMSResult{Error: err.Error()}, errors.Wrap(err, "send sms")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		body = map[string]any{"raw": string(raw)}
	}
	body["http_status"] = resp.StatusCode

	code, _ := body["response_code"].(float64)
	if resp.StatusCode != http.StatusOK || int(code) != bulkSMSAccepted {
		msg, _ := body["error_message"].(string)
		if msg == "" {
			msg = "unexpected gateway response"
		}
		return SMSResult{Response: body, Error: msg}, errors.Wrapf(ErrRejected, "sms gateway: %s", msg)
	}
	return SMSResult{Success: true, Response: body}, nil
}
