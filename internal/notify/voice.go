package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbourn/agrisense-backend/internal/config"
	"github.com/tbourn/agrisense-backend/internal/domain"
)

// VoiceResult is what gets stored on the alert record after a call attempt.
type VoiceResult struct {
	Success  bool           `json:"success"`
	CallID   string         `json:"callId,omitempty"`
	Status   string         `json:"status,omitempty"`
	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// AsMap flattens the result for the alert's voice_call_response column.
func (r VoiceResult) AsMap() map[string]any {
	m := map[string]any{"success": r.Success}
	if r.CallID != "" {
		m["callId"] = r.CallID
	}
	if r.Status != "" {
		m["status"] = r.Status
	}
	if r.Response != nil {
		m["response"] = r.Response
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// VoiceCaller places an outbound alert call.
type VoiceCaller interface {
	Call(ctx context.Context, fc domain.FarmContext, to, message string, alertType domain.AlertType) (VoiceResult, error)
}

// RetellClient places calls through the Retell AI phone-call API.
type RetellClient struct {
	BaseURL    string
	APIKey     string
	AgentID    string
	FromNumber string
	HTTP       *http.Client
}

// NewRetellClient builds a client with a traced transport.
func NewRetellClient(cfg config.VoiceConfig, timeout time.Duration) *RetellClient {
	return &RetellClient{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:     cfg.APIKey,
		AgentID:    cfg.AgentID,
		FromNumber: cfg.FromNumber,
		HTTP:       &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

type createCallRequest struct {
	FromNumber      string            `json:"from_number"`
	ToNumber        string            `json:"to_number"`
	OverrideAgentID string            `json:"override_agent_id,omitempty"`
	DynamicVars     map[string]string `json:"retell_llm_dynamic_variables"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// dynamicVars exposes the farm context to the voice agent's prompt.
func dynamicVars(fc domain.FarmContext, message string, alertType domain.AlertType) map[string]string {
	f := func(v float64) string { return fmt.Sprintf("%.1f", v) }
	land := "Unknown"
	if fc.Farmer.LandSize != nil {
		land = f(*fc.Farmer.LandSize)
	}
	return map[string]string{
		"farmer_name":      fc.Farmer.Name,
		"location":         fc.Farmer.Location,
		"land_size":        land,
		"crop_type":        fc.Crop.Type,
		"soil_moisture":    f(fc.Sensors.SoilMoisture),
		"soil_ph":          f(fc.Sensors.SoilPH),
		"soil_temperature": f(fc.Sensors.SoilTemperature),
		"humidity":         f(fc.Sensors.Humidity),
		"nitrogen":         f(fc.Sensors.Nutrients.Nitrogen),
		"phosphorus":       f(fc.Sensors.Nutrients.Phosphorus),
		"potassium":        f(fc.Sensors.Nutrients.Potassium),
		"weather_temp":     f(fc.Weather.Temperature),
		"weather_humidity": f(fc.Weather.Humidity),
		"rainfall":         f(fc.Weather.Rainfall),
		"alert_type":       string(alertType),
		"alert_message":    message,
	}
}

// Call dials to (8801… form) and hands the agent the alert context.
func (c *RetellClient) Call(ctx context.Context, fc domain.FarmContext, to, message string, alertType domain.AlertType) (VoiceResult, error) {
	if c.APIKey == "" || c.FromNumber == "" {
		return VoiceResult{Error: ErrNotConfigured.Error()}, ErrNotConfigured
	}
	payload := createCallRequest{
		FromNumber:      c.FromNumber,
		ToNumber:        "+" + strings.TrimPrefix(to, "+"),
		OverrideAgentID: c.AgentID,
		DynamicVars:     dynamicVars(fc, message, alertType),
		Metadata: map[string]string{
			"user_id":    fc.Farmer.ID,
			"device_id":  fc.Device.ID,
			"alert_type": string(alertType),
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return VoiceResult{Error: err.Error()}, errors.Wrap(err, "encode call request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/create-phone-call", bytes.NewReader(b))
	if err != nil {
		return VoiceResult{Error: err.Error()}, errors.Wrap(err, "build call request")
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return VoiceResult{Error: err.Error()}, errors.Wrap(err, "create phone call")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		body = map[string]any{"raw": string(raw)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if m, ok := body["message"].(string); ok && m != "" {
			msg = m
		}
		return VoiceResult{Status: "failed", Response: body, Error: msg}, errors.Wrapf(ErrRejected, "retell: %s", msg)
	}

	id, _ := body["call_id"].(string)
	status, _ := body["call_status"].(string)
	if status == "" {
		status = "registered"
	}
	return VoiceResult{Success: true, CallID: id, Status: status, Response: body}, nil
}
