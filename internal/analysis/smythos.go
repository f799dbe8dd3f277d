package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/agrisense-backend/internal/config"
	"github.com/tbourn/agrisense-backend/internal/domain"
)

// DefaultSmythosTimeout bounds the agent call.
const DefaultSmythosTimeout = 20 * time.Second

// Smythos forwards analysis to an external agent and delegates chat.
type Smythos struct {
	URL         string
	CallbackURL string
	HTTP        *http.Client
	Chatter     Analyzer
	Now         func() time.Time
}

// NewSmythos builds the provider; chat is answered by chatter.
func NewSmythos(cfg config.AIConfig, chatter Analyzer) *Smythos {
	timeout := cfg.SmythosTimeout
	if timeout <= 0 {
		timeout = DefaultSmythosTimeout
	}
	return &Smythos{
		URL:         cfg.SmythosURL,
		CallbackURL: cfg.AnalysisCallbackURL,
		HTTP:        &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Chatter:     chatter,
		Now:         time.Now,
	}
}

// Name implements Analyzer.
func (s *Smythos) Name() string { return ProviderSmythos }

// flexBool accepts true, "true", "yes", 1 and friends. set records presence.
type flexBool struct {
	val bool
	set bool
}

func (b *flexBool) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		b.val = t
	case float64:
		b.val = t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if s == "yes" || s == "y" {
			b.val = true
		} else if p, err := strconv.ParseBool(s); err == nil {
			b.val = p
		} else {
			b.val = s != "" && s != "no" && s != "n"
		}
	default:
		return errors.Errorf("actionRequired: unsupported type %T", v)
	}
	b.set = true
	return nil
}

// smythosOutput is the canonical shape both response variants reduce to.
type smythosOutput struct {
	Analysis       *string  `json:"analysis"`
	ActionRequired flexBool `json:"actionRequired"`
	Message        *string  `json:"message"`
}

type smythosShape int

const (
	shapeFlat   smythosShape = iota + 1 // {analysis, actionRequired, message}
	shapeNested                         // {id, name, result:{Output:{…}}}
)

type smythosEnvelope struct {
	smythosOutput
	Result *struct {
		Output *smythosOutput `json:"Output"`
	} `json:"result"`
}

// normalizeSmythos resolves which variant raw is and returns its output.
func normalizeSmythos(raw []byte) (smythosOutput, smythosShape, error) {
	var env smythosEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return smythosOutput{}, 0, errors.Wrapf(ErrUpstream, "smythos: decode: %v", err)
	}
	out, shape := env.smythosOutput, shapeFlat
	if env.Result != nil && env.Result.Output != nil {
		out, shape = *env.Result.Output, shapeNested
	}
	if out.Analysis == nil || !out.ActionRequired.set {
		return smythosOutput{}, shape, errors.Wrap(ErrUpstream, "smythos: response missing analysis/actionRequired")
	}
	return out, shape, nil
}

type smythosRequest struct {
	FarmerData domain.FarmContext `json:"farmerData"`
	UserID     *string            `json:"userId"`
}

// Analyze implements Analyzer.
func (s *Smythos) Analyze(ctx context.Context, fc domain.FarmContext, userID string) (*domain.AnalysisResult, error) {
	ctx, span := otel.Tracer("services/Analysis").Start(ctx, "Smythos.Analyze",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if s.URL == "" {
		return nil, errors.Wrap(ErrUpstream, "smythos: agent url not configured")
	}
	reqBody := smythosRequest{FarmerData: fc}
	if userID != "" {
		reqBody.UserID = &userID
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "smythos: encode")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "smythos: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-ai-provider", ProviderSmythos)
	req.Header.Set("x-webhook-callback", s.CallbackURL)

	resp, err := s.HTTP.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(ErrUpstream, "smythos: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(ErrUpstream, "smythos: read: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrapf(ErrUpstream, "smythos: status %d", resp.StatusCode)
	}

	out, shape, err := normalizeSmythos(raw)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("smythos.shape", int(shape)))

	res := &domain.AnalysisResult{
		Analysis:       *out.Analysis,
		ActionRequired: out.ActionRequired.val,
		Timestamp:      s.Now().UTC(),
		Provider:       ProviderSmythos,
		Model:          "smythos-agent",
	}
	if out.Message != nil {
		res.Message = strings.TrimSpace(*out.Message)
	}
	return res, nil
}

// Chat implements Analyzer by delegating to the chat provider.
func (s *Smythos) Chat(ctx context.Context, fc domain.FarmContext, prices []domain.MarketPrice, message string) (string, error) {
	if s.Chatter == nil {
		return FallbackReply(fc), nil
	}
	return s.Chatter.Chat(ctx, fc, prices, message)
}

// ValidAnalysisCallback reports whether raw is an analysis in either Smythos
// shape.
func ValidAnalysisCallback(raw []byte) bool {
	_, _, err := normalizeSmythos(raw)
	return err == nil
}

// ChatCallbackText extracts the reply text of a chatbot callback, flat
// {response} or nested {result:{Output:{response}}}.
func ChatCallbackText(raw []byte) (string, bool) {
	var env struct {
		Response *string `json:"response"`
		Result   *struct {
			Output *struct {
				Response *string `json:"response"`
			} `json:"Output"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", false
	}
	if env.Result != nil && env.Result.Output != nil && env.Result.Output.Response != nil {
		return *env.Result.Output.Response, true
	}
	if env.Response != nil {
		return *env.Response, true
	}
	return "", false
}
