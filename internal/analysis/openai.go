package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/agrisense-backend/internal/config"
	"github.com/tbourn/agrisense-backend/internal/domain"
)

const (
	defaultAnalysisModel = "gpt-4.1"
	defaultChatModel     = "gpt-4o-mini"

	analysisMaxTokens = 1500
	chatMaxTokens     = 500
	temperature       = 0.7
)

// OpenAI analyses farms and answers chat through chat completions.
type OpenAI struct {
	client        *openai.Client
	AnalysisModel string
	ChatModel     string
	Now           func() time.Time
}

// NewOpenAI builds the provider. An empty key still yields a usable value;
// calls then fail with ErrUpstream and chat falls back.
func NewOpenAI(cfg config.AIConfig, timeout time.Duration) *OpenAI {
	oc := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}

	o := &OpenAI{
		client:        openai.NewClientWithConfig(oc),
		AnalysisModel: cfg.AnalysisModel,
		ChatModel:     cfg.ChatModel,
		Now:           time.Now,
	}
	if o.AnalysisModel == "" {
		o.AnalysisModel = defaultAnalysisModel
	}
	if o.ChatModel == "" {
		o.ChatModel = defaultChatModel
	}
	return o
}

// Name implements Analyzer.
func (o *OpenAI) Name() string { return ProviderOpenAI }

// rawAnalysis mirrors the JSON the model is told to return. Pointers tell a
// missing field apart from a zero value.
type rawAnalysis struct {
	Analysis       *string `json:"analysis"`
	ActionRequired *bool   `json:"actionRequired"`
	Message        *string `json:"message"`
}

// Analyze implements Analyzer.
func (o *OpenAI) Analyze(ctx context.Context, fc domain.FarmContext, userID string) (*domain.AnalysisResult, error) {
	ctx, span := otel.Tracer("services/Analysis").Start(ctx, "OpenAI.Analyze",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("model", o.AnalysisModel)))
	defer span.End()

	started := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.AnalysisModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: analysisPrompt(fc)},
		},
		Temperature: temperature,
		MaxTokens:   analysisMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(ErrUpstream, "openai: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(ErrUpstream, "openai: no choices")
	}

	content := resp.Choices[0].Message.Content
	res, err := parseAnalysis(content)
	if err != nil {
		log.Warn().Str("component", "analysis").Str("user_id", userID).Str("raw", content).Msg("unparseable analysis output")
		return nil, err
	}
	res.Timestamp = o.Now().UTC()
	res.Provider = ProviderOpenAI
	res.Model = resp.Model
	if res.Model == "" {
		res.Model = o.AnalysisModel
	}
	res.Usage = &domain.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	log.Info().Str("component", "analysis").
		Str("user_id", userID).
		Dur("elapsed", time.Since(started)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Bool("action_required", res.ActionRequired).
		Msg("analysis completed")
	return res, nil
}

// parseAnalysis decodes model output, tolerating a surrounding code fence.
func parseAnalysis(content string) (*domain.AnalysisResult, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, errors.Wrap(ErrParse, err.Error())
	}
	if raw.Analysis == nil || strings.TrimSpace(*raw.Analysis) == "" || raw.ActionRequired == nil {
		return nil, errors.Wrap(ErrParse, "missing analysis or actionRequired")
	}
	res := &domain.AnalysisResult{Analysis: *raw.Analysis, ActionRequired: *raw.ActionRequired}
	if raw.Message != nil {
		res.Message = strings.TrimSpace(*raw.Message)
	}
	return res, nil
}

// Chat implements Analyzer. Any provider failure returns FallbackReply.
func (o *OpenAI) Chat(ctx context.Context, fc domain.FarmContext, prices []domain.MarketPrice, message string) (string, error) {
	ctx, span := otel.Tracer("services/Analysis").Start(ctx, "OpenAI.Chat")
	defer span.End()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: chatSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: chatPrompt(fc, prices, message)},
		},
		Temperature: temperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		if err != nil {
			span.RecordError(err)
		}
		log.Warn().Err(err).Str("component", "analysis").Str("user_id", fc.Farmer.ID).Msg("chat model failed, using fallback reply")
		return FallbackReply(fc), nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
