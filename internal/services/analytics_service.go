// Package services – AnalyticsService
//
// AnalyticsService runs the farm analysis pipeline (aggregate, analyze,
// dispatch) for on-demand requests and the daily sweep, answers farmer chat
// questions from the same farm context, and serves the alert inbox.
//
// Observability: public methods open spans under "services/AnalyticsService"
// and record analysis outcomes in the Prometheus counters.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/analysis"
	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/observability"
	"github.com/tbourn/agrisense-backend/internal/repo"
)

// ScopeAnalyze is the idempotency scope of POST /analytics/analyze.
const ScopeAnalyze = "analyze"

// chatPriceLimit bounds the market prices included in a chat prompt.
const chatPriceLimit = 20

// AnalyzeOutcome is the result of one on-demand analysis run.
type AnalyzeOutcome struct {
	Analysis   *domain.AnalysisResult
	Alert      *DispatchOutcome
	AnalysisID string
	Replayed   bool
	Timestamp  time.Time
}

// ChatReply is the answer to one farmer chat message.
type ChatReply struct {
	Response    string             `json:"response"`
	FarmContext domain.FarmContext `json:"farmContext"`
	Timestamp   time.Time          `json:"timestamp"`
}

// AnalyticsService coordinates aggregation, analysis and alert dispatch.
type AnalyticsService struct {
	DB         *gorm.DB
	Aggregator *Aggregator
	Analyzer   analysis.Analyzer
	Dispatcher *Dispatcher

	// IdempotencyTTL bounds how long an Idempotency-Key replays.
	IdempotencyTTL time.Duration
	Now            func() time.Time
}

func (s *AnalyticsService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Analyze builds the farm context for userID, analyzes it and dispatches an
// alert when the result calls for one.
func (s *AnalyticsService) Analyze(ctx context.Context, userID string) (*AnalyzeOutcome, error) {
	ctx, span := otel.Tracer("services/AnalyticsService").Start(ctx, "Analyze",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	fc, res, err := s.analyze(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &AnalyzeOutcome{Analysis: res, Timestamp: s.now()}
	out.Alert = s.Dispatcher.Dispatch(ctx, *fc, res, fc.Farmer.Mobile)
	return out, nil
}

// AnalyzeIdempotent is Analyze with retry safety. The run is logged as a
// FarmAnalysis; a repeated key within the TTL returns that log without
// analyzing or dispatching again. An empty key behaves like Analyze plus the
// log row.
func (s *AnalyticsService) AnalyzeIdempotent(ctx context.Context, userID, key string) (*AnalyzeOutcome, error) {
	ctx, span := otel.Tracer("services/AnalyticsService").Start(ctx, "AnalyzeIdempotent",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Bool("idempotency.key_present", key != ""),
		))
	defer span.End()

	key = strings.TrimSpace(key)
	if key != "" {
		if rec, err := repo.GetIdempotency(ctx, s.DB, userID, ScopeAnalyze, key, s.now()); err == nil {
			if prev, err := repo.GetAnalysis(ctx, s.DB, rec.ResourceID, userID); err == nil {
				span.SetAttributes(attribute.Bool("idempotency.replayed", true))
				return replayOutcome(prev), nil
			}
		}
	}

	fc, res, err := s.analyze(ctx, userID)
	if err != nil {
		return nil, err
	}
	row := analysisRow(fc, res)
	if err := repo.CreateAnalysis(ctx, s.DB, row); err != nil {
		return nil, fmt.Errorf("store analysis: %w", err)
	}
	if key != "" {
		if _, err := repo.CreateIdempotency(ctx, s.DB, userID, ScopeAnalyze, key, row.ID, http.StatusOK, s.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			loggerFor(ctx, "analytics").Warn().Err(err).Msg("store idempotency key failed")
		}
	}

	out := &AnalyzeOutcome{Analysis: res, AnalysisID: row.ID, Timestamp: s.now()}
	out.Alert = s.Dispatcher.Dispatch(ctx, *fc, res, fc.Farmer.Mobile)
	return out, nil
}

// RunDaily is one farmer's step of the daily sweep: build, analyze, log the
// analysis, dispatch. The log row is written whether or not an alert fires.
func (s *AnalyticsService) RunDaily(ctx context.Context, f *domain.Farmer) (*DispatchOutcome, error) {
	ctx, span := otel.Tracer("services/AnalyticsService").Start(ctx, "RunDaily",
		trace.WithAttributes(attribute.String("user.id", f.ID)))
	defer span.End()

	fc, res, err := s.analyze(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if err := repo.CreateAnalysis(ctx, s.DB, analysisRow(fc, res)); err != nil {
		loggerFor(ctx, "analytics").Error().Err(err).Str("user_id", f.ID).Msg("store analysis failed")
	}
	mobile := f.MobileNumber
	if mobile == "" {
		mobile = fc.Farmer.Mobile
	}
	return s.Dispatcher.Dispatch(ctx, *fc, res, mobile), nil
}

func (s *AnalyticsService) analyze(ctx context.Context, userID string) (*domain.FarmContext, *domain.AnalysisResult, error) {
	fc, err := s.Aggregator.Build(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	res, err := s.Analyzer.Analyze(ctx, *fc, userID)
	observability.ObserveAnalysis(s.Analyzer.Name(), err)
	if err != nil {
		return nil, nil, err
	}
	if res.Provider == "" {
		res.Provider = s.Analyzer.Name()
	}
	return fc, res, nil
}

func analysisRow(fc *domain.FarmContext, res *domain.AnalysisResult) *domain.FarmAnalysis {
	return &domain.FarmAnalysis{
		UserID:         fc.Farmer.ID,
		DeviceID:       fc.Device.ID,
		AnalysisData:   *fc,
		AIAnalysis:     res.Analysis,
		ActionRequired: res.ActionRequired,
		SMSMessage:     res.Message,
		Provider:       res.Provider,
	}
}

func replayOutcome(a *domain.FarmAnalysis) *AnalyzeOutcome {
	return &AnalyzeOutcome{
		Analysis: &domain.AnalysisResult{
			Analysis:       a.AIAnalysis,
			ActionRequired: a.ActionRequired,
			Message:        a.SMSMessage,
			Timestamp:      a.CreatedAt,
			Provider:       a.Provider,
		},
		AnalysisID: a.ID,
		Replayed:   true,
		Timestamp:  a.CreatedAt,
	}
}

// Chat answers message for userID. A blank message fails before any data
// access. Missing device or sensor data is not an error here.
func (s *AnalyticsService) Chat(ctx context.Context, userID, message string) (*ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	ctx, span := otel.Tracer("services/AnalyticsService").Start(ctx, "Chat",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	fc, err := s.Aggregator.BuildLenient(ctx, userID)
	if err != nil {
		return nil, err
	}
	prices, err := repo.ListLatestMarketPrices(ctx, s.DB, chatPriceLimit)
	if err != nil {
		loggerFor(ctx, "analytics").Warn().Err(err).Msg("load market prices failed")
		prices = nil
	}
	reply, err := s.Analyzer.Chat(ctx, *fc, prices, message)
	if err != nil {
		return nil, err
	}
	return &ChatReply{Response: reply, FarmContext: *fc, Timestamp: s.now()}, nil
}

// ListAlerts returns a page of userID's alerts, newest first.
func (s *AnalyticsService) ListAlerts(ctx context.Context, userID string, page, pageSize int) ([]domain.FarmAlert, int64, error) {
	ctx, span := otel.Tracer("services/AnalyticsService").Start(ctx, "ListAlerts",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountAlerts(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.FarmAlert{}, 0, nil
	}
	items, err := repo.ListAlertsPage(ctx, s.DB, userID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// AlertsStats exposes the count and last update of userID's alerts for
// conditional responses.
func (s *AnalyticsService) AlertsStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.AlertsStats(ctx, s.DB, userID)
}

// MarkAlertRead flags one of userID's alerts as read.
func (s *AnalyticsService) MarkAlertRead(ctx context.Context, userID, alertID string) error {
	ctx, span := otel.Tracer("services/AnalyticsService").Start(ctx, "MarkAlertRead",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("alert.id", alertID)))
	defer span.End()

	if err := repo.MarkAlertRead(ctx, s.DB, alertID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAlertNotFound
		}
		return err
	}
	return nil
}
