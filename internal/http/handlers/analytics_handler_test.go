package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/agrisense-backend/internal/analysis"
	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/http/middleware"
	"github.com/tbourn/agrisense-backend/internal/services"
)

func analyticsEngine(svc fakeAnalytics) *gin.Engine {
	h := New(Deps{Analytics: svc})
	r := newEngine("u1")
	r.GET("/analytics/analyze", h.GetAnalysis)
	r.POST("/analytics/analyze", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil), h.PostAnalysis)
	r.POST("/analytics/chat", h.Chat)
	r.GET("/analytics/alerts", h.ListAlerts)
	r.PATCH("/analytics/alerts/:id/read", h.MarkAlertRead)
	return r
}

func TestGetAnalysis_WithAlert(t *testing.T) {
	ts := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
	svc := fakeAnalytics{analyze: func(_ context.Context, uid string) (*services.AnalyzeOutcome, error) {
		require.Equal(t, "u1", uid)
		return &services.AnalyzeOutcome{
			Analysis: &domain.AnalysisResult{ActionRequired: true, Message: "সেচ দিন"},
			Alert: &services.DispatchOutcome{
				AlertType: domain.AlertCriticalDrought,
				Alert:     &domain.FarmAlert{ID: "a1", AlertType: domain.AlertCriticalDrought},
			},
			Timestamp: ts,
		}, nil
	}}

	w := do(t, analyticsEngine(svc), http.MethodGet, "/analytics/analyze", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[struct {
		Success bool            `json:"success"`
		Data    AnalyzeResponse `json:"data"`
	}](t, w)
	assert.True(t, body.Success)
	assert.True(t, body.Data.Analysis.ActionRequired)
	require.NotNil(t, body.Data.Alert)
	assert.Equal(t, "a1", body.Data.Alert.ID)
	assert.Equal(t, domain.AlertCriticalDrought, body.Data.AlertType)
	assert.True(t, body.Data.Timestamp.Equal(ts))
}

func TestGetAnalysis_NoAlertSerializesNull(t *testing.T) {
	svc := fakeAnalytics{analyze: func(context.Context, string) (*services.AnalyzeOutcome, error) {
		return &services.AnalyzeOutcome{Analysis: &domain.AnalysisResult{Message: "ঠিক আছে"}}, nil
	}}
	w := do(t, analyticsEngine(svc), http.MethodGet, "/analytics/analyze", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alert":null`)
}

func TestGetAnalysis_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"farmer", services.ErrFarmerNotFound, http.StatusNotFound, "User not found"},
		{"device", services.ErrNoActiveDevice, http.StatusNotFound, "No active device found for this user"},
		{"sensor", services.ErrNoSensorData, http.StatusNotFound, "No sensor data found for this device"},
		{"upstream", fmt.Errorf("openai: %w", analysis.ErrUpstream), http.StatusInternalServerError, "Failed to analyze farm data"},
		{"other", errors.New("db down"), http.StatusInternalServerError, "Failed to analyze farm data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := fakeAnalytics{analyze: func(context.Context, string) (*services.AnalyzeOutcome, error) {
				return nil, tc.err
			}}
			w := do(t, analyticsEngine(svc), http.MethodGet, "/analytics/analyze", "")
			require.Equal(t, tc.status, w.Code)
			body := decode[LegacyError](t, w)
			assert.False(t, body.Success)
			assert.Equal(t, tc.msg, body.Error)
			assert.NotContains(t, w.Body.String(), "db down")
		})
	}
}

func TestPostAnalysis_ReplayHeader(t *testing.T) {
	var gotKey string
	svc := fakeAnalytics{analyzeIdem: func(_ context.Context, _, key string) (*services.AnalyzeOutcome, error) {
		gotKey = key
		return &services.AnalyzeOutcome{Analysis: &domain.AnalysisResult{}, AnalysisID: "fa1", Replayed: true}, nil
	}}
	w := do(t, analyticsEngine(svc), http.MethodPost, "/analytics/analyze", "",
		middleware.HeaderIdempotencyKey, "7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab", gotKey)
	assert.Equal(t, "true", w.Header().Get("Idempotency-Replayed"))
}

func TestChat_BadJSONAndEmpty(t *testing.T) {
	svc := fakeAnalytics{chat: func(_ context.Context, _, msg string) (*services.ChatReply, error) {
		if msg == "   " {
			return nil, services.ErrEmptyMessage
		}
		return &services.ChatReply{Response: "ok"}, nil
	}}
	r := analyticsEngine(svc)

	w := do(t, r, http.MethodPost, "/analytics/chat", "{bad")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Message is required", decode[LegacyError](t, w).Error)

	w = do(t, r, http.MethodPost, "/analytics/chat", `{"message":"   "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Message is required", decode[LegacyError](t, w).Error)

	w = do(t, r, http.MethodPost, "/analytics/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"response":"ok"`)
}

func TestListAlerts_ETagAndPaging(t *testing.T) {
	latest := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var gotPage, gotSize int
	svc := fakeAnalytics{
		stats: func(context.Context, string) (int64, *time.Time, error) { return 3, &latest, nil },
		list: func(_ context.Context, _ string, page, size int) ([]domain.FarmAlert, int64, error) {
			gotPage, gotSize = page, size
			return []domain.FarmAlert{{ID: "a3"}}, 3, nil
		},
	}
	r := analyticsEngine(svc)

	w := do(t, r, http.MethodGet, "/analytics/alerts?page=2&page_size=500", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, gotPage)
	assert.Equal(t, maxAlertPageSize, gotSize)
	etag := w.Header().Get("ETag")
	assert.Equal(t, fmt.Sprintf(`W/"alerts:u1:3:%d"`, latest.UnixNano()), etag)

	body := decode[struct {
		Data ListAlertsResponse `json:"data"`
	}](t, w)
	assert.Len(t, body.Data.Alerts, 1)
	assert.EqualValues(t, 3, body.Data.Pagination.Total)

	w = do(t, r, http.MethodGet, "/analytics/alerts", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestMarkAlertRead(t *testing.T) {
	svc := fakeAnalytics{markRead: func(_ context.Context, _, id string) error {
		if id == "missing" {
			return services.ErrAlertNotFound
		}
		return nil
	}}
	r := analyticsEngine(svc)

	w := do(t, r, http.MethodPatch, "/analytics/alerts/a1/read", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_read":true`)

	w = do(t, r, http.MethodPatch, "/analytics/alerts/missing/read", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Alert not found", decode[LegacyError](t, w).Error)
}
