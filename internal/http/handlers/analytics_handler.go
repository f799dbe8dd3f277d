// Analytics HTTP handlers.
//
// This file exposes the farmer-facing analysis endpoints:
//   - GET/POST /analytics/analyze          (analyze, alert on action required)
//   - POST     /analytics/chat             (farm-aware chat)
//   - GET      /analytics/alerts           (paginated inbox, ETag support)
//   - PATCH    /analytics/alerts/{id}/read (mark read)
//
// Errors answer in the legacy {success:false, error, message} shape.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/http/middleware"
	"github.com/tbourn/agrisense-backend/internal/services"
	"github.com/tbourn/agrisense-backend/internal/utils"
)

const (
	defaultAlertPageSize = 20
	maxAlertPageSize     = 100
)

//
// DTOs
//

// AnalyzeResponse is the data of a completed analysis.
type AnalyzeResponse struct {
	Analysis *domain.AnalysisResult `json:"analysis"`
	// Alert is the stored alert record, or null when none was raised or the
	// insert failed.
	Alert *domain.FarmAlert `json:"alert"`
	// AlertType is set whenever the result required action.
	AlertType  domain.AlertType `json:"alertType,omitempty" example:"critical_drought"`
	AnalysisID string           `json:"analysisId,omitempty"`
	Replayed   bool             `json:"replayed,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ChatRequest is the chat payload.
type ChatRequest struct {
	Message string `json:"message" example:"আমার ধানের জমিতে কখন সেচ দেব?"`
}

// ListAlertsResponse wraps a page of alerts.
type ListAlertsResponse struct {
	Alerts     []domain.FarmAlert `json:"alerts"`
	Pagination utils.Page         `json:"pagination"`
}

func analyzeResponse(out *services.AnalyzeOutcome) AnalyzeResponse {
	resp := AnalyzeResponse{
		Analysis:   out.Analysis,
		AnalysisID: out.AnalysisID,
		Replayed:   out.Replayed,
		Timestamp:  out.Timestamp,
	}
	if out.Alert != nil {
		resp.Alert = out.Alert.Alert
		resp.AlertType = out.Alert.AlertType
	}
	return resp
}

//
// Handlers
//

// GetAnalysis godoc
// @ID          analyzeFarm
// @Summary     Analyze the caller's farm
// @Description Aggregates farmer, sensor and weather data, asks the AI provider for an assessment and, when action is required, raises an alert (SMS, then voice call on SMS success).
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.Envelope{data=handlers.AnalyzeResponse}
// @Failure     401  {object}  handlers.LegacyError
// @Failure     404  {object}  handlers.LegacyError  "Farmer, device or sensor data missing"
// @Failure     500  {object}  handlers.LegacyError
// @Router      /analytics/analyze [get]
func (h *Handlers) GetAnalysis(c *gin.Context) {
	out, err := h.analytics.Analyze(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, "Failed to analyze farm data")
		return
	}
	okData(c, analyzeResponse(out))
}

// PostAnalysis godoc
// @ID          analyzeFarmIdempotent
// @Summary     Analyze the caller's farm (retry safe)
// @Description Same as GET but logs the run and honours Idempotency-Key: a repeated key within the TTL returns the logged analysis without alerting again and sets Idempotency-Replayed.
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Success     200  {object}  handlers.Envelope{data=handlers.AnalyzeResponse}
// @Header      200  {string}  Idempotency-Replayed  "true when served from a previous run"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid Idempotency-Key"
// @Failure     404  {object}  handlers.LegacyError
// @Failure     500  {object}  handlers.LegacyError
// @Router      /analytics/analyze [post]
func (h *Handlers) PostAnalysis(c *gin.Context) {
	key, _ := middleware.GetIdempotencyKey(c)
	out, err := h.analytics.AnalyzeIdempotent(c.Request.Context(), userID(c), key)
	if err != nil {
		failService(c, err, "Failed to analyze farm data")
		return
	}
	if out.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	okData(c, analyzeResponse(out))
}

// Chat godoc
// @ID          chat
// @Summary     Ask the farm assistant
// @Description Answers a free-form question using the caller's farm context and recent market prices, in the language of the question.
// @Tags        Analytics
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.ChatRequest  true  "Message"
// @Success     200  {object}  handlers.Envelope{data=services.ChatReply}
// @Failure     400  {object}  handlers.LegacyError  "Message is required"
// @Failure     404  {object}  handlers.LegacyError
// @Failure     500  {object}  handlers.LegacyError
// @Router      /analytics/chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failLegacy(c, http.StatusBadRequest, "Message is required", nil)
		return
	}
	reply, err := h.analytics.Chat(c.Request.Context(), userID(c), req.Message)
	if err != nil {
		failService(c, err, "Failed to process chatbot request")
		return
	}
	okData(c, reply)
}

// ListAlerts godoc
// @ID          listAlerts
// @Summary     List the caller's alerts (paginated)
// @Description Newest first. Supports a weak ETag via If-None-Match and may return 304.
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.Envelope{data=handlers.ListAlertsResponse}
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.LegacyError
// @Router      /analytics/alerts [get]
func (h *Handlers) ListAlerts(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	p := utils.NewPage(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), defaultAlertPageSize),
		defaultAlertPageSize, maxAlertPageSize,
	)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.analytics.AlertsStats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"alerts:%s:%d:%d"`, uid, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.analytics.ListAlerts(ctx, uid, p.Page, p.Limit)
	if err != nil {
		failService(c, err, "Failed to fetch alerts")
		return
	}
	okData(c, ListAlertsResponse{Alerts: items, Pagination: p.WithTotal(total)})
}

// MarkAlertRead godoc
// @ID          markAlertRead
// @Summary     Mark an alert as read
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Alert ID"  format(uuid)
// @Success     200  {object}  handlers.Envelope
// @Failure     404  {object}  handlers.LegacyError
// @Router      /analytics/alerts/{id}/read [patch]
func (h *Handlers) MarkAlertRead(c *gin.Context) {
	id := c.Param("id")
	if err := h.analytics.MarkAlertRead(c.Request.Context(), userID(c), id); err != nil {
		failService(c, err, "Failed to update alert")
		return
	}
	okData(c, gin.H{"id": id, "is_read": true})
}
