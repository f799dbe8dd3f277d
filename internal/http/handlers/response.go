// Package handlers provides HTTP handler implementations for the public API.
//
// Two error shapes coexist. Routes the dashboard and voice agent already
// consume answer with LegacyError ({success:false, error, message}); the
// operator routes and router-level failures use ErrorResponse with a stable
// code. classify maps service errors to a status for both.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/agrisense-backend/internal/analysis"
	"github.com/tbourn/agrisense-backend/internal/http/middleware"
	"github.com/tbourn/agrisense-backend/internal/notify"
	"github.com/tbourn/agrisense-backend/internal/services"
	"github.com/tbourn/agrisense-backend/internal/weather"
)

// ErrorResponse is the coded error envelope.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"resource not found"`
}

// LegacyError is the error body of the farmer-facing routes.
type LegacyError struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error" example:"No active device found for this user"`
	Message string `json:"message,omitempty"`
}

// Envelope is the success body of the farmer-facing routes.
type Envelope struct {
	Success bool `json:"success" example:"true"`
	Data    any  `json:"data"`
}

// fail aborts with an ErrorResponse. 5xx are logged with the request logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for router-level handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failLegacy aborts with a LegacyError. For 5xx the cause is logged and
// detail, when set, is returned as message.
func failLegacy(c *gin.Context, status int, msg string, err error) {
	body := LegacyError{Error: msg}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Int("status", status).Msg(msg)
		if err != nil {
			body.Message = publicDetail(err)
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// failService classifies err and answers in the legacy shape. fallback is
// the 500 headline.
func failService(c *gin.Context, err error, fallback string) {
	status, _ := classify(err)
	if status < http.StatusInternalServerError {
		failLegacy(c, status, headline(err), nil)
		return
	}
	failLegacy(c, status, fallback, err)
}

// failCoded is failService for ErrorResponse routes.
func failCoded(c *gin.Context, err error) {
	status, code := classify(err)
	msg := headline(err)
	if status >= http.StatusInternalServerError && code == ErrCodeInternal {
		middleware.LoggerFrom(c).Error().Err(err).Msg("unclassified error")
		msg = "internal server error"
	}
	fail(c, status, code, msg)
}

// classify maps service and adapter errors to an HTTP status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrFarmerNotFound),
		errors.Is(err, services.ErrNoActiveDevice),
		errors.Is(err, services.ErrNoSensorData),
		errors.Is(err, services.ErrDeviceNotFound),
		errors.Is(err, services.ErrAlertNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrInvalidReading),
		errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, notify.ErrNotConfigured):
		return http.StatusServiceUnavailable, ErrCodeNotConfigured
	case errors.Is(err, analysis.ErrUpstream),
		errors.Is(err, analysis.ErrParse),
		errors.Is(err, weather.ErrUpstream),
		errors.Is(err, notify.ErrRejected):
		return http.StatusInternalServerError, ErrCodeUpstream
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// headline is the client-facing text for classified errors. The farmer
// routes keep the wording the dashboard matches on.
func headline(err error) string {
	switch {
	case errors.Is(err, services.ErrFarmerNotFound):
		return "User not found"
	case errors.Is(err, services.ErrNoActiveDevice):
		return "No active device found for this user"
	case errors.Is(err, services.ErrNoSensorData):
		return "No sensor data found for this device"
	case errors.Is(err, services.ErrDeviceNotFound):
		return "Device not found or not owned by user"
	case errors.Is(err, services.ErrAlertNotFound):
		return "Alert not found"
	case errors.Is(err, services.ErrEmptyMessage):
		return "Message is required"
	}
	return err.Error()
}

// publicDetail exposes upstream sentinels by name and hides everything else.
func publicDetail(err error) string {
	for _, s := range []error{analysis.ErrUpstream, analysis.ErrParse, weather.ErrUpstream, notify.ErrRejected, notify.ErrNotConfigured} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal server error"
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// okData writes {success:true, data}.
func okData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}
