// AI provider HTTP handlers.
//
// The Smythos agent posts asynchronous results back to the callback routes.
// Only the latest payload per kind is kept, for operators to inspect.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/agrisense-backend/internal/services"
)

// LastCallbacksResponse holds the latest payload of each kind, or null.
type LastCallbacksResponse struct {
	LastAnalysisCallback *services.ReceivedCallback `json:"lastAnalysisCallback"`
	LastChatbotCallback  *services.ReceivedCallback `json:"lastChatbotCallback"`
}

// Provider godoc
// @ID          aiProvider
// @Summary     Active analysis provider
// @Tags        AI
// @Produce     json
// @Success     200  {object}  services.ProviderInfo
// @Router      /ai/provider [get]
func (h *Handlers) Provider(c *gin.Context) {
	ok(c, http.StatusOK, h.ai.Provider())
}

// AnalysisCallback godoc
// @ID          aiAnalysisCallback
// @Summary     Smythos analysis callback
// @Description Stores the payload. Payloads that are not an analysis in either agent shape are rejected after storing.
// @Tags        AI
// @Accept      json
// @Produce     json
// @Success     200  {object}  map[string]bool
// @Failure     400  {object}  handlers.LegacyError
// @Router      /ai/callback/analysis [post]
func (h *Handlers) AnalysisCallback(c *gin.Context) {
	h.receive(c, services.CallbackAnalysis, "Invalid analysis callback payload")
}

// ChatbotCallback godoc
// @ID          aiChatbotCallback
// @Summary     Smythos chatbot callback
// @Tags        AI
// @Accept      json
// @Produce     json
// @Success     200  {object}  map[string]bool
// @Failure     400  {object}  handlers.LegacyError
// @Router      /ai/callback/chatbot [post]
func (h *Handlers) ChatbotCallback(c *gin.Context) {
	h.receive(c, services.CallbackChatbot, "Invalid chatbot callback payload")
}

func (h *Handlers) receive(c *gin.Context, kind, invalid string) {
	raw, err := c.GetRawData()
	if err != nil || !h.ai.Receive(kind, raw) {
		failLegacy(c, http.StatusBadRequest, invalid, nil)
		return
	}
	ok(c, http.StatusOK, gin.H{"success": true})
}

// LastCallbacks godoc
// @ID          aiLastCallbacks
// @Summary     Latest agent callbacks
// @Tags        AI
// @Produce     json
// @Param       X-Internal-Token  header  string  true  "Internal token"
// @Success     200  {object}  handlers.LastCallbacksResponse
// @Failure     403  {object}  handlers.LegacyError
// @Router      /ai/callbacks/last [get]
func (h *Handlers) LastCallbacks(c *gin.Context) {
	ok(c, http.StatusOK, LastCallbacksResponse{
		LastAnalysisCallback: h.ai.Last(services.CallbackAnalysis),
		LastChatbotCallback:  h.ai.Last(services.CallbackChatbot),
	})
}
