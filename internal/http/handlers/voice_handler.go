// Voice agent HTTP handlers.
//
// The voice provider calls these during and around a phone call:
//   - POST /voice/retell-webhook       (conversation turn)
//   - POST /voice/get-farmer-data      (function call, caller looked up by phone)
//   - POST /voice/get-farmer-data-jwt  (same bundle for the token's farmer)
//   - POST /voice/test-call            (dial a number with mock critical data)
//
// The function-call routes answer 200 with success:false for a missing phone
// or unknown farmer, because the agent treats any non-2xx as a dead line.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/agrisense-backend/internal/http/middleware"
	"github.com/tbourn/agrisense-backend/internal/notify"
	"github.com/tbourn/agrisense-backend/internal/services"
)

const webhookApology = "I'm experiencing technical difficulties, but I'm here to help with your farming questions."

// phoneKeys are the body fields the agent may put the caller's number in.
var phoneKeys = []string{"phone_number", "phoneNumber", "number", "from_number"}

// FarmerDataResponse is {success, farmer, sensors, weather, forecast}.
type FarmerDataResponse struct {
	Success bool `json:"success"`
	*services.FarmBundle
}

// FarmerDataMiss is the 200 answer when no bundle can be built.
type FarmerDataMiss struct {
	Success bool   `json:"success" example:"false"`
	Message string `json:"message" example:"Farmer not found in database"`
}

// TestCallRequest carries the number to dial.
type TestCallRequest struct {
	TestNumber string `json:"testNumber" binding:"required,bdmobile" example:"01712345678"`
}

// TestCallResponse reports the placed call.
type TestCallResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	CallResult notify.VoiceResult `json:"callResult"`
}

// RetellWebhook godoc
// @ID          voiceWebhook
// @Summary     Voice conversation turn
// @Description Answers the caller's latest utterance from their farm context. Errors still ask the agent to continue the conversation.
// @Tags        Voice
// @Accept      json
// @Produce     json
// @Param       body  body  services.WebhookRequest  true  "Webhook payload"
// @Success     200  {object}  services.WebhookReply
// @Failure     500  {object}  services.WebhookReply
// @Router      /voice/retell-webhook [post]
func (h *Handlers) RetellWebhook(c *gin.Context) {
	var req services.WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, services.WebhookReply{Response: webhookApology, ContinueConversation: true})
		return
	}
	reply, err := h.voice.Webhook(c.Request.Context(), req)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Str("call_id", req.Call.CallID).Msg("voice webhook failed")
		c.JSON(http.StatusInternalServerError, services.WebhookReply{Response: webhookApology, ContinueConversation: true})
		return
	}
	ok(c, http.StatusOK, reply)
}

// GetFarmerData godoc
// @ID          voiceFarmerData
// @Summary     Farm bundle by caller phone
// @Description Looks the farmer up by any stored spelling of the number in phone_number, phoneNumber, number or from_number.
// @Tags        Voice
// @Accept      json
// @Produce     json
// @Param       body  body  object  true  "Body carrying the phone number"
// @Success     200  {object}  handlers.FarmerDataResponse
// @Success     200  {object}  handlers.FarmerDataMiss  "No phone or unknown farmer"
// @Failure     500  {object}  handlers.FarmerDataMiss
// @Router      /voice/get-farmer-data [post]
func (h *Handlers) GetFarmerData(c *gin.Context) {
	var body map[string]any
	_ = c.ShouldBindJSON(&body)

	phone := phoneFrom(body)
	if phone == "" {
		ok(c, http.StatusOK, FarmerDataMiss{Message: "No phone number provided"})
		return
	}
	b, err := h.voice.FarmerData(c.Request.Context(), phone)
	h.writeBundle(c, b, err)
}

// GetFarmerDataJWT godoc
// @ID          voiceFarmerDataJWT
// @Summary     Farm bundle for the authenticated farmer
// @Tags        Voice
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.FarmerDataResponse
// @Failure     401  {object}  handlers.FarmerDataMiss
// @Failure     500  {object}  handlers.FarmerDataMiss
// @Router      /voice/get-farmer-data-jwt [post]
func (h *Handlers) GetFarmerDataJWT(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, FarmerDataMiss{Message: "Unauthorized"})
		return
	}
	b, err := h.voice.FarmerDataByID(c.Request.Context(), uid)
	h.writeBundle(c, b, err)
}

func (h *Handlers) writeBundle(c *gin.Context, b *services.FarmBundle, err error) {
	switch {
	case err == nil:
		ok(c, http.StatusOK, FarmerDataResponse{Success: true, FarmBundle: b})
	case errors.Is(err, services.ErrFarmerNotFound):
		ok(c, http.StatusOK, FarmerDataMiss{Message: "Farmer not found in database"})
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("farm bundle failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, FarmerDataMiss{Message: "Error retrieving combined farm data"})
	}
}

// TestCall godoc
// @ID          voiceTestCall
// @Summary     Place a test alert call
// @Description Dials testNumber with mock critical drought data and the standard irrigation message.
// @Tags        Voice
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.TestCallRequest  true  "Number to dial"
// @Success     200  {object}  handlers.TestCallResponse
// @Failure     400  {object}  handlers.LegacyError  "Missing or invalid test number"
// @Failure     503  {object}  handlers.LegacyError  "Voice provider not configured"
// @Failure     500  {object}  handlers.LegacyError
// @Router      /voice/test-call [post]
func (h *Handlers) TestCall(c *gin.Context) {
	var req TestCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		msg := "Test number is required"
		if strings.TrimSpace(req.TestNumber) != "" {
			msg = "Invalid Bangladeshi mobile number"
		}
		failLegacy(c, http.StatusBadRequest, msg, nil)
		return
	}
	res, err := h.voice.TestCall(c.Request.Context(), userID(c), req.TestNumber)
	if err != nil {
		failService(c, err, "Test call failed")
		return
	}
	ok(c, http.StatusOK, TestCallResponse{Success: true, Message: "Test voice call initiated", CallResult: res})
}

func phoneFrom(body map[string]any) string {
	for _, k := range phoneKeys {
		if s, ok := body[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
