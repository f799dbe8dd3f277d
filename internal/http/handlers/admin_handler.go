// Admin HTTP handlers (JWT + admin role).
//
//   - GET  /admin/farmers              (filtered, paginated farmer directory)
//   - GET  /admin/market-prices        (latest price observations)
//   - POST /admin/market-prices        (record a price)
//   - POST /admin/scheduler/daily      (start the daily sweep now)
//   - POST /admin/scheduler/moisture   (start the moisture sweep now)
//   - GET  /admin/scheduler/status     (sweep state)
//
// The farmer listing keeps the dashboard's {success, data} shape. The market
// price and scheduler routes answer coded errors.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/repo"
	"github.com/tbourn/agrisense-backend/internal/scheduler"
	"github.com/tbourn/agrisense-backend/internal/services"
	"github.com/tbourn/agrisense-backend/internal/utils"
)

const defaultFarmerPageSize = 12

// MarketPriceRequest records one price observation.
type MarketPriceRequest struct {
	CropName   string     `json:"cropName"   binding:"required,max=128" example:"Rice"`
	MarketName string     `json:"marketName" binding:"required,max=128" example:"Karwan Bazar"`
	PricePerKg float64    `json:"pricePerKg" binding:"required,gt=0"    example:"52.5"`
	Unit       string     `json:"unit,omitempty" binding:"omitempty,max=16" example:"BDT/kg"`
	RecordedAt *time.Time `json:"recordedAt,omitempty"`
}

// MarketPricesResponse wraps the latest prices.
type MarketPricesResponse struct {
	Prices []domain.MarketPrice `json:"prices"`
}

// TriggerResponse acknowledges a started sweep.
type TriggerResponse struct {
	Kind    string `json:"kind" example:"daily"`
	Message string `json:"message" example:"sweep started"`
}

// ListFarmers godoc
// @ID          adminListFarmers
// @Summary     List farmers (paginated, filterable)
// @Description Newest first. Each farmer carries their district, devices and the devices' current readings. Text filters are case-insensitive substring matches.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       page        query  int     false  "Page number"     minimum(1) default(1)
// @Param       limit       query  int     false  "Items per page"  minimum(1) maximum(100) default(12)
// @Param       name        query  string  false  "Name contains"
// @Param       mobile      query  string  false  "Mobile contains"
// @Param       districtId  query  string  false  "District ID"
// @Param       district    query  string  false  "District name contains"
// @Param       crop        query  string  false  "Crop contains"
// @Success     200  {object}  handlers.Envelope{data=services.FarmerPage}
// @Failure     401  {object}  handlers.LegacyError
// @Failure     403  {object}  handlers.LegacyError
// @Failure     500  {object}  handlers.LegacyError
// @Router      /admin/farmers [get]
func (h *Handlers) ListFarmers(c *gin.Context) {
	f := repo.FarmerFilter{
		Name:       c.Query("name"),
		Mobile:     c.Query("mobile"),
		DistrictID: c.Query("districtId"),
		District:   c.Query("district"),
		Crop:       c.Query("crop"),
	}
	page, err := h.admin.ListFarmers(c.Request.Context(), f,
		atoiQuery(c, "page", 1), atoiQuery(c, "limit", defaultFarmerPageSize))
	if err != nil {
		failService(c, err, "Failed to fetch farmers")
		return
	}
	if page.Items == nil {
		page.Items = []domain.Farmer{}
	}
	okData(c, page)
}

// ListMarketPrices godoc
// @ID          adminListMarketPrices
// @Summary     Latest market prices
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MarketPricesResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/market-prices [get]
func (h *Handlers) ListMarketPrices(c *gin.Context) {
	prices, err := h.admin.ListMarketPrices(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list market prices")
		return
	}
	if prices == nil {
		prices = []domain.MarketPrice{}
	}
	ok(c, http.StatusOK, MarketPricesResponse{Prices: prices})
}

// CreateMarketPrice godoc
// @ID          adminCreateMarketPrice
// @Summary     Record a market price
// @Description The chat assistant quotes the newest observations.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.MarketPriceRequest  true  "Price"
// @Success     201  {object}  domain.MarketPrice
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/market-prices [post]
func (h *Handlers) CreateMarketPrice(c *gin.Context) {
	var req MarketPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid market price")
		return
	}
	in := services.MarketPriceInput{
		CropName:   req.CropName,
		MarketName: req.MarketName,
		PricePerKg: req.PricePerKg,
		Unit:       req.Unit,
	}
	if req.RecordedAt != nil {
		in.RecordedAt = *req.RecordedAt
	}
	p, err := h.admin.CreateMarketPrice(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid market price")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not record market price")
		return
	}
	ok(c, http.StatusCreated, p)
}

// TriggerDaily godoc
// @ID          adminTriggerDaily
// @Summary     Start the daily analysis sweep
// @Description Runs in the background; poll /admin/scheduler/status for the result.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     202  {object}  handlers.TriggerResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Sweep already running"
// @Failure     503  {object}  handlers.ErrorResponse  "Scheduler not configured or stopping"
// @Router      /admin/scheduler/daily [post]
func (h *Handlers) TriggerDaily(c *gin.Context) {
	h.trigger(c, scheduler.KindDaily, func() error { return h.sched.TriggerDaily(c.Request.Context()) })
}

// TriggerMoisture godoc
// @ID          adminTriggerMoisture
// @Summary     Start the critical moisture sweep
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     202  {object}  handlers.TriggerResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Sweep already running"
// @Failure     503  {object}  handlers.ErrorResponse  "Scheduler not configured or stopping"
// @Router      /admin/scheduler/moisture [post]
func (h *Handlers) TriggerMoisture(c *gin.Context) {
	h.trigger(c, scheduler.KindMoisture, func() error { return h.sched.TriggerMoisture(c.Request.Context()) })
}

func (h *Handlers) trigger(c *gin.Context, kind string, run func() error) {
	if h.sched == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeNotConfigured, "scheduler not configured")
		return
	}
	if err := run(); err != nil {
		if errors.Is(err, scheduler.ErrSweepInProgress) {
			fail(c, http.StatusConflict, ErrCodeSweepRunning, "sweep already in progress")
			return
		}
		if errors.Is(err, scheduler.ErrStopping) {
			fail(c, http.StatusServiceUnavailable, ErrCodeNotConfigured, "scheduler is stopping")
			return
		}
		failCoded(c, err)
		return
	}
	ok(c, http.StatusAccepted, TriggerResponse{Kind: kind, Message: "sweep started"})
}

// SchedulerStatus godoc
// @ID          adminSchedulerStatus
// @Summary     Sweep state
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  scheduler.Status
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /admin/scheduler/status [get]
func (h *Handlers) SchedulerStatus(c *gin.Context) {
	if h.sched == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeNotConfigured, "scheduler not configured")
		return
	}
	ok(c, http.StatusOK, h.sched.Status())
}

func atoiQuery(c *gin.Context, key string, def int) int {
	return utils.AtoiDefault(c.Query(key), def)
}
