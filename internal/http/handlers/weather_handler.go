package handlers

import (
	"github.com/gin-gonic/gin"
)

// CurrentWeather godoc
// @ID          currentWeather
// @Summary     Current weather at the caller's farm
// @Description Served from the 30 minute coordinate cache when fresh.
// @Tags        Weather
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.Envelope{data=services.FarmWeather}
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Weather provider failed"
// @Router      /weather/current [get]
func (h *Handlers) CurrentWeather(c *gin.Context) {
	w, err := h.weather.Current(c.Request.Context(), userID(c))
	if err != nil {
		failCoded(c, err)
		return
	}
	okData(c, w)
}

// WeatherForecast godoc
// @ID          weatherForecast
// @Summary     Daily forecast at the caller's farm
// @Tags        Weather
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.Envelope{data=services.FarmWeather}
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Weather provider failed"
// @Router      /weather/forecast [get]
func (h *Handlers) WeatherForecast(c *gin.Context) {
	w, err := h.weather.Forecast(c.Request.Context(), userID(c))
	if err != nil {
		failCoded(c, err)
		return
	}
	okData(c, w)
}
