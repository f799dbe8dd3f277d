// Device HTTP handlers.
//
//   - POST   /devices/readings            (probe ingest, API key auth)
//   - GET    /devices                     (caller's devices)
//   - POST   /devices                     (register a device, returns its key)
//   - DELETE /devices/{id}                (unlink)
//   - GET    /devices/{id}/sensor-data    (current reading)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/services"
)

// HeaderAPIKey carries a probe's device key.
const HeaderAPIKey = "X-API-Key"

// IngestRequest is a probe report. Older firmware sends moistureLevel.
type IngestRequest struct {
	APIKey        string   `json:"apiKey,omitempty"`
	Moisture      *float64 `json:"moisture,omitempty" example:"12.5"`
	MoistureLevel *float64 `json:"moistureLevel,omitempty"`
}

func (r IngestRequest) reading() *float64 {
	if r.Moisture != nil {
		return r.Moisture
	}
	return r.MoistureLevel
}

// IngestResponse acknowledges a stored reading.
type IngestResponse struct {
	Message     string `json:"message" example:"Sensor data updated successfully"`
	DeviceID    string `json:"deviceId"`
	LastUpdated string `json:"lastUpdated"`
}

// LinkDeviceRequest registers a device.
type LinkDeviceRequest struct {
	DeviceName string `json:"deviceName" binding:"required,max=128" example:"North field probe"`
	DeviceType string `json:"deviceType,omitempty" example:"soil_sensor"`
}

// LinkedDevice is the one view of a device that includes its API key.
type LinkedDevice struct {
	ID     string `json:"id"`
	APIKey string `json:"apiKey"`
	Name   string `json:"name"`
	Status string `json:"status" example:"linked"`
}

// LinkDeviceResponse wraps a newly linked device.
type LinkDeviceResponse struct {
	Message string       `json:"message" example:"Device linked successfully"`
	Device  LinkedDevice `json:"device"`
}

// IngestReading godoc
// @ID          ingestSensorData
// @Summary     Report a probe reading
// @Description Authenticated by the device API key (X-API-Key header or apiKey field). Replaces the device's current snapshot.
// @Tags        Devices
// @Accept      json
// @Produce     json
// @Param       X-API-Key  header  string                  false  "Device API key"
// @Param       body       body    handlers.IngestRequest  true   "Reading"
// @Success     200  {object}  handlers.IngestResponse
// @Failure     400  {object}  handlers.LegacyError  "Missing or out-of-range moisture"
// @Failure     401  {object}  handlers.LegacyError  "Invalid API key or inactive device"
// @Failure     500  {object}  handlers.LegacyError
// @Router      /devices/readings [post]
func (h *Handlers) IngestReading(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failLegacy(c, http.StatusBadRequest, "Invalid sensor payload", nil)
		return
	}
	key := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
	if key == "" {
		key = req.APIKey
	}
	snap, err := h.devices.IngestReading(c.Request.Context(), key, req.reading())
	switch {
	case errors.Is(err, services.ErrDeviceNotFound):
		failLegacy(c, http.StatusUnauthorized, "Invalid API key or inactive device", nil)
		return
	case errors.Is(err, services.ErrInvalidReading):
		failLegacy(c, http.StatusBadRequest, "Moisture must be a number between 0 and 100", nil)
		return
	case err != nil:
		failService(c, err, "Failed to update sensor data")
		return
	}
	ok(c, http.StatusOK, IngestResponse{
		Message:     "Sensor data updated successfully",
		DeviceID:    snap.DeviceID,
		LastUpdated: snap.LastUpdated.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// ListDevices godoc
// @ID          listDevices
// @Summary     List the caller's devices
// @Tags        Devices
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  map[string][]domain.Device
// @Failure     500  {object}  handlers.LegacyError
// @Router      /devices [get]
func (h *Handlers) ListDevices(c *gin.Context) {
	devices, err := h.devices.List(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, "Failed to fetch devices")
		return
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	ok(c, http.StatusOK, gin.H{"devices": devices})
}

// LinkDevice godoc
// @ID          linkDevice
// @Summary     Link a new device
// @Description Generates the device API key. The key is returned only in this response.
// @Tags        Devices
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.LinkDeviceRequest  true  "Device"
// @Success     201  {object}  handlers.LinkDeviceResponse
// @Failure     400  {object}  handlers.LegacyError
// @Failure     500  {object}  handlers.LegacyError
// @Router      /devices [post]
func (h *Handlers) LinkDevice(c *gin.Context) {
	var req LinkDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failLegacy(c, http.StatusBadRequest, "Device name is required", nil)
		return
	}
	d, key, err := h.devices.Link(c.Request.Context(), userID(c), req.DeviceName, req.DeviceType)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			failLegacy(c, http.StatusBadRequest, "Device name is required", nil)
			return
		}
		failService(c, err, "Failed to link device")
		return
	}
	ok(c, http.StatusCreated, LinkDeviceResponse{
		Message: "Device linked successfully",
		Device:  LinkedDevice{ID: d.ID, APIKey: key, Name: d.DeviceName, Status: "linked"},
	})
}

// UnlinkDevice godoc
// @ID          unlinkDevice
// @Summary     Unlink a device
// @Tags        Devices
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Device ID"  format(uuid)
// @Success     200  {object}  map[string]string
// @Failure     404  {object}  handlers.LegacyError
// @Router      /devices/{id} [delete]
func (h *Handlers) UnlinkDevice(c *gin.Context) {
	if err := h.devices.Unlink(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failService(c, err, "Failed to unlink device")
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Device unlinked successfully"})
}

// DeviceSensorData godoc
// @ID          deviceSensorData
// @Summary     Current reading of a device
// @Tags        Devices
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Device ID"  format(uuid)
// @Success     200  {object}  map[string]domain.SensorSnapshot
// @Failure     404  {object}  handlers.LegacyError
// @Router      /devices/{id}/sensor-data [get]
func (h *Handlers) DeviceSensorData(c *gin.Context) {
	snap, err := h.devices.SensorData(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failService(c, err, "Failed to fetch sensor data")
		return
	}
	ok(c, http.StatusOK, gin.H{"sensorData": snap})
}
