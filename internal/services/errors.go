// Package services implements the farm monitoring use cases: building a farm
// context, running analyses, dispatching alerts, and the device, admin and
// voice operations behind the HTTP API.
//
// This file centralizes the service-level error values so handlers can map
// them to HTTP results with errors.Is.
package services

import "errors"

// Not-found errors.
var (
	// ErrFarmerNotFound indicates the farmer profile does not exist.
	ErrFarmerNotFound = errors.New("farmer not found")

	// ErrNoActiveDevice is returned when the farmer owns no active device.
	ErrNoActiveDevice = errors.New("no active device found")

	// ErrNoSensorData is returned when the active device has not reported yet.
	ErrNoSensorData = errors.New("no sensor data found")

	// ErrDeviceNotFound indicates the device does not exist, is inactive, or
	// belongs to someone else.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrAlertNotFound indicates the alert does not exist for this farmer.
	ErrAlertNotFound = errors.New("alert not found")
)

// Validation errors.
var (
	// ErrEmptyMessage is returned for a blank chat message.
	ErrEmptyMessage = errors.New("message is required")

	// ErrInvalidReading is returned when a device reading is missing or out
	// of range.
	ErrInvalidReading = errors.New("invalid sensor reading")

	// ErrInvalidInput covers any other malformed request field.
	ErrInvalidInput = errors.New("invalid input")
)
