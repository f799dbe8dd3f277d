// Package domain defines the persistence models for farmers, devices, sensor
// snapshots, alerts, analysis logs and the weather cache. These types are
// mapped with GORM and form the core data layer of the AgriSense backend.
package domain

import (
	"time"
)

// Farmer roles.
const (
	RoleFarmer = "farmer"
	RoleAdmin  = "admin"
)

// District is an administrative district a farmer belongs to.
type District struct {
	ID   string `json:"id"   gorm:"type:char(36);primaryKey"`
	Name string `json:"name" gorm:"type:varchar(128);not null;uniqueIndex"`
}

// TableName returns the database table name for District.
func (District) TableName() string { return "districts" }

// Farmer is a registered user of the platform. Admins share the table and
// are distinguished by Role.
//
// Fields:
//   - MobileNumber: as entered at signup; normalized only when sending.
//   - Latitude / Longitude: farm coordinates used for weather lookups.
//   - DistrictID: optional link to District.
type Farmer struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	FullName        string    `json:"full_name"        gorm:"type:varchar(255);not null;index"`
	MobileNumber    string    `json:"mobile_number"    gorm:"type:varchar(32);index"`
	Email           string    `json:"email,omitempty"  gorm:"type:varchar(255)"`
	Role            string    `json:"role"             gorm:"type:varchar(16);not null;default:'farmer';index"`
	CropName        string    `json:"crop_name"        gorm:"type:varchar(128)"`
	LandSizeAcres   *float64  `json:"land_size_acres"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	LocationAddress string    `json:"location_address" gorm:"type:text"`
	DistrictID      *string   `json:"district_id"      gorm:"type:char(36);index"`
	District        *District `json:"district,omitempty" gorm:"foreignKey:DistrictID;references:ID"`
	Devices         []Device  `json:"devices,omitempty"  gorm:"foreignKey:UserID;references:ID"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for Farmer.
func (Farmer) TableName() string { return "users" }

// Location returns the best human-readable location for prompts and voice
// calls: the address, then the district name, then "Unknown".
func (f Farmer) Location() string {
	if f.LocationAddress != "" {
		return f.LocationAddress
	}
	if f.District != nil && f.District.Name != "" {
		return f.District.Name
	}
	return "Unknown"
}

// Device is an IoT soil probe linked to a farmer. Only active devices take
// part in analysis and sweeps.
type Device struct {
	ID         string          `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string          `json:"user_id"     gorm:"type:char(36);not null;index:idx_user_devices"`
	DeviceName string          `json:"device_name" gorm:"type:varchar(128);not null"`
	DeviceType string          `json:"device_type" gorm:"type:varchar(64);not null;default:'soil_sensor'"`
	APIKey     string          `json:"-"           gorm:"type:varchar(64);not null;uniqueIndex"`
	IsActive   bool            `json:"is_active"   gorm:"not null;default:true;index"`
	Snapshot   *SensorSnapshot `json:"current_sensor_data,omitempty" gorm:"foreignKey:DeviceID;references:ID"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Device.
func (Device) TableName() string { return "devices" }

// SensorSnapshot is the single current reading of a device. Reports upsert
// on DeviceID, so history is not retained.
type SensorSnapshot struct {
	ID               string    `json:"id"                gorm:"type:char(36);primaryKey"`
	DeviceID         string    `json:"device_id"         gorm:"type:char(36);not null;uniqueIndex"`
	MoistureLevel    float64   `json:"moisture_level"`
	PHLevel          float64   `json:"ph_level"`
	Temperature      float64   `json:"temperature"`
	Humidity         float64   `json:"humidity"`
	LightIntensity   float64   `json:"light_intensity"`
	SoilConductivity float64   `json:"soil_conductivity"`
	NitrogenLevel    float64   `json:"nitrogen_level"`
	PhosphorusLevel  float64   `json:"phosphorus_level"`
	PotassiumLevel   float64   `json:"potassium_level"`
	LastUpdated      time.Time `json:"last_updated"      gorm:"index"`
}

// TableName returns the database table name for SensorSnapshot.
func (SensorSnapshot) TableName() string { return "current_sensor_data" }

// AlertSensorData is the sensor excerpt embedded in an alert at creation.
type AlertSensorData struct {
	MoistureLevel float64   `json:"moisture_level"`
	PHLevel       *float64  `json:"ph_level,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Humidity      *float64  `json:"humidity,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// FarmAlert records one critical notification and its delivery outcome.
// It is inserted once, then updated in place with the SMS result and, only
// when the SMS succeeded, the voice-call result.
type FarmAlert struct {
	ID                 string          `json:"id"                   gorm:"type:char(36);primaryKey"`
	UserID             string          `json:"user_id"              gorm:"type:char(36);not null;index:idx_user_alerts,priority:1"`
	DeviceID           string          `json:"device_id"            gorm:"type:char(36);index"`
	AlertType          AlertType       `json:"alert_type"           gorm:"type:varchar(48);not null;index"`
	Severity           Severity        `json:"severity"             gorm:"type:varchar(16);not null;default:'high'"`
	MessageBangla      string          `json:"message_bangla"       gorm:"type:text"`
	MessageEnglish     string          `json:"message_english"      gorm:"type:text"`
	SensorData         AlertSensorData `json:"sensor_data"          gorm:"type:text;serializer:json"`
	IsRead             bool            `json:"is_read"              gorm:"not null;default:false"`
	IsSMSSent          bool            `json:"is_sms_sent"          gorm:"column:is_sms_sent;not null;default:false"`
	SMSSentAt          *time.Time      `json:"sms_sent_at"          gorm:"column:sms_sent_at"`
	SMSResponse        map[string]any  `json:"sms_response"         gorm:"column:sms_response;type:text;serializer:json"`
	VoiceCallInitiated bool            `json:"voice_call_initiated" gorm:"not null;default:false"`
	VoiceCallID        string          `json:"voice_call_id"        gorm:"type:varchar(128)"`
	VoiceCallStatus    string          `json:"voice_call_status"    gorm:"type:varchar(64)"`
	VoiceCallResponse  map[string]any  `json:"voice_call_response"  gorm:"type:text;serializer:json"`
	CreatedAt          time.Time       `json:"created_at"           gorm:"index:idx_user_alerts,priority:2"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName returns the database table name for FarmAlert.
func (FarmAlert) TableName() string { return "farm_alerts" }

// FarmAnalysis is the standalone log row written by the daily sweep for
// every analysis, independent of whether an alert was raised.
type FarmAnalysis struct {
	ID             string      `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID         string      `json:"user_id"         gorm:"type:char(36);not null;index"`
	DeviceID       string      `json:"device_id"       gorm:"type:char(36)"`
	AnalysisData   FarmContext `json:"analysis_data"   gorm:"type:text;serializer:json"`
	AIAnalysis     string      `json:"ai_analysis"     gorm:"column:ai_analysis;type:text"`
	ActionRequired bool        `json:"action_required" gorm:"not null;default:false"`
	SMSMessage     string      `json:"sms_message"     gorm:"column:sms_message;type:text"`
	Provider       string      `json:"provider"        gorm:"type:varchar(32)"`
	CreatedAt      time.Time   `json:"created_at"      gorm:"index"`
}

// TableName returns the database table name for FarmAnalysis.
func (FarmAnalysis) TableName() string { return "farm_analyses" }

// Weather cache types.
const (
	WeatherCurrent  = "current"
	WeatherForecast = "forecast"
)

// WeatherCache is a time-boxed upstream weather response keyed by rounded
// coordinates (4 decimals, stored as text so equality is exact) and type.
type WeatherCache struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	Type      string    `json:"type"      gorm:"type:varchar(16);not null;index:idx_weather_lookup,priority:1"`
	Latitude  string    `json:"latitude"  gorm:"type:varchar(16);not null;index:idx_weather_lookup,priority:2"`
	Longitude string    `json:"longitude" gorm:"type:varchar(16);not null;index:idx_weather_lookup,priority:3"`
	Data      string    `json:"data"      gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_weather_lookup,priority:4"`
}

// TableName returns the database table name for WeatherCache.
func (WeatherCache) TableName() string { return "weather_cache" }

// MarketPrice is one observed crop price at a market.
type MarketPrice struct {
	ID         string    `json:"id"           gorm:"type:char(36);primaryKey"`
	CropName   string    `json:"crop_name"    gorm:"type:varchar(128);not null;index"`
	MarketName string    `json:"market_name"  gorm:"type:varchar(128);not null"`
	PricePerKg float64   `json:"price_per_kg" gorm:"not null"`
	Unit       string    `json:"unit"         gorm:"type:varchar(16);not null;default:'BDT/kg'"`
	RecordedAt time.Time `json:"recorded_at"  gorm:"index"`
}

// TableName returns the database table name for MarketPrice.
func (MarketPrice) TableName() string { return "market_prices" }
