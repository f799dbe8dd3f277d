package domain

// AlertType classifies the condition that triggered a FarmAlert.
type AlertType string

// Alert types produced by DetermineAlertType, plus LowMoisture which only
// the critical-moisture sweep raises.
const (
	AlertCriticalDrought      AlertType = "critical_drought"
	AlertCriticalWaterlogging AlertType = "critical_waterlogging"
	AlertPHTooAcidic          AlertType = "ph_too_acidic"
	AlertPHTooAlkaline        AlertType = "ph_too_alkaline"
	AlertTemperatureTooCold   AlertType = "temperature_too_cold"
	AlertTemperatureTooHot    AlertType = "temperature_too_hot"
	AlertCriticalCondition    AlertType = "critical_condition"
	AlertLowMoisture          AlertType = "low_moisture"
)

// Severity of a FarmAlert.
type Severity string

const (
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert thresholds. Moisture is percent, temperature is degrees Celsius.
const (
	MoistureLow  = 20.0
	MoistureHigh = 90.0
	PHLow        = 5.5
	PHHigh       = 8.5
	TempLow      = 10.0
	TempHigh     = 40.0
)

// DetermineAlertType applies the fixed ladder moisture, then pH, then
// temperature. The first matching rule wins; a zero moisture reading is a
// real reading and classifies as drought.
func DetermineAlertType(s SensorSnapshot) AlertType {
	switch {
	case s.MoistureLevel < MoistureLow:
		return AlertCriticalDrought
	case s.MoistureLevel > MoistureHigh:
		return AlertCriticalWaterlogging
	case s.PHLevel < PHLow:
		return AlertPHTooAcidic
	case s.PHLevel > PHHigh:
		return AlertPHTooAlkaline
	case s.Temperature < TempLow:
		return AlertTemperatureTooCold
	case s.Temperature > TempHigh:
		return AlertTemperatureTooHot
	default:
		return AlertCriticalCondition
	}
}
