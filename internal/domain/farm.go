package domain

import "time"

// FarmContext is the normalized view of one farmer assembled fresh for every
// analysis: profile, crop, latest sensor snapshot and current weather. It is
// never stored on its own; FarmAnalysis embeds a copy for auditing.
type FarmContext struct {
	Farmer  FarmerInfo  `json:"farmer"`
	Crop    CropInfo    `json:"crop"`
	Sensors SensorInfo  `json:"sensors"`
	Weather WeatherInfo `json:"weather"`
	Device  DeviceInfo  `json:"device"`
}

// FarmerInfo is the farmer part of a FarmContext.
type FarmerInfo struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Mobile      string      `json:"mobile,omitempty"`
	Location    string      `json:"location"`
	LandSize    *float64    `json:"landSize"`
	Coordinates Coordinates `json:"coordinates"`
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CropInfo is the crop part of a FarmContext.
type CropInfo struct {
	Type         string `json:"type"`
	PlantingDate string `json:"plantingDate"`
}

// Nutrients holds the N/P/K readings.
type Nutrients struct {
	Nitrogen   float64 `json:"nitrogen"`
	Phosphorus float64 `json:"phosphorus"`
	Potassium  float64 `json:"potassium"`
}

// SensorInfo is the sensor part of a FarmContext.
type SensorInfo struct {
	SoilMoisture     float64   `json:"soilMoisture"`
	SoilPH           float64   `json:"soilPH"`
	SoilTemperature  float64   `json:"soilTemperature"`
	Humidity         float64   `json:"humidity"`
	LightIntensity   float64   `json:"lightIntensity"`
	SoilConductivity float64   `json:"soilConductivity"`
	Nutrients        Nutrients `json:"nutrients"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// WeatherInfo is the current-weather part of a FarmContext.
type WeatherInfo struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Rainfall    float64 `json:"rainfall"`
	Forecast    string  `json:"forecast"`
}

// DefaultWeather is used when neither the cache nor the upstream provider
// can supply current conditions.
func DefaultWeather() WeatherInfo {
	return WeatherInfo{Temperature: 25, Humidity: 60, Rainfall: 0, Forecast: "unavailable"}
}

// DeviceInfo identifies the device whose snapshot was used.
type DeviceInfo struct {
	ID string `json:"id"`
}

// ForecastDay is one day of the aggregated daily forecast.
type ForecastDay struct {
	Date        string  `json:"date"`
	Day         string  `json:"day"`
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	Humidity    float64 `json:"humidity"`
	Description string  `json:"description"`
}

// SensorsFromSnapshot maps a stored snapshot into the FarmContext shape.
func SensorsFromSnapshot(s SensorSnapshot) SensorInfo {
	return SensorInfo{
		SoilMoisture:     s.MoistureLevel,
		SoilPH:           s.PHLevel,
		SoilTemperature:  s.Temperature,
		Humidity:         s.Humidity,
		LightIntensity:   s.LightIntensity,
		SoilConductivity: s.SoilConductivity,
		Nutrients: Nutrients{
			Nitrogen:   s.NitrogenLevel,
			Phosphorus: s.PhosphorusLevel,
			Potassium:  s.PotassiumLevel,
		},
		LastUpdated: s.LastUpdated,
	}
}

// Usage is token accounting reported by the analysis provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// AnalysisResult is the canonical analysis output regardless of provider.
// Message is the short SMS-sized alert text and may be empty.
type AnalysisResult struct {
	Analysis       string    `json:"analysis"`
	ActionRequired bool      `json:"actionRequired"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	Usage          *Usage    `json:"usage,omitempty"`
}

// ShouldAlert reports whether the result warrants notifying the farmer.
func (r AnalysisResult) ShouldAlert() bool {
	return r.ActionRequired && r.Message != ""
}
