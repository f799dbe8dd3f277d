package analysis

import (
	"fmt"
	"strings"

	"github.com/tbourn/agrisense-backend/internal/domain"
)

const analysisSystemPrompt = "You are an agricultural expert that analyses farm data for farmers in Bangladesh. " +
	"Reply with one valid JSON object and nothing else. Write all farmer-facing text in Bengali (Bangla) " +
	"using Unicode Bengali script. Be practical and flag conditions that need immediate action."

const chatSystemPrompt = "You are AgriSense AI, a friendly agricultural assistant. Give personalised, practical " +
	"advice using the live sensor data, weather and farmer profile you are given. Reply in the language the " +
	"farmer wrote in; when unsure, use Bengali (Bangla)."

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func landSize(p *float64) string {
	if p == nil {
		return "Unknown"
	}
	return fmt.Sprintf("%g", *p)
}

// analysisPrompt embeds every farm context field, the alert policy and the
// exact JSON shape expected back.
func analysisPrompt(fc domain.FarmContext) string {
	var b strings.Builder
	s := fc.Sensors
	fmt.Fprintf(&b, "Analyse this farm and answer in STRICT JSON.\n\n")
	fmt.Fprintf(&b, "FARM\n- Farmer: %s\n- Location: %s\n- Coordinates: %.4f, %.4f\n- Land size: %s acres\n- Crop: %s\n",
		orUnknown(fc.Farmer.Name), orUnknown(fc.Farmer.Location),
		fc.Farmer.Coordinates.Latitude, fc.Farmer.Coordinates.Longitude,
		landSize(fc.Farmer.LandSize), orUnknown(fc.Crop.Type))
	if fc.Crop.PlantingDate != "" {
		fmt.Fprintf(&b, "- Planted: %s\n", fc.Crop.PlantingDate)
	}
	fmt.Fprintf(&b, "\nWEATHER\n- Temperature: %g°C\n- Humidity: %g%%\n- Rainfall: %g mm\n- Forecast: %s\n",
		fc.Weather.Temperature, fc.Weather.Humidity, fc.Weather.Rainfall, orUnknown(fc.Weather.Forecast))
	fmt.Fprintf(&b, "\nSENSORS (device %s, updated %s)\n", orUnknown(fc.Device.ID), s.LastUpdated.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "- Soil moisture (most important): %g%%\n- Soil pH: %g\n- Soil temperature: %g°C\n- Air humidity: %g%%\n",
		s.SoilMoisture, s.SoilPH, s.SoilTemperature, s.Humidity)
	fmt.Fprintf(&b, "- Light intensity: %g lux\n- Soil conductivity: %g µS/cm\n", s.LightIntensity, s.SoilConductivity)
	fmt.Fprintf(&b, "- Nitrogen: %g ppm\n- Phosphorus: %g ppm\n- Potassium: %g ppm\n",
		s.Nutrients.Nitrogen, s.Nutrients.Phosphorus, s.Nutrients.Potassium)

	b.WriteString(`
RESPOND WITH EXACTLY THIS JSON:
{
  "analysis": "4-5 point analysis and recommendations in simple Bengali for the dashboard",
  "actionRequired": true or false,
  "message": "1-2 sentence Bengali SMS instruction when actionRequired is true, otherwise null"
}

SET actionRequired=true WHEN:
- soil moisture below 20% (drought stress, the most critical case)
- soil moisture above 90% (waterlogging)
- pH below 5.5 or above 8.5 (nutrient lockout)
- temperature below 10°C or above 40°C
- any combination posing immediate crop risk

0% soil moisture is a real reading, not missing data: it means irrigate now.
When several problems exist, the SMS message addresses moisture first.
`)
	return b.String()
}

// flattenPrices renders the latest market prices one per line.
func flattenPrices(prices []domain.MarketPrice) string {
	if len(prices) == 0 {
		return "- no recent market prices\n"
	}
	var b strings.Builder
	for _, p := range prices {
		unit := p.Unit
		if unit == "" {
			unit = "BDT/kg"
		}
		fmt.Fprintf(&b, "- %s at %s: %g %s (%s)\n", p.CropName, p.MarketName, p.PricePerKg, unit, p.RecordedAt.Format("2006-01-02"))
	}
	return b.String()
}

func hasSensors(fc domain.FarmContext) bool { return fc.Device.ID != "" }

func chatPrompt(fc domain.FarmContext, prices []domain.MarketPrice, message string) string {
	var b strings.Builder
	name := orUnknown(fc.Farmer.Name)
	fmt.Fprintf(&b, "You are helping %s.\n\nPROFILE\n- Location: %s\n- Land size: %s acres\n- Crop: %s\n",
		name, orUnknown(fc.Farmer.Location), landSize(fc.Farmer.LandSize), orUnknown(fc.Crop.Type))
	fmt.Fprintf(&b, "\nWEATHER\n- %g°C, humidity %g%%, rainfall %g mm, %s\n",
		fc.Weather.Temperature, fc.Weather.Humidity, fc.Weather.Rainfall, orUnknown(fc.Weather.Forecast))

	if hasSensors(fc) {
		s := fc.Sensors
		fmt.Fprintf(&b, "\nLIVE SENSORS (updated %s)\n", s.LastUpdated.Format("2006-01-02 15:04 MST"))
		fmt.Fprintf(&b, "- Soil moisture %g%% %s\n- Soil pH %g %s\n- Soil temperature %g°C\n",
			s.SoilMoisture, moistureTag(s.SoilMoisture), s.SoilPH, phTag(s.SoilPH), s.SoilTemperature)
		fmt.Fprintf(&b, "- Light %g lux, conductivity %g µS/cm\n- N %g ppm, P %g ppm, K %g ppm\n",
			s.LightIntensity, s.SoilConductivity, s.Nutrients.Nitrogen, s.Nutrients.Phosphorus, s.Nutrients.Potassium)
	} else {
		b.WriteString("\nSENSORS: no active device. Encourage the farmer to connect an AgriSense device.\n")
	}

	b.WriteString("\nMARKET PRICES\n")
	b.WriteString(flattenPrices(prices))

	fmt.Fprintf(&b, "\nQUESTION: %q\n\n", message)
	fmt.Fprintf(&b, "Address %s by name, cite the exact readings when relevant, and keep the answer to 2-4 short sentences.\n", name)
	return b.String()
}

func moistureTag(v float64) string {
	switch {
	case v < 30:
		return "(LOW)"
	case v > 70:
		return "(GOOD)"
	default:
		return "(MODERATE)"
	}
}

func phTag(v float64) string {
	switch {
	case v < 6:
		return "(ACIDIC)"
	case v > 8:
		return "(ALKALINE)"
	default:
		return "(OPTIMAL)"
	}
}

// FallbackReply is the canned Bengali answer used when the chat model fails.
func FallbackReply(fc domain.FarmContext) string {
	name := fc.Farmer.Name
	crop := orUnknown(fc.Crop.Type)
	if hasSensors(fc) {
		return fmt.Sprintf("আসসালামু আলাইকুম %s! আমি এখন আপনার প্রশ্নটি প্রক্রিয়া করতে সমস্যা হচ্ছে, তবে আমি দেখতে পাচ্ছি আপনার বর্তমান মাটির আর্দ্রতা %g%% এবং pH %g। আপনার %s খামারে কিভাবে সাহায্য করতে পারি?",
			name, fc.Sensors.SoilMoisture, fc.Sensors.SoilPH, crop)
	}
	return fmt.Sprintf("আসসালামু আলাইকুম %s! আমি কিছু প্রযুক্তিগত সমস্যার সম্মুখীন হচ্ছি, তবে আমি আপনার %s চাষের প্রশ্নে সাহায্য করতে এখানে আছি। অনুগ্রহ করে একটু পরে আবার চেষ্টা করুন।", name, crop)
}
