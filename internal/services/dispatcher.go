package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/events"
	"github.com/tbourn/agrisense-backend/internal/notify"
	"github.com/tbourn/agrisense-backend/internal/observability"
	"github.com/tbourn/agrisense-backend/internal/repo"
)

// DispatchOutcome reports what the dispatcher did for one alert. Nil
// pointers mean the step did not run.
type DispatchOutcome struct {
	AlertType   domain.AlertType    `json:"alert_type"`
	Alert       *domain.FarmAlert   `json:"alert"`
	MobileValid bool                `json:"mobile_valid"`
	SMS         *notify.SMSResult   `json:"sms,omitempty"`
	Voice       *notify.VoiceResult `json:"voice,omitempty"`
}

// SMSSucceeded reports whether an SMS was attempted and accepted.
func (o *DispatchOutcome) SMSSucceeded() bool {
	return o != nil && o.SMS != nil && o.SMS.Success
}

// Dispatcher turns an action-required analysis into an alert record, an SMS
// and, only after a successful SMS, a voice call.
type Dispatcher struct {
	DB     *gorm.DB
	SMS    notify.SMSSender
	Voice  notify.VoiceCaller
	Events events.Publisher
	Now    func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// Dispatch runs the alert path for res. It returns nil when res does not call
// for an alert. Step failures are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, fc domain.FarmContext, res *domain.AnalysisResult, mobile string) *DispatchOutcome {
	if res == nil || !res.ShouldAlert() {
		return nil
	}
	ctx, span := otel.Tracer("services/Dispatcher").Start(ctx, "Dispatch",
		trace.WithAttributes(attribute.String("user.id", fc.Farmer.ID), attribute.String("device.id", fc.Device.ID)))
	defer span.End()
	lg := loggerFor(ctx, "dispatcher").With().Str("user_id", fc.Farmer.ID).Logger()

	snap := domain.SensorSnapshot{
		MoistureLevel: fc.Sensors.SoilMoisture,
		PHLevel:       fc.Sensors.SoilPH,
		Temperature:   fc.Sensors.SoilTemperature,
		Humidity:      fc.Sensors.Humidity,
	}
	out := &DispatchOutcome{AlertType: domain.DetermineAlertType(snap)}
	span.SetAttributes(attribute.String("alert.type", string(out.AlertType)))

	// 1) Alert record. A failed insert leaves Alert nil; delivery still runs.
	ph, temp, hum := snap.PHLevel, snap.Temperature, snap.Humidity
	alert := &domain.FarmAlert{
		UserID:         fc.Farmer.ID,
		DeviceID:       fc.Device.ID,
		AlertType:      out.AlertType,
		Severity:       domain.SeverityHigh,
		MessageBangla:  res.Message,
		MessageEnglish: res.Analysis,
		SensorData: domain.AlertSensorData{
			MoistureLevel: snap.MoistureLevel,
			PHLevel:       &ph,
			Temperature:   &temp,
			Humidity:      &hum,
			Timestamp:     d.now(),
		},
	}
	if err := repo.CreateAlert(ctx, d.DB, alert); err != nil {
		lg.Error().Err(err).Msg("store alert failed, delivering without a record")
	} else {
		out.Alert = alert
		observability.ObserveAlert(string(out.AlertType))
	}

	// 2) Mobile gate.
	if !notify.IsValidBangladeshiMobile(mobile) {
		lg.Warn().Msg("invalid mobile number, skipping sms and voice")
		observability.ObserveDelivery("sms", observability.OutcomeSkipped)
		d.publish(ctx, events.TypeAlertCreated, fc, out, snap.MoistureLevel)
		return out
	}
	out.MobileValid = true
	to := notify.FormatMobileNumber(mobile)

	// 3) SMS.
	sms := d.sendSMS(ctx, to, res.Message)
	out.SMS = &sms
	if out.Alert != nil {
		if err := repo.UpdateAlertSMS(ctx, d.DB, out.Alert.ID, smsOutcome(sms, d.now())); err != nil {
			lg.Error().Err(err).Str("alert_id", out.Alert.ID).Msg("update alert sms status failed")
		} else {
			applySMS(out.Alert, sms, d.now())
		}
	}

	// 4) Voice, strictly after a successful SMS.
	if sms.Success {
		voice := d.call(ctx, fc, to, res.Message, out.AlertType)
		out.Voice = &voice
		if out.Alert != nil {
			if err := repo.UpdateAlertVoice(ctx, d.DB, out.Alert.ID, voiceOutcome(voice)); err != nil {
				lg.Error().Err(err).Str("alert_id", out.Alert.ID).Msg("update alert voice status failed")
			} else {
				applyVoice(out.Alert, voice)
			}
		}
	} else {
		observability.ObserveDelivery("voice", observability.OutcomeSkipped)
	}

	d.publish(ctx, events.TypeAlertCreated, fc, out, snap.MoistureLevel)
	return out
}

// CriticalMessages returns the Bangla and English texts of the critical
// moisture alert.
func CriticalMessages(moisture float64) (bangla, english string) {
	bangla = fmt.Sprintf("🚨 জরুরি সতর্কতা! আপনার মাটির আর্দ্রতা %g%% যা খুবই কম। দ্রুত সেচ দিন। - AgriSense", moisture)
	english = fmt.Sprintf("Critical Alert! Your soil moisture is %g%% which is very low. Please irrigate immediately. - AgriSense", moisture)
	return bangla, english
}

// DispatchMoisture handles one device found by the critical moisture sweep:
// SMS, then a voice call if the SMS went through, then a low_moisture alert
// carrying both outcomes.
func (d *Dispatcher) DispatchMoisture(ctx context.Context, row repo.CriticalMoistureRow) *DispatchOutcome {
	ctx, span := otel.Tracer("services/Dispatcher").Start(ctx, "DispatchMoisture",
		trace.WithAttributes(attribute.String("device.id", row.DeviceID)))
	defer span.End()
	lg := loggerFor(ctx, "dispatcher").With().Str("user_id", row.UserID).Str("device_id", row.DeviceID).Logger()

	bangla, english := CriticalMessages(row.MoistureLevel)
	out := &DispatchOutcome{AlertType: domain.AlertLowMoisture}
	now := d.now()

	alert := &domain.FarmAlert{
		UserID:         row.UserID,
		DeviceID:       row.DeviceID,
		AlertType:      domain.AlertLowMoisture,
		Severity:       domain.SeverityCritical,
		MessageBangla:  bangla,
		MessageEnglish: english,
		SensorData:     domain.AlertSensorData{MoistureLevel: row.MoistureLevel, Timestamp: now},
	}

	if notify.IsValidBangladeshiMobile(row.MobileNumber) {
		out.MobileValid = true
		to := notify.FormatMobileNumber(row.MobileNumber)
		sms := d.sendSMS(ctx, to, bangla)
		out.SMS = &sms
		applySMS(alert, sms, now)

		if sms.Success {
			fc := domain.FarmContext{
				Farmer:  domain.FarmerInfo{ID: row.UserID, Name: row.FullName, Mobile: row.MobileNumber},
				Sensors: domain.SensorInfo{SoilMoisture: row.MoistureLevel, LastUpdated: row.LastUpdated},
				Weather: domain.DefaultWeather(),
				Device:  domain.DeviceInfo{ID: row.DeviceID},
			}
			voice := d.call(ctx, fc, to, bangla, domain.AlertLowMoisture)
			out.Voice = &voice
			applyVoice(alert, voice)
		} else {
			observability.ObserveDelivery("voice", observability.OutcomeSkipped)
		}
	} else {
		lg.Warn().Msg("invalid mobile number, skipping sms and voice")
		observability.ObserveDelivery("sms", observability.OutcomeSkipped)
	}

	if err := repo.CreateAlert(ctx, d.DB, alert); err != nil {
		lg.Error().Err(err).Msg("store critical moisture alert failed")
	} else {
		out.Alert = alert
		observability.ObserveAlert(string(domain.AlertLowMoisture))
	}

	d.publish(ctx, events.TypeAlertMoistureCritical, domain.FarmContext{
		Farmer: domain.FarmerInfo{ID: row.UserID},
		Device: domain.DeviceInfo{ID: row.DeviceID},
	}, out, row.MoistureLevel)
	return out
}

func (d *Dispatcher) sendSMS(ctx context.Context, to, msg string) notify.SMSResult {
	if d.SMS == nil {
		return notify.SMSResult{Error: notify.ErrNotConfigured.Error()}
	}
	res, err := d.SMS.Send(ctx, to, msg)
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
		}
		loggerFor(ctx, "dispatcher").Error().Err(err).Msg("sms failed")
		observability.ObserveDelivery("sms", observability.OutcomeError)
		return res
	}
	observability.ObserveDelivery("sms", observability.OutcomeOK)
	return res
}

func (d *Dispatcher) call(ctx context.Context, fc domain.FarmContext, to, msg string, t domain.AlertType) notify.VoiceResult {
	if d.Voice == nil {
		return notify.VoiceResult{Error: notify.ErrNotConfigured.Error()}
	}
	res, err := d.Voice.Call(ctx, fc, to, msg, t)
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
		}
		loggerFor(ctx, "dispatcher").Error().Err(err).Msg("voice call failed")
		observability.ObserveDelivery("voice", observability.OutcomeError)
		return res
	}
	observability.ObserveDelivery("voice", observability.OutcomeOK)
	return res
}

func (d *Dispatcher) publish(ctx context.Context, typ string, fc domain.FarmContext, out *DispatchOutcome, moisture float64) {
	if d.Events == nil {
		return
	}
	ev := events.AlertEvent{
		Type:      typ,
		UserID:    fc.Farmer.ID,
		DeviceID:  fc.Device.ID,
		AlertType: string(out.AlertType),
		Moisture:  moisture,
		SMSSent:   out.SMSSucceeded(),
		VoiceCall: out.Voice != nil && out.Voice.Success,
	}
	if out.Alert != nil {
		ev.AlertID = out.Alert.ID
		ev.Severity = string(out.Alert.Severity)
	}
	if err := d.Events.PublishAlert(ctx, ev); err != nil {
		loggerFor(ctx, "dispatcher").Warn().Err(err).Msg("publish alert event failed")
	}
}

func smsOutcome(r notify.SMSResult, at time.Time) repo.SMSOutcome {
	o := repo.SMSOutcome{Sent: r.Success, Response: r.AsMap()}
	if r.Success {
		o.SentAt = &at
	}
	return o
}

func voiceOutcome(r notify.VoiceResult) repo.VoiceOutcome {
	return repo.VoiceOutcome{Initiated: r.Success, CallID: r.CallID, Status: r.Status, Response: r.AsMap()}
}

func applySMS(a *domain.FarmAlert, r notify.SMSResult, at time.Time) {
	a.IsSMSSent = r.Success
	a.SMSResponse = r.AsMap()
	if r.Success {
		a.SMSSentAt = &at
	}
}

func applyVoice(a *domain.FarmAlert, r notify.VoiceResult) {
	a.VoiceCallInitiated = r.Success
	a.VoiceCallID = r.CallID
	a.VoiceCallStatus = r.Status
	a.VoiceCallResponse = r.AsMap()
}
