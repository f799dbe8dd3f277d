package domain

import "testing"

func TestDetermineAlertType_Ladder(t *testing.T) {
	cases := []struct {
		name string
		s    SensorSnapshot
		want AlertType
	}{
		{"zero moisture is drought", SensorSnapshot{MoistureLevel: 0, PHLevel: 7, Temperature: 25}, AlertCriticalDrought},
		{"moisture wins over pH", SensorSnapshot{MoistureLevel: 10, PHLevel: 9, Temperature: 25}, AlertCriticalDrought},
		{"moisture wins over temp", SensorSnapshot{MoistureLevel: 95, PHLevel: 7, Temperature: 45}, AlertCriticalWaterlogging},
		{"acidic", SensorSnapshot{MoistureLevel: 50, PHLevel: 5.0, Temperature: 5}, AlertPHTooAcidic},
		{"alkaline", SensorSnapshot{MoistureLevel: 50, PHLevel: 8.6, Temperature: 45}, AlertPHTooAlkaline},
		{"cold", SensorSnapshot{MoistureLevel: 50, PHLevel: 7, Temperature: 9.9}, AlertTemperatureTooCold},
		{"hot", SensorSnapshot{MoistureLevel: 50, PHLevel: 7, Temperature: 40.1}, AlertTemperatureTooHot},
		{"boundaries are not critical", SensorSnapshot{MoistureLevel: 20, PHLevel: 5.5, Temperature: 40}, AlertCriticalCondition},
		{"upper boundaries", SensorSnapshot{MoistureLevel: 90, PHLevel: 8.5, Temperature: 10}, AlertCriticalCondition},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetermineAlertType(tc.s); got != tc.want {
				t.Fatalf("DetermineAlertType(%+v) = %q; want %q", tc.s, got, tc.want)
			}
		})
	}
}

func TestDetermineAlertType_AlwaysOneOfSeven(t *testing.T) {
	valid := map[AlertType]bool{
		AlertCriticalDrought: true, AlertCriticalWaterlogging: true,
		AlertPHTooAcidic: true, AlertPHTooAlkaline: true,
		AlertTemperatureTooCold: true, AlertTemperatureTooHot: true,
		AlertCriticalCondition: true,
	}
	for m := -5.0; m <= 105; m += 7.5 {
		for ph := 3.0; ph <= 10; ph += 0.75 {
			for temp := -5.0; temp <= 50; temp += 5 {
				got := DetermineAlertType(SensorSnapshot{MoistureLevel: m, PHLevel: ph, Temperature: temp})
				if !valid[got] {
					t.Fatalf("unexpected label %q for m=%v ph=%v t=%v", got, m, ph, temp)
				}
			}
		}
	}
}
