package dhtmodels

import (
	"strings"
	"testing"
	"time"
)

// withLocalZone swaps the process zone for the duration of a test
func withLocalZone(t *testing.T, zone *time.Location) {
	t.Helper()
	prev := time.Local
	time.Local = zone
	t.Cleanup(func() { time.Local = prev })
}

func TestSensorReading_MarshalJSONUsesLocalTime(t *testing.T) {
	withLocalZone(t, time.FixedZone("MYT", 8*60*60))

	r := SensorReading{
		ID:          1,
		DeviceID:    101,
		Temperature: 24.5,
		Humidity:    55,
		RelayStatus: RelayOn,
		CreatedAt:   time.Date(2026, 10, 17, 15, 30, 53, 0, time.UTC),
	}

	b, err := r.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if !strings.Contains(string(b), `"created_at":"2026-10-17 23:30:53"`) {
		t.Errorf("MarshalJSON() = %s, want created_at in local time", b)
	}
	if strings.Count(string(b), `"created_at"`) != 1 {
		t.Errorf("created_at rendered twice: %s", b)
	}
}
