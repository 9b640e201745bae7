package dhtmodels

import (
	"time"

	"github.com/goccy/go-json"
)

// Relay states reported by the field devices
const (
	RelayOn  = "On"
	RelayOff = "Off"
)

// TimestampLayout is the wall-clock layout the mobile app parses
const TimestampLayout = "2006-01-02 15:04:05"

// SensorReading is one timestamped DHT11 sample. Rows are append-only.
type SensorReading struct {
	ID          int64     `json:"id" bson:"_id" db:"id"`
	DeviceID    int       `json:"device_id" bson:"device_id" db:"device_id" validate:"gt=0,lte=2147483647"`
	Temperature float64   `json:"temperature" bson:"temperature" db:"temperature" validate:"gte=-40,lte=80"`
	Humidity    float64   `json:"humidity" bson:"humidity" db:"humidity" validate:"gte=0,lte=100"`
	RelayStatus string    `json:"relay_status" bson:"relay_status" db:"relay_status" validate:"oneof=On Off"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

// MarshalJSON renders created_at as server-local wall-clock time in the
// layout charts on the mobile app expect
func (r SensorReading) MarshalJSON() ([]byte, error) {
	type alias SensorReading
	return json.Marshal(struct {
		alias
		CreatedAt string `json:"created_at"`
	}{
		alias:     alias(r),
		CreatedAt: r.CreatedAt.Local().Format(TimestampLayout),
	})
}
