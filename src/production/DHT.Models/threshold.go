package dhtmodels

import "time"

// ThresholdRowID keys the single threshold row
const ThresholdRowID = 1

// Fallback thresholds used whenever the stored row is absent or unreadable
const (
	DefaultTempThreshold = 26.0
	DefaultHumThreshold  = 70.0
)

// ThresholdConfig holds the cutoffs field devices use to drive the relay
type ThresholdConfig struct {
	TempThreshold float64   `json:"temp_threshold" bson:"temp_threshold" validate:"gte=-40,lte=80"`
	HumThreshold  float64   `json:"hum_threshold" bson:"hum_threshold" validate:"gte=0,lte=100"`
	UpdatedAt     time.Time `json:"-" bson:"updated_at"`
}

// DefaultThresholds returns the fallback configuration
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		TempThreshold: DefaultTempThreshold,
		HumThreshold:  DefaultHumThreshold,
	}
}
