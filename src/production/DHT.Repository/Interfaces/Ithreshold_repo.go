package interfaces

import (
	"context"

	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
)

type ThresholdRepository interface {
	// GetThresholds always yields usable values: the stored row, or the
	// defaults when the row is absent. On failure the defaults are returned
	// together with the error.
	GetThresholds(ctx context.Context) (dhtmodels.ThresholdConfig, error)

	// SetThresholds replaces the single threshold row
	SetThresholds(ctx context.Context, temp, hum float64) error
}
