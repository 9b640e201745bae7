package interfaces

import (
	"context"

	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
)

type ReadingRepository interface {
	// InsertReading appends one reading stamped with the server time
	InsertReading(ctx context.Context, reading *dhtmodels.SensorReading) error

	// FetchLatestReadings returns up to limit most recent readings of a
	// device, oldest first
	FetchLatestReadings(ctx context.Context, deviceID, limit int) ([]dhtmodels.SensorReading, error)
}
