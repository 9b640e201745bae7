package implementation

import (
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
)

// oldestFirst reverses a newest-first page in place so charts read left to right
func oldestFirst(readings []dhtmodels.SensorReading) []dhtmodels.SensorReading {
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings
}

// logFailure records the underlying cause server-side and hands the error back
func logFailure(log *logger.Logger, err *apperrors.Error) error {
	log.Logger.Error().
		Err(err.Err).
		Str("op", err.Op).
		Str("stage", string(err.Stage)).
		Msg("Datastore operation failed")
	return err
}

// Gateway operations
// ├── InsertReading() - Append one reading, server-stamped created_at
// ├── FetchLatestReadings() - Newest N for a device, returned oldest first
// ├── GetThresholds() - Row id=1 or defaults
// ├── SetThresholds() - Upsert row id=1
// ├── FindUserByUsername() - nil,nil when absent
// └── InsertUser() - Unique username, role "user"
