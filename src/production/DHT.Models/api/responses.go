package api_models

import dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"

// Envelope status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the response shape shared by every endpoint
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success builds a success envelope
func Success(message string, data interface{}) Envelope {
	return Envelope{Status: StatusSuccess, Message: message, Data: data}
}

// Failure builds an error envelope
func Failure(message string) Envelope {
	return Envelope{Status: StatusError, Message: message}
}

// ThresholdValues is the threshold pair echoed to devices
type ThresholdValues struct {
	TempThreshold float64 `json:"temp_threshold"`
	HumThreshold  float64 `json:"hum_threshold"`
}

// FromThresholds converts a stored threshold row
func FromThresholds(t dhtmodels.ThresholdConfig) ThresholdValues {
	return ThresholdValues{TempThreshold: t.TempThreshold, HumThreshold: t.HumThreshold}
}

// IngestData is returned after a reading has been stored
type IngestData struct {
	DeviceID      int     `json:"device_id"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	RelayStatus   string  `json:"relay_status"`
	Timestamp     string  `json:"timestamp"`
	TempThreshold float64 `json:"temp_threshold"`
	HumThreshold  float64 `json:"hum_threshold"`
}

// FetchResponse is the chart payload for the mobile app. Thresholds are
// omitted when they could not be read.
type FetchResponse struct {
	Status        string                    `json:"status"`
	DeviceID      int                       `json:"device_id"`
	Count         int                       `json:"count"`
	Data          []dhtmodels.SensorReading `json:"data"`
	TempThreshold *float64                  `json:"temp_threshold,omitempty"`
	HumThreshold  *float64                  `json:"hum_threshold,omitempty"`
}

// LoginData identifies the logged in user
type LoginData struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}
