// Package validation coerces and checks untrusted input before anything
// reaches the datastore. Range rules live on the model structs as
// go-playground/validator tags; this package turns raw strings into those
// structs and collapses every failure into one client-facing message.
package validation

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
)

// Client-facing messages
const (
	MsgInvalidSensorValues = "Invalid sensor values or failed sanitization"
	MsgInvalidThresholds   = "Invalid threshold values"
	MsgInvalidJSON         = "Invalid JSON data received."
	MsgMissingCredentials  = "Username and password are required"
)

// Fetch defaults
const (
	DefaultDeviceID   = 101
	DefaultFetchLimit = 50
	MaxFetchLimit     = 1000
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	// plain decimal notation only: no hex floats, no NaN/Inf spellings
	floatPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// GetValidator returns the shared validator instance
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ReadingInput carries the raw query values of an ingest request. A nil
// field means the parameter was absent.
type ReadingInput struct {
	ID    *string
	Temp  *string
	Hum   *string
	Relay *string
}

// ParseReading validates an ingest request and returns the reading to store
func ParseReading(in ReadingInput) (dhtmodels.SensorReading, error) {
	required := []struct {
		name  string
		value *string
	}{
		{"id", in.ID},
		{"temp", in.Temp},
		{"hum", in.Hum},
		{"relay", in.Relay},
	}
	for _, p := range required {
		if p.value == nil {
			return dhtmodels.SensorReading{}, apperrors.Validation("Missing GET parameter: " + p.name)
		}
	}

	invalid := apperrors.Validation(MsgInvalidSensorValues)

	deviceID, err := strconv.Atoi(strings.TrimSpace(*in.ID))
	if err != nil {
		return dhtmodels.SensorReading{}, invalid
	}
	temperature, ok := ParseFloat(*in.Temp)
	if !ok {
		return dhtmodels.SensorReading{}, invalid
	}
	humidity, ok := ParseFloat(*in.Hum)
	if !ok {
		return dhtmodels.SensorReading{}, invalid
	}

	reading := dhtmodels.SensorReading{
		DeviceID:    deviceID,
		Temperature: temperature,
		Humidity:    humidity,
		RelayStatus: NormalizeRelay(*in.Relay),
	}
	if err := GetValidator().Struct(reading); err != nil {
		return dhtmodels.SensorReading{}, invalid
	}
	return reading, nil
}

// NormalizeRelay keeps "On" and "Off" and maps anything else to "Off"
func NormalizeRelay(relay string) string {
	if relay == dhtmodels.RelayOn || relay == dhtmodels.RelayOff {
		return relay
	}
	return dhtmodels.RelayOff
}

// ParseThresholds validates a threshold update body. Either value out of
// range rejects the whole update.
func ParseThresholds(body []byte) (dhtmodels.ThresholdConfig, error) {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded == nil {
		return dhtmodels.ThresholdConfig{}, apperrors.Validation(MsgInvalidJSON)
	}

	fields, _ := decoded.(map[string]interface{})
	for _, name := range []string{"temp_threshold", "hum_threshold"} {
		if v, ok := fields[name]; !ok || v == nil {
			return dhtmodels.ThresholdConfig{}, apperrors.Validation("Missing JSON parameter: " + name)
		}
	}

	invalid := apperrors.Validation(MsgInvalidThresholds)

	temp, ok := coerceFloat(fields["temp_threshold"])
	if !ok {
		return dhtmodels.ThresholdConfig{}, invalid
	}
	hum, ok := coerceFloat(fields["hum_threshold"])
	if !ok {
		return dhtmodels.ThresholdConfig{}, invalid
	}

	thresholds := dhtmodels.ThresholdConfig{TempThreshold: temp, HumThreshold: hum}
	if err := GetValidator().Struct(thresholds); err != nil {
		return dhtmodels.ThresholdConfig{}, invalid
	}
	return thresholds, nil
}

// ParseCredentials checks login and registration fields are both present
func ParseCredentials(username, password string) error {
	if username == "" || password == "" {
		return apperrors.Validation(MsgMissingCredentials)
	}
	return nil
}

// ParseFetchParams resolves the device and row limit for a fetch request.
// Bad input falls back to defaults rather than failing.
func ParseFetchParams(deviceID, limit string) (int, int) {
	// device columns are 32-bit
	id64, err := strconv.ParseInt(strings.TrimSpace(deviceID), 10, 32)
	id := int(id64)
	if err != nil {
		id = DefaultDeviceID
	}

	n, err := strconv.Atoi(strings.TrimSpace(limit))
	if err != nil || n < 1 {
		n = DefaultFetchLimit
	}
	if n > MaxFetchLimit {
		n = MaxFetchLimit
	}
	return id, n
}

// ParseFloat parses a decimal number, rejecting NaN, infinities and hex forms
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !floatPattern.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func coerceFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case string:
		return ParseFloat(n)
	default:
		return 0, false
	}
}
