// Package ingestor bridges DHT11 devices that report over MQTT into the
// gateway datastore.
package ingestor

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	validation "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Validation"
)

// DeviceFromTopic matches topic against a subscription pattern with one
// single-level wildcard and returns the segment the wildcard matched,
// e.g. pattern dht11/+/reading and topic dht11/101/reading yield "101".
func DeviceFromTopic(pattern, topic string) (string, bool) {
	want := strings.Split(pattern, "/")
	got := strings.Split(topic, "/")
	if len(want) != len(got) {
		return "", false
	}

	device := ""
	for i, seg := range want {
		switch {
		case seg == "+":
			if got[i] == "" {
				return "", false
			}
			device = got[i]
		case seg != got[i]:
			return "", false
		}
	}
	return device, device != ""
}

// ParsePayload decodes {"temp":..,"hum":..,"relay":".."} and validates it
// with the same rules as the HTTP ingest endpoint. Numbers may be sent as
// JSON numbers or strings.
func ParsePayload(deviceID string, payload []byte) (dhtmodels.SensorReading, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return dhtmodels.SensorReading{}, apperrors.Validation(validation.MsgInvalidJSON)
	}

	return validation.ParseReading(validation.ReadingInput{
		ID:    &deviceID,
		Temp:  field(fields, "temp"),
		Hum:   field(fields, "hum"),
		Relay: field(fields, "relay"),
	})
}

// field renders a payload value the way it would arrive in a query string.
// Values that are neither numbers nor strings become unparseable.
func field(fields map[string]interface{}, key string) *string {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil
	}

	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = "invalid"
	}
	return &s
}
