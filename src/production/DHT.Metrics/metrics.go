package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reading sources
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dht_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dht_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dht_rate_limited_requests_total",
			Help: "Requests rejected because the session sent another within the rate limit interval",
		},
	)

	// Sensor Metrics
	ReadingsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dht_readings_ingested_total",
			Help: "Sensor readings stored, by source",
		},
		[]string{"source"},
	)

	ReadingsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dht_readings_rejected_total",
			Help: "Sensor readings refused by validation or storage, by source and reason",
		},
		[]string{"source", "reason"},
	)

	ThresholdUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dht_threshold_updates_total",
			Help: "Successful threshold updates",
		},
	)

	// Auth Metrics
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dht_login_attempts_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dht_registrations_total",
			Help: "Registration attempts by result",
		},
		[]string{"result"},
	)

	// Datastore Metrics
	StoreAcquireFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dht_store_acquire_failures_total",
			Help: "Requests that could not obtain a datastore connection",
		},
	)

	// MQTT Metrics
	MQTTMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dht_mqtt_messages_total",
			Help: "MQTT messages handled by the bridge, by result",
		},
		[]string{"result"},
	)

	MQTTQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dht_mqtt_queue_depth",
			Help: "Messages waiting to be written",
		},
	)
)

// RecordHTTPRequest records one finished request
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordReading counts a stored reading
func RecordReading(source string) {
	ReadingsIngestedTotal.WithLabelValues(source).Inc()
}

// RecordRejectedReading counts a reading that was not stored
func RecordRejectedReading(source, reason string) {
	ReadingsRejectedTotal.WithLabelValues(source, reason).Inc()
}

// RecordLogin counts a login attempt
func RecordLogin(result string) {
	LoginAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordRegistration counts a registration attempt
func RecordRegistration(result string) {
	RegistrationsTotal.WithLabelValues(result).Inc()
}

// RecordMQTTMessage counts a bridge message
func RecordMQTTMessage(result string) {
	MQTTMessagesTotal.WithLabelValues(result).Inc()
}
