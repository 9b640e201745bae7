package ingestor

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
)

// Breaker defaults: five consecutive connection failures open the circuit
// for thirty seconds
const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// newStoreBreaker guards the bridge's writes so an unreachable datastore
// is not hit once per queued message. Only connection failures trip it;
// a rejected row says nothing about datastore health.
func newStoreBreaker(log *logger.Logger) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "datastore",
		MaxRequests: 1,
		Timeout:     breakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.Is(err, apperrors.KindConnection)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
}
