package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.ApiService/middleware"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	metrics "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Metrics"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	api_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/api"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
)

// MsgConnectionFailed is sent when no datastore connection could be obtained
const MsgConnectionFailed = "Database connection failed."

// ThresholdPublisher pushes new thresholds out to field devices
type ThresholdPublisher interface {
	PublishThresholds(ctx context.Context, thresholds dhtmodels.ThresholdConfig) error
}

// NoopPublisher is used when the MQTT bridge is disabled
type NoopPublisher struct{}

func (NoopPublisher) PublishThresholds(ctx context.Context, thresholds dhtmodels.ThresholdConfig) error {
	return nil
}

// RouteGuards are the per-route middlewares controllers attach
type RouteGuards struct {
	Session   gin.HandlerFunc
	RateLimit gin.HandlerFunc
}

func (g RouteGuards) session() []gin.HandlerFunc {
	if g.Session == nil {
		return nil
	}
	return []gin.HandlerFunc{g.Session}
}

func (g RouteGuards) sessionAndLimit() []gin.HandlerFunc {
	handlers := g.session()
	if g.RateLimit != nil {
		handlers = append(handlers, g.RateLimit)
	}
	return handlers
}

// respondError writes the envelope for a classified error
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		c.JSON(appErr.StatusCode(), api_models.Failure(appErr.Public()))
		return
	}
	unexpected := &apperrors.Error{Kind: apperrors.KindUnknown}
	c.JSON(http.StatusInternalServerError, api_models.Failure(unexpected.Public()))
}

// acquireGateway reserves a datastore connection for the request. On
// failure it writes a 500 with message and returns false.
func acquireGateway(c *gin.Context, store interfaces.Store, log *logger.Logger, message string) (interfaces.Gateway, bool) {
	gw, err := store.Acquire(c.Request.Context())
	if err != nil {
		metrics.StoreAcquireFailures.Inc()
		log.Logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(c)).
			Str("path", c.Request.URL.Path).
			Msg("Database connection failed")
		c.JSON(http.StatusInternalServerError, api_models.Failure(message))
		return nil, false
	}
	return gw, true
}

// queryPtr returns nil for an absent query parameter
func queryPtr(c *gin.Context, key string) *string {
	if v, ok := c.GetQuery(key); ok {
		return &v
	}
	return nil
}

// requestLogger scopes the controller logger to the current request
func requestLogger(c *gin.Context, log *logger.Logger) *logger.Logger {
	return log.WithRequestID(middleware.GetRequestID(c))
}
