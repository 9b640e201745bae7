package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
)

// BrokerStatus reports whether the MQTT bridge is connected
type BrokerStatus interface {
	IsConnected() bool
}

// HealthController handles liveness, readiness and metrics requests
type HealthController struct {
	store       interfaces.Store
	broker      BrokerStatus
	pingTimeout time.Duration
	logger      *logger.Logger
}

// NewHealthController creates a new health controller. broker may be nil
// when the MQTT bridge is disabled.
func NewHealthController(store interfaces.Store, broker BrokerStatus, logger *logger.Logger) *HealthController {
	return &HealthController{
		store:       store,
		broker:      broker,
		pingTimeout: 2 * time.Second,
		logger:      logger.WithComponent("health_controller"),
	}
}

// RegisterRoutes registers the health routes with Gin
func (h *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", h.HealthLive)
	router.GET("/health/ready", h.HealthReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *HealthController) HealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// HealthReady fails when the datastore is unreachable. A disconnected
// broker is reported but does not fail readiness since HTTP ingest still works.
func (h *HealthController) HealthReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
	defer cancel()

	dbOK := true
	if err := h.store.Ping(ctx); err != nil {
		dbOK = false
		h.logger.Logger.Warn().Err(err).Msg("Readiness check: datastore unreachable")
	}

	body := gin.H{"db": dbOK}
	if h.broker != nil {
		body["mqtt"] = h.broker.IsConnected()
	}

	if !dbOK {
		body["status"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}
