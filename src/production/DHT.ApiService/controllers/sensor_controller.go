package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.ApiService/middleware"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	metrics "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Metrics"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	api_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/api"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
	validation "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Validation"
)

// Sensor endpoint messages
const (
	MsgThresholdsUpdated     = "Thresholds updated successfully."
	MsgThresholdUpdateFailed = "Database error updating thresholds."
	MsgInsertFailed          = "Database error inserting sensor data"
)

// SensorController serves the device endpoint: reading ingestion and
// threshold reads over GET, threshold writes from the app over POST
type SensorController struct {
	store     interfaces.Store
	publisher ThresholdPublisher
	logger    *logger.Logger
	guards    RouteGuards
}

// NewSensorController creates a new sensor controller
func NewSensorController(store interfaces.Store, publisher ThresholdPublisher, logger *logger.Logger, guards RouteGuards) *SensorController {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &SensorController{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent("sensor_controller"),
		guards:    guards,
	}
}

// RegisterRoutes registers the sensor routes with Gin
func (h *SensorController) RegisterRoutes(router *gin.Engine, legacy bool) {
	handlers := append([]gin.HandlerFunc{middleware.NoSniff()}, h.guards.sessionAndLimit()...)
	handlers = append(handlers, h.Handle)

	router.Any("/api/dht11", handlers...)
	if legacy {
		router.Any("/backend/dht11_api.php", handlers...)
	}
}

// Handle dispatches on method: POST writes thresholds, anything else reads
func (h *SensorController) Handle(c *gin.Context) {
	if c.Request.Method == http.MethodPost {
		h.UpdateThresholds(c)
		return
	}
	if _, ok := c.GetQuery("fetch_thresholds"); ok {
		h.FetchThresholds(c)
		return
	}
	h.Ingest(c)
}

// Ingest validates and stores one reading, echoing it with the current thresholds
func (h *SensorController) Ingest(c *gin.Context) {
	reading, err := validation.ParseReading(validation.ReadingInput{
		ID:    queryPtr(c, "id"),
		Temp:  queryPtr(c, "temp"),
		Hum:   queryPtr(c, "hum"),
		Relay: queryPtr(c, "relay"),
	})
	if err != nil {
		metrics.RecordRejectedReading(metrics.SourceHTTP, "validation")
		respondError(c, err)
		return
	}

	log := requestLogger(c, h.logger)
	gw, ok := acquireGateway(c, h.store, log, MsgConnectionFailed)
	if !ok {
		return
	}
	defer gw.Close()

	ctx := c.Request.Context()
	if err := gw.InsertReading(ctx, &reading); err != nil {
		metrics.RecordRejectedReading(metrics.SourceHTTP, "storage")
		log.Logger.Error().Err(err).Int("device_id", reading.DeviceID).Msg("Database error inserting DHT data")
		c.JSON(http.StatusInternalServerError, api_models.Failure(MsgInsertFailed))
		return
	}
	metrics.RecordReading(metrics.SourceHTTP)

	// failures already fell back to defaults
	thresholds, _ := gw.GetThresholds(ctx)

	stamp := reading.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}

	c.JSON(http.StatusOK, api_models.Success("", api_models.IngestData{
		DeviceID:      reading.DeviceID,
		Temperature:   reading.Temperature,
		Humidity:      reading.Humidity,
		RelayStatus:   reading.RelayStatus,
		Timestamp:     stamp.Local().Format(dhtmodels.TimestampLayout),
		TempThreshold: thresholds.TempThreshold,
		HumThreshold:  thresholds.HumThreshold,
	}))
}

// FetchThresholds returns the current thresholds, defaults when unset
func (h *SensorController) FetchThresholds(c *gin.Context) {
	log := requestLogger(c, h.logger)
	gw, ok := acquireGateway(c, h.store, log, MsgConnectionFailed)
	if !ok {
		return
	}
	defer gw.Close()

	thresholds, _ := gw.GetThresholds(c.Request.Context())
	c.JSON(http.StatusOK, api_models.Success("", api_models.FromThresholds(thresholds)))
}

// UpdateThresholds replaces the thresholds from a JSON body and pushes
// them to devices
func (h *SensorController) UpdateThresholds(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, apperrors.Validation(validation.MsgInvalidJSON))
		return
	}

	thresholds, err := validation.ParseThresholds(body)
	if err != nil {
		respondError(c, err)
		return
	}

	log := requestLogger(c, h.logger)
	gw, ok := acquireGateway(c, h.store, log, MsgConnectionFailed)
	if !ok {
		return
	}
	defer gw.Close()

	ctx := c.Request.Context()
	if err := gw.SetThresholds(ctx, thresholds.TempThreshold, thresholds.HumThreshold); err != nil {
		log.Logger.Error().Err(err).Msg("Database error updating thresholds")
		c.JSON(http.StatusInternalServerError, api_models.Failure(MsgThresholdUpdateFailed))
		return
	}
	metrics.ThresholdUpdatesTotal.Inc()

	if err := h.publisher.PublishThresholds(ctx, thresholds); err != nil {
		log.Logger.Warn().Err(err).Msg("Failed to publish thresholds to devices")
	}

	c.JSON(http.StatusOK, api_models.Success(MsgThresholdsUpdated, nil))
}
