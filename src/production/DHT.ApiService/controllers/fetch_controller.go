package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.ApiService/middleware"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	dhtmodels "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models"
	api_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/api"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
	validation "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Validation"
)

// FetchController serves chart data to the mobile app
type FetchController struct {
	store  interfaces.Store
	logger *logger.Logger
}

// NewFetchController creates a new fetch controller
func NewFetchController(store interfaces.Store, logger *logger.Logger) *FetchController {
	return &FetchController{
		store:  store,
		logger: logger.WithComponent("fetch_controller"),
	}
}

// RegisterRoutes registers the fetch routes with Gin
func (h *FetchController) RegisterRoutes(router *gin.Engine, legacy bool) {
	router.GET("/api/dht11/readings", middleware.NoSniff(), middleware.DenyFraming(), h.Fetch)
	if legacy {
		router.GET("/backend/dht11_fetch.php", middleware.NoSniff(), middleware.DenyFraming(), h.Fetch)
	}
}

// Fetch returns the latest readings of a device oldest first, plus the
// thresholds when they could be read
func (h *FetchController) Fetch(c *gin.Context) {
	deviceID, limit := validation.ParseFetchParams(c.Query("device_id"), c.Query("limit"))

	log := requestLogger(c, h.logger).WithField("device_id", deviceID)
	gw, ok := acquireGateway(c, h.store, log, MsgConnectionFailed)
	if !ok {
		return
	}
	defer gw.Close()

	ctx := c.Request.Context()
	readings, err := gw.FetchLatestReadings(ctx, deviceID, limit)
	if err != nil {
		log.Logger.Error().Err(err).Msg("Could not fetch readings, answering with an empty set")
		readings = []dhtmodels.SensorReading{}
	}

	resp := api_models.FetchResponse{
		Status:   api_models.StatusSuccess,
		DeviceID: deviceID,
		Count:    len(readings),
		Data:     readings,
	}

	thresholds, err := gw.GetThresholds(ctx)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("Could not fetch thresholds, omitting them from the response")
	} else {
		resp.TempThreshold = &thresholds.TempThreshold
		resp.HumThreshold = &thresholds.HumThreshold
	}

	c.JSON(http.StatusOK, resp)
}
