package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.ApiService/controllers"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.ApiService/middleware"
	container "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Container"
)

// Runs the MQTT bridge on its own, for deployments where the broker side
// scales separately from the HTTP gateway. Only health and metrics are served.
func main() {
	ctr, err := container.NewContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	logger.Info("Starting MQTT Ingestor Service")

	if !config.MQTT.Enabled {
		logger.Warn("MQTT_ENABLED is false, nothing to do")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Storage.ConnectTimeout+10*time.Second)
	store, err := ctr.GetStore(ctx)
	cancel()
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize datastore")
	}

	bridge, err := ctr.GetBridge(context.Background())
	if err != nil {
		logger.FatalWithError(err, "Failed to start MQTT bridge")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Recovery(logger))
	controllers.NewHealthController(store, bridge, logger).RegisterRoutes(engine)

	srv := &http.Server{
		Addr:         ":" + config.Server.Port,
		Handler:      engine,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Health server starting on port " + config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start health server")
		}
	}()

	logger.Info("MQTT ingestor running... press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Health server forced to shutdown")
	}
}
