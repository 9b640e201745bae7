package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.ApiService/controllers"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.ApiService/router"
	container "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Container"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	logger.Logger.Info().Str("backend", config.Storage.Backend).Msg("Starting DHT11 gateway")

	ctx, cancel := context.WithTimeout(context.Background(), config.Storage.ConnectTimeout+10*time.Second)
	defer cancel()

	store, err := ctr.GetStore(ctx)
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize datastore")
	}

	sessions, err := ctr.GetSessionStore()
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize session store")
	}

	limiter, err := ctr.GetLimiter()
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize rate limiter")
	}

	deps := router.Deps{
		Config:    config,
		Logger:    logger,
		Store:     store,
		Sessions:  sessions,
		Limiter:   limiter,
		Publisher: controllers.NoopPublisher{},
	}

	// The bridge outlives the startup timeout, so it gets its own context
	bridge, err := ctr.GetBridge(context.Background())
	if err != nil {
		logger.FatalWithError(err, "Failed to start MQTT bridge")
	}
	if bridge != nil {
		deps.Publisher = bridge
		deps.Broker = bridge
	}

	srv := &http.Server{
		Addr:         ":" + config.Server.Port,
		Handler:      router.New(deps),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server starting on port " + config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	logger.Info("Gateway running... press Ctrl+C to stop")

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
}
