package container

import (
	"context"
	"fmt"
	"sync"

	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	ingestor "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.IngestorService/ingestor"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	ratelimit "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.RateLimit"
	implementation "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
	session "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Session"
)

// Container manages dependencies and their lifecycle
type Container struct {
	config *config.Config
	logger *logger.Logger

	store    interfaces.Store
	sessions session.Store
	limiter  *ratelimit.Limiter
	bridge   *ingestor.Bridge

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions, run in reverse order on shutdown
	cleanupFuncs []func() error
}

// NewContainer loads configuration from the environment and builds a container
func NewContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return New(cfg, logger.NewLogger(&cfg.Logging)), nil
}

// New builds a container around an existing configuration
func New(cfg *config.Config, log *logger.Logger) *Container {
	return &Container{
		config: cfg,
		logger: log,
	}
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetStore connects the configured datastore on first use and creates the
// schema when STORAGE_BOOTSTRAP is set
func (c *Container) GetStore(ctx context.Context) (interfaces.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		return c.store, nil
	}

	store, err := implementation.NewStore(c.config, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to datastore: %w", err)
	}

	if c.config.Storage.Bootstrap {
		if err := store.Bootstrap(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to bootstrap datastore: %w", err)
		}
		c.logger.Logger.Info().Str("backend", c.config.Storage.Backend).Msg("Datastore initialized successfully")
	}

	c.store = store
	c.cleanupFuncs = append(c.cleanupFuncs, store.Close)
	return c.store, nil
}

// GetSessionStore opens the configured session store on first use
func (c *Container) GetSessionStore() (session.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessions != nil {
		return c.sessions, nil
	}

	sessions, err := session.NewStore(&c.config.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	c.sessions = sessions
	c.cleanupFuncs = append(c.cleanupFuncs, sessions.Close)
	return c.sessions, nil
}

// GetLimiter returns the per-session rate limiter
func (c *Container) GetLimiter() (*ratelimit.Limiter, error) {
	sessions, err := c.GetSessionStore()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limiter == nil {
		c.limiter = ratelimit.NewLimiter(sessions, c.config.RateLimit.Interval, c.config.Session.TTL, c.logger)
	}
	return c.limiter, nil
}

// GetBridge starts the MQTT bridge on first use. It returns nil when
// MQTT_ENABLED is off.
func (c *Container) GetBridge(ctx context.Context) (*ingestor.Bridge, error) {
	if !c.config.MQTT.Enabled {
		return nil, nil
	}

	store, err := c.GetStore(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bridge != nil {
		return c.bridge, nil
	}

	bridge := ingestor.New(c.config.MQTT, c.config.GetMQTTBrokerURL(), store, c.logger)
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MQTT bridge: %w", err)
	}

	c.bridge = bridge
	c.cleanupFuncs = append(c.cleanupFuncs, func() error {
		bridge.Stop()
		return nil
	})
	return c.bridge, nil
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown releases everything the container opened, newest first, so the
// bridge drains into the store before the store closes
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}
