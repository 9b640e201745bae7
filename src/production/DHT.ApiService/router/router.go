// Package router assembles the gin engine serving the gateway endpoints.
package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.ApiService/controllers"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.ApiService/middleware"
	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	ratelimit "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.RateLimit"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
	session "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Session"
)

// Deps are the collaborators the routes are served from
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	Store     interfaces.Store
	Sessions  session.Store
	Limiter   *ratelimit.Limiter
	Publisher controllers.ThresholdPublisher
	Broker    controllers.BrokerStatus
}

// New builds the engine with the shared middleware chain and every
// controller registered
func New(d Deps) *gin.Engine {
	cfg := d.Config

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(d.Logger))
	router.Use(middleware.Recovery(d.Logger))
	router.Use(cors.New(corsConfig(&cfg.CORS)))
	router.Use(middleware.JSONHeaders(allowsAnyOrigin(cfg.CORS.AllowedOrigins)))

	guards := controllers.RouteGuards{
		Session: session.Middleware(d.Sessions, &cfg.Session, d.Logger),
	}
	if d.Limiter != nil {
		guards.RateLimit = d.Limiter.Middleware()
	}

	legacy := cfg.Server.LegacyRoutes
	controllers.NewSensorController(d.Store, d.Publisher, d.Logger, guards).RegisterRoutes(router, legacy)
	controllers.NewFetchController(d.Store, d.Logger).RegisterRoutes(router, legacy)
	controllers.NewAuthController(d.Store, d.Sessions, cfg.Auth.BcryptCost, d.Logger, guards).RegisterRoutes(router, legacy)
	controllers.NewHealthController(d.Store, d.Broker, d.Logger).RegisterRoutes(router)

	return router
}

func corsConfig(c *config.CORSConfig) cors.Config {
	cc := cors.Config{
		AllowMethods: c.AllowedMethods,
		AllowHeaders: c.AllowedHeaders,
		MaxAge:       time.Duration(c.MaxAge) * time.Second,
	}
	if allowsAnyOrigin(c.AllowedOrigins) {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = c.AllowedOrigins
	}
	return cc
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return len(origins) == 0
}
