package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
)

// ContextKey is the gin context key the current session is stored under
const ContextKey = "session"

// Middleware resolves the session named by the cookie, starting a new one
// when the cookie is missing, unknown or expired.
func Middleware(store Store, cfg *config.SessionConfig, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var sess *Session
		if id, err := c.Cookie(cfg.CookieName); err == nil && id != "" {
			found, err := store.Get(ctx, id)
			switch {
			case err == nil:
				sess = found
			case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
			default:
				log.Logger.Error().Err(err).Msg("Session lookup error")
			}
		}

		if sess == nil {
			sess = New(cfg.TTL)
			if err := store.Save(ctx, sess); err != nil {
				log.Logger.Error().Err(err).Msg("Failed to create session")
			}
			setCookie(c, cfg, sess)
		} else if time.Until(sess.ExpiresAt) < cfg.TTL/2 {
			// Sliding expiry, refreshed once half the TTL has elapsed. Only the
			// expiry is written; the copy read above may already be stale.
			expiresAt := time.Now().Add(cfg.TTL)
			if err := store.Touch(ctx, sess.ID, expiresAt); err != nil {
				log.Logger.Error().Err(err).Msg("Failed to extend session")
			} else {
				sess.ExpiresAt = expiresAt
				setCookie(c, cfg, sess)
			}
		}

		c.Set(ContextKey, sess)
		c.Next()
	}
}

func setCookie(c *gin.Context, cfg *config.SessionConfig, sess *Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.CookieName, sess.ID, int(cfg.TTL.Seconds()), "/", "", cfg.SecureCookie, true)
}

// FromContext returns the session resolved by Middleware, nil when absent
func FromContext(c *gin.Context) *Session {
	v, ok := c.Get(ContextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*Session)
	return sess
}
