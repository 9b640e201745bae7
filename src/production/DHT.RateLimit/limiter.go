// Package ratelimit enforces a minimum spacing between requests made from
// the same session.
package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	metrics "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Metrics"
	api_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/api"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	session "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Session"
)

// Limiter compares each request against the last accepted request time
// stored in the session
type Limiter struct {
	mu       sync.Mutex
	store    session.Store
	interval time.Duration
	ttl      time.Duration
	logger   *logger.Logger
	nowFn    func() time.Time
}

// NewLimiter creates a limiter. An interval of zero disables limiting.
// ttl is used when a session has to be recreated.
func NewLimiter(store session.Store, interval, ttl time.Duration, log *logger.Logger) *Limiter {
	return &Limiter{
		store:    store,
		interval: interval,
		ttl:      ttl,
		logger:   log.WithComponent("ratelimit"),
		nowFn:    time.Now,
	}
}

// Allow reports whether the session may proceed. Accepted requests record
// the current time; rejected ones leave the stored time untouched.
func (l *Limiter) Allow(ctx context.Context, sessionID string) (bool, error) {
	if l.interval <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sess, err := l.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionExpired) {
		sess = session.New(l.ttl)
		sess.ID = sessionID
	} else if err != nil {
		return false, err
	}

	now := session.Unix(l.nowFn())
	if sess.LastRequestTime > 0 && now-sess.LastRequestTime < l.interval.Seconds() {
		return false, nil
	}

	sess.LastRequestTime = now
	if err := l.store.Save(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

// Middleware answers 429 for sessions that are too fast. Store failures
// let the request through so devices keep reporting.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := session.FromContext(c)
		if sess == nil {
			c.Next()
			return
		}

		allowed, err := l.Allow(c.Request.Context(), sess.ID)
		if err != nil {
			l.logger.Logger.Warn().Err(err).Str("session_id", sess.ID).Msg("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		if !allowed {
			metrics.RateLimitedTotal.Inc()
			rejected := &apperrors.Error{Kind: apperrors.KindRateLimit}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, api_models.Failure(rejected.Public()))
			return
		}

		c.Next()
	}
}
