package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/samaecole/backend/core"
	metricsvc "github.com/samaecole/backend/services/metrics"
)

const limiterPrefix = "samaecole:ratelimit"

var errTooManyRequests = echo.NewHTTPError(http.StatusTooManyRequests, "Trop de tentatives. Réessayez dans quelques minutes.")

func newMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          limiterPrefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
}

// NewLimiterStore shares rate limits between API instances through redis when a redis URL is configured.
// The returned client, if any, must be closed by the caller.
func NewLimiterStore(conf *core.Config) (limiter.Store, *redis.Client, error) {
	if conf.Redis.URL == "" {
		return newMemoryStore(), nil, nil
	}
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing redis url")
	}
	client := redis.NewClient(opts)
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   limiterPrefix,
		MaxRetry: limiter.DefaultMaxRetry,
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "creating redis limiter store")
	}
	return store, client, nil
}

// rateLimitMiddleware limits the requests of each client IP on the routes it guards.
// scope keeps the counters of differently limited routes apart.
func rateLimitMiddleware(store limiter.Store, formatted, scope string, logger core.Logger) echo.MiddlewareFunc {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		logger.Warn("rate limit disabled: invalid rate "+strconv.Quote(formatted), err, map[string]interface{}{"scope": scope})
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	lmt := limiter.New(store, rate)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := scope + ":" + ctx.RealIP()
			lctx, err := lmt.Get(ctx.Request().Context(), key)
			if err != nil {
				logger.Error("checking rate limit", errors.Wrap(err, "checking rate limit"))
				return next(ctx)
			}

			h := ctx.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
			if lctx.Reached {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// metricsMiddleware observes the latency of every request by route pattern.
func metricsMiddleware(metrics *metricsvc.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err) // commits the response so its status is known
			}
			metrics.ObserveRequest(ctx.Request().Method, ctx.Path(), ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
