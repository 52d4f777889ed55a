package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/Mujanati13/Qabalan-sub007/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyCheckoutBucket = "checkout:session:order:%s"
	keyCheckoutLock   = "checkout:session:lock:%s"

	checkoutBurst   = 5
	checkoutRate    = 0.1
	checkoutLockTTL = 15 * time.Second
)

var (
	ErrTooManyAttempts = errors.New("too many payment attempts")
	ErrLocked          = errors.New("payment session already in progress")
)

// Limiter guards checkout session creation per order.
type Limiter interface {
	// Allow takes one session-creation token for the order.
	Allow(ctx context.Context, orderID string) (Decision, error)
	// Acquire holds the per-order session lock. The returned release func is
	// never nil.
	Acquire(ctx context.Context, orderID string) (release func(), err error)
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Metrics   *metrics.Metrics `optional:"true"`
}

// NewLimiter returns a redis-backed limiter when rate limiting is enabled and
// a no-op limiter otherwise.
func NewLimiter(p Params) (Limiter, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ratelimit")

	limitCfg := p.Config.RateLimit
	if !limitCfg.Enabled {
		log.Info("checkout rate limiting disabled")
		return noopLimiter{}, nil
	}
	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}

	return NewCheckoutLimiter(client, log, p.Metrics), nil
}

// CheckoutLimiter allows a small burst of session creations per order and
// serialises negotiation for the same order across instances. Redis failures
// fail open.
type CheckoutLimiter struct {
	bucket  *TokenBucket
	locker  *Locker
	log     *zap.Logger
	metrics *metrics.Metrics
	burst   int
	rate    float64
	lockTTL time.Duration
}

func NewCheckoutLimiter(client redis.UniversalClient, log *zap.Logger, m *metrics.Metrics) *CheckoutLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		log:     log,
		metrics: m,
		burst:   checkoutBurst,
		rate:    checkoutRate,
		lockTTL: checkoutLockTTL,
	}
}

func (l *CheckoutLimiter) Allow(ctx context.Context, orderID string) (Decision, error) {
	key := fmt.Sprintf(keyCheckoutBucket, strings.TrimSpace(orderID))
	decision, err := l.bucket.Take(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("checkout rate limit check failed, allowing request",
			zap.String("order_id", orderID), zap.Error(err))
		return Decision{Allowed: true, Limit: l.burst}, nil
	}
	if !decision.Allowed {
		l.metrics.RecordRateLimitDenied(ctx, "session", "bucket_empty")
		return decision, ErrTooManyAttempts
	}
	return decision, nil
}

func (l *CheckoutLimiter) Acquire(ctx context.Context, orderID string) (func(), error) {
	key := fmt.Sprintf(keyCheckoutLock, strings.TrimSpace(orderID))
	token, ok, err := l.locker.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		l.log.Warn("checkout lock unavailable, continuing without it",
			zap.String("order_id", orderID), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		l.metrics.RecordRateLimitDenied(ctx, "session", "locked")
		return func() {}, ErrLocked
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.locker.Release(releaseCtx, key, token); err != nil {
			l.log.Warn("failed to release checkout lock", zap.String("order_id", orderID), zap.Error(err))
		}
	}, nil
}

type noopLimiter struct{}

func NewNoopLimiter() Limiter { return noopLimiter{} }

func (noopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (noopLimiter) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
