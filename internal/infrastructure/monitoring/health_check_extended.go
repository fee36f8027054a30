package monitoring

import (
	"context"
	"fmt"
	"time"

	"spacegate/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, timeout, true)
}

// AddBreakerCheck reports an open provider breaker. The service still answers
// (affected joins deny with verification_failed), so this only degrades.
func (h *HealthChecker) AddBreakerCheck(b *circuitbreaker.CircuitBreaker) {
	h.AddCheck("breaker:"+b.Name(), func(context.Context) (bool, error) {
		if state := b.GetState(); state == circuitbreaker.StateOpen {
			return false, fmt.Errorf("circuit %s", state)
		}
		return true, nil
	}, 0, false)
}
