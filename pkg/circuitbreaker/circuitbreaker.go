// Package circuitbreaker adapts sony/gobreaker to the provider clients.
// A tripped breaker rejects calls immediately so a dead provider API turns
// into a fast verification_failed instead of a stalled join.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Normal operation, requests pass through
	StateHalfOpen              // Testing if service recovered, limited requests allowed
	StateOpen                  // Circuit is open, requests fail immediately
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrOpen            = gobreaker.ErrOpenState
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// Config holds circuit breaker configuration
type Config struct {
	Name                string
	FailureThreshold    uint32        // Consecutive failures before opening circuit
	Timeout             time.Duration // Time to wait before transitioning from open to half-open
	Interval            time.Duration // Closed-state count reset period; 0 keeps counts until a state change
	MaxRequestsHalfOpen uint32        // Max requests allowed in half-open state

	// IsSuccessful classifies a returned error. Errors it accepts do not count
	// toward tripping; nil means every non-nil error is a failure.
	IsSuccessful func(err error) bool
	// IsExcluded drops an error from the counts entirely, neither success
	// nor failure. nil excludes nothing.
	IsExcluded func(err error) bool

	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		Timeout:             30 * time.Second,
		Interval:            time.Minute,
		MaxRequestsHalfOpen: 1,
	}
}

type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

func New(cfg Config) *CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.MaxRequestsHalfOpen,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		IsSuccessful: cfg.IsSuccessful,
		IsExcluded:   cfg.IsExcluded,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if cfg.OnStateChange != nil {
		onChange := cfg.OnStateChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, fromGobreaker(from), fromGobreaker(to))
		}
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Execute runs fn unless the breaker is open. A cancelled context is
// returned without touching the breaker counts.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func (b *CircuitBreaker) Name() string {
	return b.cb.Name()
}

func (b *CircuitBreaker) GetState() State {
	return fromGobreaker(b.cb.State())
}

// ConsecutiveFailures reports the current failure streak.
func (b *CircuitBreaker) ConsecutiveFailures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

// IsRejected reports whether err came from the breaker refusing the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrTooManyRequests)
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
