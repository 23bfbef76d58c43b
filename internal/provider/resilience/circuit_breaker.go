// Package resilience wraps the weather provider HTTP calls with a circuit
// breaker, timeouts and optional retries, and keeps per-provider health.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs and state-change callbacks.
	Name string

	// MaxRequests is the number of probes allowed in half-open state. Default: 1
	MaxRequests uint32

	// Interval is the cyclic period for clearing counts while closed.
	// Default: 0 (counts are only cleared on state changes)
	Interval time.Duration

	// Timeout is how long the circuit stays open. Default: 60 seconds
	Timeout time.Duration

	// ReadyToTrip decides when to open the circuit. Default: DefaultReadyToTrip
	ReadyToTrip func(counts gobreaker.Counts) bool

	// IsSuccessful classifies errors. Default: IgnoreCancellation
	IsSuccessful func(err error) bool

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the configuration used for both weather
// providers.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Timeout:      60 * time.Second,
		ReadyToTrip:  DefaultReadyToTrip,
		IsSuccessful: IgnoreCancellation,
	}
}

// DefaultReadyToTrip opens the circuit after three consecutive failures, or
// once at least five requests were made with a failure rate of 50% or more.
// Scheduled cycles call each provider rarely, so the consecutive rule is the
// one that usually fires.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= 3 {
		return true
	}
	if counts.Requests < 5 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

// IgnoreCancellation treats a canceled request as a success. A cycle that is
// aborted by shutdown or a caller says nothing about the provider.
func IgnoreCancellation(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		IsSuccessful:  cfg.IsSuccessful,
		OnStateChange: cfg.OnStateChange,
	}
	return gobreaker.NewCircuitBreaker[T](settings)
}
