package httpsource

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/kinship/internal/storage"
)

// ErrCircuitOpen is returned when the archive host has failed repeatedly and
// requests are being rejected without contacting it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the configuration for the circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 5
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning to half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of trial requests allowed while half-open.
	// Default: 1
	HalfOpenMaxSuccesses uint32
}

func (c *BreakerConfig) normalize() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxSuccesses == 0 {
		c.HalfOpenMaxSuccesses = 1
	}
}

// breaker wraps gobreaker so that a dead archive host is not hammered by
// every frontier expansion. It never retries: a rejected or failed call is
// returned to the caller immediately.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(name string, config BreakerConfig) *breaker {
	config.normalize()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		// A missing or unparsable document is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, storage.ErrNotFound) ||
				errors.Is(err, storage.ErrMalformed) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("httpsource: circuit %s %s -> %s", name, from, to)
		},
	}
	return &breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *breaker) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns "closed", "open", or "half-open".
func (b *breaker) state() string {
	switch b.cb.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
