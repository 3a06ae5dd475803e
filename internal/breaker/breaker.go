// Package breaker builds the circuit breakers guarding third-party calls
// that a report can live without for a while.
package breaker

import (
	"time"

	"github.com/sony/gobreaker"
)

const (
	Interval            = 60 * time.Second
	Timeout             = 60 * time.Second
	ConsecutiveFailures = 3
)

// New returns a breaker that opens after ConsecutiveFailures failures in a
// row and probes again after Timeout. When isSuccessful is non-nil, errors
// it accepts do not count as failures.
func New(name string, isSuccessful func(error) bool) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:     name,
		Interval: Interval,
		Timeout:  Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= ConsecutiveFailures
		},
	}
	if isSuccessful != nil {
		settings.IsSuccessful = isSuccessful
	}
	return gobreaker.NewCircuitBreaker(settings)
}
