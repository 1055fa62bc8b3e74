package clients

import (
	"log/slog"

	"github.com/sony/gobreaker"

	"classroom-platform/dbinit/internal/config"
)

// NewCircuitBreaker returns a gobreaker for the named dependency. It opens
// after cfg.FailureThreshold consecutive failures and lets one trial request
// through once cfg.OpenTimeout has passed. Zero settings fall back to three
// failures and gobreaker's default timeout.
func NewCircuitBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "dependency", name, "from", from.String(), "to", to.String())
		},
	})
}
