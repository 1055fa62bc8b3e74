package clients

import (
	"github.com/sony/gobreaker"

	"classroom-platform/dbinit/internal/config"
)

// testBreaker returns a breaker with the package defaults (three failures).
func testBreaker(name string) *gobreaker.CircuitBreaker {
	return NewCircuitBreaker(name, config.BreakerConfig{})
}
