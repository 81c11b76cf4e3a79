package resilience

import (
	"time"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/config"
)

// RetryFromConfig builds the job store write retry policy.
func RetryFromConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	return cfg
}

// CircuitFromConfig builds the research provider breaker settings.
func CircuitFromConfig(c config.ResearchConfig) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if c.CircuitFailureThreshold > 0 {
		cfg.FailureThreshold = c.CircuitFailureThreshold
	}
	if c.CircuitResetSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.CircuitResetSecs) * time.Second
	}
	return cfg
}
