package sdk

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls exponential backoff for verification retries after
// transport failures. A failed verification never transitions the session;
// it only delays the next attempt.
type RetryConfig struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		BaseBackoff: 5 * time.Second,
		MaxBackoff:  2 * time.Minute,
	}
}

func (r RetryConfig) normalized() RetryConfig {
	def := defaultRetryConfig()
	cfg := r
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return cfg
}

// backoffDelay returns the delay before the next verification attempt after
// the given number of consecutive transport failures.
func (r RetryConfig) backoffDelay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	exp := failures - 1
	base := float64(r.BaseBackoff) * math.Pow(2, float64(exp))
	cap := float64(r.MaxBackoff)
	if base > cap {
		base = cap
	}
	// jitter 0.5x..1.5x
	jitter := 0.5 + rand.Float64()
	d := time.Duration(base * jitter)
	if d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	return d
}
