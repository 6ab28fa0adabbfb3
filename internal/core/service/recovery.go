package service

import (
	"time"

	"github.com/berfenger/apsystems2mqtt/internal/core/port"
)

const (
	DEFAULT_RECOVERY_ATTEMPTS = 2
	DEFAULT_RECOVERY_DELAY    = 3 * time.Second
)

// FixedDelayPolicy waits the same interval before every retry. No backoff
// growth, no jitter.
type FixedDelayPolicy struct {
	Attempts int
	Interval time.Duration
}

func DefaultRecoveryPolicy() FixedDelayPolicy {
	return FixedDelayPolicy{
		Attempts: DEFAULT_RECOVERY_ATTEMPTS,
		Interval: DEFAULT_RECOVERY_DELAY,
	}
}

func (p FixedDelayPolicy) MaxAttempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

func (p FixedDelayPolicy) Delay(attempt int) time.Duration {
	return p.Interval
}

// ensure interface compliance
var _ port.RecoveryPolicy = FixedDelayPolicy{}
