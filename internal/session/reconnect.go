package session

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pairforge/agent/internal/models"
)

// reconnectPolicy bounds the transparent reopen loop for one request.
// Each transient close consumes one attempt; waits grow exponentially
// with jitter and never drop below the per-reason settle delay.
type reconnectPolicy struct {
	maxAttempts    int
	attempts       int
	restartDelay   time.Duration
	reconnectDelay time.Duration
	exp            *backoff.ExponentialBackOff
}

func newReconnectPolicy(maxAttempts int, restartDelay, reconnectDelay time.Duration) *reconnectPolicy {

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = reconnectDelay
	exp.MaxInterval = 30 * time.Second
	exp.MaxElapsedTime = 0 // the attempt counter is the bound, not wall time
	exp.Reset()

	return &reconnectPolicy{
		maxAttempts:    maxAttempts,
		restartDelay:   restartDelay,
		reconnectDelay: reconnectDelay,
		exp:            exp,
	}
}

// Next returns how long to wait before the next reopen, or false when
// the attempts are exhausted.
func (p *reconnectPolicy) Next(reason models.CloseReason) (time.Duration, bool) {

	if p.attempts >= p.maxAttempts {
		return 0, false
	}
	p.attempts++

	wait := p.exp.NextBackOff()

	floor := p.reconnectDelay
	if reason == models.CloseRestartRequired {
		floor = p.restartDelay
	}
	if wait < floor {
		wait = floor
	}

	return wait, true
}

// Attempts reports how many reopens have been consumed.
func (p *reconnectPolicy) Attempts() int {
	return p.attempts
}
