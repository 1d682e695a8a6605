package classify

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("classifier circuit breaker open")

type BreakerConfig struct {
	Timeout          time.Duration // hard timeout per call
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half_open"
)

// Protected wraps a remote classifier with a per-call timeout and a circuit
// breaker.
type Protected struct {
	inner Classifier
	cfg   BreakerConfig
	now   func() time.Time

	mu                  sync.Mutex
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewProtected(inner Classifier, cfg BreakerConfig) *Protected {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &Protected{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: stateClosed,
	}
}

func (p *Protected) Classify(ctx context.Context, text string) (string, error) {
	if !p.allowRequest() {
		return "", ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	label, err := p.inner.Classify(callCtx, text)

	p.afterRequest(err)

	return label, err
}

// State is exposed for the readiness endpoint and tests.
func (p *Protected) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.state)
}

func (p *Protected) allowRequest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateClosed:
		return true
	case stateOpen:
		if p.now().Sub(p.openedAt) >= p.cfg.Cooldown {
			p.state = stateHalfOpen
			p.halfOpenInFlight = 1
			return true
		}
		return false
	case stateHalfOpen:
		if p.halfOpenInFlight >= p.cfg.HalfOpenMaxCalls {
			return false
		}
		p.halfOpenInFlight++
		return true
	default:
		return true
	}
}

func (p *Protected) afterRequest(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateHalfOpen && p.halfOpenInFlight > 0 {
		p.halfOpenInFlight--
	}

	// a definite "no label" is a healthy answer
	if err == nil || !Retryable(err) {
		p.consecutiveFailures = 0
		p.state = stateClosed
		return
	}

	p.consecutiveFailures++

	if p.state == stateHalfOpen {
		p.state = stateOpen
		p.openedAt = p.now()
		return
	}

	if p.consecutiveFailures >= p.cfg.FailureThreshold {
		p.state = stateOpen
		p.openedAt = p.now()
	}
}
