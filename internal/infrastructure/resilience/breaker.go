package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrBreakerOpen is returned while the breaker refuses attempts.
	ErrBreakerOpen = errors.New("uplink breaker is open")
	// ErrProbeQuota is returned when half-open probe slots are taken.
	ErrProbeQuota = errors.New("uplink breaker probe quota exhausted")
)

// State represents the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the breaker behavior.
type Settings struct {
	// TripStreak is the consecutive-failure count that opens the breaker.
	TripStreak int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// ProbeQuota is the number of attempts allowed in half-open state.
	ProbeQuota int
	// OnStateChange is called whenever the state changes.
	OnStateChange func(from, to State)
}

// Counts holds breaker statistics.
type Counts struct {
	Attempts            uint32
	TotalSuccesses      uint32
	TotalFailures       uint32
	ConsecutiveFailures uint32
}

// Breaker gates uplink transmission attempts.
type Breaker struct {
	settings Settings

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// New creates a breaker with the given settings.
func New(settings Settings) *Breaker {
	if settings.TripStreak <= 0 {
		settings.TripStreak = 3
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 5 * time.Second
	}
	if settings.ProbeQuota <= 0 {
		settings.ProbeQuota = 1
	}
	return &Breaker{settings: settings, state: StateClosed}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// Counts returns a copy of the internal counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs attempt if the breaker allows it and records the outcome.
func (b *Breaker) Do(attempt func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := attempt()
	b.after(err == nil)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState(time.Now()) {
	case StateOpen:
		return ErrBreakerOpen
	case StateHalfOpen:
		if b.counts.Attempts >= uint32(b.settings.ProbeQuota) {
			return ErrProbeQuota
		}
	}
	b.counts.Attempts++
	return nil
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)

	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			b.setState(StateClosed, now)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	switch state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= uint32(b.settings.TripStreak) {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && b.expiry.Before(now) {
		b.setState(StateHalfOpen, now)
	}
	return b.state
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state

	switch state {
	case StateOpen:
		b.expiry = now.Add(b.settings.Cooldown)
	case StateHalfOpen, StateClosed:
		b.expiry = time.Time{}
		b.counts.Attempts = 0
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(prev, state)
	}
}
