package worker

import (
	"context"
	"time"
)

// Pacer releases a worker at a fixed rate, corrected against an
// absolute reference instant rather than elapsed sleep time. Late
// cycles do not shift subsequent release points unless the pacer has
// fallen more than one full period behind, in which case it resets to
// now instead of bursting to catch up.
type Pacer struct {
	period   time.Duration
	next     time.Time
	overruns uint64
}

// NewPacer creates a pacer whose first release is one period from now.
func NewPacer(period time.Duration) *Pacer {
	return &Pacer{period: period, next: time.Now().Add(period)}
}

// Wait blocks until the next release point. It returns false when ctx
// is cancelled before release.
func (p *Pacer) Wait(ctx context.Context) bool {
	d := time.Until(p.next)
	if d < 0 {
		p.overruns++
		if -d > p.period {
			p.next = time.Now()
		}
		d = 0
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		p.next = p.next.Add(p.period)
		return true
	case <-ctx.Done():
		return false
	}
}

// Overruns reports how many releases fired late.
func (p *Pacer) Overruns() uint64 { return p.overruns }
