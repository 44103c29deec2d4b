package scan

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// LocationObserver reports the tab's live URL and signals changes. The
// Poller implements it for platforms without a navigation event; a native
// implementation can replace it.
type LocationObserver interface {
	Current() string
	Changes() <-chan string
}

// LocationSource returns the page's live location.
type LocationSource func() string

// Poller checks a LocationSource at a fixed interval, because SPA
// navigations do not always fire a browser event.
type Poller struct {
	source   LocationSource
	interval time.Duration
	clock    clockwork.Clock
	changes  chan string

	mu   sync.Mutex
	last string
}

func NewPoller(source LocationSource, interval time.Duration, clock clockwork.Clock) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		source:   source,
		interval: interval,
		clock:    clock,
		changes:  make(chan string, 1),
		last:     source(),
	}
}

func (p *Poller) Current() string {
	return p.source()
}

func (p *Poller) Changes() <-chan string {
	return p.changes
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.check()
		}
	}
}

func (p *Poller) check() {
	now := p.source()

	p.mu.Lock()
	changed := now != p.last
	if changed {
		p.last = now
	}
	p.mu.Unlock()

	if !changed {
		return
	}

	// Keep only the newest URL pending; the consumer needs the latest.
	select {
	case p.changes <- now:
	default:
		select {
		case <-p.changes:
		default:
		}
		select {
		case p.changes <- now:
		default:
		}
	}
}
