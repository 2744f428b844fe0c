// Package poll backstops the live channel by periodically fetching messages
// newer than the last-seen watermark and feeding them through the same
// reconciliation path as pushed events.
package poll

import (
	"sync"
	"time"
)

const (
	// IntervalDown is the aggressive cadence while the live channel is
	// degraded and polling is the primary delivery path.
	IntervalDown = 5 * time.Second
	// IntervalUp is the relaxed safety-net cadence while the live channel
	// is healthy.
	IntervalUp = 30 * time.Second
)

// Poller drives a fetch callback on an interval that adapts to channel
// health. The callback is expected to filter and reconcile on its own.
type Poller struct {
	fetch func()

	intervalDown time.Duration
	intervalUp   time.Duration

	mu        sync.Mutex
	connected bool
	active    bool
	stopped   bool

	kick chan struct{}
	done chan struct{}
}

func New(fetch func()) *Poller {
	return newWithIntervals(fetch, IntervalDown, IntervalUp)
}

func newWithIntervals(fetch func(), down, up time.Duration) *Poller {
	return &Poller{
		fetch:        fetch,
		intervalDown: down,
		intervalUp:   up,
		kick:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

func (p *Poller) Start() {
	go p.run()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	close(p.done)
}

// SetConnected adjusts cadence to live channel health. A pending relaxed
// timer is rearmed immediately so degradation takes effect without waiting
// out the long interval.
func (p *Poller) SetConnected(connected bool) {
	p.mu.Lock()
	p.connected = connected
	p.mu.Unlock()
	p.wake()
}

// SetActive suspends or resumes polling. Polling runs only while a customer
// id exists and the conversation view is showing.
func (p *Poller) SetActive(active bool) {
	p.mu.Lock()
	p.active = active
	p.mu.Unlock()
	p.wake()
}

func (p *Poller) run() {
	for {
		p.mu.Lock()
		interval := p.intervalUp
		if !p.connected {
			interval = p.intervalDown
		}
		p.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-p.done:
			timer.Stop()
			return
		case <-p.kick:
			timer.Stop()
			continue
		case <-timer.C:
		}

		p.mu.Lock()
		active := p.active
		p.mu.Unlock()
		if active {
			p.fetch()
		}
	}
}

func (p *Poller) wake() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}
