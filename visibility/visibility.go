// Package visibility re-evaluates whether tracked elements still render,
// on a periodic timer, and pushes visibility transitions back into the
// drawing pipeline. Layout changes have no universal change notification,
// so polling is deliberate: the checker never re-runs the underlying
// scan, it only flips IsVisible flags and asks for a redraw.
package visibility

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hazyhaar/a11yview/dom"
	"github.com/hazyhaar/a11yview/results"
)

// Ticker is the minimal timer surface the checker needs. Production uses
// time.Ticker; tests inject a manually driven one.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker for a polling period.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// ChangeFunc is invoked after a tick that flipped at least one instance's
// visibility. The instances slice is the same one handed to
// CreateInterval, flags updated in place. It runs with Options.Guard
// held, so it may touch guarded state but must not lock the guard
// itself, and must not call Clear.
type ChangeFunc func(configID, visualizationType string, instances []*results.Instance)

// Options tunes a Checker.
type Options struct {
	// Interval is the polling period. Default: 600ms.
	Interval time.Duration
	// Jitter adds a random delay in [0, Jitter) before each check,
	// de-synchronizing many concurrent intervals. Default: 0.
	Jitter time.Duration
	// NewTicker overrides ticker construction for tests.
	NewTicker TickerFactory
	// Guard is held for the whole of each tick: the flag updates and the
	// change callback. The caller passes the lock that also protects its
	// drawing pipeline, so a tick never observes or mutates instance
	// flags concurrently with a draw. Default: a checker-local mutex.
	Guard sync.Locker
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 600 * time.Millisecond
	}
	if o.NewTicker == nil {
		o.NewTicker = newRealTicker
	}
	if o.Guard == nil {
		o.Guard = &sync.Mutex{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Checker owns at most one polling interval per configId. Safe for
// concurrent use.
type Checker struct {
	doc      dom.Document
	onChange ChangeFunc
	opts     Options

	mu        sync.Mutex
	intervals map[string]*interval
}

type interval struct {
	ticker  Ticker
	done    chan struct{}
	stopped chan struct{} // closed by run on exit; Clear joins on it
}

// New creates a Checker over doc. onChange is required: a checker that
// cannot trigger redraws has nothing to do.
func New(doc dom.Document, onChange ChangeFunc, opts Options) *Checker {
	opts.defaults()
	return &Checker{
		doc:       doc,
		onChange:  onChange,
		opts:      opts,
		intervals: make(map[string]*interval),
	}
}

// CreateInterval starts periodic visibility checks for configID over the
// given instances. An existing interval for the same id is cleared
// first — at most one interval per id, never a leak.
func (c *Checker) CreateInterval(configID, visualizationType string, instances []*results.Instance) {
	c.Clear(configID)

	iv := &interval{
		ticker:  c.opts.NewTicker(c.opts.Interval),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	c.mu.Lock()
	c.intervals[configID] = iv
	c.mu.Unlock()

	c.opts.Logger.Debug("visibility: interval created",
		"configId", configID, "instances", len(instances))

	go c.run(iv, configID, visualizationType, instances)
}

// Clear stops and removes the interval for configID, waiting for an
// in-flight tick to finish before returning: once Clear returns, no
// check or change callback for this id will run again. Clearing an id
// with no interval is a no-op. Must not be called from the change
// callback, which would wait on itself.
func (c *Checker) Clear(configID string) {
	c.mu.Lock()
	iv, ok := c.intervals[configID]
	if ok {
		delete(c.intervals, configID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	iv.ticker.Stop()
	close(iv.done)
	<-iv.stopped
	c.opts.Logger.Debug("visibility: interval cleared", "configId", configID)
}

// Active returns the configIds with a running interval.
func (c *Checker) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.intervals))
	for id := range c.intervals {
		ids = append(ids, id)
	}
	return ids
}

func (c *Checker) run(iv *interval, configID, visualizationType string, instances []*results.Instance) {
	defer close(iv.stopped)
	for {
		select {
		case <-iv.done:
			return
		case <-iv.ticker.C():
			if c.opts.Jitter > 0 {
				time.Sleep(rand.N(c.opts.Jitter))
			}
			c.opts.Guard.Lock()
			select {
			case <-iv.done:
				// Cleared while waiting for the guard; the caller may
				// already be tearing down the layout this tick targets.
				c.opts.Guard.Unlock()
				return
			default:
			}
			if c.checkOnce(instances) {
				c.onChange(configID, visualizationType, instances)
			}
			c.opts.Guard.Unlock()
		}
	}
}

// checkOnce re-resolves every instance's target and updates IsVisible in
// place. Returns true when at least one flag changed. An element that no
// longer resolves is simply not visible; that is a state, not an error.
func (c *Checker) checkOnce(instances []*results.Instance) bool {
	changed := false
	for _, inst := range instances {
		visible := false
		if el, ok := c.doc.QuerySelector(inst.Target); ok {
			visible = el.Visible()
		}
		if inst.IsVisible == nil || *inst.IsVisible != visible {
			v := visible
			inst.IsVisible = &v
			changed = true
		}
	}
	return changed
}
