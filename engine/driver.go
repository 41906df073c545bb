package engine

import (
	"time"
)

// defaultIntervalMS is the default normal-mode tick interval (§4.5).
const defaultIntervalMS = 10

// flushIntervalMS is the fixed wall-clock update-flush interval (§4.4).
const flushIntervalMS = 25

// tickDriver runs one of the two mutually exclusive drive modes described
// in §4.5. Grounded on vcs/vcs_main.go's goroutine-wrapped main loop: a
// single goroutine owns the ticker and is torn down by closing stop.
type tickDriver struct {
	stop chan struct{}
	done chan struct{}
	fast bool // True for the StartFast driver.
}

func (d *tickDriver) Stop() {
	if d == nil {
		return
	}
	close(d.stop)
	<-d.done
}

// StartNormal installs the normal-mode driver (§4.5): every intervalMS,
// run exactly one UpdateGates() step. start()/startFast() each call Stop
// on any existing driver first, since "start/startFast is exclusive"
// (design note).
func (e *Engine) StartNormal(intervalMS int) {
	e.mu.Lock()
	if intervalMS <= 0 {
		intervalMS = defaultIntervalMS
	}
	e.intervalMS = intervalMS
	prev := e.driver
	e.mu.Unlock()
	prev.Stop()

	d := &tickDriver{stop: make(chan struct{}), done: make(chan struct{})}
	e.mu.Lock()
	e.driver = d
	e.mu.Unlock()

	go func() {
		defer close(d.done)
		t := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-t.C:
				e.mu.Lock()
				_ = e.sched.UpdateGates()
				e.mu.Unlock()
			}
		}
	}()
}

// StartFast installs the fast-mode driver (§4.5): every 10ms, call
// UpdateGatesNext repeatedly while HasPendingEvents() and less than 10ms
// of wall time has elapsed in the current burst. Idle ticks are never
// inserted; time advances only by events.
func (e *Engine) StartFast() {
	e.mu.Lock()
	prev := e.driver
	e.mu.Unlock()
	prev.Stop()

	d := &tickDriver{stop: make(chan struct{}), done: make(chan struct{}), fast: true}
	e.mu.Lock()
	e.driver = d
	e.mu.Unlock()

	const burst = 10 * time.Millisecond
	go func() {
		defer close(d.done)
		t := time.NewTicker(burst)
		defer t.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-t.C:
				start := time.Now()
				e.mu.Lock()
				for e.sched.HasPendingEvents() && time.Since(start) < burst {
					if err := e.sched.UpdateGatesNext(); err != nil {
						break
					}
				}
				e.mu.Unlock()
			}
		}
	}()
}

// Stop uninstalls the current tick driver, if any (§4.5, §6 "stop").
func (e *Engine) Stop() {
	e.mu.Lock()
	d := e.driver
	e.driver = nil
	e.mu.Unlock()
	d.Stop()
}

// SetInterval sets the normal-mode tick interval (§6 "interval"). If the
// normal-mode driver is currently running, it is restarted with the new
// interval; otherwise the value takes effect on the next StartNormal.
func (e *Engine) SetInterval(ms int) {
	e.mu.Lock()
	running := e.driver != nil && !e.driver.fast
	e.mu.Unlock()
	if running {
		e.StartNormal(ms)
		return
	}
	e.mu.Lock()
	e.intervalMS = ms
	e.mu.Unlock()
}

// flushDriver runs the independent periodic update flusher (§4.4). It is
// not part of the command surface's start/stop pair — once StartFlusher
// installs it, it runs until StopFlusher or Close, the same way the
// source's flush timer is separate from the tick driver.
type flushDriver struct {
	stop chan struct{}
	done chan struct{}
}

// StartFlusher installs the periodic update-batcher flush loop. Called
// once by callers that want automatic flushing; tests may instead call
// FlushUpdates directly for deterministic flush points.
func (e *Engine) StartFlusher() {
	e.mu.Lock()
	if e.flush != nil {
		e.mu.Unlock()
		return
	}
	f := &flushDriver{stop: make(chan struct{}), done: make(chan struct{})}
	e.flush = f
	e.mu.Unlock()

	go func() {
		defer close(f.done)
		t := time.NewTicker(flushIntervalMS * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-f.stop:
				return
			case <-t.C:
				e.FlushUpdates(false)
			}
		}
	}()
}

// StopFlusher halts the periodic flush loop.
func (e *Engine) StopFlusher() {
	e.mu.Lock()
	f := e.flush
	e.flush = nil
	e.mu.Unlock()
	if f == nil {
		return
	}
	close(f.stop)
	<-f.done
}

// Close stops both the tick driver and the flusher, releasing all
// background goroutines. Safe to call on an Engine that was never
// started.
func (e *Engine) Close() {
	e.Stop()
	e.StopFlusher()
}
