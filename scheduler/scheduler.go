// Package scheduler implements §4.1: a tick-ordered event queue with
// per-tick deduplication, driven one slow step or one event step at a
// time. Grounded on cpu.Chip's Tick()/TickDone() two-phase step contract
// — one exported method advances exactly one unit of simulated time and
// returns a structured error, internal bookkeeping stays unexported.
package scheduler

import (
	"container/heap"

	"github.com/circuitsim/circuitsim/circuit"
	"github.com/circuitsim/circuitsim/propagate"
	"github.com/circuitsim/circuitsim/signal"
)

// tickHeap is a min-heap of pending tick keys. Duplicates are allowed;
// the scheduler de-duplicates against queue membership, not against the
// heap, exactly as §4.1 describes ("pq: ... Duplicates may be present").
type tickHeap []int64

func (h tickHeap) Len() int           { return len(h) }
func (h tickHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h tickHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *tickHeap) Push(x any)        { *h = append(*h, x.(int64)) }
func (h *tickHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// pending is the per-tick bucket: insertion-ordered, deduplicated by gate
// identity, carrying the input-signal snapshot captured at enqueue time
// (design note "mixed-type per-tick set -> insertion-ordered map"). A
// re-enqueue of an already-pending gate updates its snapshot in place
// without moving it in order, so first-enqueue order survives the drain.
type pending struct {
	order     []string
	gates     map[string]*circuit.Gate
	snapshots map[string]map[string]signal.Signal
}

func newPending() *pending {
	return &pending{
		gates:     make(map[string]*circuit.Gate),
		snapshots: make(map[string]map[string]signal.Signal),
	}
}

func (p *pending) put(g *circuit.Gate, snapshot map[string]signal.Signal) {
	if _, exists := p.gates[g.ID]; !exists {
		p.order = append(p.order, g.ID)
	}
	p.gates[g.ID] = g
	p.snapshots[g.ID] = snapshot
}

// take removes and returns the head-of-order entry. The drain loop in
// UpdateGatesNext repeatedly calls take until the bucket is empty, per
// §4.1 ("repeatedly take any entry ... and remove it").
func (p *pending) take() (*circuit.Gate, map[string]signal.Signal, bool) {
	for len(p.order) > 0 {
		id := p.order[0]
		p.order = p.order[1:]
		g, ok := p.gates[id]
		if !ok {
			continue // Already taken and not re-enqueued; a stale order entry.
		}
		snap := p.snapshots[id]
		delete(p.gates, id)
		delete(p.snapshots, id)
		return g, snap, true
	}
	return nil, nil, false
}

func (p *pending) empty() bool {
	return len(p.gates) == 0
}

// Scheduler owns the tick-keyed event queue described in §4.1.
type Scheduler struct {
	tick int64
	reg  map[int64]*pending
	pq   tickHeap
	prop *propagate.Propagator
}

// New returns a Scheduler at tick 0, wired to apply evaluation results
// through prop.
func New(prop *propagate.Propagator) *Scheduler {
	return &Scheduler{
		tick: 0,
		reg:  make(map[int64]*pending),
		prop: prop,
	}
}

// Tick returns the scheduler's current logical tick.
func (s *Scheduler) Tick() int64 {
	return s.tick
}

// HasPendingEvents reports whether any tick has entries queued (§4.1
// hasPendingEvents).
func (s *Scheduler) HasPendingEvents() bool {
	return len(s.reg) > 0
}

// snapshotInputs copies gate.InputSignals. §4.1 describes this as "by
// reference (the map itself)"; a Go map copy here is the closest
// reference-safe analogue that also protects the scheduler from a cell
// that misbehaves and retains the map past its Operation call (disallowed
// by §5 but not trusted blindly).
func snapshotInputs(g *circuit.Gate) map[string]signal.Signal {
	out := make(map[string]signal.Signal, len(g.InputSignals))
	for k, v := range g.InputSignals {
		out[k] = v
	}
	return out
}

// Enqueue computes k = tick + gate.Propagation() (wrapping) and stores
// the gate (keyed by identity, replacing any existing snapshot at that
// tick) in queue[k], pushing k onto pq if this is the first entry at that
// key. Implements propagate.Enqueuer so the Propagator can request
// re-evaluation of an ordinary gate without importing this package.
func (s *Scheduler) Enqueue(g *circuit.Gate) {
	k := wrapAdd(s.tick, g.Propagation())
	bucket, ok := s.reg[k]
	if !ok {
		bucket = newPending()
		s.reg[k] = bucket
		heap.Push(&s.pq, k)
	}
	bucket.put(g, snapshotInputs(g))
}

// wrapAdd adds a and b with signed wraparound, matching the source's
// signed-32-bit wraparound semantics promoted to 64 bits per DESIGN.md's
// resolution of the tick-wraparound open question.
func wrapAdd(a, b int64) int64 {
	return a + b
}

// UpdateGates performs one slow step (§4.1): if the heap's minimum tick
// equals the current tick, delegate to UpdateGatesNext; otherwise advance
// tick by one idle step. This drives simulation one tick per real-time
// interval even when nothing is pending, so time-based cells can observe
// the passage of ticks.
func (s *Scheduler) UpdateGates() error {
	s.compactHeapHead()
	if len(s.pq) > 0 && s.pq[0] == s.tick {
		return s.UpdateGatesNext()
	}
	s.tick = wrapAdd(s.tick, 1)
	return nil
}

// compactHeapHead discards heap entries for ticks already fully drained
// (duplicate pushes, or a tick whose bucket was deleted once it emptied).
func (s *Scheduler) compactHeapHead() {
	for len(s.pq) > 0 {
		if _, live := s.reg[s.pq[0]]; live {
			return
		}
		heap.Pop(&s.pq)
	}
}

// UpdateGatesNext performs one event step (§4.1): pop the next tick key,
// assert it is not behind the current tick, advance tick to it, and drain
// every pending gate at that key, applying each gate's Cell.Operation
// result and honoring Result.Reenqueue. A gate whose Graph has been
// cleared (removed mid-flight) is silently skipped (§7 StaleReference); a
// Special gate is skipped (its outputs are driven externally, §4.1).
func (s *Scheduler) UpdateGatesNext() error {
	s.compactHeapHead()
	if len(s.pq) == 0 {
		return nil
	}
	k := heap.Pop(&s.pq).(int64)
	for len(s.pq) > 0 && s.pq[0] == k {
		heap.Pop(&s.pq) // Collapse duplicate pushes for the same key.
	}
	if k < s.tick {
		return InvalidTick{Tick: k, Current: s.tick}
	}
	s.tick = k

	bucket, ok := s.reg[k]
	if !ok {
		return nil
	}
	for !bucket.empty() {
		gate, snapshot, ok := bucket.take()
		if !ok {
			break
		}
		if gate.Graph == nil {
			continue // StaleReference: removed mid-flight.
		}
		if gate.Special {
			continue // Special gates are never evaluated (§4.1).
		}
		if gate.Cell == nil {
			continue
		}
		result := gate.Cell.Operation(snapshot, gate.Helpers)
		if result.Reenqueue {
			s.Enqueue(gate)
		}
		if s.prop != nil {
			s.prop.SetGateOutputSignals(gate, result.Outputs)
		}
		// If evaluation re-enqueued this gate (or any other) at k, the
		// bucket grew and the loop keeps draining until it is empty.
	}
	delete(s.reg, k)
	s.tick = wrapAdd(k, 1)
	return nil
}

// InvalidTick is raised if the heap produces a key behind the current
// tick, which would indicate a scheduler bug (not a user-triggerable
// condition).
type InvalidTick struct {
	Tick    int64
	Current int64
}

func (e InvalidTick) Error() string {
	return "scheduler: popped tick behind current tick"
}
