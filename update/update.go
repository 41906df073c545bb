// Package update implements the update-batching pipeline of §4.4: it
// tracks dirty (gate, port) pairs for observed graphs and flushes them
// periodically into host-facing messages.
//
// Grounded on vcs/vcs_main.go's FrameDone callback (periodic, coalesced,
// host-driven snapshot-and-emit) and tia.go's outputLatches array (a
// dirty bit held until the next read, the same "coalesce, don't replay"
// semantics this batcher implements for output ports).
package update

import (
	"sort"

	"github.com/circuitsim/circuitsim/circuit"
	"github.com/circuitsim/circuitsim/signal"
)

// Batcher tracks dirty (gate, port) pairs and flushes them on demand.
// Multiple transitions of the same port within one flush interval
// coalesce to the last-seen value — callers read final values off
// gate.OutputSignals at flush time, not a transition history.
//
// order records gates in first-marked-dirty order (the same
// insertion-ordered-map-plus-slice pattern scheduler.pending uses), so a
// flush covering more than one dirty gate emits them in a fixed sequence
// rather than Go's randomized map order.
type Batcher struct {
	order    []*circuit.Gate
	toUpdate map[*circuit.Gate]map[string]struct{}
}

// New returns an empty Batcher.
func New() *Batcher {
	return &Batcher{toUpdate: make(map[*circuit.Gate]map[string]struct{})}
}

// MarkUpdate records that gate's port changed, provided gate's graph is
// currently observed. Implements propagate.Marker.
func (b *Batcher) MarkUpdate(gate *circuit.Gate, port string) {
	if gate.Graph == nil || !gate.Graph.Observed {
		return
	}
	ports, ok := b.toUpdate[gate]
	if !ok {
		ports = make(map[string]struct{})
		b.toUpdate[gate] = ports
		b.order = append(b.order, gate)
	}
	ports[port] = struct{}{}
}

// ObserveGraph sets graph.Observed and marks every out-port of every gate
// in the graph as dirty, so a late observer resynchronizes with current
// state on the next flush (§4.4). Gates are visited in sorted-id order so
// that marking many gates dirty at once (unlike a single MarkUpdate call)
// still produces a deterministic dirty order.
func (b *Batcher) ObserveGraph(graph *circuit.Graph) {
	graph.Observed = true
	ids := make([]string, 0, len(graph.Gates))
	for id := range graph.Gates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		g := graph.Gates[id]
		for _, p := range g.Ports {
			if p.Dir == circuit.Out {
				b.MarkUpdate(g, p.ID)
			}
		}
	}
}

// UnobserveGraph clears graph.Observed. Entries already queued for this
// graph are flushed on the next interval; no new ones will be added.
func UnobserveGraph(graph *circuit.Graph) {
	graph.Observed = false
}

// GateUpdate is one gate's batch of changed output ports, ready to be
// emitted to the host.
type GateUpdate struct {
	GraphID string
	GateID  string
	Ports   map[string]signal.Signal
}

// Flush snapshots and clears the dirty set, returning one GateUpdate per
// dirty gate, in first-marked-dirty order, with each port's current
// output value. Gates whose Graph has been cleared (removed since being
// marked) are skipped.
func (b *Batcher) Flush() []GateUpdate {
	if len(b.toUpdate) == 0 {
		return nil
	}
	out := make([]GateUpdate, 0, len(b.toUpdate))
	for _, gate := range b.order {
		ports := b.toUpdate[gate]
		if gate.Graph != nil {
			vals := make(map[string]signal.Signal, len(ports))
			for port := range ports {
				vals[port] = gate.OutputSignals[port]
			}
			out = append(out, GateUpdate{GraphID: gate.Graph.ID, GateID: gate.ID, Ports: vals})
		}
	}
	b.order = nil
	b.toUpdate = make(map[*circuit.Gate]map[string]struct{})
	if len(out) == 0 {
		return nil
	}
	return out
}

// Dirty reports whether Flush would currently return anything, used by
// the tick driver to decide whether a flush is worth performing.
func (b *Batcher) Dirty() bool {
	return len(b.toUpdate) > 0
}
