// Package propagate implements the rules of §4.2: translating "an output
// port's signal changed" into downstream effects, including the
// subcircuit-boundary crossings that bypass the event queue entirely.
//
// Grounded on atari2600.go's portA/portB Input() callback chains (one
// component's output is read synchronously to compute another's input,
// several chips deep, with no queue in between) for the boundary-crossing
// rule, and cpu.go's opcode switch for the target-kind dispatch.
package propagate

import (
	"github.com/circuitsim/circuitsim/circuit"
	"github.com/circuitsim/circuitsim/signal"
)

// Enqueuer is the scheduling capability the propagator needs: request
// that an ordinary gate be evaluated at its next due tick. Defined here
// (consumer side) so scheduler.Scheduler can implement it without
// propagate importing scheduler, avoiding an import cycle.
type Enqueuer interface {
	Enqueue(g *circuit.Gate)
}

// Marker is the update-batching capability the propagator needs: record
// that an observed gate's output port changed value.
type Marker interface {
	MarkUpdate(g *circuit.Gate, port string)
}

// Propagator bundles the collaborators needed to carry out §4.2's rules.
type Propagator struct {
	Enqueue Enqueuer
	Mark    Marker
}

// New returns a Propagator wired to the given scheduler and batcher.
func New(e Enqueuer, m Marker) *Propagator {
	return &Propagator{Enqueue: e, Mark: m}
}

// SetGateOutputSignal implements §4.2's setGateOutputSignal: it is a
// no-op if sig already equals the current value (testable property 1),
// otherwise it updates state, marks the port dirty, and fans out to every
// downstream target.
func (p *Propagator) SetGateOutputSignal(gate *circuit.Gate, port string, sig signal.Signal) {
	if cur, ok := gate.OutputSignals[port]; ok && sig.Equals(cur) {
		return
	}
	gate.OutputSignals[port] = sig

	if p.Mark != nil {
		p.Mark.MarkUpdate(gate, port)
	}

	if gate.Graph == nil {
		return
	}
	// Snapshot the target set before iterating, in insertion order: the
	// design note on removeLink-during-fan-out calls for the snapshot (so
	// mutation mid-iteration is safe), and §5's "first-enqueue order"
	// guarantee requires fan-out from one port to walk targets in a fixed
	// order rather than Go's randomized map order.
	targets := gate.LinksByOutput[port]
	if targets == nil {
		return
	}
	snapshot := append([]circuit.Endpoint(nil), targets.Endpoints()...)
	for _, ep := range snapshot {
		tgtGate, ok := gate.Graph.Gates[ep.GateID]
		if !ok {
			continue
		}
		p.SetGateInputSignal(tgtGate, ep.Port, sig)
	}
}

// SetGateOutputSignals applies every (port, signal) pair in outs via
// SetGateOutputSignal, in map iteration order. The scheduler calls this
// once per drained gate with the result of Cell.Operation; addSubcircuit
// calls it to seed a boundary; changeInput calls it to drive an Input
// gate's single "out" port.
func (p *Propagator) SetGateOutputSignals(gate *circuit.Gate, outs map[string]signal.Signal) {
	for port, sig := range outs {
		p.SetGateOutputSignal(gate, port, sig)
	}
}

// SetGateInputSignal implements §4.2's setGateInputSignal: no-op if
// unchanged, otherwise updates state and dispatches on the target gate's
// kind (Subcircuit boundary, Output-type leaf, or ordinary gate).
func (p *Propagator) SetGateInputSignal(target *circuit.Gate, port string, sig signal.Signal) {
	if cur, ok := target.InputSignals[port]; ok && sig.Equals(cur) {
		return
	}
	target.InputSignals[port] = sig

	switch {
	case target.IsSubcircuit():
		p.crossIntoSubcircuit(target, port, sig)
	case target.IsOutput():
		p.crossOutOfSubcircuit(target, sig)
	default:
		if p.Enqueue != nil {
			p.Enqueue.Enqueue(target)
		}
	}
}

// crossIntoSubcircuit drives the inner Input gate named by the subcircuit
// gate's IO map for this external port. Per §4.2, a missing subgraph or
// IO-map entry is silently absorbed (§7 "missing subgraph bindings during
// setup" is a transient condition, not an error).
func (p *Propagator) crossIntoSubcircuit(target *circuit.Gate, port string, sig signal.Signal) {
	subgraph := target.Subgraph()
	iomap := target.IOMap()
	if subgraph == nil || iomap == nil {
		return
	}
	innerID, ok := iomap[port]
	if !ok {
		return
	}
	inner, ok := subgraph.Gates[innerID]
	if !ok || !inner.IsInput() {
		return
	}
	p.SetGateOutputSignals(inner, map[string]signal.Signal{"out": sig})
}

// crossOutOfSubcircuit drives the enclosing subcircuit gate's external
// output named by this inner Output gate's "net" param. If there is no
// enclosing subcircuit the graph is top-level and the value is terminal
// (§9 open question, preserved verbatim: no further propagation).
func (p *Propagator) crossOutOfSubcircuit(target *circuit.Gate, sig signal.Signal) {
	if target.Graph == nil || target.Graph.Subcircuit == nil {
		return
	}
	subcir := target.Graph.Subcircuit
	net := target.OutputNet()
	if net == "" {
		return
	}
	p.SetGateOutputSignal(subcir, net, sig)
}
