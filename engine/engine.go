// Package engine wires together the circuit data model, the scheduler,
// the propagator and the update batcher into the steppable whole the host
// drives (§4.3's graph operations, §4.5's tick drivers, §6's command
// surface). Grounded on atari2600.go's Init/Tick, which wires
// independently-designed chips (CPU, TIA, PIA, RAM) into one steppable
// VCS exactly the way this wires circuit+scheduler+propagate+update into
// one steppable simulation.
package engine

import (
	"sync"

	"github.com/circuitsim/circuitsim/cell"
	"github.com/circuitsim/circuitsim/circuit"
	"github.com/circuitsim/circuitsim/host"
	"github.com/circuitsim/circuitsim/propagate"
	"github.com/circuitsim/circuitsim/scheduler"
	"github.com/circuitsim/circuitsim/signal"
	"github.com/circuitsim/circuitsim/update"
	"github.com/pkg/errors"
)

// Engine owns every graph, the shared scheduler, propagator and update
// batcher, and the host-facing sink. All mutating methods take mu, giving
// Go's goroutine-driven timers the same "only one callback runs at a
// time" guarantee §5 describes for the source's single-threaded event
// loop.
type Engine struct {
	mu sync.Mutex

	registry *cell.Registry
	graphs   map[string]*circuit.Graph

	sched *scheduler.Scheduler
	prop  *propagate.Propagator
	batch *update.Batcher

	sink host.Sink

	driver     *tickDriver
	flush      *flushDriver
	intervalMS int
}

// New returns an Engine with an empty set of graphs, using registry to
// resolve cell types named by addGate, and delivering update messages to
// sink.
func New(registry *cell.Registry, sink host.Sink) *Engine {
	e := &Engine{
		registry: registry,
		graphs:   make(map[string]*circuit.Graph),
		batch:    update.New(),
		sink:     sink,
	}
	e.prop = propagate.New(nil, e.batch)
	e.sched = scheduler.New(e.prop)
	e.prop.Enqueue = e.sched
	return e
}

// Tick returns the scheduler's current logical tick.
func (e *Engine) Tick() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.Tick()
}

// HasPendingEvents reports whether the scheduler has anything queued.
func (e *Engine) HasPendingEvents() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.HasPendingEvents()
}

// AddGraph creates an empty graph (§4.3 addGraph, §6).
func (e *Engine) AddGraph(graphID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.graphs[graphID]; exists {
		return circuit.InvariantViolation{Reason: "duplicate graph id " + graphID}
	}
	e.graphs[graphID] = circuit.NewGraph(graphID)
	return nil
}

func (e *Engine) graph(graphID string) (*circuit.Graph, error) {
	g, ok := e.graphs[graphID]
	if !ok {
		return nil, circuit.InvariantViolation{Reason: "unknown graph id " + graphID}
	}
	return g, nil
}

// AddGate constructs a gate of the given type, looks up its Cell in the
// registry, invokes Cell.Prepare to seed its helper state, registers it
// with the graph, and enqueues it for evaluation (§4.3 addGate).
func (e *Engine) AddGate(graphID, gateID, typ string, params map[string]any, ports []circuit.Port, initialInputs, initialOutputs map[string]signal.Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.graph(graphID)
	if err != nil {
		return err
	}
	c, ok := e.registry.Lookup(typ)
	if !ok {
		return errors.Errorf("addGate: no cell registered for type %q", typ)
	}
	portMap := make(map[string]circuit.Port, len(ports))
	for _, p := range ports {
		portMap[p.ID] = p
	}
	special := cell.SpecialTypes[typ]
	gate := circuit.NewGate(gateID, typ, special, c, portMap, initialInputs, initialOutputs, params)
	gate.Helpers = c.Prepare()

	if err := g.AddGate(gate); err != nil {
		return err
	}
	e.sched.Enqueue(gate)
	return nil
}

// AddLink validates and registers the link, then immediately delivers the
// current source-output signal to the target input (§4.3 addLink).
func (e *Engine) AddLink(graphID, linkID string, source, target circuit.Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.graph(graphID)
	if err != nil {
		return err
	}
	link := &circuit.Link{ID: linkID, Source: source, Target: target}
	if err := g.AddLink(link); err != nil {
		return err
	}
	srcGate := g.Gates[source.GateID]
	tgtGate := g.Gates[target.GateID]
	e.prop.SetGateInputSignal(tgtGate, target.Port, srcGate.OutputSignals[source.Port])
	return nil
}

// RemoveLink removes the link from both endpoints' registries and
// delivers an all-X signal of the target port's declared width to the
// (still-living) target input (§4.3 removeLink).
func (e *Engine) RemoveLink(graphID, linkID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLinkLocked(graphID, linkID)
}

func (e *Engine) removeLinkLocked(graphID, linkID string) error {
	g, err := e.graph(graphID)
	if err != nil {
		return err
	}
	link, err := g.RemoveLink(linkID)
	if err != nil {
		return err
	}
	tgtGate, ok := g.Gates[link.Target.GateID]
	if !ok {
		return nil
	}
	port, ok := tgtGate.Ports[link.Target.Port]
	if !ok {
		return nil
	}
	e.prop.SetGateInputSignal(tgtGate, link.Target.Port, signal.Undefined(port.Bits))
	return nil
}

// RemoveGate removes every incident link (via the propagator-aware
// removeLink, so surviving peers get their all-X delivery) and then
// clears the gate's graph back-reference and deletes it. Pending
// scheduler entries for the removed gate become no-ops because the drain
// checks Gate.Graph == nil (§4.3 removeGate).
func (e *Engine) RemoveGate(graphID, gateID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.graph(graphID)
	if err != nil {
		return err
	}
	gate, err := g.Gate(gateID)
	if err != nil {
		return err
	}
	for _, linkID := range g.IncidentLinks(gate) {
		if err := e.removeLinkLocked(graphID, linkID); err != nil {
			return errors.Wrap(err, "removeGate: removing incident link")
		}
	}
	_, err = g.DetachGate(gateID)
	return err
}

// AddSubcircuit binds gate to subgraph via iomap, sets the subgraph's back
// pointer, and initializes the boundary so inputs/outputs are consistent
// before any evaluation uses them (§4.3 addSubcircuit).
func (e *Engine) AddSubcircuit(graphID, gateID, subgraphID string, iomap map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.graph(graphID)
	if err != nil {
		return err
	}
	gate, err := g.Gate(gateID)
	if err != nil {
		return err
	}
	subgraph, err := e.graph(subgraphID)
	if err != nil {
		return err
	}
	if gate.Params == nil {
		gate.Params = make(map[string]any)
	}
	gate.Params["subgraph"] = subgraph
	gate.Params["circuitIOmap"] = iomap
	subgraph.Subcircuit = gate

	for port, innerID := range iomap {
		p, ok := gate.Ports[port]
		if !ok {
			continue
		}
		inner, ok := subgraph.Gates[innerID]
		if !ok {
			continue
		}
		switch p.Dir {
		case circuit.In:
			e.prop.SetGateOutputSignals(inner, map[string]signal.Signal{"out": gate.InputSignals[port]})
		case circuit.Out:
			e.prop.SetGateOutputSignal(gate, port, inner.InputSignals["in"])
		}
	}
	return nil
}

// ChangeInput drives an Input-type gate's "out" port to sig, relying on
// propagation to fan out (§4.3 changeInput).
func (e *Engine) ChangeInput(graphID, gateID string, sig signal.Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.graph(graphID)
	if err != nil {
		return err
	}
	gate, err := g.Gate(gateID)
	if err != nil {
		return err
	}
	e.prop.SetGateOutputSignals(gate, map[string]signal.Signal{"out": sig})
	return nil
}

// ObserveGraph enables update emission for graphID and resynchronizes a
// late observer by marking every out-port dirty (§4.3/§4.4 observeGraph).
func (e *Engine) ObserveGraph(graphID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, err := e.graph(graphID)
	if err != nil {
		return err
	}
	e.batch.ObserveGraph(g)
	return nil
}

// UnobserveGraph disables update emission for graphID (§4.4 unobserveGraph).
func (e *Engine) UnobserveGraph(graphID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, err := e.graph(graphID)
	if err != nil {
		return err
	}
	update.UnobserveGraph(g)
	return nil
}

// UpdateGates performs one manual slow step (§4.1/§6).
func (e *Engine) UpdateGates() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.UpdateGates()
}

// UpdateGatesNext performs one manual event step (§4.1/§6).
func (e *Engine) UpdateGatesNext() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched.UpdateGatesNext()
}

// FlushUpdates performs one manual flush of the update batcher, emitting
// to the sink if there is anything dirty or the caller forces it. Used by
// both the periodic flusher and tests that want deterministic flush
// points.
func (e *Engine) FlushUpdates(force bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushLocked(force)
}

func (e *Engine) flushLocked(force bool) {
	if !force && !e.batch.Dirty() {
		return
	}
	updates := e.batch.Flush()
	if e.sink == nil {
		return
	}
	msg := host.UpdateMessage{
		Type:       "update",
		Tick:       e.sched.Tick(),
		HasPending: e.sched.HasPendingEvents(),
	}
	for _, u := range updates {
		ports := make(map[string]signal.Wire, len(u.Ports))
		for p, sig := range u.Ports {
			ports[p] = sig.ToWire()
		}
		msg.Updates = append(msg.Updates, host.GateUpdate{GraphID: u.GraphID, GateID: u.GateID, Ports: ports})
	}
	e.sink.Emit(msg)
}
