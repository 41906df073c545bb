// Package circuit defines the data model of §3 of the simulation spec:
// ports, links, gates and graphs. It owns no scheduling or propagation
// behavior — those live in the scheduler and propagate packages, which
// operate on the types defined here. This mirrors the teacher's split
// between memory.Bank (the data/interface model) and cpu.Chip (the
// behavior that drives it).
package circuit

import (
	"fmt"

	"github.com/circuitsim/circuitsim/cell"
	"github.com/circuitsim/circuitsim/signal"
	"github.com/pkg/errors"
)

// Direction is the flow direction of a Port.
type Direction int

const (
	In  Direction = iota // Input port: driven by a Link, or by the engine for special gates.
	Out                  // Output port: drives downstream Links.
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Port is a named pin of a gate with a direction and bit width. Ports
// belong to exactly one gate for the gate's lifetime and are immutable
// after gate creation (§3).
type Port struct {
	ID   string
	Dir  Direction
	Bits int
}

// Endpoint names a port on a specific gate.
type Endpoint struct {
	GateID string
	Port   string
}

// EndpointSet is an insertion-ordered set of Endpoints. A gate's fan-out
// from a single output port must be walked in a fixed order for the
// scheduler to enqueue downstream gates deterministically (§5, §8
// invariant 5); this is the same insertion-ordered-map-plus-slice pattern
// scheduler.pending uses for per-tick gate order.
type EndpointSet struct {
	order []Endpoint
	has   map[Endpoint]struct{}
}

func newEndpointSet() *EndpointSet {
	return &EndpointSet{has: make(map[Endpoint]struct{})}
}

func (s *EndpointSet) add(ep Endpoint) {
	if _, exists := s.has[ep]; exists {
		return
	}
	s.has[ep] = struct{}{}
	s.order = append(s.order, ep)
}

func (s *EndpointSet) remove(ep Endpoint) {
	if _, exists := s.has[ep]; !exists {
		return
	}
	delete(s.has, ep)
	for i, e := range s.order {
		if e == ep {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Endpoints returns the set's members in insertion order. Callers that
// may mutate the graph while iterating should copy this slice first.
func (s *EndpointSet) Endpoints() []Endpoint {
	return s.order
}

// Link is a directed connection from one gate's out-port to another
// gate's in-port.
type Link struct {
	ID     string
	Source Endpoint
	Target Endpoint
}

// InvariantViolation is raised for programmer errors the core does not
// attempt to repair: unknown ids, direction mismatches, duplicate
// creation. Mirrors the teacher's cpu.InvalidCPUState in spirit: a small
// exported struct type implementing error, named after the taxonomy in
// spec §7.
type InvariantViolation struct {
	Reason string
}

// Error implements the error interface.
func (e InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Reason)
}

// Gate is a node bound to a cell type (§3). SpecialTypes never reach the
// scheduler; their outputs are driven externally (by the engine, on
// behalf of the host, via changeInput or direct assignment).
type Gate struct {
	ID    string
	Graph *Graph // Back-reference, cleared on removal. nil means "removed".

	Type    string
	Special bool // True for Subcircuit, Input, Output, Button, Lamp, NumEntry, NumDisplay.

	Cell    cell.Cell        // Operation/Prepare/HelperNames source. nil for Special gates with no builtin.
	Helpers cell.HelperState // Cell-private state, populated by Cell.Prepare at construction.

	Ports map[string]Port

	InputSignals  map[string]signal.Signal
	OutputSignals map[string]signal.Signal

	// LinksByOutput maps an out-port id to the insertion-ordered set of
	// downstream targets fed from it, so fan-out enqueues in a fixed order.
	LinksByOutput map[string]*EndpointSet

	// Links is the set of all link ids incident on this gate (as either
	// source or target), kept for O(degree) removal.
	Links map[string]struct{}

	// Params carries cell-specific free-form state: "propagation" (int,
	// required for non-special gates), "subgraph" (*Graph) and
	// "circuitIOmap" (map[string]string) for Subcircuit gates, "net"
	// (string) for Output-type gates nested in a subcircuit.
	Params map[string]any
}

// IsSubcircuit reports whether the gate is a subcircuit instance.
func (g *Gate) IsSubcircuit() bool {
	return g.Type == "Subcircuit"
}

// IsOutput reports whether the gate is an Output-type leaf (used to
// terminate or cross a subcircuit boundary, per §4.2).
func (g *Gate) IsOutput() bool {
	return g.Type == "Output"
}

// IsInput reports whether the gate is an Input-type leaf (the inner
// endpoint a subcircuit's "in" ports drive, per §4.2).
func (g *Gate) IsInput() bool {
	return g.Type == "Input"
}

// Propagation returns the gate's declared propagation delay in ticks,
// defaulting to 0 when unset (special gates typically leave it unset
// since they are never enqueued).
func (g *Gate) Propagation() int64 {
	if v, ok := g.Params["propagation"]; ok {
		switch n := v.(type) {
		case int:
			return int64(n)
		case int64:
			return n
		case float64: // As decoded from a JSON command's params.
			return int64(n)
		}
	}
	return 0
}

// Subgraph returns the subcircuit gate's embedded graph, or nil if this
// gate is not bound to one (e.g. addSubcircuit has not run yet).
func (g *Gate) Subgraph() *Graph {
	s, _ := g.Params["subgraph"].(*Graph)
	return s
}

// IOMap returns the subcircuit gate's port-to-inner-gate-id map, or nil.
func (g *Gate) IOMap() map[string]string {
	m, _ := g.Params["circuitIOmap"].(map[string]string)
	return m
}

// OutputNet returns the name of the enclosing subcircuit's external
// output port this (inner) Output gate drives, or "" if unset.
func (g *Gate) OutputNet() string {
	n, _ := g.Params["net"].(string)
	return n
}

// Graph is a named directed multigraph of gates and links; it may be
// top-level or instantiated as a subcircuit (§3).
type Graph struct {
	ID    string
	Gates map[string]*Gate
	Links map[string]*Link

	Observed bool

	// Subcircuit is the gate that embeds this graph, if any. Set by
	// addSubcircuit; nil for top-level graphs.
	Subcircuit *Gate
}

// NewGraph returns a new, empty Graph.
func NewGraph(id string) *Graph {
	return &Graph{
		ID:    id,
		Gates: make(map[string]*Gate),
		Links: make(map[string]*Link),
	}
}

// NewGate constructs a Gate with the given ports and initial signals. It
// does not register the gate with a graph, invoke Cell.Prepare, or
// enqueue it for evaluation — those are engine-level operations (§4.3)
// that compose this constructor with the scheduler and cell registry.
func NewGate(id, typ string, special bool, c cell.Cell, ports map[string]Port, initialInputs, initialOutputs map[string]signal.Signal, params map[string]any) *Gate {
	g := &Gate{
		ID:            id,
		Type:          typ,
		Special:       special,
		Cell:          c,
		Ports:         ports,
		InputSignals:  make(map[string]signal.Signal, len(initialInputs)),
		OutputSignals: make(map[string]signal.Signal, len(initialOutputs)),
		LinksByOutput: make(map[string]*EndpointSet),
		Links:         make(map[string]struct{}),
		Params:        params,
	}
	for p, s := range initialInputs {
		g.InputSignals[p] = s
	}
	for p, s := range initialOutputs {
		g.OutputSignals[p] = s
	}
	for _, p := range ports {
		if p.Dir == Out {
			g.LinksByOutput[p.ID] = newEndpointSet()
		}
	}
	return g
}

// AddGate registers gate in the graph. Returns InvariantViolation if a
// gate with the same id already exists.
func (gr *Graph) AddGate(g *Gate) error {
	if _, exists := gr.Gates[g.ID]; exists {
		return InvariantViolation{Reason: fmt.Sprintf("duplicate gate id %q in graph %q", g.ID, gr.ID)}
	}
	g.Graph = gr
	gr.Gates[g.ID] = g
	return nil
}

// Gate looks up a gate by id, returning InvariantViolation if absent.
func (gr *Graph) Gate(id string) (*Gate, error) {
	g, ok := gr.Gates[id]
	if !ok {
		return nil, InvariantViolation{Reason: fmt.Sprintf("unknown gate id %q in graph %q", id, gr.ID)}
	}
	return g, nil
}

// portOf validates that gate has a port with the given id and direction.
func portOf(g *Gate, portID string, want Direction) (Port, error) {
	p, ok := g.Ports[portID]
	if !ok {
		return Port{}, InvariantViolation{Reason: fmt.Sprintf("gate %q has no port %q", g.ID, portID)}
	}
	if p.Dir != want {
		return Port{}, InvariantViolation{Reason: fmt.Sprintf("gate %q port %q has direction %s, want %s", g.ID, portID, p.Dir, want)}
	}
	return p, nil
}

// AddLink validates both endpoints, registers the link with the graph and
// with the source gate's LinksByOutput, and records the link id on both
// endpoint gates' Links sets. It does not deliver the initial signal —
// that is the propagator's job (§4.3 addLink).
func (gr *Graph) AddLink(l *Link) error {
	if _, exists := gr.Links[l.ID]; exists {
		return InvariantViolation{Reason: fmt.Sprintf("duplicate link id %q in graph %q", l.ID, gr.ID)}
	}
	src, err := gr.Gate(l.Source.GateID)
	if err != nil {
		return errors.Wrap(err, "addLink: resolving source gate")
	}
	tgt, err := gr.Gate(l.Target.GateID)
	if err != nil {
		return errors.Wrap(err, "addLink: resolving target gate")
	}
	if _, err := portOf(src, l.Source.Port, Out); err != nil {
		return errors.Wrap(err, "addLink: source port")
	}
	if _, err := portOf(tgt, l.Target.Port, In); err != nil {
		return errors.Wrap(err, "addLink: target port")
	}

	gr.Links[l.ID] = l
	if src.LinksByOutput[l.Source.Port] == nil {
		src.LinksByOutput[l.Source.Port] = newEndpointSet()
	}
	src.LinksByOutput[l.Source.Port].add(l.Target)
	src.Links[l.ID] = struct{}{}
	tgt.Links[l.ID] = struct{}{}
	return nil
}

// RemoveLink removes l from the graph and from both endpoints' registries.
// It does not deliver the all-X signal to the target — that is the
// propagator's job (§4.3 removeLink).
func (gr *Graph) RemoveLink(linkID string) (*Link, error) {
	l, ok := gr.Links[linkID]
	if !ok {
		return nil, InvariantViolation{Reason: fmt.Sprintf("unknown link id %q in graph %q", linkID, gr.ID)}
	}
	delete(gr.Links, linkID)
	if src, ok := gr.Gates[l.Source.GateID]; ok {
		if set, ok := src.LinksByOutput[l.Source.Port]; ok {
			set.remove(l.Target)
		}
		delete(src.Links, linkID)
	}
	if tgt, ok := gr.Gates[l.Target.GateID]; ok {
		delete(tgt.Links, linkID)
	}
	return l, nil
}

// IncidentLinks returns the ids of every link incident on gate g, snapshot
// into a slice so the caller may safely mutate the graph while iterating
// (the design note on removeLink during fan-out recommends exactly this
// snapshot-before-iterate discipline).
func (gr *Graph) IncidentLinks(g *Gate) []string {
	out := make([]string, 0, len(g.Links))
	for id := range g.Links {
		out = append(out, id)
	}
	return out
}

// DetachGate clears gate's graph back-reference and removes it from the
// graph's gate table. Callers must have already removed every link
// incident on the gate (engine.RemoveGate does this via the propagator so
// the surviving peers of those links get their all-X delivery).
func (gr *Graph) DetachGate(gateID string) (*Gate, error) {
	g, err := gr.Gate(gateID)
	if err != nil {
		return nil, err
	}
	g.Graph = nil
	delete(gr.Gates, gateID)
	return g, nil
}
