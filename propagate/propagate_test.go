package propagate_test

import (
	"testing"

	"github.com/circuitsim/circuitsim/cell"
	"github.com/circuitsim/circuitsim/circuit"
	"github.com/circuitsim/circuitsim/propagate"
	"github.com/circuitsim/circuitsim/signal"
)

type fakeEnqueuer struct {
	enqueued []string
}

func (f *fakeEnqueuer) Enqueue(g *circuit.Gate) {
	f.enqueued = append(f.enqueued, g.ID)
}

type fakeMarker struct {
	marked map[string]map[string]bool
}

func newFakeMarker() *fakeMarker {
	return &fakeMarker{marked: make(map[string]map[string]bool)}
}

func (f *fakeMarker) MarkUpdate(g *circuit.Gate, port string) {
	if f.marked[g.ID] == nil {
		f.marked[g.ID] = make(map[string]bool)
	}
	f.marked[g.ID][port] = true
}

func simpleGate(id string) *circuit.Gate {
	ports := map[string]circuit.Port{
		"in":  {ID: "in", Dir: circuit.In, Bits: 1},
		"out": {ID: "out", Dir: circuit.Out, Bits: 1},
	}
	return circuit.NewGate(id, "Not", false, cell.Not(),
		ports,
		map[string]signal.Signal{"in": signal.Zeroes(1)},
		map[string]signal.Signal{"out": signal.Zeroes(1)},
		map[string]any{"propagation": 1})
}

func TestEqualSignalIsNoOp(t *testing.T) {
	enq, mark := &fakeEnqueuer{}, newFakeMarker()
	p := propagate.New(enq, mark)
	g := simpleGate("g")
	same := g.OutputSignals["out"]

	p.SetGateOutputSignal(g, "out", same)

	if len(enq.enqueued) != 0 {
		t.Errorf("enqueued on no-op change: %v", enq.enqueued)
	}
	if len(mark.marked) != 0 {
		t.Errorf("marked dirty on no-op change: %v", mark.marked)
	}
}

func TestSetOutputFansOutToTargets(t *testing.T) {
	enq, mark := &fakeEnqueuer{}, newFakeMarker()
	p := propagate.New(enq, mark)
	graph := circuit.NewGraph("g")
	a, b := simpleGate("a"), simpleGate("b")
	_ = graph.AddGate(a)
	_ = graph.AddGate(b)
	_ = graph.AddLink(&circuit.Link{ID: "l", Source: circuit.Endpoint{GateID: "a", Port: "out"}, Target: circuit.Endpoint{GateID: "b", Port: "in"}})

	one := signal.FromUint64(1, 1)
	p.SetGateOutputSignal(a, "out", one)

	if !a.OutputSignals["out"].Equals(one) {
		t.Error("a.out not updated")
	}
	if !b.InputSignals["in"].Equals(one) {
		t.Error("b.in not updated by fan-out")
	}
	if len(enq.enqueued) != 1 || enq.enqueued[0] != "b" {
		t.Errorf("enqueued = %v, want [b]", enq.enqueued)
	}
	if !mark.marked["a"]["out"] {
		t.Error("a.out not marked dirty")
	}
}

// TestLinkRemovalDeliversX is scenario S3: removing a link delivers the
// target port's all-X signal.
func TestLinkRemovalDeliversX(t *testing.T) {
	enq, mark := &fakeEnqueuer{}, newFakeMarker()
	p := propagate.New(enq, mark)
	graph := circuit.NewGraph("g")
	a, b := simpleGate("a"), simpleGate("b")
	_ = graph.AddGate(a)
	_ = graph.AddGate(b)
	link := &circuit.Link{ID: "l", Source: circuit.Endpoint{GateID: "a", Port: "out"}, Target: circuit.Endpoint{GateID: "b", Port: "in"}}
	_ = graph.AddLink(link)

	one := signal.FromUint64(1, 1)
	p.SetGateOutputSignal(a, "out", one)
	if !b.InputSignals["in"].Equals(one) {
		t.Fatal("setup: b.in did not receive a.out")
	}

	if _, err := graph.RemoveLink("l"); err != nil {
		t.Fatalf("RemoveLink: %v", err)
	}
	p.SetGateInputSignal(b, "in", signal.Undefined(b.Ports["in"].Bits))

	if !b.InputSignals["in"].IsFullyUnknown() {
		t.Errorf("b.in = %s after link removal, want all-X", b.InputSignals["in"])
	}
}

func subcircuitGate(id, innerIn, innerOut string, subgraph *circuit.Graph) *circuit.Gate {
	ports := map[string]circuit.Port{
		"a": {ID: "a", Dir: circuit.In, Bits: 1},
		"y": {ID: "y", Dir: circuit.Out, Bits: 1},
	}
	g := circuit.NewGate(id, "Subcircuit", true, cell.SubcircuitCell(), ports,
		map[string]signal.Signal{"a": signal.Zeroes(1)},
		map[string]signal.Signal{"y": signal.Zeroes(1)},
		map[string]any{
			"subgraph":     subgraph,
			"circuitIOmap": map[string]string{"a": innerIn, "y": innerOut},
		})
	return g
}

// TestSubcircuitTransparency is scenario S4: driving the subcircuit's
// input propagates to its output without the boundary crossing consuming
// a tick. The inner Input gate is wired straight to the inner Output gate,
// with no ordinary gate between them, so nothing is enqueued.
func TestSubcircuitTransparency(t *testing.T) {
	enq, mark := &fakeEnqueuer{}, newFakeMarker()
	p := propagate.New(enq, mark)

	sub := circuit.NewGraph("sub")
	innerIn := circuit.NewGate("in1", "Input", true, cell.Input(), map[string]circuit.Port{
		"out": {ID: "out", Dir: circuit.Out, Bits: 1},
	}, nil, map[string]signal.Signal{"out": signal.Zeroes(1)}, nil)
	innerOut := circuit.NewGate("out1", "Output", true, cell.Output(), map[string]circuit.Port{
		"in": {ID: "in", Dir: circuit.In, Bits: 1},
	}, map[string]signal.Signal{"in": signal.Zeroes(1)}, nil, map[string]any{"net": "y"})
	_ = sub.AddGate(innerIn)
	_ = sub.AddGate(innerOut)
	_ = sub.AddLink(&circuit.Link{ID: "wire", Source: circuit.Endpoint{GateID: "in1", Port: "out"}, Target: circuit.Endpoint{GateID: "out1", Port: "in"}})

	top := circuit.NewGraph("top")
	g := subcircuitGate("G", "in1", "out1", sub)
	_ = top.AddGate(g)
	sub.Subcircuit = g

	one := signal.FromUint64(1, 1)
	p.SetGateInputSignal(g, "a", one)

	if !innerIn.OutputSignals["out"].Equals(one) {
		t.Fatal("inner Input gate's out not driven from G.a")
	}
	if !innerOut.InputSignals["in"].Equals(one) {
		t.Fatal("inner Output gate's in not driven via the wire")
	}
	if !g.OutputSignals["y"].Equals(one) {
		t.Errorf("G.y = %s, want %s (boundary crossing did not reach the external output)", g.OutputSignals["y"], one)
	}
	// No ordinary gate was enqueued: the boundary crossing is combinational.
	if len(enq.enqueued) != 0 {
		t.Errorf("enqueued during boundary crossing: %v, want none", enq.enqueued)
	}
}

// TestOutputWithoutEnclosingSubcircuitIsTerminal preserves the source's
// documented-but-unspecified behavior verbatim (§9 open question).
func TestOutputWithoutEnclosingSubcircuitIsTerminal(t *testing.T) {
	enq, mark := &fakeEnqueuer{}, newFakeMarker()
	p := propagate.New(enq, mark)
	graph := circuit.NewGraph("top")
	out := circuit.NewGate("o", "Output", true, cell.Output(), map[string]circuit.Port{
		"in": {ID: "in", Dir: circuit.In, Bits: 1},
	}, map[string]signal.Signal{"in": signal.Zeroes(1)}, nil, map[string]any{"net": "y"})
	_ = graph.AddGate(out)
	// No Subcircuit back-pointer set: graph.Subcircuit stays nil.

	p.SetGateInputSignal(out, "in", signal.FromUint64(1, 1))

	if len(enq.enqueued) != 0 {
		t.Errorf("enqueued for terminal Output gate: %v", enq.enqueued)
	}
}
