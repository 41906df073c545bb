package update_test

import (
	"testing"

	"github.com/circuitsim/circuitsim/cell"
	"github.com/circuitsim/circuitsim/circuit"
	"github.com/circuitsim/circuitsim/signal"
	"github.com/circuitsim/circuitsim/update"
)

func lampGate(id string) *circuit.Gate {
	return circuit.NewGate(id, "Lamp", true, cell.Lamp(), map[string]circuit.Port{
		"in": {ID: "in", Dir: circuit.In, Bits: 1},
	}, nil, map[string]signal.Signal{"in": signal.Zeroes(1)}, nil)
}

func TestUnobservedGraphProducesNoUpdates(t *testing.T) {
	graph := circuit.NewGraph("g")
	g := lampGate("lamp")
	_ = graph.AddGate(g)
	b := update.New()

	b.MarkUpdate(g, "in")
	if b.Dirty() {
		t.Error("unobserved graph marked dirty")
	}
	if got := b.Flush(); got != nil {
		t.Errorf("Flush() = %v, want nil for unobserved graph", got)
	}
}

func TestObserveGraphResyncsAllOutputs(t *testing.T) {
	graph := circuit.NewGraph("g")
	a := circuit.NewGate("a", "Not", false, cell.Not(), map[string]circuit.Port{
		"out": {ID: "out", Dir: circuit.Out, Bits: 1},
	}, nil, map[string]signal.Signal{"out": signal.FromUint64(1, 1)}, nil)
	_ = graph.AddGate(a)
	b := update.New()

	b.ObserveGraph(graph)
	flushed := b.Flush()
	if len(flushed) != 1 || flushed[0].GateID != "a" {
		t.Fatalf("Flush() = %+v, want one resync entry for gate a", flushed)
	}
	if !flushed[0].Ports["out"].Equals(signal.FromUint64(1, 1)) {
		t.Errorf("resync value = %s, want 1", flushed[0].Ports["out"])
	}
}

func TestCoalescesMultipleTransitionsToLastValue(t *testing.T) {
	graph := circuit.NewGraph("g")
	a := circuit.NewGate("a", "Not", false, cell.Not(), map[string]circuit.Port{
		"out": {ID: "out", Dir: circuit.Out, Bits: 1},
	}, nil, map[string]signal.Signal{"out": signal.Zeroes(1)}, nil)
	_ = graph.AddGate(a)
	graph.Observed = true
	b := update.New()

	a.OutputSignals["out"] = signal.FromUint64(1, 1)
	b.MarkUpdate(a, "out")
	a.OutputSignals["out"] = signal.Zeroes(1)
	b.MarkUpdate(a, "out")
	a.OutputSignals["out"] = signal.FromUint64(1, 1)
	b.MarkUpdate(a, "out")

	flushed := b.Flush()
	if len(flushed) != 1 {
		t.Fatalf("Flush() returned %d entries, want 1", len(flushed))
	}
	if !flushed[0].Ports["out"].Equals(signal.FromUint64(1, 1)) {
		t.Errorf("coalesced value = %s, want final value 1", flushed[0].Ports["out"])
	}
}

func TestUnobserveStopsFutureMarksButNotPending(t *testing.T) {
	graph := circuit.NewGraph("g")
	a := lampGate("a")
	_ = graph.AddGate(a)
	graph.Observed = true
	b := update.New()

	b.MarkUpdate(a, "in")
	update.UnobserveGraph(graph)
	b.MarkUpdate(a, "in") // No-op: graph is no longer observed.

	flushed := b.Flush()
	if len(flushed) != 1 {
		t.Fatalf("Flush() = %+v, want the pre-unobserve mark to still flush", flushed)
	}
}

func TestRemovedGateSkippedOnFlush(t *testing.T) {
	graph := circuit.NewGraph("g")
	a := lampGate("a")
	_ = graph.AddGate(a)
	graph.Observed = true
	b := update.New()
	b.MarkUpdate(a, "in")
	a.Graph = nil // Simulate removal between mark and flush.

	if got := b.Flush(); got != nil {
		t.Errorf("Flush() = %v, want nil for a gate removed before flush", got)
	}
}
