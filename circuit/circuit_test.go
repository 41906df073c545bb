package circuit_test

import (
	"testing"

	"github.com/circuitsim/circuitsim/cell"
	"github.com/circuitsim/circuitsim/circuit"
	"github.com/circuitsim/circuitsim/signal"
	"github.com/davecgh/go-spew/spew"
)

func hasEndpoint(set *circuit.EndpointSet, ep circuit.Endpoint) bool {
	if set == nil {
		return false
	}
	for _, e := range set.Endpoints() {
		if e == ep {
			return true
		}
	}
	return false
}

func mkGate(id, typ string) *circuit.Gate {
	ports := map[string]circuit.Port{
		"in":  {ID: "in", Dir: circuit.In, Bits: 1},
		"out": {ID: "out", Dir: circuit.Out, Bits: 1},
	}
	ins := map[string]signal.Signal{"in": signal.Zeroes(1)}
	outs := map[string]signal.Signal{"out": signal.Zeroes(1)}
	return circuit.NewGate(id, typ, false, cell.Not(), ports, ins, outs, map[string]any{"propagation": 1})
}

func TestAddLinkRegistersBothEndpoints(t *testing.T) {
	g := circuit.NewGraph("g")
	a, b := mkGate("a", "Not"), mkGate("b", "Not")
	if err := g.AddGate(a); err != nil {
		t.Fatalf("AddGate(a): %v", err)
	}
	if err := g.AddGate(b); err != nil {
		t.Fatalf("AddGate(b): %v", err)
	}
	link := &circuit.Link{ID: "l1", Source: circuit.Endpoint{GateID: "a", Port: "out"}, Target: circuit.Endpoint{GateID: "b", Port: "in"}}
	if err := g.AddLink(link); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	if !hasEndpoint(a.LinksByOutput["out"], link.Target) {
		t.Errorf("a.LinksByOutput[out] missing target: %s", spew.Sdump(a.LinksByOutput))
	}
	if _, ok := a.Links["l1"]; !ok {
		t.Error("a.Links missing l1")
	}
	if _, ok := b.Links["l1"]; !ok {
		t.Error("b.Links missing l1")
	}
}

func TestAddLinkRejectsDirectionMismatch(t *testing.T) {
	g := circuit.NewGraph("g")
	a, b := mkGate("a", "Not"), mkGate("b", "Not")
	_ = g.AddGate(a)
	_ = g.AddGate(b)

	// Source must be an out port; "in" on a is an In port.
	link := &circuit.Link{ID: "l1", Source: circuit.Endpoint{GateID: "a", Port: "in"}, Target: circuit.Endpoint{GateID: "b", Port: "in"}}
	if err := g.AddLink(link); err == nil {
		t.Error("AddLink with direction mismatch did not error")
	}
}

func TestRemoveLinkClearsBothEndpoints(t *testing.T) {
	g := circuit.NewGraph("g")
	a, b := mkGate("a", "Not"), mkGate("b", "Not")
	_ = g.AddGate(a)
	_ = g.AddGate(b)
	link := &circuit.Link{ID: "l1", Source: circuit.Endpoint{GateID: "a", Port: "out"}, Target: circuit.Endpoint{GateID: "b", Port: "in"}}
	if err := g.AddLink(link); err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if _, err := g.RemoveLink("l1"); err != nil {
		t.Fatalf("RemoveLink: %v", err)
	}
	if hasEndpoint(a.LinksByOutput["out"], link.Target) {
		t.Error("a.LinksByOutput[out] still has target after removal")
	}
	if _, ok := a.Links["l1"]; ok {
		t.Error("a.Links still has l1 after removal")
	}
	if _, ok := b.Links["l1"]; ok {
		t.Error("b.Links still has l1 after removal")
	}
	if _, ok := g.Links["l1"]; ok {
		t.Error("graph still has l1 after removal")
	}
}

func TestRemoveGateDetachesIncidentLinks(t *testing.T) {
	g := circuit.NewGraph("g")
	a, b, c := mkGate("a", "Not"), mkGate("b", "Not"), mkGate("c", "Not")
	for _, gate := range []*circuit.Gate{a, b, c} {
		if err := g.AddGate(gate); err != nil {
			t.Fatalf("AddGate(%s): %v", gate.ID, err)
		}
	}
	_ = g.AddLink(&circuit.Link{ID: "ab", Source: circuit.Endpoint{GateID: "a", Port: "out"}, Target: circuit.Endpoint{GateID: "b", Port: "in"}})
	_ = g.AddLink(&circuit.Link{ID: "cb", Source: circuit.Endpoint{GateID: "c", Port: "out"}, Target: circuit.Endpoint{GateID: "b", Port: "in"}})

	removed, links, err := func() (*circuit.Gate, []*circuit.Link, error) {
		ids := g.IncidentLinks(b)
		var out []*circuit.Link
		for _, id := range ids {
			l, err := g.RemoveLink(id)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, l)
		}
		detached, err := g.DetachGate(b.ID)
		return detached, out, err
	}()
	if err != nil {
		t.Fatalf("removing gate b: %v", err)
	}
	if removed.Graph != nil {
		t.Error("removed gate still has non-nil Graph back-reference")
	}
	if len(links) != 2 {
		t.Errorf("removed %d links, want 2", len(links))
	}
	if len(a.Links) != 0 {
		t.Errorf("a.Links not empty after peer removal: %v", a.Links)
	}
	if len(c.Links) != 0 {
		t.Errorf("c.Links not empty after peer removal: %v", c.Links)
	}
	if _, ok := g.Gates["b"]; ok {
		t.Error("graph still contains removed gate")
	}
}

func TestUnknownGateIsInvariantViolation(t *testing.T) {
	g := circuit.NewGraph("g")
	_, err := g.Gate("missing")
	if _, ok := err.(circuit.InvariantViolation); !ok {
		t.Errorf("got %T, want circuit.InvariantViolation", err)
	}
}
