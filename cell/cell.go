// Package cell defines the external collaborator interface the core
// dispatches to for combinational evaluation (§1, §6 "cell-library
// contract"): a pure operation function, a per-gate initializer, and a
// list of helper methods the operation closes over. This mirrors the
// teacher's irq.Sender and memory.Bank — small interfaces the core
// depends on without knowing or caring about the implementation.
//
// The real cell library (gate-type catalog, netlist-driven behaviors) is
// explicitly out of scope per spec §1. This package defines the contract
// plus a small reference Registry and builtin set (SPEC_FULL.md
// "Supplemented features") sufficient to exercise and test the engine.
package cell

import "github.com/circuitsim/circuitsim/signal"

// HelperState is cell-private state installed on a Gate by Prepare and
// closed over by Operation on every subsequent call. The core never
// inspects its contents; it only stores and hands back the pointer.
type HelperState any

// Result is what a Cell's Operation returns: the new output values, plus
// an explicit re-enqueue request. This replaces the source's in-band
// "_clock_hack" sentinel key with a structured field, per design note
// "_clock_hack sentinel -> explicit re-enqueue flag".
type Result struct {
	Outputs   map[string]signal.Signal
	Reenqueue bool
}

// Cell is a gate type's implementation. Operation must be pure over its
// inputs and the HelperState pointer passed to it — per §5, it must never
// reach into graph state or enqueue directly; Result.Reenqueue is the only
// scheduling channel available to it.
type Cell interface {
	// Name identifies the cell type, e.g. "Not", "Clock", "Subcircuit".
	Name() string

	// Prepare is called once, at gate construction, to produce the
	// gate-private HelperState that will be threaded through every
	// subsequent Operation call for that gate.
	Prepare() HelperState

	// Operation computes new outputs from the current input signals and
	// the gate's helper state. For special cell types (§3) this is never
	// called by the scheduler; it may still be called directly by the
	// engine for test/reference purposes.
	Operation(inputs map[string]signal.Signal, helpers HelperState) Result

	// HelperNames lists the helper method names this cell's Operation
	// relies on, informational only (mirrors the source's
	// "_operationHelpers" declaration; this port does not need to copy
	// methods onto gates since Go closures over HelperState serve the
	// same purpose).
	HelperNames() []string
}

// Registry maps a cell type name to its Cell implementation.
type Registry struct {
	cells map[string]Cell
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cells: make(map[string]Cell)}
}

// Register adds c to the registry, keyed by c.Name(). A later call with
// the same name replaces the earlier registration, matching how a host
// would reload a cell library.
func (r *Registry) Register(c Cell) {
	r.cells[c.Name()] = c
}

// Lookup returns the Cell registered for typ, or false if none.
func (r *Registry) Lookup(typ string) (Cell, bool) {
	c, ok := r.cells[typ]
	return c, ok
}
