package cell

import "github.com/circuitsim/circuitsim/signal"

// gateFn adapts a plain input->output function into a stateless Cell.
// Most combinational gates (Not/And/Or/...) need no per-gate helper state,
// matching how the teacher's simplest chips (e.g. the out{} latch in
// tia.go) carry nothing beyond their exported fields.
type gateFn struct {
	name    string
	helpers []string
	fn      func(inputs map[string]signal.Signal) map[string]signal.Signal
}

func (g *gateFn) Name() string        { return g.name }
func (g *gateFn) Prepare() HelperState { return nil }
func (g *gateFn) HelperNames() []string {
	return g.helpers
}
func (g *gateFn) Operation(inputs map[string]signal.Signal, _ HelperState) Result {
	return Result{Outputs: g.fn(inputs)}
}

func bitwise1(inputs map[string]signal.Signal, op func(signal.Bit) signal.Bit) map[string]signal.Signal {
	in := inputs["in"]
	vals := make([]signal.Bit, in.Width())
	for i := 0; i < in.Width(); i++ {
		vals[i] = op(in.Bit(i))
	}
	out, _ := signal.New(in.Width(), vals)
	return map[string]signal.Signal{"out": out}
}

func bitwise2(inputs map[string]signal.Signal, op func(a, b signal.Bit) signal.Bit) map[string]signal.Signal {
	a, b := inputs["in1"], inputs["in2"]
	width := a.Width()
	vals := make([]signal.Bit, width)
	for i := 0; i < width; i++ {
		vals[i] = op(a.Bit(i), b.Bit(i))
	}
	out, _ := signal.New(width, vals)
	return map[string]signal.Signal{"out": out}
}

func notBit(a signal.Bit) signal.Bit {
	switch a {
	case signal.Zero:
		return signal.One
	case signal.One:
		return signal.Zero
	default:
		return signal.Unknown
	}
}

func andBit(a, b signal.Bit) signal.Bit {
	if a == signal.Zero || b == signal.Zero {
		return signal.Zero
	}
	if a == signal.Unknown || b == signal.Unknown {
		return signal.Unknown
	}
	return signal.One
}

func orBit(a, b signal.Bit) signal.Bit {
	if a == signal.One || b == signal.One {
		return signal.One
	}
	if a == signal.Unknown || b == signal.Unknown {
		return signal.Unknown
	}
	return signal.Zero
}

func xorBit(a, b signal.Bit) signal.Bit {
	if a == signal.Unknown || b == signal.Unknown {
		return signal.Unknown
	}
	if a == b {
		return signal.Zero
	}
	return signal.One
}

// Not returns the builtin single-input inverter cell.
func Not() Cell {
	return &gateFn{name: "Not", fn: func(in map[string]signal.Signal) map[string]signal.Signal {
		return bitwise1(in, notBit)
	}}
}

// Buf returns the builtin single-input passthrough cell.
func Buf() Cell {
	return &gateFn{name: "Buf", fn: func(in map[string]signal.Signal) map[string]signal.Signal {
		return bitwise1(in, func(b signal.Bit) signal.Bit { return b })
	}}
}

// And returns the builtin two-input AND cell.
func And() Cell {
	return &gateFn{name: "And", fn: func(in map[string]signal.Signal) map[string]signal.Signal {
		return bitwise2(in, andBit)
	}}
}

// Or returns the builtin two-input OR cell.
func Or() Cell {
	return &gateFn{name: "Or", fn: func(in map[string]signal.Signal) map[string]signal.Signal {
		return bitwise2(in, orBit)
	}}
}

// Xor returns the builtin two-input XOR cell.
func Xor() Cell {
	return &gateFn{name: "Xor", fn: func(in map[string]signal.Signal) map[string]signal.Signal {
		return bitwise2(in, xorBit)
	}}
}

// Nand returns the builtin two-input NAND cell.
func Nand() Cell {
	return &gateFn{name: "Nand", fn: func(in map[string]signal.Signal) map[string]signal.Signal {
		return bitwise2(in, func(a, b signal.Bit) signal.Bit { return notBit(andBit(a, b)) })
	}}
}

// Nor returns the builtin two-input NOR cell.
func Nor() Cell {
	return &gateFn{name: "Nor", fn: func(in map[string]signal.Signal) map[string]signal.Signal {
		return bitwise2(in, func(a, b signal.Bit) signal.Bit { return notBit(orBit(a, b)) })
	}}
}

// clockHelpers is the per-gate private state for the Clock cell: the
// current output level. Modeled on pia6532's private timer/edge-detect
// registers, which is the teacher's own example of per-instance state
// closed over by an operation.
type clockHelpers struct {
	level signal.Bit
}

type clockCell struct{}

func (clockCell) Name() string         { return "Clock" }
func (clockCell) HelperNames() []string { return []string{"toggle"} }
func (clockCell) Prepare() HelperState {
	return &clockHelpers{level: signal.Zero}
}

// Operation toggles the clock's output and always requests re-enqueue,
// exercising the "self-oscillating cell" contract of §4.1 (the source's
// _clock_hack). propagation (held in the gate's Params, not here) governs
// the period.
func (clockCell) Operation(_ map[string]signal.Signal, helpers HelperState) Result {
	h := helpers.(*clockHelpers)
	h.level = notBit(h.level)
	out, _ := signal.New(1, []signal.Bit{h.level})
	return Result{
		Outputs:   map[string]signal.Signal{"out": out},
		Reenqueue: true,
	}
}

// Clock returns the builtin self-oscillating cell used by scenario S2.
func Clock() Cell {
	return clockCell{}
}

// specialCell is the reference Cell registered for §3's "special" gate
// types: Subcircuit, Input, Output, Button, Lamp, NumEntry, NumDisplay.
// The scheduler never calls Operation on a special gate (§4.1), so this
// exists only so the registry has a complete entry per type and so tests
// can construct such gates uniformly; Operation is a documented no-op.
type specialCell struct {
	name string
}

func (s specialCell) Name() string          { return s.name }
func (s specialCell) Prepare() HelperState  { return nil }
func (s specialCell) HelperNames() []string { return nil }
func (s specialCell) Operation(map[string]signal.Signal, HelperState) Result {
	return Result{}
}

// Input, Output, Button, Lamp, NumEntry, NumDisplay and Subcircuit return
// the reference Cell for each special gate type named in spec §3.
func Input() Cell          { return specialCell{"Input"} }
func Output() Cell         { return specialCell{"Output"} }
func Button() Cell         { return specialCell{"Button"} }
func Lamp() Cell           { return specialCell{"Lamp"} }
func NumEntry() Cell       { return specialCell{"NumEntry"} }
func NumDisplay() Cell     { return specialCell{"NumDisplay"} }
func SubcircuitCell() Cell { return specialCell{"Subcircuit"} }

// SpecialTypes lists the gate type names the engine treats as special
// (never evaluated by the scheduler), per §3.
var SpecialTypes = map[string]bool{
	"Subcircuit": true,
	"Input":      true,
	"Output":     true,
	"Button":     true,
	"Lamp":       true,
	"NumEntry":   true,
	"NumDisplay": true,
}

// NewStandardRegistry returns a Registry preloaded with every builtin
// cell defined in this file.
func NewStandardRegistry() *Registry {
	r := NewRegistry()
	for _, c := range []Cell{
		Not(), Buf(), And(), Or(), Xor(), Nand(), Nor(), Clock(),
		Input(), Output(), Button(), Lamp(), NumEntry(), NumDisplay(), SubcircuitCell(),
	} {
		r.Register(c)
	}
	return r
}
