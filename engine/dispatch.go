package engine

import (
	"github.com/circuitsim/circuitsim/circuit"
	"github.com/circuitsim/circuitsim/host"
	"github.com/circuitsim/circuitsim/signal"
	"github.com/pkg/errors"
)

// Dispatch applies one host.Command, implementing the full table in §6.
// Commands are applied in the order the host delivers them (§5 ordering
// guarantees); Dispatch itself does no reordering or buffering.
func (e *Engine) Dispatch(cmd host.Command) error {
	switch cmd.Name {
	case "interval":
		var a host.IntervalArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		e.SetInterval(a.MS)
		return nil

	case "start":
		e.StartNormal(e.currentInterval())
		return nil

	case "startFast":
		e.StartFast()
		return nil

	case "stop":
		e.Stop()
		return nil

	case "updateGates":
		return e.UpdateGates()

	case "updateGatesNext":
		return e.UpdateGatesNext()

	case "addGraph":
		var a host.AddGraphArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		return e.AddGraph(a.GraphID)

	case "addGate":
		var a host.AddGateArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		return e.dispatchAddGate(a)

	case "addLink":
		var a host.AddLinkArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		src := circuit.Endpoint{GateID: a.Source.GateID, Port: a.Source.Port}
		tgt := circuit.Endpoint{GateID: a.Target.GateID, Port: a.Target.Port}
		return e.AddLink(a.GraphID, a.LinkID, src, tgt)

	case "addSubcircuit":
		var a host.AddSubcircuitArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		return e.AddSubcircuit(a.GraphID, a.GateID, a.SubgraphID, a.IOMap)

	case "removeGate":
		var a host.RemoveGateArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		return e.RemoveGate(a.GraphID, a.GateID)

	case "removeLink":
		var a host.RemoveLinkArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		return e.RemoveLink(a.GraphID, a.LinkID)

	case "observeGraph":
		var a host.ObserveGraphArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		return e.ObserveGraph(a.GraphID)

	case "unobserveGraph":
		var a host.ObserveGraphArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		return e.UnobserveGraph(a.GraphID)

	case "changeInput":
		var a host.ChangeInputArgs
		if err := cmd.Decode(&a); err != nil {
			return err
		}
		sig, err := signal.FromWire(a.Signal)
		if err != nil {
			return err
		}
		return e.ChangeInput(a.GraphID, a.GateID, sig)

	default:
		return errors.Errorf("dispatch: unknown command %q", cmd.Name)
	}
}

func (e *Engine) currentInterval() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.intervalMS <= 0 {
		return defaultIntervalMS
	}
	return e.intervalMS
}

// dispatchAddGate translates the wire PortSpec/signal.Wire shapes into
// the circuit/signal types AddGate expects.
func (e *Engine) dispatchAddGate(a host.AddGateArgs) error {
	ports := make([]circuit.Port, 0, len(a.Ports))
	for _, p := range a.Ports {
		dir := circuit.In
		if p.Dir == "out" {
			dir = circuit.Out
		}
		ports = append(ports, circuit.Port{ID: p.ID, Dir: dir, Bits: p.Bits})
	}
	ins, err := decodeSignalMap(a.InputSignals)
	if err != nil {
		return err
	}
	outs, err := decodeSignalMap(a.OutputSignals)
	if err != nil {
		return err
	}
	return e.AddGate(a.GraphID, a.GateID, a.Type, a.Params, ports, ins, outs)
}

func decodeSignalMap(m map[string]signal.Wire) (map[string]signal.Signal, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]signal.Signal, len(m))
	for k, w := range m {
		s, err := signal.FromWire(w)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding signal for port %q", k)
		}
		out[k] = s
	}
	return out, nil
}
