package host

import (
	"encoding/json"
	"fmt"

	"github.com/circuitsim/circuitsim/signal"
)

// Command is the wire shape of a single entry in §6's command surface.
// Messages may carry a single "arg" or an "args" array; argumentless
// commands carry neither, matching the spec's wire description verbatim.
type Command struct {
	Name string          `json:"command"`
	Arg  json.RawMessage `json:"arg,omitempty"`
	Args json.RawMessage `json:"args,omitempty"`
}

// DecodeCommands parses a JSON array of Command objects, the format
// cmd/simhost reads its command script in.
func DecodeCommands(data []byte) ([]Command, error) {
	var cmds []Command
	if err := json.Unmarshal(data, &cmds); err != nil {
		return nil, fmt.Errorf("host: decoding command script: %w", err)
	}
	return cmds, nil
}

// args returns the command's arguments as a []json.RawMessage regardless
// of whether the wire form used "arg" or "args".
func (c Command) args() ([]json.RawMessage, error) {
	switch {
	case len(c.Args) > 0:
		var raw []json.RawMessage
		if err := json.Unmarshal(c.Args, &raw); err != nil {
			return nil, fmt.Errorf("host: command %q: decoding args array: %w", c.Name, err)
		}
		return raw, nil
	case len(c.Arg) > 0:
		return []json.RawMessage{c.Arg}, nil
	default:
		return nil, nil
	}
}

// IntervalArgs is the argument shape for the "interval" command.
type IntervalArgs struct {
	MS int `json:"ms"`
}

// AddGraphArgs is the argument shape for the "addGraph" command.
type AddGraphArgs struct {
	GraphID string `json:"graphId"`
}

// PortSpec is the wire shape of a port declaration within addGate args.
type PortSpec struct {
	ID   string `json:"id"`
	Dir  string `json:"dir"`
	Bits int    `json:"bits"`
}

// AddGateArgs is the argument shape for the "addGate" command.
type AddGateArgs struct {
	GraphID       string                 `json:"graphId"`
	GateID        string                 `json:"gateId"`
	Type          string                 `json:"type"`
	Params        map[string]any         `json:"params"`
	Ports         []PortSpec             `json:"ports"`
	InputSignals  map[string]signal.Wire `json:"inputSignals"`
	OutputSignals map[string]signal.Wire `json:"outputSignals"`
}

// EndpointSpec is the wire shape of a link endpoint.
type EndpointSpec struct {
	GateID string `json:"gateId"`
	Port   string `json:"port"`
}

// AddLinkArgs is the argument shape for the "addLink" command.
type AddLinkArgs struct {
	GraphID string       `json:"graphId"`
	LinkID  string       `json:"linkId"`
	Source  EndpointSpec `json:"source"`
	Target  EndpointSpec `json:"target"`
}

// AddSubcircuitArgs is the argument shape for the "addSubcircuit" command.
type AddSubcircuitArgs struct {
	GraphID    string            `json:"graphId"`
	GateID     string            `json:"gateId"`
	SubgraphID string            `json:"subgraphId"`
	IOMap      map[string]string `json:"iomap"`
}

// RemoveGateArgs is the argument shape for the "removeGate" command.
type RemoveGateArgs struct {
	GraphID string `json:"graphId"`
	GateID  string `json:"gateId"`
}

// RemoveLinkArgs is the argument shape for the "removeLink" command.
type RemoveLinkArgs struct {
	GraphID string `json:"graphId"`
	LinkID  string `json:"linkId"`
}

// ObserveGraphArgs is the argument shape for observeGraph/unobserveGraph.
type ObserveGraphArgs struct {
	GraphID string `json:"graphId"`
}

// ChangeInputArgs is the argument shape for the "changeInput" command.
type ChangeInputArgs struct {
	GraphID string      `json:"graphId"`
	GateID  string      `json:"gateId"`
	Signal  signal.Wire `json:"signal"`
}

// Decode unmarshals the command's single argument object into v. Commands
// with no arguments (start, stop, updateGates, updateGatesNext) should not
// call this.
func (c Command) Decode(v any) error {
	args, err := c.args()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("host: command %q: expected an argument", c.Name)
	}
	if err := json.Unmarshal(args[0], v); err != nil {
		return fmt.Errorf("host: command %q: decoding argument: %w", c.Name, err)
	}
	return nil
}
