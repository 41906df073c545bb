// Package host defines the abstract boundary between the simulation core
// and whatever delivers commands and receives update messages (§1's "host
// transport", §6's external interfaces). Grounded on irq.Sender's
// one-method interface style: the core depends on this package, never the
// other way around.
package host

import "github.com/circuitsim/circuitsim/signal"

// Sink receives batched update messages from the engine (§4.4, §6). A
// concrete host (cmd/simhost, a test double, a future RPC transport)
// implements this to learn about output transitions.
type Sink interface {
	// Emit delivers one flush's worth of updates.
	Emit(msg UpdateMessage)
}

// UpdateMessage holds the fields of §6's update message: type "update",
// the tick, the pending-events flag and the gate updates. Its JSON tags
// encode them as named fields; it has no encoding into the positional
// { type, args: [tick, hasPendingEvents, updates] } form.
type UpdateMessage struct {
	Type       string       `json:"type"`
	Tick       int64        `json:"tick"`
	HasPending bool         `json:"hasPendingEvents"`
	Updates    []GateUpdate `json:"updates"`
}

// GateUpdate is one gate's entry of an update message: graph id, gate id
// and the changed ports' signals. Its JSON tags encode it as an object
// with named fields, not as a positional triple.
type GateUpdate struct {
	GraphID string                 `json:"graphId"`
	GateID  string                 `json:"gateId"`
	Ports   map[string]signal.Wire `json:"ports"`
}

// SinkFunc adapts a plain function to a Sink, the same convenience
// pattern http.HandlerFunc uses in the standard library.
type SinkFunc func(UpdateMessage)

// Emit implements Sink.
func (f SinkFunc) Emit(msg UpdateMessage) { f(msg) }
