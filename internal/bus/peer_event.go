// Package bus defines the events that flow from peer connections to the bridge controller.
package bus

import "time"

// Peer names one of the two external systems the bridge talks to.
type Peer string

const (
	PeerItemService Peer = "item-service"
	PeerControlHost Peer = "control-host"
)

// EventKind is the lifecycle stage an event reports.
type EventKind int

const (
	EventConnected EventKind = iota
	EventMessage
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventMessage:
		return "message"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// PeerEvent is one item of a connection's event stream.
type PeerEvent struct {
	peer      Peer      // which link produced the event
	connID    uint64    // identity of the producing connection instance
	kind      EventKind // connected / message / disconnected
	payload   []byte    // decoded message body (EventMessage only)
	err       error     // disconnect reason (EventDisconnected only)
	timestamp time.Time // when the event was produced
}

// NewConnectedEvent reports that connID finished connecting.
func NewConnectedEvent(peer Peer, connID uint64) PeerEvent {
	return PeerEvent{peer: peer, connID: connID, kind: EventConnected, timestamp: time.Now()}
}

// NewMessageEvent carries one inbound message.
func NewMessageEvent(peer Peer, connID uint64, payload []byte) PeerEvent {
	return PeerEvent{peer: peer, connID: connID, kind: EventMessage, payload: payload, timestamp: time.Now()}
}

// NewDisconnectedEvent reports that connID lost or failed to establish its link.
func NewDisconnectedEvent(peer Peer, connID uint64, err error) PeerEvent {
	return PeerEvent{peer: peer, connID: connID, kind: EventDisconnected, err: err, timestamp: time.Now()}
}

func (e PeerEvent) Peer() Peer           { return e.peer }
func (e PeerEvent) ConnID() uint64       { return e.connID }
func (e PeerEvent) Kind() EventKind      { return e.kind }
func (e PeerEvent) Payload() []byte      { return e.payload }
func (e PeerEvent) Err() error           { return e.err }
func (e PeerEvent) Timestamp() time.Time { return e.timestamp }
