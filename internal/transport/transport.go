// Package transport carries operation envelopes between participants and
// generates collision-free object ids. Implementations: in-process loopback
// bus, websocket hub/dialer and a NATS adapter.
package transport

import (
	"sync/atomic"

	"github.com/inkwell2d/netphys/internal/netmsg"
)

// Handler consumes envelopes arriving from other participants.
type Handler func(env netmsg.Envelope)

// Transport is the send/receive contract consumed by the replication layer.
// Send is fire-and-forget and delivers to every participant except the
// sender; the sender applies its own operations locally and synchronously.
type Transport interface {
	// PeerID returns the stable identity of this participant.
	PeerID() string
	// Send transmits one envelope to all other participants.
	Send(env netmsg.Envelope, opts netmsg.SendOptions) error
	// SetHandler installs the receive callback. Implementations may invoke
	// it from their own goroutines; callers serialize into their simulation
	// loop themselves.
	SetHandler(h Handler)
	Close() error
}

// IDGenerator produces network-wide unique object ids.
//
// Ids are partitioned by participant ordinal in the high 16 bits, so two
// hosts generating ids concurrently never collide and freed ids are never
// reissued for a live object:
//
//	0x0001_000000000000+ — participant 1 (the server)
//	0x0002_000000000000+ — participant 2
//	...
type IDGenerator struct {
	base uint64
	next atomic.Uint64
}

// NewIDGenerator creates a generator for the given participant ordinal.
// Ordinal 0 is reserved for the invalid id.
func NewIDGenerator(ordinal uint16) *IDGenerator {
	return &IDGenerator{base: uint64(ordinal) << 48}
}

// Next returns the next unique object id. Thread-safe via atomic increment.
func (g *IDGenerator) Next() netmsg.ObjectID {
	return netmsg.ObjectID(g.base | g.next.Add(1))
}
