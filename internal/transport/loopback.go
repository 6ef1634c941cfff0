package transport

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/inkwell2d/netphys/internal/netmsg"
)

// Bus is an in-process transport connecting any number of participants.
//
// In the default mode delivery is synchronous: Send invokes the handlers of
// all other peers before returning, which is the strongest ordering the real
// network can offer and what a participant's own loopback behaves like.
//
// In manual mode envelopes queue per receiving peer until Flush, letting
// tests reproduce delayed, reordered or dropped delivery deterministically.
type Bus struct {
	mu     sync.Mutex
	peers  map[string]*Peer
	manual bool
}

// NewBus creates a synchronous-delivery bus.
func NewBus() *Bus {
	return &Bus{peers: make(map[string]*Peer)}
}

// NewManualBus creates a bus whose delivery is driven by Flush calls.
func NewManualBus() *Bus {
	return &Bus{peers: make(map[string]*Peer), manual: true}
}

// Peer is one participant's endpoint on a Bus.
type Peer struct {
	bus     *Bus
	id      string
	handler Handler
	queue   []queued
}

type queued struct {
	env  netmsg.Envelope
	opts netmsg.SendOptions
}

// Join attaches a new participant to the bus.
func (b *Bus) Join() *Peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &Peer{bus: b, id: uuid.NewString()}
	b.peers[p.id] = p
	return p
}

// Flush delivers every queued envelope in arrival order. Only meaningful on
// a manual bus.
func (b *Bus) Flush() {
	b.mu.Lock()
	peers := make([]*Peer, 0, len(b.peers))
	for _, p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.Unlock()
	for _, p := range peers {
		p.FlushQueue()
	}
}

func (p *Peer) PeerID() string { return p.id }

func (p *Peer) SetHandler(h Handler) { p.handler = h }

func (p *Peer) Send(env netmsg.Envelope, opts netmsg.SendOptions) error {
	b := p.bus
	b.mu.Lock()
	if _, ok := b.peers[p.id]; !ok {
		b.mu.Unlock()
		return fmt.Errorf("send from closed peer %s", p.id)
	}
	others := make([]*Peer, 0, len(b.peers)-1)
	for id, other := range b.peers {
		if id != p.id {
			others = append(others, other)
		}
	}
	if b.manual {
		for _, other := range others {
			other.queue = append(other.queue, queued{env: env, opts: opts})
		}
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	for _, other := range others {
		if other.handler != nil {
			other.handler(env)
		}
	}
	return nil
}

// FlushQueue delivers this peer's queued envelopes in arrival order.
func (p *Peer) FlushQueue() {
	p.bus.mu.Lock()
	pending := p.queue
	p.queue = nil
	p.bus.mu.Unlock()
	for _, q := range pending {
		if p.handler != nil {
			p.handler(q.env)
		}
	}
}

// DropUnreliable discards queued envelopes that were sent unreliably,
// simulating loss on the unreliable channel.
func (p *Peer) DropUnreliable() {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	kept := p.queue[:0]
	for _, q := range p.queue {
		if q.opts.Reliable {
			kept = append(kept, q)
		}
	}
	p.queue = kept
}

func (p *Peer) Close() error {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()
	delete(p.bus.peers, p.id)
	p.queue = nil
	return nil
}
