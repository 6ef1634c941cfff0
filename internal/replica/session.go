// Package replica implements the replicated physics layer: object lifecycle
// replication, ownership-based authority transfer, tick history with
// rewind-and-replay on the server and interpolation on clients.
//
// A Session is the per-participant context object. All of its methods must
// be called from one simulation goroutine; remote mutations arrive only
// through HandleEnvelope, never by shared memory.
package replica

import (
	"log/slog"
	"time"

	cp "github.com/jakecoffman/cp/v2"

	"github.com/inkwell2d/netphys/internal/config"
	"github.com/inkwell2d/netphys/internal/netmsg"
	"github.com/inkwell2d/netphys/internal/transport"
)

// Options configure a Session.
type Options struct {
	Transport transport.Transport
	IDs       *transport.IDGenerator

	// Server marks this participant as the simulation authority: it keeps
	// full per-tick history and performs rewind-and-replay.
	Server bool

	// ServerPeer is the peer id of the authoritative server. Empty on the
	// server itself.
	ServerPeer string

	// Replication overrides the default constants when non-zero.
	Replication config.Replication

	Listener ContactListener
}

// Session owns one participant's replicated physics state.
type Session struct {
	tr         transport.Transport
	ids        *transport.IDGenerator
	server     bool
	serverPeer string
	cfg        config.Replication
	reg        *registry
	listener   ContactListener

	issueAt time.Time
}

// NewSession creates a session. The caller wires the transport's receive
// side to HandleEnvelope, either directly (synchronous transports) or via a
// channel pumped by the simulation loop.
func NewSession(opts Options) *Session {
	cfg := opts.Replication
	if cfg.UpdateRate == 0 {
		cfg = config.Default().Replication
	}
	return &Session{
		tr:         opts.Transport,
		ids:        opts.IDs,
		server:     opts.Server,
		serverPeer: opts.ServerPeer,
		cfg:        cfg,
		reg:        newRegistry(),
		listener:   opts.Listener,
	}
}

// PeerID returns this participant's identity.
func (s *Session) PeerID() string { return s.tr.PeerID() }

// Object returns the live engine handle for an id.
func (s *Session) Object(id ObjectID) (any, bool) {
	return s.reg.lookup(id)
}

// IDOf returns the id registered for an engine handle.
func (s *Session) IDOf(obj any) (ObjectID, bool) {
	return s.reg.idOf(obj)
}

// Body resolves an id to a physics body.
func (s *Session) Body(id ObjectID) (*cp.Body, bool) {
	obj, ok := s.reg.lookup(id)
	if !ok {
		return nil, false
	}
	b, ok := obj.(*cp.Body)
	return b, ok
}

// World returns the single registered world. Refuses to guess when more
// than one world is live.
func (s *Session) World() (ObjectID, error) {
	if len(s.reg.worlds) > 1 {
		return 0, ErrMultiWorld
	}
	for _, ws := range s.reg.worlds {
		return ws.id, nil
	}
	return 0, ErrNoWorld
}

// TickCount returns a world's current tick.
func (s *Session) TickCount(world ObjectID) (int64, error) {
	_, ws, err := s.worldByID(world)
	if err != nil {
		return 0, err
	}
	return ws.tickCount, nil
}

// SetContactListener installs the collaborator receiving contact hooks.
func (s *Session) SetContactListener(l ContactListener) { s.listener = l }

// FlagNetworkIssue records a network problem observed by a collaborator
// (or by this layer's own send path).
func (s *Session) FlagNetworkIssue() { s.issueAt = time.Now() }

// NetworkIssueDetected reports whether a network problem was flagged within
// the configured issue window, or the authoritative server has gone silent
// for longer than it.
func (s *Session) NetworkIssueDetected() bool {
	window := time.Duration(s.cfg.IssueWindow * float64(time.Second))
	if time.Since(s.issueAt) < window {
		return true
	}
	if s.serverPeer == "" {
		return false
	}
	for _, ws := range s.reg.worlds {
		if !ws.lastServerContact.IsZero() && time.Since(ws.lastServerContact) > window {
			return true
		}
	}
	return false
}

// HandleEnvelope applies one received operation. Errors are logged, not
// returned: the sender already validated the operation locally, so a
// failure here indicates divergence worth surfacing loudly.
func (s *Session) HandleEnvelope(env netmsg.Envelope) {
	if env.From == s.tr.PeerID() {
		return
	}
	if s.serverPeer != "" && env.From == s.serverPeer {
		now := time.Now()
		for _, ws := range s.reg.worlds {
			ws.lastServerContact = now
		}
	}
	if err := s.apply(env); err != nil {
		slog.Warn("failed to apply replicated operation",
			"op", env.Op.String(),
			"from", env.From,
			"err", err)
	}
}

func (s *Session) worldByID(id ObjectID) (*cp.Space, *worldState, error) {
	obj, ok := s.reg.lookup(id)
	if !ok {
		return nil, nil, ErrUnknownID
	}
	space, ok := obj.(*cp.Space)
	if !ok {
		return nil, nil, ErrUnknownID
	}
	return space, s.reg.worlds[space], nil
}

// localThenSend applies an operation locally, then transmits it. The local
// application runs first so constructor ids are usable synchronously and
// argument errors surface to the caller instead of the log.
func (s *Session) localThenSend(op netmsg.Op, args []netmsg.Value, opts netmsg.SendOptions) error {
	env := netmsg.Envelope{Op: op, From: s.tr.PeerID(), Args: args}
	if err := s.apply(env); err != nil {
		return err
	}
	if err := s.tr.Send(env, opts); err != nil {
		slog.Warn("send failed", "op", op.String(), "err", err)
		s.FlagNetworkIssue()
	}
	return nil
}
