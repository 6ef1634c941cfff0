package replica

import (
	"testing"

	cp "github.com/jakecoffman/cp/v2"
	"github.com/stretchr/testify/require"

	"github.com/inkwell2d/netphys/internal/transport"
)

// joinSession attaches a fresh session to the bus under the given id ordinal.
func joinSession(t *testing.T, bus *transport.Bus, ordinal uint16, server bool, serverPeer string) *Session {
	t.Helper()
	peer := bus.Join()
	s := NewSession(Options{
		Transport:  peer,
		IDs:        transport.NewIDGenerator(ordinal),
		Server:     server,
		ServerPeer: serverPeer,
	})
	peer.SetHandler(s.HandleEnvelope)
	return s
}

// soloServer is a server session alone on a synchronous bus.
func soloServer(t *testing.T) *Session {
	t.Helper()
	return joinSession(t, transport.NewBus(), 1, true, "")
}

// newWorld creates a gravity-free world and returns its id plus internals.
func newWorld(t *testing.T, s *Session) (ObjectID, *cp.Space, *worldState) {
	t.Helper()
	id, err := s.NewWorld(0, 0)
	require.NoError(t, err)
	space, ws, err := s.worldByID(id)
	require.NoError(t, err)
	return id, space, ws
}

// worldOf returns the session's single world and its internals.
func worldOf(t *testing.T, s *Session) (ObjectID, *cp.Space, *worldState) {
	t.Helper()
	id, err := s.World()
	require.NoError(t, err)
	space, ws, err := s.worldByID(id)
	require.NoError(t, err)
	return id, space, ws
}

func mustBody(t *testing.T, s *Session, id ObjectID) *cp.Body {
	t.Helper()
	b, ok := s.Body(id)
	require.True(t, ok, "body %d not registered", id)
	return b
}
