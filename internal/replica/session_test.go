package replica

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell2d/netphys/internal/netmsg"
	"github.com/inkwell2d/netphys/internal/transport"
)

func TestReplicationAcrossSessions(t *testing.T) {
	bus := transport.NewBus()
	server := joinSession(t, bus, 1, true, "")
	client := joinSession(t, bus, 2, false, server.PeerID())

	world, err := server.NewWorld(0, -10)
	require.NoError(t, err)
	got, err := client.World()
	require.NoError(t, err)
	assert.Equal(t, world, got, "world constructed on the server appears on the client")

	body, err := client.NewBody(world, 1, 2, BodyDynamic, 1, 1)
	require.NoError(t, err)
	serverBody := mustBody(t, server, body)
	assert.Equal(t, 1.0, serverBody.Position().X)

	require.NoError(t, client.SetPosition(body, 8, -4))
	assert.Equal(t, -4.0, serverBody.Position().Y, "mutations replicate")

	require.NoError(t, client.SetOwner(body, client.PeerID(), true, 0.1))
	owner, strong, err := server.GetOwner(body)
	require.NoError(t, err)
	assert.Equal(t, client.PeerID(), owner)
	assert.True(t, strong)

	require.NoError(t, server.Destroy(body))
	_, ok := client.Object(body)
	assert.False(t, ok, "destruction replicates")
}

func TestLateSyncsRewindServerOntoClientTrajectory(t *testing.T) {
	bus := transport.NewManualBus()
	server := joinSession(t, bus, 1, true, "")
	client := joinSession(t, bus, 2, false, server.PeerID())

	world, err := server.NewWorld(0, 0)
	require.NoError(t, err)
	bus.Flush()

	body, err := client.NewBody(world, 0, 0, BodyDynamic, 1, 1)
	require.NoError(t, err)
	require.NoError(t, client.SetOwner(body, client.PeerID(), true, 0.1))
	bus.Flush()

	// The impulse and thirty ticks of syncs sit in the queue while the
	// server simulates the same span without them.
	require.NoError(t, client.ApplyImpulse(body, 3, 0))
	for i := 0; i < 30; i++ {
		require.NoError(t, client.UpdateWorld(world, testStep))
		require.NoError(t, server.UpdateWorld(world, testStep))
	}
	serverBody := mustBody(t, server, body)
	assert.Zero(t, serverBody.Position().X, "server has not seen the impulse yet")

	bus.Flush()
	_, _, ws := worldOf(t, server)
	assert.Equal(t, int64(1), ws.rewindFrom, "oldest late sync schedules the rewind")

	require.NoError(t, server.UpdateWorld(world, 0))

	tick, err := server.TickCount(world)
	require.NoError(t, err)
	assert.Equal(t, int64(30), tick, "replay ends at the pre-rewind tick")
	// The body is shown 6 ticks (0.1 s at 60 Hz) behind the owner's tick 30,
	// moving at the impulse velocity of 3 units/s.
	assert.InDelta(t, 3.0*24/60, serverBody.Position().X, 1e-9)
	assert.InDelta(t, 3.0, serverBody.Velocity().X, 1e-9)
}

func TestHandleEnvelopeIgnoresOwnEcho(t *testing.T) {
	s := joinSession(t, transport.NewBus(), 2, false, "srv")
	s.HandleEnvelope(netmsg.Envelope{
		Op:   netmsg.OpCreateWorld,
		From: s.PeerID(),
		Args: []netmsg.Value{netmsg.Ref(ObjectID(1)), netmsg.Float(0), netmsg.Float(0)},
	})
	_, err := s.World()
	assert.ErrorIs(t, err, ErrNoWorld, "echoes of our own sends are not re-applied")
}

func TestNetworkIssueFlagging(t *testing.T) {
	s := joinSession(t, transport.NewBus(), 2, false, "srv")
	assert.False(t, s.NetworkIssueDetected())

	s.FlagNetworkIssue()
	assert.True(t, s.NetworkIssueDetected())
}

func TestNetworkIssueFromServerSilence(t *testing.T) {
	s := joinSession(t, transport.NewBus(), 2, false, "srv")
	_, _, ws := newWorld(t, s)
	assert.False(t, s.NetworkIssueDetected(), "no contact yet means no verdict")

	ws.lastServerContact = time.Now().Add(-3 * time.Second)
	assert.True(t, s.NetworkIssueDetected(), "silence beyond the window is an issue")

	// Any envelope from the server refreshes the contact time.
	s.HandleEnvelope(netmsg.Envelope{
		Op:   netmsg.OpSyncBatch,
		From: "srv",
		Args: []netmsg.Value{netmsg.Int(0)},
	})
	assert.False(t, s.NetworkIssueDetected())
}
