package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell2d/netphys/internal/netmsg"
	"github.com/inkwell2d/netphys/internal/transport"
)

func TestWorldDigestMatchesAcrossReplicas(t *testing.T) {
	bus := transport.NewBus()
	server := joinSession(t, bus, 1, true, "")
	client := joinSession(t, bus, 2, false, server.PeerID())

	world, err := server.NewWorld(0, 0)
	require.NoError(t, err)
	body, err := server.NewBody(world, 0, 20, BodyDynamic, 1, 1)
	require.NoError(t, err)

	// A body at rest: the client's interpolation toward the server's syncs
	// writes the same state it already has, so the replicas stay identical.
	for i := 0; i < 10; i++ {
		require.NoError(t, server.UpdateWorld(world, testStep))
		require.NoError(t, client.UpdateWorld(world, testStep))
	}

	sd, err := server.WorldDigest(world)
	require.NoError(t, err)
	cd, err := client.WorldDigest(world)
	require.NoError(t, err)
	assert.Equal(t, sd, cd, "settled replicas are digest-identical")

	// Any drift shows up.
	WriteSync(mustBody(t, client, body), Sync{99, 99, 0, 0, 0, 0})
	cd, err = client.WorldDigest(world)
	require.NoError(t, err)
	assert.NotEqual(t, sd, cd)
}

func TestWorldDigestUnknownWorld(t *testing.T) {
	s := soloServer(t)
	_, err := s.WorldDigest(ObjectID(42))
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestHandleDigestFlagsMismatch(t *testing.T) {
	s := joinSession(t, transport.NewBus(), 2, false, "srv")
	world, _, ws := newWorld(t, s)
	_, err := s.NewBody(world, 0, 0, BodyDynamic, 1, 1)
	require.NoError(t, err)

	require.NoError(t, s.apply(netmsg.Envelope{
		Op:   netmsg.OpDigest,
		From: "srv",
		Args: []netmsg.Value{netmsg.Ref(world), netmsg.Int(ws.tickCount), netmsg.Str("not-a-real-digest")},
	}))
	assert.True(t, s.NetworkIssueDetected())
}

func TestHandleDigestMatchStaysQuiet(t *testing.T) {
	s := joinSession(t, transport.NewBus(), 2, false, "srv")
	world, _, ws := newWorld(t, s)
	_, err := s.NewBody(world, 3, 4, BodyDynamic, 1, 1)
	require.NoError(t, err)

	local, err := s.WorldDigest(world)
	require.NoError(t, err)
	require.NoError(t, s.apply(netmsg.Envelope{
		Op:   netmsg.OpDigest,
		From: "srv",
		Args: []netmsg.Value{netmsg.Ref(world), netmsg.Int(ws.tickCount), netmsg.Str(string(local))},
	}))
	assert.False(t, s.NetworkIssueDetected())
}

func TestHandleDigestIgnoresWrongTickOrSender(t *testing.T) {
	s := joinSession(t, transport.NewBus(), 2, false, "srv")
	world, _, ws := newWorld(t, s)

	// Tick mismatch: interpolation delay makes the comparison meaningless.
	require.NoError(t, s.apply(netmsg.Envelope{
		Op:   netmsg.OpDigest,
		From: "srv",
		Args: []netmsg.Value{netmsg.Ref(world), netmsg.Int(ws.tickCount + 5), netmsg.Str("whatever")},
	}))
	assert.False(t, s.NetworkIssueDetected())

	// Digests from anyone but the server carry no authority.
	require.NoError(t, s.apply(netmsg.Envelope{
		Op:   netmsg.OpDigest,
		From: "random-peer",
		Args: []netmsg.Value{netmsg.Ref(world), netmsg.Int(ws.tickCount), netmsg.Str("whatever")},
	}))
	assert.False(t, s.NetworkIssueDetected())
}
