package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOwnerUpdatesIndex(t *testing.T) {
	s := soloServer(t)
	world, _, _ := newWorld(t, s)
	id, err := s.NewBody(world, 0, 0, BodyDynamic, 1, 1)
	require.NoError(t, err)
	body := mustBody(t, s, id)

	require.NoError(t, s.SetOwner(id, "alice", true, 0.2))

	owner, strong, err := s.GetOwner(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)
	assert.True(t, strong)
	assert.Contains(t, s.reg.owned["alice"], body)
	assert.Equal(t, 0.2, s.reg.bodies[body].interpDelay)
	assert.GreaterOrEqual(t, s.reg.bodies[body].lastOwnedTick, int64(0))
}

func TestOwnerTransferMovesIndex(t *testing.T) {
	s := soloServer(t)
	world, _, _ := newWorld(t, s)
	id, err := s.NewBody(world, 0, 0, BodyDynamic, 1, 1)
	require.NoError(t, err)
	body := mustBody(t, s, id)

	require.NoError(t, s.SetOwner(id, "alice", true, 0))
	require.NoError(t, s.SetOwner(id, "bob", false, 0.3))

	owner, strong, err := s.GetOwner(id)
	require.NoError(t, err)
	assert.Equal(t, "bob", owner)
	assert.False(t, strong)
	assert.NotContains(t, s.reg.owned, "alice", "old owner set emptied and removed")
	assert.Contains(t, s.reg.owned["bob"], body)
}

func TestReleaseOwnerClearsState(t *testing.T) {
	s := soloServer(t)
	world, _, _ := newWorld(t, s)
	id, err := s.NewBody(world, 0, 0, BodyDynamic, 1, 1)
	require.NoError(t, err)
	body := mustBody(t, s, id)

	require.NoError(t, s.SetOwner(id, "alice", true, 0.1))
	require.NoError(t, s.ReleaseOwner(id))

	owner, strong, err := s.GetOwner(id)
	require.NoError(t, err)
	assert.Empty(t, owner)
	assert.False(t, strong)
	assert.Equal(t, int64(-1), s.reg.bodies[body].lastOwnedTick)
	assert.NotContains(t, s.reg.owned, "alice")

	// Releasing an unowned body is a no-op.
	require.NoError(t, s.ReleaseOwner(id))
}

func TestReassertSameOwnerOnlyTouchesStrength(t *testing.T) {
	s := soloServer(t)
	world, _, _ := newWorld(t, s)
	id, err := s.NewBody(world, 0, 0, BodyDynamic, 1, 1)
	require.NoError(t, err)
	body := mustBody(t, s, id)

	s.applyOwner(body, "alice", false, 0.2, 5)
	s.applyOwner(body, "alice", true, 0.9, 9)

	st := s.reg.bodies[body]
	assert.True(t, st.strong, "strength follows the re-assert")
	assert.Equal(t, 0.2, st.interpDelay, "delay unchanged on re-assert")
	assert.Equal(t, int64(5), st.lastOwnedTick, "timestamp unchanged on re-assert")
}

func TestSetOwnerUnknownBody(t *testing.T) {
	s := soloServer(t)
	assert.ErrorIs(t, s.SetOwner(ObjectID(31337), "alice", true, 0), ErrUnknownID)
	_, _, err := s.GetOwner(ObjectID(31337))
	assert.ErrorIs(t, err, ErrUnknownID)
}
