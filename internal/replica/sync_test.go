package replica

import (
	"testing"

	cp "github.com/jakecoffman/cp/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBody() *cp.Body {
	return cp.NewBody(1, 0.5)
}

func TestSyncRoundTrip(t *testing.T) {
	b := testBody()
	b.SetPosition(cp.Vector{X: 3, Y: -7})
	b.SetVelocityVector(cp.Vector{X: 0.5, Y: 12})
	b.SetAngle(1.25)
	b.SetAngularVelocity(-4)

	before := ReadSync(b)
	WriteSync(b, before)
	after := ReadSync(b)

	assert.Equal(t, before, after, "write(read(body)) must not change observable state")
}

func TestInterpolateBlend(t *testing.T) {
	before := Sync{0, 0, 0, 0, 0, 0}
	after := Sync{10, -10, 2, 4, 1, -1}

	mid := Interpolate(before, after, 0.5)
	assert.Equal(t, Sync{5, -5, 1, 2, 0.5, -0.5}, mid)

	// f is unclamped: callers may extrapolate.
	past := Interpolate(before, after, -1)
	assert.Equal(t, Sync{-10, 10, -2, -4, -1, 1}, past)
	ahead := Interpolate(before, after, 2)
	assert.Equal(t, Sync{20, -20, 4, 8, 2, -2}, ahead)
}

func TestWriteInterpolatedExactHit(t *testing.T) {
	b := testBody()
	want := Sync{1, 2, 3, 4, 5, 6}
	hist := map[int64]*Sync{42: &want}

	require.True(t, writeInterpolated(b, 42, hist, 100))
	assert.Equal(t, want, ReadSync(b))
}

func TestWriteInterpolatedBetweenTicks(t *testing.T) {
	b := testBody()
	lo := Sync{0, 0, 0, 0, 0, 0}
	hi := Sync{10, 20, 2, 2, 1, 3}
	hist := map[int64]*Sync{10: &lo, 20: &hi}

	require.True(t, writeInterpolated(b, 15, hist, 100))
	got := ReadSync(b)
	for i := range got {
		assert.GreaterOrEqual(t, got[i], min(lo[i], hi[i]), "component %d below both endpoints", i)
		assert.LessOrEqual(t, got[i], max(lo[i], hi[i]), "component %d above both endpoints", i)
	}
	assert.Equal(t, Interpolate(lo, hi, 0.5), got)
}

func TestWriteInterpolatedExtrapolatesFromLiveState(t *testing.T) {
	b := testBody()
	live := Sync{20, 0, 4, 0, 2, 0}
	WriteSync(b, live)
	recorded := Sync{10, 0, 2, 0, 1, 0}
	hist := map[int64]*Sync{10: &recorded}

	// f = (15-10)/(20-10) = 0.5 against the live state at tick 20.
	require.True(t, writeInterpolated(b, 15, hist, 20))
	assert.Equal(t, Interpolate(recorded, live, 0.5), ReadSync(b))
}

func TestWriteInterpolatedNoEarlierTick(t *testing.T) {
	b := testBody()
	initial := Sync{1, 1, 1, 1, 1, 1}
	WriteSync(b, initial)
	future := Sync{9, 9, 9, 9, 9, 9}
	hist := map[int64]*Sync{50: &future}

	assert.False(t, writeInterpolated(b, 40, hist, 45), "only future data: cannot resolve")
	assert.Equal(t, initial, ReadSync(b), "body must be left untouched on failure")

	assert.False(t, writeInterpolated(b, 40, nil, 45))
}

func TestSyncPoolRecycles(t *testing.T) {
	var pool syncPool
	a := pool.get()
	(*a)[0] = 7
	pool.put(a)
	b := pool.get()
	assert.Same(t, a, b, "free list must hand back the returned tuple")

	hist := map[int64]*Sync{1: pool.get(), 2: pool.get()}
	pool.drain(hist)
	assert.Empty(t, hist)
	assert.Len(t, pool.free, 2)
}
