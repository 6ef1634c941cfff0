package replica

import (
	cp "github.com/jakecoffman/cp/v2"
)

// Sync is the complete transient state needed to resume simulation for a
// body: x, y, vx, vy, angle, angular velocity.
type Sync [6]float64

// ReadSync snapshots a body's transient state.
func ReadSync(b *cp.Body) Sync {
	pos := b.Position()
	vel := b.Velocity()
	return Sync{pos.X, pos.Y, vel.X, vel.Y, b.Angle(), b.AngularVelocity()}
}

// WriteSync applies all six fields; no partial application is visible to a
// subsequent ReadSync.
func WriteSync(b *cp.Body, s Sync) {
	b.SetPosition(cp.Vector{X: s[0], Y: s[1]})
	b.SetVelocityVector(cp.Vector{X: s[2], Y: s[3]})
	b.SetAngle(s[4])
	b.SetAngularVelocity(s[5])
}

// Interpolate blends two syncs componentwise. f is unclamped: callers may
// extrapolate with f > 1 or f < 0.
func Interpolate(before, after Sync, f float64) Sync {
	var out Sync
	for i := range before {
		out[i] = before[i] + f*(after[i]-before[i])
	}
	return out
}

// writeInterpolated writes the best available estimate for target (a
// possibly fractional tick) from a sparse tick history to the body.
//
// Resolution order: exact hit; blend between the nearest recorded ticks
// around target; extrapolation from the nearest earlier tick using the
// body's live state as a synthetic sample at current (lets a body coast on
// its last known velocity while newer data is in flight). With no earlier
// tick at all the body is left untouched and false is returned.
func writeInterpolated(b *cp.Body, target float64, hist map[int64]*Sync, current int64) bool {
	if t := int64(target); float64(t) == target {
		if s, ok := hist[t]; ok {
			WriteSync(b, *s)
			return true
		}
	}
	var before, after int64
	var haveBefore, haveAfter bool
	for tick := range hist {
		if float64(tick) < target {
			if !haveBefore || tick > before {
				before = tick
				haveBefore = true
			}
		} else if !haveAfter || tick < after {
			after = tick
			haveAfter = true
		}
	}
	switch {
	case haveBefore && haveAfter:
		f := (target - float64(before)) / (float64(after) - float64(before))
		WriteSync(b, Interpolate(*hist[before], *hist[after], f))
		return true
	case haveBefore:
		if current <= before {
			WriteSync(b, *hist[before])
			return true
		}
		live := ReadSync(b)
		f := (target - float64(before)) / (float64(current) - float64(before))
		WriteSync(b, Interpolate(*hist[before], live, f))
		return true
	default:
		return false
	}
}

// syncPool is a free list of history tuples. History entries churn every
// tick on every body; recycling them bounds allocation.
type syncPool struct {
	free []*Sync
}

func (p *syncPool) get() *Sync {
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]
		return s
	}
	return new(Sync)
}

func (p *syncPool) put(s *Sync) {
	if s != nil {
		p.free = append(p.free, s)
	}
}

// drain returns every entry of a history map to the pool and clears it.
func (p *syncPool) drain(hist map[int64]*Sync) {
	for tick, s := range hist {
		p.put(s)
		delete(hist, tick)
	}
}
