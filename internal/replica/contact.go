package replica

import (
	"log/slog"

	cp "github.com/jakecoffman/cp/v2"
)

// contactCollisionType is assigned to every replicated fixture so one
// collision handler observes all contacts.
const contactCollisionType cp.CollisionType = 1

// ContactListener receives contact events for replicated fixtures, keyed by
// fixture id. Rendering and gameplay collaborators register one per session.
type ContactListener interface {
	BeginContact(a, b ObjectID)
	EndContact(a, b ObjectID)
	PreSolve(a, b ObjectID)
	PostSolve(a, b ObjectID)
}

func (s *Session) installContacts(space *cp.Space) {
	h := space.NewCollisionHandler(contactCollisionType, contactCollisionType)
	h.BeginFunc = func(arb *cp.Arbiter, _ *cp.Space, _ interface{}) bool {
		if s.listener != nil {
			if a, b, ok := s.fixtureIDs(arb); ok {
				s.listener.BeginContact(a, b)
			}
		}
		return true
	}
	h.PreSolveFunc = func(arb *cp.Arbiter, _ *cp.Space, _ interface{}) bool {
		if s.listener != nil {
			if a, b, ok := s.fixtureIDs(arb); ok {
				s.listener.PreSolve(a, b)
			}
		}
		return true
	}
	h.PostSolveFunc = func(arb *cp.Arbiter, _ *cp.Space, _ interface{}) {
		s.onPostSolve(arb)
	}
	h.SeparateFunc = func(arb *cp.Arbiter, _ *cp.Space, _ interface{}) {
		if s.listener != nil {
			if a, b, ok := s.fixtureIDs(arb); ok {
				s.listener.EndContact(a, b)
			}
		}
	}
}

func (s *Session) fixtureIDs(arb *cp.Arbiter) (ObjectID, ObjectID, bool) {
	sa, sb := arb.Shapes()
	ida, oka := s.reg.idOf(sa)
	idb, okb := s.reg.idOf(sb)
	return ida, idb, oka && okb
}

// onPostSolve delivers the hook and evaluates the ownership propagation
// policy: contact with a strongly anchored cluster pulls weakly owned
// neighbors under the same authority, so physically interacting groups
// simulate on one host.
func (s *Session) onPostSolve(arb *cp.Arbiter) {
	if s.listener != nil {
		if a, b, ok := s.fixtureIDs(arb); ok {
			s.listener.PostSolve(a, b)
		}
	}
	if s.server {
		return // clients spread ownership; the server only follows
	}
	sa, sb := arb.Shapes()
	if sa.Sensor() || sb.Sensor() {
		return
	}
	ba, bb := arb.Bodies()
	if ba.GetType() == cp.BODY_STATIC || bb.GetType() == cp.BODY_STATIC {
		return
	}
	s.tryPropagate(ba, bb)
	s.tryPropagate(bb, ba)
}

func (s *Session) tryPropagate(src, dst *cp.Body) {
	srcSt := s.reg.bodies[src]
	dstSt := s.reg.bodies[dst]
	if srcSt == nil || dstSt == nil {
		return
	}
	if srcSt.owner == "" || dstSt.strong || dstSt.owner == srcSt.owner {
		return
	}
	ws := s.reg.worlds[s.reg.bodySpace[dst]]
	if ws == nil {
		return
	}
	// Cooldown after any ownership change, so clusters don't thrash
	// between authorities on every solver iteration.
	cooldown := int64(s.cfg.SoftOwnerDelay * float64(s.cfg.UpdateRate))
	if dstSt.lastOwnedTick >= 0 && ws.tickCount-dstSt.lastOwnedTick < cooldown {
		return
	}
	wins := srcSt.strong || dstSt.lastOwnedTick < 0 || srcSt.lastOwnedTick > dstSt.lastOwnedTick
	if !wins {
		return
	}
	// Propagated ownership is always weak, whatever the source's strength.
	if err := s.SetOwner(dstSt.id, srcSt.owner, false, srcSt.interpDelay); err != nil {
		slog.Warn("ownership propagation failed", "body", dstSt.id, "err", err)
	}
}
