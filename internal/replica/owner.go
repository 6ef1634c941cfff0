package replica

import (
	"fmt"

	cp "github.com/jakecoffman/cp/v2"

	"github.com/inkwell2d/netphys/internal/netmsg"
)

// SetOwner replicates an ownership change for a body. owner == "" releases
// ownership. The message carries the body's current world tick so every
// replica timestamps the change at the same logical simulation time
// regardless of transmission delay.
func (s *Session) SetOwner(id ObjectID, owner string, strong bool, interpolationDelay float64) error {
	body, ok := s.bodyArg(id)
	if !ok {
		return fmt.Errorf("%s %d: %w", netmsg.OpSetOwner, id, ErrUnknownID)
	}
	var tick int64
	if ws := s.reg.worlds[s.reg.bodySpace[body]]; ws != nil {
		tick = ws.tickCount
	}
	ownerArg := netmsg.Nil()
	if owner != "" {
		ownerArg = netmsg.Str(owner)
	}
	return s.localThenSend(netmsg.OpSetOwner, []netmsg.Value{
		netmsg.Ref(id), ownerArg, netmsg.Bool(strong), netmsg.Float(interpolationDelay), netmsg.Int(tick),
	}, netmsg.ReliableSend)
}

// ReleaseOwner clears a body's owner.
func (s *Session) ReleaseOwner(id ObjectID) error {
	return s.SetOwner(id, "", false, 0)
}

// GetOwner returns a body's current owner ("" = unowned) and whether the
// ownership is strong.
func (s *Session) GetOwner(id ObjectID) (string, bool, error) {
	body, ok := s.bodyArg(id)
	if !ok {
		return "", false, fmt.Errorf("getOwner %d: %w", id, ErrUnknownID)
	}
	st := s.reg.bodies[body]
	return st.owner, st.strong, nil
}

func handleSetOwner(s *Session, env netmsg.Envelope) error {
	if err := wantArgs(env, 5); err != nil {
		return err
	}
	body, ok := s.bodyArg(env.Args[0].Ref)
	if !ok {
		return fmt.Errorf("%s %d: %w", env.Op, env.Args[0].Ref, ErrUnknownID)
	}
	owner := ""
	if env.Args[1].Kind == netmsg.KindString {
		owner = env.Args[1].S
	}
	s.applyOwner(body, owner, env.Args[2].B, env.Args[3].F, env.Args[4].I)
	return nil
}

// applyOwner runs the ownership state machine. The owner index is updated
// in the same step as the per-body field; the two must never diverge.
func (s *Session) applyOwner(body *cp.Body, owner string, strong bool, delay float64, tick int64) {
	st := s.reg.bodies[body]
	if owner == "" {
		if st.owner == "" {
			return
		}
		s.reg.dropOwned(st.owner, body)
		st.owner = ""
		st.strong = false
		st.lastOwnedTick = -1
		return
	}
	if st.owner != owner {
		if st.owner != "" {
			s.reg.dropOwned(st.owner, body)
		}
		s.reg.ownedSet(owner)[body] = struct{}{}
		st.owner = owner
		st.interpDelay = delay
		st.lastOwnedTick = tick
	}
	// Re-asserting the same owner is a no-op apart from the strong flag.
	st.strong = strong
}
