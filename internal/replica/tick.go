package replica

import (
	"fmt"
	"log/slog"

	cp "github.com/jakecoffman/cp/v2"

	"github.com/inkwell2d/netphys/internal/netmsg"
)

// weakDelayScale shortens the interpolation delay of weakly owned bodies so
// casually grabbed objects feel more responsive.
const weakDelayScale = 0.8

// UpdateWorld advances a world by dt seconds of real time.
//
// Server only: a pending rewind runs first — bodies are reconstructed at the
// rewind tick from received syncs or recorded history and the intervening
// ticks are replayed, so late-arriving authoritative data re-derives the
// correct collision responses instead of leaving a stale trajectory.
//
// Then accumulated time is consumed in fixed ticks of 1/updateRate seconds,
// capped per call; time beyond the cap is dropped so a long pause cannot
// stall real-time responsiveness while the simulation catches up.
func (s *Session) UpdateWorld(id ObjectID, dt float64) error {
	space, ws, err := s.worldByID(id)
	if err != nil {
		return fmt.Errorf("updateWorld %d: %w", id, err)
	}
	if s.server && ws.rewindFrom >= 0 {
		s.rewindWorld(space, ws)
	}
	step := 1.0 / float64(s.cfg.UpdateRate)
	ws.remaining += dt
	ran := 0
	for ws.remaining >= step && ran < s.cfg.MaxCatchUpTicks {
		s.tickWorld(space, ws)
		ws.remaining -= step
		ran++
	}
	if ran >= s.cfg.MaxCatchUpTicks {
		ws.remaining = 0
	}
	if ran > 0 {
		s.broadcastSyncs(space, ws)
		if s.server && s.cfg.DigestInterval > 0 && ws.tickCount-ws.lastDigestTick >= s.cfg.DigestInterval {
			s.broadcastDigest(space, ws)
			ws.lastDigestTick = ws.tickCount
		}
	}
	return nil
}

// tickWorld runs one fixed simulation step.
func (s *Session) tickWorld(space *cp.Space, ws *worldState) {
	space.Step(1.0 / float64(s.cfg.UpdateRate))
	ws.tickCount++
	cutoff := ws.tickCount - s.cfg.HistorySize
	self := s.tr.PeerID()
	for body, st := range s.reg.bodies {
		if s.reg.bodySpace[body] != space {
			continue
		}
		// Another participant is the authority: the owner, or the server
		// for unowned bodies on clients.
		if st.owner != self && (st.owner != "" || !s.server) {
			// Keep the trailing window, then display the body slightly in
			// the past so jitter is absorbed by the time the shown tick
			// arrives.
			for tick, snap := range st.remote {
				if tick <= cutoff {
					s.reg.pool.put(snap)
					delete(st.remote, tick)
				}
			}
			delay := st.interpDelay
			if delay == 0 {
				delay = s.cfg.InterpolationDelay
			}
			if st.owner != "" && !st.strong {
				delay *= weakDelayScale
			}
			target := float64(ws.tickCount) - delay*float64(s.cfg.UpdateRate)
			writeInterpolated(body, target, st.remote, ws.tickCount)
		}
		if s.server {
			// Ground-truth trail for rewind.
			for tick, snap := range st.history {
				if tick <= cutoff {
					s.reg.pool.put(snap)
					delete(st.history, tick)
				}
			}
			if !body.IsSleeping() && body.GetType() != cp.BODY_STATIC {
				if st.history == nil {
					st.history = make(map[int64]*Sync)
				}
				snap, ok := st.history[ws.tickCount]
				if !ok {
					snap = s.reg.pool.get()
					st.history[ws.tickCount] = snap
				}
				*snap = ReadSync(body)
			}
		}
	}
}

// rewindWorld reconstructs body states at ws.rewindFrom and replays forward
// to the current tick. Bodies with no usable source for the target tick
// keep their pre-rewind live state: it is remembered up front and restored
// after the replay so they are not corrupted by it.
func (s *Session) rewindWorld(space *cp.Space, ws *worldState) {
	target := ws.rewindFrom
	prev := ws.tickCount
	ws.rewindFrom = -1
	if target >= prev {
		return
	}
	type frozen struct {
		body *cp.Body
		live Sync
	}
	var unrewound []frozen
	for body, st := range s.reg.bodies {
		if s.reg.bodySpace[body] != space || body.GetType() == cp.BODY_STATIC {
			continue
		}
		restored := false
		if len(st.remote) > 0 {
			restored = writeInterpolated(body, float64(target), st.remote, ws.tickCount)
		}
		if !restored {
			if snap, ok := st.history[target]; ok {
				WriteSync(body, *snap)
				restored = true
			}
		}
		if !restored {
			unrewound = append(unrewound, frozen{body: body, live: ReadSync(body)})
		}
	}
	ws.tickCount = target
	for ws.tickCount < prev {
		s.tickWorld(space, ws)
	}
	for _, f := range unrewound {
		WriteSync(f.body, f.live)
	}
	slog.Debug("rewound world", "world", ws.id, "from", prev, "to", target)
}

// broadcastSyncs sends the transient state of every awake dynamic body this
// participant is authoritative for. The server is additionally the
// authority for unowned bodies.
func (s *Session) broadcastSyncs(space *cp.Space, ws *worldState) {
	self := s.tr.PeerID()
	args := []netmsg.Value{netmsg.Int(ws.tickCount)}
	for body, st := range s.reg.bodies {
		if s.reg.bodySpace[body] != space {
			continue
		}
		mine := st.owner == self || (s.server && st.owner == "")
		if !mine || body.GetType() == cp.BODY_STATIC || body.IsSleeping() {
			continue
		}
		args = append(args, netmsg.Ref(st.id), netmsg.Sync([6]float64(ReadSync(body))))
	}
	if len(args) == 1 {
		return
	}
	env := netmsg.Envelope{Op: netmsg.OpSyncBatch, From: self, Args: args}
	if err := s.tr.Send(env, netmsg.UnreliableSend); err != nil {
		slog.Warn("sync broadcast failed", "err", err)
		s.FlagNetworkIssue()
	}
}

// handleSyncBatch stores received syncs into the per-body client history.
// On the server, a sync older than the current tick schedules a rewind to
// that tick so the trajectory is re-derived with the corrected data.
func handleSyncBatch(s *Session, env netmsg.Envelope) error {
	if len(env.Args) < 1 || (len(env.Args)-1)%2 != 0 {
		return fmt.Errorf("%s: malformed batch of %d args", env.Op, len(env.Args))
	}
	if env.Args[0].Kind != netmsg.KindInt {
		return fmt.Errorf("%s: batch tick has kind %d, want int", env.Op, env.Args[0].Kind)
	}
	for i := 1; i < len(env.Args); i += 2 {
		if env.Args[i].Kind != netmsg.KindRef || env.Args[i+1].Kind != netmsg.KindSync {
			return fmt.Errorf("%s: entry %d has kinds %d/%d, want ref/sync",
				env.Op, i, env.Args[i].Kind, env.Args[i+1].Kind)
		}
	}
	tick := env.Args[0].I
	self := s.tr.PeerID()
	for i := 1; i < len(env.Args); i += 2 {
		body, ok := s.bodyArg(env.Args[i].Ref)
		if !ok {
			continue // not constructed yet, or already destroyed
		}
		st := s.reg.bodies[body]
		if st.owner == self {
			continue // we are the authority for this body
		}
		if st.owner == "" {
			if s.serverPeer != "" && env.From != s.serverPeer {
				continue // unowned bodies follow the server only
			}
		} else if st.owner != env.From && env.From != s.serverPeer {
			continue // stale sender, ownership has moved on
		}
		if st.remote == nil {
			st.remote = make(map[int64]*Sync)
		}
		snap, ok := st.remote[tick]
		if !ok {
			snap = s.reg.pool.get()
			st.remote[tick] = snap
		}
		*snap = Sync(env.Args[i+1].Sync)
		if s.server {
			if ws := s.reg.worlds[s.reg.bodySpace[body]]; ws != nil && tick < ws.tickCount {
				if ws.rewindFrom < 0 || tick < ws.rewindFrom {
					ws.rewindFrom = tick
				}
			}
		}
	}
	return nil
}
