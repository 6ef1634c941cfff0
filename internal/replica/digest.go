package replica

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/crypto/blake2b"

	cp "github.com/jakecoffman/cp/v2"

	"github.com/inkwell2d/netphys/internal/netmsg"
)

// WorldDigest hashes every tracked body's transient state in ascending id
// order. Two converged replicas produce identical digests; the server
// broadcasts its digest periodically so clients can detect divergence.
func (s *Session) WorldDigest(id ObjectID) ([]byte, error) {
	space, _, err := s.worldByID(id)
	if err != nil {
		return nil, fmt.Errorf("worldDigest %d: %w", id, err)
	}
	type entry struct {
		id   ObjectID
		body *cp.Body
	}
	entries := make([]entry, 0, len(s.reg.bodies))
	for body, st := range s.reg.bodies {
		if s.reg.bodySpace[body] == space {
			entries = append(entries, entry{id: st.id, body: body})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	var buf [8]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint64(buf[:], uint64(e.id))
		h.Write(buf[:])
		for _, f := range ReadSync(e.body) {
			binary.LittleEndian.PutUint64(buf[:], uint64(int64(f*1e6)))
			h.Write(buf[:])
		}
	}
	return h.Sum(nil), nil
}

func (s *Session) broadcastDigest(space *cp.Space, ws *worldState) {
	digest, err := s.WorldDigest(ws.id)
	if err != nil {
		return
	}
	env := netmsg.Envelope{
		Op:   netmsg.OpDigest,
		From: s.tr.PeerID(),
		Args: []netmsg.Value{
			netmsg.Ref(ws.id), netmsg.Int(ws.tickCount), netmsg.Str(string(digest)),
		},
	}
	if err := s.tr.Send(env, netmsg.UnreliableSend); err != nil {
		slog.Warn("digest broadcast failed", "err", err)
		s.FlagNetworkIssue()
	}
}

// handleDigest compares the server's digest against local state. The
// comparison only fires when the ticks line up exactly; interpolation delay
// makes any other comparison meaningless.
func handleDigest(s *Session, env netmsg.Envelope) error {
	if err := wantArgs(env, 3); err != nil {
		return err
	}
	if s.server || env.From != s.serverPeer {
		return nil
	}
	_, ws, err := s.worldByID(env.Args[0].Ref)
	if err != nil || ws == nil {
		return nil // world not constructed here yet
	}
	if env.Args[1].I != ws.tickCount {
		return nil
	}
	local, err := s.WorldDigest(ws.id)
	if err != nil {
		return err
	}
	if !bytes.Equal(local, []byte(env.Args[2].S)) {
		slog.Warn("state digest mismatch", "world", ws.id, "tick", ws.tickCount)
		s.FlagNetworkIssue()
	}
	return nil
}
