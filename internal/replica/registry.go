package replica

import (
	"fmt"
	"time"

	cp "github.com/jakecoffman/cp/v2"

	"github.com/inkwell2d/netphys/internal/netmsg"
)

// ObjectID aliases the wire-level object identifier.
type ObjectID = netmsg.ObjectID

// bodyState is the replication metadata of one tracked body.
type bodyState struct {
	id     ObjectID
	owner  string // participant id, "" = unowned
	strong bool

	// lastOwnedTick is the world tick of the last ownership change, in the
	// tick supplied by the setOwner message. -1 = never owned.
	lastOwnedTick int64

	// interpDelay is the display lag for this body when remotely owned.
	// 0 = use the configured default.
	interpDelay float64

	// remote holds syncs received from the network for this body while it
	// is owned by another participant (tick → sync, sparse).
	remote map[int64]*Sync

	// history is the server's full local simulation record (tick → sync).
	history map[int64]*Sync
}

// worldState is the replication metadata of one tracked world.
type worldState struct {
	id         ObjectID
	tickCount  int64
	remaining  float64 // accumulated update time not yet simulated
	rewindFrom int64   // tick to rewind to, -1 = none pending

	// lastDigestTick is the tick of the last broadcast state digest
	// (server only).
	lastDigestTick int64

	// lastServerContact is when data from the authoritative server last
	// arrived (clients only).
	lastServerContact time.Time
}

// registry maps object ids to live engine handles and holds per-object
// metadata. Parent→children indices are maintained explicitly on create and
// destroy instead of traversing the engine's object graph.
type registry struct {
	objects map[ObjectID]any
	ids     map[any]ObjectID

	bodies map[*cp.Body]*bodyState
	worlds map[*cp.Space]*worldState

	fixtures    map[*cp.Body][]*cp.Shape
	joints      map[*cp.Body][]*cp.Constraint
	shapeBody   map[*cp.Shape]*cp.Body
	jointBodies map[*cp.Constraint][2]*cp.Body
	bodySpace   map[*cp.Body]*cp.Space

	// owned is the reverse ownership index, participant id → owned bodies.
	// Kept in lockstep with bodyState.owner.
	owned map[string]map[*cp.Body]struct{}

	pool syncPool
}

func newRegistry() *registry {
	return &registry{
		objects:     make(map[ObjectID]any),
		ids:         make(map[any]ObjectID),
		bodies:      make(map[*cp.Body]*bodyState),
		worlds:      make(map[*cp.Space]*worldState),
		fixtures:    make(map[*cp.Body][]*cp.Shape),
		joints:      make(map[*cp.Body][]*cp.Constraint),
		shapeBody:   make(map[*cp.Shape]*cp.Body),
		jointBodies: make(map[*cp.Constraint][2]*cp.Body),
		bodySpace:   make(map[*cp.Body]*cp.Space),
		owned:       make(map[string]map[*cp.Body]struct{}),
	}
}

// register installs both directions of the id↔object map.
func (r *registry) register(id ObjectID, obj any) error {
	if _, ok := r.objects[id]; ok {
		return fmt.Errorf("register %d: %w", id, ErrDuplicateID)
	}
	r.objects[id] = obj
	r.ids[obj] = id
	return nil
}

func (r *registry) lookup(id ObjectID) (any, bool) {
	obj, ok := r.objects[id]
	return obj, ok
}

func (r *registry) idOf(obj any) (ObjectID, bool) {
	id, ok := r.ids[obj]
	return id, ok
}

func (r *registry) unregister(id ObjectID, obj any) {
	delete(r.objects, id)
	delete(r.ids, obj)
}

// ownedSet returns the owner's body set, creating it on first use.
func (r *registry) ownedSet(owner string) map[*cp.Body]struct{} {
	set, ok := r.owned[owner]
	if !ok {
		set = make(map[*cp.Body]struct{})
		r.owned[owner] = set
	}
	return set
}

func (r *registry) dropOwned(owner string, b *cp.Body) {
	if set, ok := r.owned[owner]; ok {
		delete(set, b)
		if len(set) == 0 {
			delete(r.owned, owner)
		}
	}
}

// destroy unregisters the object behind id and releases its engine handle.
// Destroying a body cascades to its fixtures and joints first; history
// buffers go back to the pool rather than the garbage collector.
func (r *registry) destroy(id ObjectID) error {
	obj, ok := r.objects[id]
	if !ok {
		return fmt.Errorf("destroy %d: %w", id, ErrUnknownID)
	}
	switch h := obj.(type) {
	case *cp.Shape:
		r.destroyShape(h)
	case *cp.Constraint:
		r.destroyJoint(h)
	case *cp.Body:
		r.destroyBody(h)
	case *cp.Space:
		delete(r.worlds, h)
		r.unregister(id, obj)
	default:
		return fmt.Errorf("destroy %d: unsupported kind %T", id, obj)
	}
	return nil
}

func (r *registry) destroyShape(sh *cp.Shape) {
	body := r.shapeBody[sh]
	if body != nil {
		if space := r.bodySpace[body]; space != nil {
			space.RemoveShape(sh)
		}
		r.fixtures[body] = removeFrom(r.fixtures[body], sh)
	}
	delete(r.shapeBody, sh)
	if id, ok := r.ids[sh]; ok {
		r.unregister(id, sh)
	}
}

func (r *registry) destroyJoint(j *cp.Constraint) {
	pair := r.jointBodies[j]
	for _, body := range pair {
		if body == nil {
			continue
		}
		if space := r.bodySpace[body]; space != nil {
			space.RemoveConstraint(j)
			break
		}
	}
	for _, body := range pair {
		if body != nil {
			r.joints[body] = removeFrom(r.joints[body], j)
		}
	}
	delete(r.jointBodies, j)
	if id, ok := r.ids[j]; ok {
		r.unregister(id, j)
	}
}

func (r *registry) destroyBody(b *cp.Body) {
	for _, sh := range append([]*cp.Shape(nil), r.fixtures[b]...) {
		r.destroyShape(sh)
	}
	for _, j := range append([]*cp.Constraint(nil), r.joints[b]...) {
		r.destroyJoint(j)
	}
	delete(r.fixtures, b)
	delete(r.joints, b)
	if st := r.bodies[b]; st != nil {
		if st.owner != "" {
			r.dropOwned(st.owner, b)
		}
		r.pool.drain(st.remote)
		r.pool.drain(st.history)
		delete(r.bodies, b)
	}
	if space := r.bodySpace[b]; space != nil {
		space.RemoveBody(b)
	}
	delete(r.bodySpace, b)
	if id, ok := r.ids[b]; ok {
		r.unregister(id, b)
	}
}

func removeFrom[T comparable](list []T, v T) []T {
	for i, cur := range list {
		if cur == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
