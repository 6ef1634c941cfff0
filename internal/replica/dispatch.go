package replica

import (
	"fmt"

	cp "github.com/jakecoffman/cp/v2"

	"github.com/inkwell2d/netphys/internal/netmsg"
)

// opHandler is the receive side of one replicated operation. Every
// participant, the sender included, applies operations through this table,
// which is what keeps replicas identical.
type opHandler func(s *Session, env netmsg.Envelope) error

// Populated in init: the handlers reach apply again through Session methods,
// so a composite literal here would be an initialization cycle.
var opTable map[netmsg.Op]opHandler

func init() {
	opTable = map[netmsg.Op]opHandler{
		netmsg.OpCreateWorld:   handleCreateWorld,
		netmsg.OpCreateBody:    handleCreateBody,
		netmsg.OpCreateFixture: handleCreateFixture,
		netmsg.OpCreateJoint:   handleCreateJoint,
		netmsg.OpDestroy:       handleDestroy,
		netmsg.OpSetOwner:      handleSetOwner,
		netmsg.OpSyncBatch:     handleSyncBatch,
		netmsg.OpDigest:        handleDigest,
	}
}

func (s *Session) apply(env netmsg.Envelope) error {
	if h, ok := opTable[env.Op]; ok {
		return h(s, env)
	}
	if m, ok := mutators[env.Op]; ok {
		return applyMutator(s, env, m)
	}
	return fmt.Errorf("%s: unknown operation", env.Op)
}

func wantArgs(env netmsg.Envelope, n int) error {
	if len(env.Args) != n {
		return fmt.Errorf("%s: got %d args, want %d", env.Op, len(env.Args), n)
	}
	return nil
}

// BodyType selects the simulation mode of a new body.
type BodyType int

const (
	BodyDynamic BodyType = iota
	BodyKinematic
	BodyStatic
)

// JointType selects a joint variant.
type JointType int

const (
	JointPivot JointType = iota + 1
	JointPin
	JointSpring
	JointSlide
	JointMotor
)

// jointParams is the per-variant float parameter count.
var jointParams = map[JointType]int{
	JointPivot:  2, // world pivot x, y
	JointPin:    4, // local anchors ax, ay, bx, by
	JointSpring: 7, // anchors + rest length, stiffness, damping
	JointSlide:  6, // anchors + min, max
	JointMotor:  1, // rate
}

// NewWorld replicates construction of a physics world and returns its id
// synchronously.
func (s *Session) NewWorld(gravityX, gravityY float64) (ObjectID, error) {
	id := s.ids.Next()
	err := s.localThenSend(netmsg.OpCreateWorld, []netmsg.Value{
		netmsg.Ref(id), netmsg.Float(gravityX), netmsg.Float(gravityY),
	}, netmsg.ReliableSend)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func handleCreateWorld(s *Session, env netmsg.Envelope) error {
	if err := wantArgs(env, 3); err != nil {
		return err
	}
	id := env.Args[0].Ref
	space := cp.NewSpace()
	space.SetGravity(cp.Vector{X: env.Args[1].F, Y: env.Args[2].F})
	if err := s.reg.register(id, space); err != nil {
		return fmt.Errorf("%s: %w", env.Op, err)
	}
	s.installContacts(space)
	s.reg.worlds[space] = &worldState{id: id, rewindFrom: -1}
	return nil
}

// NewBody replicates construction of a body in the given world.
func (s *Session) NewBody(world ObjectID, x, y float64, typ BodyType, mass, moment float64) (ObjectID, error) {
	id := s.ids.Next()
	err := s.localThenSend(netmsg.OpCreateBody, []netmsg.Value{
		netmsg.Ref(id), netmsg.Ref(world),
		netmsg.Float(x), netmsg.Float(y),
		netmsg.Int(int64(typ)), netmsg.Float(mass), netmsg.Float(moment),
	}, netmsg.ReliableSend)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func handleCreateBody(s *Session, env netmsg.Envelope) error {
	if err := wantArgs(env, 7); err != nil {
		return err
	}
	id := env.Args[0].Ref
	if _, ok := s.reg.lookup(id); ok {
		return fmt.Errorf("%s %d: %w", env.Op, id, ErrDuplicateID)
	}
	obj, ok := s.reg.lookup(env.Args[1].Ref)
	if !ok {
		return fmt.Errorf("%s: world %d: %w", env.Op, env.Args[1].Ref, ErrUnknownID)
	}
	space, ok := obj.(*cp.Space)
	if !ok {
		return fmt.Errorf("%s: object %d is not a world", env.Op, env.Args[1].Ref)
	}
	var body *cp.Body
	switch BodyType(env.Args[4].I) {
	case BodyStatic:
		body = cp.NewStaticBody()
	case BodyKinematic:
		body = cp.NewKinematicBody()
	case BodyDynamic:
		mass, moment := env.Args[5].F, env.Args[6].F
		if mass <= 0 || moment <= 0 {
			return fmt.Errorf("%s: dynamic body needs positive mass and moment, got %v/%v", env.Op, mass, moment)
		}
		body = cp.NewBody(mass, moment)
	default:
		return fmt.Errorf("%s: unknown body type %d", env.Op, env.Args[4].I)
	}
	body.SetPosition(cp.Vector{X: env.Args[2].F, Y: env.Args[3].F})
	space.AddBody(body)
	if err := s.reg.register(id, body); err != nil {
		space.RemoveBody(body)
		return fmt.Errorf("%s: %w", env.Op, err)
	}
	s.reg.bodies[body] = &bodyState{id: id, lastOwnedTick: -1}
	s.reg.bodySpace[body] = space
	return nil
}

// NewFixture replicates attachment of a shape to a body. The shape
// definition travels by value; only the resulting fixture gets an id.
func (s *Session) NewFixture(body ObjectID, def netmsg.ShapeDef) (ObjectID, error) {
	id := s.ids.Next()
	err := s.localThenSend(netmsg.OpCreateFixture, []netmsg.Value{
		netmsg.Ref(id), netmsg.Ref(body), netmsg.Shape(def),
	}, netmsg.ReliableSend)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func handleCreateFixture(s *Session, env netmsg.Envelope) error {
	if err := wantArgs(env, 3); err != nil {
		return err
	}
	id := env.Args[0].Ref
	if _, ok := s.reg.lookup(id); ok {
		return fmt.Errorf("%s %d: %w", env.Op, id, ErrDuplicateID)
	}
	obj, ok := s.reg.lookup(env.Args[1].Ref)
	if !ok {
		return fmt.Errorf("%s: body %d: %w", env.Op, env.Args[1].Ref, ErrUnknownID)
	}
	body, ok := obj.(*cp.Body)
	if !ok {
		return fmt.Errorf("%s: object %d is not a body", env.Op, env.Args[1].Ref)
	}
	space := s.reg.bodySpace[body]
	def := env.Args[2].Shape
	var shape *cp.Shape
	switch def.Kind {
	case netmsg.ShapeCircle:
		if def.Radius <= 0 {
			return fmt.Errorf("%s: circle needs positive radius, got %v", env.Op, def.Radius)
		}
		shape = cp.NewCircle(body, def.Radius, cp.Vector{X: def.AX, Y: def.AY})
	case netmsg.ShapeBox:
		if def.W <= 0 || def.H <= 0 {
			return fmt.Errorf("%s: box needs positive extents, got %vx%v", env.Op, def.W, def.H)
		}
		shape = cp.NewBox(body, def.W, def.H, 0)
	case netmsg.ShapeSegment:
		if def.Radius < 0 {
			return fmt.Errorf("%s: segment needs non-negative radius, got %v", env.Op, def.Radius)
		}
		shape = cp.NewSegment(body, cp.Vector{X: def.AX, Y: def.AY}, cp.Vector{X: def.BX, Y: def.BY}, def.Radius)
	default:
		return fmt.Errorf("%s: unknown shape kind %d", env.Op, def.Kind)
	}
	shape.SetCollisionType(contactCollisionType)
	space.AddShape(shape)
	if err := s.reg.register(id, shape); err != nil {
		space.RemoveShape(shape)
		return fmt.Errorf("%s: %w", env.Op, err)
	}
	s.reg.fixtures[body] = append(s.reg.fixtures[body], shape)
	s.reg.shapeBody[shape] = body
	return nil
}

// NewJoint replicates construction of a joint between two bodies.
func (s *Session) NewJoint(typ JointType, bodyA, bodyB ObjectID, params ...float64) (ObjectID, error) {
	id := s.ids.Next()
	args := []netmsg.Value{
		netmsg.Ref(id), netmsg.Int(int64(typ)), netmsg.Ref(bodyA), netmsg.Ref(bodyB),
	}
	for _, p := range params {
		args = append(args, netmsg.Float(p))
	}
	if err := s.localThenSend(netmsg.OpCreateJoint, args, netmsg.ReliableSend); err != nil {
		return 0, err
	}
	return id, nil
}

func handleCreateJoint(s *Session, env netmsg.Envelope) error {
	if len(env.Args) < 4 {
		return fmt.Errorf("%s: got %d args, want at least 4", env.Op, len(env.Args))
	}
	id := env.Args[0].Ref
	if _, ok := s.reg.lookup(id); ok {
		return fmt.Errorf("%s %d: %w", env.Op, id, ErrDuplicateID)
	}
	typ := JointType(env.Args[1].I)
	want, ok := jointParams[typ]
	if !ok {
		return fmt.Errorf("%s: unknown joint type %d", env.Op, env.Args[1].I)
	}
	if len(env.Args) != 4+want {
		return fmt.Errorf("%s: joint type %d takes %d params, got %d", env.Op, typ, want, len(env.Args)-4)
	}
	bodyA, okA := s.bodyArg(env.Args[2].Ref)
	bodyB, okB := s.bodyArg(env.Args[3].Ref)
	if !okA || !okB {
		return fmt.Errorf("%s: joint bodies %d/%d: %w", env.Op, env.Args[2].Ref, env.Args[3].Ref, ErrUnknownID)
	}
	p := make([]float64, 0, want)
	for _, a := range env.Args[4:] {
		p = append(p, a.F)
	}
	var joint *cp.Constraint
	switch typ {
	case JointPivot:
		joint = cp.NewPivotJoint(bodyA, bodyB, cp.Vector{X: p[0], Y: p[1]})
	case JointPin:
		joint = cp.NewPinJoint(bodyA, bodyB, cp.Vector{X: p[0], Y: p[1]}, cp.Vector{X: p[2], Y: p[3]})
	case JointSpring:
		joint = cp.NewDampedSpring(bodyA, bodyB, cp.Vector{X: p[0], Y: p[1]}, cp.Vector{X: p[2], Y: p[3]}, p[4], p[5], p[6])
	case JointSlide:
		joint = cp.NewSlideJoint(bodyA, bodyB, cp.Vector{X: p[0], Y: p[1]}, cp.Vector{X: p[2], Y: p[3]}, p[4], p[5])
	case JointMotor:
		joint = cp.NewSimpleMotor(bodyA, bodyB, p[0])
	}
	space := s.reg.bodySpace[bodyA]
	if space == nil {
		space = s.reg.bodySpace[bodyB]
	}
	if space == nil {
		return fmt.Errorf("%s: neither joint body is in a world", env.Op)
	}
	space.AddConstraint(joint)
	if err := s.reg.register(id, joint); err != nil {
		space.RemoveConstraint(joint)
		return fmt.Errorf("%s: %w", env.Op, err)
	}
	s.reg.joints[bodyA] = append(s.reg.joints[bodyA], joint)
	if bodyB != bodyA {
		s.reg.joints[bodyB] = append(s.reg.joints[bodyB], joint)
	}
	s.reg.jointBodies[joint] = [2]*cp.Body{bodyA, bodyB}
	return nil
}

func (s *Session) bodyArg(id ObjectID) (*cp.Body, bool) {
	obj, ok := s.reg.lookup(id)
	if !ok {
		return nil, false
	}
	b, ok := obj.(*cp.Body)
	return b, ok
}

// Destroy replicates destruction of any tracked object. Destroying a body
// cascades to its fixtures and joints everywhere.
func (s *Session) Destroy(id ObjectID) error {
	return s.localThenSend(netmsg.OpDestroy, []netmsg.Value{netmsg.Ref(id)}, netmsg.ReliableSend)
}

func handleDestroy(s *Session, env netmsg.Envelope) error {
	if err := wantArgs(env, 1); err != nil {
		return err
	}
	return s.reg.destroy(env.Args[0].Ref)
}

// mutator is the receive side of one pass-through engine setter.
type mutator struct {
	argc  int // arguments after the target ref
	apply func(s *Session, obj any, args []netmsg.Value) error
}

func applyMutator(s *Session, env netmsg.Envelope, m mutator) error {
	if err := wantArgs(env, 1+m.argc); err != nil {
		return err
	}
	obj, ok := s.reg.lookup(env.Args[0].Ref)
	if !ok {
		return fmt.Errorf("%s %d: %w", env.Op, env.Args[0].Ref, ErrUnknownID)
	}
	if err := m.apply(s, obj, env.Args[1:]); err != nil {
		return fmt.Errorf("%s %d: %w", env.Op, env.Args[0].Ref, err)
	}
	return nil
}

func bodyMutator(argc int, apply func(b *cp.Body, args []netmsg.Value)) mutator {
	return mutator{argc: argc, apply: func(_ *Session, obj any, args []netmsg.Value) error {
		b, ok := obj.(*cp.Body)
		if !ok {
			return fmt.Errorf("target %T is not a body", obj)
		}
		apply(b, args)
		return nil
	}}
}

func shapeMutator(argc int, apply func(sh *cp.Shape, args []netmsg.Value)) mutator {
	return mutator{argc: argc, apply: func(_ *Session, obj any, args []netmsg.Value) error {
		sh, ok := obj.(*cp.Shape)
		if !ok {
			return fmt.Errorf("target %T is not a fixture", obj)
		}
		apply(sh, args)
		return nil
	}}
}

func worldMutator(argc int, apply func(sp *cp.Space, args []netmsg.Value)) mutator {
	return mutator{argc: argc, apply: func(_ *Session, obj any, args []netmsg.Value) error {
		sp, ok := obj.(*cp.Space)
		if !ok {
			return fmt.Errorf("target %T is not a world", obj)
		}
		apply(sp, args)
		return nil
	}}
}

// mutators is the fixed catalog of replicated pass-through setters.
var mutators = map[netmsg.Op]mutator{
	netmsg.OpSetPosition: bodyMutator(2, func(b *cp.Body, a []netmsg.Value) {
		b.SetPosition(cp.Vector{X: a[0].F, Y: a[1].F})
	}),
	netmsg.OpSetVelocity: bodyMutator(2, func(b *cp.Body, a []netmsg.Value) {
		b.SetVelocityVector(cp.Vector{X: a[0].F, Y: a[1].F})
	}),
	netmsg.OpSetAngle: bodyMutator(1, func(b *cp.Body, a []netmsg.Value) {
		b.SetAngle(a[0].F)
	}),
	netmsg.OpSetAngularVelocity: bodyMutator(1, func(b *cp.Body, a []netmsg.Value) {
		b.SetAngularVelocity(a[0].F)
	}),
	netmsg.OpSetMass: bodyMutator(1, func(b *cp.Body, a []netmsg.Value) {
		b.SetMass(a[0].F)
	}),
	netmsg.OpSetMoment: bodyMutator(1, func(b *cp.Body, a []netmsg.Value) {
		b.SetMoment(a[0].F)
	}),
	netmsg.OpSetBodyType: bodyMutator(1, func(b *cp.Body, a []netmsg.Value) {
		switch BodyType(a[0].I) {
		case BodyStatic:
			b.SetType(cp.BODY_STATIC)
		case BodyKinematic:
			b.SetType(cp.BODY_KINEMATIC)
		default:
			b.SetType(cp.BODY_DYNAMIC)
		}
	}),
	netmsg.OpApplyImpulse: bodyMutator(2, func(b *cp.Body, a []netmsg.Value) {
		b.ApplyImpulseAtWorldPoint(cp.Vector{X: a[0].F, Y: a[1].F}, b.Position())
	}),
	netmsg.OpApplyForce: bodyMutator(2, func(b *cp.Body, a []netmsg.Value) {
		b.ApplyForceAtWorldPoint(cp.Vector{X: a[0].F, Y: a[1].F}, b.Position())
	}),
	netmsg.OpSetFriction: shapeMutator(1, func(sh *cp.Shape, a []netmsg.Value) {
		sh.SetFriction(a[0].F)
	}),
	netmsg.OpSetElasticity: shapeMutator(1, func(sh *cp.Shape, a []netmsg.Value) {
		sh.SetElasticity(a[0].F)
	}),
	netmsg.OpSetSensor: shapeMutator(1, func(sh *cp.Shape, a []netmsg.Value) {
		sh.SetSensor(a[0].B)
	}),
	netmsg.OpSetGravity: worldMutator(2, func(sp *cp.Space, a []netmsg.Value) {
		sp.SetGravity(cp.Vector{X: a[0].F, Y: a[1].F})
	}),
	netmsg.OpSetDamping: worldMutator(1, func(sp *cp.Space, a []netmsg.Value) {
		sp.SetDamping(a[0].F)
	}),
}

func (s *Session) mutate(op netmsg.Op, id ObjectID, args ...netmsg.Value) error {
	all := append([]netmsg.Value{netmsg.Ref(id)}, args...)
	return s.localThenSend(op, all, netmsg.ReliableSend)
}

// Replicated pass-through setters, each taking an object id first.

func (s *Session) SetPosition(id ObjectID, x, y float64) error {
	return s.mutate(netmsg.OpSetPosition, id, netmsg.Float(x), netmsg.Float(y))
}

func (s *Session) SetVelocity(id ObjectID, vx, vy float64) error {
	return s.mutate(netmsg.OpSetVelocity, id, netmsg.Float(vx), netmsg.Float(vy))
}

func (s *Session) SetAngle(id ObjectID, angle float64) error {
	return s.mutate(netmsg.OpSetAngle, id, netmsg.Float(angle))
}

func (s *Session) SetAngularVelocity(id ObjectID, w float64) error {
	return s.mutate(netmsg.OpSetAngularVelocity, id, netmsg.Float(w))
}

func (s *Session) SetMass(id ObjectID, mass float64) error {
	return s.mutate(netmsg.OpSetMass, id, netmsg.Float(mass))
}

func (s *Session) SetMoment(id ObjectID, moment float64) error {
	return s.mutate(netmsg.OpSetMoment, id, netmsg.Float(moment))
}

func (s *Session) SetBodyType(id ObjectID, typ BodyType) error {
	return s.mutate(netmsg.OpSetBodyType, id, netmsg.Int(int64(typ)))
}

func (s *Session) ApplyImpulse(id ObjectID, ix, iy float64) error {
	return s.mutate(netmsg.OpApplyImpulse, id, netmsg.Float(ix), netmsg.Float(iy))
}

func (s *Session) ApplyForce(id ObjectID, fx, fy float64) error {
	return s.mutate(netmsg.OpApplyForce, id, netmsg.Float(fx), netmsg.Float(fy))
}

func (s *Session) SetFriction(id ObjectID, friction float64) error {
	return s.mutate(netmsg.OpSetFriction, id, netmsg.Float(friction))
}

func (s *Session) SetElasticity(id ObjectID, elasticity float64) error {
	return s.mutate(netmsg.OpSetElasticity, id, netmsg.Float(elasticity))
}

func (s *Session) SetSensor(id ObjectID, sensor bool) error {
	return s.mutate(netmsg.OpSetSensor, id, netmsg.Bool(sensor))
}

func (s *Session) SetGravity(world ObjectID, gx, gy float64) error {
	return s.mutate(netmsg.OpSetGravity, world, netmsg.Float(gx), netmsg.Float(gy))
}

func (s *Session) SetDamping(world ObjectID, damping float64) error {
	return s.mutate(netmsg.OpSetDamping, world, netmsg.Float(damping))
}
