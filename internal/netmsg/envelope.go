// Package netmsg defines the wire format for replicated physics operations:
// operation envelopes, tagged argument values and the binary codec.
package netmsg

// ObjectID is a network-wide identifier for a replicated physics object.
// The high 16 bits carry the participant ordinal that generated the id, so
// ids created concurrently on different hosts never collide.
type ObjectID uint64

// Op identifies a replicated physics operation.
type Op uint8

const (
	OpCreateWorld Op = iota + 1
	OpCreateBody
	OpCreateFixture
	OpCreateJoint
	OpDestroy
	OpSetOwner
	OpSyncBatch
	OpDigest

	// Mutators: pass-through calls into the physics engine.
	OpSetPosition
	OpSetVelocity
	OpSetAngle
	OpSetAngularVelocity
	OpSetMass
	OpSetMoment
	OpSetBodyType
	OpApplyImpulse
	OpApplyForce
	OpSetFriction
	OpSetElasticity
	OpSetSensor
	OpSetGravity
	OpSetDamping
)

var opNames = map[Op]string{
	OpCreateWorld:        "createWorld",
	OpCreateBody:         "createBody",
	OpCreateFixture:      "createFixture",
	OpCreateJoint:        "createJoint",
	OpDestroy:            "destroy",
	OpSetOwner:           "setOwner",
	OpSyncBatch:          "syncBatch",
	OpDigest:             "digest",
	OpSetPosition:        "setPosition",
	OpSetVelocity:        "setVelocity",
	OpSetAngle:           "setAngle",
	OpSetAngularVelocity: "setAngularVelocity",
	OpSetMass:            "setMass",
	OpSetMoment:          "setMoment",
	OpSetBodyType:        "setBodyType",
	OpApplyImpulse:       "applyImpulse",
	OpApplyForce:         "applyForce",
	OpSetFriction:        "setFriction",
	OpSetElasticity:      "setElasticity",
	OpSetSensor:          "setSensor",
	OpSetGravity:         "setGravity",
	OpSetDamping:         "setDamping",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "unknown"
}

// ValueKind tags the active field of a Value.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindFloat
	KindInt
	KindBool
	KindString
	KindRef
	KindShape
	KindSync
)

// Value is a tagged argument of a replicated operation. Arguments may mix
// raw values and object references; references are resolved to live handles
// on the receiving side.
type Value struct {
	Kind  ValueKind
	F     float64
	I     int64
	B     bool
	S     string
	Ref   ObjectID
	Shape ShapeDef
	Sync  [6]float64
}

func Nil() Value              { return Value{Kind: KindNil} }
func Float(f float64) Value   { return Value{Kind: KindFloat, F: f} }
func Int(i int64) Value       { return Value{Kind: KindInt, I: i} }
func Bool(b bool) Value       { return Value{Kind: KindBool, B: b} }
func Str(s string) Value      { return Value{Kind: KindString, S: s} }
func Ref(id ObjectID) Value   { return Value{Kind: KindRef, Ref: id} }
func Shape(d ShapeDef) Value  { return Value{Kind: KindShape, Shape: d} }
func Sync(s [6]float64) Value { return Value{Kind: KindSync, Sync: s} }

// ShapeKind selects a fixture shape variant.
type ShapeKind uint8

const (
	ShapeCircle ShapeKind = iota + 1
	ShapeBox
	ShapeSegment
)

// ShapeDef is a shape definition passed by value. Shapes are construction
// inputs, not replicated entities, so they carry no id.
type ShapeDef struct {
	Kind   ShapeKind
	Radius float64 // circle and segment
	W, H   float64 // box half-extents are W/2, H/2
	AX, AY float64 // circle offset or segment endpoint A
	BX, BY float64 // segment endpoint B
}

// Circle returns a circle shape definition with the given offset.
func Circle(radius, ox, oy float64) ShapeDef {
	return ShapeDef{Kind: ShapeCircle, Radius: radius, AX: ox, AY: oy}
}

// Box returns an axis-aligned box shape definition centered on the body.
func Box(w, h float64) ShapeDef {
	return ShapeDef{Kind: ShapeBox, W: w, H: h}
}

// Segment returns a thick line segment shape definition.
func Segment(ax, ay, bx, by, radius float64) ShapeDef {
	return ShapeDef{Kind: ShapeSegment, AX: ax, AY: ay, BX: bx, BY: by, Radius: radius}
}

// Envelope is one replicated operation in flight.
type Envelope struct {
	Op   Op
	From string // peer id of the sender
	Args []Value
}

// SendOptions select the delivery contract for one send.
type SendOptions struct {
	Reliable bool
	Channel  uint8
}

// ReliableSend is the default delivery for lifecycle and ownership messages.
var ReliableSend = SendOptions{Reliable: true}

// UnreliableSend is used for per-tick sync batches, where a lost message is
// superseded by the next one.
var UnreliableSend = SendOptions{Reliable: false, Channel: 1}
