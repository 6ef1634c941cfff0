package netmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Envelope{
		{
			Op:   OpCreateWorld,
			From: "peer-a",
			Args: []Value{Ref(ObjectID(1) << 48), Float(0), Float(-9.81)},
		},
		{
			Op:   OpCreateFixture,
			From: "peer-b",
			Args: []Value{Ref(7), Ref(8), Shape(Segment(-100, 0, 100, 0, 0.5))},
		},
		{
			Op:   OpSetOwner,
			From: "peer-c",
			Args: []Value{Ref(42), Str("owner-id"), Bool(true), Float(0.1), Int(-3)},
		},
		{
			Op:   OpSetOwner,
			From: "peer-c",
			Args: []Value{Ref(42), Nil(), Bool(false), Float(0), Int(0)},
		},
		{
			Op:   OpSyncBatch,
			From: "peer-d",
			Args: []Value{
				Int(900),
				Ref(12), Sync([6]float64{1, 2, 3, 4, 5, 6}),
				Ref(13), Sync([6]float64{-1.5, 0, 0.25, 0, 3.14, 0}),
			},
		},
	}
	for _, want := range cases {
		t.Run(want.Op.String(), func(t *testing.T) {
			got, err := Decode(Encode(want))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	frame := Encode(Envelope{
		Op:   OpSetPosition,
		From: "peer-a",
		Args: []Value{Ref(5), Float(1), Float(2)},
	})
	for cut := 1; cut < len(frame); cut++ {
		_, err := Decode(frame[:cut])
		assert.Error(t, err, "cut at %d bytes", cut)
	}
}

func TestDecodeUnknownValueKind(t *testing.T) {
	w := GetWriter()
	defer w.Put()
	w.writeByte(byte(OpDestroy))
	w.writeString("peer-a")
	w.writeByte(1) // one argument
	w.writeByte(0)
	w.writeByte(0xee) // bogus kind tag

	_, err := Decode(w.Bytes())
	assert.ErrorContains(t, err, "unknown value kind")
}

func TestWriterReuseResets(t *testing.T) {
	first := Encode(Envelope{Op: OpDestroy, From: "x", Args: []Value{Ref(1)}})

	w := GetWriter()
	w.Encode(Envelope{Op: OpDestroy, From: "x", Args: []Value{Ref(1)}})
	assert.Equal(t, first, w.Bytes())
	w.Put()

	// A writer fetched after Put starts from an empty frame.
	w2 := GetWriter()
	defer w2.Put()
	assert.Empty(t, w2.Bytes())
}

func TestOpNames(t *testing.T) {
	assert.Equal(t, "createWorld", OpCreateWorld.String())
	assert.Equal(t, "syncBatch", OpSyncBatch.String())
	assert.Equal(t, "unknown", Op(200).String())
}
