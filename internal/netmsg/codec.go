package netmsg

import (
	"bytes"
	"fmt"
	"math"
	"sync"
)

// Writer serializes envelopes into frames.
// Uses Little-Endian byte order for all multi-byte values.
type Writer struct {
	buf *bytes.Buffer
}

// writerPool reduces allocations on the per-tick send path by reusing Writers.
var writerPool = sync.Pool{
	New: func() any {
		return &Writer{
			buf: bytes.NewBuffer(make([]byte, 0, 512)),
		}
	},
}

// GetWriter returns a Writer from the pool (already reset).
func GetWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.buf.Reset()
	return w
}

// Put returns the Writer to the pool for reuse.
// Do not use the Writer, or slices returned by Bytes, after calling Put.
func (w *Writer) Put() {
	writerPool.Put(w)
}

// Bytes returns the encoded frame. The slice is only valid until Put.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) writeByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *Writer) writeUint64(val uint64) {
	w.buf.WriteByte(byte(val))
	w.buf.WriteByte(byte(val >> 8))
	w.buf.WriteByte(byte(val >> 16))
	w.buf.WriteByte(byte(val >> 24))
	w.buf.WriteByte(byte(val >> 32))
	w.buf.WriteByte(byte(val >> 40))
	w.buf.WriteByte(byte(val >> 48))
	w.buf.WriteByte(byte(val >> 56))
}

func (w *Writer) writeFloat(val float64) {
	w.writeUint64(math.Float64bits(val))
}

func (w *Writer) writeString(s string) {
	w.buf.WriteByte(byte(len(s)))
	w.buf.WriteByte(byte(len(s) >> 8))
	w.buf.WriteString(s)
}

// Encode appends the envelope to the writer's frame.
func (w *Writer) Encode(env Envelope) {
	w.writeByte(byte(env.Op))
	w.writeString(env.From)
	w.buf.WriteByte(byte(len(env.Args)))
	w.buf.WriteByte(byte(len(env.Args) >> 8))
	for _, v := range env.Args {
		w.writeByte(byte(v.Kind))
		switch v.Kind {
		case KindNil:
		case KindFloat:
			w.writeFloat(v.F)
		case KindInt:
			w.writeUint64(uint64(v.I))
		case KindBool:
			if v.B {
				w.writeByte(1)
			} else {
				w.writeByte(0)
			}
		case KindString:
			w.writeString(v.S)
		case KindRef:
			w.writeUint64(uint64(v.Ref))
		case KindShape:
			w.writeByte(byte(v.Shape.Kind))
			w.writeFloat(v.Shape.Radius)
			w.writeFloat(v.Shape.W)
			w.writeFloat(v.Shape.H)
			w.writeFloat(v.Shape.AX)
			w.writeFloat(v.Shape.AY)
			w.writeFloat(v.Shape.BX)
			w.writeFloat(v.Shape.BY)
		case KindSync:
			for _, f := range v.Sync {
				w.writeFloat(f)
			}
		}
	}
}

// Encode serializes a single envelope into a fresh frame.
func Encode(env Envelope) []byte {
	w := GetWriter()
	defer w.Put()
	w.Encode(env)
	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	return out
}

// Reader deserializes a frame. The first decode error sticks; all reads
// after it return zero values.
type Reader struct {
	data []byte
	off  int
	err  error
}

func (r *Reader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("truncated frame at offset %d reading %s", r.off, what)
	}
}

func (r *Reader) readByte() byte {
	if r.err != nil || r.off+1 > len(r.data) {
		r.fail("byte")
		return 0
	}
	b := r.data[r.off]
	r.off++
	return b
}

func (r *Reader) readUint64() uint64 {
	if r.err != nil || r.off+8 > len(r.data) {
		r.fail("uint64")
		return 0
	}
	d := r.data[r.off:]
	r.off += 8
	return uint64(d[0]) | uint64(d[1])<<8 | uint64(d[2])<<16 | uint64(d[3])<<24 |
		uint64(d[4])<<32 | uint64(d[5])<<40 | uint64(d[6])<<48 | uint64(d[7])<<56
}

func (r *Reader) readFloat() float64 {
	return math.Float64frombits(r.readUint64())
}

func (r *Reader) readUint16() int {
	lo := r.readByte()
	hi := r.readByte()
	return int(lo) | int(hi)<<8
}

func (r *Reader) readString() string {
	n := r.readUint16()
	if r.err != nil || r.off+n > len(r.data) {
		r.fail("string")
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

// Decode parses one envelope from a frame.
func Decode(data []byte) (Envelope, error) {
	r := &Reader{data: data}
	env := Envelope{
		Op:   Op(r.readByte()),
		From: r.readString(),
	}
	argc := r.readUint16()
	if r.err != nil {
		return Envelope{}, r.err
	}
	env.Args = make([]Value, 0, argc)
	for i := 0; i < argc; i++ {
		v := Value{Kind: ValueKind(r.readByte())}
		switch v.Kind {
		case KindNil:
		case KindFloat:
			v.F = r.readFloat()
		case KindInt:
			v.I = int64(r.readUint64())
		case KindBool:
			v.B = r.readByte() != 0
		case KindString:
			v.S = r.readString()
		case KindRef:
			v.Ref = ObjectID(r.readUint64())
		case KindShape:
			v.Shape.Kind = ShapeKind(r.readByte())
			v.Shape.Radius = r.readFloat()
			v.Shape.W = r.readFloat()
			v.Shape.H = r.readFloat()
			v.Shape.AX = r.readFloat()
			v.Shape.AY = r.readFloat()
			v.Shape.BX = r.readFloat()
			v.Shape.BY = r.readFloat()
		case KindSync:
			for i := range v.Sync {
				v.Sync[i] = r.readFloat()
			}
		default:
			return Envelope{}, fmt.Errorf("unknown value kind %d at offset %d", v.Kind, r.off)
		}
		if r.err != nil {
			return Envelope{}, r.err
		}
		env.Args = append(env.Args, v)
	}
	return env, nil
}
