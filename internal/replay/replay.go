// Package replay frames node-position snapshots and input records into an
// append-only little-endian log.
//
// Every record is: tick (u64), timestamp (u64 ns), payload length (u32),
// then per-actor blocks {actor id (u32), count (u32), count words}. Frame
// blocks carry 3 f32 per node. Input blocks carry one 32-bit word per
// field.
package replay

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

const headerSize = 8 + 8 + 4

// MaxPayload bounds a single record so a corrupt length cannot allocate
// unbounded memory.
const MaxPayload = 64 << 20

var (
	ErrTruncated = errors.New("replay: truncated record")
	ErrCorrupt   = errors.New("replay: corrupt record")
)

type ActorFrame struct {
	ID        core.ActorID
	Positions []mgl32.Vec3
}

// Frame is one throttled snapshot of node positions.
type Frame struct {
	Tick      uint64
	Timestamp time.Time
	Actors    []ActorFrame
}

// FromSnapshot copies the node positions of every actor in s.
func FromSnapshot(s *core.Snapshot) Frame {
	f := Frame{Tick: s.Tick, Timestamp: time.Unix(0, s.Timestamp), Actors: make([]ActorFrame, 0, len(s.Actors))}
	for i := range s.Actors {
		a := &s.Actors[i]
		pos := make([]mgl32.Vec3, len(a.Nodes))
		for j := range a.Nodes {
			pos[j] = a.Nodes[j].Position
		}
		f.Actors = append(f.Actors, ActorFrame{ID: a.ID, Positions: pos})
	}
	return f
}

// Actor finds the block for id.
func (f *Frame) Actor(id core.ActorID) ([]mgl32.Vec3, bool) {
	for i := range f.Actors {
		if f.Actors[i].ID == id {
			return f.Actors[i].Positions, true
		}
	}
	return nil, false
}

type ActorInput struct {
	ID    core.ActorID
	Input core.InputSnapshot
}

// InputRecord is the set of inputs applied at one tick.
type InputRecord struct {
	Tick      uint64
	Timestamp time.Time
	Inputs    []ActorInput
}

func putHeader(buf []byte, tick uint64, ts time.Time, n int) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, tick)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(ts.UnixNano()))
	return binary.LittleEndian.AppendUint32(buf, uint32(n))
}

func appendF32(buf []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
}

// AppendFrame appends the encoding of f to buf.
func AppendFrame(buf []byte, f *Frame) []byte {
	n := 0
	for _, a := range f.Actors {
		n += 8 + 12*len(a.Positions)
	}
	buf = putHeader(buf, f.Tick, f.Timestamp, n)
	for _, a := range f.Actors {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(a.ID))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.Positions)))
		for _, p := range a.Positions {
			buf = appendF32(buf, p[0])
			buf = appendF32(buf, p[1])
			buf = appendF32(buf, p[2])
		}
	}
	return buf
}

// Input word layout. Flags packs the boolean controls.
const (
	wordSteer = iota
	wordThrottle
	wordBrake
	wordClutch
	wordGear
	wordTargetGear
	wordFlags
	inputWords
)

func inputFlags(in *core.InputSnapshot) uint32 {
	bits := []bool{
		in.Starter, in.Contact, in.Lights, in.Beacon, in.Horn,
		in.CruiseControl, in.CruiseAccel, in.CruiseDecel, in.CruiseReadjust,
		in.SpeedLimiter, in.ParkingBrake, in.Hooks, in.Ties, in.AntiLock, in.Traction,
	}
	var f uint32
	for i, b := range bits {
		if b {
			f |= 1 << i
		}
	}
	return f
}

func setInputFlags(in *core.InputSnapshot, f uint32) {
	bits := []*bool{
		&in.Starter, &in.Contact, &in.Lights, &in.Beacon, &in.Horn,
		&in.CruiseControl, &in.CruiseAccel, &in.CruiseDecel, &in.CruiseReadjust,
		&in.SpeedLimiter, &in.ParkingBrake, &in.Hooks, &in.Ties, &in.AntiLock, &in.Traction,
	}
	for i, b := range bits {
		*b = f&(1<<i) != 0
	}
}

// AppendInput appends the encoding of r to buf.
func AppendInput(buf []byte, r *InputRecord) []byte {
	n := 0
	for _, in := range r.Inputs {
		n += 8 + 4*(inputWords+len(in.Input.Commands))
	}
	buf = putHeader(buf, r.Tick, r.Timestamp, n)
	for _, ai := range r.Inputs {
		in := &ai.Input
		buf = binary.LittleEndian.AppendUint32(buf, uint32(ai.ID))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(inputWords+len(in.Commands)))
		buf = appendF32(buf, in.Steer)
		buf = appendF32(buf, in.Throttle)
		buf = appendF32(buf, in.Brake)
		buf = appendF32(buf, in.Clutch)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(in.Gear))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(in.TargetGear)))
		buf = binary.LittleEndian.AppendUint32(buf, inputFlags(in))
		for _, c := range in.Commands {
			buf = appendF32(buf, c)
		}
	}
	return buf
}

type header struct {
	tick uint64
	ts   time.Time
	n    uint32
}

func readRecord(r io.Reader, scratch []byte) (header, []byte, error) {
	var hb [headerSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return header{}, nil, ErrTruncated
		}
		return header{}, nil, err
	}
	h := header{
		tick: binary.LittleEndian.Uint64(hb[0:]),
		ts:   time.Unix(0, int64(binary.LittleEndian.Uint64(hb[8:]))),
		n:    binary.LittleEndian.Uint32(hb[16:]),
	}
	if h.n > MaxPayload {
		return header{}, nil, fmt.Errorf("%w: payload %d bytes", ErrCorrupt, h.n)
	}
	if cap(scratch) < int(h.n) {
		scratch = make([]byte, h.n)
	}
	scratch = scratch[:h.n]
	if _, err := io.ReadFull(r, scratch); err != nil {
		return header{}, nil, ErrTruncated
	}
	return h, scratch, nil
}

// blocks walks the {id, count, words} blocks of a payload.
func blocks(p []byte, wordsPer int, fn func(id core.ActorID, count int, body []byte)) error {
	for len(p) > 0 {
		if len(p) < 8 {
			return fmt.Errorf("%w: short block header", ErrCorrupt)
		}
		id := core.ActorID(binary.LittleEndian.Uint32(p))
		count := int(binary.LittleEndian.Uint32(p[4:]))
		size := count * wordsPer * 4
		p = p[8:]
		if count < 0 || size > len(p) {
			return fmt.Errorf("%w: block for actor %d overruns payload", ErrCorrupt, id)
		}
		fn(id, count, p[:size])
		p = p[size:]
	}
	return nil
}

func f32(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
}

func decodeFrame(h header, p []byte) (Frame, error) {
	f := Frame{Tick: h.tick, Timestamp: h.ts}
	err := blocks(p, 3, func(id core.ActorID, count int, body []byte) {
		pos := make([]mgl32.Vec3, count)
		for i := range pos {
			pos[i] = mgl32.Vec3{f32(body, 3*i), f32(body, 3*i+1), f32(body, 3*i+2)}
		}
		f.Actors = append(f.Actors, ActorFrame{ID: id, Positions: pos})
	})
	return f, err
}

func decodeInput(h header, p []byte) (InputRecord, error) {
	r := InputRecord{Tick: h.tick, Timestamp: h.ts}
	bad := false
	err := blocks(p, 1, func(id core.ActorID, count int, body []byte) {
		if count < inputWords {
			bad = true
			return
		}
		var in core.InputSnapshot
		in.Steer = f32(body, wordSteer)
		in.Throttle = f32(body, wordThrottle)
		in.Brake = f32(body, wordBrake)
		in.Clutch = f32(body, wordClutch)
		in.Gear = core.GearChange(binary.LittleEndian.Uint32(body[4*wordGear:]))
		in.TargetGear = int(int32(binary.LittleEndian.Uint32(body[4*wordTargetGear:])))
		setInputFlags(&in, binary.LittleEndian.Uint32(body[4*wordFlags:]))
		if extra := count - inputWords; extra > 0 {
			in.Commands = make([]float32, extra)
			for i := range in.Commands {
				in.Commands[i] = f32(body, inputWords+i)
			}
		}
		r.Inputs = append(r.Inputs, ActorInput{ID: id, Input: in})
	})
	if err == nil && bad {
		err = fmt.Errorf("%w: short input block", ErrCorrupt)
	}
	return r, err
}

// Writer appends records to an underlying writer.
type Writer struct {
	w     *bufio.Writer
	buf   []byte
	count int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) WriteFrame(f *Frame) error {
	w.buf = AppendFrame(w.buf[:0], f)
	return w.write()
}

func (w *Writer) WriteInput(r *InputRecord) error {
	w.buf = AppendInput(w.buf[:0], r)
	return w.write()
}

func (w *Writer) write() error {
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("write replay record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.count }

func (w *Writer) Flush() error { return w.w.Flush() }

// Reader iterates records. A log holds either frames or input records,
// never both.
type Reader struct {
	r       io.Reader
	scratch []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// NextFrame returns io.EOF after the last complete record.
func (r *Reader) NextFrame() (Frame, error) {
	h, p, err := readRecord(r.r, r.scratch)
	if err != nil {
		return Frame{}, err
	}
	r.scratch = p
	return decodeFrame(h, p)
}

// NextInput returns io.EOF after the last complete record.
func (r *Reader) NextInput() (InputRecord, error) {
	h, p, err := readRecord(r.r, r.scratch)
	if err != nil {
		return InputRecord{}, err
	}
	r.scratch = p
	return decodeInput(h, p)
}

// ReadFrames decodes every frame in r.
func ReadFrames(r io.Reader) ([]Frame, error) {
	rd := NewReader(r)
	var out []Frame
	for {
		f, err := rd.NextFrame()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
