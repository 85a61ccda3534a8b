package replay

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameLayout(t *testing.T) {
	f := Frame{
		Tick:      7,
		Timestamp: time.Unix(0, 1500),
		Actors:    []ActorFrame{{ID: 3, Positions: []mgl32.Vec3{{1, 2, 3}}}},
	}
	b := AppendFrame(nil, &f)
	require.Len(t, b, headerSize+8+12)
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(b[0:]))
	assert.Equal(t, uint64(1500), binary.LittleEndian.Uint64(b[8:]))
	assert.Equal(t, uint32(20), binary.LittleEndian.Uint32(b[16:]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[20:]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[24:]))
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(b[32:])))
}

func TestWriterReader(t *testing.T) {
	frames := []Frame{
		{Tick: 1, Timestamp: time.Unix(0, 10), Actors: []ActorFrame{
			{ID: 1, Positions: []mgl32.Vec3{{0, 1, 2}, {3, 4, 5}}},
			{ID: 9, Positions: []mgl32.Vec3{{-1, -2, -3}}},
		}},
		{Tick: 6, Timestamp: time.Unix(0, 60)},
	}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := range frames {
		require.NoError(t, w.WriteFrame(&frames[i]))
	}
	require.NoError(t, w.Flush())
	assert.Equal(t, 2, w.Count())

	got, err := ReadFrames(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, frames[0].Actors, got[0].Actors)
	assert.Equal(t, uint64(6), got[1].Tick)
	assert.Empty(t, got[1].Actors)
	assert.True(t, frames[0].Timestamp.Equal(got[0].Timestamp))

	pos, ok := got[0].Actor(9)
	require.True(t, ok)
	assert.Equal(t, []mgl32.Vec3{{-1, -2, -3}}, pos)
}

func TestInputRecord(t *testing.T) {
	rec := InputRecord{
		Tick:      42,
		Timestamp: time.Unix(0, 99),
		Inputs: []ActorInput{
			{ID: 2, Input: core.InputSnapshot{
				Steer: -0.5, Throttle: 1, Gear: core.GearSelect, TargetGear: -1,
				Horn: true, ParkingBrake: true, Traction: true,
				Commands: []float32{0, 0.25},
			}},
			{ID: 5},
		},
	}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteInput(&rec))
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	got, err := r.NextInput()
	require.NoError(t, err)
	assert.Equal(t, rec.Tick, got.Tick)
	assert.Equal(t, rec.Inputs, got.Inputs)

	_, err = r.NextInput()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTruncatedRecord(t *testing.T) {
	f := Frame{Tick: 1, Actors: []ActorFrame{{ID: 1, Positions: []mgl32.Vec3{{1, 1, 1}}}}}
	b := AppendFrame(nil, &f)

	_, err := ReadFrames(bytes.NewReader(b[:len(b)-4]))
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = ReadFrames(bytes.NewReader(b[:5]))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestCorruptBlock(t *testing.T) {
	f := Frame{Tick: 1, Actors: []ActorFrame{{ID: 1, Positions: []mgl32.Vec3{{1, 1, 1}}}}}
	b := AppendFrame(nil, &f)
	binary.LittleEndian.PutUint32(b[24:], 1000)

	_, err := ReadFrames(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFromSnapshot(t *testing.T) {
	s := core.Snapshot{
		Tick:      3,
		Timestamp: 77,
		Actors: []core.ActorSnapshot{
			{ID: 4, Nodes: []core.NodeState{{Position: mgl32.Vec3{1, 2, 3}, Velocity: mgl32.Vec3{9, 9, 9}}}},
		},
	}
	f := FromSnapshot(&s)
	assert.Equal(t, uint64(3), f.Tick)
	assert.Equal(t, int64(77), f.Timestamp.UnixNano())
	assert.Equal(t, []ActorFrame{{ID: 4, Positions: []mgl32.Vec3{{1, 2, 3}}}}, f.Actors)
}
