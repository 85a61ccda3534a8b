package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beamsim/beamsim/internal/definition"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/world"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// crateFrames moves an 8-node crate 1 m along +X per frame.
func crateFrames(n int) []replay.Frame {
	box := definition.Box("crate", 1, 200)
	frames := make([]replay.Frame, n)
	for i := range frames {
		ps := make([]mgl32.Vec3, len(box.Nodes))
		for j, node := range box.Nodes {
			ps[j] = node.Position.Add(mgl32.Vec3{float32(i), 0, 0})
		}
		frames[i] = replay.Frame{
			Tick:      uint64(i * 25),
			Timestamp: start.Add(time.Duration(i) * 50 * time.Millisecond),
			Actors:    []replay.ActorFrame{{ID: 4, Positions: ps}},
		}
	}
	return frames
}

func writeFrames(t *testing.T, path string, frames []replay.Frame, compress bool) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	var gz *gzip.Writer
	w := replay.NewWriter(f)
	if compress {
		gz = gzip.NewWriter(f)
		w = replay.NewWriter(gz)
	}
	for i := range frames {
		require.NoError(t, w.WriteFrame(&frames[i]))
	}
	require.NoError(t, w.Flush())
	if gz != nil {
		require.NoError(t, gz.Close())
	}
}

func TestSummarizeFrames(t *testing.T) {
	frames := crateFrames(5)
	frames[2].Actors = append(frames[2].Actors, replay.ActorFrame{ID: 1, Positions: []mgl32.Vec3{{0, 0, 0}}})

	s := summarizeFrames(frames)
	assert.Equal(t, 5, s.Frames)
	assert.Equal(t, uint64(0), s.FirstTick)
	assert.Equal(t, uint64(100), s.LastTick)
	assert.Equal(t, 200*time.Millisecond, s.Duration)
	require.Len(t, s.Actors, 2)
	assert.Equal(t, core.ActorID(1), s.Actors[0].ID)
	assert.Equal(t, 1, s.Actors[0].Frames)
	assert.Equal(t, core.ActorID(4), s.Actors[1].ID)
	assert.Equal(t, 8, s.Actors[1].Nodes)
	assert.InDelta(t, 4, s.Actors[1].Travel, 1e-4)

	var out bytes.Buffer
	printSummary(&out, s)
	assert.Contains(t, out.String(), "frames:   5")
	assert.Contains(t, out.String(), "#4 nodes=8 frames=5 travel=4.00m")
}

func TestSummarizeNoFrames(t *testing.T) {
	assert.Equal(t, replaySummary{}, summarizeFrames(nil))
}

func TestReplayCommandReadsCompressed(t *testing.T) {
	a := testApp(t)
	path := filepath.Join(t.TempDir(), "run.bsr.gz")
	writeFrames(t, path, crateFrames(3), true)

	var out bytes.Buffer
	require.NoError(t, a.replay(context.Background(), &out, []string{path}))
	assert.Contains(t, out.String(), "frames:   3")
	assert.Contains(t, out.String(), "ticks:    0..50")
}

func TestReplayCommandInputLog(t *testing.T) {
	a := testApp(t)
	path := filepath.Join(t.TempDir(), "run.bsi")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := replay.NewWriter(f)
	require.NoError(t, w.WriteInput(&replay.InputRecord{Tick: 3, Timestamp: start, Inputs: []replay.ActorInput{
		{ID: 1, Input: core.InputSnapshot{Throttle: 1}},
		{ID: 2, Input: core.InputSnapshot{Brake: 1}},
	}}))
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())

	var out bytes.Buffer
	require.NoError(t, a.replay(context.Background(), &out, []string{path}))
	assert.Equal(t, "input records: 1\ninputs: 2\n", out.String())
}

func TestReplayCommandErrors(t *testing.T) {
	a := testApp(t)
	assert.Error(t, a.replay(context.Background(), &bytes.Buffer{}, nil))
	assert.Error(t, a.replay(context.Background(), &bytes.Buffer{}, []string{filepath.Join(t.TempDir(), "missing.bsr")}))
}

func TestReplayCommandPlayback(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("simulation.tickRate", 500)
	viper.Set("simulation.replayRate", 20)

	a := testApp(t)
	path := filepath.Join(t.TempDir(), "run.bsr")
	writeFrames(t, path, crateFrames(4), false)

	var out bytes.Buffer
	require.NoError(t, a.replay(context.Background(), &out, []string{"-definition", "crate", path}))
	assert.Contains(t, out.String(), "playback digest: ")

	err := a.replay(context.Background(), &bytes.Buffer{}, []string{"-definition", "ghost", path})
	assert.ErrorIs(t, err, world.ErrUnknownDefinition)
}

func TestPlaybackIsDeterministic(t *testing.T) {
	frames := crateFrames(6)
	summary := summarizeFrames(frames)

	digest := func() uint64 {
		defs := definition.NewStore()
		require.NoError(t, defs.Put(definition.Box("crate", 1, 200)))
		w, err := world.New(world.DefaultConfig(), world.Dependencies{Definitions: defs})
		require.NoError(t, err)
		defer w.Close()

		d, err := playback(w, "crate", frames, summary.Actors)
		require.NoError(t, err)

		snap := w.Latest()
		require.Len(t, snap.Actors, 1)
		assert.Equal(t, core.StateReplayOnly, snap.Actors[0].State)
		return d
	}
	assert.Equal(t, digest(), digest())
}
