package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/internal/geo"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/storage"
	v1 "github.com/beamsim/beamsim/internal/storage/memory/export/v1"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

func newSession() *core.Session {
	return &core.Session{
		ID:        "0d6c5a0c-8b1e-4d59-9d7f-0f6a4e0e7c11",
		Name:      "Hill climb: run 1",
		StartTime: start,
		TickRate:  500,
		Gravity:   mgl32.Vec3{0, -9.81, 0},
		Tags:      "Test",
	}
}

func newBackend(t *testing.T, compress bool) *Backend {
	t.Helper()
	origin, err := geo.NewOrigin(8.5, 47.4)
	require.NoError(t, err)
	b := New(config.MemoryConfig{OutputDir: t.TempDir(), CompressOutput: compress}, origin)
	b.now = func() time.Time { return start.Add(2 * time.Minute) }
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func frameAt(tick uint64, x float32) replay.Frame {
	return replay.Frame{
		Tick:      tick,
		Timestamp: start.Add(time.Duration(tick) * 2 * time.Millisecond),
		Actors: []replay.ActorFrame{
			{ID: 1, Positions: []mgl32.Vec3{{x, 1, 0}, {x + 2, 1, 0}}},
		},
	}
}

func record(t *testing.T, b *Backend) {
	t.Helper()
	require.NoError(t, b.RecordEvent(core.Event{Kind: core.EventActorSpawned, Tick: 1, Actor: 1, Label: "crate"}))
	for i := 1; i <= 5; i++ {
		require.NoError(t, b.RecordFrame(frameAt(uint64(i*25), float32(i*3))))
	}
	require.NoError(t, b.RecordInput(replay.InputRecord{
		Tick:      10,
		Timestamp: start,
		Inputs:    []replay.ActorInput{{ID: 1, Input: core.InputSnapshot{Throttle: 1, Commands: []float32{0.5}}}},
	}))
	require.NoError(t, b.RecordEvent(core.Event{Kind: core.EventBeamBroken, Tick: 90, Actor: 1, Index: 3}))
	require.NoError(t, b.RecordPerformance(core.PerformanceSample{Time: start, Tick: 100, TickRate: 499.5, Actors: 1}))
}

func TestRecordWithoutSession(t *testing.T) {
	b := newBackend(t, false)

	assert.ErrorIs(t, b.RecordFrame(frameAt(1, 0)), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordEvent(core.Event{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordInput(replay.InputRecord{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.RecordPerformance(core.PerformanceSample{}), storage.ErrNoSession)
	assert.ErrorIs(t, b.EndSession(), storage.ErrNoSession)
}

func TestStartSessionResets(t *testing.T) {
	b := newBackend(t, false)
	require.NoError(t, b.StartSession(newSession()))
	record(t, b)

	frames, inputs, events, perf := b.Counts()
	assert.Equal(t, 5, frames)
	assert.Equal(t, 1, inputs)
	assert.Equal(t, 2, events)
	assert.Equal(t, 1, perf)

	require.NoError(t, b.StartSession(newSession()))
	frames, inputs, events, perf = b.Counts()
	assert.Zero(t, frames+inputs+events+perf)
}

func TestStartSessionCopiesSession(t *testing.T) {
	b := newBackend(t, false)
	s := newSession()
	require.NoError(t, b.StartSession(s))
	s.Name = "changed"

	require.NoError(t, b.EndSession())
	assert.Equal(t, "Hill climb: run 1", b.GetExportMetadata().SessionName)
}

func TestEndSessionExportsUncompressed(t *testing.T) {
	b := newBackend(t, false)
	require.NoError(t, b.StartSession(newSession()))
	record(t, b)
	require.NoError(t, b.EndSession())

	jsonPath := b.GetExportedFilePath()
	assert.Equal(t, "Hill_climb__run_1_20260212_213836.json", filepath.Base(jsonPath))
	assert.Equal(t, "Hill_climb__run_1_20260212_213836.bsr", filepath.Base(b.GetReplayFilePath()))
	assert.FileExists(t, filepath.Join(filepath.Dir(jsonPath), "Hill_climb__run_1_20260212_213836.bsi"))

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var export v1.Export
	require.NoError(t, json.Unmarshal(raw, &export))
	assert.Equal(t, v1.FormatVersion, export.Version)
	assert.Equal(t, 5, export.FrameCount)
	assert.Equal(t, uint64(125), export.EndTick)
	assert.InDelta(t, 120, export.Duration, 1e-9)
	require.Len(t, export.Actors, 1)
	assert.Equal(t, 1, export.Actors[0].BrokenBeams)
	assert.Len(t, export.Events, 2)
	assert.Equal(t, core.EventBeamBroken, export.Events[1].Kind)
	assert.Len(t, export.Performance, 1)
	assert.Len(t, export.Tracks, 1)

	f, err := os.Open(b.GetReplayFilePath())
	require.NoError(t, err)
	defer f.Close()
	frames, err := replay.ReadFrames(f)
	require.NoError(t, err)
	require.Len(t, frames, 5)
	assert.Equal(t, uint64(25), frames[0].Tick)
	pos, ok := frames[4].Actor(1)
	require.True(t, ok)
	assert.Equal(t, mgl32.Vec3{15, 1, 0}, pos[0])
}

func TestEndSessionExportsCompressed(t *testing.T) {
	b := newBackend(t, true)
	require.NoError(t, b.StartSession(newSession()))
	record(t, b)
	require.NoError(t, b.EndSession())

	path := b.GetReplayFilePath()
	assert.Equal(t, ".gz", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	frames, err := replay.ReadFrames(gz)
	require.NoError(t, err)
	assert.Len(t, frames, 5)

	jf, err := os.Open(b.GetExportedFilePath())
	require.NoError(t, err)
	defer jf.Close()
	jgz, err := gzip.NewReader(jf)
	require.NoError(t, err)
	var export v1.Export
	require.NoError(t, json.NewDecoder(jgz).Decode(&export))
	assert.Equal(t, "Hill climb: run 1", export.SessionName)
}

func TestEndSessionWithoutInputsSkipsInputLog(t *testing.T) {
	b := newBackend(t, false)
	require.NoError(t, b.StartSession(newSession()))
	require.NoError(t, b.RecordFrame(frameAt(1, 0)))
	require.NoError(t, b.EndSession())

	_, err := os.Stat(filepath.Join(filepath.Dir(b.GetReplayFilePath()), "Hill_climb__run_1_20260212_213836.bsi"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportMetadata(t *testing.T) {
	b := newBackend(t, false)
	require.NoError(t, b.StartSession(newSession()))
	record(t, b)
	require.NoError(t, b.EndSession())

	meta := b.GetExportMetadata()
	assert.Equal(t, "Hill climb: run 1", meta.SessionName)
	assert.Equal(t, "Test", meta.Tag)
	assert.Equal(t, uint64(125), meta.Ticks)
	assert.Equal(t, 1, meta.Actors)
	assert.InDelta(t, 120, meta.Duration, 1e-9)

	assert.ErrorIs(t, b.RecordFrame(frameAt(200, 0)), storage.ErrNoSession)
}

func TestExportWithoutOrigin(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()}, nil)
	require.NoError(t, b.StartSession(newSession()))
	record(t, b)
	require.NoError(t, b.EndSession())

	raw, err := os.ReadFile(b.GetExportedFilePath())
	require.NoError(t, err)
	var export v1.Export
	require.NoError(t, json.Unmarshal(raw, &export))
	assert.Nil(t, export.Origin)
	assert.Empty(t, export.Tracks)
}

func TestExportBadDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	b := New(config.MemoryConfig{OutputDir: filepath.Join(file, "sub")}, nil)
	require.NoError(t, b.StartSession(newSession()))
	assert.Error(t, b.EndSession())
}
