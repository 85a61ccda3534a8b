package storage_test

import (
	"testing"
	"time"

	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/stretchr/testify/assert"
)

type nopBackend struct{}

func (nopBackend) Init() error                                    { return nil }
func (nopBackend) Close() error                                   { return nil }
func (nopBackend) StartSession(*core.Session) error               { return nil }
func (nopBackend) EndSession() error                              { return nil }
func (nopBackend) RecordFrame(replay.Frame) error                 { return nil }
func (nopBackend) RecordEvent(core.Event) error                   { return nil }
func (nopBackend) RecordInput(replay.InputRecord) error           { return nil }
func (nopBackend) RecordPerformance(core.PerformanceSample) error { return nil }
func (nopBackend) LastWriteDuration() time.Duration               { return time.Second }

func TestOptionalInterfaces(t *testing.T) {
	var b storage.Backend = nopBackend{}

	_, ok := b.(storage.Uploadable)
	assert.False(t, ok)
	_, ok = b.(storage.QueueReporter)
	assert.False(t, ok)

	w, ok := b.(storage.WriteDurationReporter)
	assert.True(t, ok)
	assert.Equal(t, time.Second, w.LastWriteDuration())
}

func TestUploadMetadataFields(t *testing.T) {
	meta := core.UploadMetadata{
		SessionName: "Test Session",
		Duration:    3600.5,
		Ticks:       1800250,
		Actors:      3,
		Tag:         "Test",
	}

	assert.Equal(t, "Test Session", meta.SessionName)
	assert.Equal(t, 3600.5, meta.Duration)
	assert.Equal(t, uint64(1800250), meta.Ticks)
	assert.Equal(t, "Test", meta.Tag)
}
