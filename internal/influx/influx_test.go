package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

func unreachable(t *testing.T) config.InfluxConfig {
	return config.InfluxConfig{
		Enabled:   true,
		Host:      "127.0.0.1",
		Port:      "1",
		Protocol:  "http",
		Org:       "beamsim",
		Bucket:    "telemetry",
		BackupDir: filepath.Join(t.TempDir(), "backup"),
	}
}

func line(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func TestConnectDisabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, "s", zerolog.Nop())
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.Error(t, m.WriteEvent(core.Event{}), "no server and no backup")
}

func TestUnreachableWritesBackup(t *testing.T) {
	cfg := unreachable(t)
	m := NewManager(cfg, "s1", zerolog.Nop())
	m.now = func() time.Time { return at }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid())
	assert.Equal(t, filepath.Join(cfg.BackupDir, "influx_20260212_213836.lp.gz"), m.BackupPath())

	require.NoError(t, m.WriteTelemetry([]core.ActorTelemetry{
		{Tick: 50, Time: at, Actor: 1, Definition: "truck", EngineRPM: 1200, Gear: 2, Running: true},
		{Tick: 50, Time: at, Actor: 2, Definition: "crate"},
	}))
	require.NoError(t, m.WriteEvent(core.Event{Kind: core.EventBeamBroken, Tick: 51, Time: at, Actor: 1, Index: 3}))
	require.NoError(t, m.WritePerformance(core.PerformanceSample{Time: at, Tick: 60, TickRate: 500}))
	path := m.BackupPath()
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "actor_telemetry,actor=1,definition=truck")
	assert.Contains(t, body, "actor_telemetry,actor=2,definition=crate")
	assert.Contains(t, body, "world_event,actor=1,kind=beam_broken")
	assert.Contains(t, body, "performance,session=s1")
}

func TestTelemetryPoint(t *testing.T) {
	p := TelemetryPoint("s", &core.ActorTelemetry{
		Tick: 5, Time: at, Actor: 7, Definition: "truck", State: core.StateLocalSimulated,
		EngineRPM: 800, Gear: -1, WheelSpeed: 12.5, Nodes: 40,
	})
	l := line(p)
	assert.Contains(t, l, "actor=7")
	assert.Contains(t, l, "state="+core.StateLocalSimulated.String())
	assert.Contains(t, l, "engine_rpm=800")
	assert.Contains(t, l, "gear=-1i")
	assert.Contains(t, l, "wheel_speed=12.5")
	assert.Contains(t, l, "nodes=40i")
	assert.Equal(t, at, p.Time())
}

func TestEventPointMessageOptional(t *testing.T) {
	plain := line(EventPoint("s", core.Event{Kind: core.EventHookLocked, Time: at}))
	assert.NotContains(t, plain, "message=")

	withMsg := line(EventPoint("s", core.Event{Kind: core.EventActorFrozen, Time: at, Message: "unstable"}))
	assert.Contains(t, withMsg, `message="unstable"`)
	assert.Contains(t, withMsg, "kind=actor_frozen")
}

func TestPerformancePoint(t *testing.T) {
	l := line(PerformancePoint("s", core.PerformanceSample{
		Time: at, Tick: 10, Actors: 2, LastWriteDuration: 1500 * time.Microsecond,
	}))
	assert.Contains(t, l, "last_write_ms=1.5")
	assert.Contains(t, l, "actors=2i")
}
