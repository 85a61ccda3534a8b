// Package influx writes actor telemetry, world events and performance
// samples to InfluxDB. When the server cannot be reached at Connect the
// points go to a gzip line-protocol backup file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement names.
const (
	MeasurementTelemetry   = "actor_telemetry"
	MeasurementEvent       = "world_event"
	MeasurementPerformance = "performance"
)

// ErrDisabled is returned by Connect when influx is switched off.
var ErrDisabled = errors.New("influx disabled")

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	cfg     config.InfluxConfig
	session string

	client influxdb2.Client
	writer influxdb2_api.WriteAPI

	mu         sync.Mutex
	backupFile *os.File
	backup     *gzip.Writer
	backupPath string
	valid      bool

	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a manager. session tags every point.
func NewManager(cfg config.InfluxConfig, session string, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		session: session,
		logger:  log,
		now:     time.Now,
	}
}

// IsValid reports whether points go to the server rather than the backup.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// BackupPath returns the backup file path, empty while connected.
func (m *Manager) BackupPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backupPath
}

// Connect pings the server and prepares the org, the bucket and a writer.
// An unreachable server switches to the backup file and is not an error.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.client = influxdb2.NewClientWithOptions(
		m.cfg.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.logger.Warn().Err(err).Str("url", m.cfg.URL()).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.writer.Errors())

	m.mu.Lock()
	m.valid = true
	m.mu.Unlock()
	m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backup != nil {
		return nil
	}
	if err := os.MkdirAll(m.cfg.BackupDir, 0755); err != nil {
		return fmt.Errorf("error creating backup directory: %w", err)
	}
	path := filepath.Join(m.cfg.BackupDir,
		fmt.Sprintf("influx_%s.lp.gz", m.now().Format("20060102_150405")))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backup = gzip.NewWriter(file)
	m.backupPath = path
	m.logger.Info().Str("backupPath", path).Msg("InfluxDB backup writer ready")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("create organization %s: %w", m.cfg.Org, err)
		}
	}

	// 30 day retention
	buckets := m.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 30,
		})
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", m.cfg.Bucket, err)
		}
	}
	return nil
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid {
		m.writer.WritePoint(point)
		return nil
	}
	if m.backup == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backup.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteTelemetry writes one point per actor.
func (m *Manager) WriteTelemetry(samples []core.ActorTelemetry) error {
	var errs []error
	for i := range samples {
		if err := m.WritePoint(TelemetryPoint(m.session, &samples[i])); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) WriteEvent(e core.Event) error {
	return m.WritePoint(EventPoint(m.session, e))
}

func (m *Manager) WritePerformance(p core.PerformanceSample) error {
	return m.WritePoint(PerformancePoint(m.session, p))
}

// Close flushes pending points and closes the client and the backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}
	if m.backup != nil {
		errs = append(errs, m.backup.Close(), m.backupFile.Close())
		m.backup = nil
	}
	m.valid = false
	return errors.Join(errs...)
}

// TelemetryPoint converts one actor sample.
func TelemetryPoint(session string, t *core.ActorTelemetry) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementTelemetry,
		map[string]string{
			"session":    session,
			"actor":      strconv.FormatUint(uint64(t.Actor), 10),
			"definition": t.Definition,
			"state":      t.State.String(),
		},
		map[string]any{
			"tick":        t.Tick,
			"engine_rpm":  t.EngineRPM,
			"gear":        t.Gear,
			"running":     t.Running,
			"wheel_speed": t.WheelSpeed,
			"nodes":       t.Nodes,
			"broken":      t.Broken,
		},
		t.Time)
}

// EventPoint converts a world event.
func EventPoint(session string, e core.Event) *influxdb2_write.Point {
	fields := map[string]any{
		"tick":  e.Tick,
		"index": e.Index,
	}
	if e.Message != "" {
		fields["message"] = e.Message
	}
	return influxdb2_write.NewPoint(MeasurementEvent,
		map[string]string{
			"session": session,
			"kind":    e.Kind.String(),
			"actor":   strconv.FormatUint(uint64(e.Actor), 10),
		},
		fields,
		e.Time)
}

// PerformancePoint converts a loop sample.
func PerformancePoint(session string, p core.PerformanceSample) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(MeasurementPerformance,
		map[string]string{"session": session},
		map[string]any{
			"tick":          p.Tick,
			"tick_rate":     p.TickRate,
			"actors":        p.Actors,
			"nodes":         p.Nodes,
			"beams":         p.Beams,
			"paused":        p.Paused,
			"queue_frames":  p.Queues.Frames,
			"queue_events":  p.Queues.Events,
			"last_write_ms": float64(p.LastWriteDuration.Microseconds()) / 1000,
		},
		p.Time)
}
