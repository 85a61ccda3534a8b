package main

import (
	"context"
	"fmt"
	"time"

	"github.com/beamsim/beamsim/internal/api"
	"github.com/beamsim/beamsim/internal/cache"
	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/internal/contact"
	"github.com/beamsim/beamsim/internal/definition"
	"github.com/beamsim/beamsim/internal/dispatcher"
	"github.com/beamsim/beamsim/internal/geo"
	"github.com/beamsim/beamsim/internal/influx"
	"github.com/beamsim/beamsim/internal/logging"
	"github.com/beamsim/beamsim/internal/monitor"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/beamsim/beamsim/internal/worker"
	"github.com/beamsim/beamsim/internal/world"
	"github.com/getsentry/sentry-go"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/viper"
)

// frameInterval is the wall-clock period of the real-time loop. Each frame
// advances the world by the elapsed time.
const frameInterval = 10 * time.Millisecond

func worldConfig(sim config.SimulationConfig) world.Config {
	cfg := world.DefaultConfig()
	cfg.TickRate = sim.TickRate
	cfg.Gravity = mgl32.Vec3(sim.Gravity)
	cfg.ReplayRate = sim.ReplayRate
	cfg.Workers = sim.Workers
	cfg.MaxTicksPerAdvance = sim.MaxTicksPerAdvance
	cfg.Water = sim.Water
	cfg.WaterLevel = sim.WaterLevel
	cfg.AirDrag = sim.AirDrag
	cfg.ForceSentinel = sim.ForceSentinel
	cfg.Contact.Stiffness = sim.GroundStiffness
	cfg.Contact.Damping = sim.GroundDamping
	cfg.Contact.HardPenetration = sim.HardPenetration
	cfg.Contact.Gravity = -cfg.Gravity.Y()
	return cfg
}

// loadDefinitions returns the built-in definitions plus those found in dir.
// Broken files are logged and skipped.
func (a *app) loadDefinitions(dir string) (*definition.Store, error) {
	defs := definition.NewStore()
	for _, d := range definition.Builtins() {
		if err := defs.Put(d); err != nil {
			return nil, fmt.Errorf("builtin %s: %w", d.Name, err)
		}
	}
	if dir == "" {
		return defs, nil
	}
	n, err := defs.LoadDir(dir)
	if err != nil {
		a.log.Warn("Some definitions failed to load", "dir", dir, "error", err)
	}
	a.log.Info("Loaded definitions", "dir", dir, "count", n, "total", defs.Len())
	return defs, nil
}

func (a *app) origin() *geo.Origin {
	g := config.GetGeoConfig()
	origin, err := geo.NewOrigin(g.OriginLon, g.OriginLat)
	if err != nil {
		a.log.Warn("Invalid geo origin, exports carry no tracks", "error", err)
		return nil
	}
	return origin
}

// run records one session of the real-time simulation until ctx ends.
func (a *app) run(ctx context.Context) error {
	sim := config.GetSimulationConfig()

	defs, err := a.loadDefinitions(sim.DefinitionsDir)
	if err != nil {
		return err
	}
	friction, err := config.GetFrictionTable()
	if err != nil {
		return err
	}
	scene, err := loadScene()
	if err != nil {
		return err
	}

	backend, err := createStorageBackend(config.GetStorageConfig(), a.origin(), a.log, a.zl)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	a.onClose(func() {
		if err := backend.Close(); err != nil {
			a.log.Error("Failed to close storage backend", "error", err)
		}
	})

	a.sess.Start(viper.GetString("sessionName"), sim.TickRate, time.Now())
	a.sess.Tag(viper.GetString("defaultTag"))
	sess, _ := a.sess.Get()
	sess.Gravity = mgl32.Vec3(sim.Gravity)

	var telemetry *influx.Manager
	if cfg := config.GetInfluxConfig(); cfg.Enabled {
		m := influx.NewManager(cfg, sess.ID, a.zl.With().Str("component", "influx").Logger())
		if err := m.Connect(ctx); err != nil {
			a.log.Warn("Telemetry disabled", "error", err)
		} else {
			telemetry = m
			a.onClose(func() {
				if err := m.Close(); err != nil {
					a.log.Warn("Failed to close telemetry", "error", err)
				}
			})
		}
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.zl))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	wdeps := worker.Dependencies{Backend: backend, Logger: a.log}
	if telemetry != nil {
		wdeps.Telemetry = telemetry
	}
	workers := worker.NewManager(wdeps)
	workers.RegisterHandlers(d)
	workers.Start()

	if err := backend.StartSession(&sess); err != nil {
		d.Close()
		workers.Close()
		return fmt.Errorf("failed to start session: %w", err)
	}
	a.log.Info("Session started", "name", sess.Name, "tickRate", sess.TickRate)

	w, err := world.New(worldConfig(sim), world.Dependencies{
		Terrain:     contact.FlatTerrain{Surface: viper.GetString("ground.default")},
		Friction:    friction,
		Sink:        d,
		Recorder:    workers.Recorder(),
		Logger:      a.log,
		Definitions: defs,
		Templates:   cache.NewTemplateCache(),
	})
	if err != nil {
		d.Close()
		workers.Close()
		return err
	}

	var mon *monitor.Service
	if mc := config.GetMonitorConfig(); mc.Enabled {
		mdeps := monitor.Dependencies{
			World:      w,
			Session:    a.sess,
			Queues:     workers,
			Backend:    backend,
			StatusFile: mc.StatusFile,
			Interval:   mc.Interval,
			Logger:     a.log,
		}
		if telemetry != nil {
			mdeps.Telemetry = telemetry
		}
		mon = monitor.NewService(mdeps)
		if err := mon.Start(); err != nil {
			a.log.Warn("Status monitor disabled", "error", err)
			mon = nil
		}
	}

	apiCfg := config.GetAPIConfig()
	var srv *api.Server
	if apiCfg.Enabled {
		srv = api.NewServer(w, apiCfg.JWTSecret, a.log)
		if _, err := srv.Start(apiCfg.Listen); err != nil {
			a.log.Error("Control API disabled", "error", err)
			srv = nil
		}
	}

	ids, err := spawnScene(w, scene)
	if err != nil {
		a.log.Error("Scene incomplete", "error", err)
	}
	a.log.Info("Scene queued", "actors", len(ids))

	loopErr := a.loop(ctx, w, workers, sim.ReplayRate)

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(sctx); err != nil {
			a.log.Warn("Control API shutdown", "error", err)
		}
		cancel()
	}
	if mon != nil {
		mon.Stop()
	}
	w.Close()
	d.Close()
	workers.Close()

	a.sess.End()
	if err := backend.EndSession(); err != nil {
		a.log.Error("Failed to end session", "error", err)
	} else {
		a.log.Info("Session saved", "ticks", w.Tick())
		a.upload(backend, apiCfg)
	}
	return loopErr
}

// loop advances the world in real time and samples telemetry at the replay
// rate. A panic inside a frame is reported and ends the loop.
func (a *app) loop(ctx context.Context, w *world.World, workers *worker.Manager, replayRate float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			err = fmt.Errorf("simulation loop panic: %v", r)
		}
	}()

	sampleEvery := time.Duration(float32(time.Second) / replayRate)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	last := time.Now()
	lastSample := last
	for {
		select {
		case <-ctx.Done():
			a.log.Info("Shutting down", "tick", w.Tick())
			return nil
		case now := <-ticker.C:
			w.Advance(float32(now.Sub(last).Seconds()))
			last = now
			if now.Sub(lastSample) >= sampleEvery {
				lastSample = now
				w.Read(workers.SampleTelemetry)
			}
		}
	}
}

// upload sends the exported recording to the replay server when the
// backend produced one and an endpoint is configured.
func (a *app) upload(backend storage.Backend, cfg config.APIConfig) {
	up, ok := backend.(storage.Uploadable)
	if !ok || cfg.ServerURL == "" || cfg.APIKey == "" {
		return
	}
	path := up.GetExportedFilePath()
	if path == "" {
		return
	}
	// the run context is usually canceled by now
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	client := api.New(cfg.ServerURL, cfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		a.log.Info("Replay server offline, keeping local export", "path", path, "error", err)
		return
	}
	if err := client.Upload(ctx, path, up.GetExportMetadata()); err != nil {
		a.log.Error("Upload failed", "path", path, "error", err)
		return
	}
	a.log.Info("Recording uploaded", "path", path)
}
