package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/internal/logging"
	intOtel "github.com/beamsim/beamsim/internal/otel"
	"github.com/beamsim/beamsim/internal/session"
	"github.com/getsentry/sentry-go"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// app holds the process-wide services shared by the subcommands.
type app struct {
	configDir string
	start     time.Time

	logs    *logging.SlogManager
	log     *slog.Logger
	logFile *os.File
	// zl is the zerolog logger of the database, influx and dispatcher
	// adapters. It writes to the log file.
	zl zerolog.Logger

	otel    *intOtel.Provider
	sess    *session.Context
	stats   *statsview.ViewManager
	sentry  bool
	closers []func()
}

func newApp(configDir string) (*app, error) {
	a := &app{
		configDir: configDir,
		start:     time.Now(),
		logs:      logging.NewSlogManager(),
		sess:      session.NewContext(),
	}

	// console-only logging until the config names a log directory
	a.logs.Setup(logging.Options{Level: "info", Console: os.Stderr})
	a.log = a.logs.Logger()

	if err := config.Load(configDir); err != nil {
		a.log.Warn("Failed to load config, using defaults", "error", err)
	} else {
		a.log.Info("Loaded config", "dir", configDir)
	}

	if err := a.setupLogging(); err != nil {
		return nil, err
	}
	a.setupDebug()
	return a, nil
}

func (a *app) setupLogging() error {
	level := viper.GetString("logLevel")
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	path := logging.LogFilePath(logsDir, "beamsim", a.start)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	a.logFile = f
	a.zl = logging.NewZerolog(f, level, "beamsim")

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		p, err := intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      f,
			MetricWriter:   f,
			MetricInterval: time.Minute,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			a.log.Error("Failed to initialize OTel provider", "error", err)
		} else {
			a.otel = p
			a.log.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	opts := logging.Options{
		Level:   level,
		Console: os.Stderr,
		File:    f,
		Context: logging.SessionAttrs(a.sess),
	}
	if a.otel != nil {
		opts.Provider = a.otel.LoggerProvider()
	}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		h, closer, err := logging.NewGraylogHandler(gl.Address, level)
		if err != nil {
			a.log.Warn("Graylog disabled", "error", err)
		} else {
			opts.Extra = append(opts.Extra, h)
			a.logs.AddCloser(closer)
		}
	}
	a.logs.Setup(opts)
	a.log = a.logs.Logger()
	a.log.Info("Logging to file", "path", path)
	return nil
}

func (a *app) setupDebug() {
	dbg := config.GetDebugConfig()
	if dbg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     dbg.SentryDSN,
			Release: "beamsim@" + Version,
		})
		if err != nil {
			a.log.Warn("Sentry disabled", "error", err)
		} else {
			a.sentry = true
		}
	}
	if dbg.Statsview {
		viewer.SetConfiguration(viewer.WithAddr(dbg.StatsviewAddr))
		a.stats = statsview.New()
		go func() {
			if err := a.stats.Start(); err != nil {
				a.log.Warn("statsview stopped", "error", err)
			}
		}()
		a.log.Info("statsview started", "addr", dbg.StatsviewAddr)
	}
}

// onClose registers cleanup run by close in reverse order.
func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	if a.stats != nil {
		a.stats.Stop()
	}
	if a.sentry {
		sentry.Flush(2 * time.Second)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.logs.Flush(ctx); err != nil {
		a.log.Warn("Failed to flush logs", "error", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.log.Warn("Failed to shut down OTel", "error", err)
		}
	}
	_ = a.logs.Close()
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

