package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const bridgeName = "github.com/beamsim/beamsim"

// Options selects the outputs of a SlogManager.
type Options struct {
	Level string
	// Console receives text logs. It defaults to os.Stdout when no File
	// is set.
	Console io.Writer
	// File is the session log file. Optional.
	File io.Writer
	// Provider enables the OTel bridge when set.
	Provider *sdklog.LoggerProvider
	// Extra handlers, such as Graylog, join the fan-out.
	Extra []slog.Handler
	// Context adds per-record attributes, such as the session id.
	Context ContextProvider
}

// SlogManager owns the process logger.
type SlogManager struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	closers     []io.Closer
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// ParseLevel converts a config level name. Unknown names are INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func handlerOptions(lvl slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}
}

// Setup builds the logger. Calling it again replaces the previous one.
func (m *SlogManager) Setup(opts Options) {
	lvl := ParseLevel(opts.Level)
	ho := handlerOptions(lvl)

	console := opts.Console
	if console == nil && opts.File == nil {
		console = os.Stdout
	}
	var handlers []slog.Handler
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, ho))
	}
	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, ho))
	}
	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(bridgeName, otelslog.WithLoggerProvider(opts.Provider)))
	}
	handlers = append(handlers, opts.Extra...)

	var h slog.Handler = NewMultiHandler(handlers...)
	if opts.Context != nil {
		h = NewContextHandler(h, opts.Context)
	}

	m.mu.Lock()
	m.logger = slog.New(h)
	m.logProvider = opts.Provider
	m.mu.Unlock()
	m.Logger().Info("Logging initialized", "level", lvl.String())
}

// AddCloser registers an output to close with the manager.
func (m *SlogManager) AddCloser(c io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, c)
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	m.mu.RLock()
	p := m.logProvider
	m.mu.RUnlock()
	if p != nil {
		return p.ForceFlush(ctx)
	}
	return nil
}

// Close closes registered outputs.
func (m *SlogManager) Close() error {
	m.mu.Lock()
	closers := m.closers
	m.closers = nil
	m.mu.Unlock()
	var errs []error
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
