// Package logging builds the process logger: a slog fan-out to console,
// session file, the OTel bridge and optionally Graylog, plus zerolog for
// the components that log through it.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// LogFilePath builds <logsDir>/<name>.<YYYYMMDD_HHMMSS>.log.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// NewGraylogHandler returns a JSON handler writing GELF messages to addr
// and the writer to close on shutdown.
func NewGraylogHandler(addr, level string) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect graylog %s: %w", addr, err)
	}
	return slog.NewJSONHandler(w, handlerOptions(ParseLevel(level))), w, nil
}
