package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/beamsim/beamsim/internal/replay"
	v1 "github.com/beamsim/beamsim/internal/storage/memory/export/v1"
	"github.com/beamsim/beamsim/pkg/core"
)

// export writes every file of the current session. Caller holds mu.
func (b *Backend) export() error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	base := b.baseName()

	replayPath := filepath.Join(b.cfg.OutputDir, b.fileName(base, "bsr"))
	if err := b.writeFile(replayPath, b.writeFrames); err != nil {
		return err
	}
	b.lastReplayPath = replayPath

	if len(b.inputs) > 0 {
		inputPath := filepath.Join(b.cfg.OutputDir, b.fileName(base, "bsi"))
		if err := b.writeFile(inputPath, b.writeInputs); err != nil {
			return err
		}
	}

	export, err := v1.Build(&v1.SessionData{
		Session:     b.session,
		EndTime:     b.endTime,
		Frames:      b.frames,
		Events:      b.events,
		Performance: b.performance,
		Origin:      b.origin,
	})
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(b.cfg.OutputDir, b.fileName(base, "json"))
	if err := b.writeFile(jsonPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(export)
	}); err != nil {
		return err
	}

	b.lastExportPath = jsonPath
	b.lastMeta = core.UploadMetadata{
		SessionName: b.session.Name,
		Duration:    export.Duration,
		Ticks:       export.EndTick,
		Actors:      len(export.Actors),
		Tag:         b.session.Tags,
	}
	return nil
}

// baseName is <session name>_<start timestamp> with path-hostile
// characters replaced.
func (b *Backend) baseName() string {
	name := strings.ReplaceAll(b.session.Name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	return fmt.Sprintf("%s_%s", name, b.session.StartTime.Format("20060102_150405"))
}

func (b *Backend) fileName(base, ext string) string {
	if b.cfg.CompressOutput {
		return base + "." + ext + ".gz"
	}
	return base + "." + ext
}

// writeFile creates path and hands fn a writer, gzipped when configured.
func (b *Backend) writeFile(path string, fn func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if b.cfg.CompressOutput {
		gz = gzip.NewWriter(f)
		w = gz
	}
	if err := fn(w); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return f.Close()
}

func (b *Backend) writeFrames(w io.Writer) error {
	rw := replay.NewWriter(w)
	for i := range b.frames {
		if err := rw.WriteFrame(&b.frames[i]); err != nil {
			return err
		}
	}
	return rw.Flush()
}

func (b *Backend) writeInputs(w io.Writer) error {
	rw := replay.NewWriter(w)
	for i := range b.inputs {
		if err := rw.WriteInput(&b.inputs[i]); err != nil {
			return err
		}
	}
	return rw.Flush()
}
