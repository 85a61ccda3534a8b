package main

import (
	"compress/gzip"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/internal/world"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

type actorSummary struct {
	ID     core.ActorID
	Nodes  int
	Frames int
	// Travel is the path length of the node centroid.
	Travel float32

	last mgl32.Vec3
}

type replaySummary struct {
	Frames    int
	FirstTick uint64
	LastTick  uint64
	Duration  time.Duration
	Actors    []*actorSummary
}

func centroid(ps []mgl32.Vec3) mgl32.Vec3 {
	var c mgl32.Vec3
	for _, p := range ps {
		c = c.Add(p)
	}
	return c.Mul(1 / float32(len(ps)))
}

func summarizeFrames(frames []replay.Frame) replaySummary {
	var s replaySummary
	if len(frames) == 0 {
		return s
	}
	s.Frames = len(frames)
	s.FirstTick = frames[0].Tick
	s.LastTick = frames[len(frames)-1].Tick
	s.Duration = frames[len(frames)-1].Timestamp.Sub(frames[0].Timestamp)

	byID := map[core.ActorID]*actorSummary{}
	for i := range frames {
		for _, block := range frames[i].Actors {
			if len(block.Positions) == 0 {
				continue
			}
			c := centroid(block.Positions)
			a, ok := byID[block.ID]
			if !ok {
				a = &actorSummary{ID: block.ID, Nodes: len(block.Positions)}
				byID[block.ID] = a
				s.Actors = append(s.Actors, a)
			} else {
				a.Travel += c.Sub(a.last).Len()
			}
			a.last = c
			a.Frames++
		}
	}
	slices.SortFunc(s.Actors, func(x, y *actorSummary) int { return int(x.ID) - int(y.ID) })
	return s
}

func printSummary(w io.Writer, s replaySummary) {
	fmt.Fprintf(w, "frames:   %d\n", s.Frames)
	fmt.Fprintf(w, "ticks:    %d..%d\n", s.FirstTick, s.LastTick)
	fmt.Fprintf(w, "duration: %s\n", s.Duration)
	fmt.Fprintf(w, "actors:   %d\n", len(s.Actors))
	for _, a := range s.Actors {
		fmt.Fprintf(w, "  #%d nodes=%d frames=%d travel=%.2fm\n", a.ID, a.Nodes, a.Frames, a.Travel)
	}
}

// openLog opens a replay or input log, decompressing .gz files.
func openLog(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, f}, nil
}

func readInputs(r io.Reader) ([]replay.InputRecord, error) {
	rd := replay.NewReader(r)
	var out []replay.InputRecord
	for {
		rec, err := rd.NextInput()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// playback spawns one replay-only actor of def per recorded actor and steps
// the world through the frames. It returns the digest of the last snapshot.
func playback(w *world.World, def string, frames []replay.Frame, actors []*actorSummary) (uint64, error) {
	ids := make(map[core.ActorID]core.ActorID, len(actors))
	for _, a := range actors {
		id, err := w.Spawn(core.SpawnRequest{Definition: def, Rotation: mgl32.QuatIdent(), State: core.StateReplayOnly})
		if err != nil {
			return 0, err
		}
		ids[a.ID] = id
	}
	for _, f := range frames {
		mapped := f
		mapped.Actors = make([]replay.ActorFrame, 0, len(f.Actors))
		for _, block := range f.Actors {
			if id, ok := ids[block.ID]; ok {
				mapped.Actors = append(mapped.Actors, replay.ActorFrame{ID: id, Positions: block.Positions})
			}
		}
		if err := w.ApplyReplayFrame(mapped); err != nil {
			return 0, err
		}
		w.Step()
	}
	var digest uint64
	w.Read(func(s *core.Snapshot) { digest = s.Digest() })
	return digest, nil
}

func (a *app) replay(ctx context.Context, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	def := fs.String("definition", "", "play the frames back on replay-only actors of this definition")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("replay needs a file")
	}
	path := fs.Arg(0)

	r, err := openLog(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if strings.Contains(path, ".bsi") {
		recs, err := readInputs(r)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		n := 0
		for _, rec := range recs {
			n += len(rec.Inputs)
		}
		fmt.Fprintf(out, "input records: %d\ninputs: %d\n", len(recs), n)
		return nil
	}

	frames, err := replay.ReadFrames(r)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	summary := summarizeFrames(frames)
	printSummary(out, summary)
	if *def == "" || ctx.Err() != nil {
		return nil
	}

	sim := config.GetSimulationConfig()
	defs, err := a.loadDefinitions(sim.DefinitionsDir)
	if err != nil {
		return err
	}
	if _, ok := defs.Get(*def); !ok {
		return fmt.Errorf("%w: %s", world.ErrUnknownDefinition, *def)
	}
	w, err := world.New(worldConfig(sim), world.Dependencies{Definitions: defs, Logger: a.log})
	if err != nil {
		return err
	}
	defer w.Close()

	digest, err := playback(w, *def, frames, summary.Actors)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "playback digest: %016x\n", digest)
	return nil
}
