package v1

import (
	"fmt"
	"sort"
	"time"

	"github.com/beamsim/beamsim/internal/geo"
	"github.com/beamsim/beamsim/internal/replay"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	geom "github.com/peterstace/simplefeatures/geom"
)

// TrackStep is the minimum distance in metres between two track samples.
const TrackStep = 0.5

// SessionData contains all the data needed to build an export
type SessionData struct {
	Session     *core.Session
	EndTime     time.Time
	Frames      []replay.Frame
	Events      []core.Event
	Performance []core.PerformanceSample
	// Origin places tracks on the globe. Without one the export has no
	// tracks.
	Origin *geo.Origin
}

// Build creates an Export from the session data. It fails only when a
// track cannot be turned into a geometry.
func Build(data *SessionData) (Export, error) {
	s := data.Session
	export := Export{
		Version:     FormatVersion,
		SessionID:   s.ID,
		SessionName: s.Name,
		Tags:        s.Tags,
		StartTime:   s.StartTime.UTC().Format(time.RFC3339Nano),
		TickRate:    s.TickRate,
		Gravity:     [3]float32(s.Gravity),
		FrameCount:  len(data.Frames),
		Actors:      make([]Actor, 0),
		Events:      make([]core.Event, 0, len(data.Events)),
		Performance: make([]core.PerformanceSample, 0, len(data.Performance)),
		Tracks:      make(geom.GeoJSONFeatureCollection, 0),
	}
	if !data.EndTime.IsZero() {
		export.EndTime = data.EndTime.UTC().Format(time.RFC3339Nano)
		export.Duration = data.EndTime.Sub(s.StartTime).Seconds()
	}

	actors := make(map[core.ActorID]*Actor)
	get := func(id core.ActorID) *Actor {
		a, ok := actors[id]
		if !ok {
			a = &Actor{ID: uint32(id)}
			actors[id] = a
		}
		return a
	}

	for _, e := range data.Events {
		export.Events = append(export.Events, e)
		if e.Tick > export.EndTick {
			export.EndTick = e.Tick
		}
		switch e.Kind {
		case core.EventActorSpawned:
			a := get(e.Actor)
			a.Definition = e.Label
			a.SpawnTick = e.Tick
		case core.EventActorRemoved:
			tick := e.Tick
			get(e.Actor).RemoveTick = &tick
		case core.EventBeamBroken:
			get(e.Actor).BrokenBeams++
		case core.EventActorFrozen:
			get(e.Actor).Frozen = true
		}
	}
	export.Performance = append(export.Performance, data.Performance...)

	var tracks *geo.Tracks
	if data.Origin != nil {
		export.Origin = &Origin{Lat: data.Origin.Lat, Lon: data.Origin.Lon}
		tracks = geo.NewTracks(data.Origin, TrackStep)
	}
	for i := range data.Frames {
		f := &data.Frames[i]
		if f.Tick > export.EndTick {
			export.EndTick = f.Tick
		}
		for _, block := range f.Actors {
			get(block.ID).Samples++
			if tracks != nil && len(block.Positions) > 0 {
				tracks.Add(block.ID, Centroid(block.Positions))
			}
		}
	}

	ids := make([]core.ActorID, 0, len(actors))
	for id := range actors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		a := actors[id]
		export.Actors = append(export.Actors, *a)
		if tracks != nil {
			tracks.Label(id, a.Definition)
		}
	}
	if tracks != nil {
		fc, err := tracks.FeatureCollection()
		if err != nil {
			return Export{}, fmt.Errorf("export tracks: %w", err)
		}
		export.Tracks = fc
	}
	return export, nil
}

// Centroid is the mean of the positions.
func Centroid(pos []mgl32.Vec3) mgl32.Vec3 {
	var c mgl32.Vec3
	for _, p := range pos {
		c = c.Add(p)
	}
	return c.Mul(1 / float32(len(pos)))
}
