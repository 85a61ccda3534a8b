package geo

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Tracks accumulates actor paths in local coordinates. Not safe for
// concurrent use.
type Tracks struct {
	origin *Origin
	paths  map[core.ActorID][]mgl32.Vec3
	labels map[core.ActorID]string
	// minStep drops samples closer than this to the previous one.
	minStep float32
}

func NewTracks(origin *Origin, minStep float32) *Tracks {
	return &Tracks{
		origin:  origin,
		paths:   make(map[core.ActorID][]mgl32.Vec3),
		labels:  make(map[core.ActorID]string),
		minStep: minStep,
	}
}

// Label names an actor's feature in the export.
func (t *Tracks) Label(id core.ActorID, name string) {
	t.labels[id] = name
}

// Add appends a sample unless it is within minStep of the last one.
func (t *Tracks) Add(id core.ActorID, p mgl32.Vec3) {
	path := t.paths[id]
	if n := len(path); n > 0 && path[n-1].Sub(p).Len() < t.minStep {
		return
	}
	t.paths[id] = append(path, p)
}

// Len returns the number of samples kept for id.
func (t *Tracks) Len(id core.ActorID) int { return len(t.paths[id]) }

// LineString returns the WGS84 path of id. Paths with fewer than two
// samples have no line and report false.
func (t *Tracks) LineString(id core.ActorID) (geom.LineString, bool, error) {
	path := t.paths[id]
	if len(path) < 2 {
		return geom.LineString{}, false, nil
	}
	coords := make([]float64, 0, len(path)*3)
	for _, p := range path {
		lon, lat := t.origin.LonLat(p)
		coords = append(coords, lon, lat, float64(p.Y()))
	}
	ls, err := geom.NewLineString(geom.NewSequence(coords, geom.DimXYZ))
	if err != nil {
		return geom.LineString{}, false, fmt.Errorf("track of actor %d: %w", id, err)
	}
	return ls, true, nil
}

// FeatureCollection exports every track with at least two samples, in
// actor id order.
func (t *Tracks) FeatureCollection() (geom.GeoJSONFeatureCollection, error) {
	ids := make([]core.ActorID, 0, len(t.paths))
	for id := range t.paths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fc := make(geom.GeoJSONFeatureCollection, 0, len(ids))
	for _, id := range ids {
		ls, ok, err := t.LineString(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		fc = append(fc, geom.GeoJSONFeature{
			Geometry: ls.AsGeometry(),
			ID:       uint32(id),
			Properties: map[string]interface{}{
				"actor":   uint32(id),
				"name":    t.labels[id],
				"samples": len(t.paths[id]),
			},
		})
	}
	return fc, nil
}

// ParseRoute parses a JSON array of local coordinates, "[[x,y,z],...]",
// into waypoint positions.
func ParseRoute(input string) ([]mgl32.Vec3, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse route JSON: %w", err)
	}
	if len(coords) == 0 {
		return nil, fmt.Errorf("route has no points")
	}
	route := make([]mgl32.Vec3, len(coords))
	for i, c := range coords {
		if len(c) != 3 {
			return nil, fmt.Errorf("coordinate %d has %d values, want 3", i, len(c))
		}
		route[i] = mgl32.Vec3{float32(c[0]), float32(c[1]), float32(c[2])}
	}
	return route, nil
}
