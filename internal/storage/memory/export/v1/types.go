// Package v1 contains the v1 JSON export format for recorded sessions.
// Replay frames are exported separately in the binary replay format.
package v1

import (
	"github.com/beamsim/beamsim/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// FormatVersion is written to every export.
const FormatVersion = 1

// Export is the root JSON structure for v1 format
type Export struct {
	Version     int        `json:"version"`
	SessionID   string     `json:"sessionId"`
	SessionName string     `json:"sessionName"`
	Tags        string     `json:"tags"`
	StartTime   string     `json:"startTime"`
	EndTime     string     `json:"endTime"`
	Duration    float64    `json:"duration"`
	TickRate    float32    `json:"tickRate"`
	Gravity     [3]float32 `json:"gravity"`
	EndTick     uint64     `json:"endTick"`
	FrameCount  int        `json:"frameCount"`
	Origin      *Origin    `json:"origin,omitempty"`

	Actors      []Actor                       `json:"actors"`
	Events      []core.Event                  `json:"events"`
	Performance []core.PerformanceSample      `json:"performance"`
	Tracks      geom.GeoJSONFeatureCollection `json:"tracks"`
}

// Origin is the geodetic anchor of the local frame, in degrees.
type Origin struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Actor summarises one actor's lifetime in the session.
type Actor struct {
	ID          uint32  `json:"id"`
	Definition  string  `json:"definition"`
	SpawnTick   uint64  `json:"spawnTick"`
	RemoveTick  *uint64 `json:"removeTick,omitempty"`
	BrokenBeams int     `json:"brokenBeams"`
	Frozen      bool    `json:"frozen"`
	// Samples is the number of recorded frames the actor appears in.
	Samples int `json:"samples"`
}
