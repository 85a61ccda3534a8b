package ai

import (
	"testing"

	"github.com/beamsim/beamsim/internal/actor"
	"github.com/beamsim/beamsim/internal/definition"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crate(t *testing.T) *actor.Actor {
	t.Helper()
	a, err := actor.New(7, definition.Box("crate", 1, 100), actor.SpawnParams{State: core.StateLocalSimulated})
	require.NoError(t, err)
	return a
}

func eventsOf(a *actor.Actor, kind core.EventKind) []core.Event {
	var out []core.Event
	for _, e := range a.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestSteeringIsBangBang(t *testing.T) {
	tests := []struct {
		name     string
		target   mgl32.Vec3
		steer    float32
		throttle float32
	}{
		{"right", mgl32.Vec3{10, 0, 10}, 1, 0.8 / 3},
		{"left", mgl32.Vec3{-10, 0, 10}, -1, 0.8 / 3},
		{"behind", mgl32.Vec3{-1, 0, -40}, -1, 0.8 / 3},
		{"ahead", mgl32.Vec3{0, 0, 50}, 0, 0.8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := crate(t)
			v := New(DefaultConfig())
			v.AddWaypoint(Waypoint{ID: "wp", Position: tc.target})
			v.Update(a, 0.01)
			assert.Equal(t, tc.steer, a.Input.Steer)
			assert.InDelta(t, tc.throttle, a.Input.Throttle, 1e-6)
			assert.Zero(t, a.Input.Brake)
		})
	}
}

func TestReachingWaypointAppliesOverrides(t *testing.T) {
	a := crate(t)
	v := New(DefaultConfig())
	v.AddWaypoints(
		Waypoint{ID: "a", Position: mgl32.Vec3{0, 0, 3}, SpeedKMH: 20, Event: EventLights},
		Waypoint{ID: "b", Position: mgl32.Vec3{0, 0, 100}},
	)

	v.Update(a, 0.01)
	reached := eventsOf(a, core.EventWaypointReached)
	require.Len(t, reached, 1)
	assert.Equal(t, "a", reached[0].Label)
	assert.Equal(t, 0, reached[0].Index)
	assert.Equal(t, core.ActorID(7), reached[0].Actor)

	cur, ok := v.Current()
	require.True(t, ok)
	assert.Equal(t, "b", cur.ID)
	assert.Equal(t, float32(20), v.MaxSpeed())
	assert.True(t, a.Lights)
	assert.InDelta(t, 0.8, a.Input.Throttle, 1e-6)
}

func TestStopAtEnd(t *testing.T) {
	a := crate(t)
	cfg := DefaultConfig()
	cfg.StopAtEnd = true
	v := New(cfg)
	v.AddWaypoint(Waypoint{ID: "end", Position: mgl32.Vec3{0, 0, 2}})

	v.Update(a, 0.01)
	assert.False(t, v.Enabled)
	assert.True(t, a.Parking)
	assert.Equal(t, float32(1), a.Input.Brake)
	assert.Zero(t, a.Input.Throttle)

	a.Events()
	v.Update(a, 0.01)
	assert.Empty(t, a.Events(), "a disabled follower does nothing")
}

func TestRouteWraps(t *testing.T) {
	a := crate(t)
	v := New(DefaultConfig())
	v.AddWaypoints(
		Waypoint{ID: "a", Position: mgl32.Vec3{0, 0, 2}},
		Waypoint{ID: "b", Position: mgl32.Vec3{0, 0, 4}},
	)
	v.Update(a, 0.01)
	v.Update(a, 0.01)
	cur, _ := v.Current()
	assert.Equal(t, "a", cur.ID)
	assert.True(t, v.Enabled)
	assert.Len(t, eventsOf(a, core.EventWaypointReached), 2)
}

func TestAddWaypointReplacesInPlace(t *testing.T) {
	v := New(Config{})
	v.AddWaypoints(
		Waypoint{ID: "a", Position: mgl32.Vec3{1, 0, 0}},
		Waypoint{ID: "b", Position: mgl32.Vec3{2, 0, 0}},
		Waypoint{ID: "a", Position: mgl32.Vec3{3, 0, 0}},
	)
	wps := v.Waypoints()
	require.Len(t, wps, 2)
	assert.Equal(t, "a", wps[0].ID)
	assert.Equal(t, mgl32.Vec3{3, 0, 0}, wps[0].Position)
	assert.Equal(t, float32(50), v.MaxSpeed())
}

func stuckRoute(clear ClearSpace) *VehicleAI {
	cfg := DefaultConfig()
	cfg.StuckReset = true
	cfg.StuckResetDelay = 1
	v := New(cfg)
	v.ClearSpace = clear
	v.AddWaypoints(
		Waypoint{ID: "a", Position: mgl32.Vec3{0, 0, 2}},
		Waypoint{ID: "b", Position: mgl32.Vec3{30, 0, 2}},
	)
	return v
}

func TestStuckResetFacesNextWaypoint(t *testing.T) {
	a := crate(t)
	var asked []mgl32.Vec3
	v := stuckRoute(func(id core.ActorID, pos mgl32.Vec3) bool {
		assert.Equal(t, core.ActorID(7), id)
		asked = append(asked, pos)
		return true
	})

	for i := 0; i < 3; i++ {
		v.Update(a, 0.6)
	}
	assert.Equal(t, []mgl32.Vec3{{0, 0, 2}}, asked)
	assert.InDelta(t, math32.Pi/2, a.Heading(), 1e-5)
	p := a.Body.Nodes[0].AbsPosition
	assert.InDelta(t, -0.5, p.X(), 1e-5)
	assert.InDelta(t, 2.5, p.Z(), 1e-5)
	assert.Len(t, eventsOf(a, core.EventResetApplied), 1)
	cur, _ := v.Current()
	assert.Equal(t, "b", cur.ID)
}

func TestStuckResetNeedsClearSpace(t *testing.T) {
	a := crate(t)
	v := stuckRoute(func(core.ActorID, mgl32.Vec3) bool { return false })
	before := a.Body.Nodes[0].AbsPosition

	for i := 0; i < 3; i++ {
		v.Update(a, 0.6)
	}
	assert.Equal(t, before, a.Body.Nodes[0].AbsPosition)
	assert.Empty(t, eventsOf(a, core.EventResetApplied))
}
