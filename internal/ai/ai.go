// Package ai drives an actor along an ordered list of waypoints: bang-bang
// steering toward the current target, throttle and brake against a speed
// limit, waypoint events and an optional stuck reset.
package ai

import (
	"github.com/beamsim/beamsim/internal/actor"
	"github.com/beamsim/beamsim/internal/definition"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/chewxy/math32"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/go-gl/mathgl/mgl32"
)

// Event is an action applied when a waypoint is reached.
type Event uint8

const (
	EventNone Event = iota
	EventHorn
	EventLights
	EventBeacon
)

// Waypoint is one target of the route. Zero SpeedKMH and Power keep the
// current values.
type Waypoint struct {
	ID       string     `json:"id"`
	Position mgl32.Vec3 `json:"pos"`
	Event    Event      `json:"event,omitempty"`
	SpeedKMH float32    `json:"speed,omitempty"`
	Power    float32    `json:"power,omitempty"`
}

// Config tunes a follower.
type Config struct {
	MaxSpeedKMH float32 `json:"maxSpeed" mapstructure:"maxSpeed"`
	Power       float32 `json:"power" mapstructure:"power"`
	// ReachRadius overrides the per-kind default when positive.
	ReachRadius float32 `json:"reachRadius" mapstructure:"reachRadius"`
	StopAtEnd   bool    `json:"stopAtEnd" mapstructure:"stopAtEnd"`

	StuckReset          bool    `json:"stuckReset" mapstructure:"stuckReset"`
	StuckCancelDistance float32 `json:"stuckCancelDistance" mapstructure:"stuckCancelDistance"`
	StuckResetDelay     float32 `json:"stuckResetDelay" mapstructure:"stuckResetDelay"`
}

func DefaultConfig() Config {
	return Config{
		MaxSpeedKMH:         50,
		Power:               0.8,
		StuckCancelDistance: 1,
		StuckResetDelay:     10,
	}
}

// ClearSpace reports whether the actor fits at pos without touching another
// actor. A nil ClearSpace accepts every position.
type ClearSpace func(self core.ActorID, pos mgl32.Vec3) bool

const deadband = math32.Pi / 180

// VehicleAI follows a route for one actor. It is driven from the physics
// goroutine only.
type VehicleAI struct {
	cfg     Config
	Enabled bool

	waypoints *orderedmap.OrderedMap[string, Waypoint]
	keys      []string

	current int
	reached int

	maxSpeed float32
	power    float32

	stuckArmed bool
	stuckFrom  mgl32.Vec3
	stuckTimer float32

	ClearSpace ClearSpace
}

// New returns an enabled follower with no waypoints.
func New(cfg Config) *VehicleAI {
	def := DefaultConfig()
	if cfg.MaxSpeedKMH <= 0 {
		cfg.MaxSpeedKMH = def.MaxSpeedKMH
	}
	if cfg.Power <= 0 {
		cfg.Power = def.Power
	}
	if cfg.StuckCancelDistance <= 0 {
		cfg.StuckCancelDistance = def.StuckCancelDistance
	}
	if cfg.StuckResetDelay <= 0 {
		cfg.StuckResetDelay = def.StuckResetDelay
	}
	return &VehicleAI{
		cfg:       cfg,
		Enabled:   true,
		waypoints: orderedmap.NewOrderedMap[string, Waypoint](),
		reached:   -1,
		maxSpeed:  cfg.MaxSpeedKMH,
		power:     cfg.Power,
	}
}

// AddWaypoint appends wp, or replaces the waypoint with the same id in place.
func (v *VehicleAI) AddWaypoint(wp Waypoint) {
	v.waypoints.Set(wp.ID, wp)
	v.keys = v.waypoints.Keys()
}

func (v *VehicleAI) AddWaypoints(wps ...Waypoint) {
	for _, wp := range wps {
		v.AddWaypoint(wp)
	}
}

// Waypoints returns the route in order.
func (v *VehicleAI) Waypoints() []Waypoint {
	out := make([]Waypoint, 0, v.waypoints.Len())
	for el := v.waypoints.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

func (v *VehicleAI) at(i int) Waypoint {
	wp, _ := v.waypoints.Get(v.keys[i])
	return wp
}

// Current returns the waypoint being approached.
func (v *VehicleAI) Current() (Waypoint, bool) {
	if len(v.keys) == 0 {
		return Waypoint{}, false
	}
	return v.at(v.current), true
}

// MaxSpeed returns the speed limit in km/h as overridden by waypoints.
func (v *VehicleAI) MaxSpeed() float32 { return v.maxSpeed }

func (v *VehicleAI) reachRadius(k definition.Kind) float32 {
	if v.cfg.ReachRadius > 0 {
		return v.cfg.ReachRadius
	}
	switch k {
	case definition.KindBoat:
		return 50
	case definition.KindAir:
		return 100
	}
	return 5
}

func flat(p mgl32.Vec3) mgl32.Vec3 { return mgl32.Vec3{p.X(), 0, p.Z()} }

func yawTo(from, to mgl32.Vec3) float32 {
	d := to.Sub(from)
	return math32.Atan2(d.X(), d.Z())
}

func wrapAngle(a float32) float32 {
	for a > math32.Pi {
		a -= 2 * math32.Pi
	}
	for a < -math32.Pi {
		a += 2 * math32.Pi
	}
	return a
}

// Update sets the actor's steering, throttle and brake for the coming tick.
// It runs before the actor's own step.
func (v *VehicleAI) Update(a *actor.Actor, dt float32) {
	if !v.Enabled || len(v.keys) == 0 || !a.Simulated() {
		return
	}
	if v.reach(a) && !v.Enabled {
		return
	}
	if v.unstick(a, dt) {
		return
	}
	if a.Engine != nil && !a.Running() {
		a.Engine.Start()
	}
	a.Parking = false

	pos := flat(a.Position())
	target := flat(v.at(v.current).Position)
	yawErr := wrapAngle(yawTo(pos, target) - a.Heading())
	var steer float32
	switch {
	case yawErr > deadband:
		steer = 1
	case yawErr < -deadband:
		steer = -1
	}

	speed := a.WheelSpeed()
	if len(a.Drive.Wheels) == 0 {
		speed = a.GroundSpeed()
	}
	kmh := speed * 3.6
	turn := v.turnAngle()
	limit := v.cornerLimit(turn, pos.Sub(target).Len(), kmh)

	hard := math32.Abs(steer) >= 0.5
	var throttle, brake float32
	switch {
	case kmh > limit+1:
		brake = 1.0 / 3
		if hard {
			brake = 0.5
		}
	case kmh < limit-1:
		throttle = v.power - turn*0.1
		if hard {
			throttle = v.power / 3
		}
	}

	in := a.Input
	in.Steer = steer
	in.Throttle = throttle
	in.Brake = brake
	a.SetInput(in)
}

// reach advances past the current waypoint once any node is within the
// reach radius of it. It reports whether a waypoint was reached.
func (v *VehicleAI) reach(a *actor.Actor) bool {
	target := flat(v.at(v.current).Position)
	r := v.reachRadius(a.Kind)
	hit := false
	for i := range a.Body.Nodes {
		if flat(a.Body.Nodes[i].AbsPosition).Sub(target).Len() < r {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}

	wp := v.at(v.current)
	a.Emit(core.Event{Kind: core.EventWaypointReached, Index: v.current, Label: wp.ID})
	switch wp.Event {
	case EventHorn:
		a.Horn = true
	case EventLights:
		a.Lights = !a.Lights
	case EventBeacon:
		a.Beacon = !a.Beacon
	}
	if wp.SpeedKMH > 0 {
		v.maxSpeed = wp.SpeedKMH
	}
	if wp.Power > 0 {
		v.power = wp.Power
	}
	v.reached = v.current
	v.current++
	if v.current < len(v.keys) {
		return true
	}
	v.current = 0
	if v.cfg.StopAtEnd {
		v.Enabled = false
		a.Parking = true
		in := a.Input
		in.Steer, in.Throttle, in.Brake = 0, 0, 1
		a.SetInput(in)
	}
	return true
}

// turnAngle is the angle in radians between the leg into the current
// waypoint and the leg out of it.
func (v *VehicleAI) turnAngle() float32 {
	n := len(v.keys)
	if n < 3 {
		return 0
	}
	prev := flat(v.at((v.current + n - 1) % n).Position)
	cur := flat(v.at(v.current).Position)
	next := flat(v.at((v.current + 1) % n).Position)
	d1, d2 := cur.Sub(prev), next.Sub(cur)
	l1, l2 := d1.Len(), d2.Len()
	if l1 == 0 || l2 == 0 {
		return 0
	}
	c := d1.Dot(d2) / (l1 * l2)
	return math32.Acos(math32.Max(-1, math32.Min(1, c)))
}

// cornerLimit lowers the speed limit ahead of a sharp turn once the
// waypoint is closer than the current speed in km/h, reaching about
// 20 km/h for a right angle.
func (v *VehicleAI) cornerLimit(turn, dist, kmh float32) float32 {
	if turn <= 0 || dist >= kmh {
		return v.maxSpeed
	}
	deg := turn * 180 / math32.Pi
	t := (deg - 10) / (180 - 10) * 1.4
	return math32.Min(v.maxSpeed, math32.Min(50, (1-t)*50+t*5))
}

// unstick repositions an actor that has not moved StuckCancelDistance for
// StuckResetDelay seconds. It reports whether a reset happened.
func (v *VehicleAI) unstick(a *actor.Actor, dt float32) bool {
	if !v.cfg.StuckReset {
		return false
	}
	pos := flat(a.Position())
	if !v.stuckArmed || pos.Sub(v.stuckFrom).Len() >= v.cfg.StuckCancelDistance {
		v.stuckArmed = true
		v.stuckFrom = pos
		v.stuckTimer = 0
		return false
	}
	v.stuckTimer += dt
	if v.stuckTimer < v.cfg.StuckResetDelay {
		return false
	}
	v.stuckTimer = 0

	n := len(v.keys)
	start := v.reached
	if start < 0 {
		start = 0
	}
	for i := start; i >= 0; i-- {
		at := v.at(i).Position
		if v.ClearSpace != nil && !v.ClearSpace(a.ID, at) {
			continue
		}
		next := (i + 1) % n
		yaw := float32(0)
		if next != i {
			yaw = yawTo(flat(at), flat(v.at(next).Position))
		}
		a.Reposition(at, yaw)
		v.current = next
		v.stuckFrom = flat(a.Position())
		return true
	}
	return false
}
