package definition

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for a definition that cannot describe a body.
	ErrMalformed = errors.New("malformed definition")
	// ErrMissingNode is returned when a record references an unknown node id.
	ErrMissingNode = errors.New("missing referenced node")
	// ErrUnknownConfig is returned when a spawn selects an undeclared configuration.
	ErrUnknownConfig = errors.New("unknown configuration")
)

var (
	beamTypes = map[string]bool{"": true, TypeNormal: true, TypeHydro: true, TypeVirtual: true,
		TypeMarked: true, TypeInvisible: true, TypeInvisibleHydro: true}
	boundModes = map[string]bool{"": true, BoundShock1: true, BoundShock2: true, BoundShock3: true,
		BoundSupport: true, BoundRope: true}
	shockKinds  = map[string]bool{"": true, BoundShock1: true, BoundShock2: true, BoundShock3: true}
	propulsions = map[string]bool{"": true, PropNone: true, PropForward: true, PropReversed: true}
	brakings    = map[string]bool{"": true, BrakeNone: true, BrakeFootHand: true, BrakeFootOnly: true}
	diffTypes   = map[string]bool{"open": true, "locked": true, "viscous": true, "split": true}
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrMalformed)
}

// Validate checks that every record is well formed and that every node
// reference resolves. It checks the definition as a whole, across all
// configurations.
func Validate(d *Definition) error {
	if d == nil {
		return malformed("nil definition")
	}
	if d.Name == "" {
		return malformed("empty name")
	}
	switch d.Kind {
	case "", KindLand, KindBoat, KindAir:
	default:
		return malformed("%s: unknown kind %q", d.Name, d.Kind)
	}
	if len(d.Nodes) == 0 {
		return malformed("%s: no nodes", d.Name)
	}
	if d.DryMass < 0 {
		return malformed("%s: negative dry mass", d.Name)
	}

	ids := make(map[int]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		if ids[n.ID] {
			return malformed("%s: node %d: duplicate id %d", d.Name, i, n.ID)
		}
		ids[n.ID] = true
		if n.Mass < 0 {
			return malformed("%s: node %d: negative mass", d.Name, n.ID)
		}
		if !d.HasConfig(n.Config) {
			return fmt.Errorf("%s: node %d: %q: %w", d.Name, n.ID, n.Config, ErrUnknownConfig)
		}
		for k := 0; k < 3; k++ {
			if v := n.Position[k]; v != v {
				return malformed("%s: node %d: NaN position", d.Name, n.ID)
			}
		}
	}
	v := validator{def: d, ids: ids}

	for i, b := range d.Beams {
		v.pair("beam", i, b.Nodes, b.Config)
		if !beamTypes[b.Type] {
			v.fail("beam %d: unknown type %q", i, b.Type)
		}
		if !boundModes[b.Bounded] {
			v.fail("beam %d: unknown bound %q", i, b.Bounded)
		}
		v.positive("beam", i, b.Spring, b.Damp, b.Strength, b.Deform, b.Long)
	}
	for i, s := range d.Shocks {
		v.pair("shock", i, s.Nodes, s.Config)
		if !shockKinds[s.Kind] {
			v.fail("shock %d: unknown kind %q", i, s.Kind)
		}
		if s.Short < 0 || s.Long < 0 {
			v.fail("shock %d: negative travel", i)
		}
		v.positive("shock", i, s.Spring, s.Damp, s.Strength)
	}
	for i, h := range d.Hydros {
		v.pair("hydro", i, h.Nodes, h.Config)
		v.positive("hydro", i, h.Spring, h.Damp, h.Strength)
	}
	for i, c := range d.Commands {
		v.pair("command", i, c.Nodes, c.Config)
		if c.Short <= 0 || c.Long < c.Short {
			v.fail("command %d: bounds %g..%g", i, c.Short, c.Long)
		}
		if c.ContractKey < 0 || c.ExtendKey < 0 {
			v.fail("command %d: negative key", i)
		}
		v.positive("command", i, c.Spring, c.Damp, c.Strength, c.Speed, c.Coupling)
	}
	for i, t := range d.Ties {
		v.pair("tie", i, t.Nodes, t.Config)
		if t.Short < 0 || t.Short > 1 {
			v.fail("tie %d: short %g outside [0,1]", i, t.Short)
		}
		v.positive("tie", i, t.Spring, t.Damp, t.Speed, t.MaxStress)
	}
	for i, w := range d.Wheels {
		v.wheel(i, w)
	}
	for i, a := range d.Axles {
		v.diff("axle", i, a, len(d.Wheels))
	}
	for i, t := range d.Transfers {
		v.diff("transfer", i, t, len(d.Axles))
	}
	if d.Brakes.Force < 0 || d.Brakes.Handbrake < 0 {
		v.fail("negative brake force")
	}
	if e := d.Engine; e != nil {
		if e.MaxRPM <= e.MinRPM || e.MaxTorque <= 0 {
			v.fail("engine: rpm range %g..%g, torque %g", e.MinRPM, e.MaxRPM, e.MaxTorque)
		}
		if len(e.Gears) < 3 {
			v.fail("engine: need reverse, neutral and one forward gear, have %d ratios", len(e.Gears))
		}
	}
	for i, h := range d.Hooks {
		v.node("hook", i, h.Node)
		if h.LockRange < 0 || h.MaxForce < 0 {
			v.fail("hook %d: negative range or force", i)
		}
	}
	rails := make(map[int]bool, len(d.Rails))
	for i, r := range d.Rails {
		if rails[r.ID] {
			v.fail("rail %d: duplicate id %d", i, r.ID)
		}
		rails[r.ID] = true
		if len(r.Nodes) < 2 {
			v.fail("rail %d: needs two nodes", r.ID)
		}
		for _, id := range r.Nodes {
			v.node("rail", r.ID, id)
		}
	}
	for i, s := range d.Slides {
		v.node("slide-node", i, s.Node)
		if len(s.Rails) == 0 {
			v.fail("slide-node %d: no rails", i)
		}
		for _, r := range s.Rails {
			if !rails[r] {
				v.fail("slide-node %d: unknown rail %d", i, r)
			}
		}
	}
	for i, t := range d.Triangles {
		for _, id := range t {
			v.node("triangle", i, id)
		}
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			v.fail("triangle %d: degenerate", i)
		}
	}
	return v.err
}

// validator keeps the first error.
type validator struct {
	def *Definition
	ids map[int]bool
	err error
}

func (v *validator) fail(format string, args ...any) {
	if v.err == nil {
		v.err = malformed("%s: %s", v.def.Name, fmt.Sprintf(format, args...))
	}
}

func (v *validator) node(what string, i, id int) {
	if v.err == nil && !v.ids[id] {
		v.err = fmt.Errorf("%s: %s %d: node %d: %w", v.def.Name, what, i, id, ErrMissingNode)
	}
}

func (v *validator) pair(what string, i int, nodes [2]int, config string) {
	v.node(what, i, nodes[0])
	v.node(what, i, nodes[1])
	if nodes[0] == nodes[1] {
		v.fail("%s %d: both ends on node %d", what, i, nodes[0])
	}
	if v.err == nil && !v.def.HasConfig(config) {
		v.err = fmt.Errorf("%s: %s %d: %q: %w", v.def.Name, what, i, config, ErrUnknownConfig)
	}
}

func (v *validator) positive(what string, i int, values ...float32) {
	for _, x := range values {
		if x < 0 || x != x {
			v.fail("%s %d: negative or NaN parameter", what, i)
			return
		}
	}
}

func (v *validator) wheel(i int, w Wheel) {
	if len(w.Nodes) < 2 {
		v.fail("wheel %d: needs tyre nodes", i)
	}
	for _, id := range w.Nodes {
		v.node("wheel", i, id)
	}
	v.node("wheel", i, w.Axis[0])
	v.node("wheel", i, w.Axis[1])
	if w.Arm != nil {
		v.node("wheel", i, *w.Arm)
	}
	if w.Radius <= 0 {
		v.fail("wheel %d: radius %g", i, w.Radius)
	}
	if !propulsions[w.Propulsion] {
		v.fail("wheel %d: unknown propulsion %q", i, w.Propulsion)
	}
	if !brakings[w.Braking] {
		v.fail("wheel %d: unknown braking %q", i, w.Braking)
	}
}

func (v *validator) diff(what string, i int, d Diff, n int) {
	for _, k := range d.Pair {
		if k < 0 || k >= n {
			v.fail("%s %d: index %d out of range", what, i, k)
		}
	}
	if d.Pair[0] == d.Pair[1] {
		v.fail("%s %d: pairs %d with itself", what, i, d.Pair[0])
	}
	for _, t := range d.Types {
		if !diffTypes[t] {
			v.fail("%s %d: unknown differential %q", what, i, t)
		}
	}
}
