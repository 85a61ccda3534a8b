package actor

import (
	"fmt"

	"github.com/beamsim/beamsim/internal/aids"
	"github.com/beamsim/beamsim/internal/contact"
	"github.com/beamsim/beamsim/internal/definition"
	"github.com/beamsim/beamsim/internal/driveline"
	"github.com/beamsim/beamsim/internal/hook"
	"github.com/beamsim/beamsim/internal/slidenode"
	"github.com/beamsim/beamsim/internal/softbody"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	beamTypes = map[string]softbody.BeamType{
		"":                            softbody.BeamNormal,
		definition.TypeNormal:         softbody.BeamNormal,
		definition.TypeHydro:          softbody.BeamHydro,
		definition.TypeVirtual:        softbody.BeamVirtual,
		definition.TypeMarked:         softbody.BeamMarked,
		definition.TypeInvisible:      softbody.BeamInvisible,
		definition.TypeInvisibleHydro: softbody.BeamInvisibleHydro,
	}
	boundModes = map[string]softbody.BoundedMode{
		"":                      softbody.BoundedNone,
		definition.BoundShock1:  softbody.BoundedShock1,
		definition.BoundShock2:  softbody.BoundedShock2,
		definition.BoundShock3:  softbody.BoundedShock3,
		definition.BoundSupport: softbody.BoundedSupport,
		definition.BoundRope:    softbody.BoundedRope,
	}
	propulsions = map[string]driveline.Propulsion{
		"":                      driveline.PropNone,
		definition.PropNone:     driveline.PropNone,
		definition.PropForward:  driveline.PropForward,
		definition.PropReversed: driveline.PropReversed,
	}
	brakings = map[string]driveline.Braking{
		"":                       driveline.BrakeFootHand,
		definition.BrakeNone:     driveline.BrakeNone,
		definition.BrakeFootHand: driveline.BrakeFootHand,
		definition.BrakeFootOnly: driveline.BrakeFootOnly,
	}
	diffTypes = map[string]driveline.DiffType{
		"open":    driveline.DiffOpen,
		"locked":  driveline.DiffLocked,
		"viscous": driveline.DiffViscous,
		"split":   driveline.DiffSplit,
	}
)

func or(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// New builds an actor from def placed by p. The definition is validated
// and the selected configuration extracted first; any definition error
// rejects the spawn.
func New(id core.ActorID, def *definition.Definition, p SpawnParams) (*Actor, error) {
	d, err := Template(def, p.Config)
	if err != nil {
		return nil, err
	}
	return FromTemplate(id, d, p)
}

// Template validates def and extracts configuration config. The result is
// immutable and may be shared by any number of FromTemplate calls.
func Template(def *definition.Definition, config string) (*definition.Definition, error) {
	if err := definition.Validate(def); err != nil {
		return nil, err
	}
	return def.Select(config)
}

// FromTemplate builds an actor from a definition already passed through
// Template. p.Config is ignored.
func FromTemplate(id core.ActorID, d *definition.Definition, p SpawnParams) (*Actor, error) {
	a := &Actor{
		ID:         id,
		Name:       d.Name,
		Kind:       d.Kind,
		State:      p.State,
		spawnState: p.State,
		Aids:       aids.NewSet(),
	}
	if a.Kind == "" {
		a.Kind = definition.KindLand
	}
	a.forces = softbody.NewForceBuilder(softbody.DefaultEnvironment())
	idx := d.NodeIndex()

	a.buildNodes(d, p)
	b := &a.Body
	for i, bd := range d.Beams {
		bm := a.beam(d, bd.Nodes, idx, bd.Spring, bd.Damp, bd.Strength)
		bm.Type = beamTypes[bd.Type]
		bm.Bounded = boundModes[bd.Bounded]
		bm.LongBound = bd.Long
		bm.DetacherGroup = bd.DetacherGroup
		if dv := or(bd.Deform, d.Defaults.Deform); dv > 0 {
			bm.MaxPosStress, bm.MaxNegStress = dv, -dv
		}
		bm.PlasticCoef = or(bd.Plastic, or(d.Defaults.Plastic, softbody.DefaultPlasticCoef))
		if bm.Type.IsHydro() {
			bm.Hydro = &softbody.HydroAttrs{Length: bm.RefLength}
		}
		if bm.Length == 0 {
			return nil, fmt.Errorf("%s: beam %d has zero length: %w", d.Name, i, definition.ErrMalformed)
		}
		b.Beams = append(b.Beams, bm)
	}
	for _, sd := range d.Shocks {
		bm := a.beam(d, sd.Nodes, idx, sd.Spring, sd.Damp, sd.Strength)
		bm.Bounded = softbody.BoundedShock2
		if sd.Kind != "" {
			bm.Bounded = boundModes[sd.Kind]
		}
		bm.ShortBound, bm.LongBound = sd.Short, sd.Long
		bm.DetacherGroup = sd.DetacherGroup
		bm.Shock = len(b.Shocks)
		s := softbody.NewShock(len(b.Beams))
		s.SpringIn, s.DampIn = or(sd.SpringIn, sd.Spring), or(sd.DampIn, sd.Damp)
		s.SpringOut, s.DampOut = or(sd.SpringOut, sd.Spring), or(sd.DampOut, sd.Damp)
		s.ProgSpringIn, s.ProgDampIn = sd.ProgSpringIn, sd.ProgDampIn
		s.ProgSpringOut, s.ProgDampOut = sd.ProgSpringOut, sd.ProgDampOut
		s.SplitVelIn, s.SplitVelOut = sd.SplitVelIn, sd.SplitVelOut
		s.SlowDampIn, s.FastDampIn = or(sd.SlowDampIn, sd.Damp), or(sd.FastDampIn, sd.Damp)
		s.SlowDampOut, s.FastDampOut = or(sd.SlowDampOut, sd.Damp), or(sd.FastDampOut, sd.Damp)
		s.BoundSpring = or(sd.BoundSpring, s.BoundSpring)
		s.BoundDamp = or(sd.BoundDamp, s.BoundDamp)
		b.Shocks = append(b.Shocks, s)
		b.Beams = append(b.Beams, bm)
	}
	for _, hd := range d.Hydros {
		bm := a.beam(d, hd.Nodes, idx, hd.Spring, hd.Damp, hd.Strength)
		bm.Type = softbody.BeamHydro
		if hd.Invisible {
			bm.Type = softbody.BeamInvisibleHydro
		}
		bm.Hydro = &softbody.HydroAttrs{Ratio: hd.Ratio, Length: bm.RefLength, SpeedCoupled: hd.SpeedCoupled}
		b.Beams = append(b.Beams, bm)
	}
	a.buildCommands(d, idx)
	for _, td := range d.Ties {
		bm := a.beam(d, td.Nodes, idx, td.Spring, td.Damp, 0)
		bm.Bounded = softbody.BoundedRope
		bm.Disabled = true
		bm.Tie = &softbody.TieAttrs{MaxStress: td.MaxStress, Speed: or(td.Speed, 1), Short: td.Short}
		b.Beams = append(b.Beams, bm)
	}

	a.buildDrive(d, idx)
	a.buildHooks(d, idx)
	if err := a.buildRails(d, idx); err != nil {
		return nil, err
	}
	for _, t := range d.Triangles {
		a.Triangles = append(a.Triangles, contact.Tri{A: idx[t[0]], B: idx[t[1]], C: idx[t[2]]})
	}
	a.buildAids(d)

	b.Seal()
	a.Drive.Init(b.Nodes)
	a.Slides.Attach(b)

	a.startRun = d.StartRunning
	if p.StartRunning != nil {
		a.startRun = *p.StartRunning
	}
	if a.startRun && a.Engine != nil {
		a.Engine.Start()
	}
	a.lastGear = a.gear()
	return a, nil
}

// buildNodes places the definition shape by the spawn pose and assigns
// masses: explicit first, then the dry mass spread over the rest, then the
// default node mass.
func (a *Actor) buildNodes(d *definition.Definition, p SpawnParams) {
	rot := p.Rotation
	if rot.Len() == 0 {
		rot = mgl32.QuatIdent()
	}
	var free int
	for _, n := range d.Nodes {
		if n.Mass == 0 && !n.Fixed {
			free++
		}
	}
	spread := or(d.Defaults.NodeMass, softbody.DefaultNodeMass)
	if d.DryMass > 0 && free > 0 {
		spread = d.DryMass / float32(free)
	}

	a.shape = make([]mgl32.Vec3, len(d.Nodes))
	a.Body.Nodes = make([]softbody.Node, len(d.Nodes))
	var minZ, maxZ float32
	for i, nd := range d.Nodes {
		a.shape[i] = nd.Position
		m := nd.Mass
		if m == 0 {
			m = spread
		}
		n := softbody.NewNode(i, rot.Rotate(nd.Position).Add(p.Position), m)
		n.ID = nd.ID
		n.NoGroundContact = nd.NoGroundContact
		n.Contacter = nd.Contacter
		if nd.LockGroup != nil {
			n.LockGroup = *nd.LockGroup
		}
		n.Friction = or(nd.Friction, 1)
		n.Buoyancy = nd.Buoyancy
		if n.Buoyancy == 0 && d.Kind == definition.KindBoat {
			n.Buoyancy = softbody.DefaultBuoyancy
		}
		n.Volume = nd.Volume
		n.SurfaceCoef = nd.SurfaceCoef
		if nd.Fixed {
			n.Pin()
		}
		a.Body.Nodes[i] = n

		z := nd.Position.Z()
		if i == 0 || z < minZ {
			minZ, a.ref[0] = z, i
		}
		if i == 0 || z > maxZ {
			maxZ, a.ref[1] = z, i
		}
	}
}

// beam builds a beam between two node ids with definition defaults.
func (a *Actor) beam(d *definition.Definition, ids [2]int, idx map[int]int, k, damp, strength float32) softbody.Beam {
	bm := softbody.NewBeam(a.Body.Nodes, idx[ids[0]], idx[ids[1]],
		or(k, or(d.Defaults.Spring, softbody.DefaultSpring)),
		or(damp, or(d.Defaults.Damp, softbody.DefaultDamp)))
	bm.Strength = or(strength, or(d.Defaults.Strength, softbody.DefaultStrength))
	if def := d.Defaults.Deform; def > 0 {
		bm.MaxPosStress, bm.MaxNegStress = def, -def
	}
	return bm
}

// buildCommands creates one command per input key in order of first use.
func (a *Actor) buildCommands(d *definition.Definition, idx map[int]int) {
	b := &a.Body
	byKey := make(map[int]int)
	command := func(key int, cd definition.Command) *softbody.Command {
		ci, ok := byKey[key]
		if !ok {
			ci = len(b.Commands)
			byKey[key] = ci
			b.Commands = append(b.Commands, softbody.Command{
				Key:         key,
				Description: cd.Description,
				NeedsEngine: cd.NeedsEngine,
				Coupling:    cd.Coupling,
				Speed:       or(cd.Speed, 1),
				StartRate:   cd.StartRate,
				StopRate:    cd.StopRate,
			})
		}
		return &b.Commands[ci]
	}
	for _, cd := range d.Commands {
		bm := a.beam(d, cd.Nodes, idx, cd.Spring, cd.Damp, cd.Strength)
		bm.Command = &softbody.CommandAttrs{RatioShort: cd.Short, RatioLong: cd.Long}
		bi := len(b.Beams)
		b.Beams = append(b.Beams, bm)
		if cd.ContractKey > 0 {
			c := command(cd.ContractKey, cd)
			c.Beams = append(c.Beams, softbody.CommandBeam{Beam: bi})
		}
		if cd.ExtendKey > 0 {
			c := command(cd.ExtendKey, cd)
			c.Beams = append(c.Beams, softbody.CommandBeam{Beam: bi, Extend: true})
		}
	}
}

func (a *Actor) buildDrive(d *definition.Definition, idx map[int]int) {
	dt := &a.Drive
	dt.BrakeForce = d.Brakes.Force
	dt.HandbrakeForce = d.Brakes.Handbrake
	for wi, wd := range d.Wheels {
		w := driveline.Wheel{
			Axis:       [2]int{idx[wd.Axis[0]], idx[wd.Axis[1]]},
			Radius:     wd.Radius,
			Mass:       wd.Mass,
			Propulsion: propulsions[wd.Propulsion],
			Braking:    brakings[wd.Braking],
		}
		w.Arm = w.Axis[0]
		if wd.Arm != nil {
			w.Arm = idx[*wd.Arm]
		}
		for _, id := range wd.Nodes {
			ni := idx[id]
			w.Nodes = append(w.Nodes, ni)
			a.Body.Nodes[ni].WheelID = wi
		}
		dt.Wheels = append(dt.Wheels, w)
	}
	for _, ad := range d.Axles {
		dt.Axles = append(dt.Axles, differential(ad))
	}
	for _, td := range d.Transfers {
		dt.Transfers = append(dt.Transfers, differential(td))
	}
	n := len(dt.Wheels)
	a.wheelSpeeds = make([]float32, n)
	a.driven = make([]bool, n)
	a.braked = make([]bool, n)
	if d.Engine != nil {
		a.Engine = driveline.NewEngine(*d.Engine)
	}
}

func differential(d definition.Diff) driveline.Differential {
	diff := driveline.Differential{A: d.Pair[0], B: d.Pair[1]}
	for _, t := range d.Types {
		diff.Types = append(diff.Types, diffTypes[t])
	}
	return diff
}

func (a *Actor) buildHooks(d *definition.Definition, idx map[int]int) {
	for _, hd := range d.Hooks {
		h := hook.New(idx[hd.Node])
		if hd.Group != nil {
			h.Group = *hd.Group
		}
		if hd.LockGroup != nil {
			h.LockGroup = *hd.LockGroup
		}
		h.LockRange = or(hd.LockRange, h.LockRange)
		h.LockSpeed = or(hd.LockSpeed, h.LockSpeed)
		h.MaxForce = or(hd.MaxForce, h.MaxForce)
		h.LockTimerPreset = or(hd.Timer, h.LockTimerPreset)
		h.Spring = or(hd.Spring, h.Spring)
		h.Damp = or(hd.Damp, h.Damp)
		h.MinLength = hd.MinLength
		h.AutoLock = hd.AutoLock
		h.NoDisable = hd.NoDisable
		h.SelfLock = hd.SelfLock
		a.Hooks.Hooks = append(a.Hooks.Hooks, h)
	}
}

// buildRails resolves rail node chains to the beams joining them.
func (a *Actor) buildRails(d *definition.Definition, idx map[int]int) error {
	b := &a.Body
	find := func(p1, p2 int) (int, bool) {
		for i := range b.Beams {
			bm := &b.Beams[i]
			if (bm.P1 == p1 && bm.P2 == p2) || (bm.P1 == p2 && bm.P2 == p1) {
				return i, true
			}
		}
		return 0, false
	}
	railIdx := make(map[int]int, len(d.Rails))
	for _, rd := range d.Rails {
		r := slidenode.Rail{ID: rd.ID, Looped: rd.Looped}
		chain := rd.Nodes
		if rd.Looped {
			chain = append(append([]int(nil), chain...), chain[0])
		}
		for k := 1; k < len(chain); k++ {
			bi, ok := find(idx[chain[k-1]], idx[chain[k]])
			if !ok {
				return fmt.Errorf("%s: rail %d: no beam between nodes %d and %d: %w",
					d.Name, rd.ID, chain[k-1], chain[k], definition.ErrMalformed)
			}
			r.Beams = append(r.Beams, bi)
		}
		railIdx[rd.ID] = len(a.Slides.Rails)
		a.Slides.Rails = append(a.Slides.Rails, r)
	}
	for _, sd := range d.Slides {
		rails := make([]int, 0, len(sd.Rails))
		for _, id := range sd.Rails {
			rails = append(rails, railIdx[id])
		}
		sn := slidenode.New(idx[sd.Node], rails...)
		sn.Spring = or(sd.Spring, sn.Spring)
		sn.Damping = sd.Damp
		sn.Tolerance = sd.Tolerance
		sn.AttachRate = or(sd.AttachRate, sn.AttachRate)
		sn.AttachThreshold = or(sd.AttachThreshold, sn.AttachThreshold)
		sn.BreakForce = or(sd.BreakForce, sn.BreakForce)
		a.Slides.Slides = append(a.Slides.Slides, sn)
	}
	return nil
}

func (a *Actor) buildAids(d *definition.Definition) {
	ad := d.Aids
	pulsed := func(p *aids.Pulsed, cfg definition.Pulsed) {
		p.Enabled = cfg.Enabled
		p.Ratio = or(cfg.Ratio, p.Ratio)
		p.PulseHz = or(cfg.PulseHz, p.PulseHz)
		p.MinSpeed = or(cfg.MinSpeed, p.MinSpeed)
		p.WheelSlip = or(cfg.WheelSlip, p.WheelSlip)
		p.Fade = or(cfg.Fade, p.Fade)
	}
	pulsed(&a.Aids.ABS, ad.ABS)
	pulsed(&a.Aids.TC, ad.TC)
	a.Aids.Cruise.LowerLimit = ad.CruiseLower
	a.Aids.Cruise.CanBrake = ad.CruiseBrake
	a.Aids.Limiter.Limit = ad.Limit
	a.Aids.Rollback.Enabled = ad.AntiRollback
}
