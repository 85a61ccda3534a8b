package definition

import (
	"github.com/beamsim/beamsim/internal/driveline"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Particle is a single free node of mass m at the origin.
func Particle(name string, m float32) *Definition {
	return &Definition{
		Name:  name,
		Kind:  KindLand,
		Nodes: []Node{{ID: 0, Mass: m}},
	}
}

// Box is a cube of side size with its bottom face on y=0 and every corner
// joined to every other.
func Box(name string, size, mass float32) *Definition {
	d := &Definition{Name: name, Kind: KindLand, DryMass: mass}
	h := size / 2
	for i := 0; i < 8; i++ {
		p := mgl32.Vec3{-h, 0, -h}
		if i&1 != 0 {
			p[0] = h
		}
		if i&2 != 0 {
			p[1] = size
		}
		if i&4 != 0 {
			p[2] = h
		}
		d.Nodes = append(d.Nodes, Node{ID: i, Position: p})
	}
	for a := 0; a < 8; a++ {
		for b := a + 1; b < 8; b++ {
			d.Beams = append(d.Beams, Beam{Nodes: [2]int{a, b}, Damp: 2000})
		}
	}
	d.Triangles = [][3]int{{0, 1, 5}, {0, 5, 4}, {2, 6, 7}, {2, 7, 3}}
	return d
}

// CarParams shapes the procedural car.
type CarParams struct {
	Length, Width, Height float32
	WheelRadius           float32
	Wheelbase             float32
	Track                 float32
	// Rays is the number of tyre nodes per wheel; it must be even.
	Rays int
	Mass float32
}

func DefaultCarParams() CarParams {
	return CarParams{
		Length:      4,
		Width:       1.6,
		Height:      0.5,
		WheelRadius: 0.35,
		Wheelbase:   2.8,
		Track:       1.7,
		Rays:        12,
		Mass:        1000,
	}
}

// Car builds a rear-wheel-drive four-wheeled vehicle: a braced chassis box,
// steering hydros on the front axle hubs, and one ring of tyre nodes per
// wheel around two hub nodes. The chassis faces +Z.
func Car(name string, p CarParams) *Definition {
	d := &Definition{
		Name:    name,
		Kind:    KindLand,
		DryMass: p.Mass,
		Defaults: Defaults{
			Spring: 3e6,
			Damp:   3000,
		},
		Brakes: Brakes{Force: 4000, Handbrake: 6000},
		Engine: &driveline.EngineSpec{
			MinRPM:    800,
			MaxRPM:    6000,
			MaxTorque: 300,
			DiffRatio: 3.7,
			Gears:     []float32{3.2, 0, 3.5, 2.1, 1.4, 1.0, 0.8},
			Mode:      driveline.Automatic,
		},
		Aids: Aids{
			ABS:          Pulsed{Enabled: true},
			TC:           Pulsed{Enabled: true},
			AntiRollback: true,
		},
		StartRunning: true,
	}

	base := p.WheelRadius
	hw, hl := p.Width/2, p.Length/2
	for i := 0; i < 8; i++ {
		pos := mgl32.Vec3{-hw, base, -hl}
		if i&1 != 0 {
			pos[0] = hw
		}
		if i&2 != 0 {
			pos[1] = base + p.Height
		}
		if i&4 != 0 {
			pos[2] = hl
		}
		d.Nodes = append(d.Nodes, Node{ID: i, Position: pos, Contacter: true, SurfaceCoef: 0.1})
	}
	for a := 0; a < 8; a++ {
		for b := a + 1; b < 8; b++ {
			d.Beams = append(d.Beams, Beam{Nodes: [2]int{a, b}})
		}
	}
	d.Triangles = [][3]int{{2, 3, 7}, {2, 7, 6}}

	next := 8
	rays := p.Rays &^ 1
	if rays < 4 {
		rays = 4
	}
	ht := p.Track / 2
	for w := 0; w < 4; w++ {
		front := w < 2
		side := float32(-1)
		if w%2 == 1 {
			side = 1
		}
		cz := -p.Wheelbase / 2
		if front {
			cz = p.Wheelbase / 2
		}
		center := mgl32.Vec3{side * ht, p.WheelRadius, cz}
		// Every hub runs from -X to +X so positive torque drives all
		// wheels towards +Z.
		lo := Node{ID: next, Position: center.Sub(mgl32.Vec3{0.1, 0, 0}), Mass: 15}
		hi := Node{ID: next + 1, Position: center.Add(mgl32.Vec3{0.1, 0, 0}), Mass: 15}
		d.Nodes = append(d.Nodes, lo, hi)
		hub := [2]int{lo.ID, hi.ID}
		inner, outer := hub[0], hub[1]
		if side < 0 {
			inner, outer = outer, inner
		}
		next += 2
		d.Beams = append(d.Beams, Beam{Nodes: hub})

		// Hub to chassis: the bottom corners of the nearest end.
		end := 0
		if front {
			end = 4
		}
		for _, c := range []int{end, end + 1} {
			for _, h := range hub {
				d.Beams = append(d.Beams, Beam{Nodes: [2]int{c, h}})
			}
		}
		top := end + 2
		if side > 0 {
			top++
		}
		if front {
			d.Hydros = append(d.Hydros, Hydro{Nodes: [2]int{top, inner}, Ratio: 0.1, SpeedCoupled: true})
		} else {
			d.Beams = append(d.Beams, Beam{Nodes: [2]int{top, inner}})
		}
		d.Beams = append(d.Beams, Beam{Nodes: [2]int{top, outer}})

		hubPos := [2]mgl32.Vec3{lo.Position, hi.Position}
		tyre := make([]int, rays)
		for j := 0; j < rays; j++ {
			a := 2 * math32.Pi * float32(j) / float32(rays)
			pos := hubPos[j%2].Add(mgl32.Vec3{0, p.WheelRadius * math32.Cos(a), p.WheelRadius * math32.Sin(a)})
			d.Nodes = append(d.Nodes, Node{ID: next, Position: pos, Mass: 8, Friction: 1})
			tyre[j] = next
			next++
		}
		for j := 0; j < rays; j++ {
			t := tyre[j]
			d.Beams = append(d.Beams,
				Beam{Nodes: [2]int{t, hub[0]}, Spring: 8e5, Damp: 400},
				Beam{Nodes: [2]int{t, hub[1]}, Spring: 8e5, Damp: 400},
				Beam{Nodes: [2]int{t, tyre[(j+1)%rays]}, Spring: 8e5, Damp: 400},
				Beam{Nodes: [2]int{t, tyre[(j+2)%rays]}, Spring: 8e5, Damp: 400},
			)
		}
		prop := PropNone
		if !front {
			prop = PropForward
		}
		d.Wheels = append(d.Wheels, Wheel{
			Nodes:      tyre,
			Axis:       hub,
			Radius:     p.WheelRadius,
			Propulsion: prop,
			Braking:    BrakeFootHand,
		})
	}
	d.Axles = []Diff{{Pair: [2]int{2, 3}, Types: []string{"open", "locked"}}}
	return d
}

// Builtins returns the procedural definitions shipped with the binary.
func Builtins() []*Definition {
	return []*Definition{
		Particle("particle", 1),
		Box("crate", 1, 200),
		Car("car", DefaultCarParams()),
	}
}
