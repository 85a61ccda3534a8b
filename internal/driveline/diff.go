package driveline

// DiffType is the coupling law of a differential.
type DiffType uint8

const (
	DiffOpen DiffType = iota
	DiffLocked
	DiffViscous
	DiffSplit
)

func (t DiffType) String() string {
	switch t {
	case DiffOpen:
		return "open"
	case DiffLocked:
		return "locked"
	case DiffViscous:
		return "viscous"
	case DiffSplit:
		return "split"
	}
	return "invalid"
}

const (
	lockedTorsionRate = 1e6
	lockedTorsionDamp = lockedTorsionRate / 100
	viscousDamp       = 10000
)

// Differential splits an input torque between two outputs. A and B index
// wheels for axle differentials and axles for inter-axle ones.
type Differential struct {
	A, B int
	// Types lists the available modes; the first one is active.
	Types []DiffType

	DeltaRotation float32
}

// Type returns the active mode, DiffOpen when none is configured.
func (d *Differential) Type() DiffType {
	if len(d.Types) == 0 {
		return DiffOpen
	}
	return d.Types[0]
}

// Toggle rotates to the next available mode.
func (d *Differential) Toggle() {
	if len(d.Types) > 1 {
		d.Types = append(d.Types[1:], d.Types[0])
	}
}

// Split returns the output torques for input torque in given the output
// speeds.
func (d *Differential) Split(in, speedA, speedB, dt float32) (float32, float32) {
	half := in / 2
	delta := speedA - speedB
	switch d.Type() {
	case DiffLocked:
		d.DeltaRotation += delta * dt
		t := d.DeltaRotation*lockedTorsionRate + delta*lockedTorsionDamp
		return half - t, half + t
	case DiffViscous:
		t := delta * viscousDamp
		return half - t, half + t
	}
	return half, half
}

// Reset clears the accumulated relative rotation.
func (d *Differential) Reset() { d.DeltaRotation = 0 }
