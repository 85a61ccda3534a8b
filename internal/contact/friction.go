package contact

import (
	"fmt"
	"sort"
)

// GroundModel describes a surface: Stribeck friction parameters, optional
// fluid behaviour and presentation tags for the host.
type GroundModel struct {
	Name string `json:"name" mapstructure:"name"`

	// MS and MC are the static and dynamic friction coefficients.
	MS float32 `json:"ms" mapstructure:"ms"`
	MC float32 `json:"mc" mapstructure:"mc"`
	// VA is the adhesion velocity below which the static law applies.
	VA float32 `json:"va" mapstructure:"va"`
	// VS is the Stribeck velocity and Alpha its exponent.
	VS    float32 `json:"vs" mapstructure:"vs"`
	Alpha float32 `json:"alpha" mapstructure:"alpha"`
	// T2 is the hydrodynamic friction term.
	T2       float32 `json:"t2" mapstructure:"t2"`
	Strength float32 `json:"strength" mapstructure:"strength"`

	// MaxFriction caps friction at MaxFriction times the normal force.
	MaxFriction float32 `json:"maxFriction" mapstructure:"maxfriction"`
	// Anisotropy reduces friction along world X, in [0,1].
	Anisotropy float32 `json:"anisotropy" mapstructure:"anisotropy"`

	FluidDensity    float32 `json:"fluidDensity" mapstructure:"fluiddensity"`
	FlowConsistency float32 `json:"flowConsistency" mapstructure:"flowconsistency"`
	FlowBehavior    float32 `json:"flowBehavior" mapstructure:"flowbehavior"`
	SolidLevel      float32 `json:"solidLevel" mapstructure:"solidlevel"`
	DragAnisotropy  float32 `json:"dragAnisotropy" mapstructure:"draganisotropy"`

	SoundTag    string `json:"sound" mapstructure:"sound"`
	ParticleTag string `json:"particle" mapstructure:"particle"`
}

// IsFluid reports whether the model behaves as mud or sand with a fluid layer.
func (m *GroundModel) IsFluid() bool { return m.FluidDensity > 0 }

// DefaultGroundModelName is used when a lookup misses.
const DefaultGroundModelName = "gravel"

// DefaultGroundModels is the built-in table.
func DefaultGroundModels() []GroundModel {
	return []GroundModel{
		{Name: "concrete", MS: 1.0, MC: 0.8, VA: 0.1, VS: 1.0, Alpha: 2, T2: 0.01, Strength: 1, SoundTag: "concrete", ParticleTag: "dust"},
		{Name: "asphalt", MS: 1.0, MC: 0.85, VA: 0.1, VS: 1.0, Alpha: 2, T2: 0.01, Strength: 1, SoundTag: "asphalt", ParticleTag: "dust"},
		{Name: "gravel", MS: 0.8, MC: 0.6, VA: 0.1, VS: 2.0, Alpha: 2, T2: 0.02, Strength: 1, SoundTag: "gravel", ParticleTag: "dirt"},
		{Name: "grass", MS: 0.6, MC: 0.45, VA: 0.1, VS: 2.0, Alpha: 2, T2: 0.02, Strength: 1, SoundTag: "grass", ParticleTag: "grass"},
		{Name: "ice", MS: 0.1, MC: 0.05, VA: 0.1, VS: 0.5, Alpha: 2, T2: 0, Strength: 1, MaxFriction: 0.15, SoundTag: "ice"},
		{Name: "sand", MS: 0.6, MC: 0.4, VA: 0.1, VS: 1.0, Alpha: 2, T2: 0.05, Strength: 1, FluidDensity: 1600, FlowConsistency: 300, FlowBehavior: 1, SolidLevel: 0.2, SoundTag: "sand", ParticleTag: "sand"},
		{Name: "mud", MS: 0.4, MC: 0.3, VA: 0.1, VS: 1.0, Alpha: 2, T2: 0.1, Strength: 1, FluidDensity: 1800, FlowConsistency: 600, FlowBehavior: 0.8, SolidLevel: 0.4, DragAnisotropy: 0.5, SoundTag: "mud", ParticleTag: "mud"},
	}
}

// FrictionTable maps material names to ground models. It is built once
// before the simulation starts and only read afterwards.
type FrictionTable struct {
	models map[string]*GroundModel
	def    *GroundModel
}

// NewFrictionTable indexes models by name. defaultName must be present.
func NewFrictionTable(models []GroundModel, defaultName string) (*FrictionTable, error) {
	t := &FrictionTable{models: make(map[string]*GroundModel, len(models))}
	for i := range models {
		m := models[i]
		if m.Name == "" {
			return nil, fmt.Errorf("ground model %d has no name", i)
		}
		if m.Strength == 0 {
			m.Strength = 1
		}
		if m.VA <= 0 {
			m.VA = 0.1
		}
		if m.VS <= 0 {
			m.VS = 1
		}
		if m.Alpha == 0 {
			m.Alpha = 2
		}
		t.models[m.Name] = &m
	}
	if defaultName == "" {
		defaultName = DefaultGroundModelName
	}
	def, ok := t.models[defaultName]
	if !ok {
		return nil, fmt.Errorf("default ground model %q not in table", defaultName)
	}
	t.def = def
	return t, nil
}

// DefaultFrictionTable builds the table from DefaultGroundModels.
func DefaultFrictionTable() *FrictionTable {
	t, err := NewFrictionTable(DefaultGroundModels(), DefaultGroundModelName)
	if err != nil {
		panic(err)
	}
	return t
}

// Get returns the model for name, or the default model.
func (t *FrictionTable) Get(name string) *GroundModel {
	if m, ok := t.models[name]; ok {
		return m
	}
	return t.def
}

// Default returns the fallback model.
func (t *FrictionTable) Default() *GroundModel { return t.def }

// Names lists the table's models in sorted order.
func (t *FrictionTable) Names() []string {
	names := make([]string, 0, len(t.models))
	for n := range t.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
