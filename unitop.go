/*
Copyright (C) 2019 Regents of the University of Minnesota.
This file is part of chrom.

chrom is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

chrom is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with chrom.  If not, see <http://www.gnu.org/licenses/>.
*/

package chrom

import (
	"fmt"
	"math"
)

// UnitOperation is a node of a FlowSheet. The set of implementations is
// closed: *Inlet, *Column, *Cstr and *Outlet.
type UnitOperation interface {
	// Name returns the unique name of the unit within its flow sheet.
	Name() string

	// Components returns the species the unit carries.
	Components() *ComponentSystem

	// Validate checks that the unit's parameters are physically
	// admissible.
	Validate() error

	isUnitOperation()
}

func unitField(u UnitOperation, param string) string {
	return fmt.Sprintf("units[%s].%s", u.Name(), param)
}

// Inlet is a source of feed. Its concentration and flow rate can be
// changed over time by events.
type Inlet struct {
	name string
	cs   *ComponentSystem

	// FlowRate is the volumetric flow rate [m³/s] before any flow rate
	// event takes effect.
	FlowRate float64

	// Concentration is the feed concentration before any concentration
	// event takes effect. A nil value means zero.
	Concentration []float64
}

// NewInlet returns an inlet with the given constant flow rate [m³/s].
func NewInlet(name string, cs *ComponentSystem, flowRate float64) *Inlet {
	return &Inlet{name: name, cs: cs, FlowRate: flowRate}
}

func (*Inlet) isUnitOperation() {}

// Name implements UnitOperation.
func (in *Inlet) Name() string { return in.name }

// Components implements UnitOperation.
func (in *Inlet) Components() *ComponentSystem { return in.cs }

// Validate implements UnitOperation.
func (in *Inlet) Validate() error {
	if err := checkName(in); err != nil {
		return err
	}
	if !finiteNonNegative(in.FlowRate) {
		return configErrorf(unitField(in, "flow_rate"), "%g but should be finite and >=0", in.FlowRate)
	}
	return checkInitial(in, "c", in.Concentration)
}

// defaultConcentration returns the concentration before any event.
func (in *Inlet) defaultConcentration() []float64 {
	c := make([]float64, in.cs.Len())
	copy(c, in.Concentration)
	return c
}

// ColumnParams holds the geometric and transport parameters of a packed
// chromatography column. All values are in SI units.
type ColumnParams struct {
	Length           float64 // [m]
	CrossSectionArea float64 // [m²]
	BedPorosity      float64 // interstitial volume fraction [-]
	ParticleRadius   float64 // [m]
	ParticlePorosity float64 // [-]
	AxialDispersion  float64 // [m²/s]
	FilmDiffusion    float64 // [m/s]
	PoreDiffusion    float64 // [m²/s]
	SurfaceDiffusion float64 // [m²/s]
}

// Column is a packed bed described by the General Rate Model: axial
// convection and dispersion in the interstitial volume, film mass
// transfer to spherical porous particles, pore and surface diffusion
// inside the particles and adsorption on the particle surface.
type Column struct {
	name string
	cs   *ComponentSystem
	ColumnParams

	// Binding is the adsorption isotherm. It may be nil if no species
	// binds.
	Binding BindingModel

	// InitialConcentration is the initial bulk and pore concentration
	// of each species. A nil value means zero.
	InitialConcentration []float64
}

// NewColumn returns a column. Parameters are checked by Validate.
func NewColumn(name string, cs *ComponentSystem, p ColumnParams, b BindingModel) *Column {
	return &Column{name: name, cs: cs, ColumnParams: p, Binding: b}
}

func (*Column) isUnitOperation() {}

// Name implements UnitOperation.
func (c *Column) Name() string { return c.name }

// Components implements UnitOperation.
func (c *Column) Components() *ComponentSystem { return c.cs }

// Validate implements UnitOperation.
func (c *Column) Validate() error {
	if err := checkName(c); err != nil {
		return err
	}
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"length", c.Length},
		{"cross_section_area", c.CrossSectionArea},
		{"particle_radius", c.ParticleRadius},
	} {
		if !(p.v > 0) || math.IsInf(p.v, 0) {
			return configErrorf(unitField(c, p.name), "%g but should be finite and >0", p.v)
		}
	}
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"bed_porosity", c.BedPorosity},
		{"particle_porosity", c.ParticlePorosity},
	} {
		if !(p.v > 0 && p.v < 1) {
			return configErrorf(unitField(c, p.name), "%g but should be in (0,1)", p.v)
		}
	}
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"axial_dispersion", c.AxialDispersion},
		{"film_diffusion", c.FilmDiffusion},
		{"pore_diffusion", c.PoreDiffusion},
		{"surface_diffusion", c.SurfaceDiffusion},
	} {
		if !finiteNonNegative(p.v) {
			return configErrorf(unitField(c, p.name), "%g but should be finite and >=0", p.v)
		}
	}
	if c.Binding == nil {
		if c.cs.NumBound() > 0 {
			return configErrorf(unitField(c, "binding"),
				"species with bound states are defined but the column has no binding model")
		}
	} else if err := c.Binding.Validate(c.cs); err != nil {
		if ce, ok := err.(*ConfigurationError); ok {
			return &ConfigurationError{Field: unitField(c, ce.Field), Msg: ce.Msg}
		}
		return err
	}
	return checkInitial(c, "initial_c", c.InitialConcentration)
}

// InterstitialVelocity returns the interstitial velocity [m/s] at the
// given volumetric flow rate [m³/s].
func (c *Column) InterstitialVelocity(flowRate float64) float64 {
	return flowRate / (c.BedPorosity * c.CrossSectionArea)
}

// PecletNumber returns the axial Peclet number L·u/D_ax at the given
// flow rate. It is +Inf without axial dispersion.
func (c *Column) PecletNumber(flowRate float64) float64 {
	if c.AxialDispersion == 0 {
		return math.Inf(1)
	}
	return c.Length * c.InterstitialVelocity(flowRate) / c.AxialDispersion
}

// ResidenceTime returns the time L/u [s] a non-retained species spends
// in the interstitial volume.
func (c *Column) ResidenceTime(flowRate float64) float64 {
	return c.Length / c.InterstitialVelocity(flowRate)
}

// Cstr is an ideally mixed tank of constant volume.
type Cstr struct {
	name string
	cs   *ComponentSystem

	// Volume is the liquid volume [m³].
	Volume float64

	// InitialConcentration is the initial concentration of each
	// species. A nil value means zero.
	InitialConcentration []float64
}

// NewCstr returns a stirred tank of the given volume [m³].
func NewCstr(name string, cs *ComponentSystem, volume float64) *Cstr {
	return &Cstr{name: name, cs: cs, Volume: volume}
}

func (*Cstr) isUnitOperation() {}

// Name implements UnitOperation.
func (t *Cstr) Name() string { return t.name }

// Components implements UnitOperation.
func (t *Cstr) Components() *ComponentSystem { return t.cs }

// Validate implements UnitOperation.
func (t *Cstr) Validate() error {
	if err := checkName(t); err != nil {
		return err
	}
	if !(t.Volume > 0) || math.IsInf(t.Volume, 0) {
		return configErrorf(unitField(t, "volume"), "%g but should be finite and >0", t.Volume)
	}
	return checkInitial(t, "initial_c", t.InitialConcentration)
}

// Outlet is a product sink. It has no state; its concentration is the
// flow-weighted mix of everything flowing into it.
type Outlet struct {
	name string
	cs   *ComponentSystem
}

// NewOutlet returns a product outlet.
func NewOutlet(name string, cs *ComponentSystem) *Outlet {
	return &Outlet{name: name, cs: cs}
}

func (*Outlet) isUnitOperation() {}

// Name implements UnitOperation.
func (o *Outlet) Name() string { return o.name }

// Components implements UnitOperation.
func (o *Outlet) Components() *ComponentSystem { return o.cs }

// Validate implements UnitOperation.
func (o *Outlet) Validate() error { return checkName(o) }

func checkName(u UnitOperation) error {
	if u.Name() == "" {
		return configErrorf("units", "unit name is empty")
	}
	if u.Components() == nil {
		return configErrorf(unitField(u, "species"), "no species defined")
	}
	return nil
}

func checkInitial(u UnitOperation, param string, c []float64) error {
	if c == nil {
		return nil
	}
	if len(c) != u.Components().Len() {
		return configErrorf(unitField(u, param), "has %d values for %d species", len(c), u.Components().Len())
	}
	for i, v := range c {
		if !finiteNonNegative(v) {
			return configErrorf(fmt.Sprintf("%s[%d]", unitField(u, param), i), "%g but should be finite and >=0", v)
		}
	}
	return nil
}
