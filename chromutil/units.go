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

package chromutil

import (
	"fmt"

	"github.com/ctessum/unit"
	"github.com/spatialmodel/chrom"
)

var diffusivity = unit.Dimensions{unit.LengthDim: 2, unit.TimeDim: -1}

// paramDims are the SI dimensions of the numeric unit parameters.
var paramDims = map[string]unit.Dimensions{
	"flow_rate":          unit.Meter3PerSecond,
	"volume":             unit.Meter3,
	"length":             unit.Meter,
	"cross_section_area": unit.Meter2,
	"bed_porosity":       unit.Dimless,
	"particle_radius":    unit.Meter,
	"particle_porosity":  unit.Dimless,
	"axial_dispersion":   diffusivity,
	"film_diffusion":     unit.MeterPerSecond,
	"pore_diffusion":     diffusivity,
	"surface_diffusion":  diffusivity,
}

// quantity returns the value of parameter name with its dimensions.
func quantity(name string, v float64) *unit.Unit {
	d, ok := paramDims[name]
	if !ok {
		panic(fmt.Errorf("chromutil: no dimensions for parameter %q", name))
	}
	return unit.New(v, d)
}

// Group is a named dimensionless number.
type Group struct {
	Name  string
	Value *unit.Unit
}

// DimensionlessGroups returns the numbers that characterize transport in
// col at the given flow rate: the axial Peclet number Pe = L·u/D_ax, the
// Biot number Bi = k_f·r_p/(ε_p·D_p) and the number of film transfer
// units St = 3(1−ε_c)/ε_c · k_f·L/(r_p·u).
func DimensionlessGroups(col *chrom.Column, flowRate float64) ([]Group, error) {
	q := quantity("flow_rate", flowRate)
	l := quantity("length", col.Length)
	epsC := quantity("bed_porosity", col.BedPorosity)
	rp := quantity("particle_radius", col.ParticleRadius)
	kf := quantity("film_diffusion", col.FilmDiffusion)
	u := unit.Div(q, unit.Mul(epsC, quantity("cross_section_area", col.CrossSectionArea)))

	phase := unit.New(3*(1-col.BedPorosity)/col.BedPorosity, unit.Dimless)
	groups := []Group{
		{Name: "Pe", Value: unit.Div(unit.Mul(l, u), quantity("axial_dispersion", col.AxialDispersion))},
		{Name: "Bi", Value: unit.Div(unit.Mul(kf, rp),
			unit.Mul(quantity("particle_porosity", col.ParticlePorosity), quantity("pore_diffusion", col.PoreDiffusion)))},
		{Name: "St", Value: unit.Div(unit.Mul(phase, kf, l), unit.Mul(rp, u))},
	}
	for _, g := range groups {
		if err := g.Value.Check(unit.Dimless); err != nil {
			return nil, fmt.Errorf("chromutil: %s of column %s: %v", g.Name, col.Name(), err)
		}
	}
	return groups, nil
}
