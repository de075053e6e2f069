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
	"math"

	"github.com/ctessum/sparse"
)

// Discretizer sets the spatial resolution used to turn a Column into a
// finite system of equations.
type Discretizer struct {
	// Nx is the number of axial finite volume cells.
	Nx int
	// Nr is the number of equidistant spherical shells per particle.
	Nr int
}

// Validate checks the resolution.
func (d Discretizer) Validate() error {
	if d.Nx < 1 {
		return configErrorf("spatial_resolution.n_x", "%d but should be >=1", d.Nx)
	}
	if d.Nr < 1 {
		return configErrorf("spatial_resolution.n_r", "%d but should be >=1", d.Nr)
	}
	return nil
}

// CellsForPeclet returns the smallest number of axial cells for which
// the numerical dispersion u·Δx/2 of the upwind scheme does not exceed
// the physical dispersion of a column with axial Peclet number pe. The
// numerical Peclet number of Nx cells is 2·Nx. It returns 0 if pe is
// infinite.
func CellsForPeclet(pe float64) int {
	if math.IsInf(pe, 1) {
		return 0
	}
	if !(pe > 2) {
		return 1
	}
	return int(math.Ceil(pe / 2))
}

// PecletResolution returns a discretizer with nr shells and enough axial
// cells that no column of p is dominated by numerical dispersion at the
// largest flow rate it sees during the cycle. The cell count is at least
// minNx and at most maxNx; columns without axial dispersion get maxNx.
func PecletResolution(p *Process, nr, minNx, maxNx int) (Discretizer, error) {
	d := Discretizer{Nx: minNx, Nr: nr}
	if err := p.Validate(); err != nil {
		return d, err
	}
	signals := p.signals()
	seg := p.segments()
	for k := 0; k < len(seg)-1; k++ {
		_, unit, err := p.FlowSheet.Flows(func(in *Inlet) float64 {
			return signals[in.Name()].flow.Scalar(seg[k])
		})
		if err != nil {
			return d, err
		}
		for i, u := range p.FlowSheet.Units() {
			col, ok := u.(*Column)
			if !ok || !(unit[i] > 0) {
				continue
			}
			n := CellsForPeclet(col.PecletNumber(unit[i]))
			if n == 0 || n > maxNx {
				n = maxNx
			}
			if n > d.Nx {
				d.Nx = n
			}
		}
	}
	return d, d.Validate()
}

// DiscreteColumn is the finite volume discretization of a Column, a
// system M·y' = F(y) with a constant mass matrix M. The state is stored
// cell by cell: for each axial cell the bulk concentrations of all
// species, followed, for each particle shell from the surface inwards,
// by the pore concentrations of all species and the bound-phase
// concentrations of all bound states. Axial transport only couples
// neighboring cells and radial transport only neighboring shells of the
// same cell, so the Jacobian is banded with both bandwidths equal to
// the block size.
//
// When binding is in equilibrium the bound-phase rows of M are zero and
// the system is an index-1 DAE.
type DiscreteColumn struct {
	col  *Column
	bind BindingModel

	ncomp, nbound int
	nx, nr        int
	shell, block  int

	dx, dr float64
	// rOut and rIn are the outer and inner radii of each shell; vol is
	// the shell volume divided by 4π.
	rOut, rIn, vol []float64

	// beta is the particle surface area per interstitial volume.
	beta  float64
	kfEff float64

	// Scratch space for binding evaluations.
	dq, jc, jq []float64
}

// NumericalPeclet returns the Peclet number 2·Nx at which the numerical
// dispersion of the upwind scheme equals the physical one.
func (dc *DiscreteColumn) NumericalPeclet() float64 { return 2 * float64(dc.nx) }

// Discretize returns the discretization of col.
func (d Discretizer) Discretize(col *Column) (*DiscreteColumn, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := col.Validate(); err != nil {
		return nil, err
	}
	cs := col.Components()
	dc := &DiscreteColumn{
		col:    col,
		bind:   col.Binding,
		ncomp:  cs.Len(),
		nbound: cs.NumBound(),
		nx:     d.Nx,
		nr:     d.Nr,
		dx:     col.Length / float64(d.Nx),
		dr:     col.ParticleRadius / float64(d.Nr),
		rOut:   make([]float64, d.Nr),
		rIn:    make([]float64, d.Nr),
		vol:    make([]float64, d.Nr),
	}
	dc.shell = dc.ncomp + dc.nbound
	dc.block = dc.ncomp + d.Nr*dc.shell
	rp := col.ParticleRadius
	for j := 0; j < d.Nr; j++ {
		dc.rOut[j] = rp * float64(d.Nr-j) / float64(d.Nr)
		dc.rIn[j] = rp * float64(d.Nr-j-1) / float64(d.Nr)
		dc.vol[j] = (cube(dc.rOut[j]) - cube(dc.rIn[j])) / 3
	}
	dc.beta = (1 - col.BedPorosity) / col.BedPorosity * 3 / rp
	dc.kfEff = filmCoefficient(col.FilmDiffusion, dc.dr, col.ParticlePorosity, col.PoreDiffusion)
	dc.dq = make([]float64, dc.nbound)
	dc.jc = make([]float64, dc.nbound*dc.ncomp)
	dc.jq = make([]float64, dc.nbound*dc.nbound)
	return dc, nil
}

func cube(x float64) float64 { return x * x * x }

// filmCoefficient returns the mass transfer coefficient between the bulk
// and the center of the outermost shell: the film resistance in series
// with pore diffusion across half a shell.
func filmCoefficient(kf, dr, epsP, dp float64) float64 {
	if kf == 0 || dp == 0 {
		return 0
	}
	return 1 / (1/kf + dr/(2*epsP*dp))
}

// upwindFlux returns the convective flux across a face with velocity u.
func upwindFlux(u, upwind, downwind float64) float64 {
	if u > 0 {
		return u * upwind
	}
	return u * downwind
}

// Column returns the discretized column.
func (dc *DiscreteColumn) Column() *Column { return dc.col }

// Len returns the length of the state vector,
// ncomp·Nx + Nx·Nr·(ncomp + nbound).
func (dc *DiscreteColumn) Len() int { return dc.nx * dc.block }

// Resolution returns the number of axial cells and particle shells.
func (dc *DiscreteColumn) Resolution() (nx, nr int) { return dc.nx, dc.nr }

// BlockSize returns the number of state values per axial cell.
func (dc *DiscreteColumn) BlockSize() int { return dc.block }

// Bulk returns the state index of the bulk concentration of species ii
// in axial cell k.
func (dc *DiscreteColumn) Bulk(k, ii int) int { return k*dc.block + ii }

// Pore returns the state index of the pore concentration of species ii
// in shell j of axial cell k. Shell 0 is at the particle surface.
func (dc *DiscreteColumn) Pore(k, j, ii int) int {
	return k*dc.block + dc.ncomp + j*dc.shell + ii
}

// Bound returns the state index of bound state m in shell j of axial
// cell k.
func (dc *DiscreteColumn) Bound(k, j, m int) int {
	return k*dc.block + dc.ncomp + j*dc.shell + dc.ncomp + m
}

// Func sets f to the right-hand side F(y) for interstitial velocity u
// and inlet concentration cin.
func (dc *DiscreteColumn) Func(u float64, cin, y, f []float64) {
	col := dc.col
	dax := col.AxialDispersion
	epsP := col.ParticlePorosity
	pore := epsP * col.PoreDiffusion
	surf := (1 - epsP) * col.SurfaceDiffusion
	rp2 := col.ParticleRadius * col.ParticleRadius
	for k := 0; k < dc.nx; k++ {
		for ii := 0; ii < dc.ncomp; ii++ {
			c := y[dc.Bulk(k, ii)]
			var in, out float64
			if k == 0 {
				// Danckwerts: the total flux entering the column is u·cin.
				in = u * cin[ii]
			} else {
				cw := y[dc.Bulk(k-1, ii)]
				in = upwindFlux(u, cw, c) - dax*(c-cw)/dc.dx
			}
			if k == dc.nx-1 {
				out = u * c
			} else {
				ce := y[dc.Bulk(k+1, ii)]
				out = upwindFlux(u, c, ce) - dax*(ce-c)/dc.dx
			}
			film := dc.kfEff * (c - y[dc.Pore(k, 0, ii)])
			f[dc.Bulk(k, ii)] = (in-out)/dc.dx - dc.beta*film

			for j := 0; j < dc.nr; j++ {
				cp := y[dc.Pore(k, j, ii)]
				m := dc.col.cs.BoundIndex(ii)
				var flux float64
				if j == 0 {
					flux += rp2 * film
				} else {
					g := dc.rOut[j] * dc.rOut[j] / dc.dr
					flux += g * pore * (y[dc.Pore(k, j-1, ii)] - cp)
					if m >= 0 && surf != 0 {
						flux += g * surf * (y[dc.Bound(k, j-1, m)] - y[dc.Bound(k, j, m)])
					}
				}
				if j < dc.nr-1 {
					g := dc.rIn[j] * dc.rIn[j] / dc.dr
					flux += g * pore * (y[dc.Pore(k, j+1, ii)] - cp)
					if m >= 0 && surf != 0 {
						flux += g * surf * (y[dc.Bound(k, j+1, m)] - y[dc.Bound(k, j, m)])
					}
				}
				f[dc.Pore(k, j, ii)] = flux / dc.vol[j]
			}
		}
		if dc.nbound == 0 {
			continue
		}
		for j := 0; j < dc.nr; j++ {
			base := dc.Pore(k, j, 0)
			dc.bind.Flux(y[base:base+dc.ncomp], y[base+dc.ncomp:base+dc.shell], dc.dq)
			for m := 0; m < dc.nbound; m++ {
				v := dc.dq[m]
				if dc.bind.Kinetic() && col.SurfaceDiffusion != 0 {
					q := y[dc.Bound(k, j, m)]
					var diff float64
					if j > 0 {
						diff += dc.rOut[j] * dc.rOut[j] / dc.dr * (y[dc.Bound(k, j-1, m)] - q)
					}
					if j < dc.nr-1 {
						diff += dc.rIn[j] * dc.rIn[j] / dc.dr * (y[dc.Bound(k, j+1, m)] - q)
					}
					v += col.SurfaceDiffusion * diff / dc.vol[j]
				}
				f[dc.Bound(k, j, m)] = v
			}
		}
	}
}

// InletCoupling returns ∂F/∂cin for the bulk row of each species in
// the first axial cell.
func (dc *DiscreteColumn) InletCoupling(u float64) float64 { return u / dc.dx }

// Jacobian calls add(i, j, v) for every structurally nonzero entry
// (i, j) of ∂F/∂y, including entries whose value happens to be zero.
// An entry may be reported more than once; values are to be summed.
func (dc *DiscreteColumn) Jacobian(u float64, y []float64, add func(i, j int, v float64)) {
	col := dc.col
	dax := col.AxialDispersion / (dc.dx * dc.dx)
	epsP := col.ParticlePorosity
	pore := epsP * col.PoreDiffusion
	surf := (1 - epsP) * col.SurfaceDiffusion
	rp2 := col.ParticleRadius * col.ParticleRadius
	conv := u / dc.dx
	up, down := conv, 0.
	if u < 0 {
		up, down = 0, conv
	}
	for k := 0; k < dc.nx; k++ {
		for ii := 0; ii < dc.ncomp; ii++ {
			r := dc.Bulk(k, ii)
			add(r, r, -dc.beta*dc.kfEff)
			add(r, dc.Pore(k, 0, ii), dc.beta*dc.kfEff)
			if k > 0 {
				add(r, dc.Bulk(k-1, ii), up+dax)
				add(r, r, down-dax)
			}
			if k == dc.nx-1 {
				add(r, r, -conv)
			} else {
				add(r, r, -up-dax)
				add(r, dc.Bulk(k+1, ii), -down+dax)
			}

			m := col.cs.BoundIndex(ii)
			for j := 0; j < dc.nr; j++ {
				r := dc.Pore(k, j, ii)
				v := dc.vol[j]
				if j == 0 {
					add(r, dc.Bulk(k, ii), rp2*dc.kfEff/v)
					add(r, r, -rp2*dc.kfEff/v)
				} else {
					g := dc.rOut[j] * dc.rOut[j] / dc.dr / v
					add(r, dc.Pore(k, j-1, ii), g*pore)
					add(r, r, -g*pore)
					if m >= 0 && surf != 0 {
						add(r, dc.Bound(k, j-1, m), g*surf)
						add(r, dc.Bound(k, j, m), -g*surf)
					}
				}
				if j < dc.nr-1 {
					g := dc.rIn[j] * dc.rIn[j] / dc.dr / v
					add(r, dc.Pore(k, j+1, ii), g*pore)
					add(r, r, -g*pore)
					if m >= 0 && surf != 0 {
						add(r, dc.Bound(k, j+1, m), g*surf)
						add(r, dc.Bound(k, j, m), -g*surf)
					}
				}
			}
		}
		if dc.nbound == 0 {
			continue
		}
		for j := 0; j < dc.nr; j++ {
			base := dc.Pore(k, j, 0)
			dc.bind.Jacobian(y[base:base+dc.ncomp], y[base+dc.ncomp:base+dc.shell], dc.jc, dc.jq)
			for m := 0; m < dc.nbound; m++ {
				r := dc.Bound(k, j, m)
				ii := col.cs.BoundSpecies(m)
				add(r, dc.Pore(k, j, ii), dc.jc[m*dc.ncomp+ii])
				if dc.bind.Coupled() {
					for n := 0; n < dc.nbound; n++ {
						add(r, dc.Bound(k, j, n), dc.jq[m*dc.nbound+n])
					}
				} else {
					add(r, r, dc.jq[m*dc.nbound+m])
				}
				if dc.bind.Kinetic() && col.SurfaceDiffusion != 0 {
					v := dc.vol[j]
					if j > 0 {
						g := dc.rOut[j] * dc.rOut[j] / dc.dr / v * col.SurfaceDiffusion
						add(r, dc.Bound(k, j-1, m), g)
						add(r, r, -g)
					}
					if j < dc.nr-1 {
						g := dc.rIn[j] * dc.rIn[j] / dc.dr / v * col.SurfaceDiffusion
						add(r, dc.Bound(k, j+1, m), g)
						add(r, r, -g)
					}
				}
			}
		}
	}
}

// Mass calls add(i, j, v) for every nonzero entry of the mass matrix M.
func (dc *DiscreteColumn) Mass(add func(i, j int, v float64)) {
	epsP := dc.col.ParticlePorosity
	kinetic := dc.nbound > 0 && dc.bind.Kinetic()
	for k := 0; k < dc.nx; k++ {
		for ii := 0; ii < dc.ncomp; ii++ {
			add(dc.Bulk(k, ii), dc.Bulk(k, ii), 1)
			m := dc.col.cs.BoundIndex(ii)
			for j := 0; j < dc.nr; j++ {
				add(dc.Pore(k, j, ii), dc.Pore(k, j, ii), epsP)
				if m >= 0 {
					add(dc.Pore(k, j, ii), dc.Bound(k, j, m), 1-epsP)
				}
			}
		}
		if !kinetic {
			continue
		}
		for j := 0; j < dc.nr; j++ {
			for m := 0; m < dc.nbound; m++ {
				add(dc.Bound(k, j, m), dc.Bound(k, j, m), 1)
			}
		}
	}
}

// JacobianPattern returns the sparsity pattern of ∂F/∂y.
func (dc *DiscreteColumn) JacobianPattern() *Sparsity {
	s := newSparsity(dc.Len())
	dc.Jacobian(1, make([]float64, dc.Len()), func(i, j int, _ float64) { s.add(i, j) })
	return s
}

// Bandwidth returns the lower and upper bandwidths of M − γ·h·∂F/∂y.
func (dc *DiscreteColumn) Bandwidth() (kl, ku int) {
	s := newSparsity(dc.Len())
	dc.Jacobian(1, make([]float64, dc.Len()), func(i, j int, _ float64) { s.add(i, j) })
	dc.Mass(func(i, j int, _ float64) { s.add(i, j) })
	return s.Bandwidth()
}

// Outlet sets c to the concentration leaving the column: the bulk
// concentration of the last axial cell, since there is no dispersive
// flux across the outlet.
func (dc *DiscreteColumn) Outlet(y, c []float64) {
	copy(c, y[dc.Bulk(dc.nx-1, 0):dc.Bulk(dc.nx-1, 0)+dc.ncomp])
}

// RetainedMass sets m to the amount of each species held in the column
// in the bulk, pore and bound phases, in concentration units times m³.
func (dc *DiscreteColumn) RetainedMass(y, m []float64) {
	col := dc.col
	epsC, epsP := col.BedPorosity, col.ParticlePorosity
	vp := cube(col.ParticleRadius) / 3
	cellVol := col.CrossSectionArea * dc.dx
	for ii := range m {
		m[ii] = 0
	}
	for k := 0; k < dc.nx; k++ {
		for ii := 0; ii < dc.ncomp; ii++ {
			b := epsC * y[dc.Bulk(k, ii)]
			mm := col.cs.BoundIndex(ii)
			var p float64
			for j := 0; j < dc.nr; j++ {
				v := epsP * y[dc.Pore(k, j, ii)]
				if mm >= 0 {
					v += (1 - epsP) * y[dc.Bound(k, j, mm)]
				}
				p += dc.vol[j] / vp * v
			}
			m[ii] += cellVol * (b + (1-epsC)*p)
		}
	}
}

// InitialState sets y to the initial state of the column: the initial
// concentration everywhere in the bulk and pores, with bound phases in
// equilibrium with it when binding is instantaneous and empty when it
// is rate limited.
func (dc *DiscreteColumn) InitialState(y []float64) {
	c0 := make([]float64, dc.ncomp)
	copy(c0, dc.col.InitialConcentration)
	q0 := make([]float64, dc.nbound)
	if dc.nbound > 0 && !dc.bind.Kinetic() {
		dc.bind.EquilibriumLoading(c0, q0)
	}
	for k := 0; k < dc.nx; k++ {
		copy(y[dc.Bulk(k, 0):], c0)
		for j := 0; j < dc.nr; j++ {
			copy(y[dc.Pore(k, j, 0):], c0)
			copy(y[dc.Bound(k, j, 0):], q0)
		}
	}
}

// Sparsity is the set of structurally nonzero entries of a square
// matrix, held as a sparse array of ones.
type Sparsity struct {
	N int
	a *sparse.SparseArray
}

func newSparsity(n int) *Sparsity {
	return &Sparsity{N: n, a: sparse.ZerosSparse(n, n)}
}

func (s *Sparsity) add(i, j int) { s.a.Set(1, i, j) }

// Has reports whether (i, j) is in the pattern.
func (s *Sparsity) Has(i, j int) bool { return s.a.Get(i, j) != 0 }

// NNZ returns the number of entries in the pattern.
func (s *Sparsity) NNZ() int { return len(s.a.Elements) }

// Bandwidth returns the lower and upper bandwidths of the pattern.
func (s *Sparsity) Bandwidth() (kl, ku int) {
	// Elements is keyed by the row-major index i·N + j.
	for k := range s.a.Elements {
		i, j := k/s.N, k%s.N
		if d := i - j; d > kl {
			kl = d
		}
		if d := j - i; d > ku {
			ku = d
		}
	}
	return kl, ku
}
