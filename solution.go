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

	"github.com/spatialmodel/chrom/internal/hash"
	"gonum.org/v1/gonum/mat"
)

// UnitSolution holds the time traces at the inlet and outlet of one unit
// operation. Concentration traces are indexed [time][species].
type UnitSolution struct {
	Name string

	InletFlow, OutletFlow []float64
	Inlet, Outlet         [][]float64
}

// InletTrace returns the inlet concentration of species ii over time.
func (u *UnitSolution) InletTrace(ii int) []float64 { return trace(u.Inlet, ii) }

// OutletTrace returns the outlet concentration of species ii over time.
func (u *UnitSolution) OutletTrace(ii int) []float64 { return trace(u.Outlet, ii) }

func trace(c [][]float64, ii int) []float64 {
	o := make([]float64, len(c))
	for i, v := range c {
		o[i] = v[ii]
	}
	return o
}

// ColumnState is the state of a column at one point in time. Bulk has
// one row per axial cell and one column per species. Pore and Bound hold
// one such matrix per particle shell, from the surface inwards; Bound
// has one column per bound state and is empty if no species binds.
type ColumnState struct {
	Bulk  *mat.Dense
	Pore  []*mat.Dense
	Bound []*mat.Dense
}

func newColumnState(dc *DiscreteColumn, y []float64) *ColumnState {
	nx, nr := dc.Resolution()
	s := &ColumnState{Bulk: mat.NewDense(nx, dc.ncomp, nil)}
	for j := 0; j < nr; j++ {
		s.Pore = append(s.Pore, mat.NewDense(nx, dc.ncomp, nil))
		if dc.nbound > 0 {
			s.Bound = append(s.Bound, mat.NewDense(nx, dc.nbound, nil))
		}
	}
	for k := 0; k < nx; k++ {
		for ii := 0; ii < dc.ncomp; ii++ {
			s.Bulk.Set(k, ii, y[dc.Bulk(k, ii)])
			for j := 0; j < nr; j++ {
				s.Pore[j].Set(k, ii, y[dc.Pore(k, j, ii)])
			}
		}
		for m := 0; m < dc.nbound; m++ {
			for j := 0; j < nr; j++ {
				s.Bound[j].Set(k, m, y[dc.Bound(k, j, m)])
			}
		}
	}
	return s
}

// MassBalance accounts for the amount of each species, in concentration
// units times m³, entering, leaving and held in a unit.
type MassBalance struct {
	In, Out        []float64
	Initial, Final []float64
}

// Error returns the relative mismatch of the balance for species ii:
// accumulation minus net inflow, divided by the largest of the amounts
// involved. It is 0 if nothing moved.
func (m *MassBalance) Error(ii int) float64 {
	d := (m.Final[ii] - m.Initial[ii]) - (m.In[ii] - m.Out[ii])
	scale := math.Max(math.Max(m.In[ii], m.Out[ii]), math.Max(math.Abs(m.Initial[ii]), math.Abs(m.Final[ii])))
	if scale == 0 {
		return 0
	}
	return d / scale
}

// Solution is the result of simulating a Process.
type Solution struct {
	Process *Process

	// Time holds the output times reached. It is shorter than requested
	// if the simulation was cancelled.
	Time []float64
	// EndTime is the time the simulation stopped.
	EndTime float64
	// Complete is false if the simulation was cancelled.
	Complete bool

	Warnings []NumericalWarning
	Stats    Stats

	units  []*UnitSolution
	byName map[string]int
	mass   []*MassBalance
	cols   map[string]*ColumnState
}

// newSolution returns an empty solution with one entry per node of sys.
// The solution does not refer to sys.
func newSolution(p *Process, sys *system) *Solution {
	s := &Solution{
		Process: p,
		byName:  make(map[string]int),
		cols:    make(map[string]*ColumnState),
	}
	ncomp := sys.cs.Len()
	for i, nd := range sys.nodes {
		s.byName[nd.unit.Name()] = i
		s.units = append(s.units, &UnitSolution{Name: nd.unit.Name()})
		s.mass = append(s.mass, &MassBalance{
			In:      make([]float64, ncomp),
			Out:     make([]float64, ncomp),
			Initial: make([]float64, ncomp),
			Final:   make([]float64, ncomp),
		})
	}
	return s
}

// Unit returns the traces of the named unit, or nil.
func (s *Solution) Unit(name string) *UnitSolution {
	i, ok := s.byName[name]
	if !ok {
		return nil
	}
	return s.units[i]
}

// Units returns the traces of all units, upstream units first.
func (s *Solution) Units() []*UnitSolution { return s.units }

// MassBalance returns the mass balance of the named unit, or nil.
func (s *Solution) MassBalance(name string) *MassBalance {
	i, ok := s.byName[name]
	if !ok {
		return nil
	}
	return s.mass[i]
}

// ColumnState returns the state of the named column when the simulation
// stopped, or nil if there is no such column.
func (s *Solution) ColumnState(name string) *ColumnState { return s.cols[name] }

// Fingerprint returns a hash of the output times and traces. Two
// simulations of the same process with the same settings have the same
// fingerprint.
func (s *Solution) Fingerprint() string {
	return hash.Hash(struct {
		Time     []float64
		Units    []*UnitSolution
		Complete bool
	}{s.Time, s.units, s.Complete})
}

// Summary returns a one-line description of the solution.
func (s *Solution) Summary() string {
	status := "complete"
	if !s.Complete {
		status = "incomplete"
	}
	return fmt.Sprintf("%s: %s at t=%g, %d outputs, %d steps (%d rejected), %d warnings",
		s.Process.Name, status, s.EndTime, len(s.Time), s.Stats.Steps, s.Stats.Rejected, len(s.Warnings))
}
