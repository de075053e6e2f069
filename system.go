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
	"runtime"
	"sync"

	"github.com/spatialmodel/chrom/internal/band"
	"gonum.org/v1/gonum/mat"
)

// upstream is an incoming connection of a node.
type upstream struct {
	src    *node
	conn   int     // index in FlowSheet.Connections
	weight float64 // fraction of the node's inflow, set per segment
}

// node is a unit operation placed in the global state vector.
type node struct {
	unit   UnitOperation
	index  int // index in FlowSheet.Units
	offset int
	n      int

	column *DiscreteColumn
	cstr   *Cstr

	up []upstream

	// Per-segment values.
	flow     float64
	velocity float64
	inletC   []float64

	cin, mix []float64 // scratch
}

// stateful reports whether the node owns part of the state vector.
func (nd *node) stateful() bool { return nd.n > 0 }

// outletIndex returns the state index, relative to the node offset, of
// the outlet concentration of species ii, or -1 if the outlet is not a
// state variable.
func (nd *node) outletIndex(ii int) int {
	switch {
	case nd.column != nil:
		nx, _ := nd.column.Resolution()
		return nd.column.Bulk(nx-1, ii)
	case nd.cstr != nil:
		return ii
	default:
		return -1
	}
}

// system is the discretized flow sheet of a Process: the state vectors
// of all stateful units concatenated in topological order.
type system struct {
	p       *Process
	cs      *ComponentSystem
	nodes   []*node
	byName  map[string]*node
	n       int
	kl, ku  int
	mass    *mat.BandDense
	linear  bool
	signals map[string]inletSignals

	// parallel evaluates units concurrently.
	parallel bool
	nprocs   int
}

func newSystem(p *Process, d Discretizer) (*system, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	order, err := p.FlowSheet.Order()
	if err != nil {
		return nil, err
	}
	s := &system{
		p:       p,
		cs:      p.FlowSheet.Components(),
		byName:  make(map[string]*node),
		linear:  true,
		signals: p.signals(),
		nprocs:  runtime.GOMAXPROCS(0),
	}
	ncomp := s.cs.Len()
	for _, u := range order {
		nd := &node{
			unit:   u,
			index:  p.FlowSheet.byName[u.Name()],
			offset: s.n,
			inletC: make([]float64, ncomp),
			cin:    make([]float64, ncomp),
			mix:    make([]float64, ncomp),
		}
		switch u := u.(type) {
		case *Column:
			dc, err := d.Discretize(u)
			if err != nil {
				return nil, err
			}
			nd.column = dc
			nd.n = dc.Len()
			if _, ok := u.Binding.(*Langmuir); ok {
				s.linear = false
			}
		case *Cstr:
			nd.cstr = u
			nd.n = ncomp
		}
		s.n += nd.n
		s.nodes = append(s.nodes, nd)
		s.byName[u.Name()] = nd
	}
	for k, c := range p.FlowSheet.conns {
		dst := s.byName[c.To]
		dst.up = append(dst.up, upstream{src: s.byName[c.From], conn: k})
	}
	if s.n == 0 {
		return s, nil
	}

	pattern := newSparsity(s.n)
	add := func(i, j int, _ float64) { pattern.add(i, j) }
	y := make([]float64, s.n)
	for _, nd := range s.nodes {
		s.nodeJacobian(nd, y, add)
		s.nodeMass(nd, add)
	}
	s.kl, s.ku = pattern.Bandwidth()
	s.mass = band.New(s.n, s.kl, s.ku)
	for _, nd := range s.nodes {
		s.nodeMass(nd, func(i, j int, v float64) { band.Add(s.mass, i, j, v) })
	}
	return s, nil
}

// Len implements odeSystem.
func (s *system) Len() int { return s.n }

// Mass implements odeSystem.
func (s *system) Mass() *mat.BandDense { return s.mass }

// Linear implements odeSystem.
func (s *system) Linear() bool { return s.linear }

// setSegment sets the inlet concentrations and flow rates in force
// during the segment starting at time t.
func (s *system) setSegment(t float64) error {
	conn, unit, err := s.p.FlowSheet.Flows(func(in *Inlet) float64 {
		return s.signals[in.Name()].flow.Scalar(t)
	})
	if err != nil {
		return err
	}
	for _, nd := range s.nodes {
		nd.flow = unit[nd.index]
		for k := range nd.up {
			nd.up[k].weight = 0
			if nd.flow > 0 {
				nd.up[k].weight = conn[nd.up[k].conn] / nd.flow
			}
		}
		if nd.column != nil {
			nd.velocity = nd.column.Column().InterstitialVelocity(nd.flow)
		}
		if in, ok := nd.unit.(*Inlet); ok {
			copy(nd.inletC, s.signals[in.Name()].c.At(t))
		}
	}
	return nil
}

// outlet sets c to the concentration leaving nd.
func (s *system) outlet(nd *node, y, c []float64) {
	switch {
	case nd.column != nil:
		nd.column.Outlet(y[nd.offset:nd.offset+nd.n], c)
	case nd.cstr != nil:
		copy(c, y[nd.offset:nd.offset+nd.n])
	case len(nd.up) == 0:
		copy(c, nd.inletC)
	default:
		s.inlet(nd, y, c)
	}
}

// inlet sets c to the flow-weighted mix of the concentrations entering
// nd. Upstream nodes are never outlets, so this does not recurse more
// than once.
func (s *system) inlet(nd *node, y, c []float64) {
	if len(nd.up) == 0 {
		copy(c, nd.inletC)
		return
	}
	for ii := range c {
		c[ii] = 0
	}
	for _, u := range nd.up {
		if u.weight == 0 {
			continue
		}
		s.outlet(u.src, y, nd.mix)
		for ii := range c {
			c[ii] += u.weight * nd.mix[ii]
		}
	}
}

// Func implements odeSystem.
func (s *system) Func(y, f []float64) {
	s.forNodes(func(nd *node) {
		s.inlet(nd, y, nd.cin)
		yy := y[nd.offset : nd.offset+nd.n]
		ff := f[nd.offset : nd.offset+nd.n]
		switch {
		case nd.column != nil:
			nd.column.Func(nd.velocity, nd.cin, yy, ff)
		case nd.cstr != nil:
			rate := nd.flow / nd.cstr.Volume
			for ii := range ff {
				ff[ii] = rate * (nd.cin[ii] - yy[ii])
			}
		}
	})
}

// Jacobian implements odeSystem. j must be zeroed by the caller.
func (s *system) Jacobian(y []float64, j *mat.BandDense) {
	s.forNodes(func(nd *node) {
		s.nodeJacobian(nd, y, func(r, c int, v float64) { band.Add(j, r, c, v) })
	})
}

// nodeJacobian reports the Jacobian entries of the rows of nd in global
// coordinates, including the coupling to upstream outlets.
func (s *system) nodeJacobian(nd *node, y []float64, add func(i, j int, v float64)) {
	var coupling float64
	var inletRows func(ii int) int
	switch {
	case nd.column != nil:
		nd.column.Jacobian(nd.velocity, y[nd.offset:nd.offset+nd.n], func(i, j int, v float64) {
			add(nd.offset+i, nd.offset+j, v)
		})
		coupling = nd.column.InletCoupling(nd.velocity)
		inletRows = func(ii int) int { return nd.offset + nd.column.Bulk(0, ii) }
	case nd.cstr != nil:
		coupling = nd.flow / nd.cstr.Volume
		for ii := 0; ii < nd.n; ii++ {
			add(nd.offset+ii, nd.offset+ii, -coupling)
		}
		inletRows = func(ii int) int { return nd.offset + ii }
	default:
		return
	}
	for _, u := range nd.up {
		for ii := 0; ii < s.cs.Len(); ii++ {
			s.addOutletDerivative(u.src, ii, inletRows(ii), coupling*u.weight, add)
		}
	}
}

// addOutletDerivative adds v times the derivative of the outlet
// concentration of species ii of src to row r.
func (s *system) addOutletDerivative(src *node, ii, r int, v float64, add func(i, j int, v float64)) {
	if k := src.outletIndex(ii); k >= 0 {
		add(r, src.offset+k, v)
		return
	}
	// Inlets are constant within a segment. Outlets never feed other
	// units, so there is nothing else to follow.
}

func (s *system) nodeMass(nd *node, add func(i, j int, v float64)) {
	switch {
	case nd.column != nil:
		nd.column.Mass(func(i, j int, v float64) { add(nd.offset+i, nd.offset+j, v) })
	case nd.cstr != nil:
		for ii := 0; ii < nd.n; ii++ {
			add(nd.offset+ii, nd.offset+ii, 1)
		}
	}
}

// forNodes calls f for every stateful node, concurrently if requested.
// Each call writes only to the rows of its own node.
func (s *system) forNodes(f func(nd *node)) {
	if !s.parallel || s.nprocs < 2 {
		for _, nd := range s.nodes {
			if nd.stateful() {
				f(nd)
			}
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(s.nprocs)
	for pp := 0; pp < s.nprocs; pp++ {
		go func(pp int) {
			for ii := pp; ii < len(s.nodes); ii += s.nprocs {
				if nd := s.nodes[ii]; nd.stateful() {
					f(nd)
				}
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
}

// initialState sets y to the initial state of every unit.
func (s *system) initialState(y []float64) {
	for _, nd := range s.nodes {
		switch {
		case nd.column != nil:
			nd.column.InitialState(y[nd.offset : nd.offset+nd.n])
		case nd.cstr != nil:
			yy := y[nd.offset : nd.offset+nd.n]
			for ii := range yy {
				yy[ii] = 0
			}
			copy(yy, nd.cstr.InitialConcentration)
		}
	}
}

// retained sets m to the amount of each species held in nd.
func (s *system) retained(nd *node, y, m []float64) {
	for ii := range m {
		m[ii] = 0
	}
	switch {
	case nd.column != nil:
		nd.column.RetainedMass(y[nd.offset:nd.offset+nd.n], m)
	case nd.cstr != nil:
		for ii := range m {
			m[ii] = nd.cstr.Volume * y[nd.offset+ii]
		}
	}
}
