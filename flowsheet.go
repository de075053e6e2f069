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

// Connection is a directed edge of a FlowSheet. The outflow of a unit is
// split among its outgoing connections in proportion to their weights.
type Connection struct {
	From, To string
	Weight   float64
}

// FlowSheet is a directed acyclic graph of unit operations.
type FlowSheet struct {
	cs     *ComponentSystem
	units  []UnitOperation
	byName map[string]int
	conns  []Connection
}

// NewFlowSheet returns an empty flow sheet for the given species.
func NewFlowSheet(cs *ComponentSystem) *FlowSheet {
	return &FlowSheet{cs: cs, byName: make(map[string]int)}
}

// Components returns the species carried by the flow sheet.
func (fs *FlowSheet) Components() *ComponentSystem { return fs.cs }

// AddUnit validates u and adds it to the flow sheet.
func (fs *FlowSheet) AddUnit(u UnitOperation) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if !fs.cs.Equal(u.Components()) {
		return configErrorf(unitField(u, "species"), "unit species %v do not match flow sheet species %v",
			u.Components().Names(), fs.cs.Names())
	}
	if _, ok := fs.byName[u.Name()]; ok {
		return configErrorf(unitField(u, "name"), "duplicate unit name")
	}
	if col, ok := u.(*Column); ok && col.Binding != nil {
		for _, o := range fs.units {
			if oc, ok := o.(*Column); ok && oc.Binding == col.Binding {
				return configErrorf(unitField(u, "binding"), "binding model is already owned by column %q", oc.Name())
			}
		}
	}
	fs.byName[u.Name()] = len(fs.units)
	fs.units = append(fs.units, u)
	return nil
}

// AddConnection connects two units with unit weight.
func (fs *FlowSheet) AddConnection(from, to string) error {
	return fs.AddWeightedConnection(from, to, 1)
}

// AddWeightedConnection connects two units with the given split weight.
func (fs *FlowSheet) AddWeightedConnection(from, to string, weight float64) error {
	field := fmt.Sprintf("connections[%s->%s]", from, to)
	for _, n := range []string{from, to} {
		if _, ok := fs.byName[n]; !ok {
			return configErrorf(field, "unknown unit %q", n)
		}
	}
	if from == to {
		return configErrorf(field, "a unit cannot be connected to itself")
	}
	if !(weight > 0) || math.IsInf(weight, 0) {
		return configErrorf(field+".weight", "%g but should be finite and >0", weight)
	}
	for _, c := range fs.conns {
		if c.From == from && c.To == to {
			return configErrorf(field, "duplicate connection")
		}
	}
	fs.conns = append(fs.conns, Connection{From: from, To: to, Weight: weight})
	return nil
}

// Unit returns the named unit, or nil.
func (fs *FlowSheet) Unit(name string) UnitOperation {
	i, ok := fs.byName[name]
	if !ok {
		return nil
	}
	return fs.units[i]
}

// Units returns the units in the order they were added.
func (fs *FlowSheet) Units() []UnitOperation { return append([]UnitOperation(nil), fs.units...) }

// Connections returns the connections in the order they were added.
func (fs *FlowSheet) Connections() []Connection { return append([]Connection(nil), fs.conns...) }

// Validate checks the graph invariants: inlets have no incoming
// connections, every other unit has at least one, exactly the outlets
// have no outgoing connections and the graph has no cycles.
func (fs *FlowSheet) Validate() error {
	if len(fs.units) == 0 {
		return configErrorf("units", "the flow sheet has no units")
	}
	in := make(map[string]int)
	out := make(map[string]int)
	for _, c := range fs.conns {
		out[c.From]++
		in[c.To]++
	}
	var nInlet, nOutlet int
	for _, u := range fs.units {
		switch u.(type) {
		case *Inlet:
			nInlet++
			if in[u.Name()] > 0 {
				return configErrorf(unitField(u, "connections"), "an inlet cannot have incoming connections")
			}
		default:
			if in[u.Name()] == 0 {
				return configErrorf(unitField(u, "connections"), "unit has no incoming connection")
			}
		}
		switch u.(type) {
		case *Outlet:
			nOutlet++
			if out[u.Name()] > 0 {
				return configErrorf(unitField(u, "connections"), "an outlet cannot have outgoing connections")
			}
		default:
			if out[u.Name()] == 0 {
				return configErrorf(unitField(u, "connections"), "only outlets may have no outgoing connection")
			}
		}
	}
	if nInlet == 0 {
		return configErrorf("units", "the flow sheet has no inlet")
	}
	if nOutlet == 0 {
		return configErrorf("units", "the flow sheet has no outlet")
	}
	_, err := fs.Order()
	return err
}

// Order returns the units in topological order, so that every unit comes
// after all of its upstream units. Ties keep insertion order. It returns
// an error if the graph has a cycle.
func (fs *FlowSheet) Order() ([]UnitOperation, error) {
	indeg := make([]int, len(fs.units))
	for _, c := range fs.conns {
		indeg[fs.byName[c.To]]++
	}
	done := make([]bool, len(fs.units))
	o := make([]UnitOperation, 0, len(fs.units))
	for len(o) < len(fs.units) {
		next := -1
		for i := range fs.units {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, configErrorf("connections", "the flow sheet contains a cycle")
		}
		done[next] = true
		o = append(o, fs.units[next])
		for _, c := range fs.conns {
			if c.From == fs.units[next].Name() {
				indeg[fs.byName[c.To]]--
			}
		}
	}
	return o, nil
}

// Flows computes volumetric flow rates from the inlet flow rates.
// Units keep a constant volume, so each unit passes on its total inflow,
// split among its outgoing connections in proportion to their weights.
// The returned slices are indexed like Connections and Units.
func (fs *FlowSheet) Flows(inletFlow func(*Inlet) float64) (conn, unit []float64, err error) {
	order, err := fs.Order()
	if err != nil {
		return nil, nil, err
	}
	conn = make([]float64, len(fs.conns))
	unit = make([]float64, len(fs.units))
	weights := make(map[string]float64)
	for _, c := range fs.conns {
		weights[c.From] += c.Weight
	}
	for _, u := range order {
		i := fs.byName[u.Name()]
		if in, ok := u.(*Inlet); ok {
			unit[i] = inletFlow(in)
		}
		for k, c := range fs.conns {
			if c.From == u.Name() {
				q := unit[i] * c.Weight / weights[c.From]
				conn[k] = q
				unit[fs.byName[c.To]] += q
			}
		}
	}
	return conn, unit, nil
}
