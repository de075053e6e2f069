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
	"errors"
	"testing"
)

func singleSpecies(t testing.TB) *ComponentSystem {
	cs, err := NewComponentSystem(Species{Name: "A"})
	if err != nil {
		t.Fatal(err)
	}
	return cs
}

// testFlowSheet adds the given units and connections, failing the test
// on error.
func testFlowSheet(t testing.TB, cs *ComponentSystem, units []UnitOperation, conns ...Connection) *FlowSheet {
	fs := NewFlowSheet(cs)
	for _, u := range units {
		if err := fs.AddUnit(u); err != nil {
			t.Fatal(err)
		}
	}
	for _, c := range conns {
		w := c.Weight
		if w == 0 {
			w = 1
		}
		if err := fs.AddWeightedConnection(c.From, c.To, w); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func TestFlowSheetValidate(t *testing.T) {
	cs := singleSpecies(t)
	units := func() []UnitOperation {
		return []UnitOperation{
			NewInlet("feed", cs, 1),
			NewCstr("t1", cs, 1),
			NewCstr("t2", cs, 1),
			NewOutlet("product", cs),
		}
	}
	for _, test := range []struct {
		name  string
		conns []Connection
		field string
	}{
		{
			name:  "ok",
			conns: []Connection{{From: "feed", To: "t1"}, {From: "t1", To: "t2"}, {From: "t2", To: "product"}},
		},
		{
			name:  "dangling tank",
			conns: []Connection{{From: "feed", To: "t1"}, {From: "t1", To: "product"}},
			field: "units[t2].connections",
		},
		{
			name:  "dead end",
			conns: []Connection{{From: "feed", To: "t1"}, {From: "t1", To: "t2"}, {From: "feed", To: "product"}},
			field: "units[t2].connections",
		},
		{
			name:  "inlet with inflow",
			conns: []Connection{{From: "t1", To: "feed"}, {From: "feed", To: "t2"}, {From: "t2", To: "t1"}, {From: "t2", To: "product"}},
			field: "units[feed].connections",
		},
		{
			name:  "cycle",
			conns: []Connection{{From: "feed", To: "t1"}, {From: "t1", To: "t2"}, {From: "t2", To: "t1"}, {From: "t2", To: "product"}},
			field: "connections",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			fs := testFlowSheet(t, cs, units(), test.conns...)
			err := fs.Validate()
			if test.field == "" {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("have %v, want a configuration error", err)
			}
			if ce.Field != test.field {
				t.Errorf("field: have %q, want %q", ce.Field, test.field)
			}
		})
	}
}

func TestFlowSheetConnectionErrors(t *testing.T) {
	cs := singleSpecies(t)
	fs := testFlowSheet(t, cs, []UnitOperation{NewInlet("feed", cs, 1), NewOutlet("product", cs)},
		Connection{From: "feed", To: "product"})
	for _, test := range []struct {
		name     string
		from, to string
		weight   float64
	}{
		{name: "unknown", from: "feed", to: "column", weight: 1},
		{name: "self", from: "feed", to: "feed", weight: 1},
		{name: "duplicate", from: "feed", to: "product", weight: 1},
		{name: "zero weight", from: "product", to: "feed", weight: 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			var ce *ConfigurationError
			if err := fs.AddWeightedConnection(test.from, test.to, test.weight); !errors.As(err, &ce) {
				t.Errorf("have %v, want a configuration error", err)
			}
		})
	}
	if err := fs.AddUnit(NewOutlet("product", cs)); err == nil {
		t.Error("duplicate unit name was accepted")
	}
	other, _ := NewComponentSystem(Species{Name: "B"})
	if err := fs.AddUnit(NewOutlet("other", other)); err == nil {
		t.Error("unit with different species was accepted")
	}
}

func TestFlows(t *testing.T) {
	cs := singleSpecies(t)
	t.Run("split", func(t *testing.T) {
		fs := testFlowSheet(t, cs,
			[]UnitOperation{NewInlet("feed", cs, 4), NewCstr("tank", cs, 1), NewOutlet("a", cs), NewOutlet("b", cs)},
			Connection{From: "feed", To: "tank"},
			Connection{From: "tank", To: "a", Weight: 1},
			Connection{From: "tank", To: "b", Weight: 3},
		)
		conn, unit, err := fs.Flows(func(in *Inlet) float64 { return in.FlowRate })
		if err != nil {
			t.Fatal(err)
		}
		for i, want := range []float64{4, 1, 3} {
			if different(conn[i], want, 1e-14) {
				t.Errorf("connection %d: have %g, want %g", i, conn[i], want)
			}
		}
		for i, want := range []float64{4, 4, 1, 3} {
			if different(unit[i], want, 1e-14) {
				t.Errorf("unit %d: have %g, want %g", i, unit[i], want)
			}
		}
	})
	t.Run("merge", func(t *testing.T) {
		fs := testFlowSheet(t, cs,
			[]UnitOperation{NewOutlet("product", cs), NewCstr("tank", cs, 1), NewInlet("a", cs, 1), NewInlet("b", cs, 2)},
			Connection{From: "a", To: "tank"},
			Connection{From: "b", To: "tank"},
			Connection{From: "tank", To: "product"},
		)
		order, err := fs.Order()
		if err != nil {
			t.Fatal(err)
		}
		var names []string
		for _, u := range order {
			names = append(names, u.Name())
		}
		if names[0] != "a" || names[1] != "b" || names[3] != "product" {
			t.Errorf("topological order %v", names)
		}
		_, unit, err := fs.Flows(func(in *Inlet) float64 { return in.FlowRate })
		if err != nil {
			t.Fatal(err)
		}
		if different(unit[0], 3, 1e-14) || different(unit[1], 3, 1e-14) {
			t.Errorf("product and tank flows: have %g and %g, want 3", unit[0], unit[1])
		}
	})
}

func TestSharedBinding(t *testing.T) {
	cs, err := NewComponentSystem(Species{Name: "A", BoundStates: 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewLinear(cs, true, []float64{2.5}, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	fs := NewFlowSheet(cs)
	if err := fs.AddUnit(NewColumn("first", cs, benchmarkParams, b)); err != nil {
		t.Fatal(err)
	}
	err = fs.AddUnit(NewColumn("second", cs, benchmarkParams, b))
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Field != "units[second].binding" {
		t.Errorf("have %v, want a configuration error for units[second].binding", err)
	}
	own, err := NewLinear(cs, true, []float64{2.5}, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.AddUnit(NewColumn("second", cs, benchmarkParams, own)); err != nil {
		t.Error(err)
	}
}
