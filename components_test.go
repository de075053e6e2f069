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

func TestNewComponentSystem(t *testing.T) {
	cs, err := NewComponentSystem(Species{Name: "salt"}, Species{Name: "A", BoundStates: 1}, Species{Name: "B", BoundStates: 1})
	if err != nil {
		t.Fatal(err)
	}
	if cs.Len() != 3 || cs.NumBound() != 2 {
		t.Errorf("have %d species and %d bound states, want 3 and 2", cs.Len(), cs.NumBound())
	}
	if cs.BoundIndex(0) != -1 || cs.BoundIndex(1) != 0 || cs.BoundIndex(2) != 1 {
		t.Errorf("bound indices: %d, %d, %d", cs.BoundIndex(0), cs.BoundIndex(1), cs.BoundIndex(2))
	}
	if cs.BoundSpecies(1) != 2 {
		t.Errorf("bound state 1 belongs to species %d, want 2", cs.BoundSpecies(1))
	}
	if i, ok := cs.Index("B"); !ok || i != 2 {
		t.Errorf("index of B: %d, %v", i, ok)
	}
	if _, ok := cs.Index("C"); ok {
		t.Error("found species C")
	}
	other, _ := NewComponentSystem(Species{Name: "salt"}, Species{Name: "A", BoundStates: 1}, Species{Name: "B", BoundStates: 1})
	if !cs.Equal(other) {
		t.Error("identical systems are not equal")
	}
	unbound, _ := NewComponentSystem(Species{Name: "salt"}, Species{Name: "A"}, Species{Name: "B", BoundStates: 1})
	if cs.Equal(unbound) {
		t.Error("systems with different bound states are equal")
	}
}

func TestNewComponentSystemErrors(t *testing.T) {
	for _, test := range []struct {
		name    string
		species []Species
		field   string
	}{
		{name: "empty", field: "species"},
		{name: "no name", species: []Species{{Name: "A"}, {}}, field: "species[1]"},
		{name: "duplicate", species: []Species{{Name: "A"}, {Name: "A"}}, field: "species[1]"},
		{name: "two bound states", species: []Species{{Name: "A", BoundStates: 2}}, field: "species[0]"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewComponentSystem(test.species...)
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
