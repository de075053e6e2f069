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

import "fmt"

// Species is a chemical species carried by the mobile phase.
type Species struct {
	Name string

	// BoundStates is the number of bound states the species can
	// occupy on the stationary phase: 0 or 1.
	BoundStates int
}

// ComponentSystem is the registry of species shared by every binding
// model and unit operation of a flow sheet.
type ComponentSystem struct {
	species []Species
	index   map[string]int

	// bound[i] is the bound-state index of species i, or -1.
	bound  []int
	nbound int

	// boundSpecies[m] is the species of bound state m.
	boundSpecies []int
}

// NewComponentSystem returns a registry of the given species, in order.
func NewComponentSystem(species ...Species) (*ComponentSystem, error) {
	if len(species) == 0 {
		return nil, configErrorf("species", "at least one species is required")
	}
	cs := &ComponentSystem{
		species: make([]Species, len(species)),
		index:   make(map[string]int),
		bound:   make([]int, len(species)),
	}
	for i, s := range species {
		field := fmt.Sprintf("species[%d]", i)
		if s.Name == "" {
			return nil, configErrorf(field, "name is empty")
		}
		if _, ok := cs.index[s.Name]; ok {
			return nil, configErrorf(field, "duplicate species name %q", s.Name)
		}
		switch s.BoundStates {
		case 0:
			cs.bound[i] = -1
		case 1:
			cs.bound[i] = cs.nbound
			cs.boundSpecies = append(cs.boundSpecies, i)
			cs.nbound++
		default:
			return nil, configErrorf(field, "species %q has %d bound states but only 0 or 1 are supported",
				s.Name, s.BoundStates)
		}
		cs.species[i] = s
		cs.index[s.Name] = i
	}
	return cs, nil
}

// Len returns the number of species.
func (cs *ComponentSystem) Len() int { return len(cs.species) }

// NumBound returns the total number of bound states.
func (cs *ComponentSystem) NumBound() int { return cs.nbound }

// Species returns species i.
func (cs *ComponentSystem) Species(i int) Species { return cs.species[i] }

// Names returns the species names in index order.
func (cs *ComponentSystem) Names() []string {
	o := make([]string, len(cs.species))
	for i, s := range cs.species {
		o[i] = s.Name
	}
	return o
}

// Index returns the index of the named species.
func (cs *ComponentSystem) Index(name string) (int, bool) {
	i, ok := cs.index[name]
	return i, ok
}

// BoundIndex returns the bound-state index of species i, or -1 if the
// species does not bind.
func (cs *ComponentSystem) BoundIndex(i int) int { return cs.bound[i] }

// BoundSpecies returns the species index of bound state m.
func (cs *ComponentSystem) BoundSpecies(m int) int { return cs.boundSpecies[m] }

// Equal reports whether cs and o define the same species with the same
// bound-state counts.
func (cs *ComponentSystem) Equal(o *ComponentSystem) bool {
	if cs == o {
		return true
	}
	if cs == nil || o == nil || len(cs.species) != len(o.species) {
		return false
	}
	for i, s := range cs.species {
		if s != o.species[i] {
			return false
		}
	}
	return true
}
