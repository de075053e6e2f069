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

// BindingModel is an adsorption isotherm relating pore-phase
// concentrations c (one value per species) to bound-phase
// concentrations q (one value per bound state). The set of
// implementations is closed: Linear and Langmuir.
type BindingModel interface {
	// Components returns the species the model was built for.
	Components() *ComponentSystem

	// Kinetic reports whether the bound phase is rate limited. If false,
	// the bound phase is in instantaneous equilibrium with the pore phase.
	Kinetic() bool

	// Coupled reports whether the rate of one bound state depends on
	// the concentrations of other species.
	Coupled() bool

	// Flux sets dq to the net adsorption rate for each bound state.
	Flux(c, q, dq []float64)

	// Jacobian sets the partial derivatives of Flux: dc[m*ncomp+i] is
	// ∂dq_m/∂c_i and dq[m*nbound+n] is ∂dq_m/∂q_n.
	Jacobian(c, q, dc, dq []float64)

	// EquilibriumLoading sets q to the bound-phase concentrations in
	// equilibrium with c.
	EquilibriumLoading(c, q []float64)

	// Residual sets res to q − EquilibriumLoading(c). The equations of
	// a column never use it: equilibrium rows are 0 = Flux, which has the
	// same root. It measures how far a state is from equilibrium, for
	// checking results.
	Residual(c, q, res []float64)

	// Validate checks that the model agrees with the given species.
	Validate(cs *ComponentSystem) error

	isBindingModel()
}

// Linear is a linear isotherm, dq_i/dt = ka_i·c_i − kd_i·q_i, with no
// coupling between species.
type Linear struct {
	cs      *ComponentSystem
	kinetic bool
	ka, kd  []float64
}

// NewLinear returns a linear binding model with one adsorption and one
// desorption rate per species. Rates of non-binding species are ignored.
func NewLinear(cs *ComponentSystem, kinetic bool, ka, kd []float64) (*Linear, error) {
	if err := checkRates(cs, kinetic, ka, kd); err != nil {
		return nil, err
	}
	return &Linear{
		cs:      cs,
		kinetic: kinetic,
		ka:      append([]float64(nil), ka...),
		kd:      append([]float64(nil), kd...),
	}, nil
}

func (*Linear) isBindingModel() {}

// Components implements BindingModel.
func (l *Linear) Components() *ComponentSystem { return l.cs }

// Kinetic implements BindingModel.
func (l *Linear) Kinetic() bool { return l.kinetic }

// Coupled implements BindingModel.
func (l *Linear) Coupled() bool { return false }

// Ka returns the adsorption rate of species i.
func (l *Linear) Ka(i int) float64 { return l.ka[i] }

// Kd returns the desorption rate of species i.
func (l *Linear) Kd(i int) float64 { return l.kd[i] }

// Henry returns the equilibrium constant ka/kd of species i.
func (l *Linear) Henry(i int) float64 { return l.ka[i] / l.kd[i] }

// Flux implements BindingModel.
func (l *Linear) Flux(c, q, dq []float64) {
	for m := range dq {
		i := l.cs.BoundSpecies(m)
		dq[m] = l.ka[i]*c[i] - l.kd[i]*q[m]
	}
}

// Jacobian implements BindingModel.
func (l *Linear) Jacobian(c, q, dc, dq []float64) {
	ncomp, nbound := l.cs.Len(), l.cs.NumBound()
	for k := range dc {
		dc[k] = 0
	}
	for k := range dq {
		dq[k] = 0
	}
	for m := 0; m < nbound; m++ {
		i := l.cs.BoundSpecies(m)
		dc[m*ncomp+i] = l.ka[i]
		dq[m*nbound+m] = -l.kd[i]
	}
}

// EquilibriumLoading implements BindingModel.
func (l *Linear) EquilibriumLoading(c, q []float64) {
	for m := range q {
		i := l.cs.BoundSpecies(m)
		q[m] = l.ka[i] / l.kd[i] * c[i]
	}
}

// Residual implements BindingModel.
func (l *Linear) Residual(c, q, res []float64) {
	l.EquilibriumLoading(c, res)
	for m := range res {
		res[m] = q[m] - res[m]
	}
}

// Validate implements BindingModel.
func (l *Linear) Validate(cs *ComponentSystem) error {
	if !l.cs.Equal(cs) {
		return configErrorf("binding", "linear binding model was built for species %v, not %v",
			l.cs.Names(), cs.Names())
	}
	return checkRates(cs, l.kinetic, l.ka, l.kd)
}

// Langmuir is the competitive multi-component Langmuir isotherm,
//
//	dq_i/dt = ka_i·c_i·qmax_i·(1 − Σ_j q_j/qmax_j) − kd_i·q_i.
type Langmuir struct {
	cs      *ComponentSystem
	kinetic bool
	ka, kd  []float64
	qmax    []float64
}

// NewLangmuir returns a multi-component Langmuir binding model.
func NewLangmuir(cs *ComponentSystem, kinetic bool, ka, kd, qmax []float64) (*Langmuir, error) {
	if err := checkRates(cs, kinetic, ka, kd); err != nil {
		return nil, err
	}
	if err := checkCapacity(cs, qmax); err != nil {
		return nil, err
	}
	return &Langmuir{
		cs:      cs,
		kinetic: kinetic,
		ka:      append([]float64(nil), ka...),
		kd:      append([]float64(nil), kd...),
		qmax:    append([]float64(nil), qmax...),
	}, nil
}

func (*Langmuir) isBindingModel() {}

// Components implements BindingModel.
func (l *Langmuir) Components() *ComponentSystem { return l.cs }

// Kinetic implements BindingModel.
func (l *Langmuir) Kinetic() bool { return l.kinetic }

// Coupled implements BindingModel.
func (l *Langmuir) Coupled() bool { return true }

// free returns the fraction of unoccupied binding sites.
func (l *Langmuir) free(q []float64) float64 {
	f := 1.
	for m, v := range q {
		f -= v / l.qmax[l.cs.BoundSpecies(m)]
	}
	return f
}

// Flux implements BindingModel.
func (l *Langmuir) Flux(c, q, dq []float64) {
	free := l.free(q)
	for m := range dq {
		i := l.cs.BoundSpecies(m)
		dq[m] = l.ka[i]*c[i]*l.qmax[i]*free - l.kd[i]*q[m]
	}
}

// Jacobian implements BindingModel.
func (l *Langmuir) Jacobian(c, q, dc, dq []float64) {
	ncomp, nbound := l.cs.Len(), l.cs.NumBound()
	for k := range dc {
		dc[k] = 0
	}
	free := l.free(q)
	for m := 0; m < nbound; m++ {
		i := l.cs.BoundSpecies(m)
		dc[m*ncomp+i] = l.ka[i] * l.qmax[i] * free
		for n := 0; n < nbound; n++ {
			dq[m*nbound+n] = -l.ka[i] * c[i] * l.qmax[i] / l.qmax[l.cs.BoundSpecies(n)]
		}
		dq[m*nbound+m] -= l.kd[i]
	}
}

// EquilibriumLoading implements BindingModel.
func (l *Langmuir) EquilibriumLoading(c, q []float64) {
	denom := 1.
	for m := range q {
		i := l.cs.BoundSpecies(m)
		denom += l.ka[i] / l.kd[i] * c[i]
	}
	for m := range q {
		i := l.cs.BoundSpecies(m)
		q[m] = l.qmax[i] * l.ka[i] / l.kd[i] * c[i] / denom
	}
}

// Residual implements BindingModel.
func (l *Langmuir) Residual(c, q, res []float64) {
	l.EquilibriumLoading(c, res)
	for m := range res {
		res[m] = q[m] - res[m]
	}
}

// Validate implements BindingModel.
func (l *Langmuir) Validate(cs *ComponentSystem) error {
	if !l.cs.Equal(cs) {
		return configErrorf("binding", "Langmuir binding model was built for species %v, not %v",
			l.cs.Names(), cs.Names())
	}
	if err := checkRates(cs, l.kinetic, l.ka, l.kd); err != nil {
		return err
	}
	return checkCapacity(cs, l.qmax)
}

func checkRates(cs *ComponentSystem, kinetic bool, ka, kd []float64) error {
	if cs == nil {
		return configErrorf("binding", "no species defined")
	}
	if len(ka) != cs.Len() {
		return configErrorf("binding.k_a", "has %d values for %d species", len(ka), cs.Len())
	}
	if len(kd) != cs.Len() {
		return configErrorf("binding.k_d", "has %d values for %d species", len(kd), cs.Len())
	}
	for i := range ka {
		if cs.BoundIndex(i) < 0 {
			continue
		}
		if !finiteNonNegative(ka[i]) {
			return configErrorf(fmt.Sprintf("binding.k_a[%d]", i), "%g but should be finite and >=0", ka[i])
		}
		if !finiteNonNegative(kd[i]) {
			return configErrorf(fmt.Sprintf("binding.k_d[%d]", i), "%g but should be finite and >=0", kd[i])
		}
		if !kinetic && kd[i] == 0 {
			return configErrorf(fmt.Sprintf("binding.k_d[%d]", i),
				"must be >0 when binding is in equilibrium")
		}
	}
	return nil
}

func checkCapacity(cs *ComponentSystem, qmax []float64) error {
	if len(qmax) != cs.Len() {
		return configErrorf("binding.q_max", "has %d values for %d species", len(qmax), cs.Len())
	}
	for i, v := range qmax {
		if cs.BoundIndex(i) < 0 {
			continue
		}
		if !(v > 0) || math.IsInf(v, 0) {
			return configErrorf(fmt.Sprintf("binding.q_max[%d]", i), "%g but should be finite and >0", v)
		}
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
