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

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Moments are the statistical moments of a concentration trace c(t):
// the zeroth moment ∫c dt, the mean time ∫t·c dt / ∫c dt and the second
// central moment ∫(t−Mean)²·c dt / ∫c dt.
type Moments struct {
	Zeroth, Mean, Variance float64
}

// TraceMoments returns the moments of the sampled trace c(t), integrated
// with the trapezoidal rule.
func TraceMoments(t, c []float64) (Moments, error) {
	if len(t) != len(c) {
		return Moments{}, fmt.Errorf("chrom: %d times but %d concentrations", len(t), len(c))
	}
	if len(t) < 2 {
		return Moments{}, fmt.Errorf("chrom: need at least 2 samples for moments, have %d", len(t))
	}
	m := Moments{Zeroth: integrate.Trapezoidal(t, c)}
	if m.Zeroth == 0 {
		return m, nil
	}
	// The trapezoidal rule is a weighted sum of the samples, so the
	// normalized moments are weighted population statistics of t.
	w := make([]float64, len(t))
	for i := range t {
		var dt float64
		if i > 0 {
			dt += t[i] - t[i-1]
		}
		if i < len(t)-1 {
			dt += t[i+1] - t[i]
		}
		w[i] = 0.5 * dt * c[i]
	}
	m.Mean, m.Variance = stat.PopMeanVariance(t, w)
	return m, nil
}

// Moments returns the moments of the outlet trace of species ii of the
// named unit.
func (s *Solution) Moments(unit string, ii int) (Moments, error) {
	u := s.Unit(unit)
	if u == nil {
		return Moments{}, fmt.Errorf("chrom: no unit named %q in solution", unit)
	}
	if ii < 0 || ii >= s.Process.FlowSheet.Components().Len() {
		return Moments{}, fmt.Errorf("chrom: species index %d out of range", ii)
	}
	return TraceMoments(s.Time, u.OutletTrace(ii))
}

// AnalyticMoments returns the moments of the outlet trace of species ii
// when a rectangular pulse of concentration c0 and duration tInj enters
// col at a constant flow rate. Binding must be linear. The result is
// the moment solution of the General Rate Model (Kučera, 1965; Miyabe &
// Guiochon, 2003) with the pulse moments added.
func AnalyticMoments(col *Column, ii int, flowRate, c0, tInj float64) (Moments, error) {
	if err := col.Validate(); err != nil {
		return Moments{}, err
	}
	if ii < 0 || ii >= col.Components().Len() {
		return Moments{}, fmt.Errorf("chrom: species index %d out of range", ii)
	}
	if !(flowRate > 0) {
		return Moments{}, fmt.Errorf("chrom: flow rate %g should be >0", flowRate)
	}
	var henry, kd float64
	if col.Components().BoundIndex(ii) >= 0 {
		l, ok := col.Binding.(*Linear)
		if !ok {
			return Moments{}, fmt.Errorf("chrom: analytic moments need linear binding, not %T", col.Binding)
		}
		if l.Kd(ii) == 0 {
			return Moments{}, fmt.Errorf("chrom: analytic moments need a nonzero desorption rate for species %d", ii)
		}
		henry, kd = l.Henry(ii), l.Kd(ii)
		if !l.Kinetic() {
			kd = math.Inf(1)
		}
	}
	epsC, epsP := col.BedPorosity, col.ParticlePorosity
	rp := col.ParticleRadius
	u := col.InterstitialVelocity(flowRate)
	phase := (1 - epsC) / epsC
	capacity := epsP + (1-epsP)*henry

	// Without film or pore diffusion nothing enters the particles and the
	// column behaves as a dispersed plug flow through the bulk volume.
	var delta0, delta1 float64
	if col.FilmDiffusion > 0 && col.PoreDiffusion > 0 {
		delta0 = phase * capacity
		transfer := rp/(3*col.FilmDiffusion) + rp*rp/(15*epsP*col.PoreDiffusion)
		delta1 = phase * capacity * capacity * transfer
		if henry > 0 && !math.IsInf(kd, 1) {
			delta1 += phase * (1 - epsP) * henry / kd
		}
	}
	tau := col.Length / u
	return Moments{
		Zeroth:   c0 * tInj,
		Mean:     tau*(1+delta0) + tInj/2,
		Variance: 2*tau*(delta1+col.AxialDispersion/(u*u)*(1+delta0)*(1+delta0)) + tInj*tInj/12,
	}, nil
}
