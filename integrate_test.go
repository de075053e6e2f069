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
	"testing"

	"github.com/spatialmodel/chrom/internal/band"
	"gonum.org/v1/gonum/mat"
)

// linearSystem is M·y' = A·y with dense A and diagonal M.
type linearSystem struct {
	a    *mat.Dense
	mass *mat.BandDense
}

func newLinearSystem(a *mat.Dense, m []float64) *linearSystem {
	n, _ := a.Dims()
	s := &linearSystem{a: a, mass: band.New(n, n-1, n-1)}
	for i, v := range m {
		band.Add(s.mass, i, i, v)
	}
	return s
}

func (s *linearSystem) Len() int { n, _ := s.a.Dims(); return n }

func (s *linearSystem) Func(y, f []float64) {
	mat.NewVecDense(len(f), f).MulVec(s.a, mat.NewVecDense(len(y), y))
}

func (s *linearSystem) Jacobian(y []float64, j *mat.BandDense) {
	n := s.Len()
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			band.Add(j, r, c, s.a.At(r, c))
		}
	}
}

func (s *linearSystem) Mass() *mat.BandDense { return s.mass }
func (s *linearSystem) Linear() bool         { return true }

// integrateTo advances y from 0 to end with r.
func integrateTo(t *testing.T, r *ros2, y []float64, end float64) {
	r.restart()
	r.begin(y)
	h := r.initialStep(y, end)
	var now float64
	for now < end {
		if now+h > end {
			h = end - now
		}
		errNorm, err := r.attempt(y, h)
		if err != nil {
			t.Fatal(err)
		}
		if errNorm > 1 {
			r.Rejected++
			h = nextStep(h, errNorm, true)
			continue
		}
		r.Steps++
		copy(y, r.ynew)
		now += h
		r.begin(y)
		h = nextStep(h, errNorm, false)
	}
}

func TestROS2Decay(t *testing.T) {
	sys := newLinearSystem(mat.NewDense(2, 2, []float64{
		-1, 0,
		0, -1000, // stiff
	}), []float64{1, 1})
	r := newROS2(sys, 1e-8, 1e-6, 10)
	y := []float64{1, 1}
	integrateTo(t, r, y, 1)
	if absDifferent(y[0], math.Exp(-1), 1e-4) {
		t.Errorf("y0: have %g, want %g", y[0], math.Exp(-1))
	}
	if absDifferent(y[1], 0, 1e-6) {
		t.Errorf("y1: have %g, want 0", y[1])
	}
	if r.Steps == 0 || r.Factorizations == 0 || r.JacobianEvals != 1 {
		t.Errorf("statistics: %+v", r.Stats)
	}
}

func TestROS2Algebraic(t *testing.T) {
	// y0' = −y0 with the constraint 0 = 2·y0 − y1.
	sys := newLinearSystem(mat.NewDense(2, 2, []float64{
		-1, 0,
		2, -1,
	}), []float64{1, 0})
	r := newROS2(sys, 1e-8, 1e-6, 10)
	y := []float64{1, 2}
	integrateTo(t, r, y, 2)
	if absDifferent(y[0], math.Exp(-2), 1e-4) {
		t.Errorf("y0: have %g, want %g", y[0], math.Exp(-2))
	}
	if absDifferent(y[1], 2*y[0], 1e-8) {
		t.Errorf("constraint violated: y1 = %g, 2·y0 = %g", y[1], 2*y[0])
	}
}

func TestROS2FactorizationCache(t *testing.T) {
	sys := newLinearSystem(mat.NewDense(1, 1, []float64{-1}), []float64{1})
	r := newROS2(sys, 1e-8, 1e-6, 10)
	y := []float64{1}
	r.begin(y)
	for _, h := range []float64{0.1, 0.2, 0.1, 0.2} {
		if _, err := r.attempt(y, h); err != nil {
			t.Fatal(err)
		}
	}
	if r.Factorizations != 2 || r.CacheHits != 2 {
		t.Errorf("have %d factorizations and %d cache hits, want 2 and 2", r.Factorizations, r.CacheHits)
	}
	r.restart()
	r.begin(y)
	if _, err := r.attempt(y, 0.1); err != nil {
		t.Fatal(err)
	}
	if r.Factorizations != 3 {
		t.Errorf("restart kept a stale factorization")
	}
}

func TestNextStep(t *testing.T) {
	for _, test := range []struct {
		err      float64
		rejected bool
		want     float64
	}{
		{err: 0, want: facMax},
		{err: 1e6, want: facMin},
		{err: 4, rejected: true, want: safety / 2},
		{err: 1e-4, rejected: true, want: 1},
		{err: 0.7, want: 1}, // 0.9/√0.7 ≈ 1.08 is not worth a new factorization.
		{err: 0.25, want: safety / 0.5},
	} {
		if have := nextStep(1, test.err, test.rejected); absDifferent(have, test.want, 1e-12) {
			t.Errorf("err=%g, rejected=%v: have %g, want %g", test.err, test.rejected, have, test.want)
		}
	}
}
