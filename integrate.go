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
	"math"

	"github.com/golang/groupcache/lru"
	"github.com/spatialmodel/chrom/internal/band"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// odeSystem is a system M·y' = F(y) with a constant, possibly singular,
// banded mass matrix M.
type odeSystem interface {
	Len() int
	Func(y, f []float64)
	Jacobian(y []float64, j *mat.BandDense)
	Mass() *mat.BandDense
	// Linear reports whether the Jacobian is independent of y.
	Linear() bool
}

// Stats counts the work done by the integrator.
type Stats struct {
	Steps          int
	Rejected       int
	FuncEvals      int
	JacobianEvals  int
	Factorizations int
	CacheHits      int
}

// gamma is the diagonal coefficient of the ROS2 method, 1 + 1/√2, which
// makes it L-stable.
var gamma = 1 + 1/math.Sqrt2

const (
	safety     = 0.9
	facMin     = 0.2
	facMax     = 5.
	keepFactor = 1.2 // step size increases smaller than this are skipped.
	luCacheLen = 8
)

var errNonFinite = errors.New("non-finite value in state")

// ros2 integrates an odeSystem with the second-order, L-stable
// Rosenbrock method of Verwer et al. (1999),
//
//	(M − γhJ)·k1 = F(yn)
//	(M − γhJ)·k2 = F(yn + h·k1) − 2M·k1
//	yn+1 = yn + 3/2·h·k1 + 1/2·h·k2
//
// with the embedded first-order solution yn + h·k1 used for step size
// control.
type ros2 struct {
	sys        odeSystem
	atol, rtol float64
	maxRejects int

	jac, iter *mat.BandDense
	jacValid  bool
	lu        *band.LU
	luH       float64
	cache     *lru.Cache

	f0, f1, k1, k2, tmp, ynew []float64

	Stats
}

func newROS2(sys odeSystem, atol, rtol float64, maxRejects int) *ros2 {
	n := sys.Len()
	m := sys.Mass()
	kl, ku := m.Bandwidth()
	r := &ros2{
		sys:        sys,
		atol:       atol,
		rtol:       rtol,
		maxRejects: maxRejects,
		jac:        band.New(n, kl, ku),
		iter:       band.New(n, kl, ku),
		f0:         make([]float64, n),
		f1:         make([]float64, n),
		k1:         make([]float64, n),
		k2:         make([]float64, n),
		tmp:        make([]float64, n),
		ynew:       make([]float64, n),
	}
	if sys.Linear() {
		r.cache = lru.New(luCacheLen)
	}
	return r
}

// restart discards everything computed from the previous forcing. It
// must be called whenever the right-hand side changes discontinuously.
func (r *ros2) restart() {
	r.jacValid = false
	r.lu = nil
	if r.cache != nil {
		r.cache.Clear()
	}
}

// factorize prepares the LU factorization of M − γhJ.
func (r *ros2) factorize(h float64) error {
	if r.lu != nil && r.luH == h {
		return nil
	}
	if r.cache != nil {
		if lu, ok := r.cache.Get(h); ok {
			r.lu, r.luH = lu.(*band.LU), h
			r.CacheHits++
			return nil
		}
	}
	band.AddScaled(r.iter, r.sys.Mass(), -gamma*h, r.jac)
	lu := new(band.LU)
	if err := lu.Factorize(r.iter); err != nil {
		r.lu = nil
		return err
	}
	r.Factorizations++
	r.lu, r.luH = lu, h
	if r.cache != nil {
		r.cache.Add(h, lu)
	}
	return nil
}

// wrms returns the weighted root mean square norm of e.
func (r *ros2) wrms(e, y0, y1 []float64) float64 {
	var sum float64
	for i, v := range e {
		sc := r.atol + r.rtol*math.Max(math.Abs(y0[i]), math.Abs(y1[i]))
		sum += (v / sc) * (v / sc)
	}
	return math.Sqrt(sum / float64(len(e)))
}

// initialStep estimates a first step size for the interval length span.
// begin must have been called with y.
func (r *ros2) initialStep(y []float64, span float64) float64 {
	d := r.wrms(r.f0, y, y)
	h := 1e-6
	if d > 1e-5 {
		h = 0.01 / d
	}
	return math.Min(h, span)
}

// begin evaluates F at the start of a new step from y. For nonlinear
// systems it also marks the Jacobian for re-evaluation.
func (r *ros2) begin(y []float64) {
	r.sys.Func(y, r.f0)
	r.FuncEvals++
	if !r.sys.Linear() {
		r.jacValid = false
	}
}

// attempt tries one step of size h from y. It stores the candidate in
// r.ynew and returns the scaled error norm. begin must have been called
// with y.
func (r *ros2) attempt(y []float64, h float64) (float64, error) {
	if !r.jacValid {
		r.jac.Zero()
		r.sys.Jacobian(y, r.jac)
		r.JacobianEvals++
		r.jacValid = true
		r.lu = nil
		if r.cache != nil {
			r.cache.Clear()
		}
	}
	if err := r.factorize(h); err != nil {
		return math.Inf(1), err
	}
	copy(r.k1, r.f0)
	r.lu.Solve(r.k1)

	copy(r.tmp, y)
	floats.AddScaled(r.tmp, h, r.k1)
	r.sys.Func(r.tmp, r.f1)
	r.FuncEvals++
	band.MulVec(r.k2, r.sys.Mass(), r.k1)
	floats.AddScaledTo(r.k2, r.f1, -2, r.k2)
	r.lu.Solve(r.k2)

	copy(r.ynew, y)
	floats.AddScaled(r.ynew, 1.5*h, r.k1)
	floats.AddScaled(r.ynew, 0.5*h, r.k2)
	if !allFinite(r.ynew) {
		return math.Inf(1), errNonFinite
	}
	for i := range r.tmp {
		r.tmp[i] = 0.5 * h * (r.k1[i] + r.k2[i])
	}
	return r.wrms(r.tmp, y, r.ynew), nil
}

// nextStep returns the step size suggested after a step of size h with
// error norm err.
func nextStep(h, err float64, rejected bool) float64 {
	fac := facMax
	if err > 0 {
		fac = safety / math.Sqrt(err)
	}
	fac = math.Max(facMin, math.Min(fac, facMax))
	if rejected {
		fac = math.Min(fac, 1)
	} else if fac >= 1 && fac < keepFactor {
		fac = 1
	}
	return h * fac
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
