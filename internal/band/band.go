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

// Package band holds helpers for square banded matrices stored in the
// gonum BandDense layout, including an in-place LU factorization without
// pivoting for the diagonally dominant iteration matrices that arise in
// implicit time stepping.
package band

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a zero or non-finite pivot is encountered.
var ErrSingular = errors.New("band: matrix is singular to working precision")

// New returns a zeroed n×n banded matrix. The bandwidths are clamped
// to n-1.
func New(n, kl, ku int) *mat.BandDense {
	if kl > n-1 {
		kl = n - 1
	}
	if ku > n-1 {
		ku = n - 1
	}
	return mat.NewBandDense(n, n, kl, ku, nil)
}

// index returns the location of element (i, j) in the band storage,
// or -1 if it falls outside the band.
func index(b blas64.Band, i, j int) int {
	d := j - i
	if d < -b.KL || d > b.KU {
		return -1
	}
	return i*b.Stride + b.KL + d
}

// Add adds v to element (i, j) of m. It panics if (i, j) is outside
// the band.
func Add(m *mat.BandDense, i, j int, v float64) {
	b := m.RawBand()
	k := index(b, i, j)
	if k < 0 {
		panic(mat.ErrBandSet)
	}
	b.Data[k] += v
}

// Copy copies the contents of src into dst, which must have
// identical dimensions and bandwidths.
func Copy(dst, src *mat.BandDense) {
	d, s := dst.RawBand(), src.RawBand()
	if d.Rows != s.Rows || d.KL != s.KL || d.KU != s.KU {
		panic(mat.ErrShape)
	}
	copy(d.Data, s.Data)
}

// AddScaled sets dst = a + alpha·b for matrices of identical shape.
func AddScaled(dst, a *mat.BandDense, alpha float64, b *mat.BandDense) {
	d, ra, rb := dst.RawBand(), a.RawBand(), b.RawBand()
	if d.Rows != ra.Rows || d.Rows != rb.Rows || d.KL != ra.KL || d.KL != rb.KL ||
		d.KU != ra.KU || d.KU != rb.KU {
		panic(mat.ErrShape)
	}
	for i, v := range ra.Data {
		d.Data[i] = v + alpha*rb.Data[i]
	}
}

// MulVec sets dst = m·x.
func MulVec(dst []float64, m *mat.BandDense, x []float64) {
	b := m.RawBand()
	blas64.Gbmv(blas.NoTrans, 1, b,
		blas64.Vector{N: len(x), Data: x, Inc: 1}, 0,
		blas64.Vector{N: len(dst), Data: dst, Inc: 1})
}

// LU is an LU factorization of a banded matrix computed without row
// interchanges, so L keeps the lower bandwidth and U keeps the upper
// bandwidth of the original matrix.
type LU struct {
	f blas64.Band
}

// Factorize computes the factorization of a, leaving a unchanged.
func (lu *LU) Factorize(a *mat.BandDense) error {
	src := a.RawBand()
	if src.Rows != src.Cols {
		return mat.ErrSquare
	}
	if cap(lu.f.Data) < len(src.Data) {
		lu.f.Data = make([]float64, len(src.Data))
	}
	lu.f = blas64.Band{
		Rows: src.Rows, Cols: src.Cols,
		KL: src.KL, KU: src.KU,
		Stride: src.Stride,
		Data:   lu.f.Data[:len(src.Data)],
	}
	copy(lu.f.Data, src.Data)

	f := lu.f
	n := f.Rows
	for k := 0; k < n; k++ {
		piv := f.Data[index(f, k, k)]
		if piv == 0 || math.IsNaN(piv) || math.IsInf(piv, 0) {
			return ErrSingular
		}
		iend := min(n-1, k+f.KL)
		jend := min(n-1, k+f.KU)
		for i := k + 1; i <= iend; i++ {
			ik := index(f, i, k)
			l := f.Data[ik] / piv
			f.Data[ik] = l
			if l == 0 {
				continue
			}
			row := i*f.Stride + f.KL - i
			krow := k*f.Stride + f.KL - k
			for j := k + 1; j <= jend; j++ {
				f.Data[row+j] -= l * f.Data[krow+j]
			}
		}
	}
	return nil
}

// Solve overwrites x with the solution of A·x = b, where b is the
// initial content of x.
func (lu *LU) Solve(x []float64) {
	f := lu.f
	n := f.Rows
	if len(x) != n {
		panic(mat.ErrShape)
	}
	for i := 1; i < n; i++ {
		row := i*f.Stride + f.KL - i
		s := x[i]
		for j := max(0, i-f.KL); j < i; j++ {
			s -= f.Data[row+j] * x[j]
		}
		x[i] = s
	}
	for i := n - 1; i >= 0; i-- {
		row := i*f.Stride + f.KL - i
		s := x[i]
		for j := i + 1; j <= min(n-1, i+f.KU); j++ {
			s -= f.Data[row+j] * x[j]
		}
		x[i] = s / f.Data[row+i]
	}
}
