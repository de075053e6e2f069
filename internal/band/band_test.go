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

package band

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func absDifferent(a, b, tolerance float64) bool {
	return math.Abs(a-b) > tolerance || math.IsNaN(a) || math.IsNaN(b)
}

// testMatrix returns a diagonally dominant banded matrix.
func testMatrix(n, kl, ku int, rnd *rand.Rand) *mat.BandDense {
	m := New(n, kl, ku)
	kl, ku = m.Bandwidth()
	for i := 0; i < n; i++ {
		var sum float64
		for j := max(0, i-kl); j <= min(n-1, i+ku); j++ {
			if i == j {
				continue
			}
			v := rnd.Float64() - 0.5
			Add(m, i, j, v)
			sum += math.Abs(v)
		}
		Add(m, i, i, sum+1+rnd.Float64())
	}
	return m
}

func TestLUSolve(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, test := range []struct{ n, kl, ku int }{
		{n: 1, kl: 0, ku: 0},
		{n: 5, kl: 1, ku: 1},
		{n: 12, kl: 3, ku: 2},
		{n: 40, kl: 7, ku: 7},
		{n: 6, kl: 10, ku: 10},
	} {
		t.Run(fmt.Sprintf("n%d_kl%d_ku%d", test.n, test.kl, test.ku), func(t *testing.T) {
			a := testMatrix(test.n, test.kl, test.ku, rnd)
			b := make([]float64, test.n)
			for i := range b {
				b[i] = rnd.Float64()
			}
			want := mat.NewVecDense(test.n, nil)
			if err := want.SolveVec(mat.DenseCopyOf(a), mat.NewVecDense(test.n, append([]float64{}, b...))); err != nil {
				t.Fatal(err)
			}
			var lu LU
			if err := lu.Factorize(a); err != nil {
				t.Fatal(err)
			}
			x := append([]float64{}, b...)
			lu.Solve(x)
			for i := range x {
				if absDifferent(x[i], want.AtVec(i), 1e-12) {
					t.Errorf("x[%d]: have %g, want %g", i, x[i], want.AtVec(i))
				}
			}
			// The factorization must leave its input alone.
			check := make([]float64, test.n)
			MulVec(check, a, x)
			for i := range check {
				if absDifferent(check[i], b[i], 1e-12) {
					t.Errorf("residual row %d: have %g, want %g", i, check[i], b[i])
				}
			}
		})
	}
}

func TestLUSingular(t *testing.T) {
	a := New(3, 1, 1)
	Add(a, 0, 0, 1)
	Add(a, 2, 2, 1)
	var lu LU
	if err := lu.Factorize(a); err != ErrSingular {
		t.Errorf("have %v, want %v", err, ErrSingular)
	}
}

func TestAddScaled(t *testing.T) {
	a := New(4, 1, 1)
	b := New(4, 1, 1)
	for i := 0; i < 4; i++ {
		Add(a, i, i, 1)
		if i > 0 {
			Add(b, i, i-1, 2)
		}
	}
	dst := New(4, 1, 1)
	AddScaled(dst, a, -0.5, b)
	for i := 0; i < 4; i++ {
		if dst.At(i, i) != 1 {
			t.Errorf("diagonal %d: have %g", i, dst.At(i, i))
		}
		if i > 0 && dst.At(i, i-1) != -1 {
			t.Errorf("subdiagonal %d: have %g", i, dst.At(i, i-1))
		}
	}
	c := New(4, 1, 1)
	Copy(c, dst)
	if !mat.Equal(c, dst) {
		t.Error("copy differs")
	}
}

func TestAddOutsideBand(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Add(New(4, 1, 1), 0, 3, 1)
}
