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
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// SweepResult is the outcome of one run of a Sweep.
type SweepResult struct {
	Value    float64
	Solution *Solution
	Err      error
	// Retries is the number of times the run was repeated with tighter
	// tolerances after a numerical failure.
	Retries int
}

// Sweep simulates one process for each of a list of parameter values,
// running independent simulations concurrently.
type Sweep struct {
	Simulator *Simulator
	// Build returns the process to simulate for one parameter value.
	Build  func(value float64) (*Process, error)
	Values []float64

	// Workers is the number of concurrent simulations. It defaults to
	// GOMAXPROCS.
	Workers int
	// MaxRetries is the number of times a run that failed numerically is
	// repeated, each time with tolerances ten times tighter.
	MaxRetries int

	Log logrus.FieldLogger
}

// Run performs the sweep. Results are in the order of Values. Run only
// returns an error if the sweep itself is misconfigured; errors of
// individual runs are reported in their results.
func (sw *Sweep) Run(ctx context.Context) ([]SweepResult, error) {
	if sw.Simulator == nil {
		return nil, configErrorf("sweep.simulator", "missing")
	}
	if sw.Build == nil {
		return nil, configErrorf("sweep.build", "missing")
	}
	if len(sw.Values) == 0 {
		return nil, configErrorf("sweep.values", "no values")
	}
	if sw.MaxRetries < 0 {
		return nil, configErrorf("sweep.max_retries", "%d but should be >=0", sw.MaxRetries)
	}
	log := sw.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	nprocs := sw.Workers
	if nprocs <= 0 {
		nprocs = runtime.GOMAXPROCS(0)
	}
	if nprocs > len(sw.Values) {
		nprocs = len(sw.Values)
	}

	results := make([]SweepResult, len(sw.Values))
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = sw.one(ctx, log, sw.Values[i])
			}
		}()
	}
	for i := range sw.Values {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results, nil
}

// one simulates a single parameter value, retrying numerical failures.
func (sw *Sweep) one(ctx context.Context, log logrus.FieldLogger, v float64) SweepResult {
	r := SweepResult{Value: v}
	log = log.WithField("value", v)
	p, err := sw.Build(v)
	if err != nil {
		r.Err = fmt.Errorf("chrom: building process for value %g: %w", v, err)
		return r
	}
	sim := *sw.Simulator
	sim.Log = log
	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(sw.MaxRetries)), ctx)
	err = backoff.RetryNotify(
		func() error {
			if attempt > 0 {
				sim.Tolerances.Abs /= 10
				sim.Tolerances.Rel /= 10
			}
			attempt++
			sol, err := sim.Simulate(ctx, p)
			var cfg *ConfigurationError
			if errors.As(err, &cfg) {
				return backoff.Permanent(err)
			}
			r.Solution = sol
			return err
		},
		b,
		func(err error, _ time.Duration) {
			r.Retries++
			log.WithFields(logrus.Fields{
				"retry": r.Retries,
				"abs":   sim.Tolerances.Abs / 10,
				"rel":   sim.Tolerances.Rel / 10,
			}).Warnf("%v: retrying with tighter tolerances", err)
		},
	)
	r.Err = err
	return r
}
