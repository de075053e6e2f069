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
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Tolerances are the absolute and relative error tolerances of the
// time integration.
type Tolerances struct {
	Abs, Rel float64
}

// StepState describes the simulation after an accepted integration step.
type StepState struct {
	Process *Process
	// Time is the simulation time after the step and Step is its size.
	Time, Step float64
	Stats      Stats
}

// StepFunc is called after every accepted integration step. Returning
// an error stops the simulation.
type StepFunc func(s *StepState) error

// Log returns a StepFunc that logs the progress of the simulation every
// 'every' steps.
func Log(l logrus.FieldLogger, every int) StepFunc {
	if every < 1 {
		every = 1
	}
	return func(s *StepState) error {
		if s.Stats.Steps%every != 0 {
			return nil
		}
		l.WithFields(logrus.Fields{
			"process":  s.Process.Name,
			"time":     s.Time,
			"progress": fmt.Sprintf("%.1f%%", 100*s.Time/s.Process.CycleTime),
			"step":     s.Step,
			"steps":    s.Stats.Steps,
			"rejected": s.Stats.Rejected,
		}).Info("chrom: integrating")
		return nil
	}
}

// Simulator integrates a Process over one cycle.
type Simulator struct {
	Discretizer
	Tolerances Tolerances

	// NumOutputs is the number of equally spaced output times, including
	// 0 and the cycle time.
	NumOutputs int
	// OutputTimes, if set, replaces the regular output grid. The times
	// must be sorted and lie within the cycle.
	OutputTimes []float64

	// MaxSteps limits the number of accepted steps. MaxRejects limits the
	// number of consecutive rejected steps.
	MaxSteps, MaxRejects int

	// NegativeTolerance is the magnitude below which negative
	// concentrations are considered round-off and not reported.
	NegativeTolerance float64
	// ClampNegative sets negative concentrations to zero after each step.
	ClampNegative bool
	// Strict turns numerical warnings into failures.
	Strict bool
	// Parallel evaluates the units of the flow sheet concurrently.
	Parallel bool

	Log       logrus.FieldLogger
	StepFuncs []StepFunc
}

// NewSimulator returns a simulator with default settings.
func NewSimulator(d Discretizer) *Simulator {
	return &Simulator{
		Discretizer:       d,
		Tolerances:        Tolerances{Abs: 1e-8, Rel: 1e-6},
		NumOutputs:        1001,
		MaxSteps:          1000000,
		MaxRejects:        50,
		NegativeTolerance: 1e-8,
		Log:               logrus.StandardLogger(),
	}
}

// Validate checks the simulator settings.
func (s *Simulator) Validate() error {
	if err := s.Discretizer.Validate(); err != nil {
		return err
	}
	if !(s.Tolerances.Abs > 0) || math.IsInf(s.Tolerances.Abs, 0) {
		return configErrorf("integrator_tolerances.abs", "%g but should be finite and >0", s.Tolerances.Abs)
	}
	if !(s.Tolerances.Rel > 0) || s.Tolerances.Rel >= 1 {
		return configErrorf("integrator_tolerances.rel", "%g but should be in (0, 1)", s.Tolerances.Rel)
	}
	if s.NumOutputs < 2 {
		return configErrorf("simulator.n_outputs", "%d but should be >=2", s.NumOutputs)
	}
	if s.MaxSteps < 1 {
		return configErrorf("simulator.max_steps", "%d but should be >=1", s.MaxSteps)
	}
	if s.MaxRejects < 1 {
		return configErrorf("simulator.max_rejects", "%d but should be >=1", s.MaxRejects)
	}
	if s.NegativeTolerance < 0 {
		return configErrorf("simulator.negative_tolerance", "%g but should be >=0", s.NegativeTolerance)
	}
	return nil
}

func (s *Simulator) outputTimes(end float64) []float64 {
	if len(s.OutputTimes) > 0 {
		return append([]float64(nil), s.OutputTimes...)
	}
	t := floats.Span(make([]float64, s.NumOutputs), 0, end)
	t[len(t)-1] = end
	return t
}

func (s *Simulator) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// run holds the state of one simulation.
type run struct {
	sim *Simulator
	p   *Process
	sys *system
	ode *ros2
	sol *Solution
	log logrus.FieldLogger

	y       []float64
	t, hmin float64
	times   []float64
	next    int // index of the next output time

	in, out   [][]float64 // boundary fluxes by node at t
	cin, cout []float64   // scratch
	negative  map[string]bool
	dispersed map[string]bool
}

// Simulate integrates p over one cycle. The returned Solution holds the
// inlet and outlet traces of every unit at the output times.
//
// Configuration problems are reported as *ConfigurationError and
// integration breakdowns as *NumericalFailure. When ctx is cancelled
// Simulate stops between steps and returns the solution computed so far
// with Complete set to false and a nil error.
func (s *Simulator) Simulate(ctx context.Context, p *Process) (*Solution, error) {
	r, err := s.newRun(p)
	if err != nil {
		return nil, err
	}
	return r.simulate(ctx)
}

// newRun validates s and p and sets up the initial state.
func (s *Simulator) newRun(p *Process) (*run, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for i, t := range s.OutputTimes {
		if t < 0 || t > p.CycleTime || (i > 0 && t < s.OutputTimes[i-1]) {
			return nil, configErrorf("simulator.output_times", "%g at position %d is out of order or outside [0, %g]", t, i, p.CycleTime)
		}
	}
	sys, err := newSystem(p, s.Discretizer)
	if err != nil {
		return nil, err
	}
	sys.parallel = s.Parallel
	r := &run{
		sim:       s,
		p:         p,
		sys:       sys,
		log:       s.logger().WithField("process", p.Name),
		y:         make([]float64, sys.Len()),
		hmin:      1e-12 * math.Max(1, p.CycleTime),
		times:     s.outputTimes(p.CycleTime),
		cin:       make([]float64, sys.cs.Len()),
		cout:      make([]float64, sys.cs.Len()),
		negative:  make(map[string]bool),
		dispersed: make(map[string]bool),
	}
	if sys.Len() > 0 {
		r.ode = newROS2(sys, s.Tolerances.Abs, s.Tolerances.Rel, s.MaxRejects)
	}
	r.sol = newSolution(p, sys)
	for range sys.nodes {
		r.in = append(r.in, make([]float64, sys.cs.Len()))
		r.out = append(r.out, make([]float64, sys.cs.Len()))
	}
	sys.initialState(r.y)
	r.setInitial()

	for _, e := range p.IgnoredEvents() {
		r.warn(NumericalWarning{
			Time: e.Time,
			Unit: e.Target.UnitName(),
			Kind: IgnoredEvent,
			Msg:  fmt.Sprintf("event %q at %g is after the end of the cycle at %g", e.Name, e.Time, p.CycleTime),
		})
	}

	return r, nil
}

func (r *run) simulate(ctx context.Context) (*Solution, error) {
	r.log.WithFields(logrus.Fields{
		"states":     r.sys.Len(),
		"bandwidth":  fmt.Sprintf("%d/%d", r.sys.kl, r.sys.ku),
		"cycle_time": r.p.CycleTime,
		"events":     r.p.Events.Len(),
	}).Debug("chrom: starting simulation")

	seg := r.p.segments()
	for k := 0; k < len(seg)-1; k++ {
		if err := r.segment(ctx, seg[k], seg[k+1]); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				r.log.WithField("time", r.t).Warn("chrom: simulation cancelled")
				return r.finish(false), nil
			}
			return nil, err
		}
	}
	return r.finish(true), nil
}

func (r *run) warn(w NumericalWarning) {
	r.sol.Warnings = append(r.sol.Warnings, w)
	r.log.WithFields(logrus.Fields{
		"time": w.Time,
		"unit": w.Unit,
		"kind": w.Kind,
	}).Warn(w.Msg)
}

func (r *run) failure(reason string, err error) *NumericalFailure {
	f := &NumericalFailure{
		Time:   r.t,
		State:  append([]float64(nil), r.y...),
		Reason: reason,
		Err:    err,
	}
	r.log.WithField("time", r.t).Error(f.Error())
	return f
}

// fluxes sets the boundary fluxes of every node for state y.
func (r *run) fluxes(y []float64) {
	for i, nd := range r.sys.nodes {
		r.sys.inlet(nd, y, r.cin)
		r.sys.outlet(nd, y, r.cout)
		for ii := range r.cin {
			r.in[i][ii] = nd.flow * r.cin[ii]
			r.out[i][ii] = nd.flow * r.cout[ii]
		}
	}
}

// accumulate adds the boundary fluxes over a step of size h to the mass
// balance, by the trapezoidal rule.
func (r *run) accumulate(y []float64, h float64) {
	for i := range r.sys.nodes {
		mb := r.sol.mass[i]
		for ii := range r.cin {
			mb.In[ii] += 0.5 * h * r.in[i][ii]
			mb.Out[ii] += 0.5 * h * r.out[i][ii]
		}
	}
	r.fluxes(y)
	for i := range r.sys.nodes {
		mb := r.sol.mass[i]
		for ii := range r.cin {
			mb.In[ii] += 0.5 * h * r.in[i][ii]
			mb.Out[ii] += 0.5 * h * r.out[i][ii]
		}
	}
}

// checkDispersion warns once per column when the axial cells are too
// coarse for the flow rate of the current segment.
func (r *run) checkDispersion() {
	for _, nd := range r.sys.nodes {
		if nd.column == nil || !(nd.flow > 0) || r.dispersed[nd.unit.Name()] {
			continue
		}
		col := nd.column.Column()
		pe, num := col.PecletNumber(nd.flow), nd.column.NumericalPeclet()
		if pe <= num {
			continue
		}
		r.dispersed[nd.unit.Name()] = true
		msg := fmt.Sprintf("axial Peclet number %.4g exceeds 2·n_x = %g", pe, num)
		if n := CellsForPeclet(pe); n > 0 {
			msg += fmt.Sprintf("; n_x >= %d keeps numerical dispersion below D_ax", n)
		}
		r.warn(NumericalWarning{
			Time: r.t,
			Unit: nd.unit.Name(),
			Kind: NumericalDispersion,
			Msg:  msg,
		})
	}
}

func (r *run) setInitial() {
	for i, nd := range r.sys.nodes {
		r.sys.retained(nd, r.y, r.sol.mass[i].Initial)
	}
}

// recordAt appends the inlet and outlet values of every unit at time t
// to the solution.
func (r *run) recordAt(t float64) {
	s := r.sol
	s.Time = append(s.Time, t)
	for i, nd := range r.sys.nodes {
		r.sys.inlet(nd, r.y, r.cin)
		r.sys.outlet(nd, r.y, r.cout)
		u := s.units[i]
		u.InletFlow = append(u.InletFlow, nd.flow)
		u.OutletFlow = append(u.OutletFlow, nd.flow)
		u.Inlet = append(u.Inlet, append([]float64(nil), r.cin...))
		u.Outlet = append(u.Outlet, append([]float64(nil), r.cout...))
	}
}

// record stores outputs at all output times up to r.t.
func (r *run) record() {
	for r.next < len(r.times) && r.times[r.next] <= r.t {
		r.recordAt(r.times[r.next])
		r.next++
	}
}

// segment integrates from a to b with the inlet conditions in force at a.
func (r *run) segment(ctx context.Context, a, b float64) error {
	if err := r.sys.setSegment(a); err != nil {
		return err
	}
	r.t = a
	r.checkDispersion()
	r.fluxes(r.y)
	r.record()
	if r.ode == nil {
		// Nothing to integrate: the outputs only depend on the inlets.
		for r.next < len(r.times) && r.times[r.next] <= b {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.t = r.times[r.next]
			r.record()
		}
		r.t = b
		r.accumulate(r.y, b-a)
		return nil
	}
	r.ode.restart()
	r.ode.begin(r.y)
	h := math.Min(math.Max(r.ode.initialStep(r.y, b-a), 100*r.hmin), b-a)
	rejects := 0
	for r.t < b {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.ode.Steps >= r.sim.MaxSteps {
			return r.failure(fmt.Sprintf("exceeded %d steps", r.sim.MaxSteps), nil)
		}
		target := b
		if r.next < len(r.times) && r.times[r.next] < b {
			target = r.times[r.next]
		}
		step := h
		clipped := false
		if r.t+1.01*h >= target {
			step = target - r.t
			clipped = true
		}
		errNorm, err := r.ode.attempt(r.y, step)
		if err != nil || errNorm > 1 {
			floor := step <= r.hmin
			if floor && err == nil {
				w := NumericalWarning{
					Time: r.t,
					Kind: StepFloor,
					Msg:  fmt.Sprintf("step size %g at the lower limit; accepting error estimate %.3g", step, errNorm),
				}
				if r.sim.Strict {
					return r.failure(w.Msg, nil)
				}
				r.warn(w)
			} else {
				r.ode.Rejected++
				rejects++
				if rejects > r.ode.maxRejects {
					return r.failure(fmt.Sprintf("%d consecutive rejected steps", rejects), err)
				}
				if floor {
					return r.failure("step size at the lower limit", err)
				}
				if err != nil {
					h = step / 4
				} else {
					h = nextStep(step, errNorm, true)
				}
				h = math.Max(h, r.hmin)
				continue
			}
		}
		rejects = 0
		r.ode.Steps++
		copy(r.y, r.ode.ynew)
		if clipped {
			r.t = target
		} else {
			r.t += step
		}
		if err := r.checkNegative(); err != nil {
			return err
		}
		r.ode.begin(r.y)
		r.accumulate(r.y, step)
		r.record()
		for _, f := range r.sim.StepFuncs {
			if err := f(&StepState{Process: r.p, Time: r.t, Step: step, Stats: r.ode.Stats}); err != nil {
				return fmt.Errorf("chrom: step function: %w", err)
			}
		}
		hn := math.Max(nextStep(step, errNorm, false), r.hmin)
		if clipped && hn < h {
			hn = h
		}
		h = hn
	}
	return nil
}

// checkNegative reports concentrations below -NegativeTolerance and
// clamps negative values if requested.
func (r *run) checkNegative() error {
	for _, nd := range r.sys.nodes {
		if !nd.stateful() {
			continue
		}
		yy := r.y[nd.offset : nd.offset+nd.n]
		if lo := floats.Min(yy); lo < -r.sim.NegativeTolerance && !r.negative[nd.unit.Name()] {
			w := NumericalWarning{
				Time: r.t,
				Unit: nd.unit.Name(),
				Kind: NegativeConcentration,
				Msg:  fmt.Sprintf("concentration %g in unit %q", lo, nd.unit.Name()),
			}
			if r.sim.Strict {
				return r.failure(w.Msg, nil)
			}
			r.negative[nd.unit.Name()] = true
			r.warn(w)
		}
		if r.sim.ClampNegative {
			for i, v := range yy {
				if v < 0 {
					yy[i] = 0
				}
			}
		}
	}
	return nil
}

func (r *run) setFinal() {
	r.sol.EndTime = r.t
	for i, nd := range r.sys.nodes {
		r.sys.retained(nd, r.y, r.sol.mass[i].Final)
		if nd.column != nil {
			r.sol.cols[nd.unit.Name()] = newColumnState(nd.column, r.y[nd.offset:nd.offset+nd.n])
		}
	}
}

func (r *run) finish(complete bool) *Solution {
	r.sol.Complete = complete
	if r.ode != nil {
		r.sol.Stats = r.ode.Stats
	}
	r.setFinal()
	r.log.WithFields(logrus.Fields{
		"time":     r.t,
		"complete": complete,
		"steps":    r.sol.Stats.Steps,
		"rejected": r.sol.Stats.Rejected,
		"warnings": len(r.sol.Warnings),
	}).Info("chrom: simulation finished")
	return r.sol
}
