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
)

// ConfigurationError reports an invalid or missing parameter, or a
// violated flow sheet invariant. It is raised before any numerical work
// starts and retrying cannot fix it.
type ConfigurationError struct {
	// Field is the path of the offending parameter, e.g.
	// "units[column].bed_porosity".
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("chrom: invalid configuration: %s: %s", e.Field, e.Msg)
}

func configErrorf(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// NumericalFailure is returned when the time integration of a run
// cannot continue. Time and State hold the last accepted point.
type NumericalFailure struct {
	Time   float64
	State  []float64
	Reason string
	Err    error
}

func (e *NumericalFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chrom: numerical failure at t=%g: %s: %v", e.Time, e.Reason, e.Err)
	}
	return fmt.Sprintf("chrom: numerical failure at t=%g: %s", e.Time, e.Reason)
}

func (e *NumericalFailure) Unwrap() error { return e.Err }

// WarningKind classifies a NumericalWarning.
type WarningKind int

const (
	// NegativeConcentration means a concentration fell below
	// -NegativeTolerance.
	NegativeConcentration WarningKind = iota
	// StepFloor means the step size reached its lower bound and a
	// step was accepted without meeting the error tolerance.
	StepFloor
	// IgnoredEvent means an event was scheduled after the end of the
	// cycle and never took effect.
	IgnoredEvent
	// NumericalDispersion means the upwind discretization of a column
	// adds more axial dispersion than the column's own D_ax.
	NumericalDispersion
)

func (k WarningKind) String() string {
	switch k {
	case NegativeConcentration:
		return "negative concentration"
	case StepFloor:
		return "step size floor"
	case IgnoredEvent:
		return "ignored event"
	case NumericalDispersion:
		return "numerical dispersion"
	default:
		return fmt.Sprintf("WarningKind(%d)", int(k))
	}
}

// NumericalWarning is a non-fatal condition recorded during a run.
type NumericalWarning struct {
	Time float64
	Unit string
	Kind WarningKind
	Msg  string
}

func (w NumericalWarning) String() string {
	if w.Unit == "" {
		return fmt.Sprintf("t=%g: %v: %s", w.Time, w.Kind, w.Msg)
	}
	return fmt.Sprintf("t=%g: %s: %v: %s", w.Time, w.Unit, w.Kind, w.Msg)
}
