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
	"sort"
	"strings"
)

// EventTarget is the parameter an event changes. The set of targets is
// closed: InletConcentration and InletFlowRate.
type EventTarget interface {
	// UnitName returns the name of the targeted unit.
	UnitName() string
	String() string
	isEventTarget()
}

// InletConcentration targets the feed concentration of an Inlet.
type InletConcentration struct{ Inlet string }

func (InletConcentration) isEventTarget() {}

// UnitName implements EventTarget.
func (t InletConcentration) UnitName() string { return t.Inlet }

func (t InletConcentration) String() string { return t.Inlet + ".c" }

// InletFlowRate targets the volumetric flow rate of an Inlet.
type InletFlowRate struct{ Inlet string }

func (InletFlowRate) isEventTarget() {}

// UnitName implements EventTarget.
func (t InletFlowRate) UnitName() string { return t.Inlet }

func (t InletFlowRate) String() string { return t.Inlet + ".flow_rate" }

// ParseTarget converts a parameter path such as "inlet.c" or
// "flow_sheet.inlet.flow_rate" into an EventTarget.
func ParseTarget(path string) (EventTarget, error) {
	p := strings.TrimPrefix(strings.TrimSpace(path), "flow_sheet.")
	i := strings.LastIndex(p, ".")
	if i <= 0 || i == len(p)-1 {
		return nil, configErrorf("target", "%q is not of the form <unit>.<parameter>", path)
	}
	unit, param := p[:i], p[i+1:]
	switch param {
	case "c":
		return InletConcentration{Inlet: unit}, nil
	case "flow_rate":
		return InletFlowRate{Inlet: unit}, nil
	default:
		return nil, configErrorf("target", "unknown parameter %q in %q; valid parameters are c and flow_rate", param, path)
	}
}

// Event changes the value of a parameter at a given time.
type Event struct {
	Name   string
	Time   float64
	Target EventTarget
	Value  []float64
}

// EventSchedule is the list of events of a process.
type EventSchedule struct {
	events []Event
}

// Add appends an event to the schedule.
func (s *EventSchedule) Add(name string, time float64, target EventTarget, value ...float64) error {
	field := fmt.Sprintf("events[%d]", len(s.events))
	if name != "" {
		field = fmt.Sprintf("events[%s]", name)
	}
	if target == nil {
		return configErrorf(field+".target", "missing")
	}
	if math.IsNaN(time) || math.IsInf(time, 0) || time < 0 {
		return configErrorf(field+".time", "%g but should be finite and >=0", time)
	}
	if len(value) == 0 {
		return configErrorf(field+".value", "missing")
	}
	for i, v := range value {
		if !finiteNonNegative(v) {
			return configErrorf(fmt.Sprintf("%s.value[%d]", field, i), "%g but should be finite and >=0", v)
		}
	}
	s.events = append(s.events, Event{
		Name:   name,
		Time:   time,
		Target: target,
		Value:  append([]float64(nil), value...),
	})
	return nil
}

// AddPath is like Add, but the target is given as a parameter path.
func (s *EventSchedule) AddPath(name string, time float64, path string, value ...float64) error {
	target, err := ParseTarget(path)
	if err != nil {
		ce := err.(*ConfigurationError)
		if name == "" {
			name = fmt.Sprint(len(s.events))
		}
		ce.Field = fmt.Sprintf("events[%s].target", name)
		return ce
	}
	return s.Add(name, time, target, value...)
}

// Len returns the number of events.
func (s *EventSchedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.events)
}

// Events returns the events ordered by time. Events at the same time
// keep the order in which they were added.
func (s *EventSchedule) Events() []Event {
	if s == nil {
		return nil
	}
	o := append([]Event(nil), s.events...)
	sort.SliceStable(o, func(i, j int) bool { return o[i].Time < o[j].Time })
	return o
}

// Breakpoints returns the distinct event times in the open interval
// (0, end), in increasing order.
func (s *EventSchedule) Breakpoints(end float64) []float64 {
	var o []float64
	for _, e := range s.Events() {
		if e.Time <= 0 || e.Time >= end {
			continue
		}
		if len(o) == 0 || o[len(o)-1] != e.Time {
			o = append(o, e.Time)
		}
	}
	return o
}

// Signal returns the piecewise-constant value of target over time.
// Before the first event the value is def; values of length one are
// broadcast to len(def).
func (s *EventSchedule) Signal(target EventTarget, def []float64) *Signal {
	sig := &Signal{def: append([]float64(nil), def...)}
	for _, e := range s.Events() {
		if e.Target != target {
			continue
		}
		v := e.Value
		if len(v) == 1 && len(def) > 1 {
			v = make([]float64, len(def))
			for i := range v {
				v[i] = e.Value[0]
			}
		}
		sig.times = append(sig.times, e.Time)
		sig.values = append(sig.values, v)
	}
	return sig
}

// Signal is a piecewise-constant function of time.
type Signal struct {
	times  []float64
	values [][]float64
	def    []float64
}

// At returns the value in force at time t: the value of the latest
// event with a time less than or equal to t. The returned slice must
// not be modified.
func (s *Signal) At(t float64) []float64 {
	i := sort.Search(len(s.times), func(i int) bool { return s.times[i] > t }) - 1
	if i < 0 {
		return s.def
	}
	return s.values[i]
}

// Scalar returns the first element of At(t).
func (s *Signal) Scalar(t float64) float64 { return s.At(t)[0] }
