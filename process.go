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

// Process is a flow sheet operated according to an event schedule for
// one cycle. A Process must not be modified once it has been built.
type Process struct {
	Name      string
	FlowSheet *FlowSheet
	Events    *EventSchedule
	CycleTime float64
}

// NewProcess checks the flow sheet invariants and the event schedule and
// returns a process. A nil schedule is treated as empty.
func NewProcess(name string, fs *FlowSheet, events *EventSchedule, cycleTime float64) (*Process, error) {
	if events == nil {
		events = new(EventSchedule)
	}
	p := &Process{Name: name, FlowSheet: fs, Events: events, CycleTime: cycleTime}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the process configuration.
func (p *Process) Validate() error {
	if p.FlowSheet == nil {
		return configErrorf("flow_sheet", "missing")
	}
	if !(p.CycleTime > 0) || math.IsInf(p.CycleTime, 0) {
		return configErrorf("cycle_time", "%g but should be finite and >0", p.CycleTime)
	}
	for _, u := range p.FlowSheet.units {
		if err := u.Validate(); err != nil {
			return err
		}
	}
	if err := p.FlowSheet.Validate(); err != nil {
		return err
	}
	ncomp := p.FlowSheet.cs.Len()
	for i, e := range p.Events.events {
		field := fmt.Sprintf("events[%d]", i)
		if e.Name != "" {
			field = fmt.Sprintf("events[%s]", e.Name)
		}
		u := p.FlowSheet.Unit(e.Target.UnitName())
		if u == nil {
			return configErrorf(field+".target", "unknown unit %q", e.Target.UnitName())
		}
		if _, ok := u.(*Inlet); !ok {
			return configErrorf(field+".target", "unit %q is not an inlet", u.Name())
		}
		switch e.Target.(type) {
		case InletConcentration:
			if len(e.Value) != 1 && len(e.Value) != ncomp {
				return configErrorf(field+".value", "has %d values for %d species", len(e.Value), ncomp)
			}
		case InletFlowRate:
			if len(e.Value) != 1 {
				return configErrorf(field+".value", "a flow rate takes a single value, not %d", len(e.Value))
			}
		}
	}
	return nil
}

// IgnoredEvents returns the events scheduled after the end of the cycle.
func (p *Process) IgnoredEvents() []Event {
	var o []Event
	for _, e := range p.Events.Events() {
		if e.Time > p.CycleTime {
			o = append(o, e)
		}
	}
	return o
}

// segments returns the boundaries of the intervals between events,
// starting at 0 and ending at the cycle time.
func (p *Process) segments() []float64 {
	return append(append([]float64{0}, p.Events.Breakpoints(p.CycleTime)...), p.CycleTime)
}

// inletSignals holds the time-dependent parameters of one inlet.
type inletSignals struct {
	c, flow *Signal
}

func (p *Process) signals() map[string]inletSignals {
	o := make(map[string]inletSignals)
	for _, u := range p.FlowSheet.units {
		in, ok := u.(*Inlet)
		if !ok {
			continue
		}
		o[in.Name()] = inletSignals{
			c:    p.Events.Signal(InletConcentration{Inlet: in.Name()}, in.defaultConcentration()),
			flow: p.Events.Signal(InletFlowRate{Inlet: in.Name()}, []float64{in.FlowRate}),
		}
	}
	return o
}
