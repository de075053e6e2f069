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
	"reflect"
	"testing"

	"github.com/kr/pretty"
)

func TestEventOrder(t *testing.T) {
	var s EventSchedule
	target := InletConcentration{Inlet: "feed"}
	for _, e := range []struct {
		name string
		time float64
		v    float64
	}{
		{"wash", 1200, 0},
		{"load", 0, 1},
		{"elute", 3000, 0.5},
		{"elute2", 3000, 0.7},
	} {
		if err := s.Add(e.name, e.time, target, e.v); err != nil {
			t.Fatal(err)
		}
	}
	var names []string
	for _, e := range s.Events() {
		names = append(names, e.Name)
	}
	want := []string{"load", "wash", "elute", "elute2"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("order: have %v, want %v", names, want)
	}

	sig := s.Signal(target, []float64{0, 0})
	for _, test := range []struct {
		t    float64
		want []float64
	}{
		{0, []float64{1, 1}},
		{1199.9, []float64{1, 1}},
		{1200, []float64{0, 0}},
		{2999, []float64{0, 0}},
		// Of two events at the same time, the one added last wins.
		{3000, []float64{0.7, 0.7}},
		{1e6, []float64{0.7, 0.7}},
	} {
		if have := sig.At(test.t); !reflect.DeepEqual(have, test.want) {
			t.Errorf("t=%g: have %v, want %v", test.t, have, test.want)
		}
	}

	if have, want := s.Breakpoints(6000), []float64{1200, 3000}; !reflect.DeepEqual(have, want) {
		t.Errorf("breakpoints: have %v, want %v", have, want)
	}
	if have := s.Breakpoints(2000); !reflect.DeepEqual(have, []float64{1200}) {
		t.Errorf("breakpoints before 2000: have %v", have)
	}
}

func TestSignalDefault(t *testing.T) {
	var s EventSchedule
	if err := s.Add("", 100, InletFlowRate{Inlet: "feed"}, 2e-8); err != nil {
		t.Fatal(err)
	}
	c := s.Signal(InletConcentration{Inlet: "feed"}, []float64{0})
	if c.Scalar(500) != 0 {
		t.Errorf("concentration: have %g, want the default 0", c.Scalar(500))
	}
	q := s.Signal(InletFlowRate{Inlet: "feed"}, []float64{1e-8})
	if q.Scalar(99) != 1e-8 || q.Scalar(100) != 2e-8 {
		t.Errorf("flow rate: have %g before and %g after the event", q.Scalar(99), q.Scalar(100))
	}
	var empty *EventSchedule
	if empty.Len() != 0 || len(empty.Events()) != 0 {
		t.Error("nil schedule is not empty")
	}
}

func TestParseTarget(t *testing.T) {
	for _, test := range []struct {
		path string
		want EventTarget
		err  bool
	}{
		{path: "feed.c", want: InletConcentration{Inlet: "feed"}},
		{path: "flow_sheet.feed.flow_rate", want: InletFlowRate{Inlet: "feed"}},
		{path: "feed.stage1.c", want: InletConcentration{Inlet: "feed.stage1"}},
		{path: "feed", err: true},
		{path: "feed.", err: true},
		{path: "feed.volume", err: true},
	} {
		t.Run(test.path, func(t *testing.T) {
			have, err := ParseTarget(test.path)
			if test.err {
				var ce *ConfigurationError
				if !errors.As(err, &ce) {
					t.Errorf("have %v, want a configuration error", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if have != test.want {
				t.Errorf("have %v, want %v", have, test.want)
			}
		})
	}
}

func TestEventErrors(t *testing.T) {
	var s EventSchedule
	target := InletConcentration{Inlet: "feed"}
	for _, test := range []struct {
		name  string
		err   error
		field string
	}{
		{name: "negative time", err: s.Add("a", -1, target, 1), field: "events[a].time"},
		{name: "no value", err: s.Add("b", 1, target), field: "events[b].value"},
		{name: "negative value", err: s.Add("c", 1, target, 1, -1), field: "events[c].value[1]"},
		{name: "bad path", err: s.AddPath("d", 1, "feed.x", 1), field: "events[d].target"},
	} {
		t.Run(test.name, func(t *testing.T) {
			var ce *ConfigurationError
			if !errors.As(test.err, &ce) {
				t.Fatalf("have %v, want a configuration error", test.err)
			}
			if ce.Field != test.field {
				t.Errorf("field: have %q, want %q", ce.Field, test.field)
			}
		})
	}
	if s.Len() != 0 {
		t.Errorf("invalid events were added: %# v", pretty.Formatter(s.Events()))
	}
}
