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

package chromutil

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ctessum/unit"
	"github.com/spatialmodel/chrom"
	"github.com/spf13/viper"
)

const testProcess = `
name = "benchmark"
species = ["A"]
cycle_time = 3000.0

[binding]
type = "linear"
kinetic = true
k_a = [2.5]
k_d = [1.0]

[[units]]
type = "inlet"
name = "feed"
[units.params]
flow_rate = 3.3333333e-8

[[units]]
type = "column"
name = "column"
[units.params]
length = 0.017
cross_section_area = 1e-3
bed_porosity = 0.4
particle_radius = 4e-5
particle_porosity = 0.333
axial_dispersion = 3.33e-9
film_diffusion = 1.67e-6
pore_diffusion = 3.003e-6

[[units]]
type = "outlet"
name = "product"

[[connections]]
from = "feed"
to = "column"

[[connections]]
from = "column"
to = "product"

[[events]]
name = "load"
time = 0.0
target = "feed.c"
value = 1.0

[[events]]
name = "wash"
time = 600.0
target = "flow_sheet.feed.c"
value = [0.0]

[spatial_resolution]
n_x = 16
n_r = 2

[integrator_tolerances]
abs = 1e-6
rel = 1e-4

[simulator]
n_outputs = 301

[sweep]
unit = "column"
parameter = "axial_dispersion"
values = [1e-8, 1e-9]
`

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func loadTestProcess(t *testing.T) *ProcessConfig {
	c, err := LoadProcessConfig(strings.NewReader(testProcess))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestLoadProcessConfig(t *testing.T) {
	c := loadTestProcess(t)
	p, err := c.Process()
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "benchmark" || p.CycleTime != 3000 || p.Events.Len() != 2 {
		t.Errorf("process %s with cycle time %g and %d events", p.Name, p.CycleTime, p.Events.Len())
	}
	col, ok := p.FlowSheet.Unit("column").(*chrom.Column)
	if !ok {
		t.Fatalf("column is %T", p.FlowSheet.Unit("column"))
	}
	if col.ParticlePorosity != 0.333 || col.SurfaceDiffusion != 0 {
		t.Errorf("column parameters: %+v", col.ColumnParams)
	}
	l, ok := col.Binding.(*chrom.Linear)
	if !ok || !l.Kinetic() || l.Henry(0) != 2.5 {
		t.Errorf("binding: %#v", col.Binding)
	}
	if pe := col.PecletNumber(3.3333333e-8); different(pe, 425.4, 1e-3) {
		t.Errorf("Peclet number %g", pe)
	}
	if len(p.FlowSheet.Connections()) != 2 || p.FlowSheet.Connections()[0].Weight != 1 {
		t.Errorf("connections: %v", p.FlowSheet.Connections())
	}

	sim, err := c.Simulator()
	if err != nil {
		t.Fatal(err)
	}
	if sim.Nx != 16 || sim.Nr != 2 || sim.NumOutputs != 301 || sim.Tolerances.Rel != 1e-4 {
		t.Errorf("simulator: %+v", sim)
	}
	if sim.MaxSteps != chrom.NewSimulator(sim.Discretizer).MaxSteps {
		t.Errorf("default step limit changed to %d", sim.MaxSteps)
	}
}

func TestProcessConfigErrors(t *testing.T) {
	for _, test := range []struct {
		name   string
		before string // keys outside any table
		after  string // keys in the last table, [sweep]
		modify func(*ProcessConfig)
		field  string
	}{
		{
			name:   "unknown key",
			before: "colour = \"blue\"\n",
			field:  "colour",
		},
		{
			name:  "unknown table key",
			after: "colour = \"blue\"\n",
			field: "sweep.colour",
		},
		{
			name: "unknown parameter",
			modify: func(c *ProcessConfig) {
				c.Units[1].Params["length_m"] = 1.
			},
			field: "units[column].params.length_m",
		},
		{
			name: "missing parameter",
			modify: func(c *ProcessConfig) {
				delete(c.Units[1].Params, "pore_diffusion")
			},
			field: "units[column].params.pore_diffusion",
		},
		{
			name: "parameter type",
			modify: func(c *ProcessConfig) {
				c.Units[1].Params["length"] = "long"
			},
			field: "units[column].params.length",
		},
		{
			name: "unit type",
			modify: func(c *ProcessConfig) {
				c.Units[2].Type = "tank"
			},
			field: "units[product].type",
		},
		{
			name: "binding type",
			modify: func(c *ProcessConfig) {
				c.Binding.Type = "freundlich"
			},
			field: "binding.type",
		},
		{
			name: "binding species",
			modify: func(c *ProcessConfig) {
				c.Binding.Species = []string{"B"}
			},
			field: "binding.species",
		},
		{
			name: "porosity",
			modify: func(c *ProcessConfig) {
				c.Units[1].Params["bed_porosity"] = 1
			},
			field: "units[column].bed_porosity",
		},
		{
			name: "event target",
			modify: func(c *ProcessConfig) {
				c.Events[1].Target = "feed.volume"
			},
			field: "events[wash].target",
		},
		{
			name: "missing outlet",
			modify: func(c *ProcessConfig) {
				c.Units = c.Units[:2]
				c.Connections = c.Connections[:1]
			},
			field: "units[column].connections",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			c, err := LoadProcessConfig(strings.NewReader(test.before + testProcess + test.after))
			if err == nil {
				test.modify(c)
				_, err = c.Process()
			}
			var ce *chrom.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("have %v, want a configuration error", err)
			}
			if ce.Field != test.field {
				t.Errorf("field: have %q, want %q", ce.Field, test.field)
			}
		})
	}
}

func TestWithParameter(t *testing.T) {
	c := loadTestProcess(t)
	c2, err := c.WithParameter("column", "axial_dispersion", 1e-7)
	if err != nil {
		t.Fatal(err)
	}
	if c.Units[1].Params["axial_dispersion"] != 3.33e-9 {
		t.Errorf("input configuration changed: %v", c.Units[1].Params["axial_dispersion"])
	}
	p, err := c2.Process()
	if err != nil {
		t.Fatal(err)
	}
	if d := p.FlowSheet.Unit("column").(*chrom.Column).AxialDispersion; d != 1e-7 {
		t.Errorf("axial dispersion: have %g, want 1e-7", d)
	}
	if _, err := c.WithParameter("nothing", "length", 1); err == nil {
		t.Error("unknown unit was accepted")
	}
}

func TestGetStringMapString(t *testing.T) {
	cfg := viper.New()
	for _, test := range []struct {
		value interface{}
		want  map[string]string
	}{
		{value: `{"mass":"A*flow"}`, want: map[string]string{"mass": "A*flow"}},
		{value: map[string]interface{}{"mass": "A*flow"}, want: map[string]string{"mass": "A*flow"}},
		{value: "", want: map[string]string{}},
	} {
		cfg.Set("OutputVariables", test.value)
		have, err := GetStringMapString("OutputVariables", cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(have) != len(test.want) || have["mass"] != test.want["mass"] {
			t.Errorf("have %v, want %v", have, test.want)
		}
	}
	cfg.Set("OutputVariables", "{not json")
	if _, err := GetStringMapString("OutputVariables", cfg); err == nil {
		t.Error("invalid JSON was accepted")
	}
}

func TestOutputVariables(t *testing.T) {
	c := loadTestProcess(t)
	p, err := c.Process()
	if err != nil {
		t.Fatal(err)
	}
	cs := p.FlowSheet.Components()
	if _, err := NewOutputVariables(map[string]string{"bad": "B * 2"}, cs); err == nil {
		t.Error("undefined variable was accepted")
	}
	vars, err := NewOutputVariables(map[string]string{
		"mass_flow": "A * flow",
		"peak":      "max(A, 0.5)",
		"decay":     "exp(-t/1000)",
	}, cs)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(vars.Names(), ","); got != "decay,mass_flow,peak" {
		t.Errorf("names: %s", got)
	}
	sim, err := c.Simulator()
	if err != nil {
		t.Fatal(err)
	}
	sim.NumOutputs = 31
	sol, err := sim.Simulate(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	vals, err := vars.Evaluate(sol, "product")
	if err != nil {
		t.Fatal(err)
	}
	u := sol.Unit("product")
	for i, tt := range sol.Time {
		if different(vals[i][0], math.Exp(-tt/1000), 1e-12) {
			t.Errorf("decay at t=%g: %g", tt, vals[i][0])
		}
		if vals[i][1] != u.Outlet[i][0]*u.OutletFlow[i] {
			t.Errorf("mass flow at t=%g: %g", tt, vals[i][1])
		}
		if vals[i][2] != math.Max(u.Outlet[i][0], 0.5) {
			t.Errorf("peak at t=%g: %g", tt, vals[i][2])
		}
	}
	if _, err := vars.Evaluate(sol, "nothing"); err == nil {
		t.Error("unknown unit was accepted")
	}
	for _, expr := range []string{"exp(A > 0)", "log(t == 0)", "max(1, A > 0.5)"} {
		bad, err := NewOutputVariables(map[string]string{"bad": expr}, cs)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := bad.Evaluate(sol, "product"); err == nil {
			t.Errorf("%s: boolean argument was accepted", expr)
		}
	}
}

func TestBindingPerColumn(t *testing.T) {
	c := loadTestProcess(t)
	second := UnitConfig{Type: "column", Name: "column2", Params: make(map[string]interface{})}
	for k, v := range c.Units[1].Params {
		second.Params[k] = v
	}
	c.Units = []UnitConfig{c.Units[0], c.Units[1], second, c.Units[2]}
	c.Connections = []ConnectionConfig{
		{From: "feed", To: "column"},
		{From: "column", To: "column2"},
		{From: "column2", To: "product"},
	}
	p, err := c.Process()
	if err != nil {
		t.Fatal(err)
	}
	a := p.FlowSheet.Unit("column").(*chrom.Column).Binding
	b := p.FlowSheet.Unit("column2").(*chrom.Column).Binding
	if a == nil || a == b {
		t.Errorf("columns share binding model %p", a)
	}
}

func TestDimensionlessGroups(t *testing.T) {
	c := loadTestProcess(t)
	p, err := c.Process()
	if err != nil {
		t.Fatal(err)
	}
	col := p.FlowSheet.Unit("column").(*chrom.Column)
	const q = 3.3333333e-8
	groups, err := DimensionlessGroups(col, q)
	if err != nil {
		t.Fatal(err)
	}
	u := col.InterstitialVelocity(q)
	want := map[string]float64{
		"Pe": col.PecletNumber(q),
		"Bi": col.FilmDiffusion * col.ParticleRadius / (col.ParticlePorosity * col.PoreDiffusion),
		"St": 3 * (1 - col.BedPorosity) / col.BedPorosity * col.FilmDiffusion * col.Length / (col.ParticleRadius * u),
	}
	if len(groups) != len(want) {
		t.Fatalf("have %d groups, want %d", len(groups), len(want))
	}
	for _, g := range groups {
		if len(g.Value.Dimensions()) != 0 {
			t.Errorf("%s has dimensions %v", g.Name, g.Value.Dimensions())
		}
		if different(g.Value.Value(), want[g.Name], 1e-12) {
			t.Errorf("%s: have %g, want %g", g.Name, g.Value.Value(), want[g.Name])
		}
	}
	if different(groups[0].Value.Value(), 425.4, 1e-3) {
		t.Errorf("Peclet number %g", groups[0].Value.Value())
	}
}

func TestParamDimensions(t *testing.T) {
	in := newParams(UnitConfig{Type: "inlet", Name: "feed", Params: map[string]interface{}{"flow_rate": 2e-6}})
	tank := newParams(UnitConfig{Type: "cstr", Name: "tank", Params: map[string]interface{}{"volume": 1e-3}})
	rate := unit.Div(in.quantity("flow_rate", true), tank.quantity("volume", true))
	if err := rate.Check(unit.Herz); err != nil {
		t.Error(err)
	}
	if different(rate.Value(), 2e-3, 1e-12) {
		t.Errorf("dilution rate %g", rate.Value())
	}
	if err := in.done(); err != nil {
		t.Error(err)
	}
	if q := tank.quantity("surface_diffusion", false); q.Value() != 0 || q.Check(diffusivity) != nil {
		t.Errorf("missing optional parameter: %v", q)
	}
}

func TestAutoResolution(t *testing.T) {
	c := loadTestProcess(t)
	c.SpatialResolution.Nx = 0
	for _, test := range []struct {
		dax  float64
		want int
	}{
		{dax: 3.33e-9, want: 213}, // Pe=425.4
		{dax: 0, want: maxAutoCells},
		{dax: 1, want: minAutoCells},
	} {
		cv, err := c.WithParameter("column", "axial_dispersion", test.dax)
		if err != nil {
			t.Fatal(err)
		}
		sim, err := cv.Simulator()
		if err != nil {
			t.Fatal(err)
		}
		if sim.Nx != test.want || sim.Nr != 2 {
			t.Errorf("D_ax=%g: have %+v, want n_x=%d", test.dax, sim.Discretizer, test.want)
		}
	}
}
