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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/unit"
	"github.com/spatialmodel/chrom"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ProcessConfig is the contents of a process definition file.
type ProcessConfig struct {
	Name        string             `toml:"name"`
	Species     []string           `toml:"species"`
	Binding     *BindingConfig     `toml:"binding"`
	Units       []UnitConfig       `toml:"units"`
	Connections []ConnectionConfig `toml:"connections"`
	Events      []EventConfig      `toml:"events"`
	CycleTime   float64            `toml:"cycle_time"`

	// SpatialResolution sets the cell counts. Without n_x the axial cells
	// are sized from the columns' Peclet numbers.
	SpatialResolution struct {
		Nx int `toml:"n_x"`
		Nr int `toml:"n_r"`
	} `toml:"spatial_resolution"`

	IntegratorTolerances struct {
		Abs float64 `toml:"abs"`
		Rel float64 `toml:"rel"`
	} `toml:"integrator_tolerances"`

	Options SimulatorConfig `toml:"simulator"`
	Sweep   *SweepConfig    `toml:"sweep"`
}

// BindingConfig configures the binding model shared by all columns.
type BindingConfig struct {
	Type    string `toml:"type"`
	Kinetic bool   `toml:"kinetic"`
	// Species lists the binding species. All species bind if it is
	// empty.
	Species []string  `toml:"species"`
	KA      []float64 `toml:"k_a"`
	KD      []float64 `toml:"k_d"`
	QMax    []float64 `toml:"q_max"`
}

// UnitConfig configures one unit operation. The accepted parameters
// depend on the type.
type UnitConfig struct {
	Type   string                 `toml:"type"`
	Name   string                 `toml:"name"`
	Params map[string]interface{} `toml:"params"`
}

// ConnectionConfig configures a flow sheet connection. A zero weight
// means 1.
type ConnectionConfig struct {
	From   string  `toml:"from"`
	To     string  `toml:"to"`
	Weight float64 `toml:"weight"`
}

// EventConfig configures an event. Value is a number or a list of
// numbers.
type EventConfig struct {
	Name   string      `toml:"name"`
	Time   float64     `toml:"time"`
	Target string      `toml:"target"`
	Value  interface{} `toml:"value"`
}

// SimulatorConfig holds optional simulator settings. Zero values keep
// the defaults.
type SimulatorConfig struct {
	NumOutputs        int     `toml:"n_outputs"`
	Strict            bool    `toml:"strict"`
	ClampNegative     bool    `toml:"clamp_negative"`
	NegativeTolerance float64 `toml:"negative_tolerance"`
	MaxSteps          int     `toml:"max_steps"`
	Parallel          bool    `toml:"parallel"`
}

// SweepConfig configures a parameter sweep over one unit parameter.
type SweepConfig struct {
	Unit       string    `toml:"unit"`
	Parameter  string    `toml:"parameter"`
	Values     []float64 `toml:"values"`
	MaxRetries int       `toml:"max_retries"`
}

// LoadProcessConfig reads a process definition in TOML format. Keys
// that do not correspond to any setting are an error.
func LoadProcessConfig(r io.Reader) (*ProcessConfig, error) {
	c := new(ProcessConfig)
	md, err := toml.DecodeReader(r, c)
	if err != nil {
		return nil, fmt.Errorf("chromutil: decoding process definition: %w", err)
	}
	if u := md.Undecoded(); len(u) > 0 {
		keys := make([]string, len(u))
		for i, k := range u {
			keys[i] = k.String()
		}
		return nil, &chrom.ConfigurationError{Field: keys[0], Msg: fmt.Sprintf("unknown keys %s", strings.Join(keys, ", "))}
	}
	return c, nil
}

// LoadProcessFile reads a process definition from a file. The path may
// contain environment variables.
func LoadProcessFile(path string) (*ProcessConfig, error) {
	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, fmt.Errorf("chromutil: opening process definition: %w", err)
	}
	defer f.Close()
	return LoadProcessConfig(f)
}

// Components returns the species of the process.
func (c *ProcessConfig) Components() (*chrom.ComponentSystem, error) {
	bound := make(map[string]bool)
	if c.Binding != nil {
		names := c.Binding.Species
		if len(names) == 0 {
			names = c.Species
		}
		for _, n := range names {
			bound[n] = true
		}
		for n := range bound {
			if !contains(c.Species, n) {
				return nil, &chrom.ConfigurationError{Field: "binding.species", Msg: fmt.Sprintf("unknown species %q", n)}
			}
		}
	}
	sp := make([]chrom.Species, len(c.Species))
	for i, n := range c.Species {
		sp[i] = chrom.Species{Name: n}
		if bound[n] {
			sp[i].BoundStates = 1
		}
	}
	return chrom.NewComponentSystem(sp...)
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func (c *ProcessConfig) binding(cs *chrom.ComponentSystem) (chrom.BindingModel, error) {
	if c.Binding == nil {
		return nil, nil
	}
	switch strings.ToLower(c.Binding.Type) {
	case "linear":
		return chrom.NewLinear(cs, c.Binding.Kinetic, c.Binding.KA, c.Binding.KD)
	case "langmuir":
		return chrom.NewLangmuir(cs, c.Binding.Kinetic, c.Binding.KA, c.Binding.KD, c.Binding.QMax)
	default:
		return nil, &chrom.ConfigurationError{Field: "binding.type", Msg: fmt.Sprintf("unknown binding model %q; use 'linear' or 'langmuir'", c.Binding.Type)}
	}
}

// params reads the parameters of one unit, rejecting unknown ones.
type params struct {
	u    UnitConfig
	used map[string]bool
	err  error
}

func newParams(u UnitConfig) *params { return &params{u: u, used: make(map[string]bool)} }

func (p *params) field(name string) string { return fmt.Sprintf("units[%s].params.%s", p.u.Name, name) }

// quantity returns a parameter in SI units with its dimensions.
func (p *params) quantity(name string, required bool) *unit.Unit {
	p.used[name] = true
	v, ok := p.u.Params[name]
	if !ok {
		if required && p.err == nil {
			p.err = &chrom.ConfigurationError{Field: p.field(name), Msg: "missing"}
		}
		return quantity(name, 0)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil && p.err == nil {
		p.err = &chrom.ConfigurationError{Field: p.field(name), Msg: err.Error()}
	}
	return quantity(name, f)
}

func (p *params) float(name string, required bool) float64 {
	return p.quantity(name, required).Value()
}

func (p *params) floats(name string) []float64 {
	p.used[name] = true
	v, ok := p.u.Params[name]
	if !ok {
		return nil
	}
	f, err := toFloat64SliceE(v)
	if err != nil && p.err == nil {
		p.err = &chrom.ConfigurationError{Field: p.field(name), Msg: err.Error()}
	}
	return f
}

// done returns the first problem found, including unknown parameters.
func (p *params) done() error {
	if p.err != nil {
		return p.err
	}
	var unknown []string
	for k := range p.u.Params {
		if !p.used[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &chrom.ConfigurationError{Field: p.field(unknown[0]), Msg: fmt.Sprintf("unknown parameters %s for unit type %q", strings.Join(unknown, ", "), p.u.Type)}
	}
	return nil
}

// toFloat64SliceE converts a number or a list of numbers.
func toFloat64SliceE(v interface{}) ([]float64, error) {
	switch v.(type) {
	case []interface{}, []float64, []int64, []int:
		s, err := cast.ToSliceE(v)
		if err != nil {
			return nil, err
		}
		o := make([]float64, len(s))
		for i, x := range s {
			if o[i], err = cast.ToFloat64E(x); err != nil {
				return nil, err
			}
		}
		return o, nil
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	}
}

func (c *ProcessConfig) unit(cs *chrom.ComponentSystem, u UnitConfig) (chrom.UnitOperation, error) {
	p := newParams(u)
	var o chrom.UnitOperation
	switch strings.ToLower(u.Type) {
	case "inlet":
		in := chrom.NewInlet(u.Name, cs, p.float("flow_rate", true))
		in.Concentration = p.floats("concentration")
		o = in
	case "column":
		// Every column owns its binding model.
		b, err := c.binding(cs)
		if err != nil {
			return nil, err
		}
		col := chrom.NewColumn(u.Name, cs, chrom.ColumnParams{
			Length:           p.float("length", true),
			CrossSectionArea: p.float("cross_section_area", true),
			BedPorosity:      p.float("bed_porosity", true),
			ParticleRadius:   p.float("particle_radius", true),
			ParticlePorosity: p.float("particle_porosity", true),
			AxialDispersion:  p.float("axial_dispersion", true),
			FilmDiffusion:    p.float("film_diffusion", true),
			PoreDiffusion:    p.float("pore_diffusion", true),
			SurfaceDiffusion: p.float("surface_diffusion", false),
		}, b)
		col.InitialConcentration = p.floats("initial_concentration")
		o = col
	case "cstr":
		t := chrom.NewCstr(u.Name, cs, p.float("volume", true))
		t.InitialConcentration = p.floats("initial_concentration")
		o = t
	case "outlet":
		o = chrom.NewOutlet(u.Name, cs)
	default:
		return nil, &chrom.ConfigurationError{
			Field: fmt.Sprintf("units[%s].type", u.Name),
			Msg:   fmt.Sprintf("unknown unit type %q; use 'inlet', 'column', 'cstr' or 'outlet'", u.Type),
		}
	}
	if err := p.done(); err != nil {
		return nil, err
	}
	return o, nil
}

// Process builds the process described by the configuration.
func (c *ProcessConfig) Process() (*chrom.Process, error) {
	cs, err := c.Components()
	if err != nil {
		return nil, err
	}
	if _, err := c.binding(cs); err != nil {
		return nil, err
	}
	fs := chrom.NewFlowSheet(cs)
	for _, u := range c.Units {
		op, err := c.unit(cs, u)
		if err != nil {
			return nil, err
		}
		if err := fs.AddUnit(op); err != nil {
			return nil, err
		}
	}
	for _, cc := range c.Connections {
		w := cc.Weight
		if w == 0 {
			w = 1
		}
		if err := fs.AddWeightedConnection(cc.From, cc.To, w); err != nil {
			return nil, err
		}
	}
	events := new(chrom.EventSchedule)
	for i, e := range c.Events {
		v, err := toFloat64SliceE(e.Value)
		if err != nil {
			return nil, &chrom.ConfigurationError{Field: fmt.Sprintf("events[%d].value", i), Msg: err.Error()}
		}
		if err := events.AddPath(e.Name, e.Time, e.Target, v...); err != nil {
			return nil, err
		}
	}
	name := c.Name
	if name == "" {
		name = "process"
	}
	return chrom.NewProcess(name, fs, events, c.CycleTime)
}

// Bounds on the number of axial cells chosen when n_x is not set.
const (
	minAutoCells = 16
	maxAutoCells = 1000
)

// Simulator returns a simulator with the configured resolution,
// tolerances and options.
func (c *ProcessConfig) Simulator() (*chrom.Simulator, error) {
	d := chrom.Discretizer{Nx: c.SpatialResolution.Nx, Nr: c.SpatialResolution.Nr}
	if d.Nx == 0 {
		p, err := c.Process()
		if err != nil {
			return nil, err
		}
		if d, err = chrom.PecletResolution(p, d.Nr, minAutoCells, maxAutoCells); err != nil {
			return nil, err
		}
	}
	s := chrom.NewSimulator(d)
	if c.IntegratorTolerances.Abs != 0 {
		s.Tolerances.Abs = c.IntegratorTolerances.Abs
	}
	if c.IntegratorTolerances.Rel != 0 {
		s.Tolerances.Rel = c.IntegratorTolerances.Rel
	}
	if c.Options.NumOutputs != 0 {
		s.NumOutputs = c.Options.NumOutputs
	}
	if c.Options.MaxSteps != 0 {
		s.MaxSteps = c.Options.MaxSteps
	}
	if c.Options.NegativeTolerance != 0 {
		s.NegativeTolerance = c.Options.NegativeTolerance
	}
	s.Strict = c.Options.Strict
	s.ClampNegative = c.Options.ClampNegative
	s.Parallel = c.Options.Parallel
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithParameter returns a copy of the configuration with one parameter
// of the named unit set to v.
func (c *ProcessConfig) WithParameter(unit, param string, v float64) (*ProcessConfig, error) {
	o := *c
	o.Units = make([]UnitConfig, len(c.Units))
	found := false
	for i, u := range c.Units {
		o.Units[i] = u
		if u.Name != unit {
			continue
		}
		found = true
		o.Units[i].Params = make(map[string]interface{}, len(u.Params)+1)
		for k, x := range u.Params {
			o.Units[i].Params[k] = x
		}
		o.Units[i].Params[param] = v
	}
	if !found {
		return nil, &chrom.ConfigurationError{Field: "sweep.unit", Msg: fmt.Sprintf("unknown unit %q", unit)}
	}
	return &o, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if v == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("chromutil: parsing %s: %w", varName, err)
		}
		return o, nil
	case nil:
		return make(map[string]string), nil
	default:
		return nil, fmt.Errorf("chromutil: invalid type for variable %s: %#v", varName, i)
	}
}
