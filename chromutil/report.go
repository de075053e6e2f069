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
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/Knetic/govaluate"
	"github.com/spatialmodel/chrom"
)

// outputFunctions are the functions available in output variable
// expressions.
var outputFunctions = map[string]govaluate.ExpressionFunction{
	"exp": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("chromutil: got %d arguments for function 'exp', but needs 1", len(arg))
		}
		x, err := floatArg("exp", arg[0])
		if err != nil {
			return nil, err
		}
		return math.Exp(x), nil
	},
	"log": func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("chromutil: got %d arguments for function 'log', but needs 1", len(arg))
		}
		x, err := floatArg("log", arg[0])
		if err != nil {
			return nil, err
		}
		return math.Log(x), nil
	},
	"max": func(arg ...interface{}) (interface{}, error) {
		if len(arg) == 0 {
			return nil, fmt.Errorf("chromutil: function 'max' needs at least 1 argument")
		}
		m := math.Inf(-1)
		for _, a := range arg {
			x, err := floatArg("max", a)
			if err != nil {
				return nil, err
			}
			m = math.Max(m, x)
		}
		return m, nil
	},
}

// floatArg returns a numeric function argument.
func floatArg(fn string, a interface{}) (float64, error) {
	x, ok := a.(float64)
	if !ok {
		return 0, fmt.Errorf("chromutil: function '%s' needs numeric arguments, got %T", fn, a)
	}
	return x, nil
}

// OutputVariables evaluates expressions over the outlet trace of a unit.
// Expressions may use the species names, 't' for time and 'flow' for
// the volumetric flow rate.
type OutputVariables struct {
	names []string
	exprs map[string]*govaluate.EvaluableExpression
}

// NewOutputVariables parses the expressions in vars, which maps output
// names to expressions. Line breaks and environment variables are
// expanded.
func NewOutputVariables(vars map[string]string, cs *chrom.ComponentSystem) (*OutputVariables, error) {
	o := &OutputVariables{exprs: make(map[string]*govaluate.EvaluableExpression)}
	known := map[string]bool{"t": true, "flow": true}
	for _, n := range cs.Names() {
		known[n] = true
	}
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		k, v = os.ExpandEnv(k), os.ExpandEnv(v)
		e, err := govaluate.NewEvaluableExpressionWithFunctions(v, outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("chromutil: output variable %s: %w", k, err)
		}
		for _, name := range e.Vars() {
			if !known[name] {
				return nil, fmt.Errorf("chromutil: output variable %s: undefined variable name '%s'", k, name)
			}
		}
		o.exprs[k] = e
		o.names = append(o.names, k)
	}
	sort.Strings(o.names)
	return o, nil
}

// Names returns the output variable names in sorted order.
func (o *OutputVariables) Names() []string { return o.names }

// Evaluate returns the values of every output variable, in the order of
// Names, at each output time of the named unit.
func (o *OutputVariables) Evaluate(sol *chrom.Solution, unit string) ([][]float64, error) {
	u := sol.Unit(unit)
	if u == nil {
		return nil, fmt.Errorf("chromutil: no unit named %q", unit)
	}
	species := sol.Process.FlowSheet.Components().Names()
	out := make([][]float64, len(sol.Time))
	params := make(map[string]interface{}, len(species)+2)
	for i, t := range sol.Time {
		params["t"] = t
		params["flow"] = u.OutletFlow[i]
		for ii, n := range species {
			params[n] = u.Outlet[i][ii]
		}
		out[i] = make([]float64, len(o.names))
		for j, n := range o.names {
			v, err := o.exprs[n].Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("chromutil: evaluating %s: %w", n, err)
			}
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("chromutil: output variable %s is %T, not a number", n, v)
			}
			out[i][j] = f
		}
	}
	return out, nil
}

// outlets returns the names of the outlet units of the process.
func outlets(p *chrom.Process) []string {
	var o []string
	for _, u := range p.FlowSheet.Units() {
		if _, ok := u.(*chrom.Outlet); ok {
			o = append(o, u.Name())
		}
	}
	return o
}

// WriteSummary writes the column properties, the moments of every
// outlet trace and the warnings of sol to w.
func WriteSummary(w io.Writer, sol *chrom.Solution) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, sol.Summary())
	p := sol.Process
	for _, u := range p.FlowSheet.Units() {
		col, ok := u.(*chrom.Column)
		if !ok {
			continue
		}
		us := sol.Unit(col.Name())
		if us == nil || len(us.InletFlow) == 0 {
			continue
		}
		q := us.InletFlow[0]
		groups, err := DimensionlessGroups(col, q)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "column %s:", col.Name())
		for _, g := range groups {
			fmt.Fprintf(tw, "\t%s=%.4g", g.Name, g.Value.Value())
		}
		fmt.Fprintf(tw, "\tL/u=%.4g s\n", col.ResidenceTime(q))
	}
	fmt.Fprintln(tw, "unit\tspecies\tzeroth\tmean\tvariance\tmass balance")
	species := p.FlowSheet.Components().Names()
	for _, name := range outlets(p) {
		for ii, sp := range species {
			m, err := sol.Moments(name, ii)
			if err != nil {
				return err
			}
			mb := sol.MassBalance(name)
			fmt.Fprintf(tw, "%s\t%s\t%.6g\t%.6g\t%.6g\t%.3g\n", name, sp, m.Zeroth, m.Mean, m.Variance, mb.Error(ii))
		}
	}
	for _, wn := range sol.Warnings {
		fmt.Fprintf(tw, "warning:\t%s\n", wn)
	}
	return tw.Flush()
}

// WriteTraces writes a table of the outlet traces of every outlet of
// sol, with one column per species and output variable.
func WriteTraces(w io.Writer, sol *chrom.Solution, vars *OutputVariables) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	species := sol.Process.FlowSheet.Components().Names()
	header := append([]string{"unit", "t"}, species...)
	if vars != nil {
		header = append(header, vars.Names()...)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, name := range outlets(sol.Process) {
		u := sol.Unit(name)
		var derived [][]float64
		if vars != nil {
			var err error
			if derived, err = vars.Evaluate(sol, name); err != nil {
				return err
			}
		}
		for i, t := range sol.Time {
			row := []string{name, fmt.Sprintf("%g", t)}
			for _, c := range u.Outlet[i] {
				row = append(row, fmt.Sprintf("%.6g", c))
			}
			if derived != nil {
				for _, v := range derived[i] {
					row = append(row, fmt.Sprintf("%.6g", v))
				}
			}
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
	}
	return tw.Flush()
}
