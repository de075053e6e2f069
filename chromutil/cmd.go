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

// Package chromutil contains the command-line interface and the process
// definition file format for chrom.
package chromutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/chrom"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to chrom.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "process",
			usage: `
              process is the path to the TOML process definition file holding
              the species, binding model, units, connections, events, cycle time,
              spatial resolution and integrator tolerances. It can include
              environment variables.`,
			shorthand:  "p",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), sweepCmd.Flags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print: one of
              'debug', 'info', 'warn' or 'error'.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogEvery",
			usage: `
              LogEvery specifies that integration progress should be logged
              every LogEvery accepted steps. Zero turns progress logging off.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the results should be written. If it
              is empty, results are written to standard output. It can include
              environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), sweepCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies derived variables to add to the trace
              table, as a map of names to expressions. Expressions can use the
              species names, 't' and 'flow', and the functions exp, log and max.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PrintTraces",
			usage: `
              PrintTraces specifies whether the outlet traces should be written
              in addition to the summary.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Strict",
			usage: `
              Strict specifies that numerical warnings, such as negative
              concentrations, should stop the simulation.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), sweepCmd.Flags()},
		},
		{
			name: "Parallel",
			usage: `
              Parallel specifies that the units of the flow sheet should be
              evaluated concurrently.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), sweepCmd.Flags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of simulations to run concurrently in a
              sweep. Zero means one per processor.`,
			shorthand:  "w",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{sweepCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("CHROM")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(v)
				set.StringP(option.name, option.shorthand, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(sweepCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("chrom: problem reading configuration file: %v", err)
		}
	}
	lvl, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("chrom: LogLevel: %v", err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "chrom",
	Short: "A liquid chromatography process simulator.",
	Long: `chrom simulates liquid chromatography processes made of inlets,
General Rate Model columns, stirred tanks and outlets, operated according
to a schedule of events. Use the subcommands specified below to access the
model functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'CHROM_var' where 'var' is the
name of the variable to be set. The process itself is described in a separate
TOML file given by the --process flag.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of chrom.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("chrom v%s\n", chrom.Version)
	},
	DisableAutoGenTag: true,
}

// loadProcess reads the process definition named by the 'process'
// option and builds the simulator for it.
func loadProcess() (*ProcessConfig, *chrom.Simulator, error) {
	path := Cfg.GetString("process")
	if path == "" {
		return nil, nil, fmt.Errorf("chrom: you need to specify a process definition file (for example: --process=process.toml)")
	}
	c, err := LoadProcessFile(path)
	if err != nil {
		return nil, nil, err
	}
	sim, err := c.Simulator()
	if err != nil {
		return nil, nil, err
	}
	sim.Strict = sim.Strict || Cfg.GetBool("Strict")
	sim.Parallel = sim.Parallel || Cfg.GetBool("Parallel")
	sim.Log = logrus.StandardLogger()
	return c, sim, nil
}

// outputWriter returns the destination for results.
func outputWriter(cmd *cobra.Command) (io.Writer, func() error, error) {
	f := os.ExpandEnv(Cfg.GetString("OutputFile"))
	if f == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	w, err := os.Create(f)
	if err != nil {
		return nil, nil, fmt.Errorf("chrom: creating output file: %v", err)
	}
	return w, w.Close, nil
}

// interruptible returns a context that is cancelled on interrupt, so
// that a run stops cleanly and reports what it has computed.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a process.",
	Long: `run simulates one cycle of the process in the process definition file
and prints the moments of every outlet trace, the mass balance of every
outlet and any numerical warnings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, sim, err := loadProcess()
		if err != nil {
			return err
		}
		p, err := c.Process()
		if err != nil {
			return err
		}
		vars, err := GetStringMapString("OutputVariables", Cfg)
		if err != nil {
			return err
		}
		ov, err := NewOutputVariables(vars, p.FlowSheet.Components())
		if err != nil {
			return err
		}
		if every := Cfg.GetInt("LogEvery"); every > 0 {
			sim.StepFuncs = append(sim.StepFuncs, chrom.Log(sim.Log, every))
		}

		ctx, cancel := interruptible(cmd)
		defer cancel()
		sol, err := sim.Simulate(ctx, p)
		if err != nil {
			return err
		}

		w, closeOut, err := outputWriter(cmd)
		if err != nil {
			return err
		}
		if err := WriteSummary(w, sol); err != nil {
			closeOut()
			return err
		}
		if Cfg.GetBool("PrintTraces") {
			if err := WriteTraces(w, sol, ov); err != nil {
				closeOut()
				return err
			}
		}
		return closeOut()
	},
	DisableAutoGenTag: true,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Simulate a process for a range of parameter values.",
	Long: `sweep simulates the process in the process definition file once for
each value in its [sweep] section, setting the given parameter of the given
unit. Simulations run concurrently. Runs that fail numerically are retried
with tighter integrator tolerances. For each value, the Peclet number of the
swept column and the moments of the first outlet trace are printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, sim, err := loadProcess()
		if err != nil {
			return err
		}
		if c.Sweep == nil {
			return &chrom.ConfigurationError{Field: "sweep", Msg: "the process definition has no [sweep] section"}
		}
		sc := c.Sweep
		// Check the base process before starting any runs.
		base, err := c.Process()
		if err != nil {
			return err
		}
		sw := &chrom.Sweep{
			Simulator: sim,
			Values:    sc.Values,
			Workers:   Cfg.GetInt("Workers"),
			// One retry unless the file says otherwise.
			MaxRetries: 1,
			Log:        sim.Log,
			Build: func(v float64) (*chrom.Process, error) {
				cv, err := c.WithParameter(sc.Unit, sc.Parameter, v)
				if err != nil {
					return nil, err
				}
				return cv.Process()
			},
		}
		if sc.MaxRetries > 0 {
			sw.MaxRetries = sc.MaxRetries
		}
		ctx, cancel := interruptible(cmd)
		defer cancel()
		results, err := sw.Run(ctx)
		if err != nil {
			return err
		}

		w, closeOut, err := outputWriter(cmd)
		if err != nil {
			return err
		}
		outs := outlets(base)
		species := base.FlowSheet.Components().Names()
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\tPe\tspecies\tmean\tvariance\tretries\tstatus\n", sc.Parameter)
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(tw, "%g\t\t\t\t\t%d\t%v\n", r.Value, r.Retries, r.Err)
				continue
			}
			pe := "-"
			if col, ok := r.Solution.Process.FlowSheet.Unit(sc.Unit).(*chrom.Column); ok {
				if us := r.Solution.Unit(sc.Unit); us != nil && len(us.InletFlow) > 0 {
					pe = fmt.Sprintf("%.4g", col.PecletNumber(us.InletFlow[0]))
				}
			}
			status := "complete"
			if !r.Solution.Complete {
				status = "incomplete"
			}
			for ii, sp := range species {
				m, err := r.Solution.Moments(outs[0], ii)
				if err != nil {
					closeOut()
					return err
				}
				fmt.Fprintf(tw, "%g\t%s\t%s\t%.6g\t%.6g\t%d\t%s\n", r.Value, pe, sp, m.Mean, m.Variance, r.Retries, status)
			}
		}
		if err := tw.Flush(); err != nil {
			closeOut()
			return err
		}
		return closeOut()
	},
	DisableAutoGenTag: true,
}
