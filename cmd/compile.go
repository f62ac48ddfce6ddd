package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"timecourse_control/internal/assembler"
	"timecourse_control/internal/manifest"
	"timecourse_control/internal/petab"
	"timecourse_control/internal/timecourse"
)

const (
	conditionsFile        = "conditions.tsv"
	parametersFile        = "parameters.tsv"
	measurementsFile      = "measurements.tsv"
	observablesFile       = "observables.tsv"
	timecoursesFile       = "timecourses.tsv"
	modelChangesFile      = "model_changes.yaml"
	switchConditionsFile  = "switch_conditions.tsv"
	switchTimecoursesFile = "switch_timecourses.tsv"
)

type compileOptions struct {
	manifest       string
	out            string
	conditions     string
	parameters     string
	measurements   string
	baseTimecourse string
	parameterOrder []string
	fix            map[string]string
	switches       bool
}

func compileFlags(opts *compileOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("compile", pflag.ContinueOnError)
	fs.StringVar(&opts.out, "out", "", "output directory")
	fs.StringVar(&opts.conditions, "conditions", "", "base condition table")
	fs.StringVar(&opts.parameters, "parameters", "", "base parameter table")
	fs.StringVar(&opts.measurements, "measurements", "", "base measurement table")
	fs.StringVar(&opts.baseTimecourse, "base-timecourse", "", `base timecourse, e.g. "0:c0;10:c1"`)
	fs.StringSliceVar(&opts.parameterOrder, "parameter-order", nil, "expected order of the estimated parameters")
	fs.StringToStringVar(&opts.fix, "fix", nil, "fix base parameters, id=value")
	fs.BoolVar(&opts.switches, "switches", false, "also write the switch-indicator form")
	return fs
}

// ---------------------------------------------------------------------------
// compile
// ---------------------------------------------------------------------------

func runCompile(args []string) error {
	var opts compileOptions
	fs := compileFlags(&opts)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || opts.out == "" {
		return errors.New("usage: tcc compile <manifest> --out DIR")
	}
	opts.manifest = fs.Arg(0)

	a, err := compile(opts)
	if err != nil {
		return err
	}
	fmt.Printf("compiled problem %q: %d periods, %d estimated parameters, written to %s\n",
		a.ProblemID, a.Segmentation.Control.Len(), len(a.FreeParameters), opts.out)
	return nil
}

func compile(opts compileOptions) (*assembler.Assembly, error) {
	problem, err := manifest.LoadProblem(opts.manifest)
	if err != nil {
		return nil, err
	}
	base, err := loadBase(opts)
	if err != nil {
		return nil, err
	}
	a, err := assembler.Assemble(problem, base, opts.parameterOrder)
	if err != nil {
		return nil, fmt.Errorf("assemble %q: %w", problem.ID, err)
	}

	tables := map[string]*petab.Table{
		conditionsFile:   a.Conditions,
		parametersFile:   a.Parameters,
		measurementsFile: a.Measurements,
		timecoursesFile:  a.Timecourses,
		observablesFile:  a.Observables,
	}

	model := &assembler.MemoryModel{ID: a.ProblemID}
	if err := a.InjectEvents(model); err != nil {
		return nil, fmt.Errorf("inject events: %w", err)
	}
	if opts.switches {
		sw, err := a.Switches()
		if err != nil {
			return nil, err
		}
		if err := sw.Apply(model); err != nil {
			return nil, fmt.Errorf("apply switch rules: %w", err)
		}
		tables[switchConditionsFile] = sw.Conditions
		tables[switchTimecoursesFile] = sw.Timecourses
	}

	for name, t := range tables {
		if t == nil {
			continue
		}
		if err := t.WriteFile(filepath.Join(opts.out, name)); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := writeYAML(filepath.Join(opts.out, modelChangesFile), model); err != nil {
		return nil, err
	}
	return a, nil
}

func loadBase(opts compileOptions) (assembler.Base, error) {
	var (
		base assembler.Base
		err  error
	)
	for _, t := range []struct {
		path string
		dst  **petab.Table
	}{
		{opts.conditions, &base.Conditions},
		{opts.parameters, &base.Parameters},
		{opts.measurements, &base.Measurements},
	} {
		if t.path == "" {
			continue
		}
		if *t.dst, err = petab.ReadFile(t.path); err != nil {
			return assembler.Base{}, err
		}
	}

	if len(opts.fix) > 0 {
		if base.Parameters == nil {
			return assembler.Base{}, errors.New("--fix needs a base parameter table")
		}
		values, err := parseValues(opts.fix)
		if err != nil {
			return assembler.Base{}, fmt.Errorf("--fix: %w", err)
		}
		if base.Parameters, err = petab.FixParameters(base.Parameters, values); err != nil {
			return assembler.Base{}, err
		}
	}

	if opts.baseTimecourse != "" {
		tc, err := timecourse.ParseDescription("base", opts.baseTimecourse)
		if err != nil {
			return assembler.Base{}, err
		}
		base.Timecourse = &tc
	}
	return base, nil
}

func parseValues(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for id, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("value of %q: %w", id, err)
		}
		out[id] = v
	}
	return out, nil
}

func writeYAML(path string, v any) error {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, raw, 0o644)
}
