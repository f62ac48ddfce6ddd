package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/spf13/pflag"

	"timecourse_control/internal/horizon"
	"timecourse_control/internal/logger"
	"timecourse_control/internal/petab"
	"timecourse_control/internal/service"
)

type truncateOptions struct {
	variant             string
	t0, t1              float64
	inclusive           string
	parameters          string
	measurements        string
	controlParameters   string
	controlMeasurements string
	nominal             map[string]string
	out                 string
}

func truncateFlags(opts *truncateOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("truncate", pflag.ContinueOnError)
	fs.StringVar(&opts.variant, "variant", "", "estimation or control")
	fs.Float64Var(&opts.t0, "t0", 0, "window start")
	fs.Float64Var(&opts.t1, "t1", math.Inf(1), "window end")
	fs.StringVar(&opts.inclusive, "inclusive", horizon.Left.String(), "closed window ends: left, right, both, neither")
	fs.StringVar(&opts.parameters, "parameters", "", "original parameter table")
	fs.StringVar(&opts.measurements, "measurements", "", "original measurement table")
	fs.StringVar(&opts.controlParameters, "control-parameters", "", "control problem parameter table")
	fs.StringVar(&opts.controlMeasurements, "control-measurements", "", "control problem measurement table")
	fs.StringToStringVar(&opts.nominal, "nominal", nil, "nominal values, id=value")
	fs.StringVar(&opts.out, "out", "", "output directory")
	return fs
}

// ---------------------------------------------------------------------------
// truncate
// ---------------------------------------------------------------------------

func runTruncate(args []string) error {
	var opts truncateOptions
	fs := truncateFlags(&opts)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.out == "" {
		return errors.New("usage: tcc truncate --variant estimation|control ... --out DIR")
	}
	out, err := truncate(context.Background(), opts)
	if err != nil {
		return err
	}
	fmt.Printf("%s window [%g, %g]: %d parameters, %d measurements, written to %s\n",
		opts.variant, opts.t0, opts.t1, len(out.Parameters.Rows), len(out.Measurements.Rows), opts.out)
	return nil
}

func truncate(ctx context.Context, opts truncateOptions) (service.TruncateOutput, error) {
	variant, err := service.ParseVariant(opts.variant)
	if err != nil {
		return service.TruncateOutput{}, err
	}
	inclusive, err := horizon.ParseInclusive(opts.inclusive)
	if err != nil {
		return service.TruncateOutput{}, err
	}
	in := service.TruncateInput{
		Variant: variant,
		Window:  horizon.Window{T0: opts.t0, T1: opts.t1, Inclusive: inclusive},
	}
	if len(opts.nominal) > 0 {
		if in.Nominal, err = parseValues(opts.nominal); err != nil {
			return service.TruncateOutput{}, fmt.Errorf("--nominal: %w", err)
		}
	}
	for _, t := range []struct {
		flag string
		path string
		dst  **petab.Table
	}{
		{"--parameters", opts.parameters, &in.Original.Parameters},
		{"--measurements", opts.measurements, &in.Original.Measurements},
		{"--control-parameters", opts.controlParameters, &in.Control.Parameters},
		{"--control-measurements", opts.controlMeasurements, &in.Control.Measurements},
	} {
		if t.path == "" {
			return service.TruncateOutput{}, fmt.Errorf("%s is required", t.flag)
		}
		if *t.dst, err = petab.ReadFile(t.path); err != nil {
			return service.TruncateOutput{}, err
		}
	}

	out, err := service.NewHorizonService(logger.Nop()).Truncate(ctx, in)
	if err != nil {
		return service.TruncateOutput{}, err
	}
	if err := out.Parameters.WriteFile(filepath.Join(opts.out, parametersFile)); err != nil {
		return service.TruncateOutput{}, fmt.Errorf("write %s: %w", parametersFile, err)
	}
	if err := out.Measurements.WriteFile(filepath.Join(opts.out, measurementsFile)); err != nil {
		return service.TruncateOutput{}, fmt.Errorf("write %s: %w", measurementsFile, err)
	}
	return out, nil
}
