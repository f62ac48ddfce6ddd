package service

import (
	"context"
	"math"
	"strings"

	tcc "timecourse_control"
	"timecourse_control/internal/horizon"
	"timecourse_control/internal/logger"
	"timecourse_control/internal/petab"
)

// Variant selects which half of a combined problem a window optimizes.
type Variant string

const (
	EstimationVariant Variant = "estimation"
	ControlVariant    Variant = "control"
)

// ParseVariant accepts "estimation" or "control".
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case EstimationVariant, ControlVariant:
		return v, nil
	default:
		return "", invalid("unknown horizon variant %q", s)
	}
}

type TruncateInput struct {
	Variant  Variant
	Original horizon.Tables
	Control  horizon.Tables
	Window   horizon.Window
	Nominal  map[string]float64
}

// TruncateOutput is the windowed, combined problem.
type TruncateOutput struct {
	horizon.Tables
}

// ParseTruncateRequest reads the TSV tables of req. defaultInclusive applies
// when req names no inclusive policy.
func ParseTruncateRequest(variant Variant, req tcc.TruncateRequest, defaultInclusive string) (TruncateInput, error) {
	policy := req.Inclusive
	if policy == "" {
		policy = defaultInclusive
	}
	inclusive, err := horizon.ParseInclusive(policy)
	if err != nil {
		return TruncateInput{}, classify(err)
	}
	t1 := math.Inf(1)
	if req.T1 != nil {
		t1 = *req.T1
	}
	in := TruncateInput{
		Variant: variant,
		Window:  horizon.Window{T0: req.T0, T1: t1, Inclusive: inclusive},
		Nominal: req.Nominal,
	}
	for _, t := range []struct {
		name string
		text string
		dst  **petab.Table
	}{
		{"original_parameters", req.OriginalParameters, &in.Original.Parameters},
		{"original_measurements", req.OriginalMeasurements, &in.Original.Measurements},
		{"control_parameters", req.ControlParameters, &in.Control.Parameters},
		{"control_measurements", req.ControlMeasurements, &in.Control.Measurements},
	} {
		table, err := readTable(t.name, t.text)
		if err != nil {
			return TruncateInput{}, err
		}
		*t.dst = table
	}
	return in, nil
}

type HorizonService struct {
	log *logger.Logger
}

func NewHorizonService(log *logger.Logger) *HorizonService {
	return &HorizonService{log: log}
}

// Truncate combines the original and control problems and applies the
// window of in.Variant.
func (s *HorizonService) Truncate(_ context.Context, in TruncateInput) (TruncateOutput, error) {
	combined := horizon.Combine(in.Original, in.Control)
	var (
		out horizon.Tables
		err error
	)
	switch in.Variant {
	case EstimationVariant:
		out, err = horizon.EstimationWindow(combined, in.Window, in.Nominal)
	case ControlVariant:
		out, err = horizon.ControlWindow(combined, in.Window, in.Nominal)
	default:
		return TruncateOutput{}, invalid("unknown horizon variant %q", in.Variant)
	}
	if err != nil {
		return TruncateOutput{}, classify(err)
	}
	s.log.Infow("horizon_truncated",
		"variant", in.Variant,
		"t0", in.Window.T0,
		"t1", in.Window.T1,
		"inclusive", in.Window.Inclusive.String(),
		"measurements", len(out.Measurements.Rows),
	)
	return TruncateOutput{Tables: out}, nil
}
