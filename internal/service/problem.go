package service

import (
	"context"
	"fmt"
	"strings"

	tcc "timecourse_control"
	"timecourse_control/internal/assembler"
	"timecourse_control/internal/logger"
	"timecourse_control/internal/models"
	"timecourse_control/internal/petab"
	"timecourse_control/internal/repository"
	"timecourse_control/internal/timecourse"
)

// CompileInput is a parsed compile request.
type CompileInput struct {
	Problem        assembler.Problem
	Base           assembler.Base
	ParameterOrder []string
}

// ParseCompileRequest reads the TSV tables of req.
func ParseCompileRequest(req tcc.CompileRequest) (CompileInput, error) {
	start, err := timecourse.ParseStartTime(req.StartTime)
	if err != nil {
		return CompileInput{}, classify(err)
	}
	in := CompileInput{
		Problem:        assembler.Problem{ID: req.ProblemID, StartTime: start},
		ParameterOrder: req.ParameterOrder,
	}
	p := &in.Problem

	for _, t := range []struct {
		name     string
		text     string
		dst      **petab.Table
		optional bool
	}{
		{name: "controls", text: req.Controls, dst: &p.ControlTable},
		{name: "control_parameters", text: req.ControlParameters, dst: &p.ControlParameters},
		{name: "observables", text: req.Observables, dst: &p.Observables, optional: true},
		{name: "measurements", text: req.Measurements, dst: &p.Measurements},
		{name: "base_conditions", text: req.BaseConditions, dst: &in.Base.Conditions, optional: true},
		{name: "base_parameters", text: req.BaseParameters, dst: &in.Base.Parameters, optional: true},
		{name: "base_measurements", text: req.BaseMeasurements, dst: &in.Base.Measurements, optional: true},
	} {
		if strings.TrimSpace(t.text) == "" {
			if !t.optional {
				return CompileInput{}, invalid("%s table is empty", t.name)
			}
			continue
		}
		table, err := readTable(t.name, t.text)
		if err != nil {
			return CompileInput{}, err
		}
		*t.dst = table
	}

	if p.Controls, err = petab.ControlsFromTable(p.ControlTable); err != nil {
		return CompileInput{}, invalid("controls: %v", err)
	}
	if req.BaseTimecourse != "" {
		tc, err := timecourse.ParseDescription("base", req.BaseTimecourse)
		if err != nil {
			return CompileInput{}, classify(err)
		}
		in.Base.Timecourse = &tc
	}
	return in, nil
}

func readTable(name, text string) (*petab.Table, error) {
	t, err := petab.ReadTSV(strings.NewReader(text))
	if err != nil {
		return nil, invalid("%s: %v", name, err)
	}
	return t, nil
}

type ProblemService struct {
	problems repository.ProblemRepo
	log      *logger.Logger
}

func NewProblemService(problems repository.ProblemRepo, log *logger.Logger) *ProblemService {
	return &ProblemService{problems: problems, log: log}
}

// Compile assembles in and stores the result.
func (s *ProblemService) Compile(ctx context.Context, in CompileInput) (*models.Problem, error) {
	a, err := assembler.Assemble(in.Problem, in.Base, in.ParameterOrder)
	if err != nil {
		return nil, classify(err)
	}
	p := Snapshot(a)
	if err := s.problems.Save(ctx, p); err != nil {
		return nil, err
	}
	s.log.Infow("problem_compiled",
		"id", p.ID,
		"problem_id", p.ProblemID,
		"condition_id", p.ConditionID,
		"periods", p.PeriodCount,
		"control_parameters", len(p.Descriptors),
	)
	return p, nil
}

// Snapshot converts an assembly to its stored form.
func Snapshot(a *assembler.Assembly) *models.Problem {
	p := &models.Problem{
		ProblemID:      a.ProblemID,
		ConditionID:    a.ConditionID,
		StartTime:      a.StartTime,
		PeriodCount:    a.Segmentation.Full.Len(),
		Conditions:     a.Conditions.String(),
		Parameters:     a.Parameters.String(),
		Measurements:   a.Measurements.String(),
		Timecourses:    a.Timecourses.String(),
		Descriptors:    a.Descriptors(),
		FreeParameters: a.FreeParameters,
	}
	return p
}

func (s *ProblemService) Get(ctx context.Context, id string) (*models.Problem, error) {
	p, err := s.problems.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrProblemNotFound, id)
	}
	return p, nil
}

func (s *ProblemService) List(ctx context.Context) ([]models.Problem, error) {
	return s.problems.List(ctx)
}
