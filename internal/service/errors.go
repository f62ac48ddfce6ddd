package service

import (
	"errors"
	"fmt"

	"timecourse_control/internal/assembler"
	"timecourse_control/internal/control"
	"timecourse_control/internal/horizon"
	"timecourse_control/internal/objective"
	"timecourse_control/internal/petab"
	"timecourse_control/internal/resolver"
	"timecourse_control/internal/timecourse"
)

var (
	// ErrInvalidInput marks errors caused by the caller's tables or values.
	ErrInvalidInput    = errors.New("invalid input")
	ErrProblemNotFound = errors.New("problem not found")
)

var inputErrors = []error{
	assembler.ErrUnsupported,
	assembler.ErrNoCondition,
	assembler.ErrMissingParameter,
	assembler.ErrParameterOrder,
	control.ErrInvalidValue,
	horizon.ErrInvalidInclusive,
	horizon.ErrInvalidWindow,
	horizon.ErrUnknownNominal,
	objective.ErrPeriodCount,
	objective.ErrDimension,
	petab.ErrMissingColumn,
	petab.ErrInvalidHeader,
	petab.ErrUnknownParameter,
	resolver.ErrConflict,
	resolver.ErrInconsistent,
	resolver.ErrUnknownParameter,
	timecourse.ErrInvalidTime,
	timecourse.ErrInvalidTimecourse,
	timecourse.ErrInvalidStartTime,
	timecourse.ErrUnsupportedStartTime,
}

// classify tags err with ErrInvalidInput when the engine rejected the input.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrInvalidInput) {
		return err
	}
	var missing *objective.MissingSensitivityError
	if errors.As(err, &missing) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
