package petab

import "sort"

// Column names of the estimation problem tables.
const (
	ConditionID           = "conditionId"
	ConditionName         = "conditionName"
	ParameterID           = "parameterId"
	ParameterName         = "parameterName"
	ParameterScale        = "parameterScale"
	LowerBound            = "lowerBound"
	UpperBound            = "upperBound"
	NominalValue          = "nominalValue"
	Estimate              = "estimate"
	ObservableID          = "observableId"
	SimulationConditionID = "simulationConditionId"
	Measurement           = "measurement"
	Time                  = "time"
	TimecourseID          = "timecourseId"
	Timecourse            = "timecourse"

	// Control table.
	Value      = "value"
	TargetType = "targetType"

	// Columns added to derived parameter tables.
	ControlTarget = "controlTarget"
	ControlTime   = "controlTime"
	Category      = "category"
)

// Categories tag rows of combined estimation+control tables.
const (
	CategoryOriginal = "original"
	CategoryControl  = "control"
)

// Estimate column values.
const (
	Estimated    = "1"
	NotEstimated = "0"
)

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
