// Package manifest loads the YAML file describing a control problem.
package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"timecourse_control/internal/assembler"
	"timecourse_control/internal/petab"
	"timecourse_control/internal/timecourse"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "manifest.schema.json"

var (
	ErrUnsupported = errors.New("not yet supported")
	ErrInvalid     = errors.New("invalid manifest")
)

type Manifest struct {
	FormatVersion any       `yaml:"format_version,omitempty"`
	Problems      []Problem `yaml:"problems"`
}

type Problem struct {
	ID        string    `yaml:"problem_id"`
	StartTime any       `yaml:"start_time"`
	Control   Control   `yaml:"control"`
	Objective Objective `yaml:"objective"`
}

type Control struct {
	ControlFiles          []string `yaml:"control_files"`
	ControlParameterFiles []string `yaml:"control_parameter_files"`
}

type Objective struct {
	ObservableFiles  []string `yaml:"observable_files"`
	MeasurementFiles []string `yaml:"measurement_files"`
}

var compiled = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// Parse validates raw YAML against the manifest schema and decodes it. Only
// one problem with one file per table category is supported.
func Parse(raw []byte) (*Manifest, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	// Round-trip through JSON so the validator sees JSON types.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var payload any
	if err := json.Unmarshal(asJSON, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	schema, err := compiled()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(m.Problems) != 1 {
		return nil, fmt.Errorf("%w: %d control problems, only one is supported", ErrUnsupported, len(m.Problems))
	}
	p := m.Problems[0]
	for name, files := range map[string][]string{
		"control_files":           p.Control.ControlFiles,
		"control_parameter_files": p.Control.ControlParameterFiles,
		"observable_files":        p.Objective.ObservableFiles,
		"measurement_files":       p.Objective.MeasurementFiles,
	} {
		if len(files) != 1 {
			return nil, fmt.Errorf("%w: %d %s, only one is supported", ErrUnsupported, len(files), name)
		}
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// Problem returns the single problem of the manifest.
func (m *Manifest) Problem() Problem { return m.Problems[0] }

// LoadProblem loads the manifest at path and the tables it names, resolved
// relative to the manifest's directory.
func LoadProblem(path string) (assembler.Problem, error) {
	m, err := Load(path)
	if err != nil {
		return assembler.Problem{}, err
	}
	return m.Problem().Read(filepath.Dir(path))
}

// Read loads the problem's tables from dir.
func (p Problem) Read(dir string) (assembler.Problem, error) {
	start, err := timecourse.ParseStartTime(p.StartTime)
	if err != nil {
		return assembler.Problem{}, fmt.Errorf("problem %q: %w", p.ID, err)
	}
	out := assembler.Problem{ID: p.ID, StartTime: start}

	read := func(name string) (*petab.Table, error) {
		return petab.ReadFile(filepath.Join(dir, name))
	}
	if out.ControlTable, err = read(p.Control.ControlFiles[0]); err != nil {
		return assembler.Problem{}, err
	}
	if out.Controls, err = petab.ControlsFromTable(out.ControlTable); err != nil {
		return assembler.Problem{}, err
	}
	if out.ControlParameters, err = read(p.Control.ControlParameterFiles[0]); err != nil {
		return assembler.Problem{}, err
	}
	if out.Observables, err = read(p.Objective.ObservableFiles[0]); err != nil {
		return assembler.Problem{}, err
	}
	if out.Measurements, err = read(p.Objective.MeasurementFiles[0]); err != nil {
		return assembler.Problem{}, err
	}
	return out, nil
}
