package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"

	"gopkg.in/yaml.v3"

	"timecourse_control/internal/assembler"
	"timecourse_control/internal/petab"
	"timecourse_control/internal/service"
)

const testManifest = `format_version: 1
problems:
  - problem_id: p1
    start_time: 2
    control:
      control_files: [controls.tsv]
      control_parameter_files: [control_parameters.tsv]
    objective:
      observable_files: [observables.tsv]
      measurement_files: [measurements.tsv]
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return dir
}

func problemDir(t *testing.T) string {
	t.Helper()
	return writeFiles(t, map[string]string{
		"problem.yaml": testManifest,
		"controls.tsv": "parameterId\ttime\tvalue\tsimulationConditionId\n" +
			"k1\t0;5\testimate\tcond1\n" +
			"k1\t10\t3\tcond1\n",
		"control_parameters.tsv": "parameterId\tparameterScale\tlowerBound\tupperBound\tnominalValue\testimate\n" +
			"k1\tlin\t0\t4\t1\t1\n",
		"observables.tsv": "observableId\tobservableFormula\nobs\tx\n",
		"measurements.tsv": "observableId\tsimulationConditionId\ttime\tmeasurement\n" +
			"obs\tcond1\t1\t0.5\n" +
			"obs\tcond1\t6\t0.7\n",
		"base_conditions.tsv": "conditionId\tk2\ncond1\t3\n",
		"base_parameters.tsv": "parameterId\tparameterScale\tlowerBound\tupperBound\tnominalValue\testimate\n" +
			"k1\tlin\t0\t4\t1\t0\n" +
			"k2\tlin\t0\t10\t3\t1\n",
	})
}

func readModel(t *testing.T, path string) assembler.MemoryModel {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var m assembler.MemoryModel
	if err := yaml.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode model changes: %v", err)
	}
	return m
}

func TestCompileWritesTables(t *testing.T) {
	t.Parallel()

	dir := problemDir(t)
	out := filepath.Join(t.TempDir(), "out")
	a, err := compile(compileOptions{
		manifest:   filepath.Join(dir, "problem.yaml"),
		out:        out,
		conditions: filepath.Join(dir, "base_conditions.tsv"),
		parameters: filepath.Join(dir, "base_parameters.tsv"),
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if a.ProblemID != "p1" || !slices.Contains(a.FreeParameters, "k2") {
		t.Fatalf("assembly=%s free=%v", a.ProblemID, a.FreeParameters)
	}

	for _, name := range []string{conditionsFile, parametersFile, measurementsFile, observablesFile, timecoursesFile, modelChangesFile} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, switchConditionsFile)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("switch tables written without --switches: %v", err)
	}

	tc, err := petab.ReadFile(filepath.Join(out, timecoursesFile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !reflect.DeepEqual(tc.Rows, a.Timecourses.Rows) {
		t.Fatalf("timecourses=%v; want %v", tc.Rows, a.Timecourses.Rows)
	}

	m := readModel(t, filepath.Join(out, modelChangesFile))
	if m.ID != "p1" || len(m.Events) != 3 || len(m.Rules) != 0 {
		t.Fatalf("model changes=%+v", m)
	}
	if m.Events[0].Variable != "k1" {
		t.Fatalf("event=%+v; want k1 target", m.Events[0])
	}
}

func TestCompileFixAndSwitches(t *testing.T) {
	t.Parallel()

	dir := problemDir(t)
	out := t.TempDir()
	a, err := compile(compileOptions{
		manifest:   filepath.Join(dir, "problem.yaml"),
		out:        out,
		conditions: filepath.Join(dir, "base_conditions.tsv"),
		parameters: filepath.Join(dir, "base_parameters.tsv"),
		fix:        map[string]string{"k2": "5"},
		switches:   true,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if slices.Contains(a.FreeParameters, "k2") {
		t.Fatalf("free=%v; k2 should be fixed", a.FreeParameters)
	}
	if _, err := os.Stat(filepath.Join(out, switchTimecoursesFile)); err != nil {
		t.Fatalf("switch timecourses not written: %v", err)
	}
	m := readModel(t, filepath.Join(out, modelChangesFile))
	if len(m.Rules) != 1 || m.Rules[0].Variable != "k1" {
		t.Fatalf("rules=%+v; want one rule for k1", m.Rules)
	}
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	dir := problemDir(t)
	manifestPath := filepath.Join(dir, "problem.yaml")
	cases := []struct {
		name string
		opts compileOptions
	}{
		{name: "missing manifest", opts: compileOptions{manifest: filepath.Join(dir, "nope.yaml")}},
		{name: "fix without parameters", opts: compileOptions{manifest: manifestPath, fix: map[string]string{"k2": "1"}}},
		{name: "fix bad value", opts: compileOptions{manifest: manifestPath, parameters: filepath.Join(dir, "base_parameters.tsv"), fix: map[string]string{"k2": "x"}}},
		{name: "bad base timecourse", opts: compileOptions{manifest: manifestPath, baseTimecourse: "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.out = t.TempDir()
			if _, err := compile(tc.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func truncateDir(t *testing.T) truncateOptions {
	t.Helper()
	dir := writeFiles(t, map[string]string{
		"parameters.tsv":           "parameterId\tnominalValue\testimate\nk\t1\t1\n",
		"measurements.tsv":         "observableId\ttime\tmeasurement\nobs\t0\t1\nobs\t5\t1\nobs\t10\t1\n",
		"control_parameters.tsv":   "parameterId\tnominalValue\testimate\tcontrolTime\nc0\t0\t1\t0\nc20\t0\t1\t20\n",
		"control_measurements.tsv": "observableId\ttime\tmeasurement\nobs\t5\t2\nobs\t15\t2\n",
	})
	return truncateOptions{
		t0:                  0,
		t1:                  10,
		inclusive:           "left",
		parameters:          filepath.Join(dir, "parameters.tsv"),
		measurements:        filepath.Join(dir, "measurements.tsv"),
		controlParameters:   filepath.Join(dir, "control_parameters.tsv"),
		controlMeasurements: filepath.Join(dir, "control_measurements.tsv"),
		out:                 t.TempDir(),
	}
}

func TestTruncateEstimation(t *testing.T) {
	t.Parallel()

	opts := truncateDir(t)
	opts.variant = "estimation"
	if _, err := truncate(context.Background(), opts); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	m, err := petab.ReadFile(filepath.Join(opts.out, measurementsFile))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if times, _ := m.Column(petab.Time); !reflect.DeepEqual(times, []string{"0", "5"}) {
		t.Fatalf("times=%v; want [0 5]", times)
	}
	if _, err := os.Stat(filepath.Join(opts.out, parametersFile)); err != nil {
		t.Fatalf("parameters not written: %v", err)
	}
}

func TestTruncateErrors(t *testing.T) {
	t.Parallel()

	opts := truncateDir(t)
	opts.variant = "forecast"
	if _, err := truncate(context.Background(), opts); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("err=%v; want ErrInvalidInput", err)
	}

	opts = truncateDir(t)
	opts.variant = "control"
	opts.controlMeasurements = ""
	if _, err := truncate(context.Background(), opts); err == nil {
		t.Fatal("expected error for missing table")
	}

	opts = truncateDir(t)
	opts.variant = "control"
	opts.nominal = map[string]string{"c0": "abc"}
	if _, err := truncate(context.Background(), opts); err == nil {
		t.Fatal("expected error for bad nominal")
	}
}

func TestDispatch(t *testing.T) {
	if err := dispatch([]string{"frobnicate"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := dispatch([]string{"compile"}); err == nil {
		t.Fatal("expected usage error without manifest")
	}
	if err := dispatch([]string{"truncate", "--variant", "control"}); err == nil {
		t.Fatal("expected usage error without --out")
	}
}

func TestFlagParsing(t *testing.T) {
	t.Parallel()

	var opts truncateOptions
	fs := truncateFlags(&opts)
	if err := fs.Parse([]string{"--variant", "control", "--t0", "2.5", "--nominal", "c0=1,c5=2"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opts.t0 != 2.5 || opts.inclusive != "left" || len(opts.nominal) != 2 {
		t.Fatalf("opts=%+v", opts)
	}
	if opts.t1 <= 1e300 {
		t.Fatalf("t1=%v; want +Inf default", opts.t1)
	}

	var copts compileOptions
	cfs := compileFlags(&copts)
	if err := cfs.Parse([]string{"m.yaml", "--out", "o", "--fix", "k=1", "--parameter-order", "a,b"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfs.Arg(0) != "m.yaml" || copts.out != "o" || copts.fix["k"] != "1" || !reflect.DeepEqual(copts.parameterOrder, []string{"a", "b"}) {
		t.Fatalf("opts=%+v", copts)
	}
}
