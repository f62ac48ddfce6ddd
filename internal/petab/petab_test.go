package petab

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"timecourse_control/internal/control"
)

func TestReadTSV(t *testing.T) {
	t.Parallel()

	in := "parameterId\ttime\tvalue\n" +
		"k1\t0;5\testimate\n" +
		"\n" +
		"k2\t3\n"
	tbl, err := ReadTSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadTSV: %v", err)
	}
	if !reflect.DeepEqual(tbl.Columns, []string{"parameterId", "time", "value"}) {
		t.Fatalf("columns=%v", tbl.Columns)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("want 2 rows (blank skipped), got %d", len(tbl.Rows))
	}
	if tbl.Get(1, Value) != "" || tbl.Get(1, ParameterID) != "k2" {
		t.Fatalf("short row not padded: %v", tbl.Rows[1])
	}
}

func TestReadTSVRejectsBadHeaders(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"parameterId\t time\tvalue\n",
		"parameterId\ttime \tvalue\n",
		"time\ttime\n",
	}
	for _, in := range cases {
		if _, err := ReadTSV(strings.NewReader(in)); !errors.Is(err, ErrInvalidHeader) {
			t.Fatalf("ReadTSV(%q) err=%v; want ErrInvalidHeader", in, err)
		}
	}
}

func TestReadTSVTooManyFields(t *testing.T) {
	t.Parallel()

	if _, err := ReadTSV(strings.NewReader("a\tb\n1\t2\t3\n")); err == nil {
		t.Fatal("expected an error for a row wider than the header")
	}
}

func TestControlsFromTableExplodesTimes(t *testing.T) {
	t.Parallel()

	tbl, err := ReadTSV(strings.NewReader("parameterId\ttime\tvalue\nk1\t0;2.5;10\testimate\nk2\t1\t-3\n"))
	if err != nil {
		t.Fatalf("ReadTSV: %v", err)
	}
	controls, err := ControlsFromTable(tbl)
	if err != nil {
		t.Fatalf("ControlsFromTable: %v", err)
	}
	want := []control.Control{
		control.New("k1", 0, control.Estimate()),
		control.New("k1", 2.5, control.Estimate()),
		control.New("k1", 10, control.Estimate()),
		control.New("k2", 1, control.Fixed(-3)),
	}
	if !reflect.DeepEqual(controls, want) {
		t.Fatalf("controls=%+v\nwant %+v", controls, want)
	}
}

func TestControlsFromTableErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing column":   "parameterId\ttime\nk\t1\n",
		"bad time":         "parameterId\ttime\tvalue\nk\tsoon\t1\n",
		"bad value":        "parameterId\ttime\tvalue\nk\t1\tmaybe\n",
		"empty parameter":  "parameterId\ttime\tvalue\n\t1\t1\n",
		"bad target type":  "parameterId\ttime\tvalue\ttargetType\nk\t1\t1\tcompartment\n",
		"empty time entry": "parameterId\ttime\tvalue\nk\t1;;2\t1\n",
	}
	for name, in := range cases {
		tbl, err := ReadTSV(strings.NewReader(in))
		if err != nil {
			t.Fatalf("%s: ReadTSV: %v", name, err)
		}
		if _, err := ControlsFromTable(tbl); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestControlTableRoundTrip(t *testing.T) {
	t.Parallel()

	controls := []control.Control{
		control.New("k1", 0, control.Estimate()),
		control.New("k1", 0.1, control.Fixed(1e-7)),
		control.New("k2", 1234.5678, control.Fixed(-2.25)),
		{Target: control.Target{Kind: control.Species, ID: "X"}, Time: 3, Value: control.Fixed(0)},
	}
	path := filepath.Join(t.TempDir(), "controls.tsv")
	if err := WriteControls(path, controls); err != nil {
		t.Fatalf("WriteControls: %v", err)
	}
	back, err := ReadControls(path)
	if err != nil {
		t.Fatalf("ReadControls: %v", err)
	}
	if !reflect.DeepEqual(back, controls) {
		t.Fatalf("round trip:\n%+v\n%+v", back, controls)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), "k1\t0\testimate") {
		t.Fatalf("estimate sentinel not written literally:\n%s", raw)
	}
}

func TestConcatUnionsColumns(t *testing.T) {
	t.Parallel()

	a := New("parameterId", "nominalValue")
	a.Rows = [][]string{{"k1", "1"}}
	b := New("parameterId", "category")
	b.Rows = [][]string{{"c1", "control"}}

	got := Concat(a, nil, b)
	if !reflect.DeepEqual(got.Columns, []string{"parameterId", "nominalValue", "category"}) {
		t.Fatalf("columns=%v", got.Columns)
	}
	want := [][]string{{"k1", "1", ""}, {"c1", "", "control"}}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Fatalf("rows=%v", got.Rows)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	a := New("x")
	a.Rows = [][]string{{"1"}}
	b := a.Clone()
	b.Set(0, "x", "2")
	b.Set(0, "y", "3")
	if a.Rows[0][0] != "1" || len(a.Columns) != 1 {
		t.Fatalf("clone shares state with original: %+v", a)
	}
}

func TestFilterAndFloats(t *testing.T) {
	t.Parallel()

	tbl := New(Time)
	for _, v := range []string{"0", "inf", "2", "-inf"} {
		tbl.Append(map[string]string{Time: v})
	}
	times, err := tbl.Floats(Time)
	if err != nil {
		t.Fatalf("Floats: %v", err)
	}
	if !math.IsInf(times[1], 1) || !math.IsInf(times[3], -1) {
		t.Fatalf("times=%v", times)
	}
	finite := tbl.Filter(func(r int) bool { return !math.IsInf(times[r], 0) })
	if got, _ := finite.Column(Time); !reflect.DeepEqual(got, []string{"0", "2"}) {
		t.Fatalf("filtered=%v", got)
	}
	if _, err := tbl.Column("nope"); !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("err=%v; want ErrMissingColumn", err)
	}
}

func TestExperimentalConditions(t *testing.T) {
	t.Parallel()

	controls := New(ParameterID, SimulationConditionID)
	controls.Rows = [][]string{{"k", "c1"}, {"k", ""}}
	measurements := New(ObservableID, SimulationConditionID)
	measurements.Rows = [][]string{{"o", "c2"}, {"o", "c1"}}

	got := ExperimentalConditions(controls, measurements, New(ParameterID))
	if !reflect.DeepEqual(got, []string{"c1", "c2"}) {
		t.Fatalf("conditions=%v", got)
	}
}

func TestFixParameters(t *testing.T) {
	t.Parallel()

	params := New(ParameterID, Estimate, NominalValue)
	params.Rows = [][]string{{"k1", "1", "0.5"}, {"k2", "1", "2"}}

	fixed, err := FixParameters(params, map[string]float64{"k1": 3.5})
	if err != nil {
		t.Fatalf("FixParameters: %v", err)
	}
	if fixed.Get(0, Estimate) != "0" || fixed.Get(0, NominalValue) != "3.5" {
		t.Fatalf("k1 not fixed: %v", fixed.Rows[0])
	}
	if fixed.Get(1, Estimate) != "1" {
		t.Fatalf("k2 changed: %v", fixed.Rows[1])
	}
	if params.Get(0, Estimate) != "1" {
		t.Fatal("input table mutated")
	}
	if _, err := FixParameters(params, map[string]float64{"nope": 1}); !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("err=%v; want ErrUnknownParameter", err)
	}
}
