package assembler

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"timecourse_control/internal/control"
	"timecourse_control/internal/petab"
	"timecourse_control/internal/resolver"
	"timecourse_control/internal/timecourse"
)

func table(t *testing.T, lines ...string) *petab.Table {
	t.Helper()
	tbl, err := petab.ReadTSV(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	if err != nil {
		t.Fatalf("ReadTSV: %v", err)
	}
	return tbl
}

func fixtureProblem(t *testing.T) (Problem, Base) {
	t.Helper()
	controlTable := table(t,
		"parameterId\ttime\tvalue\tsimulationConditionId",
		"k1\t0;5\testimate\tcond1",
		"k1\t10\t3\tcond1",
	)
	controls, err := petab.ControlsFromTable(controlTable)
	if err != nil {
		t.Fatalf("ControlsFromTable: %v", err)
	}
	p := Problem{
		ID:           "p1",
		Controls:     controls,
		ControlTable: controlTable,
		ControlParameters: table(t,
			"parameterId\tparameterScale\tlowerBound\tupperBound\tnominalValue\testimate",
			"k1\tlin\t0\t4\t1\t1",
		),
		Observables: table(t, "observableId\tobservableFormula", "obs\tx"),
		Measurements: table(t,
			"observableId\tsimulationConditionId\ttime\tmeasurement",
			"obs\tcond1\t1\t0.5",
			"obs\tcond1\t6\t0.7",
		),
		StartTime: timecourse.Literal(2),
	}
	base := Base{
		Conditions: table(t, "conditionId\tk2", "cond1\t3"),
		Parameters: table(t,
			"parameterId\tparameterScale\tlowerBound\tupperBound\tnominalValue\testimate",
			"k1\tlin\t0\t4\t1\t0",
			"k2\tlin\t0\t10\t3\t1",
		),
	}
	return p, base
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	p, base := fixtureProblem(t)
	a, err := Assemble(p, base, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	c0 := control.New("k1", 2, control.Estimate())
	c5 := control.New("k1", 7, control.Estimate())
	c10 := control.New("k1", 12, control.Fixed(3))

	if a.ConditionID != "cond1" || a.StartTime != 2 {
		t.Fatalf("condition=%q start=%v", a.ConditionID, a.StartTime)
	}

	wantTC := "0:timecourse_condition_0;2:timecourse_condition_2;7:timecourse_condition_7;12:timecourse_condition_12"
	if got := a.Timecourses.Rows; !reflect.DeepEqual(got, [][]string{{"cond1", wantTC}}) {
		t.Fatalf("timecourses=%v", got)
	}

	wantConditions := map[string]string{
		"timecourse_condition_0":  "",
		"timecourse_condition_2":  c0.ControlParameterID(),
		"timecourse_condition_7":  c5.ControlParameterID(),
		"timecourse_condition_12": c10.ControlParameterID(),
	}
	if len(a.Conditions.Rows) != len(wantConditions)+1 {
		t.Fatalf("condition rows=%d; want %d", len(a.Conditions.Rows), len(wantConditions)+1)
	}
	for cond, want := range wantConditions {
		r := a.Conditions.Find(petab.ConditionID, cond)
		if r < 0 {
			t.Fatalf("condition %q missing", cond)
		}
		if got := a.Conditions.Get(r, "k1"); got != want {
			t.Fatalf("%s: k1=%q; want %q", cond, got, want)
		}
		if got := a.Conditions.Get(r, "k2"); got != "3" {
			t.Fatalf("%s: template column k2=%q; want 3", cond, got)
		}
	}
	if a.Conditions.Find(petab.ConditionID, "cond1") < 0 {
		t.Fatal("experimental condition row missing")
	}

	wantParams := map[string][2]string{
		c0.ControlParameterID():  {"1", "2"},
		c5.ControlParameterID():  {"1", "2"},
		c10.ControlParameterID(): {"0", "3"},
	}
	for id, want := range wantParams {
		r := a.Parameters.Find(petab.ParameterID, id)
		if r < 0 {
			t.Fatalf("parameter %q missing", id)
		}
		rec := a.Parameters.Record(r)
		if rec[petab.Estimate] != want[0] || rec[petab.NominalValue] != want[1] {
			t.Fatalf("%s: estimate=%s nominal=%s; want %v", id, rec[petab.Estimate], rec[petab.NominalValue], want)
		}
		if rec[petab.ControlTarget] != "k1" || rec[petab.UpperBound] != "4" || rec[petab.ParameterScale] != "lin" {
			t.Fatalf("%s: row not inherited from k1: %v", id, rec)
		}
	}
	if rec := a.Parameters.Record(a.Parameters.Find(petab.ParameterID, c5.ControlParameterID())); rec[petab.ControlTime] != "7" {
		t.Fatalf("controlTime=%q; want absolute 7", rec[petab.ControlTime])
	}
	if a.Parameters.Find(petab.ParameterID, "k2") < 0 {
		t.Fatal("base parameter rows dropped")
	}

	if got, _ := a.Measurements.Column(petab.Time); !reflect.DeepEqual(got, []string{"3", "8"}) {
		t.Fatalf("measurement times=%v; want shifted [3 8]", got)
	}
	if got, _ := p.Measurements.Column(petab.Time); !reflect.DeepEqual(got, []string{"1", "6"}) {
		t.Fatalf("input measurements modified: %v", got)
	}

	wantFree := []string{"k2", c0.ControlParameterID(), c5.ControlParameterID()}
	if !reflect.DeepEqual(a.FreeParameters, wantFree) {
		t.Fatalf("free=%v; want %v", a.FreeParameters, wantFree)
	}

	ds := a.Descriptors()
	if len(ds) != 3 || !reflect.DeepEqual(ds[0].Periods, []int{1}) || !reflect.DeepEqual(ds[2].Periods, []int{3}) {
		t.Fatalf("descriptors=%+v", ds)
	}
}

func TestAssembleParameterOrder(t *testing.T) {
	t.Parallel()

	p, base := fixtureProblem(t)
	c0 := control.New("k1", 2, control.Estimate()).ControlParameterID()
	c5 := control.New("k1", 7, control.Estimate()).ControlParameterID()

	a, err := Assemble(p, base, []string{c5, "k2", c0})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !reflect.DeepEqual(a.FreeParameters, []string{c5, "k2", c0}) {
		t.Fatalf("free=%v", a.FreeParameters)
	}
	for _, order := range [][]string{{"k2", c0}, {"k2", c0, "k1"}, {"k2", c0, c0}} {
		if _, err := Assemble(p, base, order); !errors.Is(err, ErrParameterOrder) {
			t.Fatalf("order %v: err=%v; want ErrParameterOrder", order, err)
		}
	}
}

func TestAssembleLastMeasuredTimepoint(t *testing.T) {
	t.Parallel()

	p, base := fixtureProblem(t)
	p.StartTime = timecourse.LastMeasuredTimepoint()
	base.Measurements = table(t, "observableId\ttime\tmeasurement", "obs\t0\t1", "obs\t4\t1")

	a, err := Assemble(p, base, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if a.StartTime != 4 {
		t.Fatalf("start=%v; want 4", a.StartTime)
	}
}

func TestAssembleWithBaseTimecourse(t *testing.T) {
	t.Parallel()

	p, base := fixtureProblem(t)
	pre, err := timecourse.ParseDescription("estimation", "0:pre")
	if err != nil {
		t.Fatalf("ParseDescription: %v", err)
	}
	base.Timecourse = &pre
	base.Conditions = table(t, "conditionId\tk2", "pre\t1", "cond1\t3")

	a, err := Assemble(p, base, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if a.Segmentation.StartPeriodIndex != 1 {
		t.Fatalf("StartPeriodIndex=%d; want 1", a.Segmentation.StartPeriodIndex)
	}
	wantTC := "0:pre;2:timecourse_condition_2;7:timecourse_condition_7;12:timecourse_condition_12"
	if got := a.Timecourses.Rows[0][1]; got != wantTC {
		t.Fatalf("timecourse=%q; want %q", got, wantTC)
	}
	if a.Conditions.Find(petab.ConditionID, "pre") < 0 {
		t.Fatal("base condition missing")
	}
	ds := a.Descriptors()
	if !reflect.DeepEqual(ds[0].Periods, []int{1}) || !reflect.DeepEqual(ds[1].Periods, []int{2}) {
		t.Fatalf("descriptor periods not shifted: %+v", ds)
	}
}

func TestAssembleErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Problem)
		want   error
	}{
		{
			name: "two conditions",
			mutate: func(p *Problem) {
				p.Measurements.Set(1, petab.SimulationConditionID, "cond2")
			},
			want: ErrUnsupported,
		},
		{
			name: "species target",
			mutate: func(p *Problem) {
				p.Controls[0].Target.Kind = control.Species
			},
			want: ErrUnsupported,
		},
		{
			name: "missing parent parameter",
			mutate: func(p *Problem) {
				p.ControlParameters.Set(0, petab.ParameterID, "other")
			},
			want: ErrMissingParameter,
		},
		{
			name: "conflicting controls",
			mutate: func(p *Problem) {
				p.Controls = append(p.Controls, control.New("k1", 10, control.Fixed(4)))
			},
			want: resolver.ErrConflict,
		},
		{
			name: "no condition",
			mutate: func(p *Problem) {
				p.ControlTable = nil
				p.Measurements = petab.New(petab.ObservableID, petab.Time)
			},
			want: ErrNoCondition,
		},
	}
	for _, tc := range cases {
		p, base := fixtureProblem(t)
		tc.mutate(&p)
		if _, err := Assemble(p, base, nil); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v; want %v", tc.name, err, tc.want)
		}
	}
}

func TestInjectEvents(t *testing.T) {
	t.Parallel()

	p, base := fixtureProblem(t)
	a, err := Assemble(p, base, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	model := &MemoryModel{}
	if err := a.InjectEvents(model); err != nil {
		t.Fatalf("InjectEvents: %v", err)
	}
	if len(model.Parameters) != 6 || len(model.Events) != 3 {
		t.Fatalf("parameters=%d events=%d; want 6 and 3", len(model.Parameters), len(model.Events))
	}

	est := control.New("k1", 2, control.Estimate())
	fixed := control.New("k1", 12, control.Fixed(3))
	want := []ModelParameter{
		{ID: est.ControlParameterID(), Value: PlaceholderValue, Constant: false},
		{ID: est.SwitchParameterID(), Value: 0, Constant: false},
	}
	if !reflect.DeepEqual(model.Parameters[:2], want) {
		t.Fatalf("parameters=%+v", model.Parameters[:2])
	}
	if got := model.Parameters[4]; got != (ModelParameter{ID: fixed.ControlParameterID(), Value: 3, Constant: true}) {
		t.Fatalf("fixed control parameter=%+v", got)
	}
	if got := model.Events[0]; got != (Event{ID: est.EventID(), Trigger: "time >= 2", Variable: "k1", Assignment: est.ControlParameterID()}) {
		t.Fatalf("estimated event=%+v", got)
	}
	if got := model.Events[2]; got.Trigger != "time >= 12" || got.Assignment != "3" {
		t.Fatalf("fixed event=%+v", got)
	}

	if err := a.InjectEvents(model); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second injection err=%v; want ErrDuplicate", err)
	}
}

func TestSwitches(t *testing.T) {
	t.Parallel()

	p, base := fixtureProblem(t)
	a, err := Assemble(p, base, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	s, err := a.Switches()
	if err != nil {
		t.Fatalf("Switches: %v", err)
	}
	controls := a.Controls()
	if len(s.Conditions.Rows) != len(controls)+1 {
		t.Fatalf("condition rows=%d", len(s.Conditions.Rows))
	}
	for i, active := range controls {
		for _, c := range controls {
			want := "0"
			if c.ID() == active.ID() {
				want = "1"
			}
			if got := s.Conditions.Get(i, c.SwitchParameterID()); got != want {
				t.Fatalf("row %d switch %s=%q; want %q", i, c.SwitchParameterID(), got, want)
			}
		}
		if s.Conditions.Get(i, "k2") != "3" {
			t.Fatalf("row %d lost template", i)
		}
	}
	formula := s.Formulae["k1"]
	if strings.Count(formula, " + ") != 2 || !strings.HasPrefix(formula, controls[0].SwitchParameterID()+"*"+controls[0].ControlParameterID()) {
		t.Fatalf("formula=%q", formula)
	}
	if !strings.HasPrefix(s.Timecourses.Rows[0][1], "2:"+controls[0].ConditionID()) {
		t.Fatalf("switch timecourse=%q", s.Timecourses.Rows[0][1])
	}

	model := &MemoryModel{}
	if err := s.Apply(model); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(model.Rules) != 1 || model.Rules[0].Variable != "k1" {
		t.Fatalf("rules=%+v", model.Rules)
	}

	two := append(a.Controls(), control.New("k2", 1, control.Fixed(1)))
	if _, err := SwitchTables(two, "cond1", nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err=%v; want ErrUnsupported", err)
	}
}
