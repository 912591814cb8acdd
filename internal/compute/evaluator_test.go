package compute

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/corefin/metrichub/internal/types"
)

// mapSource serves values keyed by "source|company|dims".
type mapSource struct {
	values map[string]float64
}

func (m *mapSource) Read(_ context.Context, source string, _ time.Time, companyCode, dimensionsKey string) (*float64, error) {
	v, ok := m.values[fmt.Sprintf("%s|%s|%s", source, companyCode, dimensionsKey)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func testCell() Cell {
	return Cell{
		Period:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CompanyCode:   "C001",
		DimensionsKey: "-",
	}
}

func compilePlan(t *testing.T, bindings ...ResolvedBinding) *Plan {
	t.Helper()
	plan, err := Compile(bindings)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return plan
}

func TestEvaluateCellArithmetic(t *testing.T) {
	src := &mapSource{values: map[string]float64{
		"raw_gmv|C001|-": 100,
		"returns|C001|-": 20,
	}}
	plan := compilePlan(t, resolvedDSL("NET", "(raw_gmv - returns) * 2"))

	ev := NewEvaluator(src, 1)
	results := ev.EvaluateCell(context.Background(), plan, testCell())
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Status != types.ValueStatusActual || r.Value == nil || *r.Value != 160 {
		t.Fatalf("result = %+v, want actual 160", r)
	}
}

func TestEvaluateCellChainsSteps(t *testing.T) {
	src := &mapSource{values: map[string]float64{"raw_gmv|C001|-": 50}}
	plan := compilePlan(t,
		resolvedDSL("NET", "GROSS - 10"),
		resolvedDSL("GROSS", "raw_gmv"),
	)

	ev := NewEvaluator(src, 1)
	results := ev.EvaluateCell(context.Background(), plan, testCell())
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	byCode := map[string]StepResult{}
	for _, r := range results {
		byCode[r.Step.CaliberCode] = r
	}
	if *byCode["GROSS"].Value != 50 {
		t.Fatalf("GROSS = %v, want 50", byCode["GROSS"].Value)
	}
	if *byCode["NET"].Value != 40 {
		t.Fatalf("NET = %v, want 40", byCode["NET"].Value)
	}
}

func TestEvaluateCellMissingSourceDegrades(t *testing.T) {
	src := &mapSource{values: map[string]float64{"present|C001|-": 7}}
	plan := compilePlan(t,
		resolvedDSL("OK", "present"),
		resolvedDSL("MISSING", "absent + 1"),
	)

	ev := NewEvaluator(src, 1)
	results := ev.EvaluateCell(context.Background(), plan, testCell())
	byCode := map[string]StepResult{}
	for _, r := range results {
		byCode[r.Step.CaliberCode] = r
	}
	ok := byCode["OK"]
	if ok.Status != types.ValueStatusActual || *ok.Value != 7 {
		t.Fatalf("OK = %+v, healthy step should not be affected", ok)
	}
	missing := byCode["MISSING"]
	if missing.Status != types.ValueStatusError || missing.Value != nil || missing.Err == "" {
		t.Fatalf("MISSING = %+v, want error status with nil value", missing)
	}
}

func TestEvaluateCellUpstreamFailurePropagates(t *testing.T) {
	src := &mapSource{values: map[string]float64{}}
	plan := compilePlan(t,
		resolvedDSL("BASE", "absent"),
		resolvedDSL("DERIVED", "BASE * 2"),
	)

	ev := NewEvaluator(src, 1)
	results := ev.EvaluateCell(context.Background(), plan, testCell())
	for _, r := range results {
		if r.Status != types.ValueStatusError {
			t.Fatalf("step %s = %+v, want error", r.Step.CaliberCode, r)
		}
	}
}

func TestEvaluateCellDivisionByZero(t *testing.T) {
	src := &mapSource{values: map[string]float64{
		"num|C001|-": 10,
		"den|C001|-": 0,
	}}
	plan := compilePlan(t, resolvedDSL("RATIO", "num / den"))

	ev := NewEvaluator(src, 1)
	results := ev.EvaluateCell(context.Background(), plan, testCell())
	if results[0].Status != types.ValueStatusError {
		t.Fatalf("division by zero produced %+v, want error", results[0])
	}
}

func TestEvaluateCellAggregateFunctions(t *testing.T) {
	src := &mapSource{values: map[string]float64{
		"a|C001|-": 2,
		"b|C001|-": 8,
		"c|C001|-": 5,
	}}
	cases := []struct {
		expr string
		want float64
	}{
		{"SUM(a, b, c)", 15},
		{"AVG(a, b, c)", 5},
		{"MIN(a, b, c)", 2},
		{"MAX(a, b, c)", 8},
	}
	ev := NewEvaluator(src, 1)
	for _, tc := range cases {
		plan := compilePlan(t, resolvedDSL("AGG", tc.expr))
		results := ev.EvaluateCell(context.Background(), plan, testCell())
		if results[0].Value == nil || *results[0].Value != tc.want {
			t.Fatalf("%s = %+v, want %v", tc.expr, results[0], tc.want)
		}
	}
}

func TestEvaluateRunsEveryCell(t *testing.T) {
	src := &mapSource{values: map[string]float64{
		"raw_gmv|C001|-": 10,
		"raw_gmv|C002|-": 20,
	}}
	plan := compilePlan(t, resolvedDSL("GMV", "raw_gmv"))

	cells := []Cell{
		{Period: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), CompanyCode: "C001", DimensionsKey: "-"},
		{Period: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), CompanyCode: "C002", DimensionsKey: "-"},
		{Period: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), CompanyCode: "C003", DimensionsKey: "-"},
	}
	ev := NewEvaluator(src, 4)
	results, err := ev.Evaluate(context.Background(), plan, cells)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	byCompany := map[string]StepResult{}
	for _, r := range results {
		byCompany[r.Cell.CompanyCode] = r
	}
	if *byCompany["C001"].Value != 10 || *byCompany["C002"].Value != 20 {
		t.Fatalf("cell values wrong: %+v", byCompany)
	}
	if byCompany["C003"].Status != types.ValueStatusError {
		t.Fatalf("cell without data = %+v, want error", byCompany["C003"])
	}
}

func TestEvaluateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := compilePlan(t, resolvedDSL("GMV", "raw_gmv"))
	ev := NewEvaluator(&mapSource{values: map[string]float64{}}, 1)
	_, err := ev.Evaluate(ctx, plan, []Cell{testCell()})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}
