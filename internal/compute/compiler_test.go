package compute

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func resolvedDSL(code, exprText string) ResolvedBinding {
	return ResolvedBinding{
		BindingID:   uuid.New(),
		CaliberID:   uuid.New(),
		CaliberCode: code,
		ExprDSL:     []byte(`"` + exprText + `"`),
	}
}

func TestCompileTopologicalOrder(t *testing.T) {
	// NET depends on GROSS even though it is listed first.
	net := resolvedDSL("NET", "GROSS - returns")
	gross := resolvedDSL("GROSS", "raw_gmv")

	plan, err := Compile([]ResolvedBinding{net, gross})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	ids := plan.StepIDs()
	if len(ids) != 2 || ids[0] != "GROSS" || ids[1] != "NET" {
		t.Fatalf("plan order = %v, want [GROSS, NET]", ids)
	}
	if len(plan.Steps[1].DependsOn) != 1 || plan.Steps[1].DependsOn[0] != "GROSS" {
		t.Fatalf("NET deps = %v, want [GROSS]", plan.Steps[1].DependsOn)
	}
}

func TestCompileStableForIndependentSteps(t *testing.T) {
	a := resolvedDSL("A", "src_a")
	b := resolvedDSL("B", "src_b")
	c := resolvedDSL("C", "src_c")

	plan, err := Compile([]ResolvedBinding{a, b, c})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	ids := plan.StepIDs()
	want := []string{"A", "B", "C"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("plan order = %v, want resolved order %v", ids, want)
		}
	}
}

func TestCompileDuplicateCaliberKeepsBothBindings(t *testing.T) {
	// The same caliber bound twice: the first carries an override, the
	// second the caliber default. Both bindings must come out as their
	// own step so both write their own value rows.
	first := resolvedDSL("GMV", "42")
	second := resolvedDSL("GMV", "raw_gmv")
	doubled := resolvedDSL("DOUBLED", "GMV * 2")

	plan, err := Compile([]ResolvedBinding{first, second, doubled})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(plan.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(plan.Steps))
	}
	byBinding := map[uuid.UUID]Step{}
	for _, s := range plan.Steps {
		byBinding[s.BindingID] = s
	}
	firstStep, ok := byBinding[first.BindingID]
	if !ok {
		t.Fatalf("first GMV binding dropped from plan")
	}
	secondStep, ok := byBinding[second.BindingID]
	if !ok {
		t.Fatalf("second GMV binding dropped from plan")
	}
	if firstStep.ID != "GMV" {
		t.Fatalf("first binding step id = %q, want GMV", firstStep.ID)
	}
	if secondStep.ID == firstStep.ID {
		t.Fatalf("duplicate bindings share step id %q", secondStep.ID)
	}

	// References to the shared code resolve to the first binding.
	depStep := byBinding[doubled.BindingID]
	if len(depStep.DependsOn) != 1 || depStep.DependsOn[0] != "GMV" {
		t.Fatalf("DOUBLED deps = %v, want [GMV]", depStep.DependsOn)
	}
}

func TestCompileCycleError(t *testing.T) {
	a := resolvedDSL("A", "B + 1")
	b := resolvedDSL("B", "A + 1")

	_, err := Compile([]ResolvedBinding{a, b})
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CycleError", err)
	}
	members := map[string]bool{}
	for _, code := range cerr.Cycle {
		members[code] = true
	}
	if !members["A"] || !members["B"] {
		t.Fatalf("cycle = %v, want both A and B named", cerr.Cycle)
	}
}

func TestCompileSelfReferenceIsCycle(t *testing.T) {
	_, err := Compile([]ResolvedBinding{resolvedDSL("LOOP", "LOOP + 1")})
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CycleError", err)
	}
}

func TestCompileUnknownIdentifierIsSourceRef(t *testing.T) {
	// raw_gmv names no caliber in the set; it stays a free source
	// reference, not an edge and not an error.
	plan, err := Compile([]ResolvedBinding{resolvedDSL("GMV", "raw_gmv * 2")})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(plan.Steps[0].DependsOn) != 0 {
		t.Fatalf("deps = %v, want none", plan.Steps[0].DependsOn)
	}
}

func TestCompileSQLOnlyBecomesSourceStep(t *testing.T) {
	sqlOnly := ResolvedBinding{
		BindingID:   uuid.New(),
		CaliberCode: "LEGACY",
		ExprSQL:     "SELECT sum(x) FROM y",
	}
	expr := resolvedDSL("DOUBLED", "LEGACY * 2")

	plan, err := Compile([]ResolvedBinding{sqlOnly, expr})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if plan.Steps[0].ID != "LEGACY" || plan.Steps[0].Expr != nil || plan.Steps[0].Source != "LEGACY" {
		t.Fatalf("sql-only step = %+v, want source step LEGACY", plan.Steps[0])
	}
	if len(plan.Steps[1].DependsOn) != 1 || plan.Steps[1].DependsOn[0] != "LEGACY" {
		t.Fatalf("DOUBLED deps = %v, want [LEGACY]", plan.Steps[1].DependsOn)
	}
}

func TestCompileParseFailureNamesCaliber(t *testing.T) {
	_, err := Compile([]ResolvedBinding{resolvedDSL("BROKEN", "a + ")})
	var ferr *FormulaError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %v, want *FormulaError", err)
	}
	if ferr.CaliberCode != "BROKEN" {
		t.Fatalf("caliber = %q, want BROKEN", ferr.CaliberCode)
	}
}

func TestCompileAcceptsStoredNodeDocument(t *testing.T) {
	rb := ResolvedBinding{
		BindingID:   uuid.New(),
		CaliberCode: "DOC",
		ExprDSL:     []byte(`{"type":"identifier","value":"raw_gmv"}`),
	}
	plan, err := Compile([]ResolvedBinding{rb})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if plan.Steps[0].Expr == nil {
		t.Fatalf("stored node document not decoded")
	}
}

func TestCompileAcceptsMetricForm(t *testing.T) {
	rb := ResolvedBinding{
		BindingID:   uuid.New(),
		CaliberCode: "GMV",
		ExprDSL:     []byte(`"GMV: raw_gmv - returns"`),
	}
	plan, err := Compile([]ResolvedBinding{rb})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if plan.Steps[0].Expr == nil {
		t.Fatalf("metric-form DSL not decoded")
	}
}
