package compute

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/corefin/metrichub/internal/types"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func caliber(code, exprSQL string, exprDSL string) *types.MetricCaliber {
	c := &types.MetricCaliber{ID: uuid.New(), Code: code, Name: code, ExprSQL: exprSQL}
	if exprDSL != "" {
		c.ExprDSL = datatypes.JSON(exprDSL)
	}
	return c
}

func binding(c *types.MetricCaliber, orderIndex int, seq int64) *types.MetricVersionCaliber {
	b := &types.MetricVersionCaliber{
		ID:         uuid.New(),
		Status:     types.BindingStatusActive,
		OrderIndex: orderIndex,
		Seq:        seq,
	}
	if c != nil {
		id := c.ID
		b.CaliberID = &id
		b.Caliber = c
	}
	return b
}

func TestResolveRowsTemporalFilter(t *testing.T) {
	asOf := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	current := binding(caliber("CURRENT", "", `"1"`), 0, 1)
	current.EffectiveFrom = datePtr(2024, 1, 1)

	expired := binding(caliber("EXPIRED", "", `"2"`), 1, 2)
	expired.EffectiveTo = datePtr(2024, 5, 31)

	future := binding(caliber("FUTURE", "", `"3"`), 2, 3)
	future.EffectiveFrom = datePtr(2024, 7, 1)

	open := binding(caliber("OPEN", "", `"4"`), 3, 4)

	got := ResolveRows([]*types.MetricVersionCaliber{current, expired, future, open}, asOf)
	if len(got) != 2 {
		t.Fatalf("resolved %d bindings, want 2", len(got))
	}
	if got[0].CaliberCode != "CURRENT" || got[1].CaliberCode != "OPEN" {
		t.Fatalf("resolved codes = [%s, %s], want [CURRENT, OPEN]", got[0].CaliberCode, got[1].CaliberCode)
	}
}

func TestResolveRowsBoundaryDatesInclusive(t *testing.T) {
	b := binding(caliber("WINDOW", "", `"1"`), 0, 1)
	b.EffectiveFrom = datePtr(2024, 3, 1)
	b.EffectiveTo = datePtr(2024, 3, 31)

	rows := []*types.MetricVersionCaliber{b}
	if got := ResolveRows(rows, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)); len(got) != 1 {
		t.Fatalf("binding should be effective on its from date")
	}
	if got := ResolveRows(rows, time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC)); len(got) != 1 {
		t.Fatalf("binding should be effective on its to date")
	}
	if got := ResolveRows(rows, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)); len(got) != 0 {
		t.Fatalf("binding should not be effective after its to date")
	}
}

func TestResolveRowsExcludesInactive(t *testing.T) {
	b := binding(caliber("OFF", "", `"1"`), 0, 1)
	b.Status = types.BindingStatusInactive
	if got := ResolveRows([]*types.MetricVersionCaliber{b}, time.Now()); len(got) != 0 {
		t.Fatalf("inactive binding resolved: %+v", got)
	}
}

func TestResolveRowsOverridePrecedence(t *testing.T) {
	c := caliber("X", "SELECT x", `"x_dsl"`)

	plain := binding(c, 0, 1)
	withDSL := binding(c, 1, 2)
	withDSL.OverrideExprDSL = datatypes.JSON(`"y_dsl"`)
	withSQL := binding(c, 2, 3)
	withSQL.OverrideExprSQL = "SELECT y"

	got := ResolveRows([]*types.MetricVersionCaliber{plain, withDSL, withSQL}, time.Now())
	if len(got) != 3 {
		t.Fatalf("resolved %d bindings, want 3", len(got))
	}
	if string(got[0].ExprDSL) != `"x_dsl"` || got[0].ExprSQL != "" {
		t.Fatalf("plain binding merged wrong: %+v", got[0])
	}
	if string(got[1].ExprDSL) != `"y_dsl"` || got[1].ExprSQL != "" {
		t.Fatalf("dsl override lost: %+v", got[1])
	}
	// An SQL override replaces the whole expression, including the
	// caliber's own DSL.
	if got[2].ExprSQL != "SELECT y" || len(got[2].ExprDSL) != 0 {
		t.Fatalf("sql override merged wrong: %+v", got[2])
	}
}

func TestResolveRowsDataSourceOverride(t *testing.T) {
	c := caliber("SRC", "", `"1"`)
	c.DataSources = datatypes.JSON(`["erp"]`)

	inherited := binding(c, 0, 1)
	overridden := binding(c, 1, 2)
	overridden.OverrideDataSources = datatypes.JSON(`["crm","dwh"]`)

	got := ResolveRows([]*types.MetricVersionCaliber{inherited, overridden}, time.Now())
	if len(got[0].DataSources) != 1 || got[0].DataSources[0] != "erp" {
		t.Fatalf("inherited data sources = %v", got[0].DataSources)
	}
	if len(got[1].DataSources) != 2 || got[1].DataSources[0] != "crm" {
		t.Fatalf("overridden data sources = %v", got[1].DataSources)
	}
}

func TestResolveRowsOrderingAndTieBreak(t *testing.T) {
	a := binding(caliber("A", "", `"1"`), 2, 1)
	b := binding(caliber("B", "", `"2"`), 0, 5)
	c := binding(caliber("C", "", `"3"`), 0, 3)

	got := ResolveRows([]*types.MetricVersionCaliber{a, b, c}, time.Now())
	codes := []string{got[0].CaliberCode, got[1].CaliberCode, got[2].CaliberCode}
	want := []string{"C", "B", "A"}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("order = %v, want %v", codes, want)
		}
	}

	// Same input, same output.
	again := ResolveRows([]*types.MetricVersionCaliber{a, b, c}, time.Now())
	for i := range got {
		if again[i].BindingID != got[i].BindingID {
			t.Fatalf("resolution is not deterministic")
		}
	}
}

func TestResolveRowsDanglingCaliber(t *testing.T) {
	b := binding(nil, 0, 1)
	b.OverrideExprSQL = "SELECT 1"
	got := ResolveRows([]*types.MetricVersionCaliber{b}, time.Now())
	if len(got) != 1 {
		t.Fatalf("binding without caliber dropped")
	}
	if got[0].CaliberCode != "" || got[0].ExprSQL != "SELECT 1" {
		t.Fatalf("dangling binding merged wrong: %+v", got[0])
	}
}
