package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/corefin/metrichub/internal/compute"
	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/services"
	"github.com/corefin/metrichub/internal/types"
	"github.com/corefin/metrichub/internal/utils"
)

type computeFixture struct {
	db       *gorm.DB
	log      *logger.Logger
	versions repos.MetricVersionRepo
	bindings repos.BindingRepo
	calibers repos.CaliberRepo
	values   repos.MetricValueRepo
	sources  repos.SourceValueRepo
	tasks    repos.TaskRunRepo
	handler  *ComputeHandler
}

func newComputeFixture(t *testing.T) *computeFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = db.AutoMigrate(
		&types.Metric{},
		&types.MetricVersion{},
		&types.MetricCaliber{},
		&types.MetricVersionCaliber{},
		&types.MetricValue{},
		&types.SourceValue{},
		&types.TaskRun{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	f := &computeFixture{
		db:       db,
		log:      log,
		versions: repos.NewMetricVersionRepo(db, log),
		bindings: repos.NewBindingRepo(db, log),
		calibers: repos.NewCaliberRepo(db, log),
		values:   repos.NewMetricValueRepo(db, log),
		sources:  repos.NewSourceValueRepo(db, log),
		tasks:    repos.NewTaskRunRepo(db, log),
	}
	resolver := compute.NewResolver(f.versions, f.bindings, log)
	f.handler = NewComputeHandler(db, log, utils.DefaultWorkerConfig(), resolver, f.values, f.sources)
	return f
}

func (f *computeFixture) createVersion(t *testing.T) *types.MetricVersion {
	t.Helper()
	version, err := f.versions.Create(context.Background(), nil, &types.MetricVersion{
		ID:            uuid.New(),
		MetricID:      uuid.New(),
		Version:       "v1",
		Status:        types.VersionStatusActive,
		EffectiveFrom: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	return version
}

func (f *computeFixture) bindCaliber(t *testing.T, versionID uuid.UUID, code, exprText string, orderIndex int) *types.MetricVersionCaliber {
	t.Helper()
	caliber, err := f.calibers.Create(context.Background(), nil, &types.MetricCaliber{
		Code:    code,
		Name:    code,
		ExprDSL: datatypes.JSON(`"` + exprText + `"`),
	})
	if err != nil {
		t.Fatalf("create caliber %s: %v", code, err)
	}
	cid := caliber.ID
	binding, err := f.bindings.Create(context.Background(), nil, &types.MetricVersionCaliber{
		ID:              uuid.New(),
		MetricVersionID: versionID,
		CaliberID:       &cid,
		Status:          types.BindingStatusActive,
		OrderIndex:      orderIndex,
	})
	if err != nil {
		t.Fatalf("create binding %s: %v", code, err)
	}
	return binding
}

func (f *computeFixture) seedSource(t *testing.T, name string, period time.Time, company string, value float64) {
	t.Helper()
	err := f.sources.Upsert(context.Background(), nil, []*types.SourceValue{{
		SourceName:    name,
		PeriodDate:    period,
		CompanyCode:   company,
		DimensionsKey: "-",
		Value:         value,
	}})
	if err != nil {
		t.Fatalf("seed source %s: %v", name, err)
	}
}

func (f *computeFixture) runTask(t *testing.T, versionID uuid.UUID, payload string) *types.TaskRun {
	t.Helper()
	ctx := context.Background()
	task, err := f.tasks.Create(ctx, nil, &types.TaskRun{
		ID:              uuid.New(),
		MetricVersionID: versionID,
		TaskType:        types.TaskTypeCompute,
		Payload:         datatypes.JSON(payload),
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	claimed, err := f.tasks.ClaimNextPending(ctx, nil)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != task.ID {
		t.Fatalf("claimed = %+v, want %s", claimed, task.ID)
	}

	tc := NewContext(ctx, f.db, claimed, f.tasks, services.NewNopTaskNotifier())
	if err := f.handler.Run(tc); err != nil {
		tc.Fail(err)
	}

	final, err := f.tasks.GetByID(ctx, nil, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	return final
}

func TestComputeTaskWritesValueRow(t *testing.T) {
	f := newComputeFixture(t)
	version := f.createVersion(t)
	binding := f.bindCaliber(t, version.ID, "GMV", "GMV: raw_gmv", 0)

	period := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.seedSource(t, "raw_gmv", period, "C001", 1234.5)

	payload := `{"metric_version_id":"` + version.ID.String() + `","period_start":"2024-01-01","period_end":"2024-01-01","company_codes":["C001"]}`
	task := f.runTask(t, version.ID, payload)
	if task.Status != types.TaskStatusCompleted {
		t.Fatalf("task = %s (%s), want completed", task.Status, task.Error)
	}

	row, err := f.values.Get(context.Background(), nil, binding.ID, period, "C001", "-")
	if err != nil {
		t.Fatalf("get value: %v", err)
	}
	if row == nil {
		t.Fatalf("no value row written")
	}
	if row.Value == nil || *row.Value != 1234.5 || row.ValueStatus != types.ValueStatusActual {
		t.Fatalf("row = %+v, want 1234.5 actual", row)
	}

	// Recompute is idempotent on the composite key.
	task2 := f.runTask(t, version.ID, payload)
	if task2.Status != types.TaskStatusCompleted {
		t.Fatalf("second task = %s (%s), want completed", task2.Status, task2.Error)
	}
	rows, err := f.values.List(context.Background(), nil, repos.MetricValueFilter{BindingID: binding.ID})
	if err != nil {
		t.Fatalf("list values: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows after recompute, want 1", len(rows))
	}
}

func TestComputeTaskChainsCalibers(t *testing.T) {
	f := newComputeFixture(t)
	version := f.createVersion(t)
	// NET listed first but depends on GROSS; the plan reorders.
	netBinding := f.bindCaliber(t, version.ID, "NET", "NET: GROSS - returns", 0)
	f.bindCaliber(t, version.ID, "GROSS", "GROSS: raw_gmv", 1)

	period := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.seedSource(t, "raw_gmv", period, "C001", 100)
	f.seedSource(t, "returns", period, "C001", 30)

	payload := `{"metric_version_id":"` + version.ID.String() + `","period_start":"2024-01-01","period_end":"2024-01-01","company_codes":["C001"]}`
	task := f.runTask(t, version.ID, payload)
	if task.Status != types.TaskStatusCompleted {
		t.Fatalf("task = %s (%s), want completed", task.Status, task.Error)
	}

	row, err := f.values.Get(context.Background(), nil, netBinding.ID, period, "C001", "-")
	if err != nil {
		t.Fatalf("get net value: %v", err)
	}
	if row == nil || row.Value == nil || *row.Value != 70 {
		t.Fatalf("NET row = %+v, want 70", row)
	}
}

func TestComputeTaskDuplicateCaliberWritesBothRows(t *testing.T) {
	f := newComputeFixture(t)
	version := f.createVersion(t)
	first := f.bindCaliber(t, version.ID, "GMV", "GMV: raw_gmv", 0)

	// Bind the same caliber a second time with an override expression.
	cid := *first.CaliberID
	second, err := f.bindings.Create(context.Background(), nil, &types.MetricVersionCaliber{
		ID:              uuid.New(),
		MetricVersionID: version.ID,
		CaliberID:       &cid,
		Status:          types.BindingStatusActive,
		OrderIndex:      1,
		OverrideExprDSL: datatypes.JSON(`"42"`),
	})
	if err != nil {
		t.Fatalf("create second binding: %v", err)
	}

	period := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.seedSource(t, "raw_gmv", period, "C001", 7)

	payload := `{"metric_version_id":"` + version.ID.String() + `","period_start":"2024-01-01","period_end":"2024-01-01","company_codes":["C001"]}`
	task := f.runTask(t, version.ID, payload)
	if task.Status != types.TaskStatusCompleted {
		t.Fatalf("task = %s (%s), want completed", task.Status, task.Error)
	}

	row1, err := f.values.Get(context.Background(), nil, first.ID, period, "C001", "-")
	if err != nil {
		t.Fatalf("get first row: %v", err)
	}
	if row1 == nil || row1.Value == nil || *row1.Value != 7 {
		t.Fatalf("first binding row = %+v, want 7", row1)
	}
	row2, err := f.values.Get(context.Background(), nil, second.ID, period, "C001", "-")
	if err != nil {
		t.Fatalf("get second row: %v", err)
	}
	if row2 == nil || row2.Value == nil || *row2.Value != 42 {
		t.Fatalf("second binding row = %+v, want overridden 42", row2)
	}
}

func TestComputeTaskMissingSourceDegradesCell(t *testing.T) {
	f := newComputeFixture(t)
	version := f.createVersion(t)
	binding := f.bindCaliber(t, version.ID, "GMV", "GMV: raw_gmv", 0)

	payload := `{"metric_version_id":"` + version.ID.String() + `","period_start":"2024-03-01","period_end":"2024-03-01","company_codes":["C009"]}`
	task := f.runTask(t, version.ID, payload)
	if task.Status != types.TaskStatusCompleted {
		t.Fatalf("task = %s (%s), want completed despite failed cell", task.Status, task.Error)
	}

	period := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	row, err := f.values.Get(context.Background(), nil, binding.ID, period, "C009", "-")
	if err != nil {
		t.Fatalf("get value: %v", err)
	}
	if row == nil || row.Value != nil || row.ValueStatus != types.ValueStatusError {
		t.Fatalf("row = %+v, want null value with error status", row)
	}
}

// stallingSourceRepo blocks every read until the evaluation context
// expires, simulating a hung source backend.
type stallingSourceRepo struct{}

func (stallingSourceRepo) Read(ctx context.Context, source string, period time.Time, companyCode, dimensionsKey string) (*float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallingSourceRepo) Upsert(ctx context.Context, tx *gorm.DB, rows []*types.SourceValue) error {
	return nil
}

func TestComputeTaskTimesOut(t *testing.T) {
	f := newComputeFixture(t)
	version := f.createVersion(t)
	f.bindCaliber(t, version.ID, "GMV", "GMV: raw_gmv", 0)

	cfg := utils.DefaultWorkerConfig()
	cfg.TaskTimeoutSeconds = 1
	resolver := compute.NewResolver(f.versions, f.bindings, f.log)
	f.handler = NewComputeHandler(f.db, f.log, cfg, resolver, f.values, stallingSourceRepo{})

	payload := `{"metric_version_id":"` + version.ID.String() + `","period_start":"2024-01-01","period_end":"2024-01-01","company_codes":["C001"]}`
	task := f.runTask(t, version.ID, payload)
	if task.Status != types.TaskStatusFailed {
		t.Fatalf("task = %s (%s), want failed on budget exhaustion", task.Status, task.Error)
	}
	if !strings.Contains(task.Error, "timeout after") {
		t.Fatalf("error = %q, want wall-clock timeout message", task.Error)
	}
}

func TestComputeTaskCycleFails(t *testing.T) {
	f := newComputeFixture(t)
	version := f.createVersion(t)
	f.bindCaliber(t, version.ID, "A", "A: B + 1", 0)
	f.bindCaliber(t, version.ID, "B", "B: A + 1", 1)

	payload := `{"metric_version_id":"` + version.ID.String() + `","period_start":"2024-01-01","period_end":"2024-01-01"}`
	task := f.runTask(t, version.ID, payload)
	if task.Status != types.TaskStatusFailed {
		t.Fatalf("task = %s, want failed on cycle", task.Status)
	}
	if !strings.Contains(task.Error, "circular") {
		t.Fatalf("error = %q, want circular reference message", task.Error)
	}
}

func TestComputeTaskMissingVersionFails(t *testing.T) {
	f := newComputeFixture(t)
	version := f.createVersion(t)

	payload := `{"metric_version_id":"` + uuid.New().String() + `"}`
	task := f.runTask(t, version.ID, payload)
	if task.Status != types.TaskStatusFailed {
		t.Fatalf("task = %s, want failed for unknown version", task.Status)
	}
}

func TestComputeTaskMonthlyWindow(t *testing.T) {
	f := newComputeFixture(t)
	version := f.createVersion(t)
	binding := f.bindCaliber(t, version.ID, "GMV", "GMV: raw_gmv", 0)

	for m := 1; m <= 3; m++ {
		f.seedSource(t, "raw_gmv", time.Date(2024, time.Month(m), 1, 0, 0, 0, 0, time.UTC), "C001", float64(m*10))
	}

	payload := `{"metric_version_id":"` + version.ID.String() + `","period_start":"2024-01-01","period_end":"2024-03-31","company_codes":["C001"]}`
	task := f.runTask(t, version.ID, payload)
	if task.Status != types.TaskStatusCompleted {
		t.Fatalf("task = %s (%s), want completed", task.Status, task.Error)
	}

	rows, err := f.values.List(context.Background(), nil, repos.MetricValueFilter{BindingID: binding.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d monthly rows, want 3", len(rows))
	}
	if *rows[0].Value != 10 || *rows[2].Value != 30 {
		t.Fatalf("monthly values wrong: %v ... %v", *rows[0].Value, *rows[2].Value)
	}
}
