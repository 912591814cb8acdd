package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/corefin/metrichub/internal/compute"
	"github.com/corefin/metrichub/internal/logger"
	"github.com/corefin/metrichub/internal/repos"
	"github.com/corefin/metrichub/internal/types"
	"github.com/corefin/metrichub/internal/utils"
)

// ComputeHandler executes one metric_compute task: resolve the version's
// caliber chain, compile the plan, evaluate every period/company/combo
// cell and upsert the resulting value rows.
type ComputeHandler struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      utils.WorkerConfig
	resolver *compute.Resolver
	values   repos.MetricValueRepo
	sources  repos.SourceValueRepo
}

func NewComputeHandler(db *gorm.DB, baseLog *logger.Logger, cfg utils.WorkerConfig, resolver *compute.Resolver, values repos.MetricValueRepo, sources repos.SourceValueRepo) *ComputeHandler {
	return &ComputeHandler{
		db:       db,
		log:      baseLog.With("handler", "ComputeHandler"),
		cfg:      cfg,
		resolver: resolver,
		values:   values,
		sources:  sources,
	}
}

func (h *ComputeHandler) Type() string { return types.TaskTypeCompute }

type computeResult struct {
	RowsWritten int    `json:"rows_written"`
	CellsTotal  int    `json:"cells_total"`
	CellsFailed int    `json:"cells_failed"`
	Steps       int    `json:"steps"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

func (h *ComputeHandler) Run(tc *Context) error {
	versionID, ok := tc.PayloadUUID("metric_version_id")
	if !ok {
		return fmt.Errorf("payload missing metric_version_id")
	}

	asOf := time.Now().UTC()
	if d, ok := tc.PayloadDate("as_of"); ok {
		asOf = d
	}
	periodStart, ok := tc.PayloadDate("period_start")
	if !ok {
		periodStart = firstOfMonth(asOf)
	}
	periodEnd, ok := tc.PayloadDate("period_end")
	if !ok {
		periodEnd = periodStart
	}
	if periodEnd.Before(periodStart) {
		return fmt.Errorf("period_end %s before period_start %s",
			periodEnd.Format("2006-01-02"), periodStart.Format("2006-01-02"))
	}

	timeout := time.Duration(h.cfg.TaskTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(tc.Ctx, timeout)
	defer cancel()

	// External cancel is observed at cell boundaries: this poller trips
	// the evaluation context as soon as the stored status flips.
	stopPolling := make(chan struct{})
	defer close(stopPolling)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stopPolling:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if tc.Canceled() {
					cancel()
					return
				}
			}
		}
	}()

	resolved, err := h.resolver.Resolve(runCtx, versionID, asOf)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	plan, err := compute.Compile(resolved)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	cells := buildCells(periodStart, periodEnd, tc.PayloadStrings("company_codes"), payloadComboIDs(tc))
	evaluator := compute.NewEvaluator(h.sources, h.cfg.CellParallelism)
	results, err := evaluator.Evaluate(runCtx, plan, cells)
	if err != nil {
		if tc.Canceled() {
			h.log.Info("task canceled mid-run", "task_id", tc.Task.ID)
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timeout after %s", timeout)
		}
		return fmt.Errorf("evaluate: %w", err)
	}

	rows := make([]*types.MetricValue, 0, len(results))
	failedCells := map[string]bool{}
	for _, r := range results {
		row := &types.MetricValue{
			MetricVersionCaliberID: r.Step.BindingID,
			PeriodDate:             r.Cell.Period,
			CompanyCode:            r.Cell.CompanyCode,
			DimensionsKey:          r.Cell.DimensionsKey,
			Value:                  r.Value,
			ValueStatus:            r.Status,
			ComboID:                r.Cell.ComboID,
		}
		rows = append(rows, row)
		if r.Status == types.ValueStatusError {
			failedCells[cellKey(r.Cell)] = true
		}
	}
	if err := h.upsertWithRetry(runCtx, rows); err != nil {
		return fmt.Errorf("value upsert: %w", err)
	}

	res := computeResult{
		RowsWritten: len(rows),
		CellsTotal:  len(cells),
		CellsFailed: len(failedCells),
		Steps:       len(plan.Steps),
		PeriodStart: periodStart.Format("2006-01-02"),
		PeriodEnd:   periodEnd.Format("2006-01-02"),
	}
	h.log.Info("compute finished",
		"task_id", tc.Task.ID,
		"metric_version_id", versionID,
		"rows_written", res.RowsWritten,
		"cells_failed", res.CellsFailed,
	)
	tc.Succeed(res)
	return nil
}

// upsertWithRetry retries transient storage errors with linear backoff
// before giving up and failing the task.
func (h *ComputeHandler) upsertWithRetry(ctx context.Context, rows []*types.MetricValue) error {
	retries := h.cfg.UpsertRetries
	if retries < 1 {
		retries = 1
	}
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		err = h.values.Upsert(ctx, nil, rows)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		h.log.Warn("value upsert failed", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
		}
	}
	return err
}

// buildCells expands the requested window into monthly period cells
// crossed with companies and dimension combos. Without explicit
// dimensions a cell gets the "-" placeholder key.
func buildCells(periodStart, periodEnd time.Time, companyCodes []string, comboIDs []int64) []compute.Cell {
	if len(companyCodes) == 0 {
		companyCodes = []string{"-"}
	}
	var cells []compute.Cell
	for period := firstOfMonth(periodStart); !period.After(periodEnd); period = period.AddDate(0, 1, 0) {
		for _, company := range companyCodes {
			if len(comboIDs) == 0 {
				cells = append(cells, compute.Cell{
					Period:        period,
					CompanyCode:   company,
					DimensionsKey: "-",
				})
				continue
			}
			for _, comboID := range comboIDs {
				id := comboID
				cells = append(cells, compute.Cell{
					Period:        period,
					CompanyCode:   company,
					DimensionsKey: "combo:" + strconv.FormatInt(id, 10),
					ComboID:       &id,
				})
			}
		}
	}
	return cells
}

func payloadComboIDs(tc *Context) []int64 {
	v, ok := tc.Payload()["combo_ids"]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		switch n := item.(type) {
		case float64:
			out = append(out, int64(n))
		case string:
			if id, err := strconv.ParseInt(n, 10, 64); err == nil {
				out = append(out, id)
			}
		}
	}
	return out
}

func cellKey(c compute.Cell) string {
	return c.Period.Format("2006-01-02") + "|" + c.CompanyCode + "|" + c.DimensionsKey
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
