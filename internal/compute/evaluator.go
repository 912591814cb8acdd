package compute

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corefin/metrichub/internal/dsl"
	"github.com/corefin/metrichub/internal/types"
)

// SourceReader resolves a raw source reference to a value for one cell.
// A nil value with nil error means the source has no row for that cell.
type SourceReader interface {
	Read(ctx context.Context, source string, period time.Time, companyCode, dimensionsKey string) (*float64, error)
}

// Cell is one (period, company, dimension-combination) unit of
// computation. Cells are independent once a plan is compiled.
type Cell struct {
	Period        time.Time
	CompanyCode   string
	DimensionsKey string
	ComboID       *int64
}

// StepResult is the outcome of one step for one cell. A failed step
// carries a nil value and an error status; it never aborts the run.
type StepResult struct {
	Step   Step
	Cell   Cell
	Value  *float64
	Status string
	Err    string
}

type Evaluator struct {
	Sources     SourceReader
	Parallelism int
}

func NewEvaluator(sources SourceReader, parallelism int) *Evaluator {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Evaluator{Sources: sources, Parallelism: parallelism}
}

// Evaluate runs the plan over every cell. Cells run in parallel;
// cancellation is observed at cell boundaries so no cell is written
// half-evaluated.
func (e *Evaluator) Evaluate(ctx context.Context, plan *Plan, cells []Cell) ([]StepResult, error) {
	results := make([][]StepResult, len(cells))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Parallelism)
	for i := range cells {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.EvaluateCell(gctx, plan, cells[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flat := make([]StepResult, 0, len(cells)*len(plan.Steps))
	for _, rs := range results {
		flat = append(flat, rs...)
	}
	return flat, nil
}

// EvaluateCell runs every plan step for one cell, strictly in plan
// order: a step never starts before its dependencies have a value for
// this same cell.
func (e *Evaluator) EvaluateCell(ctx context.Context, plan *Plan, cell Cell) []StepResult {
	stepSet := map[string]bool{}
	for _, s := range plan.Steps {
		stepSet[s.ID] = true
	}
	values := map[string]*float64{}
	out := make([]StepResult, 0, len(plan.Steps))

	for _, step := range plan.Steps {
		res := StepResult{Step: step, Cell: cell, Status: types.ValueStatusActual}
		var v float64
		var err error
		if step.Expr != nil {
			v, err = e.evalNode(ctx, step.Expr, cell, stepSet, values)
		} else {
			v, err = e.readSource(ctx, step.Source, cell)
		}
		if err != nil {
			res.Status = types.ValueStatusError
			res.Err = err.Error()
			values[step.ID] = nil
		} else {
			val := v
			res.Value = &val
			values[step.ID] = &val
		}
		out = append(out, res)
	}
	return out
}

func (e *Evaluator) readSource(ctx context.Context, source string, cell Cell) (float64, error) {
	if e.Sources == nil {
		return 0, &MissingSourceError{Source: source}
	}
	v, err := e.Sources.Read(ctx, source, cell.Period, cell.CompanyCode, cell.DimensionsKey)
	if err != nil {
		return 0, fmt.Errorf("read source %q: %w", source, err)
	}
	if v == nil {
		return 0, &MissingSourceError{Source: source}
	}
	return *v, nil
}

func (e *Evaluator) evalNode(ctx context.Context, node dsl.Node, cell Cell, stepSet map[string]bool, values map[string]*float64) (float64, error) {
	switch n := node.(type) {
	case dsl.Number:
		return n.Value, nil
	case dsl.Identifier:
		if stepSet[n.Name] {
			v, ok := values[n.Name]
			if !ok {
				return 0, fmt.Errorf("step %q evaluated out of order", n.Name)
			}
			if v == nil {
				return 0, fmt.Errorf("upstream step %q failed for this cell", n.Name)
			}
			return *v, nil
		}
		return e.readSource(ctx, n.Name, cell)
	case dsl.BinaryOp:
		left, err := e.evalNode(ctx, n.Left, cell, stepSet, values)
		if err != nil {
			return 0, err
		}
		right, err := e.evalNode(ctx, n.Right, cell, stepSet, values)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case "+":
			return left + right, nil
		case "-":
			return left - right, nil
		case "*":
			return left * right, nil
		case "/":
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return left / right, nil
		default:
			return 0, fmt.Errorf("unknown operator %q", n.Op)
		}
	case dsl.Call:
		if len(n.Args) == 0 {
			return 0, fmt.Errorf("%s() requires at least one argument", n.Name)
		}
		args := make([]float64, 0, len(n.Args))
		for _, a := range n.Args {
			v, err := e.evalNode(ctx, a, cell, stepSet, values)
			if err != nil {
				return 0, err
			}
			args = append(args, v)
		}
		return applyFunc(n.Name, args)
	default:
		return 0, fmt.Errorf("unsupported expression node %T", node)
	}
}

func applyFunc(name string, args []float64) (float64, error) {
	switch name {
	case "SUM":
		var sum float64
		for _, v := range args {
			sum += v
		}
		return sum, nil
	case "AVG":
		var sum float64
		for _, v := range args {
			sum += v
		}
		return sum / float64(len(args)), nil
	case "MIN":
		min := args[0]
		for _, v := range args[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case "MAX":
		max := args[0]
		for _, v := range args[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	default:
		return 0, fmt.Errorf("unknown function %q", name)
	}
}
