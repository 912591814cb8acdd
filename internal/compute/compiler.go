package compute

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/corefin/metrichub/internal/dsl"
)

// Step is one evaluable unit of a compiled plan: either an expression
// over prior step outputs and raw sources, or a bare raw-source
// reference (SQL-only or expressionless calibers).
type Step struct {
	ID          string
	BindingID   uuid.UUID
	CaliberCode string
	Expr        dsl.Node
	Source      string
	DependsOn   []string
}

// Plan is a dependency-ordered sequence of steps. Steps appear in
// topological order: every step's dependencies precede it.
type Plan struct {
	Steps []Step
}

func (p *Plan) StepIDs() []string {
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.ID)
	}
	return out
}

// Compile parses every resolved binding's merged expression, builds the
// caliber reference graph and emits a topologically ordered plan.
// Compilation is pure: re-running on the same resolved list yields the
// same plan. A parse failure or reference cycle aborts the whole version.
//
// A caliber may be bound into the same version more than once. Every
// binding gets its own step (each owns its own value rows); identifier
// references to the shared code resolve to the first binding in
// resolved order.
func Compile(resolved []ResolvedBinding) (*Plan, error) {
	steps := make([]Step, 0, len(resolved))
	codeIndex := map[string]int{}
	for _, rb := range resolved {
		step, err := buildStep(rb)
		if err != nil {
			return nil, err
		}
		if step.CaliberCode != "" {
			if _, dup := codeIndex[step.CaliberCode]; dup {
				// Later bindings of an already-seen caliber get a
				// disambiguated step id so they never collide with the
				// step identifiers can reference.
				step.ID = step.CaliberCode + "#" + rb.BindingID.String()
			} else {
				codeIndex[step.CaliberCode] = len(steps)
			}
		}
		steps = append(steps, step)
	}

	index := map[string]int{}
	for i, s := range steps {
		index[s.ID] = i
	}

	// Edge step -> dep for every identifier that names another caliber in
	// the resolved set. Unresolved identifiers stay raw source references.
	adj := make([][]string, len(steps))
	for i, s := range steps {
		if s.Expr == nil {
			continue
		}
		for _, name := range dsl.Identifiers(s.Expr) {
			if j, ok := codeIndex[name]; ok {
				adj[i] = append(adj[i], steps[j].ID)
			}
		}
		steps[i].DependsOn = adj[i]
	}

	order, cycle := topoSort(steps, index, adj)
	if cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}

	ordered := make([]Step, 0, len(steps))
	for _, id := range order {
		ordered = append(ordered, steps[index[id]])
	}
	return &Plan{Steps: ordered}, nil
}

func buildStep(rb ResolvedBinding) (Step, error) {
	id := rb.CaliberCode
	if id == "" {
		id = rb.BindingID.String()
	}
	step := Step{ID: id, BindingID: rb.BindingID, CaliberCode: rb.CaliberCode}

	if len(rb.ExprDSL) > 0 {
		expr, err := decodeStoredExpr(rb.ExprDSL)
		if err != nil {
			return Step{}, &FormulaError{CaliberCode: id, Err: err}
		}
		step.Expr = expr
		return step, nil
	}
	// SQL-only and expressionless calibers become raw-source steps keyed
	// by the caliber code; the reader resolves them at evaluation time.
	step.Source = id
	return step, nil
}

// decodeStoredExpr accepts the stored expr_dsl column in either shape:
// a JSON expression document, or a JSON string holding DSL source text.
func decodeStoredExpr(raw []byte) (dsl.Node, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if strings.Contains(text, ":") {
			f, perr := dsl.ParseMetric(text)
			if perr != nil {
				return nil, perr
			}
			return f.Expression, nil
		}
		return dsl.Parse(text)
	}
	return dsl.DecodeExpr(raw)
}

// topoSort is a Kahn sort kept stable by the resolved binding order.
// On a cycle it returns the cycle membership instead of an order.
func topoSort(steps []Step, index map[string]int, adj [][]string) ([]string, []string) {
	deg := make([]int, len(steps))
	out := map[string][]int{}
	for i := range steps {
		for _, dep := range adj[i] {
			deg[i]++
			out[dep] = append(out[dep], i)
		}
	}

	order := make([]string, 0, len(steps))
	added := make([]bool, len(steps))
	for {
		progressed := false
		for i, s := range steps {
			if added[i] || deg[i] != 0 {
				continue
			}
			added[i] = true
			order = append(order, s.ID)
			for _, n := range out[s.ID] {
				deg[n]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}
	if len(order) == len(steps) {
		return order, nil
	}
	return nil, findCycle(steps, index, adj, added)
}

// findCycle walks the unresolved subgraph to name an actual cycle rather
// than just reporting that one exists.
func findCycle(steps []Step, index map[string]int, adj [][]string, resolved []bool) []string {
	onStack := map[string]int{}
	var stack []string

	var visit func(i int) []string
	visit = func(i int) []string {
		id := steps[i].ID
		if pos, ok := onStack[id]; ok {
			cycle := append([]string{}, stack[pos:]...)
			return append(cycle, id)
		}
		onStack[id] = len(stack)
		stack = append(stack, id)
		for _, dep := range adj[i] {
			j := index[dep]
			if resolved[j] {
				continue
			}
			if c := visit(j); c != nil {
				return c
			}
		}
		delete(onStack, id)
		stack = stack[:len(stack)-1]
		return nil
	}

	for i := range steps {
		if resolved[i] {
			continue
		}
		if c := visit(i); c != nil {
			return c
		}
	}
	return nil
}
