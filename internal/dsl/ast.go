package dsl

import (
	"encoding/json"
	"fmt"
)

// Node is a parsed formula expression. The concrete kinds are Identifier,
// Number, BinaryOp and Call; the latter two exist so arithmetic and
// aggregation can extend the grammar without breaking stored formulas.
type Node interface {
	node()
}

type Identifier struct {
	Name string `json:"value"`
}

type Number struct {
	Value float64 `json:"value"`
}

type BinaryOp struct {
	Op    string `json:"op"`
	Left  Node   `json:"left"`
	Right Node   `json:"right"`
}

type Call struct {
	Name string `json:"name"`
	Args []Node `json:"args"`
}

func (Identifier) node() {}
func (Number) node()     {}
func (BinaryOp) node()   {}
func (Call) node()       {}

// Formula is a named expression, the `CODE: expr` form.
type Formula struct {
	Metric     string
	Expression Node
}

func (f *Formula) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"metric":     f.Metric,
		"expression": EncodeNode(f.Expression),
	})
}

func (f *Formula) UnmarshalJSON(raw []byte) error {
	var doc struct {
		Metric     string          `json:"metric"`
		Expression json.RawMessage `json:"expression"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	expr, err := DecodeNode(doc.Expression)
	if err != nil {
		return err
	}
	f.Metric = doc.Metric
	f.Expression = expr
	return nil
}

// EncodeNode renders a node as the wire shape stored in expr_dsl columns,
// e.g. {"type":"identifier","value":"raw_gmv"}.
func EncodeNode(n Node) map[string]any {
	switch v := n.(type) {
	case Identifier:
		return map[string]any{"type": "identifier", "value": v.Name}
	case Number:
		return map[string]any{"type": "number", "value": v.Value}
	case BinaryOp:
		return map[string]any{
			"type":  "binary",
			"op":    v.Op,
			"left":  EncodeNode(v.Left),
			"right": EncodeNode(v.Right),
		}
	case Call:
		args := make([]any, 0, len(v.Args))
		for _, a := range v.Args {
			args = append(args, EncodeNode(a))
		}
		return map[string]any{"type": "call", "name": v.Name, "args": args}
	default:
		return nil
	}
}

func MarshalNode(n Node) ([]byte, error) {
	return json.Marshal(EncodeNode(n))
}

// DecodeNode parses the stored JSON shape back into a Node.
func DecodeNode(raw []byte) (Node, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode expression: %w", err)
	}
	switch probe.Type {
	case "identifier":
		var v struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return Identifier{Name: v.Value}, nil
	case "number":
		var v struct {
			Value float64 `json:"value"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return Number{Value: v.Value}, nil
	case "binary":
		var v struct {
			Op    string          `json:"op"`
			Left  json.RawMessage `json:"left"`
			Right json.RawMessage `json:"right"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		left, err := DecodeNode(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := DecodeNode(v.Right)
		if err != nil {
			return nil, err
		}
		return BinaryOp{Op: v.Op, Left: left, Right: right}, nil
	case "call":
		var v struct {
			Name string            `json:"name"`
			Args []json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		args := make([]Node, 0, len(v.Args))
		for _, a := range v.Args {
			n, err := DecodeNode(a)
			if err != nil {
				return nil, err
			}
			args = append(args, n)
		}
		return Call{Name: v.Name, Args: args}, nil
	default:
		return nil, fmt.Errorf("decode expression: unknown node type %q", probe.Type)
	}
}

// DecodeExpr accepts either a bare expression node or a full formula
// document ({"metric":...,"expression":...}) and returns the expression.
func DecodeExpr(raw []byte) (Node, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode expression: %w", err)
	}
	if expr, ok := probe["expression"]; ok {
		return DecodeNode(expr)
	}
	return DecodeNode(raw)
}

// Identifiers collects identifier names in evaluation order, first
// occurrence only.
func Identifiers(n Node) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case Identifier:
			if !seen[v.Name] {
				seen[v.Name] = true
				out = append(out, v.Name)
			}
		case BinaryOp:
			walk(v.Left)
			walk(v.Right)
		case Call:
			for _, a := range v.Args {
				walk(a)
			}
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}
