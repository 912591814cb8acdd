package dsl

import (
	"encoding/json"
	"testing"
)

func TestParseMetricIdentifier(t *testing.T) {
	f, err := ParseMetric("GMV: raw_gmv")
	if err != nil {
		t.Fatalf("ParseMetric failed: %v", err)
	}
	if f.Metric != "GMV" {
		t.Fatalf("metric = %q, want GMV", f.Metric)
	}
	id, ok := f.Expression.(Identifier)
	if !ok {
		t.Fatalf("expression = %T, want Identifier", f.Expression)
	}
	if id.Name != "raw_gmv" {
		t.Fatalf("identifier = %q, want raw_gmv", id.Name)
	}

	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal formula: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal formula doc: %v", err)
	}
	if doc["metric"] != "GMV" {
		t.Fatalf("doc metric = %v, want GMV", doc["metric"])
	}
	expr := doc["expression"].(map[string]any)
	if expr["type"] != "identifier" || expr["value"] != "raw_gmv" {
		t.Fatalf("doc expression = %v", expr)
	}
}

func TestParseMetricNumber(t *testing.T) {
	f, err := ParseMetric("GMV: 42")
	if err != nil {
		t.Fatalf("ParseMetric failed: %v", err)
	}
	num, ok := f.Expression.(Number)
	if !ok {
		t.Fatalf("expression = %T, want Number", f.Expression)
	}
	if num.Value != 42.0 {
		t.Fatalf("number = %v, want 42.0", num.Value)
	}
}

func TestParsePrecedence(t *testing.T) {
	node, err := Parse("base + margin * 2")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	add, ok := node.(BinaryOp)
	if !ok || add.Op != "+" {
		t.Fatalf("root = %#v, want + at root", node)
	}
	if id, ok := add.Left.(Identifier); !ok || id.Name != "base" {
		t.Fatalf("left = %#v, want base", add.Left)
	}
	mul, ok := add.Right.(BinaryOp)
	if !ok || mul.Op != "*" {
		t.Fatalf("right = %#v, want * subtree", add.Right)
	}
}

func TestParseParensOverridePrecedence(t *testing.T) {
	node, err := Parse("(base + margin) * 2")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	mul, ok := node.(BinaryOp)
	if !ok || mul.Op != "*" {
		t.Fatalf("root = %#v, want * at root", node)
	}
	if add, ok := mul.Left.(BinaryOp); !ok || add.Op != "+" {
		t.Fatalf("left = %#v, want + subtree", mul.Left)
	}
}

func TestParseCall(t *testing.T) {
	node, err := Parse("SUM(net_sales, returns)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	call, ok := node.(Call)
	if !ok {
		t.Fatalf("root = %T, want Call", node)
	}
	if call.Name != "SUM" || len(call.Args) != 2 {
		t.Fatalf("call = %#v", call)
	}
}

func TestParseWhitespaceInsensitive(t *testing.T) {
	a, err := Parse("base+margin")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	b, err := Parse("  base  \n +\t margin ")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ra, _ := MarshalNode(a)
	rb, _ := MarshalNode(b)
	if string(ra) != string(rb) {
		t.Fatalf("whitespace changed parse: %s vs %s", ra, rb)
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse("base + ")
	perr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("error = %T, want *ParseError", err)
	}
	if perr.Line != 1 || perr.Col != 8 {
		t.Fatalf("position = %d:%d, want 1:8", perr.Line, perr.Col)
	}

	_, err = Parse("a +\n* b")
	perr, ok = err.(*ParseError)
	if !ok {
		t.Fatalf("error = %T, want *ParseError", err)
	}
	if perr.Line != 2 || perr.Col != 1 {
		t.Fatalf("position = %d:%d, want 2:1", perr.Line, perr.Col)
	}
}

func TestParseRejectsTrailingInput(t *testing.T) {
	if _, err := Parse("42abc"); err == nil {
		t.Fatalf("expected error for trailing identifier after number")
	}
	if _, err := ParseMetric("GMV raw_gmv"); err == nil {
		t.Fatalf("expected error for missing colon")
	}
}

func TestNodeJSONRoundTrip(t *testing.T) {
	node, err := Parse("SUM(a, b) / (c - 1.5)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	raw, err := MarshalNode(node)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := DecodeNode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw2, _ := MarshalNode(back)
	if string(raw) != string(raw2) {
		t.Fatalf("round trip mismatch: %s vs %s", raw, raw2)
	}
}

func TestDecodeExprAcceptsFormulaDoc(t *testing.T) {
	doc := `{"metric":"GMV","expression":{"type":"identifier","value":"raw_gmv"}}`
	node, err := DecodeExpr([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeExpr failed: %v", err)
	}
	if id, ok := node.(Identifier); !ok || id.Name != "raw_gmv" {
		t.Fatalf("node = %#v, want identifier raw_gmv", node)
	}
}

func TestIdentifiersCollection(t *testing.T) {
	node, err := Parse("a + SUM(b, a) * c")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ids := Identifiers(node)
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("identifiers = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("identifiers = %v, want %v", ids, want)
		}
	}
}
