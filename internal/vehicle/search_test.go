package vehicle

import "testing"

func condAt(t *testing.T, p *Predicate, i int) Condition {
	t.Helper()
	if p == nil {
		t.Fatalf("predicate is nil")
	}
	if i >= len(p.Conditions) {
		t.Fatalf("predicate has %d conditions, want index %d", len(p.Conditions), i)
	}
	return p.Conditions[i]
}

func TestBuildPredicateEmptyTerm(t *testing.T) {
	for _, term := range []string{"", "   ", "\t\n"} {
		if p := BuildPredicate(term, FieldSetAll); p != nil {
			t.Fatalf("term %q: expected nil predicate, got %+v", term, p)
		}
	}
}

func TestBuildPredicateNumericFullFieldSet(t *testing.T) {
	p := BuildPredicate("2020", FieldSetAll)

	// 数字词：id/year 精确匹配 + 四个文本列子串匹配，同一个词同时生效
	if len(p.Conditions) != 6 {
		t.Fatalf("expected 6 conditions, got %d", len(p.Conditions))
	}

	for i, col := range []string{"id", "year"} {
		c := condAt(t, p, i)
		if c.Op != OpEq || c.Column != col || c.Number != 2020 {
			t.Fatalf("condition %d: %+v, want eq %s 2020", i, c, col)
		}
	}
	for i, col := range []string{"vin", "model", "make", "plates"} {
		c := condAt(t, p, 2+i)
		if c.Op != OpContains || c.Column != col || c.Text != "2020" {
			t.Fatalf("condition %d: %+v, want contains %s '2020'", 2+i, c, col)
		}
	}
}

func TestBuildPredicateNonNumeric(t *testing.T) {
	p := BuildPredicate("ABC123", FieldSetAll)

	// 非数字词：不产生整型列条件
	if len(p.Conditions) != 4 {
		t.Fatalf("expected 4 conditions, got %d", len(p.Conditions))
	}
	for _, c := range p.Conditions {
		if c.Op != OpContains {
			t.Fatalf("unexpected op on %s: %+v", c.Column, c)
		}
	}
}

func TestBuildPredicateIdentifierFieldSet(t *testing.T) {
	// 首页搜索框配置：数字词也只有文本列子串匹配
	p := BuildPredicate("888888", FieldSetIdentifiers)

	if len(p.Conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(p.Conditions))
	}
	if c := condAt(t, p, 0); c.Column != "vin" || c.Op != OpContains {
		t.Fatalf("condition 0: %+v", c)
	}
	if c := condAt(t, p, 1); c.Column != "plates" || c.Op != OpContains {
		t.Fatalf("condition 1: %+v", c)
	}
}

func TestConditionMatchesTextCaseInsensitive(t *testing.T) {
	p := BuildPredicate("ABC123", FieldSetIdentifiers)

	// "ABC123" 应命中车牌 "abc12345"（不区分大小写子串）
	plates := condAt(t, p, 1)
	if !plates.MatchesText("abc12345") {
		t.Fatalf("expected ABC123 to match plates abc12345")
	}
	if plates.MatchesText("xyz999") {
		t.Fatalf("expected ABC123 not to match xyz999")
	}
}

func TestBuildPredicateTrimsTerm(t *testing.T) {
	p := BuildPredicate("  ABC123  ", FieldSetIdentifiers)
	if c := condAt(t, p, 0); c.Text != "ABC123" {
		t.Fatalf("expected trimmed term, got %q", c.Text)
	}
}
