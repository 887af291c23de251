package text

import (
	"testing"
)

func TestTokenizeRemovesStopWords(t *testing.T) {
	tokens := Tokenize("How much does the Blue Widget cost?")
	for _, tok := range tokens {
		switch tok.Term {
		case "how", "much", "does", "the":
			t.Errorf("stop word %q survived tokenisation", tok.Term)
		}
	}
	terms := map[string]bool{}
	for _, tok := range tokens {
		terms[tok.Term] = true
	}
	for _, want := range []string{"blue", "widget", "cost"} {
		if !terms[want] {
			t.Errorf("expected term %q in %v", want, tokens)
		}
	}
}

func TestTokenizeSkipsShortWords(t *testing.T) {
	if got := Tokenize("x y z"); len(got) != 0 {
		t.Errorf("expected no tokens for single-letter words, got %v", got)
	}
}

func TestTermsDistinctFirstSeenOrder(t *testing.T) {
	terms := Terms("widget blue widget premium blue")
	want := []string{"widget", "blue", "premium"}
	if len(terms) != len(want) {
		t.Fatalf("expected %v, got %v", want, terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], terms[i])
		}
	}
}

func TestStemmingFoldsPlurals(t *testing.T) {
	singular := Terms("widget")
	plural := Terms("widgets")
	if len(singular) != 1 || len(plural) != 1 || singular[0] != plural[0] {
		t.Errorf("expected plural to stem to singular, got %v vs %v", singular, plural)
	}
}

func TestJaccard(t *testing.T) {
	a := TermSet("blue widget pricing")
	b := TermSet("blue widget pricing")
	if sim := Jaccard(a, b); sim != 1 {
		t.Errorf("identical sets: expected 1, got %f", sim)
	}

	c := TermSet("return policy shipment")
	if sim := Jaccard(a, c); sim != 0 {
		t.Errorf("disjoint sets: expected 0, got %f", sim)
	}

	if sim := Jaccard(a, map[string]struct{}{}); sim != 0 {
		t.Errorf("empty set: expected 0, got %f", sim)
	}
}

func TestJaccardPartialOverlap(t *testing.T) {
	a := TermSet("blue widget")
	b := TermSet("blue gadget")
	sim := Jaccard(a, b)
	if sim <= 0 || sim >= 1 {
		t.Errorf("partial overlap should land strictly between 0 and 1, got %f", sim)
	}
}
