package faq

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/pavelanni/tutorstats/internal/model"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func question(text, student string, at time.Time, concepts ...string) model.Question {
	return model.Question{Text: text, Concepts: concepts, StudentID: student, AskedAt: at}
}

func TestSameSolveQuestionsShareGroup(t *testing.T) {
	c := New(50, 100)
	c.Add(question("How do I solve for x?", "s1", t0, "algebra"))
	c.Add(question("How can I solve for x??", "s2", t0.Add(time.Minute), "algebra"))

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	top := c.Top(10, "")
	if top[0].Frequency != 2 {
		t.Errorf("Frequency = %d, want 2", top[0].Frequency)
	}
	if top[0].UniqueStudents != 2 {
		t.Errorf("UniqueStudents = %d, want 2", top[0].UniqueStudents)
	}
	if top[0].RepresentativeQuestion != "How do I solve for x?" {
		t.Errorf("RepresentativeQuestion = %q", top[0].RepresentativeQuestion)
	}
	if !top[0].FirstAsked.Equal(t0) || !top[0].LastAsked.Equal(t0.Add(time.Minute)) {
		t.Errorf("asked range = %v..%v", top[0].FirstAsked, top[0].LastAsked)
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		concepts []string
		want     []string
	}{
		{"concepts and terms sorted", "Explain derivative rules quickly please", []string{"calculus"}, []string{"calculus", "derivative", "explain", "rules"}},
		{"question words skipped", "What does this mean for slopes?", nil, []string{"mean", "slopes"}},
		{"only first three terms", "alpha bravo charlie delta echo", nil, []string{"alpha", "bravo", "charlie"}},
		{"duplicates collapse", "algebra algebra", []string{"algebra"}, []string{"algebra"}},
		{"empty", "why is it so?", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Signature(tt.text, tt.concepts)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Signature(%q, %v) = %v, want %v", tt.text, tt.concepts, got, tt.want)
			}
		})
	}
}

func TestSignatureDeterministic(t *testing.T) {
	a := Signature("How to factor polynomials fast?", []string{"algebra", "factoring"})
	b := Signature("how to FACTOR polynomials fast", []string{"factoring", "algebra"})
	if !slices.Equal(a, b) {
		t.Errorf("signatures differ: %v vs %v", a, b)
	}
}

func TestEmptySignaturesCollapse(t *testing.T) {
	c := New(50, 100)
	c.Add(question("why is it so?", "s1", t0))
	c.Add(question("is it x or y?", "s2", t0))
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (empty signatures share a group)", c.Len())
	}
}

func TestTopRankingAndCategory(t *testing.T) {
	c := New(50, 100)
	for i := 0; i < 3; i++ {
		c.Add(question("How do I integrate by parts?", "s1", t0, "Calculus"))
	}
	c.Add(question("What is a matrix inverse?", "s1", t0, "linear-algebra"))
	c.Add(question("What is a matrix inverse?", "s2", t0, "linear-algebra"))
	c.Add(question("Why are primes infinite?", "s3", t0, "number-theory"))

	top := c.Top(2, "")
	if len(top) != 2 {
		t.Fatalf("Top(2) returned %d groups", len(top))
	}
	if top[0].Frequency != 3 || top[1].Frequency != 2 {
		t.Errorf("frequencies = %d, %d, want 3, 2", top[0].Frequency, top[1].Frequency)
	}

	calc := c.Top(10, "CALC")
	if len(calc) != 1 || calc[0].Concepts[0] != "Calculus" {
		t.Errorf("Top(category CALC) = %+v, want the calculus group", calc)
	}
	if got := c.Top(10, "algebra"); len(got) != 1 {
		t.Errorf("Top(category algebra) returned %d groups, want 1", len(got))
	}
	if got := c.Top(10, "chemistry"); len(got) != 0 {
		t.Errorf("Top(category chemistry) returned %d groups, want 0", len(got))
	}
	if got := c.Top(0, ""); len(got) != 3 {
		t.Errorf("Top(0) returned %d groups, want 3", len(got))
	}
}

func TestMembersBounded(t *testing.T) {
	c := New(3, 100)
	for i := 0; i < 10; i++ {
		c.Add(question(fmt.Sprintf("How to solve equation %d?", i), "s1", t0, "algebra"))
	}
	top := c.Top(1, "")
	if top[0].Frequency != 10 {
		t.Errorf("Frequency = %d, want 10", top[0].Frequency)
	}
	if len(top[0].Questions) != 3 {
		t.Errorf("kept %d members, want 3", len(top[0].Questions))
	}
}

func TestGroupLimitEvictsLeastRecent(t *testing.T) {
	c := New(5, 2)
	c.Add(question("Explain limits please?", "s1", t0, "limits"))
	c.Add(question("Explain vectors please?", "s1", t0, "vectors"))
	c.Add(question("Explain limits please?", "s2", t0, "limits"))
	c.Add(question("Explain matrices please?", "s1", t0, "matrices"))

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	for _, f := range c.Top(0, "") {
		if slices.Contains(f.Concepts, "vectors") {
			t.Error("least recently asked group was not evicted")
		}
	}
}

func TestObserveFiltersNonQuestions(t *testing.T) {
	c := New(5, 10)
	c.Observe(model.InteractionEvent{Message: "thanks, that helps", StudentID: "s1", Timestamp: t0})
	c.Observe(model.InteractionEvent{Message: "why?", StudentID: "s1", Timestamp: t0})
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 for non-qualifying messages", c.Len())
	}
	c.Observe(model.InteractionEvent{Message: "What is a derivative?", StudentID: "s1", Timestamp: t0})
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestGroupIsPure(t *testing.T) {
	qs := []model.Question{
		question("How do I solve for x?", "s1", t0, "algebra"),
		question("How can I solve for x??", "s2", t0, "algebra"),
		question("What is a derivative?", "s3", t0, "calculus"),
	}
	got := Group(qs)
	if len(got) != 2 {
		t.Fatalf("Group() returned %d groups, want 2", len(got))
	}
	if got[0].Frequency != 2 {
		t.Errorf("top group frequency = %d, want 2", got[0].Frequency)
	}
	if again := Group(qs); len(again) != 2 || again[0].Frequency != 2 {
		t.Error("Group() is not repeatable")
	}
}
