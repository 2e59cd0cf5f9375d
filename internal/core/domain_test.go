package core

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("expected default policy to be valid, got %v", err)
	}
}

func TestPolicyValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Policy)
		want   error
	}{
		{"zero cap", func(p *Policy) { p.DailyCap = 0 }, ErrInvalidCap},
		{"negative cap", func(p *Policy) { p.DailyCap = -1 }, ErrInvalidCap},
		{"nan cap", func(p *Policy) { p.DailyCap = math.NaN() }, ErrInvalidCap},
		{"infinite cap", func(p *Policy) { p.DailyCap = math.Inf(1) }, ErrInvalidCap},
		{"no lunch", func(p *Policy) { p.LunchCategories = nil }, ErrNoLunchCategories},
		{"no dinner", func(p *Policy) { p.DinnerCategories = nil }, ErrNoDinnerCategory},
		{"empty delimiter", func(p *Policy) { p.UserDelimiter = "" }, ErrEmptyDelimiter},
		{"overlap", func(p *Policy) { p.DinnerCategories = []string{" 점심식비 "} }, ErrOverlappingClass},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultPolicy()
			tc.mutate(&p)
			if err := p.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPolicyClassOf(t *testing.T) {
	p := DefaultPolicy()
	cases := []struct {
		category string
		class    MealClass
		ok       bool
	}{
		{"점심식비", Lunch, true},
		{"복리후생비", Lunch, true},
		{" 야근식대 ", Dinner, true},
		{"교통비", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		class, ok := p.ClassOf(tc.category)
		if class != tc.class || ok != tc.ok {
			t.Fatalf("%q: expected (%q,%v), got (%q,%v)", tc.category, tc.class, tc.ok, class, ok)
		}
	}
}

func TestMealClassIsValid(t *testing.T) {
	if !Lunch.IsValid() || !Dinner.IsValid() {
		t.Fatalf("expected lunch and dinner to be valid")
	}
	if MealClass("breakfast").IsValid() {
		t.Fatalf("expected breakfast to be invalid")
	}
}
