package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	Lunch  MealClass = "lunch"
	Dinner MealClass = "dinner"
)

type (
	// MealClass groups expense categories that share a daily cap.
	MealClass string

	ExpenseRecord struct {
		Date         string  // As ingested, used only as a grouping key
		Amount       float64 // Always > 0 once ingested
		UserField    string  // One user or several joined by the policy delimiter
		CardAlias    string
		Category     string
		MerchantName string // Display only
	}

	// NormalizedRecord has the same shape as ExpenseRecord but UserField
	// names exactly one user and Amount is that user's share.
	NormalizedRecord ExpenseRecord

	// DailyUserKey identifies one user's spending on one date.
	DailyUserKey struct {
		Date string
		User string // Normalized identity, see NormalizeUser
	}

	ExcessRecord struct {
		User   string `json:"user"`
		Excess int64  `json:"excess"`
	}
)

var (
	ErrInvalidCap        = errors.New("daily cap must be positive")
	ErrNoLunchCategories = errors.New("no lunch categories")
	ErrNoDinnerCategory  = errors.New("no dinner categories")
	ErrOverlappingClass  = errors.New("category assigned to both meal classes")
	ErrEmptyDelimiter    = errors.New("empty user delimiter")
)

func (c MealClass) String() string {
	return string(c)
}

// IsValid returns true for the two known meal classes
func (c MealClass) IsValid() bool {
	switch c {
	case Lunch, Dinner:
		return true
	default:
		return false
	}
}

// Key returns the daily grouping key of a normalized row.
func (r NormalizedRecord) Key() DailyUserKey {
	return DailyUserKey{Date: r.Date, User: NormalizeUser(r.UserField)}
}

// Policy holds the reimbursement rules the pipeline applies.
type Policy struct {
	DailyCap          float64
	LunchCategories   []string
	DinnerCategories  []string
	ExcludedCardAlias string
	UserDelimiter     string
}

// DefaultPolicy returns the rules observed in the finance team's monthly review:
// a 12,000 won daily cap, welfare and lunch labels counted as lunch, the
// overtime-meal label counted as dinner, and the shared company card excluded.
func DefaultPolicy() Policy {
	return Policy{
		DailyCap:          12000,
		LunchCategories:   []string{"복리후생비", "점심식비"},
		DinnerCategories:  []string{"야근식대"},
		ExcludedCardAlias: "공용카드",
		UserDelimiter:     ", ",
	}
}

func (p Policy) Validate() error {
	if math.IsNaN(p.DailyCap) || math.IsInf(p.DailyCap, 0) || p.DailyCap <= 0 {
		return ErrInvalidCap
	}
	if len(p.LunchCategories) == 0 {
		return ErrNoLunchCategories
	}
	if len(p.DinnerCategories) == 0 {
		return ErrNoDinnerCategory
	}
	if p.UserDelimiter == "" {
		return ErrEmptyDelimiter
	}
	lunch := make(map[string]struct{}, len(p.LunchCategories))
	for _, c := range p.LunchCategories {
		lunch[strings.TrimSpace(c)] = struct{}{}
	}
	for _, c := range p.DinnerCategories {
		if _, ok := lunch[strings.TrimSpace(c)]; ok {
			return fmt.Errorf("%w: %s", ErrOverlappingClass, c)
		}
	}
	return nil
}

// ClassOf reports which meal class a category belongs to.
func (p Policy) ClassOf(category string) (MealClass, bool) {
	category = strings.TrimSpace(category)
	for _, c := range p.LunchCategories {
		if strings.TrimSpace(c) == category {
			return Lunch, true
		}
	}
	for _, c := range p.DinnerCategories {
		if strings.TrimSpace(c) == category {
			return Dinner, true
		}
	}
	return "", false
}
