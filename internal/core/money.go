// Package core provides the expense records and the excess-usage pipeline.
//
// This file contains amount parsing for values read from card statements,
// which arrive as formatted strings such as "12,000", "8,000원" or "₩4,500".
package core

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// maxAmount bounds accepted amounts so that monthly sums stay within int64
// after rounding.
var maxAmount = decimal.NewFromInt(1e15)

// ParseAmount converts a statement amount string to a positive value.
//
// Thousands separators, surrounding whitespace, the won sign and a trailing
// "원" are stripped. Separators must group the integer part in threes.
// Zero, negative, exponent-form, out-of-range and non-numeric values are
// rejected.
//
// Examples:
//
//	ParseAmount("12,000")   -> 12000, nil
//	ParseAmount("8,000원")  -> 8000, nil
//	ParseAmount("₩4,500.5") -> 4500.5, nil
//	ParseAmount("-3000")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₩")
	s = strings.TrimSuffix(s, "원")
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "eE") || !validGrouping(s) {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !d.IsPositive() || d.GreaterThan(maxAmount) {
		return 0, ErrInvalidAmount
	}
	return d.InexactFloat64(), nil
}

// validGrouping reports whether the commas in s, if any, separate the
// integer part into a leading group of one to three digits followed by
// groups of exactly three.
func validGrouping(s string) bool {
	if !strings.Contains(s, ",") {
		return true
	}
	intPart, frac, _ := strings.Cut(s, ".")
	if strings.Contains(frac, ",") {
		return false
	}
	groups := strings.Split(strings.TrimPrefix(intPart, "-"), ",")
	for i, g := range groups {
		if i == 0 && (len(g) < 1 || len(g) > 3) {
			return false
		}
		if i > 0 && len(g) != 3 {
			return false
		}
	}
	return true
}

// FormatWon renders a rounded amount with thousands separators, e.g. "12,000원".
func FormatWon(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString("원")
	return b.String()
}
