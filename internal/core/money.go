// Package core provides money parsing and handling utilities.
//
// This file contains functions for turning user input into transaction
// amounts. Amounts are decimals so sums stay exact.
package core

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// amountPlaces is the number of fractional digits kept on input.
const amountPlaces = 2

// ParseAmount converts a decimal string to an amount with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding to two places. The result is always positive.
// Returns ErrInvalidAmount for invalid formats, signs, or zero amounts.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(amountPlaces)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountFromFloat converts a float amount, rejecting NaN, infinities and
// values that are not strictly positive.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	d := decimal.NewFromFloat(f).Round(amountPlaces)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
