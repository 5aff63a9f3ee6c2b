package core

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"-5", "", false},
		{"+5", "", false},
		{"0", "", false},
		{"0.001", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestAmountFromFloat(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, -5} {
		if _, err := AmountFromFloat(f); err != ErrInvalidAmount {
			t.Fatalf("%v expected ErrInvalidAmount, got %v", f, err)
		}
	}
	got, err := AmountFromFloat(19.99)
	if err != nil || !got.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("expected 19.99, got %s (err=%v)", got, err)
	}
}
