package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   float64
		wantOK bool
	}{
		{name: "period decimal", input: "7.804", want: 7.804, wantOK: true},
		{name: "comma decimal", input: "7,804", want: 7.804, wantOK: true},
		{name: "surrounding whitespace", input: "  1,446 ", want: 1.446, wantOK: true},
		{name: "negative", input: "-0,05", want: -0.05, wantOK: true},
		{name: "integer", input: "12", want: 12, wantOK: true},
		{name: "empty", input: "", wantOK: false},
		{name: "garbage", input: "n/a", wantOK: false},
		{name: "thousands and decimal", input: "1,234.5", wantOK: false},
		{name: "nan rejected", input: "NaN", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDecimal(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-12)
			}
		})
	}
}

func TestParseNumberFallsBackToZero(t *testing.T) {
	assert.Equal(t, 0.0, ParseNumber("not a number"))
	assert.Equal(t, 0.0, ParseNumber(""))
	assert.Equal(t, 0.523, ParseNumber("0,523"))
}

func TestRound(t *testing.T) {
	tests := []struct {
		name   string
		v      float64
		places int32
		want   float64
	}{
		{name: "stored below half", v: 2.675, places: 2, want: 2.67},
		{name: "stored below half 3dp", v: 0.1235, places: 3, want: 0.123},
		{name: "stored above half", v: 0.5975, places: 3, want: 0.598},
		{name: "residual tie below", v: 0.5215, places: 3, want: 0.521},
		{name: "exact tie to even down", v: 0.125, places: 2, want: 0.12},
		{name: "exact tie to even up", v: 0.375, places: 2, want: 0.38},
		{name: "integer tie", v: 2.5, places: 0, want: 2},
		{name: "negative", v: -1.45, places: 1, want: -1.4},
		{name: "whole number", v: 7, places: 3, want: 7},
		{name: "zero", v: 0, places: 3, want: 0},
		{name: "large", v: 12345678.9, places: 0, want: 12345679},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Round(tt.v, tt.places))
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.1, Clamp(0.01, 0.1, 3.0))
	assert.Equal(t, 3.0, Clamp(4.2, 0.1, 3.0))
	assert.Equal(t, 1.5, Clamp(1.5, 0.1, 3.0))
}

func TestFormatFixed(t *testing.T) {
	assert.Equal(t, "7.80", FormatFixed(7.8, 2))
	assert.Equal(t, "0.12", FormatFixed(0.125, 2))
	assert.Equal(t, "2.67", FormatFixed(2.675, 2))
	assert.Equal(t, "0.125", FormatFixed(0.125, 3))
	assert.Equal(t, "-0.05", FormatFixed(-0.05, 2))
	assert.Equal(t, "1.00", FormatFixed(0.999, 2))
	assert.Equal(t, "0.521", FormatFixed(0.5215, 3))
	assert.Equal(t, "3", FormatFixed(3, 0))
}
