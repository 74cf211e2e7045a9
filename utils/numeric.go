package utils

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses a numeric cell that may use either '.' or ','
// as its decimal separator. Surrounding whitespace is ignored.
// Non-finite values are rejected.
func ParseDecimal(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return 0, false
	}
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseNumber is ParseDecimal with a 0.0 fallback.
func ParseNumber(raw string) float64 {
	v, _ := ParseDecimal(raw)
	return v
}

// exactDecimal returns the exact value held by the binary float v, not
// its shortest decimal representation.
func exactDecimal(v float64) decimal.Decimal {
	frac, exp := math.Frexp(v)
	mant := big.NewInt(int64(math.Ldexp(frac, 53)))
	e := exp - 53
	if e >= 0 {
		return decimal.NewFromBigInt(mant.Lsh(mant, uint(e)), 0)
	}
	// mant * 2^e == mant * 5^-e * 10^e
	five := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-e)), nil)
	return decimal.NewFromBigInt(five.Mul(five, mant), int32(e))
}

// Round rounds the binary value of v to the given number of decimal
// places. Exact ties go to the even digit, so 2.675 (stored just below)
// rounds to 2.67 and 0.125 to 0.12.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return exactDecimal(v).RoundBank(places).InexactFloat64()
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// FormatFixed renders v with exactly places decimals and a '.' separator,
// rounding the same way as Round.
func FormatFixed(v float64, places int32) string {
	return exactDecimal(v).StringFixedBank(places)
}
