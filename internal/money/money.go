// Package money implements ZNC, the internal credit unit: a 2-decimal
// fixed-point amount stored as an int64 count of hundredths ("cents") to
// avoid floating-point drift, the way CedrosPay-server's money package
// avoids float arithmetic for monetary amounts. Unlike that package, ZNC
// has a single fixed scale (2 fractional digits) and every rounding step
// uses round-half-to-even ("banker's rounding"), per spec.md §4.1.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrOverflow is returned when a value would exceed the storage limit
	// (8 integer digits + 2 fractional digits).
	ErrOverflow = errors.New("money: overflow")
	// ErrInvalidFormat is returned when parsing a decimal string fails.
	ErrInvalidFormat = errors.New("money: invalid format")
	// ErrNegative is returned where a non-negative amount is required.
	ErrNegative = errors.New("money: negative amount not allowed")
)

// maxAtomic is 99999999.99 ZNC expressed in hundredths (8 integer digits,
// 2 fractional digits — spec.md §4.1).
const maxAtomic int64 = 9999999999

// ZNC is a signed fixed-point amount in hundredths of a credit.
type ZNC int64

// Zero is 0.00 ZNC.
const Zero ZNC = 0

// FromCents builds a ZNC directly from a count of hundredths.
func FromCents(cents int64) ZNC { return ZNC(cents) }

// Cents returns the underlying hundredths count.
func (z ZNC) Cents() int64 { return int64(z) }

// FromFloat converts a float64 major-unit amount (e.g. 18.00) into ZNC,
// rounding half-to-even to 2 decimals. Prefer Parse for values that
// originate as strings (API payloads, storage) to avoid float round-trip
// artifacts; FromFloat exists for literal constants such as the price table.
func FromFloat(v float64) ZNC {
	scaled := v * 100
	return ZNC(roundHalfToEven(scaled))
}

// Parse converts a decimal string ("18.00", "-5.5", "100") into ZNC,
// rounding any excess fractional digits half-to-even. Returns ErrOverflow
// if the magnitude exceeds the storage limit.
func Parse(s string) (ZNC, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidFormat)
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}

	intVal, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if intVal > 99999999 {
		return 0, ErrOverflow
	}

	var fracCents int64
	var roundUp bool
	switch {
	case len(fracPart) == 0:
		fracCents = 0
	case len(fracPart) == 1:
		d, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		fracCents = d * 10
	default:
		d2, err := strconv.ParseInt(fracPart[:2], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		fracCents = d2
		// Determine round direction from the third digit onward using
		// half-to-even on the rest of the string.
		rest := fracPart[2:]
		roundUp = shouldRoundUp(rest, fracCents%2 == 0)
	}

	total := intVal*100 + fracCents
	if roundUp {
		total++
	}
	if total > maxAtomic {
		return 0, ErrOverflow
	}
	if neg {
		total = -total
	}
	return ZNC(total), nil
}

// shouldRoundUp decides, given the digits after the 2nd fractional place
// and whether the retained last digit is even, whether half-to-even
// rounding bumps the retained digit up.
func shouldRoundUp(rest string, lastDigitEven bool) bool {
	if rest == "" {
		return false
	}
	first := rest[0]
	if first < '0' || first > '9' {
		return false
	}
	if first > '5' {
		return true
	}
	if first < '5' {
		return false
	}
	// first == '5': round up unless it's an exact tie landing on an even digit
	// and there are no further nonzero digits.
	for i := 1; i < len(rest); i++ {
		if rest[i] != '0' {
			return true
		}
	}
	return !lastDigitEven
}

// roundHalfToEven rounds a float64 (already scaled to hundredths) to the
// nearest integer, ties to even.
func roundHalfToEven(scaled float64) int64 {
	floor := math.Floor(scaled)
	diff := scaled - floor
	switch {
	case diff < 0.5:
		return int64(floor)
	case diff > 0.5:
		return int64(floor) + 1
	default:
		if int64(floor)%2 == 0 {
			return int64(floor)
		}
		return int64(floor) + 1
	}
}

// String renders ZNC as a decimal string, e.g. "18.00" or "-5.50".
func (z ZNC) String() string {
	v := int64(z)
	neg := v < 0
	if neg {
		v = -v
	}
	whole := v / 100
	frac := v % 100
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}

// Add returns z+other, checking for overflow against the storage limit.
func (z ZNC) Add(other ZNC) (ZNC, error) {
	sum := int64(z) + int64(other)
	if sum > maxAtomic || sum < -maxAtomic {
		return 0, ErrOverflow
	}
	return ZNC(sum), nil
}

// Sub returns z-other, checking for overflow against the storage limit.
func (z ZNC) Sub(other ZNC) (ZNC, error) {
	return z.Add(-other)
}

// Mul multiplies z by a rational numerator/denominator (used by Percent),
// rounding the result half-to-even to 2 decimals.
func (z ZNC) Mul(numerator, denominator float64) ZNC {
	if denominator == 0 {
		return 0
	}
	scaled := float64(z) * numerator / denominator
	return ZNC(roundHalfToEven(scaled))
}

// Percent returns z * pct/100, rounded half-to-even (used for the 10%
// referral bonus).
func (z ZNC) Percent(pct float64) ZNC {
	return z.Mul(pct, 100)
}

// IsPositive reports whether z > 0.
func (z ZNC) IsPositive() bool { return z > 0 }

// IsNegative reports whether z < 0.
func (z ZNC) IsNegative() bool { return z < 0 }

// Neg returns -z.
func (z ZNC) Neg() ZNC { return -z }

// Cmp compares z to other: -1, 0, or 1.
func (z ZNC) Cmp(other ZNC) int {
	switch {
	case z < other:
		return -1
	case z > other:
		return 1
	default:
		return 0
	}
}
