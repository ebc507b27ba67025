// Package amount implements BT2C's fixed-point monetary type.
//
// Design Note 9 rules out binary floating point for money: "Use a
// fixed-point integer representation (e.g., amounts in 1e-8 units as
// 128-bit integers) with explicit overflow checks and an 8-digit
// display scale." The largest value the ledger ever needs to represent
// is max_supply = 21,000,000 BT2C, i.e. 2.1e15 raw units at 1e-8 scale
// — comfortably inside int64 (max ~9.2e18), so Amount is modeled the
// way the teacher's ecosystem models fixed-point coin values (see
// EXCCoin-exccd's dcrutil.Amount, used throughout blockchain/subsidy.go
// as an int64 scaled by 1e8): a plain int64 of 1e-8 units, with
// explicit overflow checks on every arithmetic operation rather than
// silent wraparound.
package amount

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bt2c-network/bt2c-core/ledgererr"
)

// Scale is the number of raw units per whole BT2C (8 fractional digits).
const Scale = 100_000_000

// Amount is a quantity of BT2C in units of 1e-8 BT2C (analogous to a
// Bitcoin/Decred "atom" or "satoshi"). Zero value is zero coins.
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// MaxAmount is the largest value a single Transaction.Amount field may
// carry (spec §3: amount <= 1,000,000,000).
const MaxAmount Amount = 1_000_000_000 * Scale

// MaxSupply is the hard cap on total coins ever issued (spec §4.8).
const MaxSupply Amount = 21_000_000 * Scale

// MinUnit is the smallest representable positive amount, 1e-8 BT2C.
const MinUnit Amount = 1

// FromWhole constructs an Amount from a whole-number coin count.
func FromWhole(whole int64) Amount { return Amount(whole) * Scale }

// Parse converts a canonical decimal string ("10", "0.1", "1.00000001")
// into an Amount. A leading '-' yields a negative Amount. Rejects more
// than 8 fractional digits and malformed input.
func Parse(s string) (Amount, error) {
	if s == "" {
		return 0, ledgererr.NewInvalidFormatError("empty amount string")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	if intPart == "" {
		intPart = "0"
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ledgererr.NewInvalidFormatError(fmt.Sprintf("invalid amount %q", s), err)
	}
	var frac int64
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > 8 {
			return 0, ledgererr.NewInvalidFormatError(fmt.Sprintf("amount %q has more than 8 fractional digits", s))
		}
		for len(fracStr) < 8 {
			fracStr += "0"
		}
		frac, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return 0, ledgererr.NewInvalidFormatError(fmt.Sprintf("invalid amount %q", s), err)
		}
	}
	if whole > int64(math.MaxInt64)/Scale {
		return 0, ledgererr.NewInvalidFormatError(fmt.Sprintf("amount %q overflows", s))
	}
	total := whole*Scale + frac
	if neg {
		total = -total
	}
	return Amount(total), nil
}

// String renders the canonical decimal form: no trailing zeros beyond
// significance, no trailing '.', integral values rendered without a
// fractional part (e.g. "10", "0.1", "0.00000001").
func (a Amount) String() string {
	neg := a < 0
	v := int64(a)
	if neg {
		v = -v
	}
	whole := v / Scale
	frac := v % Scale
	sign := ""
	if neg {
		sign = "-"
	}
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	fracStr := fmt.Sprintf("%08d", frac)
	fracStr = strings.TrimRight(fracStr, "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, fracStr)
}

// Add returns a+b, erroring on overflow.
func Add(a, b Amount) (Amount, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ledgererr.NewInvalidFormatError("amount overflow on add")
	}
	return sum, nil
}

// Sub returns a-b, erroring on overflow (underflow is not itself an
// error here; callers check sign where "may not go negative" applies).
func Sub(a, b Amount) (Amount, error) {
	diff := a - b
	if (b < 0 && diff < a) || (b > 0 && diff > a) {
		return 0, ledgererr.NewInvalidFormatError("amount overflow on sub")
	}
	return diff, nil
}

// DivFloor divides the raw unit value by n and floors toward zero,
// used by fee-per-byte calculations where the 1e-8 scale of Amount
// exactly matches the spec's "1e-8 x size/250" fee formula reduced to
// integer raw-unit division.
func DivFloor(a Amount, n int64) Amount {
	if n == 0 {
		return 0
	}
	return Amount(int64(a) / n)
}
