// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package btcunit

import (
	"log/slog"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// SatsPerKilo is the number of satoshis in a kilo-satoshi.
	SatsPerKilo = 1000

	// floatStringPrecision is the number of decimal places to use when
	// converting a fee rate to a string.
	floatStringPrecision = 2
)

// SatPerVByte represents a fee rate in sat/vbyte, encoded as a big.Rat to
// allow for fractional (sub-satoshi) fee rates.
type SatPerVByte struct {
	*big.Rat
}

// NewSatPerVByte creates a new fee rate in sat/vb from fee and vb.
func NewSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	if vb.val == 0 {
		return SatPerVByte{big.NewRat(0, 1)}
	}
	return SatPerVByte{
		big.NewRat(int64(fee), safeUint64ToInt64(vb.val)),
	}
}

// FeePerKWeight converts the fee rate from sat/vb to sat/kw.
func (s SatPerVByte) FeePerKWeight() SatPerKWeight {
	rate := big.NewRat(SatsPerKilo, blockchain.WitnessScaleFactor)
	return SatPerKWeight{new(big.Rat).Mul(s.Rat, rate)}
}

// FeePerKVByte converts the fee rate from sat/vb to sat/kvb.
func (s SatPerVByte) FeePerKVByte() SatPerKVByte {
	rate := big.NewRat(SatsPerKilo, 1)
	return SatPerKVByte{new(big.Rat).Mul(s.Rat, rate)}
}

// String returns a human-readable string of the fee rate.
func (s SatPerVByte) String() string {
	return s.FloatString(floatStringPrecision) + " sat/vb"
}

// Equal reports whether s and other are the same fee rate.
func (s SatPerVByte) Equal(other SatPerVByte) bool { return s.Cmp(other.Rat) == 0 }

// GreaterThan reports whether s is greater than other.
func (s SatPerVByte) GreaterThan(other SatPerVByte) bool { return s.Cmp(other.Rat) > 0 }

// LessThan reports whether s is less than other.
func (s SatPerVByte) LessThan(other SatPerVByte) bool { return s.Cmp(other.Rat) < 0 }

// GreaterThanOrEqual reports whether s is greater than or equal to other.
func (s SatPerVByte) GreaterThanOrEqual(other SatPerVByte) bool { return s.Cmp(other.Rat) >= 0 }

// LessThanOrEqual reports whether s is less than or equal to other.
func (s SatPerVByte) LessThanOrEqual(other SatPerVByte) bool { return s.Cmp(other.Rat) <= 0 }

// SatPerKVByte represents a fee rate in sat/kvb, encoded as a big.Rat to
// allow for fractional (sub-satoshi) fee rates.
type SatPerKVByte struct {
	*big.Rat
}

// NewSatPerKVByte creates a new fee rate in sat/kvb from fee and kvb.
func NewSatPerKVByte(fee btcutil.Amount, kvb VByte) SatPerKVByte {
	if kvb.val == 0 {
		return SatPerKVByte{big.NewRat(0, 1)}
	}
	return SatPerKVByte{
		big.NewRat(int64(fee)*SatsPerKilo, safeUint64ToInt64(kvb.val)),
	}
}

// FeeForVSize calculates the fee resulting from this fee rate and vbytes.
func (s SatPerKVByte) FeeForVSize(vbytes VByte) btcutil.Amount {
	fee := new(big.Rat).Mul(
		s.Rat, big.NewRat(safeUint64ToInt64(vbytes.val), SatsPerKilo),
	)
	return roundToAmount(fee)
}

// FeePerKWeight converts the fee rate from sat/kvb to sat/kw.
func (s SatPerKVByte) FeePerKWeight() SatPerKWeight {
	rate := big.NewRat(1, blockchain.WitnessScaleFactor)
	return SatPerKWeight{new(big.Rat).Mul(s.Rat, rate)}
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return s.FloatString(floatStringPrecision) + " sat/kvb"
}

// Equal reports whether s and other are the same fee rate.
func (s SatPerKVByte) Equal(other SatPerKVByte) bool { return s.Cmp(other.Rat) == 0 }

// GreaterThan reports whether s is greater than other.
func (s SatPerKVByte) GreaterThan(other SatPerKVByte) bool { return s.Cmp(other.Rat) > 0 }

// LessThan reports whether s is less than other.
func (s SatPerKVByte) LessThan(other SatPerKVByte) bool { return s.Cmp(other.Rat) < 0 }

// GreaterThanOrEqual reports whether s is greater than or equal to other.
func (s SatPerKVByte) GreaterThanOrEqual(other SatPerKVByte) bool { return s.Cmp(other.Rat) >= 0 }

// LessThanOrEqual reports whether s is less than or equal to other.
func (s SatPerKVByte) LessThanOrEqual(other SatPerKVByte) bool { return s.Cmp(other.Rat) <= 0 }

// SatPerKWeight represents a fee rate in sat/kw, encoded as a big.Rat to
// allow for fractional (sub-satoshi) fee rates.
type SatPerKWeight struct {
	*big.Rat
}

// NewSatPerKWeight creates a new fee rate in sat/kw from fee and wu.
func NewSatPerKWeight(fee btcutil.Amount, wu WeightUnit) SatPerKWeight {
	if wu.val == 0 {
		return SatPerKWeight{big.NewRat(0, 1)}
	}
	return SatPerKWeight{
		big.NewRat(int64(fee)*SatsPerKilo, safeUint64ToInt64(wu.val)),
	}
}

// FeeForWeight calculates the fee resulting from this fee rate and wu,
// rounded down.
func (s SatPerKWeight) FeeForWeight(wu WeightUnit) btcutil.Amount {
	fee := new(big.Rat).Mul(
		s.Rat, big.NewRat(safeUint64ToInt64(wu.val), SatsPerKilo),
	)
	return btcutil.Amount(new(big.Int).Div(fee.Num(), fee.Denom()).Int64())
}

// FeeForWeightRoundUp calculates the fee resulting from this fee rate and
// wu, rounded up to the nearest satoshi.
func (s SatPerKWeight) FeeForWeightRoundUp(wu WeightUnit) btcutil.Amount {
	feeRat := new(big.Rat).Mul(
		s.Rat, big.NewRat(safeUint64ToInt64(wu.val), SatsPerKilo),
	)

	num := feeRat.Num()
	den := feeRat.Denom()
	num.Add(num, den)
	num.Sub(num, big.NewInt(1))
	num.Div(num, den)

	return btcutil.Amount(num.Int64())
}

// FeeForVByte calculates the fee resulting from this fee rate and vb.
func (s SatPerKWeight) FeeForVByte(vb VByte) btcutil.Amount {
	return s.FeePerKVByte().FeeForVSize(vb)
}

// FeePerKVByte converts the fee rate from sat/kw to sat/kvb.
func (s SatPerKWeight) FeePerKVByte() SatPerKVByte {
	rate := big.NewRat(blockchain.WitnessScaleFactor, 1)
	return SatPerKVByte{new(big.Rat).Mul(s.Rat, rate)}
}

// FeePerVByte converts the fee rate from sat/kw to sat/vb.
func (s SatPerKWeight) FeePerVByte() SatPerVByte {
	rate := big.NewRat(blockchain.WitnessScaleFactor, SatsPerKilo)
	return SatPerVByte{new(big.Rat).Mul(s.Rat, rate)}
}

// String returns a human-readable string of the fee rate.
func (s SatPerKWeight) String() string {
	return s.FloatString(floatStringPrecision) + " sat/kw"
}

// Equal reports whether s and other are the same fee rate.
func (s SatPerKWeight) Equal(other SatPerKWeight) bool { return s.Cmp(other.Rat) == 0 }

// GreaterThan reports whether s is greater than other.
func (s SatPerKWeight) GreaterThan(other SatPerKWeight) bool { return s.Cmp(other.Rat) > 0 }

// LessThan reports whether s is less than other.
func (s SatPerKWeight) LessThan(other SatPerKWeight) bool { return s.Cmp(other.Rat) < 0 }

// GreaterThanOrEqual reports whether s is greater than or equal to other.
func (s SatPerKWeight) GreaterThanOrEqual(other SatPerKWeight) bool { return s.Cmp(other.Rat) >= 0 }

// LessThanOrEqual reports whether s is less than or equal to other.
func (s SatPerKWeight) LessThanOrEqual(other SatPerKWeight) bool { return s.Cmp(other.Rat) <= 0 }

// roundToAmount rounds a big.Rat to the nearest btcutil.Amount, with halves
// rounded away from zero.
func roundToAmount(r *big.Rat) btcutil.Amount {
	f, _ := r.Float64()
	return btcutil.Amount(math.Round(f))
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at
// math.MaxInt64. The values converted here are transaction weights or
// sizes, which consensus rules keep far below that ceiling in practice.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		slog.Warn("capping uint64 value to math.MaxInt64",
			slog.Uint64("old", u), slog.Int64("new", math.MaxInt64))
		return math.MaxInt64
	}
	return int64(u)
}
