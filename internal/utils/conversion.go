/*
This file contains common utility functions for converting integer base-unit
amounts to display values and back, with precision handling built on SDK
decimals.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

const (
	// BaseAssetDecimals is the precision of the base deposit asset.
	BaseAssetDecimals = 6
	// ClaimTokenDecimals is the precision of the claim-token asset class.
	ClaimTokenDecimals = 9
)

// BaseUnitsToDisplay converts an integer base-unit amount to a display value
// with the given precision.
func BaseUnitsToDisplay(amount uint64, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}

	decAmount := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(amount))
	factor := sdkmath.LegacyNewDec(10).Power(uint64(precision))

	result, err := decAmount.Quo(factor).Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

// DisplayToBaseUnits converts a display value to integer base units with the
// given precision, truncating any excess fractional digits.
func DisplayToBaseUnits(amount float64, precision int) (uint64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return 0, ErrAmountNegative
	}
	if amount == 0 {
		return 0, nil
	}

	// String conversion avoids floating point precision issues.
	formatStr := fmt.Sprintf("%%.%df", precision)
	decAmount, err := sdkmath.LegacyNewDecFromStr(fmt.Sprintf(formatStr, amount))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}

	factor := sdkmath.LegacyNewDec(10).Power(uint64(precision))
	result := decAmount.Mul(factor).TruncateInt()
	if result.IsNegative() {
		return 0, ErrAmountNegative
	}
	if !result.IsUint64() {
		return 0, fmt.Errorf("%w: result exceeds uint64 range", ErrConversionFailed)
	}
	return result.Uint64(), nil
}
