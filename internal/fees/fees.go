/*
This file contains the basis-point fee arithmetic shared by every vault
operation. All computations use widened SDK integers internally so that a
uint64 product can never wrap silently; anything that would leave the uint64
range fails with ErrArithmeticOverflow instead.
*/

package fees

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vivipolli/evergreen-protocol/internal/types"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

var maxUint64 = sdkmath.NewIntFromUint64(^uint64(0))

// Fee returns floor(amount * basisPoints / 10000).
//
// basisPoints must be in [0, 10000]; anything above is a schedule
// misconfiguration and fails with ErrInvalidConfiguration. The widened
// product is checked back into uint64 range before returning.
func Fee(amount uint64, basisPoints uint16) (uint64, error) {
	if basisPoints > BpsDenominator {
		return 0, fmt.Errorf("%w: %d basis points exceeds %d", types.ErrInvalidConfiguration, basisPoints, BpsDenominator)
	}

	product := sdkmath.NewIntFromUint64(amount).MulRaw(int64(basisPoints))
	fee := product.QuoRaw(BpsDenominator)
	if fee.GT(maxUint64) {
		// Unreachable while basisPoints <= 10000, but the guard keeps the
		// contract honest if the denominator ever changes.
		return 0, fmt.Errorf("%w: fee(%d, %d bps)", types.ErrArithmeticOverflow, amount, basisPoints)
	}
	return fee.Uint64(), nil
}

// Net returns amount - fee, failing with ErrArithmeticOverflow on underflow.
// When fee came from Fee with basisPoints <= 10000 the subtraction can never
// underflow.
func Net(amount, fee uint64) (uint64, error) {
	if fee > amount {
		return 0, fmt.Errorf("%w: fee %d exceeds amount %d", types.ErrArithmeticOverflow, fee, amount)
	}
	return amount - fee, nil
}

// Split computes both sides of a fee split at once. The returned parts always
// satisfy fee + net == amount.
func Split(amount uint64, basisPoints uint16) (fee, net uint64, err error) {
	fee, err = Fee(amount, basisPoints)
	if err != nil {
		return 0, 0, err
	}
	net, err = Net(amount, fee)
	if err != nil {
		return 0, 0, err
	}
	return fee, net, nil
}
