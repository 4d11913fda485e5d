/*
This file computes the claim-token mint amount for a deposit. Two policies
exist: one-to-one minting, and value-proportional minting against the vault's
purchased-asset holdings. The policy is fixed per vault instance.
*/

package shares

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vivipolli/evergreen-protocol/internal/types"
)

var maxUint64 = sdkmath.NewIntFromUint64(^uint64(0))

// ForDeposit returns the number of claim-token units to mint for a deposit of
// amount base-asset units against the given vault state.
//
// Proportional policy:
//   - First deposit (supply == 0) mints 1:1. With no prior value in the vault
//     any ratio is arbitrary; 1:1 establishes the baseline.
//   - Otherwise shares = floor(amount * supply / totalValue), where
//     totalValue = purchasedAssetCount * referenceAssetValue.
//   - totalValue == 0 with supply > 0 is a reachable state (deposits can grow
//     supply before any purchase happens) and fails with ErrDivisionByZero
//     rather than trapping.
func ForDeposit(amount uint64, st *types.VaultState) (uint64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("%w: deposit amount is zero", types.ErrInvalidAmount)
	}

	if st.Schedule.Policy == types.ShareOneToOne {
		return amount, nil
	}

	if st.ClaimTokenSupply == 0 {
		return amount, nil
	}

	totalValue := sdkmath.NewIntFromUint64(st.PurchasedAssetCount).
		Mul(sdkmath.NewIntFromUint64(st.Schedule.ReferenceAssetValue))
	if totalValue.IsZero() {
		return 0, fmt.Errorf("%w: vault has %d claim tokens outstanding but zero purchased-asset value",
			types.ErrDivisionByZero, st.ClaimTokenSupply)
	}

	minted := sdkmath.NewIntFromUint64(amount).
		Mul(sdkmath.NewIntFromUint64(st.ClaimTokenSupply)).
		Quo(totalValue)
	if minted.GT(maxUint64) {
		return 0, fmt.Errorf("%w: shares for deposit %d against supply %d",
			types.ErrArithmeticOverflow, amount, st.ClaimTokenSupply)
	}
	return minted.Uint64(), nil
}
