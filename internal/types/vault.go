package types

import (
	"fmt"
	"time"
)

// SharePolicy selects how claim-token mint amounts are derived from deposits.
// The policy is fixed per vault instance; mixing policies across the supply's
// lifetime breaks share fairness.
type SharePolicy string

const (
	// ShareProportional mints shares proportional to the vault's current
	// value, with a 1:1 baseline for the first deposit.
	ShareProportional SharePolicy = "proportional"

	// ShareOneToOne always mints one claim-token unit per base-asset unit.
	ShareOneToOne SharePolicy = "one-to-one"
)

// Valid reports whether the policy is one of the known variants.
func (p SharePolicy) Valid() bool {
	return p == ShareProportional || p == ShareOneToOne
}

// FeeSchedule holds the per-vault fee configuration. The reference deployment
// used fixed constants (sale 250 bps, distribution 50 bps); keeping them per
// vault lets one binary serve multiple fee schedules.
type FeeSchedule struct {
	// SaleFeeBps is the fee charged on purchased-asset sales, in basis points.
	SaleFeeBps uint16 `json:"sale_fee_bps"`

	// DistributionFeeBps is the treasury fee charged on earnings
	// distributions, in basis points.
	DistributionFeeBps uint16 `json:"distribution_fee_bps"`

	// ReferenceAssetValue is the nominal value of one purchased-asset unit,
	// expressed in base-asset units. Used by proportional share minting.
	ReferenceAssetValue uint64 `json:"reference_asset_value"`

	// Policy selects the share minting policy for this vault.
	Policy SharePolicy `json:"share_policy"`
}

// Validate checks the schedule against its structural constraints.
func (s FeeSchedule) Validate() error {
	if s.SaleFeeBps > 10000 {
		return fmt.Errorf("%w: sale fee %d bps exceeds 10000", ErrInvalidConfiguration, s.SaleFeeBps)
	}
	if s.DistributionFeeBps > 10000 {
		return fmt.Errorf("%w: distribution fee %d bps exceeds 10000", ErrInvalidConfiguration, s.DistributionFeeBps)
	}
	if !s.Policy.Valid() {
		return fmt.Errorf("%w: unknown share policy %q", ErrInvalidConfiguration, s.Policy)
	}
	if s.Policy == ShareProportional && s.ReferenceAssetValue == 0 {
		return fmt.Errorf("%w: proportional policy requires a non-zero reference asset value", ErrInvalidConfiguration)
	}
	return nil
}

// VaultState is the mutable accounting record for one deployed vault. It is
// mutated only by the engine's four operations, and the execution environment
// guarantees single-writer access per vault.
type VaultState struct {
	// VaultID identifies this vault instance.
	VaultID string `json:"vault_id"`

	// Authority is the identity permitted to perform administrative
	// initialization. Immutable after creation.
	Authority string `json:"authority"`

	// BaseAssetID identifies the deposit asset (e.g. a stable-value token).
	BaseAssetID string `json:"base_asset_id"`

	// ClaimTokenAssetID identifies the claim-token asset class created at
	// initialization.
	ClaimTokenAssetID string `json:"claim_token_asset_id"`

	// ClaimTokenSupply is the total claim-token units issued. Starts at 0 and
	// only increases; there is no redemption path.
	ClaimTokenSupply uint64 `json:"claim_token_supply"`

	// PurchasedAssetCount is the number of discrete second-asset purchases
	// processed. Increases by exactly 1 per successful purchase.
	PurchasedAssetCount uint64 `json:"purchased_asset_count"`

	// DistributionEpoch counts successful distribution rounds. The payout
	// journal keys on it so a retried round never double-pays a holder.
	DistributionEpoch uint64 `json:"distribution_epoch"`

	// TreasuryAccount receives distribution fees. Immutable after creation.
	TreasuryAccount string `json:"treasury_account"`

	// FeeAccount receives sale fees. Immutable after creation.
	FeeAccount string `json:"fee_account"`

	// Schedule is this vault's fee configuration.
	Schedule FeeSchedule `json:"schedule"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CustodyAccount returns the reference of the vault's own base-asset custody
// account. The ledger service grants the engine signing capability over it.
func (v *VaultState) CustodyAccount() string {
	return "vault/" + v.VaultID + "/custody"
}
