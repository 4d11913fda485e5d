package ledger

import "context"

// Movement is one atomic value transfer request. When Mint is set the
// movement issues new units of AssetID to the To account instead of debiting
// From; only the vault's own claim-token asset class admits mint movements.
type Movement struct {
	AssetID string
	From    string
	To      string
	Amount  uint64
	Mint    bool
}

// Holding is one (holder, balance) pair from a claim-token enumeration.
type Holding struct {
	Account string
	Balance uint64
}

// AssetClassConfig describes a new asset class to create at vault
// initialization.
type AssetClassConfig struct {
	Symbol    string
	Decimals  uint8
	Authority string
}

// Ledger defines the boundary contract with the external ledger service,
// which owns account balances, value movement, and asset-class management.
// This interface abstracts away the specific implementation so the engine can
// run against an in-memory ledger in tests and local mode, or a chain-backed
// one in production.
//
// The engine acts as an authorized signer for the vault's own custodied
// accounts; granting that capability is the ledger service's concern.
type Ledger interface {
	// MoveAsset atomically transfers amount of assetID between two accounts.
	MoveAsset(ctx context.Context, assetID, from, to string, amount uint64) error

	// Execute applies a batch of movements atomically: either every movement
	// in the batch commits, or none do.
	Execute(ctx context.Context, movements []Movement) error

	// MintClaimToken increases a holder's claim-token balance. Only the vault
	// itself may authorize this.
	MintClaimToken(ctx context.Context, claimAssetID, to string, amount uint64) error

	// GetBalance reads the current balance of an account for an asset.
	GetBalance(ctx context.Context, assetID, account string) (uint64, error)

	// CreateAssetClass registers a new asset class and returns its ID. Used
	// once per vault, at initialization.
	CreateAssetClass(ctx context.Context, cfg AssetClassConfig) (string, error)

	// Holders enumerates all accounts with a non-zero balance of the given
	// asset. Order is unspecified; each holder's payout is independent.
	Holders(ctx context.Context, assetID string) ([]Holding, error)
}
