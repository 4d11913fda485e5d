/*
This file persists VaultState records. One row per deployed vault; the
immutable identity columns are written once by Create and the mutable
counters are updated in place by Save.
*/

package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/vivipolli/evergreen-protocol/internal/types"
)

// VaultStore provides Postgres-backed persistence of vault accounting state.
type VaultStore struct{}

// NewVaultStore returns a store bound to the global connection pool.
func NewVaultStore() *VaultStore {
	return &VaultStore{}
}

// Load returns the state for a vault, or types.ErrVaultNotFound.
func (s *VaultStore) Load(ctx context.Context, vaultID string) (*types.VaultState, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT vault_id, authority, base_asset_id, claim_token_asset_id,
		       claim_token_supply, purchased_asset_count, distribution_epoch,
		       treasury_account, fee_account,
		       sale_fee_bps, distribution_fee_bps, reference_asset_value, share_policy,
		       created_at, updated_at
		FROM vaults WHERE vault_id = $1;`

	var st types.VaultState
	var policy string
	err := DB.QueryRowContext(ctx, query, vaultID).Scan(
		&st.VaultID, &st.Authority, &st.BaseAssetID, &st.ClaimTokenAssetID,
		&st.ClaimTokenSupply, &st.PurchasedAssetCount, &st.DistributionEpoch,
		&st.TreasuryAccount, &st.FeeAccount,
		&st.Schedule.SaleFeeBps, &st.Schedule.DistributionFeeBps,
		&st.Schedule.ReferenceAssetValue, &policy,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", types.ErrVaultNotFound, vaultID)
		}
		return nil, fmt.Errorf("failed to load vault %s: %w", vaultID, err)
	}
	st.Schedule.Policy = types.SharePolicy(policy)
	return &st, nil
}

// Create inserts a brand-new vault record. Fails with types.ErrVaultExists if
// a row already exists for the vault identity.
func (s *VaultStore) Create(ctx context.Context, st *types.VaultState) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO vaults (
			vault_id, authority, base_asset_id, claim_token_asset_id,
			claim_token_supply, purchased_asset_count, distribution_epoch,
			treasury_account, fee_account,
			sale_fee_bps, distribution_fee_bps, reference_asset_value, share_policy,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);`

	_, err := DB.ExecContext(ctx, query,
		st.VaultID, st.Authority, st.BaseAssetID, st.ClaimTokenAssetID,
		st.ClaimTokenSupply, st.PurchasedAssetCount, st.DistributionEpoch,
		st.TreasuryAccount, st.FeeAccount,
		st.Schedule.SaleFeeBps, st.Schedule.DistributionFeeBps,
		st.Schedule.ReferenceAssetValue, string(st.Schedule.Policy),
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", types.ErrVaultExists, st.VaultID)
		}
		return fmt.Errorf("failed to create vault %s: %w", st.VaultID, err)
	}

	log.Info().Str("vault_id", st.VaultID).Msg("Vault record created")
	return nil
}

// Save writes the mutable counters of an existing vault record.
func (s *VaultStore) Save(ctx context.Context, st *types.VaultState) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		UPDATE vaults SET
			claim_token_supply = $2,
			purchased_asset_count = $3,
			distribution_epoch = $4,
			updated_at = $5
		WHERE vault_id = $1;`

	result, err := DB.ExecContext(ctx, query,
		st.VaultID, st.ClaimTokenSupply, st.PurchasedAssetCount,
		st.DistributionEpoch, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save vault %s: %w", st.VaultID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", types.ErrVaultNotFound, st.VaultID)
	}
	return nil
}
