/*
This file records distribution rounds and per-holder payouts. The payout
table's (vault_id, epoch, holder) primary key is what makes distribution
retries idempotent: a holder paid once in an epoch can never be paid again.
*/

package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vivipolli/evergreen-protocol/internal/types"
)

// PayoutJournal provides Postgres-backed tracking of distribution rounds.
type PayoutJournal struct{}

// NewPayoutJournal returns a journal bound to the global connection pool.
func NewPayoutJournal() *PayoutJournal {
	return &PayoutJournal{}
}

// SaveRound persists the arithmetic of a distribution round before its fee
// transfer commits, so a retry can replay payouts with the exact same
// per-unit amount. An epoch left behind by a round that aborted before its
// commit point is overwritten by the next attempt.
func (j *PayoutJournal) SaveRound(ctx context.Context, vaultID string, report *types.DistributionReport) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO distribution_rounds (
			vault_id, epoch, total_amount, distribution_fee, distributable,
			per_unit, residual, round_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (vault_id, epoch) DO UPDATE SET
			total_amount = EXCLUDED.total_amount,
			distribution_fee = EXCLUDED.distribution_fee,
			distributable = EXCLUDED.distributable,
			per_unit = EXCLUDED.per_unit,
			residual = EXCLUDED.residual,
			round_timestamp = EXCLUDED.round_timestamp;`

	_, err := DB.ExecContext(ctx, query,
		vaultID, report.Epoch, report.TotalAmount, report.DistributionFee,
		report.Distributable, report.PerUnit, report.Residual, report.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save distribution round %d for vault %s: %w", report.Epoch, vaultID, err)
	}

	log.Info().
		Str("vault_id", vaultID).
		Uint64("epoch", report.Epoch).
		Uint64("per_unit", report.PerUnit).
		Uint64("residual", report.Residual).
		Msg("Distribution round saved")
	return nil
}

// LoadRound returns the recorded arithmetic of a distribution round.
func (j *PayoutJournal) LoadRound(ctx context.Context, vaultID string, epoch uint64) (*types.DistributionReport, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT total_amount, distribution_fee, distributable, per_unit, residual, round_timestamp
		FROM distribution_rounds WHERE vault_id = $1 AND epoch = $2;`

	report := &types.DistributionReport{VaultID: vaultID, Epoch: epoch}
	err := DB.QueryRowContext(ctx, query, vaultID, epoch).Scan(
		&report.TotalAmount, &report.DistributionFee, &report.Distributable,
		&report.PerUnit, &report.Residual, &report.Timestamp,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no distribution round %d for vault %s", epoch, vaultID)
		}
		return nil, fmt.Errorf("failed to load distribution round %d for vault %s: %w", epoch, vaultID, err)
	}
	return report, nil
}

// AlreadyPaid reports whether a holder has been paid in the given epoch.
func (j *PayoutJournal) AlreadyPaid(ctx context.Context, vaultID string, epoch uint64, holder string) (bool, error) {
	if DB == nil {
		return false, fmt.Errorf("database not initialized")
	}

	query := `SELECT EXISTS (
		SELECT 1 FROM distribution_payouts WHERE vault_id = $1 AND epoch = $2 AND holder = $3
	);`

	var paid bool
	if err := DB.QueryRowContext(ctx, query, vaultID, epoch, holder).Scan(&paid); err != nil {
		return false, fmt.Errorf("failed to check payout for holder %s: %w", holder, err)
	}
	return paid, nil
}

// RecordPayout marks a holder as paid for the epoch.
func (j *PayoutJournal) RecordPayout(ctx context.Context, vaultID string, epoch uint64, holder string, amount uint64) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO distribution_payouts (vault_id, epoch, holder, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vault_id, epoch, holder) DO NOTHING;`

	_, err := DB.ExecContext(ctx, query, vaultID, epoch, holder, amount)
	if err != nil {
		return fmt.Errorf("failed to record payout for holder %s: %w", holder, err)
	}
	return nil
}
