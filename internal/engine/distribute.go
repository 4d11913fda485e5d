/*
This file implements the earnings distribution round and its retry path.

A round persists its record first, then takes the treasury fee, advances the
vault's distribution epoch, and pays each claim-token holder independently.
One holder's failed transfer does not roll back payouts already committed to
others; the payout
journal keys on the epoch so RetryDistribution can replay only the holders
that were never paid.
*/

package engine

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vivipolli/evergreen-protocol/internal/fees"
	"github.com/vivipolli/evergreen-protocol/internal/types"
)

// DistributeRequest distributes accumulated earnings held in vault custody
// pro-rata to claim-token holders.
type DistributeRequest struct {
	VaultID     string
	TotalAmount uint64
}

// Distribute runs one distribution round.
//
// Preconditions checked before any movement: total amount positive, claim
// token supply non-zero, custody balance covering the full amount. The
// truncation residual (distributable - perUnit*supply) stays in vault custody
// and is reported explicitly.
func (e *Engine) Distribute(ctx context.Context, req DistributeRequest) (report *types.DistributionReport, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.New().String()
	opLogger := e.logger.With().Str("operation_id", opID).Str("vault_id", req.VaultID).Logger()
	defer func() { e.record(ctx, opID, req.VaultID, "distribute", req.TotalAmount, err) }()

	if req.TotalAmount == 0 {
		return nil, fmt.Errorf("%w: distribution amount must be positive", types.ErrInvalidAmount)
	}

	st, err := e.store.Load(ctx, req.VaultID)
	if err != nil {
		return nil, err
	}
	if st.ClaimTokenSupply == 0 {
		return nil, fmt.Errorf("%w: no claim tokens outstanding", types.ErrDivisionByZero)
	}

	balance, err := e.ledger.GetBalance(ctx, st.BaseAssetID, st.CustodyAccount())
	if err != nil {
		return nil, fmt.Errorf("%w: read custody balance: %w", types.ErrLedger, err)
	}
	if balance < req.TotalAmount {
		return nil, fmt.Errorf("%w: custody holds %d, distribution needs %d",
			types.ErrInsufficientFunds, balance, req.TotalAmount)
	}

	distributionFee, distributable, err := fees.Split(req.TotalAmount, st.Schedule.DistributionFeeBps)
	if err != nil {
		return nil, err
	}
	perUnit := distributable / st.ClaimTokenSupply
	residual := distributable - perUnit*st.ClaimTokenSupply

	report = &types.DistributionReport{
		OperationID:     opID,
		VaultID:         req.VaultID,
		Epoch:           st.DistributionEpoch + 1,
		TotalAmount:     req.TotalAmount,
		DistributionFee: distributionFee,
		Distributable:   distributable,
		PerUnit:         perUnit,
		Residual:        residual,
		Timestamp:       time.Now().UTC(),
	}

	// The round record and the intent go down before any value moves, so a
	// failure anywhere past the fee transfer leaves a round that
	// RetryDistribution can always replay.
	if err = e.intent(ctx, opID, req.VaultID, "distribute", req.TotalAmount); err != nil {
		return nil, err
	}
	if err = e.journal.SaveRound(ctx, req.VaultID, report); err != nil {
		return nil, err
	}

	// The fee transfer is the commit point of the round. Everything before it
	// leaves no committed state behind; everything after belongs to the new
	// epoch.
	if distributionFee > 0 {
		if err = e.ledger.MoveAsset(ctx, st.BaseAssetID, st.CustodyAccount(), st.TreasuryAccount, distributionFee); err != nil {
			return nil, fmt.Errorf("%w: treasury fee transfer: %w", types.ErrLedger, err)
		}
	}

	st.DistributionEpoch++
	st.UpdatedAt = time.Now().UTC()
	if err = e.store.Save(ctx, st); err != nil {
		opLogger.Error().Err(err).Uint64("epoch", report.Epoch).Msg("Round committed but epoch update failed, replay via retry")
		return nil, fmt.Errorf("%w: distribution round %d committed: %w", types.ErrStatePersistence, report.Epoch, err)
	}

	report.Payouts, err = e.payHolders(ctx, st, report, opLogger)
	if err != nil {
		return nil, err
	}

	opLogger.Info().
		Uint64("epoch", report.Epoch).
		Uint64("distribution_fee", distributionFee).
		Uint64("per_unit", perUnit).
		Uint64("residual", residual).
		Int("holders", len(report.Payouts)).
		Int("failed", len(report.FailedPayouts())).
		Msg("Distribution round completed")
	return report, nil
}

// RetryDistribution replays the holder payouts of an already-committed round.
// Holders recorded as paid in the journal are skipped, so calling this any
// number of times never double-pays.
func (e *Engine) RetryDistribution(ctx context.Context, vaultID string, epoch uint64) (report *types.DistributionReport, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.New().String()
	opLogger := e.logger.With().Str("operation_id", opID).Str("vault_id", vaultID).Uint64("epoch", epoch).Logger()
	defer func() { e.record(ctx, opID, vaultID, "retry_distribution", 0, err) }()

	st, err := e.store.Load(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	report, err = e.journal.LoadRound(ctx, vaultID, epoch)
	if err != nil {
		return nil, err
	}
	report.OperationID = opID

	if err = e.intent(ctx, opID, vaultID, "retry_distribution", report.TotalAmount); err != nil {
		return nil, err
	}

	report.Payouts, err = e.payHolders(ctx, st, report, opLogger)
	if err != nil {
		return nil, err
	}

	opLogger.Info().
		Int("holders", len(report.Payouts)).
		Int("failed", len(report.FailedPayouts())).
		Msg("Distribution retry completed")
	return report, nil
}

// payHolders enumerates claim-token holders and transfers perUnit * balance
// to each one independently, consulting and updating the payout journal.
func (e *Engine) payHolders(ctx context.Context, st *types.VaultState, report *types.DistributionReport, opLogger zerolog.Logger) ([]types.HolderPayout, error) {
	holdings, err := e.ledger.Holders(ctx, st.ClaimTokenAssetID)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate holders: %w", types.ErrLedger, err)
	}

	payouts := make([]types.HolderPayout, 0, len(holdings))
	for _, h := range holdings {
		payout := types.HolderPayout{Holder: h.Account, Balance: h.Balance}

		paid, jerr := e.journal.AlreadyPaid(ctx, st.VaultID, report.Epoch, h.Account)
		if jerr != nil {
			return nil, jerr
		}
		if paid {
			payout.Skipped = true
			payouts = append(payouts, payout)
			continue
		}

		amount := sdkmath.NewIntFromUint64(report.PerUnit).Mul(sdkmath.NewIntFromUint64(h.Balance))
		if !amount.IsUint64() {
			// Cannot happen while holder balances sum to the supply, but a
			// foreign ledger could report anything.
			payout.Error = types.ErrArithmeticOverflow.Error()
			payouts = append(payouts, payout)
			continue
		}
		payout.Amount = amount.Uint64()

		if payout.Amount > 0 {
			if merr := e.ledger.MoveAsset(ctx, st.BaseAssetID, st.CustodyAccount(), h.Account, payout.Amount); merr != nil {
				payout.Error = merr.Error()
				opLogger.Error().Err(merr).Str("holder", h.Account).Msg("Holder payout failed, continuing")
				payouts = append(payouts, payout)
				continue
			}
		}
		if jerr := e.journal.RecordPayout(ctx, st.VaultID, report.Epoch, h.Account, payout.Amount); jerr != nil {
			return nil, jerr
		}
		payout.Paid = true
		payouts = append(payouts, payout)
	}
	return payouts, nil
}
