package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vivipolli/evergreen-protocol/internal/fees"
	"github.com/vivipolli/evergreen-protocol/internal/ledger"
	"github.com/vivipolli/evergreen-protocol/internal/logger"
	"github.com/vivipolli/evergreen-protocol/internal/shares"
	"github.com/vivipolli/evergreen-protocol/internal/types"
	"github.com/vivipolli/evergreen-protocol/internal/utils"
)

// VaultStore persists VaultState records across restarts.
type VaultStore interface {
	// Load returns the state for a vault, or types.ErrVaultNotFound.
	Load(ctx context.Context, vaultID string) (*types.VaultState, error)

	// Create inserts a brand-new vault record, or types.ErrVaultExists if one
	// already exists for the vault identity.
	Create(ctx context.Context, st *types.VaultState) error

	// Save writes the mutable counters of an existing vault record.
	Save(ctx context.Context, st *types.VaultState) error
}

// PayoutJournal tracks per-holder distribution payouts per epoch so that a
// retried round never pays the same holder twice.
type PayoutJournal interface {
	SaveRound(ctx context.Context, vaultID string, report *types.DistributionReport) error
	LoadRound(ctx context.Context, vaultID string, epoch uint64) (*types.DistributionReport, error)
	AlreadyPaid(ctx context.Context, vaultID string, epoch uint64, holder string) (bool, error)
	RecordPayout(ctx context.Context, vaultID string, epoch uint64, holder string, amount uint64) error
}

// Recorder journals engine operations. RecordIntent writes a durable pending
// receipt before any external side effect and must succeed for the operation
// to proceed; Record appends the outcome and is best-effort.
type Recorder interface {
	RecordIntent(ctx context.Context, receipt types.OperationReceipt) error
	Record(ctx context.Context, receipt types.OperationReceipt)
}

// Engine orchestrates the four vault operations against the external ledger
// service, updating VaultState through the store. The execution environment
// serializes operations per vault; the engine adds its own mutex so a
// concurrent dispatch layer cannot interleave them either way.
type Engine struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	ledger   ledger.Ledger
	store    VaultStore
	journal  PayoutJournal
	recorder Recorder
}

// Config holds the dependencies for creating a new Engine.
type Config struct {
	Ledger   ledger.Ledger
	Store    VaultStore
	Journal  PayoutJournal
	Recorder Recorder
}

// New creates an Engine instance with dependency injection.
func New(cfg Config) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}
	return &Engine{
		logger:   logger.GetForComponent("vault_engine"),
		ledger:   cfg.Ledger,
		store:    cfg.Store,
		journal:  cfg.Journal,
		recorder: cfg.Recorder,
	}, nil
}

func validateEngineConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Store == nil {
		return fmt.Errorf("vault store cannot be nil")
	}
	if cfg.Journal == nil {
		return fmt.Errorf("payout journal cannot be nil")
	}
	if cfg.Recorder == nil {
		return fmt.Errorf("operation recorder cannot be nil")
	}
	return nil
}

// intent persists a pending receipt before any external side effect, so a
// failure between the ledger commit and the state write always leaves a
// durable record to reconcile against.
func (e *Engine) intent(ctx context.Context, opID, vaultID, kind string, amount uint64) error {
	receipt := types.OperationReceipt{
		OperationID: opID,
		VaultID:     vaultID,
		Kind:        kind,
		Amount:      amount,
		Status:      types.OpStatusPending,
		Timestamp:   time.Now().UTC(),
	}
	if err := e.recorder.RecordIntent(ctx, receipt); err != nil {
		return fmt.Errorf("record %s intent: %w", kind, err)
	}
	return nil
}

// record emits the outcome receipt for an attempted operation.
func (e *Engine) record(ctx context.Context, opID, vaultID, kind string, amount uint64, opErr error) {
	receipt := types.OperationReceipt{
		OperationID: opID,
		VaultID:     vaultID,
		Kind:        kind,
		Amount:      amount,
		Status:      types.OpStatusCommitted,
		Timestamp:   time.Now().UTC(),
	}
	if opErr != nil {
		receipt.Status = types.OpStatusFailed
		receipt.Message = opErr.Error()
	}
	e.recorder.Record(ctx, receipt)
}

// InitializeRequest creates a new vault.
type InitializeRequest struct {
	VaultID         string
	Authority       string
	BaseAssetID     string
	TreasuryAccount string
	FeeAccount      string
	Schedule        types.FeeSchedule
}

// Initialize creates the VaultState for a new vault identity and requests
// creation of its claim-token asset class from the ledger service. Fails with
// types.ErrVaultExists if state already exists for the vault.
func (e *Engine) Initialize(ctx context.Context, req InitializeRequest) (st *types.VaultState, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.New().String()
	opLogger := e.logger.With().Str("operation_id", opID).Str("vault_id", req.VaultID).Logger()
	defer func() { e.record(ctx, opID, req.VaultID, "initialize", 0, err) }()

	if req.VaultID == "" || req.Authority == "" || req.BaseAssetID == "" {
		return nil, fmt.Errorf("%w: vault ID, authority and base asset are required", types.ErrInvalidConfiguration)
	}
	if req.TreasuryAccount == "" || req.FeeAccount == "" {
		return nil, fmt.Errorf("%w: treasury and fee accounts are required", types.ErrInvalidConfiguration)
	}
	if err = req.Schedule.Validate(); err != nil {
		return nil, err
	}

	// A store outage must not read as "vault absent"; only a confirmed
	// not-found may proceed to external side effects.
	if _, loadErr := e.store.Load(ctx, req.VaultID); loadErr == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrVaultExists, req.VaultID)
	} else if !errors.Is(loadErr, types.ErrVaultNotFound) {
		return nil, loadErr
	}

	if err = e.intent(ctx, opID, req.VaultID, "initialize", 0); err != nil {
		return nil, err
	}

	claimAssetID, err := e.ledger.CreateAssetClass(ctx, ledger.AssetClassConfig{
		Symbol:    req.VaultID + "-share",
		Decimals:  utils.ClaimTokenDecimals,
		Authority: req.Authority,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create claim-token asset class: %w", types.ErrLedger, err)
	}

	now := time.Now().UTC()
	st = &types.VaultState{
		VaultID:           req.VaultID,
		Authority:         req.Authority,
		BaseAssetID:       req.BaseAssetID,
		ClaimTokenAssetID: claimAssetID,
		TreasuryAccount:   req.TreasuryAccount,
		FeeAccount:        req.FeeAccount,
		Schedule:          req.Schedule,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err = e.store.Create(ctx, st); err != nil {
		if errors.Is(err, types.ErrVaultExists) {
			return nil, err
		}
		opLogger.Error().Err(err).Str("claim_asset", claimAssetID).Msg("Asset class created but vault record write failed")
		return nil, fmt.Errorf("%w: claim-token asset class %s created: %w", types.ErrStatePersistence, claimAssetID, err)
	}

	opLogger.Info().
		Str("claim_asset", claimAssetID).
		Uint16("sale_fee_bps", st.Schedule.SaleFeeBps).
		Uint16("distribution_fee_bps", st.Schedule.DistributionFeeBps).
		Str("share_policy", string(st.Schedule.Policy)).
		Msg("Vault initialized")
	return st, nil
}

// DepositRequest moves base-asset units into vault custody and mints claim
// tokens to the depositor.
type DepositRequest struct {
	VaultID   string
	Depositor string
	Amount    uint64
}

// Deposit processes a base-asset deposit. The mint amount is computed before
// any value movement so arithmetic failures abort with no external effect;
// the transfer and the mint then commit as one atomic ledger batch, and only
// after that does the supply counter advance.
func (e *Engine) Deposit(ctx context.Context, req DepositRequest) (receipt *types.DepositReceipt, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.New().String()
	opLogger := e.logger.With().Str("operation_id", opID).Str("vault_id", req.VaultID).Logger()
	defer func() { e.record(ctx, opID, req.VaultID, "deposit", req.Amount, err) }()

	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: deposit amount must be positive", types.ErrInvalidAmount)
	}
	if req.Depositor == "" {
		return nil, fmt.Errorf("%w: depositor account is required", types.ErrInvalidAmount)
	}

	st, err := e.store.Load(ctx, req.VaultID)
	if err != nil {
		return nil, err
	}

	minted, err := shares.ForDeposit(req.Amount, st)
	if err != nil {
		return nil, err
	}

	if err = e.intent(ctx, opID, req.VaultID, "deposit", req.Amount); err != nil {
		return nil, err
	}

	batch := []ledger.Movement{
		{AssetID: st.BaseAssetID, From: req.Depositor, To: st.CustodyAccount(), Amount: req.Amount},
		{AssetID: st.ClaimTokenAssetID, To: req.Depositor, Amount: minted, Mint: true},
	}
	if err = e.ledger.Execute(ctx, batch); err != nil {
		return nil, fmt.Errorf("%w: deposit batch: %w", types.ErrLedger, err)
	}

	st.ClaimTokenSupply += minted
	st.UpdatedAt = time.Now().UTC()
	if err = e.store.Save(ctx, st); err != nil {
		opLogger.Error().Err(err).Uint64("minted_shares", minted).Msg("Deposit batch committed but supply update failed")
		return nil, fmt.Errorf("%w: deposit %s minted %d shares: %w", types.ErrStatePersistence, opID, minted, err)
	}

	opLogger.Info().
		Uint64("amount", req.Amount).
		Uint64("minted_shares", minted).
		Uint64("claim_token_supply", st.ClaimTokenSupply).
		Msg("Deposit committed")

	return &types.DepositReceipt{
		OperationID:  opID,
		VaultID:      req.VaultID,
		Depositor:    req.Depositor,
		Amount:       req.Amount,
		MintedShares: minted,
		Timestamp:    st.UpdatedAt,
	}, nil
}

// PurchaseRequest pays a seller for one purchased-asset unit out of vault
// custody, net of the sale fee.
type PurchaseRequest struct {
	VaultID string
	Seller  string
	Price   uint64
}

// Purchase settles a purchased-asset sale. The vault's live custodial balance
// is checked before any movement; the seller payment and the fee transfer
// commit as one atomic batch.
func (e *Engine) Purchase(ctx context.Context, req PurchaseRequest) (receipt *types.PurchaseReceipt, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.New().String()
	opLogger := e.logger.With().Str("operation_id", opID).Str("vault_id", req.VaultID).Logger()
	defer func() { e.record(ctx, opID, req.VaultID, "purchase", req.Price, err) }()

	if req.Price == 0 {
		return nil, fmt.Errorf("%w: purchase price must be positive", types.ErrInvalidAmount)
	}
	if req.Seller == "" {
		return nil, fmt.Errorf("%w: seller account is required", types.ErrInvalidAmount)
	}

	st, err := e.store.Load(ctx, req.VaultID)
	if err != nil {
		return nil, err
	}

	// Live balance, not a cached value.
	balance, err := e.ledger.GetBalance(ctx, st.BaseAssetID, st.CustodyAccount())
	if err != nil {
		return nil, fmt.Errorf("%w: read custody balance: %w", types.ErrLedger, err)
	}
	if balance < req.Price {
		return nil, fmt.Errorf("%w: custody holds %d, purchase needs %d", types.ErrInsufficientFunds, balance, req.Price)
	}

	saleFee, sellerAmount, err := fees.Split(req.Price, st.Schedule.SaleFeeBps)
	if err != nil {
		return nil, err
	}

	if err = e.intent(ctx, opID, req.VaultID, "purchase", req.Price); err != nil {
		return nil, err
	}

	batch := []ledger.Movement{
		{AssetID: st.BaseAssetID, From: st.CustodyAccount(), To: req.Seller, Amount: sellerAmount},
		{AssetID: st.BaseAssetID, From: st.CustodyAccount(), To: st.FeeAccount, Amount: saleFee},
	}
	if err = e.ledger.Execute(ctx, batch); err != nil {
		return nil, fmt.Errorf("%w: purchase batch: %w", types.ErrLedger, err)
	}

	st.PurchasedAssetCount++
	st.UpdatedAt = time.Now().UTC()
	if err = e.store.Save(ctx, st); err != nil {
		opLogger.Error().Err(err).Uint64("price", req.Price).Msg("Purchase batch committed but counter update failed")
		return nil, fmt.Errorf("%w: purchase %s settled %d: %w", types.ErrStatePersistence, opID, req.Price, err)
	}

	opLogger.Info().
		Uint64("price", req.Price).
		Uint64("sale_fee", saleFee).
		Uint64("seller_amount", sellerAmount).
		Uint64("purchased_asset_count", st.PurchasedAssetCount).
		Msg("Purchase committed")

	return &types.PurchaseReceipt{
		OperationID:  opID,
		VaultID:      req.VaultID,
		Seller:       req.Seller,
		Price:        req.Price,
		SaleFee:      saleFee,
		SellerAmount: sellerAmount,
		Timestamp:    st.UpdatedAt,
	}, nil
}

// State returns the current persisted state of a vault.
func (e *Engine) State(ctx context.Context, vaultID string) (*types.VaultState, error) {
	return e.store.Load(ctx, vaultID)
}
