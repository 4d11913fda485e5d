package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vivipolli/evergreen-protocol/internal/logger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAssetNotFound       = errors.New("asset class not found")
	ErrAssetExists         = errors.New("asset class already exists")
	ErrBalanceOverflow     = errors.New("balance exceeds uint64 range")
)

var memLogger = logger.GetForComponent("memory_ledger")

// MemoryLedger is an in-process Ledger implementation backed by maps. It is
// the reference implementation used by tests and local mode; balances are
// keyed by (assetID, account).
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]map[string]uint64 // assetID -> account -> balance
	assets   map[string]AssetClassConfig
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]map[string]uint64),
		assets:   make(map[string]AssetClassConfig),
	}
}

// Fund seeds an account balance directly, bypassing transfer checks. Intended
// for tests and local bootstrapping. Seeding past the uint64 range is refused
// and logged.
func (l *MemoryLedger) Fund(assetID, account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.credit(assetID, account, amount); err != nil {
		memLogger.Error().Err(err).Str("account", account).Str("asset", assetID).Msg("Refusing to seed balance")
	}
}

// credit adds to a balance. Caller must hold the mutex.
func (l *MemoryLedger) credit(assetID, account string, amount uint64) error {
	accounts, ok := l.balances[assetID]
	if !ok {
		accounts = make(map[string]uint64)
		l.balances[assetID] = accounts
	}
	if amount > ^uint64(0)-accounts[account] {
		return fmt.Errorf("%w: crediting %d of %s to %s", ErrBalanceOverflow, amount, assetID, account)
	}
	accounts[account] += amount
	return nil
}

// debit removes from a balance. Caller must hold the mutex.
func (l *MemoryLedger) debit(assetID, account string, amount uint64) error {
	accounts, ok := l.balances[assetID]
	if !ok {
		return fmt.Errorf("%w: no balances for asset %s", ErrAccountNotFound, assetID)
	}
	balance, ok := accounts[account]
	if !ok {
		return fmt.Errorf("%w: %s has no %s account", ErrAccountNotFound, account, assetID)
	}
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d of %s, need %d", ErrInsufficientBalance, account, balance, assetID, amount)
	}
	accounts[account] = balance - amount
	return nil
}

// MoveAsset transfers amount between two accounts of the same asset.
func (l *MemoryLedger) MoveAsset(ctx context.Context, assetID, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debit(assetID, from, amount); err != nil {
		return err
	}
	if err := l.credit(assetID, to, amount); err != nil {
		// Restore the debit so a refused credit changes nothing.
		l.balances[assetID][from] += amount
		return err
	}
	return nil
}

// Execute applies the batch atomically. All debits are validated against a
// working copy first; nothing is visible unless every movement succeeds.
func (l *MemoryLedger) Execute(ctx context.Context, movements []Movement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	// Stage the batch against copied balances so a mid-batch failure leaves
	// the live maps untouched.
	staged := make(map[string]map[string]uint64, len(l.balances))
	for assetID, accounts := range l.balances {
		cp := make(map[string]uint64, len(accounts))
		for account, balance := range accounts {
			cp[account] = balance
		}
		staged[assetID] = cp
	}

	for i, m := range movements {
		if m.Mint {
			if _, ok := l.assets[m.AssetID]; !ok {
				return fmt.Errorf("movement %d: %w: %s", i, ErrAssetNotFound, m.AssetID)
			}
			accounts, ok := staged[m.AssetID]
			if !ok {
				accounts = make(map[string]uint64)
				staged[m.AssetID] = accounts
			}
			if m.Amount > ^uint64(0)-accounts[m.To] {
				return fmt.Errorf("movement %d: %w: minting %d of %s to %s", i, ErrBalanceOverflow, m.Amount, m.AssetID, m.To)
			}
			accounts[m.To] += m.Amount
			continue
		}
		accounts, ok := staged[m.AssetID]
		if !ok {
			return fmt.Errorf("movement %d: %w: no balances for asset %s", i, ErrAccountNotFound, m.AssetID)
		}
		balance, ok := accounts[m.From]
		if !ok {
			return fmt.Errorf("movement %d: %w: %s has no %s account", i, ErrAccountNotFound, m.From, m.AssetID)
		}
		if balance < m.Amount {
			return fmt.Errorf("movement %d: %w: %s holds %d of %s, need %d",
				i, ErrInsufficientBalance, m.From, balance, m.AssetID, m.Amount)
		}
		accounts[m.From] = balance - m.Amount
		if m.Amount > ^uint64(0)-accounts[m.To] {
			return fmt.Errorf("movement %d: %w: crediting %d of %s to %s", i, ErrBalanceOverflow, m.Amount, m.AssetID, m.To)
		}
		accounts[m.To] += m.Amount
	}

	l.balances = staged
	memLogger.Debug().Int("movements", len(movements)).Msg("Executed atomic movement batch")
	return nil
}

// MintClaimToken credits newly issued claim tokens to a holder.
func (l *MemoryLedger) MintClaimToken(ctx context.Context, claimAssetID, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.assets[claimAssetID]; !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, claimAssetID)
	}
	return l.credit(claimAssetID, to, amount)
}

// GetBalance reads the current balance of an account. Unknown accounts read
// as zero.
func (l *MemoryLedger) GetBalance(ctx context.Context, assetID, account string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts, ok := l.balances[assetID]
	if !ok {
		return 0, nil
	}
	return accounts[account], nil
}

// CreateAssetClass registers a new asset class keyed by its symbol.
func (l *MemoryLedger) CreateAssetClass(ctx context.Context, cfg AssetClassConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if cfg.Symbol == "" {
		return "", errors.New("asset class symbol cannot be empty")
	}
	if _, ok := l.assets[cfg.Symbol]; ok {
		return "", fmt.Errorf("%w: %s", ErrAssetExists, cfg.Symbol)
	}
	l.assets[cfg.Symbol] = cfg
	if _, ok := l.balances[cfg.Symbol]; !ok {
		l.balances[cfg.Symbol] = make(map[string]uint64)
	}

	memLogger.Info().Str("symbol", cfg.Symbol).Uint8("decimals", cfg.Decimals).Msg("Asset class created")
	return cfg.Symbol, nil
}

// Holders returns every account with a non-zero balance of the asset, sorted
// by account for deterministic iteration in tests.
func (l *MemoryLedger) Holders(ctx context.Context, assetID string) ([]Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts, ok := l.balances[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}

	holdings := make([]Holding, 0, len(accounts))
	for account, balance := range accounts {
		if balance == 0 {
			continue
		}
		holdings = append(holdings, Holding{Account: account, Balance: balance})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Account < holdings[j].Account })
	return holdings, nil
}
