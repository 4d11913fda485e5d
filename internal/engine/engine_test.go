package engine

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivipolli/evergreen-protocol/internal/ledger"
	"github.com/vivipolli/evergreen-protocol/internal/logger"
	"github.com/vivipolli/evergreen-protocol/internal/types"
)

func TestMain(m *testing.M) {
	logger.Initialize("error")
	os.Exit(m.Run())
}

// memoryStore is an in-memory VaultStore for engine tests.
type memoryStore struct {
	vaults map[string]types.VaultState
}

func newMemoryStore() *memoryStore {
	return &memoryStore{vaults: make(map[string]types.VaultState)}
}

func (s *memoryStore) Load(_ context.Context, vaultID string) (*types.VaultState, error) {
	st, ok := s.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrVaultNotFound, vaultID)
	}
	cp := st
	return &cp, nil
}

func (s *memoryStore) Create(_ context.Context, st *types.VaultState) error {
	if _, ok := s.vaults[st.VaultID]; ok {
		return fmt.Errorf("%w: %s", types.ErrVaultExists, st.VaultID)
	}
	s.vaults[st.VaultID] = *st
	return nil
}

func (s *memoryStore) Save(_ context.Context, st *types.VaultState) error {
	if _, ok := s.vaults[st.VaultID]; !ok {
		return fmt.Errorf("%w: %s", types.ErrVaultNotFound, st.VaultID)
	}
	s.vaults[st.VaultID] = *st
	return nil
}

// memoryJournal is an in-memory PayoutJournal for engine tests.
type memoryJournal struct {
	rounds  map[string]types.DistributionReport
	payouts map[string]uint64
}

func newMemoryJournal() *memoryJournal {
	return &memoryJournal{
		rounds:  make(map[string]types.DistributionReport),
		payouts: make(map[string]uint64),
	}
}

func roundKey(vaultID string, epoch uint64) string {
	return fmt.Sprintf("%s/%d", vaultID, epoch)
}

func (j *memoryJournal) SaveRound(_ context.Context, vaultID string, report *types.DistributionReport) error {
	j.rounds[roundKey(vaultID, report.Epoch)] = *report
	return nil
}

func (j *memoryJournal) LoadRound(_ context.Context, vaultID string, epoch uint64) (*types.DistributionReport, error) {
	report, ok := j.rounds[roundKey(vaultID, epoch)]
	if !ok {
		return nil, fmt.Errorf("no distribution round %d for vault %s", epoch, vaultID)
	}
	cp := report
	cp.Payouts = nil
	return &cp, nil
}

func (j *memoryJournal) AlreadyPaid(_ context.Context, vaultID string, epoch uint64, holder string) (bool, error) {
	_, ok := j.payouts[roundKey(vaultID, epoch)+"/"+holder]
	return ok, nil
}

func (j *memoryJournal) RecordPayout(_ context.Context, vaultID string, epoch uint64, holder string, amount uint64) error {
	j.payouts[roundKey(vaultID, epoch)+"/"+holder] = amount
	return nil
}

// memoryRecorder captures intent and outcome receipts for engine tests.
type memoryRecorder struct {
	intents  []types.OperationReceipt
	receipts []types.OperationReceipt
}

func (r *memoryRecorder) RecordIntent(_ context.Context, receipt types.OperationReceipt) error {
	r.intents = append(r.intents, receipt)
	return nil
}

func (r *memoryRecorder) Record(_ context.Context, receipt types.OperationReceipt) {
	r.receipts = append(r.receipts, receipt)
}

// failingStore wraps the memory store and fails selected calls.
type failingStore struct {
	*memoryStore
	loadErr  error
	failSave bool
}

func (s *failingStore) Load(ctx context.Context, vaultID string) (*types.VaultState, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.memoryStore.Load(ctx, vaultID)
}

func (s *failingStore) Save(ctx context.Context, st *types.VaultState) error {
	if s.failSave {
		return fmt.Errorf("simulated save failure")
	}
	return s.memoryStore.Save(ctx, st)
}

// failingJournal wraps the memory journal and fails round persistence.
type failingJournal struct {
	*memoryJournal
	failSaveRound bool
}

func (j *failingJournal) SaveRound(ctx context.Context, vaultID string, report *types.DistributionReport) error {
	if j.failSaveRound {
		return fmt.Errorf("simulated journal failure")
	}
	return j.memoryJournal.SaveRound(ctx, vaultID, report)
}

// failingLedger wraps the memory ledger and fails selected calls.
type failingLedger struct {
	*ledger.MemoryLedger
	failExecute bool
	blockMoves  map[string]bool // destination accounts whose transfers fail
}

func (f *failingLedger) Execute(ctx context.Context, movements []ledger.Movement) error {
	if f.failExecute {
		return fmt.Errorf("simulated batch failure")
	}
	return f.MemoryLedger.Execute(ctx, movements)
}

func (f *failingLedger) MoveAsset(ctx context.Context, assetID, from, to string, amount uint64) error {
	if f.blockMoves[to] {
		return fmt.Errorf("simulated transfer failure to %s", to)
	}
	return f.MemoryLedger.MoveAsset(ctx, assetID, from, to, amount)
}

func defaultSchedule() types.FeeSchedule {
	return types.FeeSchedule{
		SaleFeeBps:          250,
		DistributionFeeBps:  50,
		ReferenceAssetValue: 1_000_000,
		Policy:              types.ShareProportional,
	}
}

// oneToOneSchedule keeps multi-depositor setups simple where the share ratio
// is not what is under test.
func oneToOneSchedule() types.FeeSchedule {
	s := defaultSchedule()
	s.Policy = types.ShareOneToOne
	return s
}

// newTestEngine builds an engine over a fresh memory ledger and stores, with
// the vault already initialized under the given schedule.
func newTestEngine(t *testing.T, schedule types.FeeSchedule) (*Engine, *ledger.MemoryLedger, *memoryStore, *types.VaultState) {
	t.Helper()
	ctx := context.Background()

	l := ledger.NewMemoryLedger()
	store := newMemoryStore()
	eng, err := New(Config{Ledger: l, Store: store, Journal: newMemoryJournal(), Recorder: &memoryRecorder{}})
	require.NoError(t, err)

	st, err := eng.Initialize(ctx, InitializeRequest{
		VaultID:         "evergreen",
		Authority:       "authority",
		BaseAssetID:     "usdc",
		TreasuryAccount: "treasury",
		FeeAccount:      "fees",
		Schedule:        schedule,
	})
	require.NoError(t, err)
	return eng, l, store, st
}

func TestInitializeCreatesZeroedState(t *testing.T) {
	_, _, _, st := newTestEngine(t, defaultSchedule())

	assert.Equal(t, uint64(0), st.ClaimTokenSupply)
	assert.Equal(t, uint64(0), st.PurchasedAssetCount)
	assert.Equal(t, uint64(0), st.DistributionEpoch)
	assert.Equal(t, "evergreen-share", st.ClaimTokenAssetID)
}

func TestInitializeTwiceFails(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, defaultSchedule())

	_, err := eng.Initialize(context.Background(), InitializeRequest{
		VaultID:         "evergreen",
		Authority:       "authority",
		BaseAssetID:     "usdc",
		TreasuryAccount: "treasury",
		FeeAccount:      "fees",
		Schedule:        defaultSchedule(),
	})
	require.ErrorIs(t, err, types.ErrVaultExists)
}

func TestFirstDepositMintsOneToOne(t *testing.T) {
	eng, l, _, st := newTestEngine(t, defaultSchedule())
	ctx := context.Background()
	l.Fund("usdc", "alice", 1_000_000)

	receipt, err := eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), receipt.MintedShares)

	updated, err := eng.State(ctx, "evergreen")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), updated.ClaimTokenSupply)

	custodyBalance, _ := l.GetBalance(ctx, "usdc", st.CustodyAccount())
	assert.Equal(t, uint64(1_000_000), custodyBalance)

	shareBalance, _ := l.GetBalance(ctx, st.ClaimTokenAssetID, "alice")
	assert.Equal(t, uint64(1_000_000), shareBalance)
}

func TestProportionalDepositAfterPurchases(t *testing.T) {
	eng, l, _, _ := newTestEngine(t, defaultSchedule())
	ctx := context.Background()
	l.Fund("usdc", "alice", 2_000_000)
	l.Fund("usdc", "bob", 500_000)

	_, err := eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 1_000_000})
	require.NoError(t, err)

	// Two purchases at the reference value.
	for i := 0; i < 2; i++ {
		_, err = eng.Purchase(ctx, PurchaseRequest{VaultID: "evergreen", Seller: "landowner", Price: 500_000})
		require.NoError(t, err)
	}

	// total value = 2 * 1_000_000; depositing 500_000 against supply
	// 1_000_000 mints 250_000.
	receipt, err := eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "bob", Amount: 500_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000), receipt.MintedShares)

	updated, _ := eng.State(ctx, "evergreen")
	assert.Equal(t, uint64(1_250_000), updated.ClaimTokenSupply)
}

func TestDepositZeroAmountRejected(t *testing.T) {
	eng, _, _, _ := newTestEngine(t, defaultSchedule())

	_, err := eng.Deposit(context.Background(), DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 0})
	require.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestDepositFailedBatchLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	fl := &failingLedger{MemoryLedger: l}
	store := newMemoryStore()
	eng, err := New(Config{Ledger: fl, Store: store, Journal: newMemoryJournal(), Recorder: &memoryRecorder{}})
	require.NoError(t, err)

	_, err = eng.Initialize(ctx, InitializeRequest{
		VaultID: "evergreen", Authority: "authority", BaseAssetID: "usdc",
		TreasuryAccount: "treasury", FeeAccount: "fees", Schedule: defaultSchedule(),
	})
	require.NoError(t, err)
	l.Fund("usdc", "alice", 1_000_000)

	fl.failExecute = true
	_, err = eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 1_000_000})
	require.ErrorIs(t, err, types.ErrLedger)

	st, _ := eng.State(ctx, "evergreen")
	assert.Equal(t, uint64(0), st.ClaimTokenSupply)

	balance, _ := l.GetBalance(ctx, "usdc", "alice")
	assert.Equal(t, uint64(1_000_000), balance)
}

func TestPurchaseSplitsPrice(t *testing.T) {
	eng, l, _, st := newTestEngine(t, defaultSchedule())
	ctx := context.Background()
	l.Fund("usdc", "alice", 1_000_000)

	_, err := eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 1_000_000})
	require.NoError(t, err)

	receipt, err := eng.Purchase(ctx, PurchaseRequest{VaultID: "evergreen", Seller: "landowner", Price: 100_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), receipt.SaleFee)
	assert.Equal(t, uint64(97_500), receipt.SellerAmount)

	sellerBalance, _ := l.GetBalance(ctx, "usdc", "landowner")
	feeBalance, _ := l.GetBalance(ctx, "usdc", st.FeeAccount)
	assert.Equal(t, uint64(97_500), sellerBalance)
	assert.Equal(t, uint64(2500), feeBalance)

	updated, _ := eng.State(ctx, "evergreen")
	assert.Equal(t, uint64(1), updated.PurchasedAssetCount)
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	eng, l, _, _ := newTestEngine(t, defaultSchedule())
	ctx := context.Background()
	l.Fund("usdc", "alice", 50_000)

	_, err := eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 50_000})
	require.NoError(t, err)

	_, err = eng.Purchase(ctx, PurchaseRequest{VaultID: "evergreen", Seller: "landowner", Price: 100_000})
	require.ErrorIs(t, err, types.ErrInsufficientFunds)

	// Precondition failure must not touch counters or balances.
	st, _ := eng.State(ctx, "evergreen")
	assert.Equal(t, uint64(0), st.PurchasedAssetCount)

	sellerBalance, _ := l.GetBalance(ctx, "usdc", "landowner")
	assert.Equal(t, uint64(0), sellerBalance)
}

func TestDistributeSplitsEarnings(t *testing.T) {
	eng, l, _, st := newTestEngine(t, oneToOneSchedule())
	ctx := context.Background()

	// 500 claim tokens outstanding: 300 for alice, 200 for bob.
	l.Fund("usdc", "alice", 300)
	l.Fund("usdc", "bob", 200)
	_, err := eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 300})
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "bob", Amount: 200})
	require.NoError(t, err)

	// Earnings arrive in custody.
	l.Fund("usdc", st.CustodyAccount(), 10_000)

	report, err := eng.Distribute(ctx, DistributeRequest{VaultID: "evergreen", TotalAmount: 10_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), report.DistributionFee)
	assert.Equal(t, uint64(9_950), report.Distributable)
	assert.Equal(t, uint64(19), report.PerUnit)
	assert.Equal(t, uint64(450), report.Residual)
	assert.Empty(t, report.FailedPayouts())

	treasuryBalance, _ := l.GetBalance(ctx, "usdc", st.TreasuryAccount)
	assert.Equal(t, uint64(50), treasuryBalance)

	aliceBalance, _ := l.GetBalance(ctx, "usdc", "alice")
	bobBalance, _ := l.GetBalance(ctx, "usdc", "bob")
	assert.Equal(t, uint64(19*300), aliceBalance)
	assert.Equal(t, uint64(19*200), bobBalance)

	// Residual stays in custody: 10_000 - 50 - 19*500 = 450 over the 500
	// deposited earlier.
	custodyBalance, _ := l.GetBalance(ctx, "usdc", st.CustodyAccount())
	assert.Equal(t, uint64(500+450), custodyBalance)

	updated, _ := eng.State(ctx, "evergreen")
	assert.Equal(t, uint64(1), updated.DistributionEpoch)
}

func TestDistributeZeroSupplyFails(t *testing.T) {
	eng, l, _, st := newTestEngine(t, defaultSchedule())
	ctx := context.Background()
	l.Fund("usdc", st.CustodyAccount(), 10_000)

	_, err := eng.Distribute(ctx, DistributeRequest{VaultID: "evergreen", TotalAmount: 10_000})
	require.ErrorIs(t, err, types.ErrDivisionByZero)

	updated, _ := eng.State(ctx, "evergreen")
	assert.Equal(t, uint64(0), updated.DistributionEpoch)
}

func TestDistributeInsufficientCustody(t *testing.T) {
	eng, l, _, _ := newTestEngine(t, defaultSchedule())
	ctx := context.Background()
	l.Fund("usdc", "alice", 500)
	_, err := eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 500})
	require.NoError(t, err)

	_, err = eng.Distribute(ctx, DistributeRequest{VaultID: "evergreen", TotalAmount: 10_000})
	require.ErrorIs(t, err, types.ErrInsufficientFunds)
}

func TestDistributeRetrySkipsPaidHolders(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	fl := &failingLedger{MemoryLedger: l, blockMoves: map[string]bool{"bob": true}}
	store := newMemoryStore()
	eng, err := New(Config{Ledger: fl, Store: store, Journal: newMemoryJournal(), Recorder: &memoryRecorder{}})
	require.NoError(t, err)

	st, err := eng.Initialize(ctx, InitializeRequest{
		VaultID: "evergreen", Authority: "authority", BaseAssetID: "usdc",
		TreasuryAccount: "treasury", FeeAccount: "fees", Schedule: oneToOneSchedule(),
	})
	require.NoError(t, err)

	l.Fund("usdc", "alice", 300)
	l.Fund("usdc", "bob", 200)
	_, err = eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 300})
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "bob", Amount: 200})
	require.NoError(t, err)
	l.Fund("usdc", st.CustodyAccount(), 10_000)

	// Bob's payout fails; alice's commits and the round stands.
	report, err := eng.Distribute(ctx, DistributeRequest{VaultID: "evergreen", TotalAmount: 10_000})
	require.NoError(t, err)
	require.Len(t, report.FailedPayouts(), 1)
	assert.Equal(t, "bob", report.FailedPayouts()[0].Holder)

	aliceAfterRound, _ := l.GetBalance(ctx, "usdc", "alice")
	assert.Equal(t, uint64(19*300), aliceAfterRound)

	// Retry with the transfer unblocked: alice is skipped, bob gets paid.
	fl.blockMoves = nil
	retry, err := eng.RetryDistribution(ctx, "evergreen", report.Epoch)
	require.NoError(t, err)
	assert.Empty(t, retry.FailedPayouts())

	var aliceSkipped bool
	for _, p := range retry.Payouts {
		if p.Holder == "alice" {
			aliceSkipped = p.Skipped
		}
	}
	assert.True(t, aliceSkipped)

	aliceAfterRetry, _ := l.GetBalance(ctx, "usdc", "alice")
	assert.Equal(t, aliceAfterRound, aliceAfterRetry, "retry must not double-pay")

	bobBalance, _ := l.GetBalance(ctx, "usdc", "bob")
	assert.Equal(t, uint64(19*200), bobBalance)
}

func TestDepositRecordsIntentBeforeOutcome(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	rec := &memoryRecorder{}
	eng, err := New(Config{Ledger: l, Store: newMemoryStore(), Journal: newMemoryJournal(), Recorder: rec})
	require.NoError(t, err)

	_, err = eng.Initialize(ctx, InitializeRequest{
		VaultID: "evergreen", Authority: "authority", BaseAssetID: "usdc",
		TreasuryAccount: "treasury", FeeAccount: "fees", Schedule: defaultSchedule(),
	})
	require.NoError(t, err)

	l.Fund("usdc", "alice", 1000)
	_, err = eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 1000})
	require.NoError(t, err)

	require.Len(t, rec.intents, 2)
	assert.Equal(t, "deposit", rec.intents[1].Kind)
	assert.Equal(t, types.OpStatusPending, rec.intents[1].Status)

	require.Len(t, rec.receipts, 2)
	assert.Equal(t, types.OpStatusCommitted, rec.receipts[1].Status)
	assert.Equal(t, rec.intents[1].OperationID, rec.receipts[1].OperationID)
}

func TestDepositSaveFailureSignalsCommittedLedger(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	fs := &failingStore{memoryStore: newMemoryStore()}
	rec := &memoryRecorder{}
	eng, err := New(Config{Ledger: l, Store: fs, Journal: newMemoryJournal(), Recorder: rec})
	require.NoError(t, err)

	st, err := eng.Initialize(ctx, InitializeRequest{
		VaultID: "evergreen", Authority: "authority", BaseAssetID: "usdc",
		TreasuryAccount: "treasury", FeeAccount: "fees", Schedule: defaultSchedule(),
	})
	require.NoError(t, err)
	l.Fund("usdc", "alice", 1_000_000)

	fs.failSave = true
	_, err = eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 1_000_000})
	require.ErrorIs(t, err, types.ErrStatePersistence)

	// The batch committed: custody holds the funds and the shares exist.
	custodyBalance, _ := l.GetBalance(ctx, "usdc", st.CustodyAccount())
	assert.Equal(t, uint64(1_000_000), custodyBalance)
	shareBalance, _ := l.GetBalance(ctx, st.ClaimTokenAssetID, "alice")
	assert.Equal(t, uint64(1_000_000), shareBalance)

	// The pending intent row identifies the operation to reconcile.
	last := rec.intents[len(rec.intents)-1]
	assert.Equal(t, "deposit", last.Kind)
	assert.Equal(t, types.OpStatusPending, last.Status)
}

func TestInitializeStoreOutageLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	fs := &failingStore{memoryStore: newMemoryStore(), loadErr: fmt.Errorf("simulated outage")}
	eng, err := New(Config{Ledger: l, Store: fs, Journal: newMemoryJournal(), Recorder: &memoryRecorder{}})
	require.NoError(t, err)

	_, err = eng.Initialize(ctx, InitializeRequest{
		VaultID: "evergreen", Authority: "authority", BaseAssetID: "usdc",
		TreasuryAccount: "treasury", FeeAccount: "fees", Schedule: defaultSchedule(),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrVaultExists)

	// No asset class may be created off the back of a store outage.
	_, err = l.Holders(ctx, "evergreen-share")
	require.ErrorIs(t, err, ledger.ErrAssetNotFound)
}

func TestDistributeSaveFailureReplaysViaRetry(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	fs := &failingStore{memoryStore: newMemoryStore()}
	eng, err := New(Config{Ledger: l, Store: fs, Journal: newMemoryJournal(), Recorder: &memoryRecorder{}})
	require.NoError(t, err)

	st, err := eng.Initialize(ctx, InitializeRequest{
		VaultID: "evergreen", Authority: "authority", BaseAssetID: "usdc",
		TreasuryAccount: "treasury", FeeAccount: "fees", Schedule: oneToOneSchedule(),
	})
	require.NoError(t, err)

	l.Fund("usdc", "alice", 300)
	l.Fund("usdc", "bob", 200)
	_, err = eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 300})
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "bob", Amount: 200})
	require.NoError(t, err)
	l.Fund("usdc", st.CustodyAccount(), 10_000)

	fs.failSave = true
	_, err = eng.Distribute(ctx, DistributeRequest{VaultID: "evergreen", TotalAmount: 10_000})
	require.ErrorIs(t, err, types.ErrStatePersistence)

	// The fee moved and the round record survived; no holder was paid yet.
	treasuryBalance, _ := l.GetBalance(ctx, "usdc", st.TreasuryAccount)
	assert.Equal(t, uint64(50), treasuryBalance)
	aliceBalance, _ := l.GetBalance(ctx, "usdc", "alice")
	assert.Equal(t, uint64(0), aliceBalance)

	// Once the store recovers, the recorded round replays in full.
	fs.failSave = false
	report, err := eng.RetryDistribution(ctx, "evergreen", 1)
	require.NoError(t, err)
	assert.Empty(t, report.FailedPayouts())
	assert.Equal(t, uint64(19), report.PerUnit)

	aliceBalance, _ = l.GetBalance(ctx, "usdc", "alice")
	bobBalance, _ := l.GetBalance(ctx, "usdc", "bob")
	assert.Equal(t, uint64(19*300), aliceBalance)
	assert.Equal(t, uint64(19*200), bobBalance)
}

func TestDistributeJournalFailureMovesNothing(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	fj := &failingJournal{memoryJournal: newMemoryJournal(), failSaveRound: true}
	eng, err := New(Config{Ledger: l, Store: newMemoryStore(), Journal: fj, Recorder: &memoryRecorder{}})
	require.NoError(t, err)

	st, err := eng.Initialize(ctx, InitializeRequest{
		VaultID: "evergreen", Authority: "authority", BaseAssetID: "usdc",
		TreasuryAccount: "treasury", FeeAccount: "fees", Schedule: oneToOneSchedule(),
	})
	require.NoError(t, err)

	l.Fund("usdc", "alice", 500)
	_, err = eng.Deposit(ctx, DepositRequest{VaultID: "evergreen", Depositor: "alice", Amount: 500})
	require.NoError(t, err)
	l.Fund("usdc", st.CustodyAccount(), 10_000)

	_, err = eng.Distribute(ctx, DistributeRequest{VaultID: "evergreen", TotalAmount: 10_000})
	require.Error(t, err)

	// Round never reached its commit point: no fee moved, no epoch bump.
	treasuryBalance, _ := l.GetBalance(ctx, "usdc", st.TreasuryAccount)
	assert.Equal(t, uint64(0), treasuryBalance)
	updated, _ := eng.State(ctx, "evergreen")
	assert.Equal(t, uint64(0), updated.DistributionEpoch)
}
