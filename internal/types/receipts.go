package types

import "time"

// DepositReceipt describes a committed deposit operation.
type DepositReceipt struct {
	OperationID  string    `json:"operation_id"`
	VaultID      string    `json:"vault_id"`
	Depositor    string    `json:"depositor"`
	Amount       uint64    `json:"amount"`
	MintedShares uint64    `json:"minted_shares"`
	Timestamp    time.Time `json:"timestamp"`
}

// PurchaseReceipt describes a committed purchase operation and how the price
// was split between the seller and the vault fee account.
type PurchaseReceipt struct {
	OperationID  string    `json:"operation_id"`
	VaultID      string    `json:"vault_id"`
	Seller       string    `json:"seller"`
	Price        uint64    `json:"price"`
	SaleFee      uint64    `json:"sale_fee"`
	SellerAmount uint64    `json:"seller_amount"`
	Timestamp    time.Time `json:"timestamp"`
}

// HolderPayout records the outcome of one holder's transfer within a
// distribution round.
type HolderPayout struct {
	Holder  string `json:"holder"`
	Balance uint64 `json:"balance"`
	Amount  uint64 `json:"amount"`
	Paid    bool   `json:"paid"`
	// Skipped is set when the payout journal showed the holder was already
	// paid in this epoch (a retried round).
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DistributionReport describes a distribution round. The residual from
// integer-division truncation is retained in vault custody and reported here
// rather than silently lost.
type DistributionReport struct {
	OperationID     string         `json:"operation_id"`
	VaultID         string         `json:"vault_id"`
	Epoch           uint64         `json:"epoch"`
	TotalAmount     uint64         `json:"total_amount"`
	DistributionFee uint64         `json:"distribution_fee"`
	Distributable   uint64         `json:"distributable"`
	PerUnit         uint64         `json:"per_unit"`
	Residual        uint64         `json:"residual"`
	Payouts         []HolderPayout `json:"payouts"`
	Timestamp       time.Time      `json:"timestamp"`
}

// FailedPayouts returns the payouts that neither committed nor were skipped.
func (r *DistributionReport) FailedPayouts() []HolderPayout {
	var failed []HolderPayout
	for _, p := range r.Payouts {
		if !p.Paid && !p.Skipped {
			failed = append(failed, p)
		}
	}
	return failed
}

// Operation receipt statuses. A pending row is written before any external
// side effect; a committed or failed row records the outcome. A pending row
// with no matching outcome marks an operation needing reconciliation.
const (
	OpStatusPending   = "pending"
	OpStatusCommitted = "committed"
	OpStatusFailed    = "failed"
)

// OperationReceipt is the persisted journal row for any engine operation.
type OperationReceipt struct {
	ReceiptID   int64     `json:"receipt_id"`
	OperationID string    `json:"operation_id"`
	VaultID     string    `json:"vault_id"`
	Kind        string    `json:"kind"`
	Amount      uint64    `json:"amount"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
