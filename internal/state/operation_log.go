package state

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vivipolli/evergreen-protocol/internal/types"
)

// OperationLog persists receipts per engine operation. Intent rows go down
// before any external side effect and must succeed; outcome rows are logged
// and swallowed on failure so an audit hiccup never fails a committed
// operation. A pending row with no outcome row marks an operation that needs
// reconciliation.
type OperationLog struct{}

// NewOperationLog returns a log bound to the global connection pool.
func NewOperationLog() *OperationLog {
	return &OperationLog{}
}

func insertReceipt(ctx context.Context, receipt types.OperationReceipt) error {
	query := `
		INSERT INTO operation_receipts (operation_id, vault_id, kind, amount, status, message, receipt_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := DB.ExecContext(ctx, query,
		receipt.OperationID, receipt.VaultID, receipt.Kind, receipt.Amount,
		receipt.Status, receipt.Message, receipt.Timestamp,
	)
	return err
}

// RecordIntent inserts a pending receipt. Unlike Record, a failure here is
// returned to the caller, which aborts before any value moves.
func (l *OperationLog) RecordIntent(ctx context.Context, receipt types.OperationReceipt) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := insertReceipt(ctx, receipt); err != nil {
		return fmt.Errorf("failed to record %s intent: %w", receipt.Kind, err)
	}
	return nil
}

// Record inserts one outcome receipt.
func (l *OperationLog) Record(ctx context.Context, receipt types.OperationReceipt) {
	if DB == nil {
		log.Warn().Str("operation_id", receipt.OperationID).Msg("Operation receipt dropped, database not initialized")
		return
	}
	if err := insertReceipt(ctx, receipt); err != nil {
		log.Error().Err(err).Str("operation_id", receipt.OperationID).Msg("Failed to save operation receipt")
	}
}

// RecentReceipts returns the most recent operation receipts, newest first.
func RecentReceipts(ctx context.Context, limit int) ([]types.OperationReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT receipt_id, operation_id, vault_id, kind, amount, status, COALESCE(message, ''), receipt_timestamp
		FROM operation_receipts
		ORDER BY receipt_timestamp DESC
		LIMIT $1;`

	rows, err := DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.OperationReceipt
	for rows.Next() {
		var r types.OperationReceipt
		if err := rows.Scan(&r.ReceiptID, &r.OperationID, &r.VaultID, &r.Kind,
			&r.Amount, &r.Status, &r.Message, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan operation receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
