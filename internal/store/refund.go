package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Refunder reverses a credit consumption. The pipeline and the watchdog
// depend on this instead of the full ledger store; both may attempt the
// same refund and rely on its idempotence.
type Refunder interface {
	Refund(ctx context.Context, consumptionID uuid.UUID) error
}

// TxRefunder runs each refund in its own transaction so the grant-row
// locks are held only for the duration of the reversal.
type TxRefunder struct {
	db     *sql.DB
	ledger LedgerStore
}

var _ Refunder = (*TxRefunder)(nil)

// NewTxRefunder creates a Refunder over the given database and ledger.
func NewTxRefunder(db *sql.DB, ledger LedgerStore) *TxRefunder {
	return &TxRefunder{db: db, ledger: ledger}
}

// Refund implements Refunder.Refund.
func (r *TxRefunder) Refund(ctx context.Context, consumptionID uuid.UUID) error {
	return RunInTransaction(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		return r.ledger.WithTx(tx).Refund(ctx, consumptionID)
	})
}
