package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/voxlate/voxlate-api/internal/domain"
)

// LedgerStore defines the interface for the credit ledger.
//
// Consume and Refund are the only operations in the system requiring
// transactional mutual exclusion: draw-down and restoration of the same
// grants must not race. Implementations lock the affected grant rows for
// the duration of the operation.
type LedgerStore interface {
	// CreateGrant persists a new credit grant.
	CreateGrant(ctx context.Context, grant *domain.CreditGrant) error

	// SpendableBalance sums remaining credit across the owner's active,
	// unexpired grants.
	SpendableBalance(ctx context.Context, ownerID uuid.UUID) (int, error)

	// Consume draws the given amount across the owner's grants,
	// oldest-expiring-first, and records a consumption entry with one line
	// per grant drawn from. Returns domain.ErrInsufficientCredits when the
	// spendable balance cannot cover the amount.
	Consume(ctx context.Context, ownerID uuid.UUID, amount int, scene string) (*domain.CreditConsumption, error)

	// GetConsumption retrieves a consumption entry with its lines.
	GetConsumption(ctx context.Context, id uuid.UUID) (*domain.CreditConsumption, error)

	// Refund restores the consumption's drawn amounts to their original
	// grants and marks the entry reversed. Refunding an already-reversed
	// entry is a no-op, not an error, so the pipeline and the watchdog may
	// race on it safely.
	Refund(ctx context.Context, consumptionID uuid.UUID) error

	// WithTx returns a new LedgerStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) LedgerStore
}
