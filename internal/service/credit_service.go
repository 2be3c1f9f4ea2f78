package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/store"
)

// CreditService exposes grant creation and balance reads. Consumption and
// refund are internal to the submission coordinator and the pipeline.
type CreditService struct {
	ledger store.LedgerStore
	logger *slog.Logger
}

// NewCreditService creates the credit service.
func NewCreditService(ledger store.LedgerStore, logger *slog.Logger) *CreditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreditService{
		ledger: ledger,
		logger: logger.With(slog.String("component", "credit_service")),
	}
}

// Grant credits the owner with a new spendable grant. A nil expiresAt
// creates open-ended credit, which the draw-down planner spends last.
func (s *CreditService) Grant(ctx context.Context, ownerID uuid.UUID, amount int, expiresAt *time.Time) (*domain.CreditGrant, error) {
	if amount <= 0 {
		return nil, domain.ErrNonPositiveAmount
	}

	grant := &domain.CreditGrant{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Amount:    amount,
		Remaining: amount,
		Status:    domain.LedgerEntryActive,
		Scene:     domain.LedgerSceneGrant,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledger.CreateGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("failed to create credit grant: %w", err)
	}

	s.logger.Info("credits granted",
		slog.String("grant_id", grant.ID.String()),
		slog.String("owner_id", ownerID.String()),
		slog.Int("amount", amount))
	return grant, nil
}

// Balance returns the owner's spendable balance.
func (s *CreditService) Balance(ctx context.Context, ownerID uuid.UUID) (int, error) {
	balance, err := s.ledger.SpendableBalance(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}
