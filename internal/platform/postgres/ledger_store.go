package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voxlate/voxlate-api/internal/domain"
	"github.com/voxlate/voxlate-api/internal/platform/logger"
	"github.com/voxlate/voxlate-api/internal/store"
)

// PostgresLedgerStore implements the store.LedgerStore interface
// using a PostgreSQL database as the storage backend.
//
// Consume and Refund are multi-statement operations; callers must run them
// inside a transaction (WithTx) so the row locks taken by FOR UPDATE hold
// until commit.
type PostgresLedgerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLedgerStore creates a new PostgreSQL implementation of the LedgerStore interface.
func NewPostgresLedgerStore(db store.DBTX, logger *slog.Logger) *PostgresLedgerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresLedgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

// Ensure PostgresLedgerStore implements store.LedgerStore interface
var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// WithTx returns a new LedgerStore that runs on the provided transaction.
func (s *PostgresLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return &PostgresLedgerStore{db: tx, logger: s.logger}
}

// CreateGrant implements store.LedgerStore.CreateGrant
func (s *PostgresLedgerStore) CreateGrant(ctx context.Context, grant *domain.CreditGrant) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if grant.Amount <= 0 {
		return domain.ErrNonPositiveAmount
	}

	query := `
		INSERT INTO credit_grants (id, owner_id, amount, remaining, status, scene, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		grant.ID,
		grant.OwnerID,
		grant.Amount,
		grant.Remaining,
		grant.Status,
		grant.Scene,
		grant.ExpiresAt,
		grant.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create credit grant",
			slog.String("error", err.Error()),
			slog.String("grant_id", grant.ID.String()))
		return err
	}

	log.Info("credit grant created",
		slog.String("grant_id", grant.ID.String()),
		slog.String("owner_id", grant.OwnerID.String()),
		slog.Int("amount", grant.Amount))
	return nil
}

// SpendableBalance implements store.LedgerStore.SpendableBalance
func (s *PostgresLedgerStore) SpendableBalance(ctx context.Context, ownerID uuid.UUID) (int, error) {
	query := `
		SELECT COALESCE(SUM(remaining), 0)
		FROM credit_grants
		WHERE owner_id = $1
		  AND status = $2
		  AND remaining > 0
		  AND (expires_at IS NULL OR expires_at > $3)
	`
	var balance int
	err := s.db.QueryRowContext(ctx, query,
		ownerID, domain.LedgerEntryActive, time.Now().UTC()).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to compute spendable balance: %w", err)
	}
	return balance, nil
}

// Consume implements store.LedgerStore.Consume.
// It locks the owner's spendable grants, plans a deterministic
// oldest-expiring-first draw-down, applies it, and records a consumption
// entry with one line per grant so that Refund can restore exact amounts.
func (s *PostgresLedgerStore) Consume(
	ctx context.Context,
	ownerID uuid.UUID,
	amount int,
	scene string,
) (*domain.CreditConsumption, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := time.Now().UTC()

	// Lock spendable grants in draw-down order. NULLS LAST keeps
	// non-expiring credit at the back of the queue.
	query := `
		SELECT id, owner_id, amount, remaining, status, scene, expires_at, created_at
		FROM credit_grants
		WHERE owner_id = $1
		  AND status = $2
		  AND remaining > 0
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY expires_at ASC NULLS LAST, created_at ASC, id ASC
		FOR UPDATE
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, domain.LedgerEntryActive, now)
	if err != nil {
		log.Error("failed to lock credit grants",
			slog.String("error", err.Error()),
			slog.String("owner_id", ownerID.String()))
		return nil, err
	}

	var grants []domain.CreditGrant
	for rows.Next() {
		var g domain.CreditGrant
		var status string
		var expiresAt sql.NullTime
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Amount, &g.Remaining, &status,
			&g.Scene, &expiresAt, &g.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		g.Status = domain.LedgerEntryStatus(status)
		if expiresAt.Valid {
			t := expiresAt.Time
			g.ExpiresAt = &t
		}
		grants = append(grants, g)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := domain.PlanDrawDown(grants, amount, now)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			log.Info("consume rejected, insufficient credits",
				slog.String("owner_id", ownerID.String()),
				slog.Int("amount", amount))
		}
		return nil, err
	}

	for _, line := range lines {
		result, err := s.db.ExecContext(ctx,
			`UPDATE credit_grants SET remaining = remaining - $1 WHERE id = $2 AND remaining >= $1`,
			line.Amount, line.GrantID)
		if err != nil {
			return nil, fmt.Errorf("failed to draw down grant %s: %w", line.GrantID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			// The locked snapshot said this grant had the credit; a zero
			// here means the plan and the rows diverged.
			return nil, store.NewStoreError("ledger", "consume",
				fmt.Sprintf("grant %s draw-down lost its balance mid-transaction", line.GrantID), nil)
		}
	}

	consumption := &domain.CreditConsumption{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Amount:    amount,
		Status:    domain.LedgerEntryActive,
		Scene:     scene,
		Lines:     lines,
		CreatedAt: now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credit_consumptions (id, owner_id, amount, status, scene, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		consumption.ID, consumption.OwnerID, consumption.Amount,
		consumption.Status, consumption.Scene, consumption.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record consumption: %w", err)
	}

	for _, line := range lines {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO credit_consumption_lines (consumption_id, grant_id, amount)
			 VALUES ($1, $2, $3)`,
			consumption.ID, line.GrantID, line.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to record consumption line: %w", err)
		}
	}

	log.Info("credits consumed",
		slog.String("owner_id", ownerID.String()),
		slog.String("consumption_id", consumption.ID.String()),
		slog.Int("amount", amount),
		slog.Int("grants_drawn", len(lines)))
	return consumption, nil
}

// GetConsumption implements store.LedgerStore.GetConsumption
func (s *PostgresLedgerStore) GetConsumption(ctx context.Context, id uuid.UUID) (*domain.CreditConsumption, error) {
	query := `
		SELECT id, owner_id, amount, status, scene, created_at
		FROM credit_consumptions
		WHERE id = $1
	`
	var c domain.CreditConsumption
	var status string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.OwnerID, &c.Amount, &status, &c.Scene, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConsumptionNotFound
		}
		return nil, err
	}
	c.Status = domain.LedgerEntryStatus(status)

	rows, err := s.db.QueryContext(ctx,
		`SELECT grant_id, amount FROM credit_consumption_lines WHERE consumption_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.ConsumptionLine
		if err := rows.Scan(&line.GrantID, &line.Amount); err != nil {
			return nil, err
		}
		c.Lines = append(c.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Refund implements store.LedgerStore.Refund.
// The consumption row is locked first so that the pipeline and the
// watchdog racing on the same refund serialize here; the loser sees the
// reversed status and returns without touching the grants again.
func (s *PostgresLedgerStore) Refund(ctx context.Context, consumptionID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM credit_consumptions WHERE id = $1 FOR UPDATE`,
		consumptionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrConsumptionNotFound
		}
		return err
	}

	if domain.LedgerEntryStatus(status) == domain.LedgerEntryReversed {
		log.Debug("refund skipped, consumption already reversed",
			slog.String("consumption_id", consumptionID.String()))
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT grant_id, amount FROM credit_consumption_lines WHERE consumption_id = $1`,
		consumptionID)
	if err != nil {
		return err
	}

	var lines []domain.ConsumptionLine
	for rows.Next() {
		var line domain.ConsumptionLine
		if err := rows.Scan(&line.GrantID, &line.Amount); err != nil {
			_ = rows.Close()
			return err
		}
		lines = append(lines, line)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Restore exactly what was drawn, to exactly the grants it came from.
	for _, line := range lines {
		result, err := s.db.ExecContext(ctx,
			`UPDATE credit_grants SET remaining = remaining + $1 WHERE id = $2`,
			line.Amount, line.GrantID)
		if err != nil {
			return fmt.Errorf("failed to restore grant %s: %w", line.GrantID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return store.ErrGrantNotFound
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE credit_consumptions SET status = $1 WHERE id = $2`,
		domain.LedgerEntryReversed, consumptionID)
	if err != nil {
		return fmt.Errorf("failed to mark consumption reversed: %w", err)
	}

	log.Info("consumption refunded",
		slog.String("consumption_id", consumptionID.String()),
		slog.Int("grants_restored", len(lines)))
	return nil
}
