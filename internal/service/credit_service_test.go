package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlate/voxlate-api/internal/domain"
)

func TestGrantCredits(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedgerStore{}
	s := NewCreditService(ledger, slog.Default())

	ownerID := uuid.New()
	expires := time.Now().UTC().Add(30 * 24 * time.Hour)
	grant, err := s.Grant(context.Background(), ownerID, 100, &expires)
	require.NoError(t, err)

	assert.Equal(t, ownerID, grant.OwnerID)
	assert.Equal(t, 100, grant.Amount)
	assert.Equal(t, 100, grant.Remaining, "a fresh grant is fully spendable")
	assert.Equal(t, domain.LedgerEntryActive, grant.Status)
	assert.Equal(t, domain.LedgerSceneGrant, grant.Scene)
	require.NotNil(t, grant.ExpiresAt)
	require.Len(t, ledger.grants, 1)
}

func TestGrantRejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedgerStore{}
	s := NewCreditService(ledger, slog.Default())

	_, err := s.Grant(context.Background(), uuid.New(), 0, nil)
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)

	_, err = s.Grant(context.Background(), uuid.New(), -5, nil)
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)
	assert.Empty(t, ledger.grants)
}

func TestBalance(t *testing.T) {
	t.Parallel()

	s := NewCreditService(&fakeLedgerStore{balance: 42}, slog.Default())

	balance, err := s.Balance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 42, balance)
}

func TestBalanceStoreFailure(t *testing.T) {
	t.Parallel()

	s := NewCreditService(&fakeLedgerStore{balanceErr: errors.New("db gone")}, slog.Default())

	_, err := s.Balance(context.Background(), uuid.New())
	assert.Error(t, err)
}
