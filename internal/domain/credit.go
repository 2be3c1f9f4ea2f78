package domain

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// LedgerEntryStatus marks a ledger entry as spendable or reversed.
type LedgerEntryStatus string

const (
	LedgerEntryActive   LedgerEntryStatus = "active"
	LedgerEntryReversed LedgerEntryStatus = "reversed"
)

// Ledger scene tags describing why an entry exists.
const (
	LedgerSceneTaskCost = "task_cost"
	LedgerSceneGrant    = "grant"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNonPositiveAmount   = errors.New("credit amount must be positive")
)

// CreditGrant is a credit-granting ledger entry with a remaining balance
// and an optional expiry. The sum of Remaining over active, unexpired
// grants is the owner's spendable balance.
type CreditGrant struct {
	ID        uuid.UUID         `json:"id"`
	OwnerID   uuid.UUID         `json:"owner_id"`
	Amount    int               `json:"amount"`
	Remaining int               `json:"remaining"`
	Status    LedgerEntryStatus `json:"status"`
	Scene     string            `json:"scene"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Expired reports whether the grant can no longer be drawn from at the
// given instant.
func (g *CreditGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Spendable reports whether the grant contributes to the owner's balance.
func (g *CreditGrant) Spendable(now time.Time) bool {
	return g.Status == LedgerEntryActive && g.Remaining > 0 && !g.Expired(now)
}

// ConsumptionLine records how much one consumption drew from one grant.
// Refunds restore exactly these amounts to exactly these grants.
type ConsumptionLine struct {
	GrantID uuid.UUID `json:"grant_id"`
	Amount  int       `json:"amount"`
}

// CreditConsumption is a ledger entry recording credits drawn from one or
// more grants for a single task.
type CreditConsumption struct {
	ID        uuid.UUID         `json:"id"`
	OwnerID   uuid.UUID         `json:"owner_id"`
	Amount    int               `json:"amount"`
	Status    LedgerEntryStatus `json:"status"`
	Scene     string            `json:"scene"`
	Lines     []ConsumptionLine `json:"lines"`
	CreatedAt time.Time         `json:"created_at"`
}

// SpendableBalance sums the remaining credit across active, unexpired
// grants.
func SpendableBalance(grants []CreditGrant, now time.Time) int {
	total := 0
	for i := range grants {
		if grants[i].Spendable(now) {
			total += grants[i].Remaining
		}
	}
	return total
}

// PlanDrawDown selects which grants a consumption of the given amount
// draws from, oldest-expiring-first so that credit about to vanish is
// spent before open-ended credit. Grants without an expiry sort last, ties
// break on creation time then ID, keeping the order deterministic across
// replicas. Returns ErrInsufficientCredits when the spendable balance
// cannot cover the amount; no partial plans are produced.
func PlanDrawDown(grants []CreditGrant, amount int, now time.Time) ([]ConsumptionLine, error) {
	if amount <= 0 {
		return nil, ErrNonPositiveAmount
	}

	candidates := make([]*CreditGrant, 0, len(grants))
	for i := range grants {
		if grants[i].Spendable(now) {
			candidates = append(candidates, &grants[i])
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt != nil:
			return false
		case a.ExpiresAt != nil && b.ExpiresAt == nil:
			return true
		case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID.String() < b.ID.String()
		}
	})

	var lines []ConsumptionLine
	remaining := amount
	for _, g := range candidates {
		if remaining == 0 {
			break
		}
		draw := g.Remaining
		if draw > remaining {
			draw = remaining
		}
		lines = append(lines, ConsumptionLine{GrantID: g.ID, Amount: draw})
		remaining -= draw
	}

	if remaining > 0 {
		return nil, ErrInsufficientCredits
	}
	return lines, nil
}
