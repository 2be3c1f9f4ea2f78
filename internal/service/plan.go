package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/voxlate/voxlate-api/internal/config"
)

// PlanLimits is the per-owner policy the submission coordinator enforces.
type PlanLimits struct {
	// MaxConcurrentTasks caps the owner's non-terminal tasks. Zero means
	// unlimited.
	MaxConcurrentTasks int

	// TaskCost is the credit price of one task.
	TaskCost int

	// MaxDurationSeconds caps the source media's length. The duration is
	// only known after extraction, so the pipeline enforces this limit, not
	// the submission path. Zero means unlimited.
	MaxDurationSeconds int

	// FreeTrialTasks is how many tasks an owner may run before credits are
	// charged, when the trial is enabled.
	FreeTrialTasks int

	// FreeTrialEnabled turns the trial allowance on.
	FreeTrialEnabled bool
}

// PlanPolicy resolves the limits applying to one owner. A config-backed
// implementation serves every owner the same limits; a billing-service
// client can replace it without touching the coordinator.
type PlanPolicy interface {
	Limits(ctx context.Context, ownerID uuid.UUID) (PlanLimits, error)
}

// StaticPlanPolicy serves the limits from static configuration.
type StaticPlanPolicy struct {
	limits PlanLimits
}

var _ PlanPolicy = (*StaticPlanPolicy)(nil)

// NewStaticPlanPolicy builds a policy from plan configuration. A
// non-positive task cost defaults to 1.
func NewStaticPlanPolicy(cfg config.PlanConfig) *StaticPlanPolicy {
	cost := cfg.TaskCost
	if cost <= 0 {
		cost = 1
	}
	return &StaticPlanPolicy{
		limits: PlanLimits{
			MaxConcurrentTasks: cfg.MaxConcurrentTasks,
			TaskCost:           cost,
			MaxDurationSeconds: cfg.MaxDurationSeconds,
			FreeTrialTasks:     cfg.FreeTrialTasks,
			FreeTrialEnabled:   cfg.FreeTrialEnabled,
		},
	}
}

// Limits implements PlanPolicy.Limits.
func (p *StaticPlanPolicy) Limits(_ context.Context, _ uuid.UUID) (PlanLimits, error) {
	return p.limits, nil
}
