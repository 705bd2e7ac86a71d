package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/aibtcdev/daoctl/internal/platform"
)

// TreasuryEODJobType polls the DAO treasury wallet once every 24 hours.
const TreasuryEODJobType = "treasury_eod"

type treasuryEODTask struct{}

func (treasuryEODTask) Validate(_ context.Context, _ *platform.Invocation) (bool, string) {
	if blockchainClient == nil {
		return false, "blockchain client not configured"
	}
	if treasuryWallet == "" {
		return false, "treasury wallet address not configured"
	}
	return true, ""
}

func (treasuryEODTask) Execute(ctx context.Context, _ *platform.Invocation) (int, error) {
	bal, err := blockchainClient.TreasuryBalance(ctx, treasuryWallet)
	if err != nil {
		return 0, fmt.Errorf("tasks: treasury_eod: %w", err)
	}
	_ = bal // recording the balance to the treasury-history store is out of scope (spec.md Non-goals: no database schema)
	return 1, nil
}

func init() {
	d := platform.NewTaskDescriptor(TreasuryEODJobType, treasuryEODTask{})
	d.DisplayName = "Treasury EOD Balance"
	d.Description = "Polls the DAO treasury wallet balance once every 24 hours."
	d.Interval = 24 * time.Hour
	d.Priority = platform.PriorityNormal
	d.Requires = []string{"wallet", "blockchain"}
	d.Idempotent = true
	platform.MustRegisterDescriptor(d)
}
