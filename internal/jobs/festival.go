package jobs

import (
	"context"
	"time"

	"festival-mileage/internal/app"
	"festival-mileage/internal/domain"
	"go.uber.org/zap"
)

// ClassSnapshotJob periodically freezes the class ranking.
func ClassSnapshotJob(classes *app.ClassService) Job {
	return func(ctx context.Context) error {
		_, err := classes.Snapshot(ctx)
		return err
	}
}

// RoundStateReader reads the current live vote round.
type RoundStateReader interface {
	State(ctx context.Context) (domain.LiveVoteState, error)
}

// OverdueRoundJob warns when a round is still marked active well past its
// deadline. Finalizing stays an administrator action.
func OverdueRoundJob(votes RoundStateReader, after time.Duration, logger *zap.Logger, now func() time.Time) Job {
	warned := 0
	return func(ctx context.Context) error {
		state, err := votes.State(ctx)
		if err != nil {
			return err
		}
		if !state.Active {
			warned = 0
			return nil
		}
		overdue := now().Sub(state.Deadline())
		if overdue <= after || warned == state.Round {
			return nil
		}
		warned = state.Round
		logger.Warn("vote round past deadline and not finalized",
			zap.Int("round", state.Round), zap.Duration("overdue", overdue))
		return nil
	}
}
