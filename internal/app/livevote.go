package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"festival-mileage/internal/metrics"
	"go.uber.org/zap"
)

// FinalRound is the round derived from the winners of rounds 1 and 2.
const FinalRound = 3

// LiveVote drives the administrator side of the two-candidate vote
// (Idle, Running, Ended) and accepts ballots for the running round. All state
// lives in the store under scope; LiveVote itself holds none.
type LiveVote struct {
	store    docstore.Store
	scope    RoundScope
	logger   *zap.Logger
	duration time.Duration
	grace    time.Duration
	now      func() time.Time
}

func NewLiveVote(store docstore.Store, scope RoundScope, logger *zap.Logger, duration, grace time.Duration) *LiveVote {
	return NewLiveVoteWithClock(store, scope, logger, duration, grace, time.Now)
}

// NewLiveVoteWithClock is used by tests that need a deterministic clock.
func NewLiveVoteWithClock(store docstore.Store, scope RoundScope, logger *zap.Logger, duration, grace time.Duration, now func() time.Time) *LiveVote {
	return &LiveVote{store: store, scope: scope, logger: logger, duration: duration, grace: grace, now: now}
}

// Scope returns the round scope this vote operates on.
func (v *LiveVote) Scope() RoundScope { return v.scope }

// State reads the current round document.
func (v *LiveVote) State(ctx context.Context) (domain.LiveVoteState, error) {
	snap, err := v.store.Get(ctx, v.scope.CurrentPath())
	if err != nil {
		return domain.LiveVoteState{}, domain.Transient(err)
	}
	return decodeVoteState(snap), nil
}

// Round reads the snapshot of a finished or running round.
func (v *LiveVote) Round(ctx context.Context, round int) (domain.RoundResult, bool, error) {
	snap, err := v.store.Get(ctx, v.scope.RoundPath(round))
	if err != nil {
		return domain.RoundResult{}, false, domain.Transient(err)
	}
	if !snap.Exists {
		return domain.RoundResult{}, false, nil
	}
	return decodeRound(snap), true, nil
}

// Start opens round with the given candidates. Ballots of the shared scope are
// cleared first, so a retried Start never double counts. Restarting the same
// round number is allowed; starting a different one while a round runs is not.
func (v *LiveVote) Start(ctx context.Context, round int, candidateA, candidateB string) (domain.LiveVoteState, error) {
	if round < 1 || round > FinalRound {
		return domain.LiveVoteState{}, domain.ErrInvalidRound
	}
	a, b := strings.TrimSpace(candidateA), strings.TrimSpace(candidateB)
	if a == "" || b == "" {
		return domain.LiveVoteState{}, domain.ErrInvalidCandidates
	}

	current, err := v.State(ctx)
	if err != nil {
		return domain.LiveVoteState{}, err
	}
	if current.Active && current.Round != round {
		return domain.LiveVoteState{}, domain.ErrRoundInProgress
	}

	if _, err := docstore.DeleteAll(ctx, v.store, v.scope.VotesCollection()); err != nil {
		return domain.LiveVoteState{}, domain.Transient(err)
	}
	candidates := []string{a, b}
	seconds := int(v.duration / time.Second)
	if err := v.store.Set(ctx, v.scope.CurrentPath(), docstore.Data{
		"active":     true,
		"round":      round,
		"candidates": candidates,
		"startedAt":  docstore.ServerTimestamp,
		"duration":   seconds,
		"ended":      false,
	}); err != nil {
		return domain.LiveVoteState{}, domain.Transient(err)
	}
	if err := v.store.Merge(ctx, v.scope.RoundPath(round), docstore.Data{
		"round":      round,
		"candidates": candidates,
		"startedAt":  docstore.ServerTimestamp,
	}); err != nil {
		return domain.LiveVoteState{}, domain.Transient(err)
	}

	metrics.RoundTransitions.WithLabelValues("start").Inc()
	v.logger.Info("vote round started",
		zap.Int("round", round), zap.Strings("candidates", candidates), zap.Int("duration", seconds))
	return v.State(ctx)
}

// Finalize tallies the running round and ends it. Ties go to candidate 0.
// Ballots from another round or written after the deadline plus the grace
// period are not counted. Finalizing an already ended round returns its
// recorded result.
func (v *LiveVote) Finalize(ctx context.Context) (domain.RoundResult, error) {
	state, err := v.State(ctx)
	if err != nil {
		return domain.RoundResult{}, err
	}
	if len(state.Candidates) != 2 {
		return domain.RoundResult{}, domain.ErrRoundNotRunning
	}
	if !state.Active {
		if state.Ended {
			return v.recorded(ctx, state.Round)
		}
		return domain.RoundResult{}, domain.ErrRoundNotRunning
	}

	snaps, err := v.store.List(ctx, v.scope.VotesCollection())
	if err != nil {
		return domain.RoundResult{}, domain.Transient(err)
	}
	ballots := make([]domain.Ballot, 0, len(snaps))
	for _, snap := range snaps {
		if b, ok := decodeBallot(snap); ok {
			ballots = append(ballots, b)
		}
	}
	counts := Tally(ballots, state.Round, state.Deadline().Add(v.grace))
	winner := WinnerIndex(counts)
	result := domain.RoundResult{
		Round:       state.Round,
		Candidates:  state.Candidates,
		Counts:      counts,
		TotalVotes:  counts[0] + counts[1],
		WinnerIndex: winner,
		WinnerName:  state.Candidates[winner],
		StartedAt:   state.StartedAt,
	}

	alreadyEnded := false
	err = v.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		alreadyEnded = false
		snap, err := tx.Get(v.scope.CurrentPath())
		if err != nil {
			return err
		}
		latest := decodeVoteState(snap)
		if !latest.Active || latest.Round != state.Round {
			alreadyEnded = true
			return nil
		}
		if err := tx.Merge(v.scope.RoundPath(state.Round), docstore.Data{
			"round":       state.Round,
			"candidates":  state.Candidates,
			"counts":      []int{counts[0], counts[1]},
			"totalVotes":  result.TotalVotes,
			"winnerIndex": winner,
			"winnerName":  result.WinnerName,
			"startedAt":   state.StartedAt,
			"endedAt":     docstore.ServerTimestamp,
		}); err != nil {
			return err
		}
		return tx.Merge(v.scope.CurrentPath(), docstore.Data{
			"active": false,
			"ended":  true,
		})
	})
	if err != nil {
		return domain.RoundResult{}, domain.Transient(err)
	}
	if alreadyEnded {
		return v.recorded(ctx, state.Round)
	}

	if _, err := docstore.DeleteAll(ctx, v.store, v.scope.VotesCollection()); err != nil {
		v.logger.Warn("clearing ballots after finalize failed", zap.Error(err))
	}
	metrics.RoundTransitions.WithLabelValues("finalize").Inc()
	v.logger.Info("vote round finalized",
		zap.Int("round", state.Round),
		zap.Ints("counts", []int{counts[0], counts[1]}),
		zap.String("winner", result.WinnerName))
	return v.recorded(ctx, state.Round)
}

// StartFinalAuto starts the final round between the winners of rounds 1 and 2.
// Nothing is written unless both rounds recorded a winner.
func (v *LiveVote) StartFinalAuto(ctx context.Context) (domain.LiveVoteState, error) {
	first, ok1, err := v.Round(ctx, 1)
	if err != nil {
		return domain.LiveVoteState{}, err
	}
	second, ok2, err := v.Round(ctx, 2)
	if err != nil {
		return domain.LiveVoteState{}, err
	}
	if !ok1 || !ok2 || first.WinnerName == "" || second.WinnerName == "" {
		return domain.LiveVoteState{}, domain.ErrSemifinalIncomplete
	}
	metrics.RoundTransitions.WithLabelValues("final_auto").Inc()
	return v.Start(ctx, FinalRound, first.WinnerName, second.WinnerName)
}

// Vote upserts the ballot of uid for the running round. A second vote
// overwrites the first.
func (v *LiveVote) Vote(ctx context.Context, uid string, round, choice int) (domain.Ballot, error) {
	if choice != 0 && choice != 1 {
		metrics.Ballots.WithLabelValues("rejected").Inc()
		return domain.Ballot{}, domain.ErrInvalidChoice
	}
	state, err := v.State(ctx)
	if err != nil {
		return domain.Ballot{}, err
	}
	if !state.Active || len(state.Candidates) != 2 {
		metrics.Ballots.WithLabelValues("rejected").Inc()
		return domain.Ballot{}, domain.ErrRoundNotRunning
	}
	if state.Round != round || v.now().After(state.Deadline().Add(v.grace)) {
		metrics.Ballots.WithLabelValues("rejected").Inc()
		return domain.Ballot{}, domain.ErrRoundClosed
	}

	ballot := domain.Ballot{UID: uid, ChoiceIndex: choice, ChoiceName: state.Candidates[choice], Round: round}
	if err := v.store.Set(ctx, v.scope.BallotPath(uid), docstore.Data{
		"uid":         uid,
		"choiceIndex": choice,
		"choiceName":  ballot.ChoiceName,
		"round":       round,
		"votedAt":     docstore.ServerTimestamp,
	}); err != nil {
		metrics.Ballots.WithLabelValues("error").Inc()
		return domain.Ballot{}, domain.Transient(err)
	}
	metrics.Ballots.WithLabelValues("accepted").Inc()
	return ballot, nil
}

// Stream emits the client view of the current round on every change and on
// every interval tick, so remaining time converges without client timers.
// The caller must invoke the returned cancel function.
func (v *LiveVote) Stream(ctx context.Context, interval time.Duration) (<-chan domain.LiveVoteView, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	states, stop, err := v.store.Watch(ctx, v.scope.CurrentPath())
	if err != nil {
		cancel()
		return nil, nil, domain.Transient(err)
	}

	out := make(chan domain.LiveVoteView, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)

		var state domain.LiveVoteState
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-states:
			if !ok {
				return
			}
			state = decodeVoteState(snap)
			sendView(out, ViewAt(state, v.now()))
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-states:
				if !ok {
					return
				}
				state = decodeVoteState(snap)
			case <-ticker.C:
			}
			sendView(out, ViewAt(state, v.now()))
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			cancel()
			stop()
			wg.Wait()
		})
	}, nil
}

// WatchCounts streams the live tally of the ballot scope for the admin panel.
func (v *LiveVote) WatchCounts(ctx context.Context) (<-chan [2]int, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	lists, stop, err := v.store.WatchCollection(ctx, v.scope.VotesCollection())
	if err != nil {
		cancel()
		return nil, nil, domain.Transient(err)
	}
	out := make(chan [2]int, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snaps, ok := <-lists:
				if !ok {
					return
				}
				var counts [2]int
				for _, snap := range snaps {
					if b, ok := decodeBallot(snap); ok && (b.ChoiceIndex == 0 || b.ChoiceIndex == 1) {
						counts[b.ChoiceIndex]++
					}
				}
				select {
				case out <- counts:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, func() {
		cancel()
		stop()
	}, nil
}

func (v *LiveVote) recorded(ctx context.Context, round int) (domain.RoundResult, error) {
	result, ok, err := v.Round(ctx, round)
	if err != nil {
		return domain.RoundResult{}, err
	}
	if !ok {
		return domain.RoundResult{}, domain.ErrRoundNotRunning
	}
	return result, nil
}

// ViewAt derives what a client shows at now. A round whose deadline has passed
// is reported inactive even while the stored state still says active.
func ViewAt(state domain.LiveVoteState, now time.Time) domain.LiveVoteView {
	view := domain.LiveVoteView{
		Round:      state.Round,
		Candidates: state.Candidates,
		StartedAt:  state.StartedAt,
		Ended:      state.Ended,
	}
	if state.Active && !state.StartedAt.IsZero() {
		if remaining := state.Deadline().Sub(now); remaining > 0 {
			view.Remaining = remaining
		}
	}
	view.Active = state.Active && view.Remaining > 0
	view.RemainMS = view.Remaining.Milliseconds()
	return view
}

// Tally counts ballots for round with choice 0 or 1 written no later than cutoff.
// Ballots without a timestamp are counted.
func Tally(ballots []domain.Ballot, round int, cutoff time.Time) [2]int {
	var counts [2]int
	for _, b := range ballots {
		if b.Round != round || (b.ChoiceIndex != 0 && b.ChoiceIndex != 1) {
			continue
		}
		if !b.VotedAt.IsZero() && b.VotedAt.After(cutoff) {
			continue
		}
		counts[b.ChoiceIndex]++
	}
	return counts
}

// WinnerIndex picks the candidate with more votes; ties go to index 0.
func WinnerIndex(counts [2]int) int {
	if counts[1] > counts[0] {
		return 1
	}
	return 0
}

func sendView(ch chan domain.LiveVoteView, view domain.LiveVoteView) {
	select {
	case ch <- view:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- view:
		default:
		}
	}
}
