package app

import (
	"context"
	"sync"
	"time"

	"festival-mileage/internal/domain"
)

// DefaultBallotDebounce collapses rapid re-selection into one write.
const DefaultBallotDebounce = 500 * time.Millisecond

// BallotWriter persists a ballot.
type BallotWriter interface {
	Vote(ctx context.Context, uid string, round, choice int) (domain.Ballot, error)
}

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// BallotSubmitter is the per-connection ballot session of one voter. Selections
// are debounced, an unchanged choice is never rewritten, a pending selection is
// flushed when the round ends, and everything resets on a new round start.
type BallotSubmitter struct {
	ctx     context.Context
	writer  BallotWriter
	uid     string
	delay   time.Duration
	after   AfterFunc
	onError func(error)

	writeMu sync.Mutex

	mu         sync.Mutex
	round      int
	candidates [2]string
	startedAt  time.Time
	selected   int
	confirmed  int
	pending    bool
	stop       func() bool
	gen        uint64
	closed     bool
}

// NewBallotSubmitter creates a session for uid. onError may be nil.
func NewBallotSubmitter(ctx context.Context, writer BallotWriter, uid string, delay time.Duration, onError func(error)) *BallotSubmitter {
	return NewBallotSubmitterWithTimer(ctx, writer, uid, delay, timeAfterFunc, onError)
}

// NewBallotSubmitterWithTimer lets tests drive the debounce timer.
func NewBallotSubmitterWithTimer(ctx context.Context, writer BallotWriter, uid string, delay time.Duration, after AfterFunc, onError func(error)) *BallotSubmitter {
	if onError == nil {
		onError = func(error) {}
	}
	return &BallotSubmitter{
		ctx:       ctx,
		writer:    writer,
		uid:       uid,
		delay:     delay,
		after:     after,
		onError:   onError,
		selected:  -1,
		confirmed: -1,
	}
}

// Reset binds the session to a round start. Selection and confirmation are
// cleared when the view belongs to another start; restarting the same round
// number moves startedAt and counts as one.
func (s *BallotSubmitter) Reset(round int, candidates []string, startedAt time.Time) {
	var pair [2]string
	copy(pair[:], candidates)

	s.mu.Lock()
	defer s.mu.Unlock()
	if round == s.round && pair == s.candidates && startedAt.Equal(s.startedAt) {
		return
	}
	s.cancelPendingLocked()
	s.round = round
	s.candidates = pair
	s.startedAt = startedAt
	s.selected = -1
	s.confirmed = -1
	s.closed = false
}

// Select records a choice and schedules its write. It reports false when the
// session is not bound to a running round.
func (s *BallotSubmitter) Select(choice int) bool {
	if choice != 0 && choice != 1 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.round == 0 {
		return false
	}
	s.selected = choice
	if choice == s.confirmed {
		s.cancelPendingLocked()
		return true
	}
	s.cancelPendingLocked()
	s.pending = true
	gen := s.gen
	s.stop = s.after(s.delay, func() { s.fire(gen) })
	return true
}

// End flushes a pending selection immediately and rejects further changes
// until the next Reset.
func (s *BallotSubmitter) End() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	flush := s.pending
	round, choice := s.round, s.selected
	s.cancelPendingLocked()
	s.mu.Unlock()

	if flush {
		s.write(round, choice)
	}
}

// Selected returns the current selection, or -1.
func (s *BallotSubmitter) Selected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Confirmed returns the last choice written for the current round, or -1.
func (s *BallotSubmitter) Confirmed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

// Pending reports whether a debounced write is scheduled.
func (s *BallotSubmitter) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *BallotSubmitter) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.stop = nil
	round, choice := s.round, s.selected
	s.mu.Unlock()

	s.write(round, choice)
}

func (s *BallotSubmitter) write(round, choice int) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.writer.Vote(s.ctx, s.uid, round, choice)
	if err != nil {
		s.onError(err)
		return
	}
	s.mu.Lock()
	if round == s.round {
		s.confirmed = choice
	}
	s.mu.Unlock()
}

func (s *BallotSubmitter) cancelPendingLocked() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.pending = false
	s.gen++
}
