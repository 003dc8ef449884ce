package app

import (
	"context"
	"errors"
	"time"

	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"festival-mileage/internal/metrics"
	"go.uber.org/zap"
)

// MileageService debits display mileage from user balances.
type MileageService struct {
	store    docstore.Store
	accounts *AccountService
	logger   *zap.Logger
}

func NewMileageService(store docstore.Store, accounts *AccountService, logger *zap.Logger) *MileageService {
	return &MileageService{store: store, accounts: accounts, logger: logger}
}

// Spend lowers the displayed balance of uid by at least amount while debiting
// the smallest possible base quantity. Base and multiplier are re-read inside
// the transaction, so two concurrent spends can never both pass a stale check.
func (s *MileageService) Spend(ctx context.Context, uid string, amount int64, memo string) (domain.SpendResult, error) {
	var result domain.SpendResult
	started := time.Now()
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(userPath(uid))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return domain.ErrUserNotFound
		}
		base, ok := snap.Data.Int64("baseMileage")
		if !ok {
			return domain.ErrInvalidState
		}
		multiplier, ok := snap.Data.Float("multiplier")
		if !ok {
			multiplier = domain.DefaultMultiplier
		}
		if base < 0 || !domain.ValidMultiplier(multiplier) {
			return domain.ErrInvalidState
		}

		display := domain.DisplayMileage(base, multiplier)
		if amount <= 0 {
			result = domain.SpendResult{OK: true, NewBase: base, NewDisplay: display}
			return nil
		}
		if display < amount {
			return domain.ErrInsufficientBalance
		}
		debit, err := domain.MinBaseDebit(base, multiplier, amount)
		if err != nil {
			return err
		}
		newBase := base - debit
		newDisplay := domain.DisplayMileage(newBase, multiplier)

		if err := tx.Merge(userPath(uid), docstore.Data{
			"baseMileage": newBase,
			"updatedAt":   docstore.ServerTimestamp,
		}); err != nil {
			return err
		}
		result = domain.SpendResult{OK: true, Debited: debit, NewBase: newBase, NewDisplay: newDisplay}
		return appendLog(tx, uid, docstore.Data{
			"type":          "redeem",
			"memo":          memo,
			"amount":        amount,
			"baseDebited":   debit,
			"beforeBase":    base,
			"afterBase":     newBase,
			"beforeDisplay": display,
			"afterDisplay":  newDisplay,
			"multiplier":    multiplier,
		})
	})
	metrics.ObserveTx("spend", started)
	if err != nil {
		if isDomainError(err) {
			metrics.Spends.WithLabelValues(spendOutcome(err)).Inc()
			return domain.SpendResult{}, err
		}
		metrics.Spends.WithLabelValues("error").Inc()
		return domain.SpendResult{}, domain.Transient(err)
	}
	metrics.Spends.WithLabelValues("ok").Inc()
	s.logger.Info("mileage spent",
		zap.String("uid", uid),
		zap.Int64("amount", amount),
		zap.Int64("debited", result.Debited),
		zap.Int64("newDisplay", result.NewDisplay),
		zap.String("memo", memo))
	return result, nil
}

// SpendByStudent resolves the five digit student id and spends from that account.
func (s *MileageService) SpendByStudent(ctx context.Context, studentID string, amount int64, memo string) (domain.SpendResult, error) {
	account, err := s.accounts.FindByStudentID(ctx, studentID)
	if err != nil {
		return domain.SpendResult{}, err
	}
	return s.Spend(ctx, account.UID, amount, memo)
}

func spendOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	}
	return "rejected"
}
