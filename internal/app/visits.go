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

// VisitService credits booth visits exactly once per (user, booth).
type VisitService struct {
	store    docstore.Store
	booths   BoothResolver
	accounts *AccountService
	logger   *zap.Logger
}

func NewVisitService(store docstore.Store, booths BoothResolver, accounts *AccountService, logger *zap.Logger) *VisitService {
	return &VisitService{store: store, booths: booths, accounts: accounts, logger: logger}
}

// RedemptionEnabled reads the redemption flag. A missing flag means disabled.
func (s *VisitService) RedemptionEnabled(ctx context.Context) (bool, error) {
	snap, err := s.store.Get(ctx, redemptionFlagPath)
	if err != nil {
		return false, domain.Transient(err)
	}
	return snap.Exists && snap.Data.Bool("enabled"), nil
}

// SetRedemptionEnabled opens or closes the NFC redemption gate.
func (s *VisitService) SetRedemptionEnabled(ctx context.Context, enabled bool) error {
	err := s.store.Merge(ctx, redemptionFlagPath, docstore.Data{
		"enabled":   enabled,
		"updatedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return domain.Transient(err)
	}
	s.logger.Info("redemption flag changed", zap.Bool("enabled", enabled))
	return nil
}

// RedeemVisit grants the visit reward once. Repeated calls with the same
// arguments observe the marker and report a duplicate; the call itself is
// never retried here, so a store failure surfaces as ErrTransient.
func (s *VisitService) RedeemVisit(ctx context.Context, uid string, boothIdx int) (domain.RedeemResult, error) {
	enabled, err := s.RedemptionEnabled(ctx)
	if err != nil {
		metrics.Redemptions.WithLabelValues("error").Inc()
		return domain.RedeemResult{}, err
	}
	if !enabled {
		metrics.Redemptions.WithLabelValues("disabled").Inc()
		return domain.RedeemResult{Reason: domain.ReasonDisabled}, nil
	}
	return s.redeem(ctx, uid, boothIdx, false)
}

// ManualVisit credits a whitelisted student without NFC. The redemption flag
// does not apply to administrators.
func (s *VisitService) ManualVisit(ctx context.Context, studentID string, boothIdx int) (domain.RedeemResult, error) {
	entry, err := s.accounts.Whitelisted(ctx, studentID)
	if err != nil {
		return domain.RedeemResult{}, err
	}
	return s.redeem(ctx, entry.UID, boothIdx, true)
}

func (s *VisitService) redeem(ctx context.Context, uid string, boothIdx int, manual bool) (domain.RedeemResult, error) {
	booth, err := s.booths.ResolveBooth(ctx, boothIdx)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidReference) {
			metrics.Redemptions.WithLabelValues("invalid").Inc()
			return domain.RedeemResult{}, err
		}
		metrics.Redemptions.WithLabelValues("error").Inc()
		return domain.RedeemResult{}, domain.Transient(err)
	}

	result := domain.RedeemResult{Booth: booth}
	started := time.Now()
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		result.Granted = false
		result.Reason = domain.ReasonNone

		marker, err := tx.Get(visitMarkerPath(uid, boothIdx))
		if err != nil {
			return err
		}
		if marker.Exists {
			result.Reason = domain.ReasonDuplicate
			return nil
		}
		user, err := tx.Get(userPath(uid))
		if err != nil {
			return err
		}
		if !user.Exists {
			return domain.ErrUserNotFound
		}

		if err := tx.Create(visitMarkerPath(uid, boothIdx), docstore.Data{
			"boothIdx":      boothIdx,
			"boothDocId":    booth.DocID,
			"visitedAt":     docstore.ServerTimestamp,
			"mileageEarned": domain.VisitReward,
			"manual":        manual,
		}); err != nil {
			return err
		}
		if err := tx.Merge(boothPath(booth.DocID), docstore.Data{
			"visitCount": docstore.Inc(1),
		}); err != nil {
			return err
		}
		if err := tx.Merge(userPath(uid), docstore.Data{
			"baseMileage": docstore.Inc(domain.VisitReward),
			"stampCount":  docstore.Inc(1),
			"updatedAt":   docstore.ServerTimestamp,
		}); err != nil {
			return err
		}
		result.Granted = true
		return appendLog(tx, uid, docstore.Data{
			"type":      "visit",
			"boothIdx":  boothIdx,
			"boothName": booth.Name,
			"amount":    domain.VisitReward,
			"manual":    manual,
		})
	})
	metrics.ObserveTx("redeem_visit", started)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		// Lost the marker race to a concurrent redemption.
		result, err = domain.RedeemResult{Booth: booth, Reason: domain.ReasonDuplicate}, nil
	}
	if err != nil {
		if isDomainError(err) {
			metrics.Redemptions.WithLabelValues("rejected").Inc()
			return domain.RedeemResult{}, err
		}
		metrics.Redemptions.WithLabelValues("error").Inc()
		s.logger.Warn("visit redemption failed",
			zap.String("uid", uid), zap.Int("boothIdx", boothIdx), zap.Error(err))
		return domain.RedeemResult{}, domain.Transient(err)
	}

	if result.Granted {
		metrics.Redemptions.WithLabelValues("granted").Inc()
		s.logger.Info("visit redeemed",
			zap.String("uid", uid), zap.Int("boothIdx", boothIdx), zap.Bool("manual", manual))
	} else {
		metrics.Redemptions.WithLabelValues("duplicate").Inc()
	}
	return result, nil
}
