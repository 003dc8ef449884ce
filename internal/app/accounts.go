package app

import (
	"context"
	"errors"
	"fmt"

	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"festival-mileage/internal/metrics"
	"festival-mileage/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountService owns user profiles, the one-time multiplier, the manual-visit
// whitelist and administrator checks.
type AccountService struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewAccountService(store docstore.Store, logger *zap.Logger) *AccountService {
	return &AccountService{store: store, logger: logger}
}

// EnsureProfile creates users/{uid} on first sign-in. The student identity is
// parsed from the display name once and never rewritten afterwards.
func (s *AccountService) EnsureProfile(ctx context.Context, uid, displayName, email string) (domain.UserAccount, error) {
	student, err := domain.ParseDisplayName(displayName)
	if err != nil {
		return domain.UserAccount{}, err
	}

	var account domain.UserAccount
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(userPath(uid))
		if err != nil {
			return err
		}
		if snap.Exists {
			account = decodeUser(snap)
			return nil
		}
		data := studentData(student)
		data["uid"] = uid
		data["email"] = email
		data["baseMileage"] = 0
		data["multiplier"] = domain.DefaultMultiplier
		data["stampCount"] = 0
		data["createdAt"] = docstore.ServerTimestamp
		data["updatedAt"] = docstore.ServerTimestamp
		account = domain.UserAccount{UID: uid, Email: email, Student: student, Multiplier: domain.DefaultMultiplier}
		return tx.Create(userPath(uid), data)
	})
	if err != nil {
		return domain.UserAccount{}, domain.Transient(err)
	}
	return account, nil
}

// Profile returns the stored account.
func (s *AccountService) Profile(ctx context.Context, uid string) (domain.UserAccount, error) {
	snap, err := s.store.Get(ctx, userPath(uid))
	if err != nil {
		return domain.UserAccount{}, domain.Transient(err)
	}
	if !snap.Exists {
		return domain.UserAccount{}, domain.ErrUserNotFound
	}
	return decodeUser(snap), nil
}

// FindByStudentID resolves a five digit student id to exactly one account.
func (s *AccountService) FindByStudentID(ctx context.Context, studentID string) (domain.UserAccount, error) {
	student, err := domain.ParseStudentID(studentID)
	if err != nil {
		return domain.UserAccount{}, err
	}
	matches, err := s.store.Query(ctx, usersCollection,
		docstore.Where("grade", student.Grade),
		docstore.Where("class", student.Class),
		docstore.Where("number", student.Number),
	)
	if err != nil {
		return domain.UserAccount{}, domain.Transient(err)
	}
	switch len(matches) {
	case 0:
		return domain.UserAccount{}, domain.ErrUserNotFound
	case 1:
		return decodeUser(matches[0]), nil
	default:
		uids := make([]string, 0, len(matches))
		for _, m := range matches {
			uids = append(uids, m.ID)
		}
		s.logger.Error("student id matches multiple accounts",
			zap.String("studentId", studentID), zap.Strings("uids", uids))
		metrics.IntegrityAnomalies.WithLabelValues("duplicate_student").Inc()
		observability.CaptureAnomaly(fmt.Errorf("%w: %s", domain.ErrAmbiguousStudent, studentID),
			map[string]string{"studentId": studentID})
		return domain.UserAccount{}, domain.ErrAmbiguousStudent
	}
}

// SetMultiplier applies the one-time multiplier. It only succeeds while the
// stored multiplier is still exactly 1.
func (s *AccountService) SetMultiplier(ctx context.Context, studentID string, multiplier float64) (domain.UserAccount, error) {
	if !domain.ValidMultiplier(multiplier) || multiplier > 2 {
		return domain.UserAccount{}, domain.ErrInvalidMultiplier
	}
	account, err := s.FindByStudentID(ctx, studentID)
	if err != nil {
		return domain.UserAccount{}, err
	}

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(userPath(account.UID))
		if err != nil {
			return err
		}
		if !snap.Exists {
			return domain.ErrUserNotFound
		}
		current, ok := snap.Data.Float("multiplier")
		if !ok {
			current = domain.DefaultMultiplier
		}
		if current != domain.DefaultMultiplier {
			return domain.ErrMultiplierAlreadySet
		}
		if err := tx.Merge(userPath(account.UID), docstore.Data{
			"multiplier": multiplier,
			"updatedAt":  docstore.ServerTimestamp,
		}); err != nil {
			return err
		}
		account = decodeUser(snap)
		account.Multiplier = multiplier
		return appendLog(tx, account.UID, docstore.Data{
			"type":   "multiplier_change",
			"before": current,
			"after":  multiplier,
		})
	})
	if err != nil {
		if isDomainError(err) {
			return domain.UserAccount{}, err
		}
		return domain.UserAccount{}, domain.Transient(err)
	}
	s.logger.Info("multiplier applied", zap.String("uid", account.UID), zap.Float64("multiplier", multiplier))
	return account, nil
}

// IsAdmin reports whether admins/{uid} exists.
func (s *AccountService) IsAdmin(ctx context.Context, uid string) (bool, error) {
	if uid == "" {
		return false, nil
	}
	snap, err := s.store.Get(ctx, adminPath(uid))
	if err != nil {
		return false, domain.Transient(err)
	}
	return snap.Exists, nil
}

// GrantAdmin marks uid as an administrator.
func (s *AccountService) GrantAdmin(ctx context.Context, uid string) error {
	return s.store.Set(ctx, adminPath(uid), docstore.Data{"grantedAt": docstore.ServerTimestamp})
}

// RegisterWhitelist links a student id to its account so booths can credit
// visits manually when NFC is unavailable.
func (s *AccountService) RegisterWhitelist(ctx context.Context, studentID string) (domain.WhitelistEntry, error) {
	account, err := s.FindByStudentID(ctx, studentID)
	if err != nil {
		return domain.WhitelistEntry{}, err
	}
	data := studentData(account.Student)
	data["studentId"] = studentID
	data["uid"] = account.UID
	data["email"] = account.Email
	data["updatedAt"] = docstore.ServerTimestamp
	if err := s.store.Merge(ctx, whitelistPath(studentID), data); err != nil {
		return domain.WhitelistEntry{}, domain.Transient(err)
	}
	return domain.WhitelistEntry{StudentID: studentID, UID: account.UID, Email: account.Email, Student: account.Student}, nil
}

// Whitelisted returns the whitelist entry for studentID.
func (s *AccountService) Whitelisted(ctx context.Context, studentID string) (domain.WhitelistEntry, error) {
	if _, err := domain.ParseStudentID(studentID); err != nil {
		return domain.WhitelistEntry{}, err
	}
	snap, err := s.store.Get(ctx, whitelistPath(studentID))
	if err != nil {
		return domain.WhitelistEntry{}, domain.Transient(err)
	}
	if !snap.Exists || snap.Data.String("uid") == "" {
		return domain.WhitelistEntry{}, domain.ErrNotWhitelisted
	}
	return decodeWhitelist(snap), nil
}

// Whitelist lists every registered entry.
func (s *AccountService) Whitelist(ctx context.Context) ([]domain.WhitelistEntry, error) {
	snaps, err := s.store.List(ctx, whitelistCollection)
	if err != nil {
		return nil, domain.Transient(err)
	}
	out := make([]domain.WhitelistEntry, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, decodeWhitelist(snap))
	}
	return out, nil
}

// appendLog writes an immutable entry under users/{uid}/logs.
func appendLog(tx docstore.Tx, uid string, data docstore.Data) error {
	entry := data.Clone()
	entry["timestamp"] = docstore.ServerTimestamp
	return tx.Create(logPath(uid, uuid.NewString()), entry)
}

var domainErrors = []error{
	domain.ErrInvalidReference,
	domain.ErrInsufficientBalance,
	domain.ErrInvalidState,
	domain.ErrFeatureDisabled,
	domain.ErrUserNotFound,
	domain.ErrMultiplierAlreadySet,
	domain.ErrInvalidMultiplier,
	domain.ErrNoQuiz,
	domain.ErrInvalidAnswer,
	domain.ErrRoundClosed,
	domain.ErrRoundNotRunning,
	domain.ErrRoundInProgress,
	domain.ErrInvalidChoice,
}

// isDomainError separates business outcomes from store failures.
func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
