package app

import (
	"context"
	"fmt"
	"sort"

	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"go.uber.org/zap"
)

// Disconnector arms mutations the store applies when a connection drops.
type Disconnector interface {
	OnDisconnect(ctx context.Context, path string, data docstore.Data) error
}

// PresenceService tracks which users hold a live connection.
type PresenceService struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewPresenceService(store docstore.Store, logger *zap.Logger) *PresenceService {
	return &PresenceService{store: store, logger: logger}
}

// Connect arms the offline mutation on conn and only then writes online, so a
// drop at any point after arming still ends offline. When arming fails nothing
// is written. Calling Connect again on reconnect re-arms and re-sets.
func (s *PresenceService) Connect(ctx context.Context, conn Disconnector, uid string, student domain.Student) error {
	offline := studentData(student)
	offline["state"] = domain.PresenceOffline
	offline["lastChanged"] = docstore.ServerTimestamp
	if err := conn.OnDisconnect(ctx, presencePath(uid), offline); err != nil {
		return fmt.Errorf("arm offline presence: %w", err)
	}

	online := studentData(student)
	online["state"] = domain.PresenceOnline
	online["lastChanged"] = docstore.ServerTimestamp
	if err := s.store.Merge(ctx, presencePath(uid), online); err != nil {
		return domain.Transient(err)
	}
	s.logger.Debug("presence online", zap.String("uid", uid))
	return nil
}

// List returns presence records, online users first.
func (s *PresenceService) List(ctx context.Context) ([]domain.PresenceRecord, error) {
	snaps, err := s.store.List(ctx, presenceCollection)
	if err != nil {
		return nil, domain.Transient(err)
	}
	records := make([]domain.PresenceRecord, 0, len(snaps))
	for _, snap := range snaps {
		records = append(records, decodePresence(snap))
	}
	sort.SliceStable(records, func(i, j int) bool {
		oi, oj := records[i].State == domain.PresenceOnline, records[j].State == domain.PresenceOnline
		if oi != oj {
			return oi
		}
		return records[i].LastChanged.After(records[j].LastChanged)
	})
	return records, nil
}
