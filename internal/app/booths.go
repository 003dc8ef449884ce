package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"festival-mileage/internal/metrics"
	"festival-mileage/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BoothResolver maps a stable booth index to its booth document.
type BoothResolver interface {
	ResolveBooth(ctx context.Context, boothIdx int) (domain.Booth, error)
}

// BoothService reads and imports the booth catalog.
type BoothService struct {
	store  docstore.Store
	logger *zap.Logger
}

func NewBoothService(store docstore.Store, logger *zap.Logger) *BoothService {
	return &BoothService{store: store, logger: logger}
}

// ResolveBooth queries booths by boothIdx. No match is an invalid reference;
// more than one match is never resolved by picking one and is flagged for
// operator review instead.
func (s *BoothService) ResolveBooth(ctx context.Context, boothIdx int) (domain.Booth, error) {
	matches, err := s.store.Query(ctx, boothsCollection, docstore.Where("boothIdx", boothIdx))
	if err != nil {
		return domain.Booth{}, domain.Transient(err)
	}
	switch len(matches) {
	case 0:
		return domain.Booth{}, domain.ErrInvalidReference
	case 1:
		return decodeBooth(matches[0]), nil
	}

	docIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		docIDs = append(docIDs, m.ID)
	}
	s.logger.Error("booth index shared by multiple documents",
		zap.Int("boothIdx", boothIdx), zap.Strings("docIds", docIDs))
	metrics.IntegrityAnomalies.WithLabelValues("duplicate_booth").Inc()
	observability.CaptureAnomaly(fmt.Errorf("%w: boothIdx=%d docs=%v", domain.ErrAmbiguousBooth, boothIdx, docIDs),
		map[string]string{"boothIdx": strconv.Itoa(boothIdx)})
	return domain.Booth{}, domain.ErrAmbiguousBooth
}

// List returns booths ordered by visit count, busiest first.
func (s *BoothService) List(ctx context.Context) ([]domain.Booth, error) {
	snaps, err := s.store.List(ctx, boothsCollection)
	if err != nil {
		return nil, domain.Transient(err)
	}
	booths := make([]domain.Booth, 0, len(snaps))
	for _, snap := range snaps {
		booths = append(booths, decodeBooth(snap))
	}
	sort.SliceStable(booths, func(i, j int) bool {
		if booths[i].VisitCount != booths[j].VisitCount {
			return booths[i].VisitCount > booths[j].VisitCount
		}
		return booths[i].Index < booths[j].Index
	})
	return booths, nil
}

// Import upserts a catalog. Booth indexes must be unique across the catalog
// and against booth documents already in the store; visit counts of existing
// booths are preserved.
func (s *BoothService) Import(ctx context.Context, booths []domain.Booth) (int, error) {
	seen := make(map[int]string, len(booths))
	for i := range booths {
		if booths[i].DocID == "" {
			booths[i].DocID = uuid.NewString()
		}
		if prev, ok := seen[booths[i].Index]; ok {
			return 0, fmt.Errorf("%w: boothIdx %d used by %s and %s",
				domain.ErrAmbiguousBooth, booths[i].Index, prev, booths[i].DocID)
		}
		seen[booths[i].Index] = booths[i].DocID
	}

	existing, err := s.store.List(ctx, boothsCollection)
	if err != nil {
		return 0, domain.Transient(err)
	}
	for _, snap := range existing {
		idx := snap.Data.Int("boothIdx")
		if docID, ok := seen[idx]; ok && docID != snap.ID {
			return 0, fmt.Errorf("%w: boothIdx %d already belongs to %s",
				domain.ErrAmbiguousBooth, idx, snap.ID)
		}
	}

	for _, b := range booths {
		data := boothData(b)
		// visitCount is owned by redemptions.
		delete(data, "visitCount")
		if err := s.store.Merge(ctx, boothPath(b.DocID), data); err != nil {
			return 0, domain.Transient(err)
		}
	}
	s.logger.Info("booth catalog imported", zap.Int("booths", len(booths)))
	return len(booths), nil
}
