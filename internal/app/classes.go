package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"festival-mileage/internal/docstore"
	"festival-mileage/internal/domain"
	"festival-mileage/internal/export"
	"go.uber.org/zap"
)

// SnapshotArchive keeps class snapshots outside the document store.
type SnapshotArchive interface {
	ArchiveSnapshot(ctx context.Context, snapshot domain.ClassSnapshot) error
}

// ClassService aggregates base mileage per class.
type ClassService struct {
	store   docstore.Store
	archive SnapshotArchive
	logger  *zap.Logger
	now     func() time.Time
}

// NewClassService creates the service. archive may be nil.
func NewClassService(store docstore.Store, archive SnapshotArchive, logger *zap.Logger) *ClassService {
	return &ClassService{store: store, archive: archive, logger: logger, now: time.Now}
}

// Ranking returns the average base mileage per class, highest first. Accounts
// without a grade or class are skipped.
func (s *ClassService) Ranking(ctx context.Context) ([]domain.ClassStat, error) {
	snaps, err := s.store.List(ctx, usersCollection)
	if err != nil {
		return nil, domain.Transient(err)
	}
	return RankClasses(snaps), nil
}

// RankClasses groups user documents by (grade, class).
func RankClasses(users []docstore.Snapshot) []domain.ClassStat {
	type key struct{ grade, class int }
	groups := make(map[key]*domain.ClassStat)
	for _, snap := range users {
		grade, ok1 := snap.Data.Int64("grade")
		class, ok2 := snap.Data.Int64("class")
		if !ok1 || !ok2 {
			continue
		}
		k := key{int(grade), int(class)}
		stat, ok := groups[k]
		if !ok {
			stat = &domain.ClassStat{Grade: k.grade, Class: k.class}
			groups[k] = stat
		}
		stat.Members++
		if base, ok := snap.Data.Int64("baseMileage"); ok && base > 0 {
			stat.Total += base
		}
	}

	rows := make([]domain.ClassStat, 0, len(groups))
	for _, stat := range groups {
		stat.Average = float64(stat.Total) / float64(stat.Members)
		rows = append(rows, *stat)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Average != rows[j].Average {
			return rows[i].Average > rows[j].Average
		}
		if rows[i].Grade != rows[j].Grade {
			return rows[i].Grade < rows[j].Grade
		}
		return rows[i].Class < rows[j].Class
	})
	return rows
}

// Snapshot freezes the current ranking under classStats/final_{unixMillis}
// and archives it when an archive is configured.
func (s *ClassService) Snapshot(ctx context.Context) (domain.ClassSnapshot, error) {
	rows, err := s.Ranking(ctx)
	if err != nil {
		return domain.ClassSnapshot{}, err
	}
	created := s.now().UTC()
	snapshot := domain.ClassSnapshot{
		ID:        fmt.Sprintf("final_%d", created.UnixMilli()),
		CreatedAt: created,
		Rows:      rows,
	}
	if len(rows) > 0 {
		winner := rows[0]
		snapshot.Winner = &winner
	}
	snapshot.Top3 = rows[:min(3, len(rows))]

	data := docstore.Data{
		"type":      "avg_baseMileage_per_student",
		"createdAt": docstore.ServerTimestamp,
		"winner":    nil,
		"top3":      classRows(snapshot.Top3, true),
		"rows":      classRows(rows, false),
	}
	if snapshot.Winner != nil {
		data["winner"] = classRow(*snapshot.Winner, true)
	}
	if err := s.store.Set(ctx, docstore.Join(classStatsCollection, snapshot.ID), data); err != nil {
		return domain.ClassSnapshot{}, domain.Transient(err)
	}

	if s.archive != nil {
		if err := s.archive.ArchiveSnapshot(ctx, snapshot); err != nil {
			// The document store copy is authoritative.
			s.logger.Warn("class snapshot archive failed", zap.String("id", snapshot.ID), zap.Error(err))
		}
	}
	s.logger.Info("class snapshot saved", zap.String("id", snapshot.ID), zap.Int("classes", len(rows)))
	return snapshot, nil
}

// Export writes the current ranking as an xlsx workbook.
func (s *ClassService) Export(ctx context.Context, w io.Writer) error {
	rows, err := s.Ranking(ctx)
	if err != nil {
		return err
	}
	book, err := export.ClassRankingWorkbook(rows, s.now())
	if err != nil {
		return err
	}
	defer book.Close()
	_, err = book.WriteTo(w)
	return err
}

func classRows(rows []domain.ClassStat, floorAverage bool) []any {
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, classRow(r, floorAverage))
	}
	return out
}

func classRow(r domain.ClassStat, floorAverage bool) map[string]any {
	avg := r.Average
	if floorAverage {
		avg = math.Floor(avg)
	}
	return map[string]any{
		"grade":            r.Grade,
		"class":            r.Class,
		"memberCount":      r.Members,
		"totalBaseMileage": r.Total,
		"avgBaseMileage":   avg,
	}
}
