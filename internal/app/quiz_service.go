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

// QuizService grades booth quizzes and grants the bonus once per booth.
type QuizService struct {
	store  docstore.Store
	booths BoothResolver
	logger *zap.Logger
}

func NewQuizService(store docstore.Store, booths BoothResolver, logger *zap.Logger) *QuizService {
	return &QuizService{store: store, booths: booths, logger: logger}
}

// AnswerQuiz records the first answer of uid for the booth quiz. Later answers
// are reported as duplicates whether or not the first one was correct.
func (s *QuizService) AnswerQuiz(ctx context.Context, uid string, boothIdx, answer int) (domain.QuizResult, error) {
	booth, err := s.booths.ResolveBooth(ctx, boothIdx)
	if err != nil {
		if isDomainError(err) {
			return domain.QuizResult{}, err
		}
		return domain.QuizResult{}, domain.Transient(err)
	}
	correct, err := scoreAnswer(booth.Quiz, answer)
	if err != nil {
		metrics.QuizAnswers.WithLabelValues("rejected").Inc()
		return domain.QuizResult{}, err
	}

	var result domain.QuizResult
	started := time.Now()
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		result = domain.QuizResult{}

		marker, err := tx.Get(quizMarkerPath(uid, boothIdx))
		if err != nil {
			return err
		}
		if marker.Exists {
			result.Duplicate = true
			result.Correct = marker.Data.Bool("isCorrect")
			return nil
		}
		user, err := tx.Get(userPath(uid))
		if err != nil {
			return err
		}
		if !user.Exists {
			return domain.ErrUserNotFound
		}

		var awarded int64
		if correct {
			awarded = domain.QuizReward
		}
		if err := tx.Create(quizMarkerPath(uid, boothIdx), docstore.Data{
			"boothIdx":      boothIdx,
			"boothDocId":    booth.DocID,
			"answeredAt":    docstore.ServerTimestamp,
			"mileageEarned": awarded,
			"isCorrect":     correct,
		}); err != nil {
			return err
		}
		if correct {
			if err := tx.Merge(userPath(uid), docstore.Data{
				"baseMileage": docstore.Inc(domain.QuizReward),
				"updatedAt":   docstore.ServerTimestamp,
			}); err != nil {
				return err
			}
		}
		result.Correct = correct
		result.Awarded = awarded
		return appendLog(tx, uid, docstore.Data{
			"type":      "quiz",
			"boothIdx":  boothIdx,
			"boothName": booth.Name,
			"amount":    awarded,
			"isCorrect": correct,
		})
	})
	metrics.ObserveTx("answer_quiz", started)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		result, err = s.recordedAnswer(ctx, uid, boothIdx)
	}
	if err != nil {
		if isDomainError(err) {
			return domain.QuizResult{}, err
		}
		metrics.QuizAnswers.WithLabelValues("error").Inc()
		return domain.QuizResult{}, domain.Transient(err)
	}

	switch {
	case result.Duplicate:
		metrics.QuizAnswers.WithLabelValues("duplicate").Inc()
	case result.Correct:
		metrics.QuizAnswers.WithLabelValues("correct").Inc()
		s.logger.Info("quiz reward granted", zap.String("uid", uid), zap.Int("boothIdx", boothIdx))
	default:
		metrics.QuizAnswers.WithLabelValues("wrong").Inc()
	}
	return result, nil
}

// recordedAnswer reports the answer that won a concurrent first-answer race.
func (s *QuizService) recordedAnswer(ctx context.Context, uid string, boothIdx int) (domain.QuizResult, error) {
	marker, err := s.store.Get(ctx, quizMarkerPath(uid, boothIdx))
	if err != nil {
		return domain.QuizResult{}, err
	}
	return domain.QuizResult{Duplicate: true, Correct: marker.Data.Bool("isCorrect")}, nil
}

// scoreAnswer validates the selected option against the booth quiz.
func scoreAnswer(quiz *domain.Quiz, answer int) (bool, error) {
	if quiz == nil || len(quiz.Options) == 0 {
		return false, domain.ErrNoQuiz
	}
	if answer < 0 || answer >= len(quiz.Options) {
		return false, domain.ErrInvalidAnswer
	}
	return answer == quiz.CorrectAnswer, nil
}
