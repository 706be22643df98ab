package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/models"

	"gorm.io/gorm"
)

// AttemptFilter selects which attempts count towards a history query.
type AttemptFilter string

// AttemptFilter constants.
const (
	AttemptFilterAll        AttemptFilter = "all"
	AttemptFilterFinished   AttemptFilter = "finished"
	AttemptFilterUnfinished AttemptFilter = "unfinished"
)

var unfinishedStates = []models.AttemptState{models.AttemptStateInProgress, models.AttemptStateOverdue}

var closedStates = []models.AttemptState{models.AttemptStateFinished, models.AttemptStateAbandoned}

// AttemptHistory returns how many attempts match and the most recent one (nil when none).
func (s *QuizStore) AttemptHistory(ctx context.Context, quizID, userID uint64, filter AttemptFilter, includePreviews bool) (int, *accessrule.Attempt, error) {
	if s == nil || s.db == nil {
		return 0, nil, fmt.Errorf("quiz store: not initialized")
	}
	q := s.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("quiz_id = ? AND user_id = ?", quizID, userID)
	switch filter {
	case AttemptFilterFinished:
		q = q.Where("state IN ?", closedStates)
	case AttemptFilterUnfinished:
		q = q.Where("state IN ?", unfinishedStates)
	case AttemptFilterAll, "":
	default:
		return 0, nil, fmt.Errorf("quiz store: unknown attempt filter %q", filter)
	}
	if !includePreviews {
		q = q.Where("preview = ?", false)
	}

	var rows []models.Attempt
	if errFind := q.Order("number ASC").Find(&rows).Error; errFind != nil {
		return 0, nil, fmt.Errorf("quiz store: attempt history: %w", errFind)
	}
	if len(rows) == 0 {
		return 0, nil, nil
	}
	return len(rows), ToAccessAttempt(&rows[len(rows)-1]), nil
}

// GetAttempt loads one attempt row.
func (s *QuizStore) GetAttempt(ctx context.Context, attemptID uint64) (*models.Attempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("quiz store: not initialized")
	}
	var row models.Attempt
	if errFind := s.db.WithContext(ctx).Where("id = ?", attemptID).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("quiz store: get attempt: %w", errFind)
	}
	return &row, nil
}

// UnfinishedAttempt returns the user's running attempt on a quiz.
func (s *QuizStore) UnfinishedAttempt(ctx context.Context, quizID, userID uint64) (*models.Attempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("quiz store: not initialized")
	}
	var row models.Attempt
	errFind := s.db.WithContext(ctx).
		Where("quiz_id = ? AND user_id = ? AND state IN ?", quizID, userID, unfinishedStates).
		Order("number DESC").
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("quiz store: unfinished attempt: %w", errFind)
	}
	return &row, nil
}

// StartAttempt creates the user's next attempt. Two concurrent starts for the same
// attempt number collide on the unique index and the loser gets ErrAttemptConflict.
func (s *QuizStore) StartAttempt(ctx context.Context, quizID, userID uint64, preview bool, now int64) (*models.Attempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("quiz store: not initialized")
	}
	var created models.Attempt
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lastNumber int
		if errMax := tx.Model(&models.Attempt{}).
			Where("quiz_id = ? AND user_id = ?", quizID, userID).
			Select("COALESCE(MAX(number), 0)").
			Scan(&lastNumber).Error; errMax != nil {
			return fmt.Errorf("quiz store: next attempt number: %w", errMax)
		}
		created = models.Attempt{
			QuizID:    quizID,
			UserID:    userID,
			Number:    lastNumber + 1,
			Preview:   preview,
			State:     models.AttemptStateInProgress,
			TimeStart: now,
		}
		if errCreate := tx.Create(&created).Error; errCreate != nil {
			if isUniqueViolation(errCreate) {
				return ErrAttemptConflict
			}
			return fmt.Errorf("quiz store: create attempt: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &created, nil
}

// FinishAttempt marks a running attempt finished at now. Finishing an already
// closed attempt returns it unchanged.
func (s *QuizStore) FinishAttempt(ctx context.Context, attemptID uint64, now int64) (*models.Attempt, error) {
	row, errGet := s.GetAttempt(ctx, attemptID)
	if errGet != nil {
		return nil, errGet
	}
	if row.State == models.AttemptStateFinished || row.State == models.AttemptStateAbandoned {
		return row, nil
	}

	res := s.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ? AND state IN ?", attemptID, unfinishedStates).
		Updates(map[string]any{
			"state":       models.AttemptStateFinished,
			"time_finish": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("quiz store: finish attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAttemptConflict
	}
	row.State = models.AttemptStateFinished
	row.TimeFinish = now
	return row, nil
}

// ToAccessAttempt converts an attempt row into the read-only view the rules evaluate.
func ToAccessAttempt(row *models.Attempt) *accessrule.Attempt {
	if row == nil {
		return nil
	}
	return &accessrule.Attempt{
		ID:         row.ID,
		TimeStart:  row.TimeStart,
		TimeFinish: row.TimeFinish,
		Preview:    row.Preview,
		State:      accessrule.AttemptState(row.State),
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return pgErrorCode(err) == "23505"
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return strings.TrimSpace(pgErr.Code)
	}
	return ""
}
