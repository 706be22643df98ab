package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrQuizNotFound indicates no quiz row exists for the requested id.
	ErrQuizNotFound = errors.New("store: quiz not found")
	// ErrAttemptNotFound indicates no attempt row matches the request.
	ErrAttemptNotFound = errors.New("store: attempt not found")
	// ErrAttemptConflict indicates a concurrent writer already created or changed the attempt.
	ErrAttemptConflict = errors.New("store: attempt conflict")
)

// QuizStore persists quiz policies and attempts via GORM.
type QuizStore struct {
	db *gorm.DB
}

// NewQuizStore constructs a QuizStore.
func NewQuizStore(db *gorm.DB) *QuizStore {
	return &QuizStore{db: db}
}

// GetQuiz loads one quiz row.
func (s *QuizStore) GetQuiz(ctx context.Context, quizID uint64) (*models.Quiz, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("quiz store: not initialized")
	}
	var row models.Quiz
	if errFind := s.db.WithContext(ctx).Where("id = ?", quizID).First(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("quiz store: get quiz: %w", errFind)
	}
	return &row, nil
}

// LoadPolicy returns the policy snapshot the access rules evaluate.
func (s *QuizStore) LoadPolicy(ctx context.Context, quizID uint64) (accessrule.Policy, error) {
	row, errGet := s.GetQuiz(ctx, quizID)
	if errGet != nil {
		return accessrule.Policy{}, errGet
	}
	return PolicyFromQuiz(row)
}

// SaveQuiz upserts a quiz row keyed by its id.
func (s *QuizStore) SaveQuiz(ctx context.Context, quiz *models.Quiz) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("quiz store: not initialized")
	}
	if quiz == nil {
		return fmt.Errorf("quiz store: quiz is nil")
	}
	if len(quiz.ExtraPasswords) == 0 {
		quiz.ExtraPasswords = datatypes.JSON("[]")
	}
	if strings.TrimSpace(quiz.BrowserSecurity) == "" {
		quiz.BrowserSecurity = string(accessrule.BrowserSecurityNone)
	}
	now := time.Now().UTC()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	quiz.UpdatedAt = now

	if errSave := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "attempts", "time_limit", "time_open", "time_close",
			"delay_first", "delay_later", "password", "extra_passwords",
			"subnet", "browser_security", "updated_at",
		}),
	}).Create(quiz).Error; errSave != nil {
		return fmt.Errorf("quiz store: save quiz: %w", errSave)
	}
	return nil
}

// PolicyFromQuiz converts a quiz row into an evaluation snapshot.
func PolicyFromQuiz(row *models.Quiz) (accessrule.Policy, error) {
	if row == nil {
		return accessrule.Policy{}, ErrQuizNotFound
	}
	extra, errDecode := DecodeExtraPasswords(row.ExtraPasswords)
	if errDecode != nil {
		return accessrule.Policy{}, fmt.Errorf("quiz store: quiz %d: %w", row.ID, errDecode)
	}
	mode := accessrule.BrowserSecurity(strings.TrimSpace(row.BrowserSecurity))
	if mode == "" {
		mode = accessrule.BrowserSecurityNone
	}
	return accessrule.Policy{
		QuizID:          row.ID,
		Attempts:        row.Attempts,
		TimeLimit:       row.TimeLimit,
		TimeOpen:        row.TimeOpen,
		TimeClose:       row.TimeClose,
		DelayFirst:      row.DelayFirst,
		DelayLater:      row.DelayLater,
		Password:        row.Password,
		ExtraPasswords:  extra,
		Subnet:          row.Subnet,
		BrowserSecurity: mode,
	}, nil
}

// EncodeExtraPasswords serializes override passwords for storage. Empty entries are dropped.
func EncodeExtraPasswords(passwords []string) (datatypes.JSON, error) {
	cleaned := make([]string, 0, len(passwords))
	for _, p := range passwords {
		if p == "" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	payload, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil, fmt.Errorf("marshal extra passwords: %w", errMarshal)
	}
	return datatypes.JSON(payload), nil
}

// DecodeExtraPasswords parses stored override passwords.
func DecodeExtraPasswords(raw datatypes.JSON) ([]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var out []string
	if errUnmarshal := json.Unmarshal([]byte(trimmed), &out); errUnmarshal != nil {
		return nil, fmt.Errorf("decode extra passwords: %w", errUnmarshal)
	}
	return out, nil
}
