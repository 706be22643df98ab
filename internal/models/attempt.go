package models

import "time"

// AttemptState is the persisted lifecycle state of an attempt.
type AttemptState string

// AttemptState constants define attempt lifecycle states.
const (
	// AttemptStateInProgress marks a running attempt.
	AttemptStateInProgress AttemptState = "inprogress"
	// AttemptStateOverdue marks an attempt past its deadline awaiting submission.
	AttemptStateOverdue AttemptState = "overdue"
	// AttemptStateFinished marks a submitted attempt.
	AttemptStateFinished AttemptState = "finished"
	// AttemptStateAbandoned marks an attempt that was never submitted.
	AttemptStateAbandoned AttemptState = "abandoned"
)

// Attempt records one user's run through a quiz.
type Attempt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	QuizID uint64 `gorm:"not null;uniqueIndex:idx_attempts_quiz_user_number,priority:1"` // Related quiz ID.
	Quiz   Quiz   `gorm:"foreignKey:QuizID"`                                             // Related quiz record.

	UserID  uint64 `gorm:"not null;uniqueIndex:idx_attempts_quiz_user_number,priority:2;index"` // Attempting user ID.
	Number  int    `gorm:"not null;uniqueIndex:idx_attempts_quiz_user_number,priority:3"`       // Attempt number per user.
	Preview bool   `gorm:"not null;default:false"`                                              // Non-graded preview run.

	State      AttemptState `gorm:"type:varchar(16);not null;default:'inprogress';index"` // Lifecycle state.
	TimeStart  int64        `gorm:"not null"`                                             // Start timestamp (epoch seconds).
	TimeFinish int64        `gorm:"not null;default:0"`                                   // Finish timestamp, 0 while running.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
