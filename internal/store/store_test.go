package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/db"
	"github.com/router-for-me/QuizAccess/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func seedQuiz(t *testing.T, s *QuizStore, quiz models.Quiz) {
	t.Helper()
	if errSave := s.SaveQuiz(context.Background(), &quiz); errSave != nil {
		t.Fatalf("save quiz: %v", errSave)
	}
}

func TestLoadPolicy(t *testing.T) {
	s := NewQuizStore(openTestDB(t))
	extra, errEncode := EncodeExtraPasswords([]string{"override", "", "second"})
	if errEncode != nil {
		t.Fatalf("encode: %v", errEncode)
	}
	seedQuiz(t, s, models.Quiz{
		ID:              7,
		Name:            "Midterm",
		Attempts:        3,
		TimeLimit:       1800,
		TimeClose:       20000,
		DelayFirst:      600,
		Password:        "secret",
		ExtraPasswords:  extra,
		Subnet:          "10.0.0.0/8",
		BrowserSecurity: "securewindow",
	})

	policy, err := s.LoadPolicy(context.Background(), 7)
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	if policy.QuizID != 7 || policy.Attempts != 3 || policy.TimeLimit != 1800 || policy.TimeClose != 20000 {
		t.Fatalf("unexpected policy: %+v", policy)
	}
	if policy.DelayFirst != 600 || policy.Password != "secret" || policy.Subnet != "10.0.0.0/8" {
		t.Fatalf("unexpected policy: %+v", policy)
	}
	if len(policy.ExtraPasswords) != 2 || policy.ExtraPasswords[0] != "override" || policy.ExtraPasswords[1] != "second" {
		t.Fatalf("expected 2 extra passwords, got %v", policy.ExtraPasswords)
	}
	if policy.BrowserSecurity != accessrule.BrowserSecuritySecureWindow {
		t.Fatalf("expected securewindow, got %q", policy.BrowserSecurity)
	}
}

func TestLoadPolicyNotFound(t *testing.T) {
	s := NewQuizStore(openTestDB(t))
	if _, err := s.LoadPolicy(context.Background(), 404); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestSaveQuizUpdatesExisting(t *testing.T) {
	s := NewQuizStore(openTestDB(t))
	seedQuiz(t, s, models.Quiz{ID: 1, Name: "Quiz", Attempts: 1})
	seedQuiz(t, s, models.Quiz{ID: 1, Name: "Quiz renamed", Attempts: 4})

	row, err := s.GetQuiz(context.Background(), 1)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if row.Name != "Quiz renamed" || row.Attempts != 4 {
		t.Fatalf("expected updated row, got %+v", row)
	}
	if row.BrowserSecurity != string(accessrule.BrowserSecurityNone) {
		t.Fatalf("expected default browser security, got %q", row.BrowserSecurity)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewQuizStore(openTestDB(t))
	seedQuiz(t, s, models.Quiz{ID: 1, Name: "Quiz"})

	n, last, err := s.AttemptHistory(ctx, 1, 42, AttemptFilterFinished, true)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if n != 0 || last != nil {
		t.Fatalf("expected empty history, got %d %+v", n, last)
	}

	first, err := s.StartAttempt(ctx, 1, 42, false, 1000)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.Number != 1 || first.State != models.AttemptStateInProgress {
		t.Fatalf("unexpected first attempt: %+v", first)
	}

	running, err := s.UnfinishedAttempt(ctx, 1, 42)
	if err != nil {
		t.Fatalf("unfinished: %v", err)
	}
	if running.ID != first.ID {
		t.Fatalf("expected running attempt %d, got %d", first.ID, running.ID)
	}

	n, _, err = s.AttemptHistory(ctx, 1, 42, AttemptFilterFinished, true)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected running attempt excluded from finished history, got %d", n)
	}

	finished, err := s.FinishAttempt(ctx, first.ID, 2000)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if finished.State != models.AttemptStateFinished || finished.TimeFinish != 2000 {
		t.Fatalf("unexpected finished attempt: %+v", finished)
	}
	again, err := s.FinishAttempt(ctx, first.ID, 3000)
	if err != nil {
		t.Fatalf("finish twice: %v", err)
	}
	if again.TimeFinish != 2000 {
		t.Fatalf("expected finish time to stay 2000, got %d", again.TimeFinish)
	}

	if _, errRunning := s.UnfinishedAttempt(ctx, 1, 42); !errors.Is(errRunning, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound, got %v", errRunning)
	}

	second, err := s.StartAttempt(ctx, 1, 42, true, 5000)
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	if second.Number != 2 {
		t.Fatalf("expected attempt number 2, got %d", second.Number)
	}
	if _, errFinish := s.FinishAttempt(ctx, second.ID, 6000); errFinish != nil {
		t.Fatalf("finish second: %v", errFinish)
	}

	n, last, err = s.AttemptHistory(ctx, 1, 42, AttemptFilterFinished, true)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if n != 2 || last == nil || last.ID != second.ID || last.TimeFinish != 6000 || !last.Preview {
		t.Fatalf("expected 2 attempts ending with preview %d, got %d %+v", second.ID, n, last)
	}

	n, last, err = s.AttemptHistory(ctx, 1, 42, AttemptFilterFinished, false)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if n != 1 || last == nil || last.ID != first.ID || last.State != accessrule.AttemptFinished {
		t.Fatalf("expected only the graded attempt, got %d %+v", n, last)
	}

	n, _, err = s.AttemptHistory(ctx, 1, 99, AttemptFilterAll, true)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected other users to be isolated, got %d", n)
	}
}

func TestAttemptHistoryUnknownFilter(t *testing.T) {
	s := NewQuizStore(openTestDB(t))
	if _, _, err := s.AttemptHistory(context.Background(), 1, 1, AttemptFilter("bogus"), true); err == nil {
		t.Fatalf("expected error for unknown filter")
	}
}

func TestDuplicateAttemptNumberIsUniqueViolation(t *testing.T) {
	conn := openTestDB(t)
	s := NewQuizStore(conn)
	seedQuiz(t, s, models.Quiz{ID: 1, Name: "Quiz"})

	row := models.Attempt{QuizID: 1, UserID: 5, Number: 1, State: models.AttemptStateInProgress, TimeStart: 10}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	dup := models.Attempt{QuizID: 1, UserID: 5, Number: 1, State: models.AttemptStateInProgress, TimeStart: 11}
	errDup := conn.Create(&dup).Error
	if errDup == nil {
		t.Fatalf("expected duplicate attempt number to fail")
	}
	if !isUniqueViolation(errDup) {
		t.Fatalf("expected unique violation, got %v", errDup)
	}
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(wrapped) {
		t.Fatalf("expected 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22P02"}) {
		t.Fatalf("expected 22P02 not to be a unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatalf("expected plain error not to be a unique violation")
	}
}

func TestDecodeExtraPasswords(t *testing.T) {
	out, err := DecodeExtraPasswords(datatypes.JSON("null"))
	if err != nil || out != nil {
		t.Fatalf("expected nil for null, got %v %v", out, err)
	}
	if _, errBad := DecodeExtraPasswords(datatypes.JSON("{")); errBad == nil {
		t.Fatalf("expected error for malformed json")
	}
}
