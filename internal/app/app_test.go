package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/router-for-me/QuizAccess/internal/config"
	"github.com/router-for-me/QuizAccess/internal/db"
	"github.com/router-for-me/QuizAccess/internal/models"
	"github.com/router-for-me/QuizAccess/internal/ratelimit"
	"github.com/router-for-me/QuizAccess/internal/security"
	"github.com/router-for-me/QuizAccess/internal/session"
	"github.com/router-for-me/QuizAccess/internal/store"
)

func newTestEngineDeps(t *testing.T) EngineDeps {
	t.Helper()
	conn, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	now := func() time.Time { return time.Unix(10_000, 0) }
	limiter := ratelimit.NewManager(config.RateLimitConfig{VerifyLimit: 5, VerifyWindow: time.Minute}, now, nil)
	t.Cleanup(func() { _ = limiter.Close() })
	return EngineDeps{
		DB:       conn,
		Quizzes:  store.NewQuizStore(conn),
		Sessions: session.NewMemoryStore(time.Hour, now),
		Limiter:  limiter,
		JWT:      config.JWTConfig{Secret: "engine-secret"},
		NowFn:    now,
	}
}

func TestNewEngineServesHealthz(t *testing.T) {
	engine := NewEngine(newTestEngineDeps(t))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewEngineNoRoute(t *testing.T) {
	engine := NewEngine(newTestEngineDeps(t))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body for API route, got %q", rec.Body.String())
	}
	if body["error"] != "not found" {
		t.Fatalf("expected not found error, got %v", body)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/page", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body outside the API, got %q", rec.Body.String())
	}
}

func TestNewEngineRequiresTokenOnFrontRoutes(t *testing.T) {
	engine := NewEngine(newTestEngineDeps(t))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/quizzes/1/access", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestNewEngineHonoursOnlyTrustedProxies(t *testing.T) {
	cases := []struct {
		name    string
		proxies []string
		allowed bool
	}{
		{"no trusted proxies", nil, false},
		{"trusted proxy range", []string{"192.0.2.0/24"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps := newTestEngineDeps(t)
			deps.TrustedProxies = tc.proxies
			if errSave := deps.Quizzes.SaveQuiz(context.Background(), &models.Quiz{ID: 1, Name: "Quiz", Subnet: "10.0.0.0/8"}); errSave != nil {
				t.Fatalf("save quiz: %v", errSave)
			}
			token, errToken := security.IssueToken("engine-secret", security.Identity{UserID: 1}, time.Hour, time.Unix(10_000, 0))
			if errToken != nil {
				t.Fatalf("issue token: %v", errToken)
			}
			engine := NewEngine(deps)

			req := httptest.NewRequest(http.MethodGet, "/v0/quizzes/1/access", nil)
			req.RemoteAddr = "192.0.2.10:5000"
			req.Header.Set("X-Forwarded-For", "10.1.2.3")
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var body struct {
				Access struct {
					Allowed bool `json:"allowed"`
				} `json:"access"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Access.Allowed != tc.allowed {
				t.Fatalf("expected allowed=%v, got %s", tc.allowed, rec.Body.String())
			}
		})
	}
}
