package front

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/config"
	handlers "github.com/router-for-me/QuizAccess/internal/http/api/front/handlers"
	"github.com/router-for-me/QuizAccess/internal/http/middleware"
	"github.com/router-for-me/QuizAccess/internal/session"
	"github.com/router-for-me/QuizAccess/internal/store"
)

// Deps carries the collaborators the front routes need.
type Deps struct {
	Quizzes  *store.QuizStore
	Registry *accessrule.Registry
	Sessions session.Store
	Limiter  handlers.Limiter
	JWT      config.JWTConfig
	NowFn    func() time.Time
}

// RegisterFrontRoutes registers student-facing routes and middleware.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Quizzes == nil || deps.Registry == nil || deps.Sessions == nil {
		return
	}

	authed := r.Group("/v0")
	authed.Use(middleware.RequireUser(deps.JWT, deps.NowFn))

	attemptHandler := handlers.NewAttemptHandler(deps.Quizzes, deps.Registry, deps.Sessions, deps.Limiter, deps.NowFn)
	authed.GET("/quizzes/:id/access", attemptHandler.Access)
	authed.POST("/quizzes/:id/verify", attemptHandler.Verify)
	authed.POST("/quizzes/:id/attempts", attemptHandler.Start)
	authed.GET("/attempts/:id/timer", attemptHandler.Timer)
	authed.POST("/attempts/:id/finish", attemptHandler.Finish)
}
