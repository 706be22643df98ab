package admin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/config"
	handlers "github.com/router-for-me/QuizAccess/internal/http/api/admin/handlers"
	"github.com/router-for-me/QuizAccess/internal/http/middleware"
	"github.com/router-for-me/QuizAccess/internal/store"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, quizzes *store.QuizStore, registry *accessrule.Registry, jwtCfg config.JWTConfig, nowFn func() time.Time) {
	if r == nil || db == nil || quizzes == nil || registry == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("/v0/admin")
	authed.Use(middleware.RequireUser(jwtCfg, nowFn))
	authed.Use(middleware.RequireAdmin())

	quizHandler := handlers.NewQuizHandler(quizzes, registry, nowFn)
	authed.PUT("/quizzes/:id", quizHandler.Put)
	authed.GET("/quizzes/:id", quizHandler.Get)
	authed.GET("/browser-security-choices", quizHandler.BrowserSecurityChoices)
}
