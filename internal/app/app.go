package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/QuizAccess/internal/accessrule"
	"github.com/router-for-me/QuizAccess/internal/config"
	"github.com/router-for-me/QuizAccess/internal/db"
	"github.com/router-for-me/QuizAccess/internal/http/api/admin"
	"github.com/router-for-me/QuizAccess/internal/http/api/front"
	"github.com/router-for-me/QuizAccess/internal/netmatch"
	"github.com/router-for-me/QuizAccess/internal/ratelimit"
	"github.com/router-for-me/QuizAccess/internal/session"
	"github.com/router-for-me/QuizAccess/internal/store"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrMissingJWTSecret indicates the config file carries no JWT secret.
var ErrMissingJWTSecret = errors.New("missing jwt secret (set `jwt.secret` in config file or JWT_SECRET)")

// EngineDeps carries everything the HTTP engine is built from.
type EngineDeps struct {
	DB       *gorm.DB
	Quizzes  *store.QuizStore
	Registry *accessrule.Registry
	Sessions session.Store
	Limiter  *ratelimit.Manager
	JWT      config.JWTConfig
	Debug    bool
	NowFn    func() time.Time

	// TrustedProxies may set the client address through forwarding headers. Nil trusts none.
	TrustedProxies []string
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// NewEngine builds the gin engine with every route registered.
func NewEngine(deps EngineDeps) *gin.Engine {
	if deps.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.NowFn == nil {
		deps.NowFn = time.Now
	}
	if deps.Registry == nil {
		deps.Registry = accessrule.NewDefaultRegistry(netmatch.AddressInSubnet)
	}

	engine := gin.New()
	if errProxies := engine.SetTrustedProxies(deps.TrustedProxies); errProxies != nil {
		log.WithError(errProxies).Warn("invalid trusted proxies, trusting none")
		_ = engine.SetTrustedProxies(nil)
	}
	engine.Use(gin.Recovery())
	engine.Use(requestLogMiddleware())

	admin.RegisterAdminRoutes(engine, deps.DB, deps.Quizzes, deps.Registry, deps.JWT, deps.NowFn)
	frontDeps := front.Deps{
		Quizzes:  deps.Quizzes,
		Registry: deps.Registry,
		Sessions: deps.Sessions,
		JWT:      deps.JWT,
		NowFn:    deps.NowFn,
	}
	if deps.Limiter != nil {
		frontDeps.Limiter = deps.Limiter
	}
	front.RegisterFrontRoutes(engine, frontDeps)

	engine.NoRoute(func(c *gin.Context) {
		if isAPIRoute(c.Request.URL.Path) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Status(http.StatusNotFound)
	})
	return engine
}

// RunServer boots the quiz access API with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	if info, errDescribe := describeDSN(dsn); errDescribe == nil {
		log.WithFields(log.Fields{
			"type": info.DatabaseType,
			"host": info.DatabaseHost,
			"name": info.DatabaseName,
			"path": info.DatabasePath,
		}).Info("opening database")
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	jwtConfig, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtConfig.Secret) == "" {
		return ErrMissingJWTSecret
	}
	serverCfg := config.LoadServerConfig(configPath, defaultPort)

	sessions := session.NewManager(config.LoadSessionConfig(configPath), nil, nil)
	defer func() { _ = sessions.Close() }()
	limiter := ratelimit.NewManager(config.LoadRateLimitConfig(configPath), nil, nil)
	defer func() { _ = limiter.Close() }()

	engine := NewEngine(EngineDeps{
		DB:       conn,
		Quizzes:  store.NewQuizStore(conn),
		Registry: accessrule.NewDefaultRegistry(netmatch.AddressInSubnet),
		Sessions: sessions,
		Limiter:  limiter,
		JWT:      jwtConfig,
		Debug:    serverCfg.Debug,

		TrustedProxies: serverCfg.TrustedProxies,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", serverCfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting quiz access server on %s with config=%s", server.Addr, configPath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down quiz access server")
		if errShutdown := server.Shutdown(ctxShutdown); errShutdown != nil {
			return fmt.Errorf("shutdown: %w", errShutdown)
		}
		return nil
	}
}

// requestLogMiddleware logs each request at debug level.
func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}).Debug("request")
	}
}

// isAPIRoute reports whether a path targets API endpoints.
func isAPIRoute(requestPath string) bool {
	if requestPath == "/healthz" || strings.HasPrefix(requestPath, "/healthz/") {
		return true
	}
	return requestPath == "/v0" || strings.HasPrefix(requestPath, "/v0/")
}
