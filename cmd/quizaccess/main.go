package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/router-for-me/QuizAccess/internal/app"
	"github.com/router-for-me/QuizAccess/internal/config"
	"github.com/router-for-me/QuizAccess/internal/security"
	internalsettings "github.com/router-for-me/QuizAccess/internal/settings"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:], os.Stdout); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run dispatches to the serve, migrate or token command.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		return runServe(ctx, args)
	case "migrate":
		return runMigrate(ctx, args)
	case "token":
		return runToken(args, stdout)
	default:
		return fmt.Errorf("unknown command %q (expected serve, migrate or token)", command)
	}
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", internalsettings.DefaultPort, "server port (used when the config file sets none)")
	sqlitePath := fs.String("sqlite", "", "database file for a generated config (default next to the config file)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := loadAppConfig(*cfgPath)
	if err != nil {
		return err
	}
	if _, errInit := app.InitConfig(appCfg, *sqlitePath, *port); errInit != nil {
		return errInit
	}
	return app.RunServer(ctx, appCfg, *port)
}

func runMigrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	appCfg, err := loadAppConfig(*cfgPath)
	if err != nil {
		return err
	}
	if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
		return errMigrate
	}
	log.Info("migration completed")
	return nil
}

func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	userID := fs.Uint64("uid", 0, "user id the token identifies")
	admin := fs.Bool("admin", false, "grant quiz administration")
	ignoreTimeLimits := fs.Bool("ignore-time-limits", false, "let the user bypass quiz time limits")
	expiry := fs.Duration("expiry", 0, "token lifetime (default from config)")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}
	if *userID == 0 {
		return errors.New("token: -uid is required")
	}

	appCfg, err := loadAppConfig(*cfgPath)
	if err != nil {
		return err
	}
	jwtCfg, _ := config.LoadJWTConfig(config.ResolveConfigPath(appCfg.ConfigPath))
	lifetime := jwtCfg.Expiry
	if *expiry > 0 {
		lifetime = *expiry
	}
	token, errIssue := security.IssueToken(jwtCfg.Secret, security.Identity{
		UserID:           *userID,
		Admin:            *admin,
		IgnoreTimeLimits: *ignoreTimeLimits,
	}, lifetime, time.Now())
	if errIssue != nil {
		return errIssue
	}
	_, errWrite := fmt.Fprintln(stdout, token)
	return errWrite
}

func loadAppConfig(cfgPath string) (config.AppConfig, error) {
	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return config.AppConfig{}, err
	}
	if strings.TrimSpace(cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(cfgPath)
	}
	return appCfg, nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
