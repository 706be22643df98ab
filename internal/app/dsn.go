package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/router-for-me/QuizAccess/internal/db"
)

// dsnInfo describes a database DSN without its credentials.
type dsnInfo struct {
	DatabaseType        string
	DatabaseHost        string
	DatabasePort        int
	DatabaseUser        string
	DatabaseName        string
	DatabaseSSLMode     string
	DatabasePath        string
	DatabasePasswordSet bool
}

// describeDSN parses dsn for logging. Passwords are reported only as present or absent.
func describeDSN(dsn string) (dsnInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return dsnInfo{}, fmt.Errorf("empty dsn")
	}

	if db.DialectFromDSN(trimmed) == db.DialectSQLite {
		pathPart := trimmed
		if strings.HasPrefix(strings.ToLower(pathPart), "file:") {
			pathPart = pathPart[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return dsnInfo{
			DatabaseType: db.DialectSQLite,
			DatabasePath: strings.TrimSpace(pathPart),
		}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return dsnInfo{}, fmt.Errorf("parse dsn: %w", errParse)
	}

	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return dsnInfo{}, fmt.Errorf("parse port: %w", errPort)
			}
			port = parsedPort
		}

		username := ""
		passwordSet := false
		if u.User != nil {
			username = strings.TrimSpace(u.User.Username())
			_, passwordSet = u.User.Password()
		}

		dbName := strings.TrimPrefix(u.Path, "/")
		sslMode := strings.TrimSpace(u.Query().Get("sslmode"))
		if sslMode == "" {
			sslMode = "disable"
		}

		return dsnInfo{
			DatabaseType:        db.DialectPostgres,
			DatabaseHost:        strings.TrimSpace(u.Hostname()),
			DatabasePort:        port,
			DatabaseUser:        username,
			DatabaseName:        strings.TrimSpace(dbName),
			DatabaseSSLMode:     sslMode,
			DatabasePasswordSet: passwordSet,
		}, nil
	default:
		return dsnInfo{}, fmt.Errorf("unsupported dsn scheme")
	}
}
