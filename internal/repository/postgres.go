package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/lifelink-community/lifelink/internal/domain"
)

const applicationName = "lifelink"

// openPostgres connects through lib/pq ("postgres") or pgx's database/sql
// adapter ("pgx"). Both parse the same keyword/value DSN.
func openPostgres(ctx context.Context, cfg domain.RepositoryConfig) (*sql.DB, error) {
	dsn := postgresDSN(cfg)

	var db *sql.DB
	switch cfg.Driver {
	case "pgx":
		connCfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres config: %w", err)
		}
		db = stdlib.OpenDB(*connCfg)
	default:
		connector, err := pq.NewConnector(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres config: %w", err)
		}
		db = sql.OpenDB(connector)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres (%s) unreachable at %s:%d: %w", cfg.Driver, cfg.PostgresHost, cfg.PostgresPort, err)
	}
	return db, nil
}

// postgresDSN renders cfg as a keyword/value DSN, quoting values that
// contain spaces or quotes.
func postgresDSN(cfg domain.RepositoryConfig) string {
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	params := [][2]string{
		{"host", orDefault(cfg.PostgresHost, "localhost")},
		{"port", strconv.Itoa(port)},
		{"user", cfg.PostgresUser},
		{"password", cfg.PostgresPassword},
		{"dbname", orDefault(cfg.PostgresDB, "lifelink")},
		{"sslmode", orDefault(cfg.PostgresSSLMode, "disable")},
		{"application_name", applicationName},
	}

	parts := make([]string, 0, len(params))
	for _, kv := range params {
		parts = append(parts, kv[0]+"="+dsnValue(kv[1]))
	}
	return strings.Join(parts, " ")
}

func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
