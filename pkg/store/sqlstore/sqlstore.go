// Package sqlstore keeps drones and medications in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"dronemed/pkg/config"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS drones (
	serial_number    VARCHAR(100) PRIMARY KEY,
	weight_class     VARCHAR(16)  NOT NULL,
	weight_limit     DOUBLE PRECISION NOT NULL,
	battery_capacity INTEGER      NOT NULL,
	state            VARCHAR(16)  NOT NULL,
	loaded_meds      TEXT         NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_drones_state ON drones(state);

CREATE TABLE IF NOT EXISTS medications (
	id      TEXT PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	weight  DOUBLE PRECISION NOT NULL,
	code    TEXT NOT NULL DEFAULT '',
	img_url TEXT NOT NULL DEFAULT ''
);
`

type DB struct {
	*sql.DB
	driver string
}

// Open connects to the configured SQL backend and applies the schema.
func Open(cfg config.StoreConfig) (*DB, error) {
	switch cfg.Driver {
	case driverSQLite:
		return OpenSQLite(cfg.SQLite.Path)
	case driverPostgres:
		return OpenPostgres(cfg.Postgres)
	default:
		return nil, errors.Errorf("unsupported sql driver: %s", cfg.Driver)
	}
}

func OpenSQLite(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, driver: driverSQLite}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	return db, nil
}

func OpenPostgres(cfg config.PostgresConfig) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.SSLMode)
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db := &DB{DB: sqlDB, driver: driverPostgres}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "migrate postgres")
	}
	return db, nil
}

// Q rewrites ? placeholders for PostgreSQL, passes through for SQLite.
func (db *DB) Q(query string) string {
	if db.driver == driverPostgres {
		return Rebind(query)
	}
	return query
}

func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func Rebind(query string) string {
	n := 0
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(fmt.Sprintf("$%d", n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
