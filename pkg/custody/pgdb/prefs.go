// Package pgdb provides a custody.Prefs that persists records in a postgres table.
package pgdb

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"code.securecomm.org/golang/internal/utils"
	"code.securecomm.org/golang/pkg/custody"
)

// DefaultNamespace is used when New receives an empty namespace.
const DefaultNamespace = "secure_storage"

// DefaultSchema is used when New receives an empty schema.
const DefaultSchema = "securecomm"

const queryTimeout = 5 * time.Second

// PGDB is implemented by pgx.Tx, pgx.Conn & pgxpool.Pool
// accessing a postgres database through this common interface simplifies testing
type PGDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Prefs is a custody.Prefs storing the records of one namespace in the custody_record table.
type Prefs struct {
	DB        PGDB
	Namespace string
	pool      *pgxpool.Pool
}

//go:embed custody_schema.sql
var schemaScriptTpl string

// Migrate creates the custody_record table in dbschema if it does not exist.
func Migrate(ctx context.Context, conn PGDB, dbschema string) error {
	schemaName := pgx.Identifier{dbschema}.Sanitize()
	schemaScript := strings.ReplaceAll(schemaScriptTpl, "${schema_name}", schemaName)

	_, err := conn.Exec(ctx, schemaScript)

	return wrapError(err, "failed db schema initialization") // nil if err is nil
}

// New returns a Prefs using a connection pool to dsn. Pool connections search dbschema first,
// and the custody_record table is created in dbschema if missing.
func New(ctx context.Context, dsn string, dbschema string, namespace string) (*Prefs, error) {
	if "" == dbschema {
		dbschema = DefaultSchema
	}
	if "" == namespace {
		namespace = DefaultNamespace
	}
	poolcfg, err := pgxpool.ParseConfig(dsn)
	if nil != err {
		return nil, wrapError(err, "failed parsing dsn")
	}
	poolcfg.ConnConfig.RuntimeParams["search_path"] = pgx.Identifier{dbschema}.Sanitize() + ", public"

	pool, err := pgxpool.NewWithConfig(ctx, poolcfg)
	if nil != err {
		return nil, wrapError(err, "failed connection pool creation")
	}
	err = Migrate(ctx, pool, dbschema)
	if nil != err {
		pool.Close()
		return nil, err
	}

	return &Prefs{DB: pool, Namespace: namespace, pool: pool}, nil
}

// Close releases the connection pool opened by New.
func (self *Prefs) Close() {
	if nil != self.pool {
		self.pool.Close()
	}
}

// Get implements custody.Prefs.
func (self *Prefs) Get(name string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var value string
	err := self.DB.QueryRow(
		ctx,
		`SELECT value FROM custody_record WHERE namespace = $1 AND name = $2`,
		self.Namespace,
		name,
	).Scan(&value)
	switch {
	case nil == err:
		return value, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	default:
		return "", false, wrapError(err, "failed loading record")
	}
}

// Put implements custody.Prefs.
func (self *Prefs) Put(name string, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := self.DB.Exec(
		ctx,
		`INSERT INTO custody_record (namespace, name, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (namespace, name)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		`,
		self.Namespace,
		name,
		value,
	)

	return wrapError(err, "failed saving record") // nil if err is nil
}

// Delete implements custody.Prefs.
func (self *Prefs) Delete(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := self.DB.Exec(
		ctx,
		`DELETE FROM custody_record WHERE namespace = $1 AND name = $2`,
		self.Namespace,
		name,
	)

	return wrapError(err, "failed deleting record") // nil if err is nil
}

// Clear implements custody.Prefs.
func (self *Prefs) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := self.DB.Exec(ctx, `DELETE FROM custody_record WHERE namespace = $1`, self.Namespace)

	return wrapError(err, "failed clearing records") // nil if err is nil
}

// Count returns the number of records in the namespace.
func (self *Prefs) Count(ctx context.Context) (int, error) {
	var count int
	err := self.DB.QueryRow(
		ctx,
		`SELECT count(*) FROM custody_record WHERE namespace = $1`,
		self.Namespace,
	).Scan(&count)

	return count, wrapError(err, "failed counting records") // nil if err is nil
}

func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, custody.Error, msg, args...)
}

var _ custody.Prefs = &Prefs{}
