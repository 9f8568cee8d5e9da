package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/library-service/cmd/api/book"

	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	booksTable   = "livros"
	patronsTable = "usuarios"
	loansTable   = "emprestimos"
)

//go:embed migrations
var migrationsFS embed.FS

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type Store struct {
	db      *sqlx.DB
	exc     *Executor
	driver  string
	dialect goqu.DialectWrapper
}

type Executor struct {
	DBTX
}

func NewStore(db *sqlx.DB, driverName string) *Store {
	return &Store{
		db:      db,
		exc:     NewExc(db),
		driver:  driverName,
		dialect: goqu.Dialect(dialectName(driverName)),
	}
}

func NewExc(dbtx DBTX) *Executor {
	return &Executor{DBTX: dbtx}
}

func dialectName(driverName string) string {
	if driverName == DriverSQLite {
		return "sqlite3"
	}
	return driverName
}

func (store *Store) BeginTx(ctx context.Context, opts *sql.TxOptions) (book.Repository, driver.Tx, error) {
	tx, err := store.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}

	txRepo := NewStore(store.db, store.driver)
	txRepo.exc = NewExc(tx)
	return txRepo, tx, nil
}

/*
Opens a connection pool for the given driver and checks it is reachable.
SQLite files are opened with foreign keys enforced and a single connection,
so writers queue instead of failing with SQLITE_BUSY.
*/
func ConnectDb(driverName, dsn string) (*sqlx.DB, error) {
	switch driverName {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("connecting to db: unsupported driver %q", driverName)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to db, openning: %w", err)
	}
	if driverName == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to db, pingging: %w", err)
	}

	return db, nil
}

func sqliteDSN(dsn string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

/* Applies the embedded migrations of the store's driver. migrate.ErrNoChange is returned as is. */
func MigrationUp(store *Store) error {
	src, err := iofs.New(migrationsFS, "migrations/"+store.driver)
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	var dbDriver migratedb.Driver
	switch store.driver {
	case DriverSQLite:
		dbDriver, err = migratesqlite.WithInstance(store.db.DB, &migratesqlite.Config{})
	case DriverPostgres:
		dbDriver, err = migratepostgres.WithInstance(store.db.DB, &migratepostgres.Config{})
	default:
		err = fmt.Errorf("unsupported driver %q", store.driver)
	}
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	// m.Close would also close the shared *sql.DB.
	m, err := migrate.NewWithInstance("iofs", src, store.driver, dbDriver)
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	err = m.Up()
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

/* Builds the statement and runs it, returning the number of affected rows. */
func (store *Store) execAffected(ctx context.Context, stmt interface {
	ToSQL() (string, []any, error)
}) (int64, error) {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building query: %w", err)
	}
	res, err := store.exc.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

/*
Inserts a row and returns its generated id. Postgres reports it through
RETURNING; SQLite through the last insert rowid.
*/
func (store *Store) insertReturningID(ctx context.Context, table string, record goqu.Record) (int64, error) {
	ds := store.dialect.Insert(table).Rows(record).Prepared(true)

	if store.driver == DriverPostgres {
		query, args, err := ds.Returning("id").ToSQL()
		if err != nil {
			return 0, fmt.Errorf("building query: %w", err)
		}
		var id int64
		err = store.exc.GetContext(ctx, &id, query, args...)
		return id, err
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building query: %w", err)
	}
	res, err := store.exc.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
