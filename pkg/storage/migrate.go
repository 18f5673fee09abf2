// Package storage keeps the run history in sqlite.
package storage

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/yurykabanov/archiver/pkg/util"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open connects to the sqlite database and applies pending migrations.
func Open(dsn, name string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to connect to DB")
	}

	// sqlite has a single writer, an in-memory database lives in one connection
	db.SetMaxOpenConns(1)
	db.MapperFunc(util.CamelToSnakeCase)

	if err := Migrate(db, name); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func Migrate(db *sqlx.DB, name string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "Unable to read migrations")
	}

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "Unable to create instance of migrate")
	}

	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return errors.Wrap(err, "Unable to create migrate")
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "Unable to migrate DB")
	}

	return nil
}
