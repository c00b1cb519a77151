package config

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/mysql/*.sql
var mysqlMigrations embed.FS

// RunMySQLMigrations applies the embedded schema migrations on a dedicated connection.
func RunMySQLMigrations(dsn string) error {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}

	src, err := iofs.New(mysqlMigrations, "migrations/mysql")
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("iofs.New: %w", err)
	}
	driver, err := migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("mysql.WithInstance: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("migrate.NewWithInstance: %w", err)
	}
	// Closing the migrator also closes sqlDB.
	defer m.Close()

	log.Println("applying migrations...")
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("nothing to migrate")
			return nil
		}
		return fmt.Errorf("error when migrating: %w", err)
	}
	log.Println("migrated successfully!")
	return nil
}
