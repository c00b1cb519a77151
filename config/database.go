package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/discussion/models"
)

var db *gorm.DB

// InitDatabase opens the configured dialect, applies pool settings and brings the schema up to date.
func InitDatabase(c AppConfig) (*gorm.DB, error) {
	if db != nil {
		return db, nil
	}

	// Slow-sql threshold is raised to keep routine queries out of the log.
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(c.Log.Level),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gormCfg := &gorm.Config{Logger: gLogger}

	var (
		conn *gorm.DB
		err  error
	)
	switch c.Database.Driver {
	case "sqlite":
		conn, err = gorm.Open(sqlite.Open(SQLitePath(c.Database)), gormCfg)
	default:
		conn, err = gorm.Open(mysql.Open(BuildMySQLDSN(c.Database)), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if c.Database.Driver == "sqlite" {
		// sqlite serializes writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(c.Database.MaxIdleConns)
		sqlDB.SetMaxOpenConns(c.Database.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Duration(c.Database.ConnMaxLifetimeMin) * time.Minute)
		sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	}

	// Surface network/auth problems at boot rather than on the first query.
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}

	if !c.Database.SkipMigrations {
		if err := Migrate(conn, c.Database); err != nil {
			return nil, err
		}
	}

	db = conn
	return db, nil
}

// Migrate runs the versioned SQL migrations for MySQL and gorm AutoMigrate for sqlite.
func Migrate(conn *gorm.DB, c DatabaseSection) error {
	if c.Driver == "sqlite" {
		if err := conn.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	return RunMySQLMigrations(BuildMySQLDSN(c))
}

// BuildMySQLDSN returns DatabaseURI when set, otherwise composes a DSN from the discrete fields.
func BuildMySQLDSN(c DatabaseSection) string {
	if c.DatabaseURI != "" {
		return c.DatabaseURI
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&multiStatements=true",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
	)
}

// SQLitePath returns the sqlite file for the section, defaulting to "<DBName>.db".
func SQLitePath(c DatabaseSection) string {
	if c.DatabaseURI != "" {
		return c.DatabaseURI
	}
	name := c.DBName
	if name == "" {
		name = "discussion"
	}
	if strings.HasSuffix(name, ".db") || name == ":memory:" {
		return name
	}
	return name + ".db"
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
