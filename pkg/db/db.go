package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const DefaultDBName = "fcr.db"

// schemaVersion is stored in PRAGMA user_version. Bump it when schema
// changes need more than CREATE ... IF NOT EXISTS.
const schemaVersion = 1

// DB is the local store for settings and check history.
type DB struct {
	*sql.DB
	path string
}

func connect(dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return sqlDB, nil
}

// Open opens or creates the database at dbPath and brings its schema up
// to date. An empty path puts DefaultDBName in the user config directory.
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config directory: %w", err)
		}
		dbPath = filepath.Join(dir, "fcr", DefaultDBName)
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := connect(dbPath)
	if err != nil {
		return nil, err
	}
	db := &DB{DB: sqlDB, path: dbPath}
	if err := db.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

func (db *DB) migrate() error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	switch {
	case version == schemaVersion:
		return nil
	case version > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than this binary (%d)", version, schemaVersion)
	}
	if err := db.InitSchema(); err != nil {
		return err
	}
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// InitSchema creates any missing tables and indexes.
func (db *DB) InitSchema() error {
	_, err := db.Exec(schema)
	return err
}
