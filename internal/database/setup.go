package database

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kiama-backend/internal/models"
)

var sugar *zap.SugaredLogger
var db *sql.DB

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

// Setup opens sqlite for self-contained deployments and mysql/mariadb
// otherwise. The tables hold what must outlive a restart: the media index
// and the plugin security audit trail.
func Setup(_sugar *zap.SugaredLogger, cfg *models.ConfigFile) (*sql.DB, error) {
	sugar = _sugar

	var err error
	if cfg.SelfContained {
		sugar.Info("Connecting to database sqlite...")

		db, err = sql.Open("sqlite", "./database.db")
		if err != nil {
			return db, err
		}

		// there can be sqlite busy errors if this is not set to 1
		db.SetMaxOpenConns(1)

		if err := setPragmaValues(db); err != nil {
			return db, err
		}
	} else {
		sugar.Info("Connecting to database mysql/mariadb...")

		db, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
		if err != nil {
			return db, err
		}

		db.SetMaxOpenConns(10)
	}

	if err := setupTables(db); err != nil {
		return db, err
	}

	return db, nil
}

func setupTables(db *sql.DB) error {
	var err error

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS media (
				id BIGINT PRIMARY KEY,
				channel_id BIGINT NOT NULL,
				uploader VARCHAR(32) NOT NULL,
				file_name TEXT NOT NULL,
				original_name TEXT NOT NULL,
				mime_type VARCHAR(64) NOT NULL,
				kind VARCHAR(16) NOT NULL,
				size_bytes BIGINT NOT NULL,
				uploaded_at TIMESTAMP NOT NULL
			);
		`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS security_events (
				id VARCHAR(36) PRIMARY KEY,
				plugin_name VARCHAR(64) NOT NULL,
				reason TEXT NOT NULL,
				occurred_at TIMESTAMP NOT NULL
			);
		`)
	if err != nil {
		return err
	}

	return nil
}

// RecordSecurityEvent persists a plugin integrity violation so the audit
// trail survives restarts.
func RecordSecurityEvent(id string, pluginName string, reason string, occurredAt time.Time) {
	_, err := db.Exec("INSERT INTO security_events (id, plugin_name, reason, occurred_at) VALUES (?, ?, ?, ?)", id, pluginName, reason, occurredAt)
	if err != nil {
		sugar.Errorf("Couldn't persist security event for plugin [%s]: %v", pluginName, err)
	}
}
