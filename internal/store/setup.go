package store

import (
	"database/sql"
	"fmt"

	"teamchat-backend/internal/models"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store is the durable half of the messaging core: the channel
// directory and the append-only message log. AppendMessage and
// CreateChannel are the only mutation entrypoints; messages are never
// updated or deleted.
type Store struct {
	db      *sql.DB
	dialect string
	sugar   *zap.SugaredLogger
}

const (
	dialectSqlite = "sqlite"
	dialectMysql  = "mysql"
)

func Setup(cfg *models.ConfigFile, sugar *zap.SugaredLogger) (*Store, error) {
	var db *sql.DB
	var err error

	dialect := dialectMysql
	if cfg.SelfContained {
		dialect = dialectSqlite
	}

	if cfg.SelfContained {
		db, err = sql.Open("sqlite", cfg.DbFile)
		if err != nil {
			return nil, err
		}

		// there can be sqlite busy errors if this is not set to 1
		db.SetMaxOpenConns(1)

		err = setPragmaValues(db)
		if err != nil {
			return nil, err
		}
	} else {
		db, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s",
			cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
		if err != nil {
			return nil, err
		}

		db.SetMaxOpenConns(10)
	}

	s := &Store{db: db, dialect: dialect, sugar: sugar}

	err = s.setupTables()
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

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

func (s *Store) setupTables() error {
	var err error

	_, err = s.db.Exec(`
			CREATE TABLE IF NOT EXISTS identities (
				id BIGINT PRIMARY KEY,
				display_name VARCHAR(64) NOT NULL,
				avatar TEXT
			);
		`)
	if err != nil {
		return err
	}

	// name_lower backs case-insensitive uniqueness without relying on
	// dialect-specific functional indexes
	_, err = s.db.Exec(`
			CREATE TABLE IF NOT EXISTS channels (
				id BIGINT PRIMARY KEY,
				name VARCHAR(32) NOT NULL,
				name_lower VARCHAR(32) NOT NULL UNIQUE,
				description VARCHAR(256) NOT NULL,
				created_by BIGINT NOT NULL,
				created_at BIGINT NOT NULL
			);
		`)
	if err != nil {
		return err
	}

	// a message belongs to exactly one target: channel_id is set and the
	// pair columns are zero, or the other way around. pair_lo/pair_hi is
	// the normalized participant pair, so one direct conversation can't
	// fork into two depending on who sent first.
	_, err = s.db.Exec(`
			CREATE TABLE IF NOT EXISTS messages (
				id BIGINT PRIMARY KEY,
				channel_id BIGINT NOT NULL,
				sender_id BIGINT NOT NULL,
				recipient_id BIGINT NOT NULL,
				pair_lo BIGINT NOT NULL,
				pair_hi BIGINT NOT NULL,
				body TEXT NOT NULL,
				created_at BIGINT NOT NULL
			);
		`)
	if err != nil {
		return err
	}

	err = s.createIndex("idx_messages_channel", "messages", "channel_id, id")
	if err != nil {
		return err
	}

	err = s.createIndex("idx_messages_pair", "messages", "pair_lo, pair_hi, id")
	if err != nil {
		return err
	}

	return nil
}

// createIndex is idempotent on both dialects. mysql has no
// CREATE INDEX IF NOT EXISTS, so existence is checked through
// information_schema first.
func (s *Store) createIndex(name, table, columns string) error {
	if s.dialect == dialectSqlite {
		_, err := s.db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s);", name, table, columns))
		return err
	}

	var count int
	err := s.db.QueryRow(`
			SELECT COUNT(*) FROM information_schema.statistics
			WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?
		`, table, name).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = s.db.Exec(fmt.Sprintf("CREATE INDEX %s ON %s (%s);", name, table, columns))
	return err
}
