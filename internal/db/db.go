package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx so repositories can run
// inside or outside a transaction.
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// TxRunner runs fn inside one transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(q Queryer) error) error
	Queryer() Queryer
}

// Store owns the connection pool.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Queryer returns the pool for statements that need no transaction.
func (s *Store) Queryer() Queryer {
	return s.db
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(q Queryer) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Open connects to Postgres without touching the schema.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

// Connect initializes the database connection and runs migrations.
func Connect(dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(db *sqlx.DB, logger *zap.Logger) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS spaces (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS space_members (
            space_id BIGINT NOT NULL REFERENCES spaces(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            PRIMARY KEY(space_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS chats (
            id BIGSERIAL PRIMARY KEY,
            type TEXT NOT NULL CHECK (type IN ('direct', 'thread')),
            user1_id BIGINT,
            user2_id BIGINT,
            space_id BIGINT REFERENCES spaces(id),
            title TEXT,
            public BOOLEAN NOT NULL DEFAULT FALSE,
            last_message_id BIGINT,
            max_seq BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE(user1_id, user2_id),
            CHECK (user1_id IS NULL OR user1_id < user2_id)
        );`,
		`CREATE TABLE IF NOT EXISTS chat_participants (
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            PRIMARY KEY(chat_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            message_id BIGINT NOT NULL,
            sender_id BIGINT NOT NULL,
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(chat_id, message_id)
        );`,
		`CREATE TABLE IF NOT EXISTS dialogs (
            user_id BIGINT NOT NULL,
            chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            peer_user_id BIGINT,
            pinned BOOLEAN NOT NULL DEFAULT FALSE,
            archived BOOLEAN NOT NULL DEFAULT FALSE,
            draft TEXT,
            read_inbox_max_id BIGINT NOT NULL DEFAULT 0,
            unread_mark BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(user_id, chat_id)
        );`,
		`CREATE INDEX IF NOT EXISTS dialogs_chat_idx ON dialogs(chat_id);`,
		`CREATE TABLE IF NOT EXISTS user_update_cursors (
            user_id BIGINT PRIMARY KEY,
            last_seq BIGINT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS user_updates (
            user_id BIGINT NOT NULL,
            seq BIGINT NOT NULL,
            kind TEXT NOT NULL,
            payload JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(user_id, seq)
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	logger.Info("database migrations applied", zap.Int("statements", len(migrations)))
	return nil
}
