package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	logx "notifboard/pkg/logx"

	_ "github.com/lib/pq"
)

// postgresStore keeps blobs in a single table; KeyPrefix namespaces rows so
// several deployments can share one database.
type postgresStore struct {
	db     *sql.DB
	prefix string
	log    logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	st, err := newPostgresStore(ctx, db, cfg.KeyPrefix, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func newPostgresStore(ctx context.Context, db *sql.DB, prefix string, log logx.Logger) (*postgresStore, error) {
	if err := migrate(ctx, db, "migrations/postgres.sql"); err != nil {
		return nil, err
	}
	log.Debug("postgres store ready", logx.String("prefix", prefix))
	return &postgresStore{db: db, prefix: prefix, log: log}, nil
}

func (s *postgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM notifboard_kv WHERE key = $1`, s.prefix+key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *postgresStore) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifboard_kv (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		s.prefix+key, value,
	)
	return err
}

func (s *postgresStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM notifboard_kv WHERE key = $1`, s.prefix+key)
	return err
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}
