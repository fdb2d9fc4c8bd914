package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("storage: key not found")
	ErrClosed   = errors.New("storage: closed")
)

// Config configures storage.
//
// Driver values: "memory" (default when empty or "none"), "file", "sqlite",
// "postgres", "redis".
type Config struct {
	Driver string

	// Path is the directory (file) or database file (sqlite).
	Path string
	// DSN is the postgres connection string.
	DSN string

	// Redis.
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces keys in shared backends (redis, postgres).
	KeyPrefix string

	BusyTimeout time.Duration // sqlite only; 0 means default
	DialTimeout time.Duration // postgres ping / redis dial; 0 means default
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("storage: empty key")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}
