// Package storage provides the key/value blob persistence behind the
// notification store.
//
// Every driver stores opaque byte values under string keys:
//   - memory: process-local map (tests, ephemeral runs)
//   - file: one file per key, replaced atomically
//   - sqlite: embedded database file (modernc, no cgo)
//   - postgres: shared database via lib/pq
//   - redis: shared cache via go-redis
package storage
