// Package database provides durable key-value backends for the idea board.
package database

import (
	"context"
	"errors"
	"fmt"
)

// Store defines the key-value operations the idea store persists through.
// SQLite, PostgreSQL, GORM and in-memory implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the backend ("SQLite", "PostgreSQL", ...).
	DatabaseType() string

	// Get returns the value stored under key. ok is false when the key is absent,
	// which is not an error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
}

// Entry is a single key-value pair written by SetMany.
type Entry struct {
	Key   string
	Value string
}

// Batcher is implemented by backends that can write several keys atomically.
// Either every entry is stored or none is.
type Batcher interface {
	SetMany(ctx context.Context, entries []Entry) error
}

// Backend type names accepted by Open.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeGorm     = "gorm"
	TypeMemory   = "memory"
)

// ErrUnknownType is returned by Open for an unsupported backend type.
var ErrUnknownType = errors.New("unknown database type")

// Open returns the backend named by dbType, connected to dsn.
// dsn is a file path for SQLite and a connection string for PostgreSQL and GORM.
func Open(dbType, dsn string) (Store, error) {
	switch dbType {
	case TypeSQLite, "":
		return New(dsn)
	case TypePostgres:
		return NewPostgres(dsn)
	case TypeGorm:
		return NewGormPostgres(dsn)
	case TypeMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, dbType)
	}
}
