// Package backend chooses where the loaded dataset lives.
package backend

import (
	"context"
	"time"

	"orderlens/internal/storage"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult is the store plus what must run on shutdown.
type BackendResult struct {
	Store   storage.Store
	Cleanup CleanupFunc
}

// Factory creates dataset stores from configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds everything needed to build a store.
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Location is applied to dates read back from storage.
	Location *time.Location
}

// BackendType names a dataset store implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
