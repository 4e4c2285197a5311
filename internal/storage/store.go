// Package storage keeps the currently loaded dataset for the lifetime of
// the process. Uploading a new export replaces the dataset wholesale.
//
// Nothing survives a restart: the SQLite store is scratch space for exports
// too large to hold comfortably in memory and is cleared when opened.
package storage

import (
	"context"
	"errors"
	"time"

	"orderlens/internal/core"

	"github.com/google/uuid"
)

// ErrNoDataset is returned by Current before the first upload.
var ErrNoDataset = errors.New("no dataset loaded")

// Dataset is one parsed upload.
type Dataset struct {
	ID       uuid.UUID    `json:"id"`
	Name     string       `json:"name"`
	LoadedAt time.Time    `json:"loaded_at"`
	Rows     int          `json:"rows_read"`
	Dropped  int          `json:"rows_dropped"`
	Orders   []core.Order `json:"-"`
}

// NewDataset assigns a fresh id to orders.
func NewDataset(name string, orders []core.Order, rows, dropped int, now time.Time) Dataset {
	return Dataset{
		ID:       uuid.New(),
		Name:     name,
		LoadedAt: now,
		Rows:     rows,
		Dropped:  dropped,
		Orders:   orders,
	}
}

// Store holds at most one dataset.
type Store interface {
	// Replace makes ds the current dataset. On error the previous dataset
	// stays current.
	Replace(ctx context.Context, ds Dataset) error
	Current(ctx context.Context) (Dataset, error)
	Clear(ctx context.Context) error
	Close() error
}
