// Package store persists the per-day message log.
//
// A log maps a day key (YYYY-MM-DD) to the ordered lines recorded that day.
// Every backend keeps the full log reconstructible and makes Append and Clear
// atomic from the caller's point of view.
package store

import (
	"fmt"

	"github.com/stellarlinkco/digestbot/internal/config"
)

type Store interface {
	// Day returns the lines recorded for day in arrival order. A missing day
	// yields an empty slice and ok == false.
	Day(day string) (lines []string, ok bool, err error)
	Append(day, line string) error
	// Clear leaves day present with no lines.
	Clear(day string) error
	// Days lists every recorded day key in ascending order with its line count.
	Days() ([]DayCount, error)
	Close() error
}

type DayCount struct {
	Day   string
	Lines int
}

// Open returns the backend selected by cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = config.DefaultStorePath(cfg.Backend)
	}
	switch cfg.Backend {
	case "", config.StoreBackendJSON:
		return NewFileStore(path), nil
	case config.StoreBackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
