package jukebox

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/jukebox/internal/store"
)

// Every error returned by this package matches exactly one of these with errors.Is.
var (
	ErrStorage              = errors.New("catalog storage failure")
	ErrUnknownSchemaVersion = errors.New("unknown schema version")
	ErrMigrationStalled     = errors.New("schema migration did not converge")
	ErrNotFound             = errors.New("track not found")
	ErrEmptyPopulation      = errors.New("no eligible tracks")
	ErrSelectionExhausted   = errors.New("all eligible tracks were played recently")
	ErrInvalidScale         = errors.New("scale must be a finite number greater than zero")
	ErrInvalidDirection     = errors.New("vote direction must be up or down")
)

// storageErr classifies an error coming back from the catalog store.
// The driver error stays reachable through errors.Is / errors.As.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
