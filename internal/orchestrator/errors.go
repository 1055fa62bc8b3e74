package orchestrator

import (
	"errors"
	"fmt"
)

// Kind classifies a bootstrap failure.
type Kind string

const (
	KindConnection    Kind = "ConnectionError"
	KindMigration     Kind = "MigrationError"
	KindTableCreation Kind = "TableCreationError"
)

var (
	ErrConnection    = errors.New("database connection failed")
	ErrMigration     = errors.New("migration failed")
	ErrTableCreation = errors.New("table creation failed")
)

// Error is a bootstrap failure of a known kind. errors.Is matches it against
// the sentinel of its kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindConnection:
		return target == ErrConnection
	case KindMigration:
		return target == ErrMigration
	case KindTableCreation:
		return target == ErrTableCreation
	}
	return false
}

// KindOf extracts the failure kind from err.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
