package migrate

import (
	"fmt"
	"time"
)

type Direction rune

const (
	Down Direction = 'd'
	Up   Direction = 'u'
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// ---

const VersionBits = 64

type Version uint64

type Migration struct {
	Version Version `json:"version"`
	Name    string  `json:"name"`
}

func (m Migration) String() string {
	return fmt.Sprintf("%03d_%s", m.Version, m.Name)
}

// ---

type Status uint

const (
	Pending Status = iota
	Applied
	Missing
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case Missing:
		return "missing"
	default:
		return "pending"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ---

// Log is one row of the migration ledger.
type Log struct {
	Migration
	Checksum  string
	AppliedAt time.Time
}

// ---

// Description is a migration the source can provide.
type Description struct {
	Migration
	CanUndo bool `json:"can_undo"`
}

// Script is a migration together with the SQL for one direction.
type Script struct {
	Migration
	SQL string
}

// State is the reconciled view of one migration: what the source offers and
// what the ledger recorded.
type State struct {
	Description
	Status    Status     `json:"status"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	// Drifted is set when the recorded checksum differs from the script
	// the source provides today.
	Drifted bool `json:"drifted,omitempty"`
}
