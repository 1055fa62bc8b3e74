package orchestrator

import "time"

// Status values used across BootstrapResult and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// Phase names in execution order.
const (
	PhaseLease   = "lease"
	PhaseConnect = "connect"
	PhaseMigrate = "migrate"
	PhaseInspect = "inspect"
	PhaseCreate  = "create"
	PhaseNotify  = "notify"
)

// BootstrapResult is the outcome of one bootstrap run. It is printed on
// stdout by the CLI and served by the readiness server.
type BootstrapResult struct {
	RunID             string        `json:"run_id"`
	Status            string        `json:"status"` // "ok", "error", "in-progress"
	Phases            []PhaseResult `json:"phases"`
	MigrationsAdopted []string      `json:"migrations_adopted,omitempty"`
	MigrationsApplied []string      `json:"migrations_applied"`
	TablesCreated     []string      `json:"tables_created"`
	ForeignKeysAdded  []string      `json:"foreign_keys_added,omitempty"`
	SchemaVersion     uint64        `json:"schema_version"`
	StartedAt         time.Time     `json:"started_at"`
	DurationMs        int64         `json:"duration_ms"`
	ErrorKind         Kind          `json:"error_kind,omitempty"`
	Error             string        `json:"error,omitempty"`
}

// Phase returns the recorded phase with the given name.
func (r *BootstrapResult) Phase(name string) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// PhaseResult represents the outcome of a single bootstrap phase.
type PhaseResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"` // "ok", "error", "skipped"
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// ProbeResult is returned by RunDeepHealth for each dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// ReadyEvent announces that the schema is at the latest version.
type ReadyEvent struct {
	RunID             string    `json:"run_id"`
	SchemaVersion     uint64    `json:"schema_version"`
	MigrationsApplied []string  `json:"migrations_applied"`
	TablesCreated     []string  `json:"tables_created"`
	At                time.Time `json:"at"`
}
