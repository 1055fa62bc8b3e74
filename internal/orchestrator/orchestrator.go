package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"classroom-platform/dbinit/internal/schema"
)

const tracerName = "classroom-dbinit"

// RunBootstrap brings the database to the latest schema: connect with retry,
// apply pending migrations, check the declared tables, create the missing
// ones. Phases run in order and the first failure stops the run. The result
// is returned even on failure; the error is an *Error carrying the kind.
// Returns ErrBootstrapInProgress if a run is already active.
func (o *Orchestrator) RunBootstrap(ctx context.Context) (*BootstrapResult, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	return o.bootstrap(ctx)
}

// StartBootstrap claims the run guard before returning and then runs the
// bootstrap in a new goroutine. The returned channel is closed when that run
// has finished and its result is visible through LastResult. Returns
// ErrBootstrapInProgress, without starting anything, if a run is active.
func (o *Orchestrator) StartBootstrap(ctx context.Context) (<-chan struct{}, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	done := make(chan struct{})
	o.runs.Add(1)
	go func() {
		defer o.runs.Done()
		defer close(done)
		_, _ = o.bootstrap(ctx)
	}()
	return done, nil
}

// Wait blocks until every run started by StartBootstrap has finished.
func (o *Orchestrator) Wait() {
	o.runs.Wait()
}

// bootstrap runs the procedure for a caller that already holds the guard.
func (o *Orchestrator) bootstrap(ctx context.Context) (*BootstrapResult, error) {
	defer o.bootstrapInProgress.Store(false)

	start := o.now()
	result := &BootstrapResult{
		RunID:             uuid.NewString(),
		Status:            StatusInProgress,
		Phases:            make([]PhaseResult, 0, 6),
		MigrationsApplied: make([]string, 0),
		TablesCreated:     make([]string, 0),
		StartedAt:         start.UTC(),
	}

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "dbinit.bootstrap",
		trace.WithAttributes(attribute.String("bootstrap.run_id", result.RunID)))
	defer span.End()

	slog.InfoContext(ctx, "bootstrap started", "run_id", result.RunID)

	err := o.run(ctx, result)
	result.DurationMs = o.now().Sub(start).Milliseconds()

	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		if kind, ok := KindOf(err); ok {
			result.ErrorKind = kind
		}
		o.skipRemaining(result)

		span.RecordError(err)
		span.SetStatus(codes.Error, string(result.ErrorKind))
		slog.ErrorContext(ctx, "bootstrap failed",
			"run_id", result.RunID,
			"kind", string(result.ErrorKind),
			"error", err,
		)
	} else {
		result.Status = StatusOK
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "bootstrap completed",
			"run_id", result.RunID,
			"schema_version", result.SchemaVersion,
			"migrations_applied", len(result.MigrationsApplied),
			"tables_created", len(result.TablesCreated),
			"duration_ms", result.DurationMs,
		)
	}
	span.SetAttributes(attribute.String("bootstrap.status", result.Status))

	if o.metrics != nil {
		o.metrics.RecordRun(ctx, result.Status, time.Duration(result.DurationMs)*time.Millisecond,
			len(result.MigrationsApplied), len(result.TablesCreated))
	}

	o.resultMu.Lock()
	o.lastResult = result
	o.resultMu.Unlock()

	return result, err
}

func (o *Orchestrator) run(ctx context.Context, result *BootstrapResult) error {
	if o.lease != nil {
		var release func(context.Context)
		err := o.phase(ctx, result, PhaseLease, func(ctx context.Context) error {
			var err error
			release, err = o.lease.Acquire(ctx)
			return err
		})
		if err != nil {
			return &Error{Kind: KindConnection, Err: fmt.Errorf("acquiring bootstrap lease: %w", err)}
		}
		defer release(context.WithoutCancel(ctx))
	}

	var session Session
	err := o.phase(ctx, result, PhaseConnect, func(ctx context.Context) error {
		var err error
		session, err = o.connect(ctx)
		return err
	})
	if err != nil {
		return &Error{Kind: KindConnection, Err: err}
	}
	defer session.Close()

	err = o.phase(ctx, result, PhaseMigrate, func(ctx context.Context) error {
		up, err := session.Migrator().Up(ctx)
		if up != nil {
			for _, m := range up.Adopted {
				result.MigrationsAdopted = append(result.MigrationsAdopted, m.String())
			}
			for _, m := range up.Applied {
				result.MigrationsApplied = append(result.MigrationsApplied, m.String())
			}
			result.SchemaVersion = uint64(up.Version)
		}
		return err
	})
	if err != nil {
		return &Error{Kind: KindMigration, Err: err}
	}

	var inv *schema.Inventory
	err = o.phase(ctx, result, PhaseInspect, func(ctx context.Context) error {
		var err error
		inv, err = session.Tables().Inspect(ctx)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "declared tables inspected",
			"declared", len(inv.Declared),
			"present", len(inv.Present),
			"missing", len(inv.Missing),
		)
		return nil
	})
	if err != nil {
		return &Error{Kind: KindTableCreation, Err: err}
	}

	if inv.Complete() {
		o.skip(ctx, result, PhaseCreate)
	} else {
		err = o.phase(ctx, result, PhaseCreate, func(ctx context.Context) error {
			created, err := session.Tables().CreateMissing(ctx, inv.Missing)
			if created != nil {
				result.TablesCreated = append(result.TablesCreated, created.Tables...)
				result.ForeignKeysAdded = append(result.ForeignKeysAdded, created.ForeignKeys...)
			}
			return err
		})
		if err != nil {
			return &Error{Kind: KindTableCreation, Err: err}
		}
	}

	if o.notifier != nil {
		ev := ReadyEvent{
			RunID:             result.RunID,
			SchemaVersion:     result.SchemaVersion,
			MigrationsApplied: result.MigrationsApplied,
			TablesCreated:     result.TablesCreated,
			At:                o.now().UTC(),
		}
		// Publish failures are recorded on the phase only.
		_ = o.phase(ctx, result, PhaseNotify, func(ctx context.Context) error {
			return o.notifier.PublishReady(ctx, ev)
		})
	}

	return nil
}

// connect retries the connector up to MaxAttempts times with a fixed delay.
func (o *Orchestrator) connect(ctx context.Context) (Session, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if o.opts.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, o.opts.AttemptTimeout)
		}
		session, err := o.connector.Connect(attemptCtx)
		cancel()
		if err == nil {
			slog.InfoContext(ctx, "database reachable", "attempt", attempt)
			return session, nil
		}

		lastErr = err
		slog.WarnContext(ctx, "database not reachable",
			"attempt", attempt,
			"max_attempts", o.opts.MaxAttempts,
			"error", err,
		)
		if attempt == o.opts.MaxAttempts {
			break
		}
		if err := o.sleep(ctx, o.opts.RetryDelay); err != nil {
			return nil, fmt.Errorf("waiting to retry after attempt %d: %w (last error: %v)", attempt, err, lastErr)
		}
	}
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", o.opts.MaxAttempts, lastErr)
}

// phase runs fn in a child span and records its outcome on result.
func (o *Orchestrator) phase(ctx context.Context, result *BootstrapResult, name string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "dbinit.phase."+name)
	defer span.End()

	start := o.now()
	err := fn(ctx)
	p := PhaseResult{
		Name:       name,
		Status:     StatusOK,
		DurationMs: o.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		p.Status = StatusError
		p.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "phase failed")
	}
	result.Phases = append(result.Phases, p)
	logPhase(ctx, p)
	return err
}

func (o *Orchestrator) skip(ctx context.Context, result *BootstrapResult, name string) {
	p := PhaseResult{Name: name, Status: StatusSkipped}
	result.Phases = append(result.Phases, p)
	logPhase(ctx, p)
}

// skipRemaining marks every phase after the failed one as skipped so the
// result always lists the full procedure.
func (o *Orchestrator) skipRemaining(result *BootstrapResult) {
	for _, name := range o.phaseOrder() {
		if _, ok := result.Phase(name); !ok {
			result.Phases = append(result.Phases, PhaseResult{Name: name, Status: StatusSkipped})
		}
	}
}

func (o *Orchestrator) phaseOrder() []string {
	order := make([]string, 0, 6)
	if o.lease != nil {
		order = append(order, PhaseLease)
	}
	order = append(order, PhaseConnect, PhaseMigrate, PhaseInspect, PhaseCreate)
	if o.notifier != nil {
		order = append(order, PhaseNotify)
	}
	return order
}

// logPhase emits a trace-correlated log for a bootstrap phase result.
func logPhase(ctx context.Context, p PhaseResult) {
	switch p.Status {
	case StatusOK:
		slog.InfoContext(ctx, "bootstrap phase ok", "phase", p.Name, "duration_ms", p.DurationMs)
	case StatusSkipped:
		slog.InfoContext(ctx, "bootstrap phase skipped", "phase", p.Name)
	default:
		slog.WarnContext(ctx, "bootstrap phase failed", "phase", p.Name, "error", p.Error)
	}
}
