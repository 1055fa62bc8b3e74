package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"classroom-platform/dbinit/internal/migrate"
	"classroom-platform/dbinit/internal/schema"
)

// ErrBootstrapInProgress is returned when a run is requested while another
// one holds the database.
var ErrBootstrapInProgress = errors.New("bootstrap already in progress")

// Migrator is satisfied by *migrate.Migrator.
type Migrator interface {
	Up(ctx context.Context) (*migrate.UpResult, error)
	Down(ctx context.Context, target migrate.Version) ([]migrate.Migration, error)
	Status(ctx context.Context) (*migrate.ValidationResult, error)
}

// TableManager is satisfied by *schema.Manager.
type TableManager interface {
	Inspect(ctx context.Context) (*schema.Inventory, error)
	CreateMissing(ctx context.Context, missing []string) (*schema.Creation, error)
}

// Session is an open, verified database connection.
type Session interface {
	Migrator() Migrator
	Tables() TableManager
	Close()
}

// Connector makes a single connection attempt. Retrying is the
// orchestrator's job.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// Lease keeps concurrent replicas from bootstrapping the same database.
type Lease interface {
	Acquire(ctx context.Context) (release func(context.Context), err error)
}

// Notifier is satisfied by *clients.NATSClient.
type Notifier interface {
	PublishReady(ctx context.Context, ev ReadyEvent) error
}

// Prober is satisfied by the clients' Probe methods.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// RunRecorder is satisfied by *telemetry.Metrics.
type RunRecorder interface {
	RecordRun(ctx context.Context, status string, elapsed time.Duration, migrations, tables int)
}

// Options bound the connection retry loop and the whole run.
type Options struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	Timeout        time.Duration
}

// Deps are the collaborators of an Orchestrator. Only Connector is required.
type Deps struct {
	Connector Connector
	Lease     Lease
	Notifier  Notifier
	Metrics   RunRecorder
	Probes    map[string]Prober
}

// Orchestrator runs the bootstrap procedure and reports readiness.
type Orchestrator struct {
	connector Connector
	lease     Lease
	notifier  Notifier
	metrics   RunRecorder
	probes    map[string]Prober
	opts      Options

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	bootstrapInProgress atomic.Bool
	runs                sync.WaitGroup
	lastResult          *BootstrapResult
	resultMu            sync.RWMutex
}

// New constructs an Orchestrator. MaxAttempts below 1 is treated as 1.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Orchestrator{
		connector: deps.Connector,
		lease:     deps.Lease,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		probes:    deps.Probes,
		opts:      opts,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

// RunDeepHealth probes every dependency concurrently and returns a map of
// dependency name to ProbeResult.
func (o *Orchestrator) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, len(o.probes))
	var mu sync.Mutex
	var g errgroup.Group

	for name, p := range o.probes {
		g.Go(func() error {
			probe := p.Probe(ctx)
			mu.Lock()
			results[name] = probe
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// IsReady returns true if the last bootstrap completed with StatusOK.
func (o *Orchestrator) IsReady() bool {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult != nil && o.lastResult.Status == StatusOK
}

// LastResult returns the most recent finished run, or nil.
func (o *Orchestrator) LastResult() *BootstrapResult {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult
}

// Status reports the migration ledger against the available scripts.
func (o *Orchestrator) Status(ctx context.Context) (*migrate.ValidationResult, error) {
	var res *migrate.ValidationResult
	err := o.withSession(ctx, func(ctx context.Context, s Session) error {
		var err error
		res, err = s.Migrator().Status(ctx)
		if err != nil {
			return &Error{Kind: KindMigration, Err: err}
		}
		return nil
	})
	return res, err
}

// MigrateUp applies pending migrations without touching tables outside the
// migration chain.
func (o *Orchestrator) MigrateUp(ctx context.Context) (*migrate.UpResult, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer o.bootstrapInProgress.Store(false)

	var res *migrate.UpResult
	err := o.withSession(ctx, func(ctx context.Context, s Session) error {
		var err error
		res, err = s.Migrator().Up(ctx)
		if err != nil {
			return &Error{Kind: KindMigration, Err: err}
		}
		return nil
	})
	return res, err
}

// MigrateDown reverts applied migrations above target.
func (o *Orchestrator) MigrateDown(ctx context.Context, target migrate.Version) ([]migrate.Migration, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer o.bootstrapInProgress.Store(false)

	var reverted []migrate.Migration
	err := o.withSession(ctx, func(ctx context.Context, s Session) error {
		var err error
		reverted, err = s.Migrator().Down(ctx, target)
		if err != nil {
			return &Error{Kind: KindMigration, Err: err}
		}
		return nil
	})
	return reverted, err
}

func (o *Orchestrator) withSession(ctx context.Context, fn func(ctx context.Context, s Session) error) error {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	session, err := o.connect(ctx)
	if err != nil {
		return &Error{Kind: KindConnection, Err: err}
	}
	defer session.Close()

	return fn(ctx, session)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
