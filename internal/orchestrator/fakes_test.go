package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"classroom-platform/dbinit/internal/migrate"
	"classroom-platform/dbinit/internal/schema"
)

var errBoom = errors.New("boom")

// --- fakes ---

type fakeMigrator struct {
	up       *migrate.UpResult
	upErr    error
	upCalls  int
	status   *migrate.ValidationResult
	reverted []migrate.Migration
	downTo   migrate.Version
}

func (m *fakeMigrator) Up(context.Context) (*migrate.UpResult, error) {
	m.upCalls++
	return m.up, m.upErr
}

func (m *fakeMigrator) Down(_ context.Context, target migrate.Version) ([]migrate.Migration, error) {
	m.downTo = target
	return m.reverted, nil
}

func (m *fakeMigrator) Status(context.Context) (*migrate.ValidationResult, error) {
	return m.status, nil
}

type fakeTables struct {
	inv          *schema.Inventory
	inspectErr   error
	inspectCalls int
	createErr    error
	created      []string
}

func (f *fakeTables) Inspect(context.Context) (*schema.Inventory, error) {
	f.inspectCalls++
	return f.inv, f.inspectErr
}

func (f *fakeTables) CreateMissing(_ context.Context, missing []string) (*schema.Creation, error) {
	if f.createErr != nil {
		return &schema.Creation{}, f.createErr
	}
	f.created = append(f.created, missing...)
	return &schema.Creation{Tables: missing, ForeignKeys: []string{"fk"}}, nil
}

type fakeSession struct {
	migrator *fakeMigrator
	tables   *fakeTables
	closed   int
}

func (s *fakeSession) Migrator() Migrator   { return s.migrator }
func (s *fakeSession) Tables() TableManager { return s.tables }
func (s *fakeSession) Close()               { s.closed++ }

type fakeConnector struct {
	mu       sync.Mutex
	failures int // attempts that fail before one succeeds; -1 fails forever
	attempts int
	session  *fakeSession
}

func (c *fakeConnector) Connect(context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.failures < 0 || c.attempts <= c.failures {
		return nil, errors.New("connection refused")
	}
	return c.session, nil
}

// blockingConnector blocks until released; used to test the run guard.
type blockingConnector struct {
	ready   chan struct{}
	done    chan struct{}
	session *fakeSession
}

func (b *blockingConnector) Connect(context.Context) (Session, error) {
	close(b.ready)
	<-b.done
	return b.session, nil
}

type fakeLease struct {
	err      error
	released int
}

func (l *fakeLease) Acquire(context.Context) (func(context.Context), error) {
	if l.err != nil {
		return nil, l.err
	}
	return func(context.Context) { l.released++ }, nil
}

type fakeNotifier struct {
	err    error
	events []ReadyEvent
}

func (n *fakeNotifier) PublishReady(_ context.Context, ev ReadyEvent) error {
	n.events = append(n.events, ev)
	return n.err
}

type fakeRecorder struct {
	status     string
	migrations int
	tables     int
}

func (r *fakeRecorder) RecordRun(_ context.Context, status string, _ time.Duration, migrations, tables int) {
	r.status, r.migrations, r.tables = status, migrations, tables
}

type fakeProber struct {
	result ProbeResult
}

func (p *fakeProber) Probe(context.Context) ProbeResult { return p.result }

// --- helpers ---

func freshSession() *fakeSession {
	return &fakeSession{
		migrator: &fakeMigrator{up: &migrate.UpResult{
			Applied: []migrate.Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}},
			Version: 2,
		}},
		tables: &fakeTables{inv: &schema.Inventory{
			Declared: []string{"t1", "t2", "t3"},
			Present:  []string{},
			Missing:  []string{"t1", "t2", "t3"},
		}},
	}
}

func upToDateSession() *fakeSession {
	return &fakeSession{
		migrator: &fakeMigrator{up: &migrate.UpResult{Version: 2}},
		tables: &fakeTables{inv: &schema.Inventory{
			Declared: []string{"t1", "t2", "t3"},
			Present:  []string{"t1", "t2", "t3"},
			Missing:  []string{},
		}},
	}
}

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestOrchestrator(deps Deps) (*Orchestrator, *sleepLog) {
	o := New(deps, Options{MaxAttempts: 5, RetryDelay: 2 * time.Second})
	sl := &sleepLog{}
	o.sleep = sl.sleep
	return o, sl
}

func phaseStatuses(r *BootstrapResult) []string {
	out := make([]string, 0, len(r.Phases))
	for _, p := range r.Phases {
		out = append(out, p.Name+":"+p.Status)
	}
	return out
}
