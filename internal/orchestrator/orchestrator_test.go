package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-platform/dbinit/internal/migrate"
)

func TestRunBootstrap_FreshDatabase(t *testing.T) {
	t.Parallel()

	session := freshSession()
	rec := &fakeRecorder{}
	o, sl := newTestOrchestrator(Deps{Connector: &fakeConnector{session: session}, Metrics: rec})

	result, err := o.RunBootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusOK, result.Status)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"connect:ok", "migrate:ok", "inspect:ok", "create:ok"}, phaseStatuses(result))
	assert.Equal(t, []string{"001_a", "002_b"}, result.MigrationsApplied)
	assert.Equal(t, []string{"t1", "t2", "t3"}, result.TablesCreated)
	assert.Equal(t, uint64(2), result.SchemaVersion)
	assert.Empty(t, result.ErrorKind)
	assert.Empty(t, sl.delays)
	assert.Equal(t, 1, session.closed)

	assert.Equal(t, StatusOK, rec.status)
	assert.Equal(t, 2, rec.migrations)
	assert.Equal(t, 3, rec.tables)
	assert.True(t, o.IsReady())
	assert.Same(t, result, o.LastResult())
}

func TestRunBootstrap_SecondRunIsNoop(t *testing.T) {
	t.Parallel()

	session := upToDateSession()
	o, _ := newTestOrchestrator(Deps{Connector: &fakeConnector{session: session}})

	result, err := o.RunBootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"connect:ok", "migrate:ok", "inspect:ok", "create:skipped"}, phaseStatuses(result))
	assert.Empty(t, result.MigrationsApplied)
	assert.Empty(t, result.TablesCreated)
	assert.Empty(t, session.tables.created)
}

func TestRunBootstrap_BehindOnMigrationsOnly(t *testing.T) {
	t.Parallel()

	session := upToDateSession()
	session.migrator.up = &migrate.UpResult{
		Applied: []migrate.Migration{{Version: 22, Name: "link_join_fingerprint_to_participant"}},
		Version: 22,
	}
	o, _ := newTestOrchestrator(Deps{Connector: &fakeConnector{session: session}})

	result, err := o.RunBootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"022_link_join_fingerprint_to_participant"}, result.MigrationsApplied)
	create, ok := result.Phase(PhaseCreate)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, create.Status)
}

func TestRunBootstrap_Unreachable(t *testing.T) {
	t.Parallel()

	session := freshSession()
	conn := &fakeConnector{failures: -1, session: session}
	rec := &fakeRecorder{}
	o, sl := newTestOrchestrator(Deps{Connector: conn, Metrics: rec})

	result, err := o.RunBootstrap(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrConnection)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindConnection, kind)

	assert.Equal(t, 5, conn.attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, sl.delays)

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, KindConnection, result.ErrorKind)
	assert.Equal(t, []string{"connect:error", "migrate:skipped", "inspect:skipped", "create:skipped"}, phaseStatuses(result))
	assert.Zero(t, session.migrator.upCalls)
	assert.Zero(t, session.tables.inspectCalls)
	assert.Equal(t, StatusError, rec.status)
	assert.False(t, o.IsReady())
}

func TestRunBootstrap_ConnectsAfterRetries(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{failures: 2, session: upToDateSession()}
	o, sl := newTestOrchestrator(Deps{Connector: conn})

	_, err := o.RunBootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, conn.attempts)
	assert.Len(t, sl.delays, 2)
}

func TestRunBootstrap_RetryWaitCancelled(t *testing.T) {
	t.Parallel()

	conn := &fakeConnector{failures: -1, session: freshSession()}
	o := New(Deps{Connector: conn}, Options{MaxAttempts: 5, RetryDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.RunBootstrap(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, conn.attempts)
}

func TestRunBootstrap_MigrationFailure(t *testing.T) {
	t.Parallel()

	session := freshSession()
	session.migrator.up = &migrate.UpResult{Applied: []migrate.Migration{{Version: 1, Name: "a"}}, Version: 1}
	session.migrator.upErr = &migrate.ScriptError{Migration: migrate.Migration{Version: 2, Name: "b"}, Direction: migrate.Up, Err: errBoom}
	o, _ := newTestOrchestrator(Deps{Connector: &fakeConnector{session: session}})

	result, err := o.RunBootstrap(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrMigration)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, KindMigration, result.ErrorKind)
	assert.Equal(t, []string{"001_a"}, result.MigrationsApplied)
	assert.Equal(t, []string{"connect:ok", "migrate:error", "inspect:skipped", "create:skipped"}, phaseStatuses(result))
	assert.Zero(t, session.tables.inspectCalls)
	assert.Equal(t, 1, session.closed)
}

func TestRunBootstrap_TableErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(s *fakeSession)
		expected []string
	}{
		{
			name:     "catalog query fails",
			mutate:   func(s *fakeSession) { s.tables.inspectErr = errBoom },
			expected: []string{"connect:ok", "migrate:ok", "inspect:error", "create:skipped"},
		},
		{
			name:     "creation fails",
			mutate:   func(s *fakeSession) { s.tables.createErr = errBoom },
			expected: []string{"connect:ok", "migrate:ok", "inspect:ok", "create:error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			session := freshSession()
			tt.mutate(session)
			o, _ := newTestOrchestrator(Deps{Connector: &fakeConnector{session: session}})

			result, err := o.RunBootstrap(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTableCreation)
			assert.Equal(t, KindTableCreation, result.ErrorKind)
			assert.Equal(t, tt.expected, phaseStatuses(result))
			assert.Equal(t, 1, session.closed)
		})
	}
}

func TestRunBootstrap_Lease(t *testing.T) {
	t.Parallel()

	lease := &fakeLease{}
	o, _ := newTestOrchestrator(Deps{Connector: &fakeConnector{session: upToDateSession()}, Lease: lease})

	result, err := o.RunBootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lease:ok", phaseStatuses(result)[0])
	assert.Equal(t, 1, lease.released)

	conn := &fakeConnector{session: upToDateSession()}
	o, _ = newTestOrchestrator(Deps{Connector: conn, Lease: &fakeLease{err: errBoom}})
	result, err = o.RunBootstrap(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Zero(t, conn.attempts)
	assert.Equal(t, []string{"lease:error", "connect:skipped", "migrate:skipped", "inspect:skipped", "create:skipped"}, phaseStatuses(result))
}

func TestRunBootstrap_Notify(t *testing.T) {
	t.Parallel()

	n := &fakeNotifier{}
	o, _ := newTestOrchestrator(Deps{Connector: &fakeConnector{session: freshSession()}, Notifier: n})

	result, err := o.RunBootstrap(context.Background())
	require.NoError(t, err)
	require.Len(t, n.events, 1)
	assert.Equal(t, result.RunID, n.events[0].RunID)
	assert.Equal(t, uint64(2), n.events[0].SchemaVersion)
	assert.Equal(t, []string{"t1", "t2", "t3"}, n.events[0].TablesCreated)

	// A failed publish is recorded but the run still succeeds.
	n = &fakeNotifier{err: errBoom}
	o, _ = newTestOrchestrator(Deps{Connector: &fakeConnector{session: freshSession()}, Notifier: n})
	result, err = o.RunBootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	notify, ok := result.Phase(PhaseNotify)
	require.True(t, ok)
	assert.Equal(t, StatusError, notify.Status)
}

func TestRunBootstrap_NoNotifyOnFailure(t *testing.T) {
	t.Parallel()

	n := &fakeNotifier{}
	session := freshSession()
	session.migrator.upErr = errBoom
	o, _ := newTestOrchestrator(Deps{Connector: &fakeConnector{session: session}, Notifier: n})

	result, err := o.RunBootstrap(context.Background())
	require.Error(t, err)
	assert.Empty(t, n.events)
	notify, ok := result.Phase(PhaseNotify)
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, notify.Status)
}

func TestRunBootstrap_ConcurrentCallReturnsInProgress(t *testing.T) {
	t.Parallel()

	conn := &blockingConnector{
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		session: upToDateSession(),
	}
	o, _ := newTestOrchestrator(Deps{Connector: conn})

	finished := make(chan error, 1)
	go func() {
		_, err := o.RunBootstrap(context.Background())
		finished <- err
	}()

	<-conn.ready

	_, err := o.RunBootstrap(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapInProgress)
	_, err = o.MigrateUp(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapInProgress)

	close(conn.done)
	require.NoError(t, <-finished)

	// The guard is free again.
	o.connector = &fakeConnector{session: upToDateSession()}
	_, err = o.RunBootstrap(context.Background())
	assert.NoError(t, err)
}

func TestStartBootstrap_ClaimsGuardBeforeReturning(t *testing.T) {
	t.Parallel()

	conn := &blockingConnector{
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		session: upToDateSession(),
	}
	o, _ := newTestOrchestrator(Deps{Connector: conn})

	done, err := o.StartBootstrap(context.Background())
	require.NoError(t, err)

	// The guard is held as soon as StartBootstrap returns, before the
	// background run has necessarily reached the connector.
	again, err := o.StartBootstrap(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapInProgress)
	assert.Nil(t, again)
	_, err = o.RunBootstrap(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapInProgress)

	<-conn.ready
	close(conn.done)
	<-done
	o.Wait()

	require.NotNil(t, o.LastResult())
	assert.Equal(t, StatusOK, o.LastResult().Status)
	assert.True(t, o.IsReady())
}

func TestBootstrapResult_JSONShape(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(Deps{Connector: &fakeConnector{session: freshSession()}})
	result, err := o.RunBootstrap(context.Background())
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, result.RunID, got["run_id"])
	assert.EqualValues(t, 2, got["schema_version"])
	phases, ok := got["phases"].([]any)
	require.True(t, ok)
	require.Len(t, phases, 4)
	first, ok := phases[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "connect", first["name"])
	_, hasError := first["error"]
	assert.False(t, hasError, "error must be omitted when empty")
	_, hasKind := got["error_kind"]
	assert.False(t, hasKind)
}

func TestError(t *testing.T) {
	t.Parallel()

	err := &Error{Kind: KindMigration, Err: errBoom}
	assert.Equal(t, "MigrationError: boom", err.Error())
	assert.ErrorIs(t, err, ErrMigration)
	assert.NotErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, errBoom)

	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
