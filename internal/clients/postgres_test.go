package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-platform/dbinit/internal/config"
)

// mockRow implements pgx.Row for use in tests.
type mockRow struct {
	scanErr error
	exists  bool
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*bool); ok {
			*ptr = r.exists
		}
	}
	return nil
}

// mockDB implements dbPinger for use in tests.
type mockDB struct {
	pingErr  error
	queryRow pgx.Row
	lastArgs []any
	closed   bool
}

func (m *mockDB) Ping(_ context.Context) error { return m.pingErr }
func (m *mockDB) Close()                       { m.closed = true }
func (m *mockDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.lastArgs = args
	return m.queryRow
}

// makeClient returns a PostgresClient with a stubbed dial function.
func makeClient(db dbPinger, connectErr error, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		boot: config.BootstrapConfig{MigrationsTable: "schema_migrations"},
		cb:   cb,
		dial: func(_ context.Context, _ config.DatabaseConfig) (dbPinger, error) {
			return db, connectErr
		},
	}
}

func TestPostgresProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingErr    error
		scanErr    error
		missing    bool
		connectErr error
		wantOK     bool
		wantErrSub string
	}{
		{
			name:   "success: ping ok and ledger exists",
			wantOK: true,
		},
		{
			name:       "failure: ping error",
			pingErr:    errors.New("connection refused"),
			wantErrSub: "ping",
		},
		{
			name:       "failure: ledger absent",
			missing:    true,
			wantErrSub: "schema_migrations table not found",
		},
		{
			name:       "failure: ledger query error",
			scanErr:    errors.New("permission denied"),
			wantErrSub: "checking schema_migrations: permission denied",
		},
		{
			name:       "failure: connect error",
			connectErr: errors.New("dial error"),
			wantErrSub: "dial error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cb := testBreaker("test-" + tc.name)

			var (
				client *PostgresClient
				db     *mockDB
			)
			if tc.connectErr != nil {
				client = makeClient(nil, tc.connectErr, cb)
			} else {
				db = &mockDB{
					pingErr:  tc.pingErr,
					queryRow: &mockRow{scanErr: tc.scanErr, exists: !tc.missing},
				}
				client = makeClient(db, nil, cb)
			}

			result := client.Probe(context.Background())

			assert.Equal(t, postgresProbeName, result.Name)
			assert.Equal(t, tc.wantOK, result.OK)
			if tc.wantErrSub != "" {
				assert.Contains(t, result.Error, tc.wantErrSub)
			}
			if tc.wantOK {
				assert.Empty(t, result.Error)
				assert.Equal(t, []any{"schema_migrations"}, db.lastArgs)
			}
			if db != nil {
				assert.True(t, db.closed, "probe must close its pool")
			}
		})
	}
}

func TestPostgresProbeCircuitBreaker_OpensAfterThreeFailures(t *testing.T) {
	t.Parallel()

	cb := testBreaker("cb-open-test")
	client := makeClient(&mockDB{
		pingErr:  errors.New("connection refused"),
		queryRow: &mockRow{exists: true},
	}, nil, cb)

	// Three consecutive failures should trip the breaker.
	for i := range 3 {
		result := client.Probe(context.Background())
		assert.False(t, result.OK, "probe %d should fail", i+1)
		assert.NotEqual(t, "circuit open", result.Error,
			"probe %d should not be circuit-open yet", i+1)
	}

	// The 4th call must be rejected immediately by the open breaker.
	result := client.Probe(context.Background())
	assert.False(t, result.OK)
	assert.Equal(t, "circuit open", result.Error)
}

func TestPostgresConnect_OpenError(t *testing.T) {
	t.Parallel()

	openErr := errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
	client := &PostgresClient{
		open: func(_ context.Context, _ config.DatabaseConfig) (*pgxpool.Pool, error) {
			return nil, openErr
		},
	}

	session, err := client.Connect(context.Background())
	assert.Nil(t, session)
	assert.ErrorIs(t, err, openErr)
}

func TestRealConnect_BadDSN(t *testing.T) {
	t.Parallel()

	_, err := realConnect(context.Background(), config.DatabaseConfig{
		URL: "postgres://u:p@localhost:notaport/db",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing postgres DSN")
}

func TestNewCircuitBreaker(t *testing.T) {
	t.Parallel()

	cb := testBreaker("unit-test")
	assert.NotNil(t, cb)
	assert.Equal(t, "unit-test", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
