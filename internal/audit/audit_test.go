package audit

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/cloudspectre/internal/models"
)

type execCall struct {
	query string
	args  []driver.NamedValue
}

type mockState struct {
	mu       sync.Mutex
	calls    []execCall
	pingErr  error
	execErrs []error // consumed in order, nil entries succeed
}

func (s *mockState) inserts() []execCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []execCall
	for _, c := range s.calls {
		if strings.Contains(c.query, "INSERT INTO") {
			out = append(out, c)
		}
	}
	return out
}

type mockDriver struct {
	state *mockState
}

func (d *mockDriver) Open(string) (driver.Conn, error) {
	return &mockConn{state: d.state}, nil
}

type mockConn struct {
	state *mockState
}

func (c *mockConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *mockConn) Ping(context.Context) error {
	return c.state.pingErr
}

func (c *mockConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	copied := make([]driver.NamedValue, len(args))
	copy(copied, args)
	c.state.calls = append(c.state.calls, execCall{query: query, args: copied})

	if len(c.state.execErrs) > 0 {
		err := c.state.execErrs[0]
		c.state.execErrs = c.state.execErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return driver.RowsAffected(1), nil
}

var (
	_ driver.ExecerContext = (*mockConn)(nil)
	_ driver.Pinger        = (*mockConn)(nil)
)

var driverCounter uint64

func newMockDB(t *testing.T, state *mockState) *sql.DB {
	t.Helper()
	name := fmt.Sprintf("auditmock-%d", atomic.AddUint64(&driverCounter, 1))
	sql.Register(name, &mockDriver{state: state})
	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("failed to open mock db: %v", err)
	}
	return db
}

func noSleep() retryPolicy {
	return retryPolicy{
		attempts: 3,
		backoff:  time.Millisecond,
		max:      time.Millisecond,
		sleep:    func(context.Context, time.Duration) error { return nil },
	}
}

func sampleEntry() Entry {
	return Entry{
		Time:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		DryRun:    false,
		Succeeded: true,
		Action: models.CleanupAction{
			VolumeID:     "vol-1",
			ResourceType: models.ResourceVolume,
			Region:       "us-east-2",
			Name:         "scratch",
			Action:       models.ActionDeleteVolume,
			Reason:       "Unattached volume",
			DaysOverdue:  7,
			BillingTag:   "<MISSING>",
			Rule:         "unattached-volume",
		},
	}
}

func TestNewSinkCreatesTable(t *testing.T) {
	state := &mockState{}
	sink, err := newClickHouseSink(context.Background(), newMockDB(t, state), noSleep())
	if err != nil {
		t.Fatalf("newClickHouseSink: %v", err)
	}
	defer sink.Close()

	if len(state.calls) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(state.calls))
	}
	if !strings.Contains(state.calls[0].query, "CREATE TABLE IF NOT EXISTS "+Table) {
		t.Fatalf("unexpected statement: %s", state.calls[0].query)
	}
}

func TestNewSinkPingFailure(t *testing.T) {
	state := &mockState{pingErr: errors.New("code: 516, message: Authentication failed")}
	if _, err := newClickHouseSink(context.Background(), newMockDB(t, state), noSleep()); err == nil {
		t.Fatal("expected error when the store is unreachable")
	}
	if len(state.calls) != 0 {
		t.Fatalf("expected no statements after failed ping, got %d", len(state.calls))
	}
}

func TestRecordInsertsRow(t *testing.T) {
	state := &mockState{}
	sink, err := newClickHouseSink(context.Background(), newMockDB(t, state), noSleep())
	if err != nil {
		t.Fatalf("newClickHouseSink: %v", err)
	}
	defer sink.Close()

	sink.Record(context.Background(), sampleEntry())

	rows := state.inserts()
	if len(rows) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(rows))
	}
	args := rows[0].args
	if len(args) != 14 {
		t.Fatalf("expected 14 bound values, got %d", len(args))
	}
	if args[3].Value != "us-east-2" || args[4].Value != "DELETE_VOLUME" || args[6].Value != "vol-1" {
		t.Fatalf("unexpected row values: %v %v %v", args[3].Value, args[4].Value, args[6].Value)
	}
	if args[2].Value != true {
		t.Fatalf("expected succeeded=true, got %v", args[2].Value)
	}
}

func TestRecordRetriesTransientErrors(t *testing.T) {
	state := &mockState{}
	sink, err := newClickHouseSink(context.Background(), newMockDB(t, state), noSleep())
	if err != nil {
		t.Fatalf("newClickHouseSink: %v", err)
	}
	defer sink.Close()

	state.mu.Lock()
	state.execErrs = []error{errors.New("read: connection reset by peer"), nil}
	state.mu.Unlock()

	sink.Record(context.Background(), sampleEntry())

	if got := len(state.inserts()); got != 2 {
		t.Fatalf("expected 2 insert attempts, got %d", got)
	}
}

func TestRecordFailureDoesNotPanic(t *testing.T) {
	state := &mockState{}
	sink, err := newClickHouseSink(context.Background(), newMockDB(t, state), noSleep())
	if err != nil {
		t.Fatalf("newClickHouseSink: %v", err)
	}
	defer sink.Close()

	state.mu.Lock()
	state.execErrs = []error{errors.New("code: 60, message: Table does not exist")}
	state.mu.Unlock()

	sink.Record(context.Background(), sampleEntry())

	if got := len(state.inserts()); got != 1 {
		t.Fatalf("expected a single attempt for a permanent error, got %d", got)
	}
}

func TestWithRetry(t *testing.T) {
	cases := []struct {
		name     string
		errs     []error
		wantErr  bool
		attempts int
		sleeps   []time.Duration
	}{
		{
			name:     "transient then success",
			errs:     []error{errors.New("i/o timeout"), errors.New("unexpected EOF"), nil},
			attempts: 3,
			sleeps:   []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		},
		{
			name:     "auth fails fast",
			errs:     []error{errors.New("code: 516, message: Authentication failed")},
			wantErr:  true,
			attempts: 1,
		},
		{
			name:     "permanent error",
			errs:     []error{errors.New("syntax error")},
			wantErr:  true,
			attempts: 1,
		},
		{
			name:     "gives up after max attempts",
			errs:     []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")},
			wantErr:  true,
			attempts: 3,
			sleeps:   []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sleeps []time.Duration
			p := retryPolicy{
				attempts: 3,
				backoff:  10 * time.Millisecond,
				max:      40 * time.Millisecond,
				sleep: func(_ context.Context, d time.Duration) error {
					sleeps = append(sleeps, d)
					return nil
				},
			}
			attempts := 0
			err := withRetry(context.Background(), p, func() error {
				err := tc.errs[attempts]
				attempts++
				return err
			})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if attempts != tc.attempts {
				t.Fatalf("expected %d attempts, got %d", tc.attempts, attempts)
			}
			if len(sleeps) != len(tc.sleeps) {
				t.Fatalf("expected sleeps %v, got %v", tc.sleeps, sleeps)
			}
			for i := range sleeps {
				if sleeps[i] != tc.sleeps[i] {
					t.Fatalf("expected sleeps %v, got %v", tc.sleeps, sleeps)
				}
			}
		})
	}
}

func TestWithRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := withRetry(ctx, noSleep(), func() error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("fn must not run with a canceled context")
	}
}

func TestNopSink(t *testing.T) {
	var s Sink = Nop{}
	s.Record(context.Background(), sampleEntry())
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
