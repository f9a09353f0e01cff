package progress

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type execCall struct {
	sql  string
	args []any
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execErr      error
	execs        []execCall
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, m.execErr
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresStorage_Migrate(t *testing.T) {
	db := &mockDB{}
	if err := NewPostgresStorage(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0].sql, "CREATE TABLE IF NOT EXISTS progress_records") {
		t.Errorf("execs = %+v", db.execs)
	}
}

func TestPostgresStorage_Load(t *testing.T) {
	tests := []struct {
		name    string
		scan    func(dest ...any) error
		want    string
		wantErr error
	}{
		{
			name: "found",
			scan: func(dest ...any) error {
				*dest[0].(*[]byte) = []byte(`{"score":3}`)
				return nil
			},
			want: `{"score":3}`,
		},
		{
			name:    "missing",
			scan:    func(...any) error { return pgx.ErrNoRows },
			wantErr: ErrNotFound,
		},
		{
			name: "connection failure",
			scan: func(...any) error { return errors.New("conn refused") },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotKey any
			db := &mockDB{queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
				if !strings.Contains(sql, "FROM progress_records WHERE key = $1") {
					t.Errorf("unexpected query: %s", sql)
				}
				gotKey = args[0]
				return &mockRow{scanFunc: tc.scan}
			}}

			data, err := NewPostgresStorage(db).Load(context.Background(), StorageKey)
			if gotKey != StorageKey {
				t.Errorf("key arg = %v", gotKey)
			}
			switch {
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("err = %v, want %v", err, tc.wantErr)
				}
			case tc.want == "":
				if err == nil || errors.Is(err, ErrNotFound) {
					t.Errorf("err = %v, want wrapped driver error", err)
				}
			default:
				if err != nil || string(data) != tc.want {
					t.Errorf("Load = (%s, %v), want %s", data, err, tc.want)
				}
			}
		})
	}
}

func TestPostgresStorage_SaveUpserts(t *testing.T) {
	db := &mockDB{}
	s := NewPostgresStorage(db)
	if err := s.Save(context.Background(), StorageKey, []byte(`{"score":9}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	call := db.execs[0]
	if !strings.Contains(call.sql, "ON CONFLICT (key) DO UPDATE") {
		t.Errorf("save is not an upsert: %s", call.sql)
	}
	if call.args[0] != StorageKey || string(call.args[1].([]byte)) != `{"score":9}` {
		t.Errorf("args = %v", call.args)
	}
}

func TestPostgresStorage_Delete(t *testing.T) {
	db := &mockDB{}
	if err := NewPostgresStorage(db).Delete(context.Background(), StorageKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(db.execs[0].sql), "DELETE FROM progress_records") {
		t.Errorf("sql = %s", db.execs[0].sql)
	}
}

func TestPostgresStorage_ExecErrorsWrapped(t *testing.T) {
	boom := errors.New("disk full")
	s := NewPostgresStorage(&mockDB{execErr: boom})
	if err := s.Save(context.Background(), StorageKey, []byte(`{}`)); !errors.Is(err, boom) {
		t.Errorf("Save err = %v", err)
	}
	if err := s.Delete(context.Background(), StorageKey); !errors.Is(err, boom) {
		t.Errorf("Delete err = %v", err)
	}
	if err := s.Migrate(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Migrate err = %v", err)
	}
}

func TestPostgresStorage_BacksStore(t *testing.T) {
	db := &mockDB{}
	store := NewStore(context.Background(), NewPostgresStorage(db), WithMetrics(testMetrics(t)))
	store.AddScore(10)
	if err := store.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(db.execs) == 0 || !strings.Contains(string(db.execs[len(db.execs)-1].args[1].([]byte)), `"score":10`) {
		t.Errorf("execs = %+v", db.execs)
	}
}

type poolDB struct {
	mockDB
	pingErr error
	closed  bool
}

func (p *poolDB) Ping(context.Context) error { return p.pingErr }
func (p *poolDB) Close()                     { p.closed = true }

func TestPostgresStorage_PingAndClose(t *testing.T) {
	if err := NewPostgresStorage(&mockDB{}).Ping(context.Background()); err != nil {
		t.Errorf("Ping without pool = %v, want nil", err)
	}

	boom := errors.New("connection refused")
	pool := &poolDB{pingErr: boom}
	s := NewPostgresStorage(pool)
	if err := s.Ping(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Ping err = %v, want %v", err, boom)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !pool.closed {
		t.Error("pool not closed")
	}
}
