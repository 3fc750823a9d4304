package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/set-night/chatrelay/internal/config"
	"github.com/set-night/chatrelay/internal/domain"
	"github.com/set-night/chatrelay/internal/repository/sqlc"
)

type fakeRow struct{ err error }

func (r fakeRow) Scan(dest ...any) error { return r.err }

type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 0") }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(dest ...any) error                       { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

type fakeHistoryDB struct {
	execTag  pgconn.CommandTag
	execErr  error
	queryErr error
	rowErr   error
	beginErr error
	pingErr  error

	sqls  []string
	args  [][]any
	begun int
}

func (f *fakeHistoryDB) record(sql string, args []any) {
	f.sqls = append(f.sqls, sql)
	f.args = append(f.args, args)
}

func (f *fakeHistoryDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.record(sql, args)
	return f.execTag, f.execErr
}

func (f *fakeHistoryDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.record(sql, args)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return emptyRows{}, nil
}

func (f *fakeHistoryDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	f.record(sql, args)
	return fakeRow{err: f.rowErr}
}

func (f *fakeHistoryDB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.begun++
	return nil, f.beginErr
}

func (f *fakeHistoryDB) Ping(ctx context.Context) error {
	return f.pingErr
}

func newFakeHistory(db *fakeHistoryDB) *HistoryService {
	return NewHistoryService(db, sqlc.New(db))
}

func TestHistoryService_FinalizeTurn(t *testing.T) {
	db := &fakeHistoryDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
	svc := newFakeHistory(db)
	turnID := uuid.New()

	if err := svc.FinalizeTurn(context.Background(), turnID, "Hello"); err != nil {
		t.Fatalf("FinalizeTurn() error: %v", err)
	}
	if !strings.Contains(db.sqls[0], "completed_at IS NULL") {
		t.Fatalf("Expected update guarded by completed_at IS NULL, got:\n%s", db.sqls[0])
	}
	if len(db.args[0]) != 2 || db.args[0][0] != "Hello" || db.args[0][1] != turnID {
		t.Fatalf("Expected args [message, turn id], got %v", db.args[0])
	}
}

func TestHistoryService_FinalizeTurnOnlyOnce(t *testing.T) {
	db := &fakeHistoryDB{execTag: pgconn.NewCommandTag("UPDATE 0")}
	svc := newFakeHistory(db)

	err := svc.FinalizeTurn(context.Background(), uuid.New(), "again")
	if !errors.Is(err, domain.ErrTurnFinalized) {
		t.Fatalf("Expected ErrTurnFinalized, got %v", err)
	}
}

func TestHistoryService_FinalizeTurnDBError(t *testing.T) {
	db := &fakeHistoryDB{execErr: errors.New("connection reset")}
	svc := newFakeHistory(db)

	err := svc.FinalizeTurn(context.Background(), uuid.New(), "Hello")
	if err == nil || errors.Is(err, domain.ErrTurnFinalized) {
		t.Fatalf("Expected wrapped database error, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("Expected cause in error, got %v", err)
	}
}

func TestHistoryService_GetTurnNotFound(t *testing.T) {
	svc := newFakeHistory(&fakeHistoryDB{rowErr: pgx.ErrNoRows})

	if _, err := svc.GetTurn(context.Background(), uuid.New()); !errors.Is(err, domain.ErrTurnNotFound) {
		t.Fatalf("Expected ErrTurnNotFound, got %v", err)
	}
}

func TestHistoryService_SearchEscapesAndClamps(t *testing.T) {
	db := &fakeHistoryDB{}
	svc := newFakeHistory(db)

	turns, err := svc.Search(context.Background(), `100%_sure`, nil, 0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("Expected no turns, got %d", len(turns))
	}
	if got := db.args[0][0]; got != `100\%\_sure` {
		t.Fatalf("Expected escaped term, got %v", got)
	}
	if got := db.args[0][2]; got != int32(config.DefaultSearchLimit) {
		t.Fatalf("Expected default limit %d, got %v", config.DefaultSearchLimit, got)
	}

	if _, err := svc.Search(context.Background(), "x", nil, 10_000); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if got := db.args[1][2]; got != int32(config.MaxSearchLimit) {
		t.Fatalf("Expected capped limit %d, got %v", config.MaxSearchLimit, got)
	}
}

func TestHistoryService_ListBeginFailure(t *testing.T) {
	db := &fakeHistoryDB{beginErr: errors.New("pool closed")}
	svc := newFakeHistory(db)

	if _, err := svc.List(context.Background(), domain.HistoryFilter{}); err == nil {
		t.Fatal("Expected error when the read transaction cannot start")
	}
	if db.begun != 1 || len(db.sqls) != 0 {
		t.Fatalf("Expected no queries without a transaction, got %d", len(db.sqls))
	}
}

func TestHistoryService_Ping(t *testing.T) {
	down := errors.New("down")
	if err := newFakeHistory(&fakeHistoryDB{pingErr: down}).Ping(context.Background()); !errors.Is(err, down) {
		t.Fatalf("Expected ping error, got %v", err)
	}
}

func TestPageWindow(t *testing.T) {
	tests := []struct {
		name                string
		skip, limit         int
		wantSkip, wantLimit int
	}{
		{"defaults", 0, 0, 0, config.DefaultHistoryLimit},
		{"negative skip", -5, 10, 0, 10},
		{"limit capped", 0, 10_000, 0, config.MaxHistoryLimit},
		{"huge skip", math.MaxInt32 + 10, 10, math.MaxInt32, 10},
		{"max int skip", math.MaxInt, 10, math.MaxInt32, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, limit := pageWindow(tt.skip, tt.limit)
			if skip != tt.wantSkip || limit != tt.wantLimit {
				t.Fatalf("pageWindow(%d, %d) = (%d, %d), expected (%d, %d)",
					tt.skip, tt.limit, skip, limit, tt.wantSkip, tt.wantLimit)
			}
		})
	}
}

func TestNewHistoryPage(t *testing.T) {
	items := func(n int) []domain.ChatTurn { return make([]domain.ChatTurn, n) }

	tests := []struct {
		name        string
		items       int
		total       int64
		skip, limit int
		wantPage    int
		wantMore    bool
	}{
		{"first page with more", 10, 25, 0, 10, 1, true},
		{"middle page", 10, 25, 10, 10, 2, true},
		{"last partial page", 5, 25, 20, 10, 3, false},
		{"exact end", 10, 20, 10, 10, 2, false},
		{"empty", 0, 0, 0, 50, 1, false},
		{"skip past end", 0, 25, 100, 10, 11, false},
		{"unaligned skip", 10, 30, 5, 10, 1, true},
		{"max skip", 0, 3, math.MaxInt32, 10, math.MaxInt32/10 + 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newHistoryPage(items(tt.items), tt.total, tt.skip, tt.limit)
			if page.Page != tt.wantPage {
				t.Fatalf("Expected page %d, got %d", tt.wantPage, page.Page)
			}
			if page.HasMore != tt.wantMore {
				t.Fatalf("Expected HasMore %v, got %v", tt.wantMore, page.HasMore)
			}
			if page.Total != tt.total || page.Limit != tt.limit || len(page.Items) != tt.items {
				t.Fatalf("Expected total/limit/items passed through, got %+v", page)
			}
		})
	}
}
