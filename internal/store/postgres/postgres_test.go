package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"AccountDesk/internal/account"
	"AccountDesk/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// openTestStore connects to the database named by ACCOUNTDESK_TEST_DSN and
// recreates a scratch accounts table. The tests skip when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ACCOUNTDESK_TEST_DSN")
	if dsn == "" {
		t.Skip("ACCOUNTDESK_TEST_DSN not set")
	}

	ctx := context.Background()
	table := fmt.Sprintf("accounts_test_%d", time.Now().UnixNano())
	s, err := Open(ctx, Options{DSN: dsn, Table: table, MaxIdleConns: 0})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)).Error
		_ = s.Close()
	})

	create := fmt.Sprintf(`CREATE TABLE %s (id bigint PRIMARY KEY, name text NOT NULL, "limit" numeric NOT NULL)`, table)
	if err := s.db.Exec(create).Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	seed := fmt.Sprintf(`INSERT INTO %s (id, name, "limit") VALUES (1, 'Bruno', 2500), (3, 'Alice', 100.0), (2, 'Carla', 800)`, table)
	if err := s.db.Exec(seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestListAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(rows) != 3 || rows[0].ID != 1 || rows[1].ID != 2 || rows[2].ID != 3 {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	a, err := s.GetByID(ctx, 3)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Name != "Alice" || !a.Limit.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected row: %+v", a)
	}

	if _, err := s.GetByID(ctx, 404); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateCommitAndRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx.SelectForUpdate(ctx, 3); err != nil {
		t.Fatalf("SelectForUpdate: %v", err)
	}
	if err := tx.Update(ctx, account.Account{ID: 3, Name: "Alice P.", Limit: decimal.NewFromInt(150)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, store.ErrTxDone) {
		t.Fatalf("second commit: want ErrTxDone, got %v", err)
	}

	a, _ := s.GetByID(ctx, 3)
	if a.Name != "Alice P." || !a.Limit.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("commit not visible: %+v", a)
	}

	tx, _ = s.Begin(ctx)
	_ = tx.Update(ctx, account.Account{ID: 1, Name: "gone", Limit: decimal.Zero})
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	b, _ := s.GetByID(ctx, 1)
	if b.Name != "Bruno" {
		t.Fatalf("rollback leaked: %+v", b)
	}

	if inUse, _ := s.Stats(); inUse != 0 {
		t.Fatalf("connections still in use: %d", inUse)
	}
}

func TestLockTimeoutClassified(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	holder, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin holder: %v", err)
	}
	defer holder.Rollback()
	if _, err := holder.SelectForUpdate(ctx, 2); err != nil {
		t.Fatalf("holder lock: %v", err)
	}

	waiter, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin waiter: %v", err)
	}
	defer waiter.Rollback()
	if err := waiter.SetLockTimeout(ctx, 100*time.Millisecond); err != nil {
		t.Fatalf("SetLockTimeout: %v", err)
	}

	start := time.Now()
	_, err = waiter.SelectForUpdate(ctx, 2)
	if !errors.Is(err, store.ErrLockTimeout) {
		t.Fatalf("want ErrLockTimeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("lock wait overran its bound")
	}
}

func TestUpdateMissingRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	defer tx.Rollback()
	if err := tx.Update(ctx, account.Account{ID: 999, Name: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestOpenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Open(ctx, Options{DSN: "host=127.0.0.1 port=1 user=nobody dbname=none sslmode=disable connect_timeout=1"})
	if !errors.Is(err, store.ErrConnectivity) {
		t.Fatalf("want ErrConnectivity, got %v", err)
	}
}

func TestLockTimeoutMillisNeverZero(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int64
	}{
		{500 * time.Microsecond, 1},
		{time.Nanosecond, 1},
		{0, 1},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{5 * time.Second, 5000},
	}
	for _, c := range cases {
		if got := lockTimeoutMillis(c.in); got != c.want {
			t.Errorf("lockTimeoutMillis(%s)=%d want %d", c.in, got, c.want)
		}
	}
}
