package memory

import (
	"context"
	"testing"
	"time"

	"AccountDesk/internal/account"
	"AccountDesk/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

func newSeeded(t *testing.T) *Engine {
	t.Helper()
	e := New()
	e.Seed()
	return e
}

func TestListAllOrderedByID(t *testing.T) {
	e := New()
	for _, id := range []int64{7, 2, 5} {
		e.Put(account.Account{ID: id, Name: "x", Limit: decimal.Zero})
	}

	rows, err := e.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(rows) != 3 || rows[0].ID != 2 || rows[1].ID != 5 || rows[2].ID != 7 {
		t.Fatalf("unexpected order: %+v", rows)
	}
	if e.OpenConns() != 0 {
		t.Fatalf("connection leaked: %d open", e.OpenConns())
	}
}

func TestGetByID(t *testing.T) {
	e := newSeeded(t)

	a, err := e.GetByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Name != "Alice" || !a.Limit.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected row: %+v", a)
	}

	if _, err := e.GetByID(context.Background(), 99); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestOfflineEngine(t *testing.T) {
	e := newSeeded(t)
	e.SetAvailable(false)

	if _, err := e.ListAll(context.Background()); !errors.Is(err, store.ErrConnectivity) {
		t.Fatalf("ListAll: want ErrConnectivity, got %v", err)
	}
	if _, err := e.GetByID(context.Background(), 1); !errors.Is(err, store.ErrConnectivity) {
		t.Fatalf("GetByID: want ErrConnectivity, got %v", err)
	}
	if _, err := e.Begin(context.Background()); !errors.Is(err, store.ErrConnectivity) {
		t.Fatalf("Begin: want ErrConnectivity, got %v", err)
	}
	if e.OpenConns() != 0 {
		t.Fatalf("failed calls must not hold connections")
	}
}

func TestShadowWritesInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)

	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if e.OpenConns() != 1 {
		t.Fatalf("open transaction should hold one connection, got %d", e.OpenConns())
	}

	updated := account.Account{ID: 3, Name: "Alice P.", Limit: decimal.NewFromInt(150)}
	if err := tx.Update(ctx, updated); err != nil {
		t.Fatalf("Update: %v", err)
	}

	inside, err := tx.SelectForUpdate(ctx, 3)
	if err != nil {
		t.Fatalf("SelectForUpdate: %v", err)
	}
	if inside.Name != "Alice P." {
		t.Fatalf("transaction should read its own write, got %+v", inside)
	}

	outside, _ := e.GetByID(ctx, 3)
	if outside.Name != "Alice" {
		t.Fatalf("uncommitted write leaked: %+v", outside)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	after, _ := e.GetByID(ctx, 3)
	if after.Name != "Alice P." || !after.Limit.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("commit not applied: %+v", after)
	}
	if st := tx.(*Transaction).Status(); st != Committed {
		t.Fatalf("status=%s", st)
	}
	if e.OpenConns() != 0 || len(e.Locks()) != 0 {
		t.Fatalf("commit must release connection and locks: conns=%d locks=%v", e.OpenConns(), e.Locks())
	}
}

func TestRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)

	tx, _ := e.Begin(ctx)
	if err := tx.Update(ctx, account.Account{ID: 1, Name: "changed", Limit: decimal.Zero}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	a, _ := e.GetByID(ctx, 1)
	if a.Name != "Bruno" {
		t.Fatalf("rollback should discard writes, got %+v", a)
	}
	if st := tx.(*Transaction).Status(); st != RolledBack {
		t.Fatalf("status=%s", st)
	}
	if err := tx.Rollback(); !errors.Is(err, store.ErrTxDone) {
		t.Fatalf("second rollback: want ErrTxDone, got %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, store.ErrTxDone) {
		t.Fatalf("commit after rollback: want ErrTxDone, got %v", err)
	}
	if e.OpenConns() != 0 {
		t.Fatalf("connection leaked")
	}
}

func TestUpdateMissingRow(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)

	tx, _ := e.Begin(ctx)
	defer tx.Rollback()

	if err := tx.Update(ctx, account.Account{ID: 42}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestLockTimeout(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)

	holder, _ := e.Begin(ctx)
	if _, err := holder.SelectForUpdate(ctx, 3); err != nil {
		t.Fatalf("holder lock: %v", err)
	}
	defer holder.Rollback()

	waiter, _ := e.Begin(ctx)
	defer waiter.Rollback()
	if err := waiter.SetLockTimeout(ctx, 50*time.Millisecond); err != nil {
		t.Fatalf("SetLockTimeout: %v", err)
	}

	start := time.Now()
	_, err := waiter.SelectForUpdate(ctx, 3)
	if !errors.Is(err, store.ErrLockTimeout) {
		t.Fatalf("want ErrLockTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("lock wait overran its bound: %s", elapsed)
	}
}

func TestWaiterProceedsAfterRelease(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)

	holder, _ := e.Begin(ctx)
	if _, err := holder.SelectForUpdate(ctx, 2); err != nil {
		t.Fatalf("holder lock: %v", err)
	}
	if err := holder.Update(ctx, account.Account{ID: 2, Name: "Carla S.", Limit: decimal.NewFromInt(900)}); err != nil {
		t.Fatalf("holder update: %v", err)
	}

	done := make(chan account.Account, 1)
	go func() {
		waiter, _ := e.Begin(ctx)
		defer waiter.Rollback()
		_ = waiter.SetLockTimeout(ctx, 5*time.Second)
		a, err := waiter.SelectForUpdate(ctx, 2)
		if err != nil {
			t.Errorf("waiter: %v", err)
		}
		done <- a
	}()

	time.Sleep(20 * time.Millisecond)
	if err := holder.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	select {
	case a := <-done:
		if a.Name != "Carla S." {
			t.Fatalf("waiter should see the committed row, got %+v", a)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("waiter never woke up")
	}
}

func TestInjectedFaultFiresOnce(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)
	e.InjectFault(StageUpdate, store.ErrDeadlock)

	tx, _ := e.Begin(ctx)
	if err := tx.Update(ctx, account.Account{ID: 1, Name: "x"}); !errors.Is(err, store.ErrDeadlock) {
		t.Fatalf("want ErrDeadlock, got %v", err)
	}
	if err := tx.Update(ctx, account.Account{ID: 1, Name: "x"}); err != nil {
		t.Fatalf("fault should fire once, got %v", err)
	}
	_ = tx.Rollback()
}

func TestCommitFaultRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newSeeded(t)
	e.InjectFault(StageCommit, errors.New("disk full"))

	tx, _ := e.Begin(ctx)
	_ = tx.Update(ctx, account.Account{ID: 1, Name: "never", Limit: decimal.Zero})
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected commit failure")
	}
	a, _ := e.GetByID(ctx, 1)
	if a.Name != "Bruno" {
		t.Fatalf("failed commit must not apply writes, got %+v", a)
	}
	if st := tx.(*Transaction).Status(); st != RolledBack {
		t.Fatalf("a failed commit leaves the transaction rolled back, got %s", st)
	}
	if e.OpenConns() != 0 || len(e.Locks()) != 0 {
		t.Fatalf("failed commit must release resources")
	}
}
