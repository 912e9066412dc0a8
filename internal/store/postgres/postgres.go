// Package postgres implements the record store on PostgreSQL through gorm.
package postgres

import (
	"context"
	"fmt"
	"time"

	"AccountDesk/internal/account"
	log "AccountDesk/internal/logger"
	"AccountDesk/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultTable = "accounts"

type Options struct {
	DSN   string
	Table string
	// MaxIdleConns is zero by default so every call opens and closes its
	// own connection.
	MaxIdleConns int
	MaxOpenConns int
}

// accountRow maps the accounts table. "limit" is a reserved word; gorm
// quotes column names in the statements it builds.
type accountRow struct {
	ID    int64           `gorm:"column:id;primaryKey"`
	Name  string          `gorm:"column:name"`
	Limit decimal.Decimal `gorm:"column:limit;type:numeric"`
}

func (r accountRow) toAccount() account.Account {
	return account.Account{ID: r.ID, Name: r.Name, Limit: r.Limit}
}

type Store struct {
	db     *gorm.DB
	table  string
	logger *log.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to PostgreSQL. The initial ping classifies an unreachable
// server as store.ErrConnectivity.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger := log.Get("store")

	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger:                 newGormLogger(logger),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.Wrap(classify(err), "open postgres")
	}

	return newStore(ctx, db, opts, logger)
}

func newStore(ctx context.Context, db *gorm.DB, opts Options, logger *log.Logger) (*Store, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "unwrap sql.DB")
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(classify(err), "ping postgres")
	}

	table := opts.Table
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: db, table: table, logger: logger}, nil
}

func (s *Store) ListAll(ctx context.Context) ([]account.Account, error) {
	var rows []accountRow
	err := s.db.WithContext(ctx).Table(s.table).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(classify(err), "list accounts")
	}

	out := make([]account.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAccount())
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (account.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Table(s.table).Where("id = ?", id).Take(&row).Error
	if err != nil {
		return account.Account{}, errors.Wrapf(classify(err), "get account %d", id)
	}
	return row.toAccount(), nil
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	// The transaction outlives the request that opened it while it is
	// parked, so it must not be rolled back when ctx is cancelled.
	tx := s.db.WithContext(context.WithoutCancel(ctx)).Begin()
	if tx.Error != nil {
		return nil, errors.Wrap(classify(tx.Error), "begin")
	}
	id := uuid.NewString()
	s.logger.Debug("Began transaction %s", id)
	return &Tx{id: id, tx: tx, table: s.table, logger: s.logger}, nil
}

// Stats reports the connection pool counters.
func (s *Store) Stats() (inUse, open int) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return 0, 0
	}
	st := sqlDB.Stats()
	return st.InUse, st.OpenConnections
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Tx wraps one gorm transaction. Commit and Rollback return the connection
// to database/sql, which closes it when no idle slots are configured.
type Tx struct {
	id     string
	tx     *gorm.DB
	table  string
	done   bool
	logger *log.Logger
}

func (t *Tx) ID() string {
	return t.id
}

func (t *Tx) SetLockTimeout(ctx context.Context, d time.Duration) error {
	if t.done {
		return store.ErrTxDone
	}
	// SET does not take bind parameters; the value is a formatted integer.
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeoutMillis(d))
	if err := t.tx.WithContext(ctx).Exec(stmt).Error; err != nil {
		return errors.Wrap(classify(err), "set lock_timeout")
	}
	return nil
}

// lockTimeoutMillis rounds d up to whole milliseconds. PostgreSQL reads a
// lock_timeout of 0 as no limit, so any positive d maps to at least 1ms.
func lockTimeoutMillis(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

func (t *Tx) SelectForUpdate(ctx context.Context, id int64) (account.Account, error) {
	if t.done {
		return account.Account{}, store.ErrTxDone
	}
	var row accountRow
	err := t.tx.WithContext(ctx).
		Table(t.table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&row).Error
	if err != nil {
		return account.Account{}, errors.Wrapf(classify(err), "select account %d for update", id)
	}
	return row.toAccount(), nil
}

func (t *Tx) Update(ctx context.Context, a account.Account) error {
	if t.done {
		return store.ErrTxDone
	}
	res := t.tx.WithContext(ctx).
		Table(t.table).
		Where("id = ?", a.ID).
		Updates(map[string]any{"name": a.Name, "limit": a.Limit})
	if res.Error != nil {
		return errors.Wrapf(classify(res.Error), "update account %d", a.ID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(store.ErrNotFound, "update account %d", a.ID)
	}
	return nil
}

func (t *Tx) Commit() error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit().Error; err != nil {
		t.logger.Error("Commit of transaction %s failed: %v", t.id, err)
		return errors.Wrap(classify(err), "commit")
	}
	t.logger.Info("Transaction %s committed", t.id)
	return nil
}

func (t *Tx) Rollback() error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	if err := t.tx.Rollback().Error; err != nil {
		t.logger.Error("Rollback of transaction %s failed: %v", t.id, err)
		return errors.Wrap(classify(err), "rollback")
	}
	t.logger.Info("Transaction %s rolled back", t.id)
	return nil
}
