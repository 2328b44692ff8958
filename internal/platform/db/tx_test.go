package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx     *fakeTx
	opts   pgx.TxOptions
	begins int
	err    error
}

func (f *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.begins++
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not a tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx for wrong type in context")
	}
}

func TestUnitOfWork_Commit(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	uow := NewUnitOfWork(b)

	var seen pgx.Tx
	err := uow.WithinTx(context.Background(), func(ctx context.Context) error {
		seen = TxFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != b.tx {
		t.Error("expected transaction bound to context")
	}
	if !b.tx.committed || b.tx.rolledBack {
		t.Errorf("expected commit only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
	if b.opts.IsoLevel != pgx.ReadCommitted {
		t.Errorf("expected read committed, got %q", b.opts.IsoLevel)
	}
}

func TestUnitOfWork_RollbackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")

	err := NewUnitOfWork(b).WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Errorf("expected rollback only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestUnitOfWork_CommitErrorIsReturned(t *testing.T) {
	commitErr := errors.New("unique violation at commit")
	b := &fakeBeginner{tx: &fakeTx{commitErr: commitErr}}

	err := NewUnitOfWork(b).WithinTx(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error to be wrapped, got %v", err)
	}
}

func TestUnitOfWork_JoinsExistingTx(t *testing.T) {
	outer := &fakeTx{}
	b := &fakeBeginner{tx: &fakeTx{}}
	ctx := WithTx(context.Background(), outer)

	err := NewUnitOfWork(b).WithinTx(ctx, func(ctx context.Context) error {
		if TxFromContext(ctx) != outer {
			t.Error("expected outer transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.begins != 0 {
		t.Errorf("expected no new transaction, got %d", b.begins)
	}
	if outer.committed {
		t.Error("joined call must not commit the outer transaction")
	}
}

func TestUnitOfWork_BeginError(t *testing.T) {
	b := &fakeBeginner{err: errors.New("pool closed")}
	called := false
	err := NewUnitOfWork(b).WithinTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Error("fn must not run without a transaction")
	}
}
