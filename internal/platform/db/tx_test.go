package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type stubTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *stubTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *stubTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type stubBeginner struct {
	tx   *stubTx
	opts pgx.TxOptions
	err  error
}

func (b *stubBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	b := &stubBeginner{tx: &stubTx{}}
	err := WithTx(context.Background(), b, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.True(t, b.tx.committed)
	require.Equal(t, pgx.RepeatableRead, b.opts.IsoLevel)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &stubBeginner{tx: &stubTx{}}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, pgx.TxOptions{}, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, b.tx.committed)
	require.True(t, b.tx.rolledBack)
}

func TestWithTxWrapsBeginAndCommitErrors(t *testing.T) {
	err := WithTx(context.Background(), &stubBeginner{err: errors.New("no conn")}, pgx.TxOptions{}, func(pgx.Tx) error { return nil })
	require.ErrorContains(t, err, "begin tx")

	commitErr := errors.New("serialization")
	b := &stubBeginner{tx: &stubTx{commitErr: commitErr}}
	err = WithTx(context.Background(), b, pgx.TxOptions{}, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, commitErr)
	require.ErrorContains(t, err, "commit tx")
}
