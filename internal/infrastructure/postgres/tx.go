package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/internal/infrastructure/events"
)

type txState struct {
	ctx     context.Context
	pending []events.MutationEvent
}

// Transaction runs fn on a client bound to one transaction. Events and
// cache invalidations of writes made by fn are flushed after the commit.
func (c *Client) Transaction(ctx context.Context, fn func(tx repository.Client) error, opts ...repository.TxOption) error {
	if c.tx != nil {
		return dberr.ErrTxStarted
	}
	if c.beginner == nil {
		return txError("the connection does not support transactions", nil)
	}
	o := c.txOpts
	for _, opt := range opts {
		opt(&o)
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, o.MaxWait)
	tx, err := c.beginner.BeginTx(waitCtx, pgx.TxOptions{IsoLevel: pgx.TxIsoLevel(o.Isolation)})
	cancelWait()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return txError(fmt.Sprintf("unable to start a transaction in %s", o.MaxWait), err)
		}
		return txError("unable to start a transaction", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	tc := c.bind(tx, runCtx)

	if err := fn(tc); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return &dberr.RollbackError{Err: err, Rollback: rbErr}
		}
		return err
	}
	if runCtx.Err() != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return txError(fmt.Sprintf("transaction already closed: timeout of %s exceeded", o.Timeout), runCtx.Err())
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(nil, err)
	}
	c.flush(ctx, tc.tx.pending)
	return nil
}

// inTx runs fn atomically: directly when already in a transaction,
// otherwise inside a new one.
func (c *Client) inTx(ctx context.Context, fn func(tc *Client) error) error {
	if c.tx != nil {
		return fn(c)
	}
	return c.Transaction(ctx, func(tx repository.Client) error {
		return fn(tx.(*Client))
	})
}

// bind returns a copy of c running on tx.
func (c *Client) bind(tx pgx.Tx, ctx context.Context) *Client {
	tc := &Client{
		db:     tx,
		logger: c.logger,
		cache:  c.cache,
		pub:    c.pub,
		omit:   c.omit,
		mws:    c.mws,
		now:    c.now,
		txOpts: c.txOpts,
		tx:     &txState{ctx: ctx},
	}
	tc.initDelegates()
	return tc
}

// checkTx fails operations issued on a transaction that timed out.
func (c *Client) checkTx() error {
	if c.tx == nil {
		return nil
	}
	if err := c.tx.ctx.Err(); err != nil {
		return txError("transaction already closed", err)
	}
	return nil
}

// txContext derives the context of one operation. Inside a transaction it
// is also cancelled when the transaction times out, so statements already
// running on the connection are interrupted.
func (c *Client) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.tx == nil {
		return ctx, func() {}
	}
	opCtx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(c.tx.ctx, func() { cancel(context.Cause(c.tx.ctx)) })
	return opCtx, func() {
		stop()
		cancel(nil)
	}
}

func txError(msg string, err error) error {
	return &dberr.KnownRequestError{Code: dberr.CodeTransaction, Message: msg, Err: err}
}
