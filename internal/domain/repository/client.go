package repository

import (
	"context"
	"time"
)

// Client exposes one delegate per model and interactive transactions.
type Client interface {
	User() UserDelegate
	Cosmetic() CosmeticDelegate
	Link() LinkDelegate
	Label() LabelDelegate
	SocialIcon() SocialIconDelegate
	BackgroundColor() BackgroundColorDelegate
	NeonColor() NeonColorDelegate
	Statusbar() StatusbarDelegate

	// Model returns the untyped view of a model by name.
	Model(name string) (ModelDelegate, bool)

	// Transaction runs fn with a client bound to a single transaction. It
	// commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Client) error, opts ...TxOption) error
}

// IsolationLevel of an interactive transaction.
type IsolationLevel string

const (
	ReadUncommitted IsolationLevel = "read uncommitted"
	ReadCommitted   IsolationLevel = "read committed"
	RepeatableRead  IsolationLevel = "repeatable read"
	Serializable    IsolationLevel = "serializable"
)

// TxOptions configures Transaction.
type TxOptions struct {
	Isolation IsolationLevel
	// MaxWait bounds how long to wait for a connection.
	MaxWait time.Duration
	// Timeout bounds the whole transaction including fn.
	Timeout time.Duration
}

// DefaultTxOptions mirror the usual interactive transaction limits.
func DefaultTxOptions() TxOptions {
	return TxOptions{MaxWait: 2 * time.Second, Timeout: 5 * time.Second}
}

type TxOption func(*TxOptions)

func WithIsolation(level IsolationLevel) TxOption {
	return func(o *TxOptions) { o.Isolation = level }
}

func WithTimeout(d time.Duration) TxOption {
	return func(o *TxOptions) { o.Timeout = d }
}

func WithMaxWait(d time.Duration) TxOption {
	return func(o *TxOptions) { o.MaxWait = d }
}
