package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// QueryTracer logs every statement at debug level and slow or failed ones
// at warn.
type QueryTracer struct {
	logger *logrus.Logger
	slow   time.Duration
	now    func() time.Time
}

type traceKey struct{}

type traceStart struct {
	sql  string
	args int
	at   time.Time
}

func NewQueryTracer(logger *logrus.Logger, slow time.Duration) *QueryTracer {
	return &QueryTracer{logger: logger, slow: slow, now: time.Now}
}

func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{sql: data.SQL, args: len(data.Args), at: t.now()})
}

func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	elapsed := t.now().Sub(start.at)
	entry := t.logger.WithFields(logrus.Fields{
		"sql":         start.sql,
		"args":        start.args,
		"duration_ms": elapsed.Milliseconds(),
		"rows":        data.CommandTag.RowsAffected(),
	})
	switch {
	case data.Err != nil:
		entry.WithError(data.Err).Warn("query failed")
	case t.slow > 0 && elapsed >= t.slow:
		entry.Warn("slow query")
	default:
		entry.Debug("query")
	}
}
