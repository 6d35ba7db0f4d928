package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryTracer(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		err     error
		level   logrus.Level
		message string
	}{
		{name: "fast", elapsed: 5 * time.Millisecond, level: logrus.DebugLevel, message: "query"},
		{name: "slow", elapsed: 300 * time.Millisecond, level: logrus.WarnLevel, message: "slow query"},
		{name: "failed", elapsed: time.Millisecond, err: errors.New("boom"), level: logrus.WarnLevel, message: "query failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			logger.SetLevel(logrus.DebugLevel)
			tr := NewQueryTracer(logger, 200*time.Millisecond)
			now := fixedNow
			tr.now = func() time.Time { return now }

			ctx := tr.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT $1", Args: []any{1}})
			now = now.Add(tt.elapsed)
			tr.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 3"), Err: tt.err})

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, tt.message, entry.Message)
			assert.Equal(t, "SELECT $1", entry.Data["sql"])
			assert.Equal(t, 1, entry.Data["args"])
			assert.Equal(t, int64(3), entry.Data["rows"])
			assert.Equal(t, tt.elapsed.Milliseconds(), entry.Data["duration_ms"])
		})
	}
}

func TestQueryTracerWithoutStart(t *testing.T) {
	logger, hook := test.NewNullLogger()
	NewQueryTracer(logger, 0).TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	assert.Empty(t, hook.AllEntries())
}
