package helpers

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, IsPasswordHash(hash))
	assert.True(t, CompareHashAndPassword(hash, "correct horse"))
	assert.False(t, CompareHashAndPassword(hash, "battery staple"))

	assert.False(t, IsPasswordHash("correct horse"))
	assert.False(t, IsPasswordHash("$2a$short"))
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env, level string
		want       logrus.Level
		json       bool
	}{
		{env: "development", want: logrus.DebugLevel},
		{env: "production", want: logrus.InfoLevel, json: true},
		{env: "production", level: "warn", want: logrus.WarnLevel, json: true},
		{env: "development", level: "loud", want: logrus.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			logger := NewLogger("biolink", tt.env, tt.level)
			assert.Equal(t, tt.want, logger.GetLevel())
			_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.json, isJSON)
		})
	}
}

func TestLogError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	LogError(logger, "publish failed", errors.New("channel closed"), logrus.Fields{"model": "User"})
	LogError(logger, "no fields", nil, nil)

	require.Len(t, hook.AllEntries(), 2)
	first := hook.AllEntries()[0]
	assert.Equal(t, logrus.ErrorLevel, first.Level)
	assert.Equal(t, "channel closed", first.Data["error"])
	assert.Equal(t, "User", first.Data["model"])
	assert.NotContains(t, hook.LastEntry().Data, "error")
}
