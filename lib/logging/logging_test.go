package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "console info", level: "info", format: "console"},
		{name: "json debug", level: "DEBUG", format: "json"},
		{name: "empty format", level: "warn", format: ""},
		{name: "bad level", level: "loud", format: "console", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Named("resolve").Info("resolved plugin", zap.String("path", "/tmp/x"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "resolve", entries[0].LoggerName)
	assert.Equal(t, "/tmp/x", entries[0].ContextMap()["path"])
}

func TestSetLoggerNilRestoresNop(t *testing.T) {
	SetLogger(nil)
	assert.NotNil(t, Logger())
}
