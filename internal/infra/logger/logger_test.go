package logger

import (
	"os"
	"syscall"
	"testing"

	"github.com/sifan077/tinylink/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{name: "production default", cfg: Config{}, wantLevel: zapcore.InfoLevel},
		{name: "development default", cfg: Config{Development: true}, wantLevel: zapcore.DebugLevel},
		{name: "explicit level", cfg: Config{Level: "WARN", Encoding: "console"}, wantLevel: zapcore.WarnLevel},
		{name: "invalid level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.wantLevel))
			assert.False(t, l.Core().Enabled(tt.wantLevel-1))
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(
		config.AppConfig{Env: "production"},
		config.LogConfig{Level: "debug", Encoding: "json"},
	)
	assert.Equal(t, Config{Development: false, Level: "debug", Encoding: "json"}, cfg)
	assert.True(t, FromConfig(config.AppConfig{}, config.LogConfig{}).Development)
}

func TestL_FallsBackWithoutInit(t *testing.T) {
	assert.NotNil(t, L())
	assert.NoError(t, Sync())
}

func TestUnsyncable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "stderr on a pipe", err: &os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}, want: true},
		{name: "terminal", err: &os.PathError{Op: "sync", Path: "/dev/stdout", Err: syscall.ENOTTY}, want: true},
		{name: "invalid file", err: os.ErrInvalid, want: true},
		{name: "disk failure", err: &os.PathError{Op: "sync", Path: "/var/log/app", Err: syscall.EIO}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unsyncable(tt.err))
		})
	}
}

func TestNamed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	mu.Lock()
	prev := global
	global = zap.New(core)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		global = prev
		mu.Unlock()
	})

	Named(Ledger).Info("appended")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, Ledger, entries[0].LoggerName)
	assert.Equal(t, Ledger, entries[0].ContextMap()["component"])
}
