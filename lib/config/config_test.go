package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DEV", "CACHE", "SWC_DEV", "SWC_CACHE", "SWC_KIND", "SWC_LOG_LEVEL", "SWC_LOCATOR"} {
		if old, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, old) })
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Dev)
	assert.True(t, cfg.Cache)
	assert.Equal(t, "shared", cfg.Kind)
	assert.Equal(t, "./target/debug", cfg.DevDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Download.MaxRetries)
	assert.Equal(t, time.Second, cfg.Download.RetryDelay)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "swc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
kind: wasm
locator: https://deno.land/x/deno_swc@v0.0.4/mod.ts
log:
  level: debug
  format: json
download:
  retry_delay: 250ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wasm", cfg.Kind)
	assert.Equal(t, "https://deno.land/x/deno_swc@v0.0.4/mod.ts", cfg.Locator)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Download.RetryDelay)

	t.Setenv("SWC_LOG_LEVEL", "warn")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPlainSwitches(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		dev   bool
		cache bool
	}{
		{"unset", nil, false, true},
		{"dev any value", map[string]string{"DEV": "yes"}, true, true},
		{"dev one", map[string]string{"DEV": "1"}, true, true},
		{"dev zero", map[string]string{"DEV": "0"}, false, true},
		{"dev empty", map[string]string{"DEV": ""}, false, true},
		{"cache off", map[string]string{"CACHE": "false"}, false, false},
		{"cache empty keeps default", map[string]string{"CACHE": ""}, false, true},
		{"prefixed wins", map[string]string{"DEV": "1", "SWC_DEV": "false"}, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tc.dev, cfg.Dev)
			assert.Equal(t, tc.cache, cfg.Cache)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Kind = "ffi"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Download.MaxRetries = -1
	assert.Error(t, cfg.Validate())
}

func TestSwitch(t *testing.T) {
	assert.True(t, Switch("on"))
	assert.True(t, Switch("TRUE"))
	assert.False(t, Switch("F"))
	assert.False(t, Switch("  "))
}
