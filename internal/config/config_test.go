// filepath: internal/config/config_test.go
package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		hasError bool
	}{
		{"10MB", 10 * 1024 * 1024, false},
		{"512KB", 512 * 1024, false},
		{"1GB", 1 * 1024 * 1024 * 1024, false},
		{"100", 100, false},
		{"1024B", 1024, false},
		{" 2 MB ", 2097152, false},
		{"3mb", 3145728, false},
		{"invalid", 0, true},
		{"10XB", 0, true},
		{"-10MB", 0, true},
	}

	for _, tc := range tests {
		val, err := parseSize(tc.input)
		if tc.hasError {
			assert.Error(t, err, "Expected error for input: %s", tc.input)
		} else {
			assert.NoError(t, err, "Unexpected error for input: %s", tc.input)
			assert.Equal(t, tc.expected, val, "Mismatch for input: %s", tc.input)
		}
	}
}

func TestConfig_ParseAndValidate(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg := &Config{}
		err := cfg.ParseAndValidate()
		assert.NoError(t, err)
		assert.Equal(t, int64(32*1024*1024), cfg.MaxRequestBytes)
		assert.Equal(t, "gallery_images", cfg.Persistence.Table)
		assert.Equal(t, "touch_heartbeat", cfg.Persistence.HeartbeatRPC)
		assert.Equal(t, PayloadDataURI, cfg.Upload.PayloadMode)
		assert.Equal(t, 3, cfg.StoreMaxRetries)
		assert.Equal(t, time.Second, cfg.StoreBaseDelay)
		assert.Equal(t, 100, cfg.Upload.MaxTitleLength)
		assert.Zero(t, cfg.KeepaliveInterval)
		assert.False(t, cfg.PersistenceEnabled())
	})

	t.Run("URL Implies Supabase Driver", func(t *testing.T) {
		cfg := &Config{Persistence: PersistenceConfig{URL: "https://x.supabase.co", AnonKey: "k"}}
		assert.NoError(t, cfg.ParseAndValidate())
		assert.Equal(t, DriverSupabase, cfg.Persistence.Driver)
		assert.True(t, cfg.PersistenceEnabled())
	})

	t.Run("Supabase Without Key Is Disabled", func(t *testing.T) {
		cfg := &Config{Persistence: PersistenceConfig{Driver: DriverSupabase, URL: "https://x.supabase.co"}}
		assert.NoError(t, cfg.ParseAndValidate())
		assert.False(t, cfg.PersistenceEnabled())
	})

	t.Run("Zero Retries Is Kept", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("[store]\nmax_retries = 0\n"), 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.NoError(t, cfg.ParseAndValidate())
		assert.Equal(t, 0, cfg.StoreMaxRetries)
	})

	t.Run("Trusted Proxies", func(t *testing.T) {
		cfg := &Config{Server: ServerConfig{TrustedProxies: []string{"10.0.0.0/8", "192.0.2.10", "::1"}}}
		require.NoError(t, cfg.ParseAndValidate())
		require.Len(t, cfg.TrustedProxyNets, 3)
		assert.True(t, cfg.TrustedProxyNets[0].Contains(net.ParseIP("10.20.30.40")))
		assert.True(t, cfg.TrustedProxyNets[1].Contains(net.ParseIP("192.0.2.10")))
		assert.False(t, cfg.TrustedProxyNets[1].Contains(net.ParseIP("192.0.2.11")))
		assert.True(t, cfg.TrustedProxyNets[2].Contains(net.ParseIP("::1")))
	})

	t.Run("Profile Overrides", func(t *testing.T) {
		cfg := &Config{Profiles: map[string]ProfileConfig{
			"desktop": {MaxSize: "4MB", MaxUploadSize: "20MB", Timeout: "20s"},
		}}
		assert.NoError(t, cfg.ParseAndValidate())
		p := cfg.Profiles["desktop"]
		assert.Equal(t, int64(4*1024*1024), p.MaxBytes)
		assert.Equal(t, int64(20*1024*1024), p.MaxUploadBytes)
		assert.Equal(t, 20*time.Second, p.TimeoutDur)
	})

	t.Run("Invalid Values", func(t *testing.T) {
		negative := -1
		cases := map[string]*Config{
			"invalid max_request_size":   {Server: ServerConfig{MaxRequestSize: "NotASize"}},
			"invalid persistence driver": {Persistence: PersistenceConfig{Driver: "mongo"}},
			"invalid payload_mode":       {Upload: UploadConfig{PayloadMode: "path"}},
			"invalid base_delay":         {Store: StoreConfig{BaseDelay: "soon"}},
			"invalid store max_retries":  {Store: StoreConfig{MaxRetries: &negative}},
			"invalid trusted proxy":      {Server: ServerConfig{TrustedProxies: []string{"gateway"}}},
			"quality must be within":     {Profiles: map[string]ProfileConfig{"mobile": {Quality: 1.5}}},
		}
		for want, cfg := range cases {
			err := cfg.ParseAndValidate()
			if assert.Error(t, err, want) {
				assert.Contains(t, err.Error(), want)
			}
		}
	})
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := &Config{
		Server:      ServerConfig{Port: 9090},
		Persistence: PersistenceConfig{Driver: DriverSQLite, DatabasePath: "gallery.db"},
	}
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, loaded.Server.Port)
	assert.Equal(t, "gallery.db", loaded.Persistence.DatabasePath)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, os.IsNotExist(err))
}
