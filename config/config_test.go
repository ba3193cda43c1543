package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	settings, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultBufSize, settings.Tune.BufSize)
	assert.Equal(t, DefaultMaxPipes, settings.Tune.MaxPipes)
	assert.Equal(t, DefaultClientTimeout, settings.ClientTimeout)
	assert.Equal(t, DefaultMaxReadPollLoops, settings.Tune.MaxReadPollLoops)
}

func TestLoadConfigMissingFilesIgnored(t *testing.T) {
	settings, err := LoadConfig([]string{"/nonexistent/proxy.conf"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTune(), settings.Tune)
}

func TestLoadConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.conf")
	content := `[proxy]
listen = :9999
backend = 10.0.0.1:80
client_timeout_ms = 5000

[tune]
bufsize = 32768
maxpipes = 64
recv_enough = 8192
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	settings, err := LoadConfig([]string{path})
	require.NoError(t, err)

	assert.Equal(t, ":9999", settings.ListenAddr)
	assert.Equal(t, "10.0.0.1:80", settings.BackendAddr)
	assert.Equal(t, 5*time.Second, settings.ClientTimeout)
	assert.Equal(t, 32768, settings.Tune.BufSize)
	assert.Equal(t, 64, settings.Tune.MaxPipes)
	assert.Equal(t, 8192, settings.Tune.RecvEnough)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultSpliceFullHint, settings.Tune.SpliceFullHint)
	assert.Equal(t, DefaultServerTimeout, settings.ServerTimeout)
}

func TestLoadConfigRejectsBadTunables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.conf")
	require.NoError(t, os.WriteFile(path, []byte("[tune]\nbufsize = 16\n"), 0o644))

	_, err := LoadConfig([]string{path})
	assert.Error(t, err)
}
