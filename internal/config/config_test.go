package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-gateway/internal/config"
	"github.com/kagenti/mcp-gateway/internal/model"
)

const sampleYAML = `
mcp_configs:
  - name: demo
    tenantname: t1
    servers:
      - name: A
        type: sse
        url: http://upstream.example/sse
        policy: on_start
    routers:
      - prefix: demo-prefix
        server: A
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoader_Load_DecodesMcpConfigs(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	loader, err := config.NewLoader(path)
	require.NoError(t, err)

	configs, err := loader.Load()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "demo", configs[0].Name)
	assert.Equal(t, "t1", configs[0].TenantName)
	require.Len(t, configs[0].Servers, 1)
	assert.Equal(t, "A", configs[0].Servers[0].Name)
	require.Len(t, configs[0].Routers, 1)
	assert.Equal(t, "demo-prefix", configs[0].Routers[0].Prefix)
}

// TestLoader_RegisterObserver_AcceptsObserver confirms a Loader satisfies
// the construction side of the Observer fan-out without depending on
// fsnotify's file-watch timing, which the original config package only
// covers at the manual-testing level, not in unit tests either.
func TestLoader_RegisterObserver_AcceptsObserver(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	loader, err := config.NewLoader(path)
	require.NoError(t, err)

	loader.RegisterObserver(recordingObserver{})
}

type recordingObserver struct{}

func (recordingObserver) OnConfigChange(configs []*model.McpConfig) { _ = configs }
