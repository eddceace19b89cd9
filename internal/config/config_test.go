package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.AutoConfirm)
	assert.Equal(t, 25, cfg.MaxAgentIterations)
	assert.Equal(t, ProviderAnthropic, cfg.Provider)
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auto_confirm: true
max_agent_iterations: 10
provider: openai
credential_env_var: OPENAI_API_KEY
tool_deny_list: ["shell"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.AutoConfirm)
	assert.Equal(t, 10, cfg.MaxAgentIterations)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, []string{"shell"}, cfg.ToolDenyList)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaults(), cfg)
}

func TestValidate_RejectsConflictingAllowDenyLists(t *testing.T) {
	cfg := defaults()
	cfg.ToolAllowList = []string{"shell"}
	cfg.ToolDenyList = []string{"shell"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := defaults()
	cfg.Provider = "mistral"
	assert.Error(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTCORE_AUTO_CONFIRM", "true")
	t.Setenv("AGENTCORE_MAX_ITERATIONS", "7")
	t.Setenv("AGENTCORE_PROVIDER", "openai")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.AutoConfirm)
	assert.Equal(t, 7, cfg.MaxAgentIterations)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
}
