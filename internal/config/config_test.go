// internal/config/config_test.go
package config

import (
	"path/filepath"
	"testing"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	agent := cfg.Agent()
	assert.Equal(t, 50, agent.MaxSteps)
	assert.Equal(t, schemas.ScopeRead, agent.DefaultScope)
	assert.True(t, agent.ConfirmationRequired)
	assert.False(t, agent.EnforceScope)
	assert.Equal(t, 2.0, agent.ActionsPerSecond)
	assert.Equal(t, 45*time.Second, agent.StepTimeout)

	assert.True(t, cfg.Browser().Headless)
	assert.True(t, cfg.Browser().Humanoid.Enabled)
	assert.Equal(t, 5, cfg.Browser().Humanoid.ScrollIncrements)

	recovery := cfg.Recovery()
	assert.True(t, recovery.Enabled)
	assert.Equal(t, time.Second, recovery.BaseWait)
	assert.Equal(t, 10*time.Second, recovery.MaxWait)
	assert.Equal(t, 400, recovery.ScrollAmount)

	assert.Equal(t, 0.4, cfg.Perception().MinTextConfidence)
	assert.Equal(t, "info", cfg.Logger().Level)
}

func TestNewConfigFromViper_OverridesApply(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("agent.max_steps", 12)
	v.Set("agent.default_scope", "submit")
	v.Set("browser.headless", false)
	v.Set("recovery.base_wait", "250ms")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Agent().MaxSteps)
	assert.Equal(t, schemas.ScopeSubmit, cfg.Agent().DefaultScope)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.Recovery().BaseWait)
}

func TestNewConfigFromViper_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		value   any
		wantErr string
	}{
		{"zero max steps", "agent.max_steps", 0, "max_steps"},
		{"unknown scope", "agent.default_scope", "root", "default_scope"},
		{"non-positive rate", "agent.actions_per_second", 0.0, "actions_per_second"},
		{"wait bounds inverted", "recovery.max_wait", "1ms", "base_wait"},
		{"click hold inverted", "browser.humanoid.click_hold_max_ms", 1, "click hold"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tc.key, tc.value)

			_, err := NewConfigFromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSettersMutateThroughInterface(t *testing.T) {
	var cfg Interface = NewDefaultConfig()

	cfg.SetAgentMaxSteps(7)
	cfg.SetAgentScope(schemas.ScopeWrite)
	cfg.SetAgentConfirmationRequired(false)
	cfg.SetAgentAllowedDomains([]string{"example.com"})
	cfg.SetBrowserHeadless(false)
	cfg.SetBrowserHumanoidEnabled(false)

	assert.Equal(t, 7, cfg.Agent().MaxSteps)
	assert.Equal(t, schemas.ScopeWrite, cfg.Agent().DefaultScope)
	assert.False(t, cfg.Agent().ConfirmationRequired)
	assert.Equal(t, []string{"example.com"}, cfg.Agent().AllowedDomains)
	assert.False(t, cfg.Browser().Headless)
	assert.False(t, cfg.Browser().Humanoid.Enabled)
}

func TestResolveMemoryPath(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	agent := AgentConfig{MemoryPath: "~/.taskpilot/memory.json"}
	resolved, err := agent.ResolveMemoryPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".taskpilot", "memory.json"), resolved)

	agent.MemoryPath = "/var/lib/taskpilot/../taskpilot/memory.json"
	resolved, err = agent.ResolveMemoryPath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/taskpilot/memory.json", resolved)
}
