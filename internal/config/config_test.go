package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Matches the defaults when nothing is set", func(t *testing.T) {
		cfg, err := Load()

		require.Nil(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("Reads the INSTANA variables", func(t *testing.T) {
		t.Setenv("INSTANA_AGENT_HOST", "agent.local")
		t.Setenv("INSTANA_AGENT_PORT", "42700")
		t.Setenv("INSTANA_SERVICE_NAME", "orders")
		t.Setenv("INSTANA_DISABLE_AUTO_INSTR", "true")
		t.Setenv("INSTANA_TRANSMISSION_DELAY", "250ms")
		t.Setenv("INSTANA_AUTO_END_TIMEOUT", "30s")
		t.Setenv("INSTANA_EXPORTER", "OTLP")
		t.Setenv("INSTANA_AGENT_RETRIES", "2")
		t.Setenv("INSTANA_AGENT_RETRY_WAIT_MIN", "10ms")

		cfg, err := Load()

		require.Nil(t, err)
		assert.Equal(t, "agent.local", cfg.Agent.Host)
		assert.Equal(t, 42700, cfg.Agent.Port)
		assert.Equal(t, "orders", cfg.Tracing.ServiceName)
		assert.True(t, cfg.Tracing.DisableAutoInstr)
		assert.False(t, cfg.Tracing.Disabled)
		assert.Equal(t, 250*time.Millisecond, cfg.Transmission.TransmissionDelay)
		assert.Equal(t, 30*time.Second, cfg.Tracing.AutoEndTimeout)
		assert.Equal(t, ExporterOTLP, cfg.Exporter.Kind)
		assert.Equal(t, 2, cfg.Agent.Retries)
		assert.Equal(t, 10*time.Millisecond, cfg.Agent.RetryWaitMin)
		assert.Equal(t, 30*time.Second, cfg.Agent.RetryWaitMax)
	})

	t.Run("Rejects an unknown exporter", func(t *testing.T) {
		t.Setenv("INSTANA_EXPORTER", "zipkin")

		_, err := Load()

		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("Rejects a malformed port", func(t *testing.T) {
		t.Setenv("INSTANA_AGENT_PORT", "not-a-port")

		_, err := Load()

		assert.NotNil(t, err)
	})
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("Falls back to the defaults on invalid input", func(t *testing.T) {
		t.Setenv("INSTANA_MAX_BUFFERED_SPANS", "0")

		assert.Equal(t, Default(), LoadOrDefault())
	})
}
