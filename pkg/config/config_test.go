package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "GATEWAY_TYPE", "CONNECT_TIMEOUT", "TICK_QUEUE_SIZE", "UNIVERSE", "DRY_RUN"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "CTP", cfg.GatewayType)
	assert.Equal(t, 300*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 4096, cfg.TickQueueSize)
	assert.Empty(t, cfg.Universe)
	assert.False(t, cfg.DryRun)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GATEWAY_TYPE", "ctp")
	t.Setenv("CONNECT_TIMEOUT", "45")
	t.Setenv("SNAPSHOT_SETTLE", "250ms")
	t.Setenv("UNIVERSE", " RB1810, IF1809 ,")
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "CTP", cfg.GatewayType)
	assert.Equal(t, 45*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.SnapshotSettle)
	assert.Equal(t, []string{"RB1810", "IF1809"}, cfg.Universe)
	assert.True(t, cfg.DryRun)
}

const sampleSettings = `
gateways:
  CTP:
    userID: "000000"
    brokerID: "9999"
    tdAddress: "tcp://127.0.0.1:10030"
commission:
  default: {open: 0.000023, closeToday: 0.000345, closeYesterday: 0.000023, multiplier: 300}
  instruments:
    rb1810: {open: 0.0001, closeToday: 0.0002, closeYesterday: 0.0001}
`

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSettings), 0o600))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	gw := s.Gateway("ctp")
	assert.Equal(t, "9999", gw["brokerID"])
	assert.Empty(t, s.Gateway("XTP"))

	rb := s.Commission.Rate("RB1810")
	assert.Equal(t, 0.0002, rb.CloseToday)
	assert.Equal(t, 1.0, rb.Multiplier)
	assert.Equal(t, 300.0, s.Commission.Rate("IF1809").Multiplier)
}

func TestLoadSettingsErrors(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateways: [oops"), 0o600))
	_, err = LoadSettings(path)
	require.Error(t, err)
}
