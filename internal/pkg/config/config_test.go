package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddress)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "default", cfg.GizwitsCfg.Region)
	assert.True(t, cfg.GizwitsCfg.Ssl)
	assert.Equal(t, 30*time.Second, cfg.GizwitsCfg.PollInterval)
	assert.Equal(t, 3, cfg.GizwitsCfg.PollFailureThreshold)
	assert.Equal(t, 180*time.Second, cfg.GizwitsCfg.HeartbeatInterval)
	assert.Empty(t, cfg.GizwitsCfg.ProductTypes)
	assert.Equal(t, "gizwits", cfg.MqttCfg.TopicPrefix)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("GIZWITS_USERNAME", "user@example.com")
	t.Setenv("GIZWITS_PASSWORD", "secret")
	t.Setenv("GIZWITS_APP_ID", "app-id-1")
	t.Setenv("GIZWITS_REGION", "eu")
	t.Setenv("GIZWITS_SSL", "false")
	t.Setenv("GIZWITS_PRODUCT_TYPES", "Vesta,Tuya")
	t.Setenv("POLL_INTERVAL", "45s")
	t.Setenv("HEARTBEAT_INTERVAL", "2m")
	t.Setenv("LISTEN_ADDRESS", "127.0.0.1:9000")
	t.Setenv("MQTT_HOST", "tcp://broker:1883")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", cfg.GizwitsCfg.Username)
	assert.Equal(t, "secret", cfg.GizwitsCfg.Password)
	assert.Equal(t, "app-id-1", cfg.GizwitsCfg.AppID)
	assert.Equal(t, "eu", cfg.GizwitsCfg.Region)
	assert.False(t, cfg.GizwitsCfg.Ssl)
	assert.Equal(t, []string{"Vesta", "Tuya"}, cfg.GizwitsCfg.ProductTypes)
	assert.Equal(t, 45*time.Second, cfg.GizwitsCfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.GizwitsCfg.HeartbeatInterval)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	assert.Equal(t, "tcp://broker:1883", cfg.MqttCfg.Host)
}

func TestFromEnv_InvalidDuration(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "not-a-duration")
	_, err := FromEnv()
	assert.Error(t, err)
}
