package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := &Config{
		Portal: PortalConfig{
			LoginURL: "https://portal.example/login",
			Username: "user@example.com",
			Password: "hunter2",
		},
		Cookies: []Cookie{
			{Name: "session", Value: "abc", Domain: "portal.example", Path: "/"},
		},
		MQTT: MQTTConfig{Enabled: true, Broker: "localhost:1883"},
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.Portal.LoginURL = "https://portal.example/login"
	assert.Error(t, cfg.Validate())

	cfg.Portal.Username = "user"
	cfg.Portal.Password = "pass"
	assert.NoError(t, cfg.Validate())
}

func TestTopicPrefixDefault(t *testing.T) {
	mqtt := MQTTConfig{}
	assert.Equal(t, "utility_usage", mqtt.GetTopicPrefix())

	mqtt.TopicPrefix = "meters"
	assert.Equal(t, "meters", mqtt.GetTopicPrefix())
}
