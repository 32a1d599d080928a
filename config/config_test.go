package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:5555", cfg.Endpoint)
	assert.Equal(t, 100*time.Millisecond, cfg.TickPeriod)
	assert.Equal(t, 100*time.Millisecond, cfg.ReceiveTimeout)
	assert.Equal(t, time.Second, cfg.SendTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 2*time.Second, cfg.DialTimeout)
	assert.Equal(t, 3, cfg.ReconnectFailures)
	assert.Equal(t, 5*time.Second, cfg.ReconnectCooldown)
	assert.Equal(t, PubSubMemory, cfg.PubSub)
	assert.Equal(t, "vehicle", cfg.AMQP.Exchange)
	assert.Equal(t, "vehicle_state", cfg.AMQP.InboundKey)
	assert.Equal(t, "remote_vehicle_state", cfg.AMQP.OutboundKey)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("NETBRIDGE_ENDPOINT", "tcp://10.0.0.5:6000")
	t.Setenv("NETBRIDGE_TICK_PERIOD", "50ms")
	t.Setenv("NETBRIDGE_PUBSUB", "mqtt")
	t.Setenv("NETBRIDGE_MQTT_INBOUND_TOPIC", "car/state")
	t.Setenv("NETBRIDGE_MQTT_QOS", "1")
	t.Setenv("NETBRIDGE_AMQP_QUEUE_DEPTH", "32")
	t.Setenv("NETBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "tcp://10.0.0.5:6000", cfg.Endpoint)
	assert.Equal(t, 50*time.Millisecond, cfg.TickPeriod)
	assert.Equal(t, PubSubMQTT, cfg.PubSub)
	assert.Equal(t, "car/state", cfg.MQTT.InboundTopic)
	assert.Equal(t, uint8(1), cfg.MQTT.QoS)
	assert.Equal(t, 32, cfg.AMQP.QueueDepth)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 50*time.Millisecond, cfg.EffectiveReceiveTimeout())
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NETBRIDGE_HTTP_ADDR=:9090\nNETBRIDGE_SEND_TIMEOUT=250ms\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("NETBRIDGE_HTTP_ADDR")
		os.Unsetenv("NETBRIDGE_SEND_TIMEOUT")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.SendTimeout)
}

func TestLoad_MalformedValue(t *testing.T) {
	t.Setenv("NETBRIDGE_TICK_PERIOD", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"empty endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint must not be empty"},
		{"bad endpoint", func(c *Config) { c.Endpoint = "localhost:5555" }, "endpoint"},
		{"zero tick", func(c *Config) { c.TickPeriod = 0 }, "tick period must be positive"},
		{"negative send timeout", func(c *Config) { c.SendTimeout = -time.Second }, "send timeout must be positive"},
		{"no reconnect failures", func(c *Config) { c.ReconnectFailures = 0 }, "reconnect failures"},
		{"unknown pubsub", func(c *Config) { c.PubSub = "kafka" }, `unknown pubsub mode "kafka"`},
		{"amqp without url", func(c *Config) { c.PubSub = PubSubAMQP; c.AMQP.URL = "" }, "amqp url"},
		{"mqtt bad qos", func(c *Config) { c.PubSub = PubSubMQTT; c.MQTT.QoS = 3 }, "mqtt qos"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.msg)
		})
	}

	t.Run("all problems are reported together", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Endpoint = ""
		cfg.PubSub = "kafka"
		err := cfg.Validate()
		assert.ErrorContains(t, err, "endpoint")
		assert.ErrorContains(t, err, "pubsub")
	})
}

func TestEffectiveReceiveTimeout(t *testing.T) {
	cfg := &Config{TickPeriod: 100 * time.Millisecond, ReceiveTimeout: time.Second}
	assert.Equal(t, 100*time.Millisecond, cfg.EffectiveReceiveTimeout())

	cfg.ReceiveTimeout = 10 * time.Millisecond
	assert.Equal(t, 10*time.Millisecond, cfg.EffectiveReceiveTimeout())
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "kind", "send")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"kind":"send"`)

	_, err = LogConfig{Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)
}
