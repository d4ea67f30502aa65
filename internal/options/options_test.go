package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Register(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefaults(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, Load(fs))
	assert.Equal(t, "homeassistant/", Flags.MqttTopicPrefix)
	assert.Equal(t, DEFAULT_RETRIES, Flags.Retries)
	assert.Equal(t, MQTT_DEFAULT_TIMEOUT, Flags.MqttTimeout)
	assert.False(t, Flags.FetchDeviceInfo)
	assert.Empty(t, Flags.MqttHost)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("SWITCHBOT_MQTT_MQTT_HOST", "broker.lan")
	t.Setenv("SWITCHBOT_MQTT_RETRIES", "5")
	t.Setenv("SWITCHBOT_MQTT_MQTT_TIMEOUT", "3s")
	fs := newFlagSet(t, "--retries", "2")
	require.NoError(t, Load(fs))
	assert.Equal(t, "broker.lan", Flags.MqttHost)
	assert.Equal(t, 3*time.Second, Flags.MqttTimeout)
	// command line wins
	assert.Equal(t, 2, Flags.Retries)
}

func TestFetchDeviceInfoEnvironment(t *testing.T) {
	t.Setenv(FETCH_DEVICE_INFO_ENV, "1")
	fs := newFlagSet(t)
	require.NoError(t, Load(fs))
	assert.True(t, Flags.FetchDeviceInfo)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchbot-mqtt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt-port: 1884\nmqtt-topic-prefix: \"home/\"\nembedded-broker: true\n"), 0o600))
	fs := newFlagSet(t, "--config", path)
	require.NoError(t, Load(fs))
	assert.Equal(t, 1884, Flags.MqttPort)
	assert.Equal(t, "home/", Flags.MqttTopicPrefix)
	assert.True(t, Flags.EmbeddedBroker)
}

func TestMissingConfigFile(t *testing.T) {
	fs := newFlagSet(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, Load(fs))
}

func TestReadPasswordFile(t *testing.T) {
	dir := t.TempDir()
	for content, expected := range map[string]string{
		"secret":       "secret",
		"secret\n":     "secret",
		"secret\r\n":   "secret",
		"secret\n\n":   "secret\n",
		" secret \r\n": " secret ",
		"":             "",
	} {
		path := filepath.Join(dir, "password")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		password, err := ReadPasswordFile(path)
		require.NoError(t, err)
		assert.Equal(t, expected, password, "content %q", content)
	}

	_, err := ReadPasswordFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestMqttPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	newFlagSet(t, "--mqtt-password", "inline")
	password, err := MqttPassword()
	require.NoError(t, err)
	assert.Equal(t, "inline", password)

	newFlagSet(t, "--mqtt-password-file", path)
	password, err = MqttPassword()
	require.NoError(t, err)
	assert.Equal(t, "from-file", password)

	newFlagSet(t, "--mqtt-password", "inline", "--mqtt-password-file", path)
	_, err = MqttPassword()
	assert.ErrorIs(t, err, ErrPasswordConflict)
}
