package broker

import (
	"github.com/go-logr/logr"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/spf13/viper"
)

// loadBrokerConfig reads the mqtt.broker section of the configuration
// into mochi options, falling back to defaults.
func loadBrokerConfig(log logr.Logger, v *viper.Viper) *mochi.Options {
	config := &mochi.Options{
		Capabilities: mochi.NewDefaultServerCapabilities(),
	}

	if v != nil && v.IsSet("mqtt.broker") {
		if err := v.UnmarshalKey("mqtt.broker", config); err != nil {
			log.Error(err, "Failed to unmarshal MQTT broker config, using defaults")
			return &mochi.Options{Capabilities: mochi.NewDefaultServerCapabilities()}
		}
		if config.Capabilities == nil {
			config.Capabilities = mochi.NewDefaultServerCapabilities()
		}
		log.Info("MQTT broker configuration loaded from config file")
	}

	log.V(1).Info("MQTT broker options",
		"client_net_write_buffer_size", config.ClientNetWriteBufferSize,
		"client_net_read_buffer_size", config.ClientNetReadBufferSize,
		"sys_topic_resend_interval", config.SysTopicResendInterval)

	return config
}
