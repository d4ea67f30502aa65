// Package options holds the command-line flags of switchbot-mqtt, merged
// with the environment and an optional configuration file.
package options

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/asnowfix/switchbot-mqtt/internal/global"
	"github.com/asnowfix/switchbot-mqtt/internal/topics"
	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const MDNS_LOOKUP_DEFAULT_TIMEOUT time.Duration = 7 * time.Second

const MQTT_DEFAULT_TIMEOUT time.Duration = 14 * time.Second

const MQTT_WATCHDOG_CHECK_INTERVAL time.Duration = 30 * time.Second

const MQTT_WATCHDOG_MAX_FAILURES int = 3

const MQTT_BROKER_CLIENT_LOG_INTERVAL time.Duration = 0

const DEFAULT_RETRIES = 3

const DEFAULT_EMBEDDED_BROKER_PORT = 1883

const ENV_PREFIX = "SWITCHBOT_MQTT"

// FETCH_DEVICE_INFO_ENV enables --fetch-device-info when set to any non-empty value.
const FETCH_DEVICE_INFO_ENV = "FETCH_DEVICE_INFO"

var ErrPasswordConflict = errors.New("--mqtt-password and --mqtt-password-file are mutually exclusive")

var Flags struct {
	ConfigFile                  string
	Verbose                     bool
	Debug                       bool
	MqttHost                    string
	MqttPort                    int
	MqttUsername                string
	MqttPassword                string
	MqttPasswordFile            string
	MqttEnableTLS               bool
	MqttTopicPrefix             string
	MqttTimeout                 time.Duration // the value taken by --mqtt-timeout
	MdnsTimeout                 time.Duration // the value taken by --mdns-timeout
	MqttWatchdogInterval        time.Duration // the value taken by --mqtt-watchdog-interval
	MqttWatchdogMaxFailures     int           // the value taken by --mqtt-watchdog-max-failures
	MqttBrokerClientLogInterval time.Duration // the value taken by --mqtt-broker-client-log-interval
	DevicePasswordFile          string
	Retries                     int
	FetchDeviceInfo             bool
	EmbeddedBroker              bool
	EmbeddedBrokerPort          int
	NoMdns                      bool
	MetricsAddr                 string
}

// ViperConfig is the merged configuration, also read by components that
// take settings not exposed as flags (e.g. the mqtt.broker section).
var ViperConfig = viper.New()

// Register declares the flags on fs, bound to Flags.
func Register(fs *pflag.FlagSet) {
	fs.StringVar(&Flags.ConfigFile, "config", "", "read settings from `file` (YAML, JSON or TOML)")
	fs.BoolVarP(&Flags.Verbose, "verbose", "v", false, "verbose output")
	fs.BoolVar(&Flags.Debug, "debug", false, "debug output")
	fs.StringVar(&Flags.MqttHost, "mqtt-host", "", "MQTT broker host name or IP address (looked up over mDNS if empty)")
	fs.IntVar(&Flags.MqttPort, "mqtt-port", 0, "MQTT broker port (default 1883, or 8883 with TLS)")
	fs.StringVar(&Flags.MqttUsername, "mqtt-username", "", "MQTT user name")
	fs.StringVar(&Flags.MqttPassword, "mqtt-password", "", "MQTT password")
	fs.StringVar(&Flags.MqttPasswordFile, "mqtt-password-file", "", "read the MQTT password from `file` (one trailing newline stripped)")
	fs.BoolVar(&Flags.MqttEnableTLS, "mqtt-enable-tls", false, "connect to the MQTT broker over TLS")
	fs.StringVar(&Flags.MqttTopicPrefix, "mqtt-topic-prefix", topics.DefaultPrefix, "prepended verbatim to every MQTT topic")
	fs.DurationVar(&Flags.MqttTimeout, "mqtt-timeout", MQTT_DEFAULT_TIMEOUT, "timeout for MQTT connection and operations")
	fs.DurationVar(&Flags.MdnsTimeout, "mdns-timeout", MDNS_LOOKUP_DEFAULT_TIMEOUT, "timeout for looking up the MQTT broker over mDNS")
	fs.DurationVar(&Flags.MqttWatchdogInterval, "mqtt-watchdog-interval", MQTT_WATCHDOG_CHECK_INTERVAL, "interval between MQTT connection checks")
	fs.IntVar(&Flags.MqttWatchdogMaxFailures, "mqtt-watchdog-max-failures", MQTT_WATCHDOG_MAX_FAILURES, "consecutive failed MQTT connection checks before exiting")
	fs.DurationVar(&Flags.MqttBrokerClientLogInterval, "mqtt-broker-client-log-interval", MQTT_BROKER_CLIENT_LOG_INTERVAL, "interval between logs of the embedded broker's clients (0 to disable)")
	fs.StringVar(&Flags.DevicePasswordFile, "device-password-file", "", "JSON or YAML `file` mapping device MAC addresses to passwords")
	fs.IntVar(&Flags.Retries, "retries", DEFAULT_RETRIES, "maximum number of attempts to send a command to a device")
	fs.BoolVar(&Flags.FetchDeviceInfo, "fetch-device-info", false, "report battery level and curtain position after commands (also enabled by the "+FETCH_DEVICE_INFO_ENV+" environment variable)")
	fs.BoolVar(&Flags.EmbeddedBroker, "embedded-broker", false, "start an embedded MQTT broker")
	fs.IntVar(&Flags.EmbeddedBrokerPort, "embedded-broker-port", DEFAULT_EMBEDDED_BROKER_PORT, "port of the embedded MQTT broker")
	fs.BoolVar(&Flags.NoMdns, "no-mdns", false, "do not publish the embedded MQTT broker over mDNS")
	fs.StringVar(&Flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics and health on `address` (e.g. :9100; disabled if empty)")
}

// Load merges the configuration file and SWITCHBOT_MQTT_* environment
// variables into Flags. Flags set on the command line take precedence.
func Load(fs *pflag.FlagSet) error {
	v := viper.New()
	ViperConfig = v
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	configFile, _ := fs.GetString("config")
	if configFile == "" {
		configFile = v.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	// copy back merged values of the flags not set on the command line
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		if e := fs.Set(f.Name, v.GetString(f.Name)); e != nil {
			err = fmt.Errorf("invalid value for %s: %w", f.Name, e)
		}
	})
	if err != nil {
		return err
	}

	if os.Getenv(FETCH_DEVICE_INFO_ENV) != "" {
		Flags.FetchDeviceInfo = true
	}
	return nil
}

// MqttPassword returns the MQTT password, read from --mqtt-password-file if given.
func MqttPassword() (string, error) {
	if Flags.MqttPasswordFile == "" {
		return Flags.MqttPassword, nil
	}
	if Flags.MqttPassword != "" {
		return "", ErrPasswordConflict
	}
	return ReadPasswordFile(Flags.MqttPasswordFile)
}

// ReadPasswordFile returns the content of path, without one trailing
// "\r\n" or "\n".
func ReadPasswordFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read password file: %w", err)
	}
	password := string(data)
	if p, ok := strings.CutSuffix(password, "\r\n"); ok {
		return p, nil
	}
	return strings.TrimSuffix(password, "\n"), nil
}

// CommandLineContext returns a context cancelled on SIGINT or SIGTERM.
func CommandLineContext(ctx context.Context, version string) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	ctx = context.WithValue(ctx, global.CancelKey, cancel)
	ctx = context.WithValue(ctx, global.VersionKey, version)

	go func() {
		log := logr.FromContextOrDiscard(ctx)
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)
		select {
		case <-signals:
			log.Info("Received signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
