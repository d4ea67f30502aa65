// Package daemon wires the MQTT client, the SwitchBot actors and the
// optional embedded broker and metrics server into the switchbot-mqtt daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/asnowfix/switchbot-mqtt/hlog"
	"github.com/asnowfix/switchbot-mqtt/internal/actors"
	"github.com/asnowfix/switchbot-mqtt/internal/broker"
	"github.com/asnowfix/switchbot-mqtt/internal/global"
	"github.com/asnowfix/switchbot-mqtt/internal/metrics"
	"github.com/asnowfix/switchbot-mqtt/internal/options"
	"github.com/asnowfix/switchbot-mqtt/internal/passwords"
	"github.com/asnowfix/switchbot-mqtt/mymqtt"
	"github.com/asnowfix/switchbot-mqtt/pkg/switchbot"
	"github.com/go-logr/logr"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// MAX_DEVICES bounds the number of device handles kept between messages.
const MAX_DEVICES = 256

type Config struct {
	Mqtt                    mymqtt.Options
	TopicPrefix             string
	DevicePasswordFile      string
	Retries                 int
	FetchDeviceInfo         bool
	EmbeddedBroker          bool
	EmbeddedBrokerPort      int
	BrokerClientLogInterval time.Duration
	NoMdns                  bool
	MetricsAddr             string
	WatchdogInterval        time.Duration
	WatchdogMaxFailures     int
	Debug                   bool
	Viper                   *viper.Viper
}

// ConfigFromFlags builds the daemon configuration from the command line.
func ConfigFromFlags() (Config, error) {
	password, err := options.MqttPassword()
	if err != nil {
		return Config{}, err
	}
	f := &options.Flags
	return Config{
		Mqtt: mymqtt.Options{
			Host:        f.MqttHost,
			Port:        f.MqttPort,
			Username:    f.MqttUsername,
			Password:    password,
			TLS:         f.MqttEnableTLS,
			Timeout:     f.MqttTimeout,
			MdnsTimeout: f.MdnsTimeout,
		},
		TopicPrefix:             f.MqttTopicPrefix,
		DevicePasswordFile:      f.DevicePasswordFile,
		Retries:                 f.Retries,
		FetchDeviceInfo:         f.FetchDeviceInfo,
		EmbeddedBroker:          f.EmbeddedBroker,
		EmbeddedBrokerPort:      f.EmbeddedBrokerPort,
		BrokerClientLogInterval: f.MqttBrokerClientLogInterval,
		NoMdns:                  f.NoMdns,
		MetricsAddr:             f.MetricsAddr,
		WatchdogInterval:        f.MqttWatchdogInterval,
		WatchdogMaxFailures:     f.MqttWatchdogMaxFailures,
		Debug:                   f.Debug,
		Viper:                   options.ViperConfig,
	}, nil
}

// Run runs the daemon until ctx is done or a component fails. A nil
// transport selects the host's Bluetooth adapter.
func Run(ctx context.Context, log logr.Logger, config Config, transport switchbot.Transport) error {
	log.Info("Starting", "version", global.Version(ctx), "fetch_device_info", config.FetchDeviceInfo, "retries", config.Retries)

	if transport == nil {
		transport = switchbot.NewBluetoothTransport(log)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if config.EmbeddedBroker {
		b, err := broker.Start(ctx, log, broker.Options{
			Address:           net.JoinHostPort("", strconv.Itoa(config.EmbeddedBrokerPort)),
			Port:              config.EmbeddedBrokerPort,
			Instance:          hlog.Program,
			NoMdns:            config.NoMdns,
			ClientLogInterval: config.BrokerClientLogInterval,
			Debug:             config.Debug,
		}, config.Viper)
		if err != nil {
			log.Error(err, "Failed to start embedded MQTT broker")
			return err
		}
		defer b.Close()
		if config.Mqtt.Host == "" {
			config.Mqtt.Host = "127.0.0.1"
			config.Mqtt.Port = config.EmbeddedBrokerPort
		}
	}

	store, err := passwords.Load(log, config.DevicePasswordFile)
	if err != nil {
		log.Error(err, "Failed to load device passwords", "path", config.DevicePasswordFile)
		return err
	}

	registry, err := actors.NewRegistry(log, transport, switchbot.Options{RetryCount: config.Retries}, MAX_DEVICES)
	if err != nil {
		return err
	}
	defer registry.Close()

	mc, err := mymqtt.NewClientE(ctx, log, config.Mqtt)
	if err != nil {
		log.Error(err, "Failed to initialize MQTT client")
		return err
	}
	defer mc.Close()

	dispatcher := actors.NewDispatcher(log, mc, registry, actors.Settings{
		TopicPrefix:     config.TopicPrefix,
		Passwords:       store,
		FetchDeviceInfo: config.FetchDeviceInfo,
	})
	// subscriptions are sent on (re)connection
	if err := dispatcher.Subscribe(ctx, mc); err != nil {
		return err
	}
	if err := mc.Connect(ctx); err != nil {
		hlog.ErrorIfNotCanceled(log, err, "Failed to connect to MQTT broker")
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return store.Watch(ctx)
	})
	g.Go(func() error {
		return mymqtt.NewWatchdog(log, mc, config.WatchdogInterval, config.WatchdogMaxFailures).Run(ctx)
	})
	if config.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.NewServer(log, config.MetricsAddr, mc.IsConnected).Run(ctx)
		})
	}

	log.Info("Running", "broker", mc.BrokerUrl(), "topics", dispatcher.Topics())
	err = g.Wait()
	if errors.Is(err, switchbot.ErrPermissionDenied) {
		log.Error(err, switchbot.PermissionHint)
		return fmt.Errorf("%s: %w", switchbot.PermissionHint, err)
	}
	if err != nil {
		log.Error(err, "Stopped")
		return err
	}
	log.Info("Shutting down")
	return nil
}
