// Package broker runs an MQTT broker inside the daemon, for setups without one.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/grandcat/zeroconf"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/hooks/debug"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/spf13/viper"
)

const ZEROCONF_SERVICE = "_mqtt._tcp"

type Options struct {
	// Address to listen on, e.g. "0.0.0.0:1883"
	Address string
	// Port advertised over mDNS
	Port int
	// Instance name advertised over mDNS, defaults to the hostname
	Instance string
	Info     []string
	NoMdns   bool
	// ClientLogInterval > 0 periodically logs connected clients
	ClientLogInterval time.Duration
	Debug             bool
}

type Broker struct {
	server *mochi.Server
	mdns   *zeroconf.Server
	log    logr.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// Start starts the broker, which runs until ctx is done or Close is called.
func Start(ctx context.Context, log logr.Logger, options Options, v *viper.Viper) (*Broker, error) {
	log = log.WithName("MqttBroker")
	log.Info("Starting embedded MQTT broker", "address", options.Address, "no_mdns", options.NoMdns)

	opts := loadBrokerConfig(log, v)
	opts.Logger = slog.New(logr.ToSlogHandler(log))
	opts.InlineClient = true
	server := mochi.New(opts)

	if options.Debug {
		err := server.AddHook(&debug.Hook{
			Log: slog.New(logr.ToSlogHandler(log.WithName("debug"))),
		}, &debug.Options{
			ShowPacketData: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add MQTT debug hook: %w", err)
		}
	}

	// Allow all connections.
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add MQTT auth hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "tcp",
		Address: options.Address,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", options.Address, err)
	}
	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("failed to start MQTT broker: %w", err)
	}
	log.Info("Now listening for MQTT connections", "address", options.Address)

	ctx, cancel := context.WithCancel(ctx)
	b := &Broker{
		server: server,
		log:    log,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if !options.NoMdns {
		instance := options.Instance
		if instance == "" {
			instance, _ = os.Hostname()
		}
		mdns, err := zeroconf.Register(instance, ZEROCONF_SERVICE, "local.", options.Port, options.Info, nil)
		if err != nil {
			cancel()
			b.shutdown()
			return nil, fmt.Errorf("failed to publish MQTT broker over mDNS: %w", err)
		}
		b.mdns = mdns
		log.Info("Published MQTT broker over mDNS", "instance", instance, "service", ZEROCONF_SERVICE, "port", options.Port)
	}

	if options.ClientLogInterval > 0 {
		go b.monitor(ctx, options.ClientLogInterval)
	}

	go func() {
		<-ctx.Done()
		b.shutdown()
		close(b.done)
	}()

	return b, nil
}

func (b *Broker) monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clients := b.server.Clients.GetAll()
			ids := make([]string, 0, len(clients))
			for id := range clients {
				ids = append(ids, id)
			}
			b.log.Info("MQTT broker connected clients", "count", len(clients), "client_ids", ids)
		}
	}
}

// Publish injects a message as if sent by a client.
func (b *Broker) Publish(topic string, payload []byte, retain bool) error {
	return b.server.Publish(topic, payload, retain, 0)
}

// Close stops the broker, withdraws its mDNS announcement and waits for
// the shutdown to complete.
func (b *Broker) Close() {
	b.cancel()
	<-b.done
}

func (b *Broker) shutdown() {
	b.log.Info("Shutting down MQTT broker")
	if b.mdns != nil {
		b.mdns.Shutdown()
	}
	if err := b.server.Close(); err != nil {
		b.log.Error(err, "Failed to close MQTT broker")
	}
}
