// Package actors executes the commands received over MQTT on SwitchBot devices
// and reports their state back, following Home Assistant's MQTT Switch and
// MQTT Cover conventions.
package actors

import (
	"context"
	"errors"
	"strconv"

	"github.com/asnowfix/switchbot-mqtt/hlog"
	"github.com/asnowfix/switchbot-mqtt/internal/metrics"
	"github.com/asnowfix/switchbot-mqtt/internal/topics"
	"github.com/asnowfix/switchbot-mqtt/mymqtt"
	"github.com/asnowfix/switchbot-mqtt/pkg/switchbot"
	"github.com/go-logr/logr"
)

const QUEUE_LENGTH = 64

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler mymqtt.Handler) error
}

type PasswordLookup interface {
	Get(mac string) (string, bool)
}

type Settings struct {
	TopicPrefix     string
	Passwords       PasswordLookup
	FetchDeviceInfo bool
}

// route binds a topic pattern to the handler of the messages it matches.
type route struct {
	kind   string
	levels topics.Levels
	handle func(ctx context.Context, mac string, payload []byte) error
}

type job struct {
	route route
	msg   mymqtt.Message
}

// Dispatcher receives messages on behalf of all actors and handles them one at
// a time, as devices share a single Bluetooth adapter.
type Dispatcher struct {
	settings Settings
	log      logr.Logger
	routes   []route
	queue    chan job
}

func NewDispatcher(log logr.Logger, publisher Publisher, registry *Registry, settings Settings) *Dispatcher {
	if settings.Passwords == nil {
		settings.Passwords = noPasswords{}
	}
	log = log.WithName("Dispatcher")
	reporter := &reporter{
		prefix:    settings.TopicPrefix,
		publisher: publisher,
		log:       log,
	}
	d := &Dispatcher{
		settings: settings,
		log:      log,
		queue:    make(chan job, QUEUE_LENGTH),
	}
	button := &ButtonAutomator{
		reporter:  reporter,
		registry:  registry,
		passwords: settings.Passwords,
		log:       log.WithName("ButtonAutomator"),
	}
	curtain := &CurtainMotor{
		reporter:  reporter,
		registry:  registry,
		passwords: settings.Passwords,
		log:       log.WithName("CurtainMotor"),
	}
	d.routes = append(d.routes, button.routes(settings.FetchDeviceInfo)...)
	d.routes = append(d.routes, curtain.routes(settings.FetchDeviceInfo)...)
	return d
}

// Topics returns the topic patterns the dispatcher subscribes to.
func (d *Dispatcher) Topics() []string {
	out := make([]string, 0, len(d.routes))
	for _, r := range d.routes {
		out = append(out, topics.Join(d.settings.TopicPrefix, r.levels, "+"))
	}
	return out
}

// Subscribe registers all routes; the subscriber renews them on reconnection.
func (d *Dispatcher) Subscribe(ctx context.Context, subscriber Subscriber) error {
	for _, r := range d.routes {
		r := r
		topic := topics.Join(d.settings.TopicPrefix, r.levels, "+")
		d.log.Info("Subscribing to MQTT topic", "topic", topic)
		if err := subscriber.Subscribe(ctx, topic, func(msg mymqtt.Message) { d.enqueue(r, msg) }); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) enqueue(r route, msg mymqtt.Message) {
	select {
	case d.queue <- job{route: r, msg: msg}:
	default:
		metrics.MessagesReceived.WithLabelValues(r.kind, "dropped").Inc()
		d.log.Error(nil, "Dropping message, too many pending", "topic", msg.Topic, "pending", len(d.queue))
	}
}

// Run handles queued messages until ctx is done. It returns early if the
// Bluetooth adapter cannot be used for lack of permissions.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-d.queue:
			if err := d.handle(ctx, j.route, j.msg); err != nil {
				if errors.Is(err, switchbot.ErrPermissionDenied) {
					return err
				}
				hlog.ErrorIfNotCanceled(d.log, err, "Failed to handle message", "topic", j.msg.Topic)
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, r route, msg mymqtt.Message) error {
	d.log.V(1).Info("Received", "topic", msg.Topic, "payload", strconv.Quote(string(msg.Payload)))
	if msg.Retained {
		metrics.MessagesReceived.WithLabelValues(r.kind, "retained").Inc()
		d.log.Info("Ignoring retained message", "topic", msg.Topic)
		return nil
	}
	mac, err := topics.Parse(d.settings.TopicPrefix, msg.Topic, r.levels)
	if err != nil {
		metrics.MessagesReceived.WithLabelValues(r.kind, "invalid_topic").Inc()
		d.log.Info("Ignoring message", "reason", err.Error())
		return nil
	}
	if !topics.ValidMacAddress(mac) {
		metrics.MessagesReceived.WithLabelValues(r.kind, "invalid_mac").Inc()
		d.log.Info("Ignoring message with invalid MAC address", "topic", msg.Topic, "mac", mac)
		return nil
	}
	metrics.MessagesReceived.WithLabelValues(r.kind, "handled").Inc()
	return r.handle(ctx, mac, msg.Payload)
}

type noPasswords struct{}

func (noPasswords) Get(string) (string, bool) {
	return "", false
}
