package actors

import (
	"context"
	"errors"
	"strconv"

	"github.com/asnowfix/switchbot-mqtt/internal/metrics"
	"github.com/asnowfix/switchbot-mqtt/internal/topics"
	"github.com/asnowfix/switchbot-mqtt/pkg/switchbot"
	"github.com/go-logr/logr"
)

// reporter publishes retained device reports.
type reporter struct {
	prefix    string
	publisher Publisher
	log       logr.Logger
}

// publish logs failures instead of returning them: a lost report must not
// prevent the following ones.
func (r *reporter) publish(ctx context.Context, levels topics.Levels, mac string, payload []byte) {
	topic := topics.Join(r.prefix, levels, mac)
	r.log.V(1).Info("Publishing", "topic", topic, "payload", strconv.Quote(string(payload)))
	err := r.publisher.Publish(ctx, topic, payload, true)
	metrics.Publications.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		r.log.Error(err, "Failed to publish MQTT message", "topic", topic)
	}
}

func (r *reporter) reportBattery(ctx context.Context, levels topics.Levels, mac string, battery int) {
	metrics.BatteryPercentage.WithLabelValues(mac).Set(float64(battery))
	r.publish(ctx, levels, mac, []byte(strconv.Itoa(battery)))
}

func passwordOf(passwords PasswordLookup, mac string) string {
	password, _ := passwords.Get(mac)
	return password
}

// permanent keeps the errors that must stop the daemon, device failures
// having been logged already.
func permanent(err error) error {
	if errors.Is(err, switchbot.ErrPermissionDenied) || errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
