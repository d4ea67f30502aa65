package mymqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

const WATCHDOG_CHECK_INTERVAL = 30 * time.Second

const WATCHDOG_MAX_FAILURES = 3

type connectivity interface {
	IsConnected() bool
}

// Watchdog monitors the MQTT connection, which paho reconnects on its own.
type Watchdog struct {
	client        connectivity
	log           logr.Logger
	checkInterval time.Duration
	maxFailures   int
}

func NewWatchdog(log logr.Logger, client connectivity, checkInterval time.Duration, maxFailures int) *Watchdog {
	if checkInterval <= 0 {
		checkInterval = WATCHDOG_CHECK_INTERVAL
	}
	if maxFailures <= 0 {
		maxFailures = WATCHDOG_MAX_FAILURES
	}
	return &Watchdog{
		client:        client,
		log:           log.WithName("MqttWatchdog"),
		checkInterval: checkInterval,
		maxFailures:   maxFailures,
	}
}

// Run returns nil when ctx is done, or an error once the connection has been
// found down maxFailures consecutive times.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	consecutiveFailures := 0
	w.log.Info("Starting MQTT watchdog", "check_interval", w.checkInterval, "max_failures", w.maxFailures)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("MQTT watchdog stopped")
			return nil

		case <-ticker.C:
			if w.client.IsConnected() {
				if consecutiveFailures > 0 {
					w.log.Info("MQTT connection recovered", "previous_failures", consecutiveFailures)
					consecutiveFailures = 0
				}
				continue
			}
			consecutiveFailures++
			w.log.Error(nil, "MQTT connection down", "consecutive_failures", consecutiveFailures, "max_failures", w.maxFailures)
			if consecutiveFailures >= w.maxFailures {
				return fmt.Errorf("MQTT connection lost for %d consecutive checks", consecutiveFailures)
			}
		}
	}
}
