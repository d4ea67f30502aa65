// Package metrics exposes Prometheus metrics about commands and reports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// MessagesReceived counts MQTT messages by topic kind and outcome (handled, ignored).
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchbot_mqtt_messages_received_total",
		Help: "Total number of MQTT messages received, by topic kind and outcome.",
	}, []string{"kind", "outcome"})

	// Commands counts device commands by device kind, action and result.
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchbot_mqtt_commands_total",
		Help: "Total number of commands sent to devices, by device kind, action and result.",
	}, []string{"device", "action", "result"})

	// DeviceInfoUpdates counts advertisement scans by device kind and result.
	DeviceInfoUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchbot_mqtt_device_info_updates_total",
		Help: "Total number of device info updates, by device kind and result.",
	}, []string{"device", "result"})

	// Publications counts MQTT publications by result.
	Publications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchbot_mqtt_publications_total",
		Help: "Total number of MQTT publications, by result.",
	}, []string{"result"})

	BatteryPercentage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "switchbot_mqtt_battery_percentage",
		Help: "Last reported battery level, by device MAC address.",
	}, []string{"mac"})

	CurtainPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "switchbot_mqtt_curtain_position_percentage",
		Help: "Last reported curtain position in percent open, by device MAC address.",
	}, []string{"mac"})
)

func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
