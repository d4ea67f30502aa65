package actors

import (
	"context"
	"strconv"
	"strings"

	"github.com/asnowfix/switchbot-mqtt/internal/metrics"
	"github.com/asnowfix/switchbot-mqtt/internal/topics"
	"github.com/asnowfix/switchbot-mqtt/pkg/switchbot"
	"github.com/go-logr/logr"
)

// https://www.home-assistant.io/integrations/cover.mqtt/
var curtainLevels = topics.Levels{topics.L("cover"), topics.L("switchbot-curtain"), topics.MacAddress}

var (
	CurtainCommandLevels          = curtainLevels.With("set")
	CurtainStateLevels            = curtainLevels.With("state")
	CurtainBatteryLevels          = curtainLevels.With("battery-percentage")
	CurtainPositionLevels         = curtainLevels.With("position")
	CurtainSetPositionLevels      = curtainLevels.With("position", "set-percent")
	CurtainUpdateDeviceInfoLevels = curtainLevels.With("request-device-info-update")
)

// CurtainMotor controls SwitchBot Curtains as Home Assistant covers.
type CurtainMotor struct {
	*reporter
	registry  *Registry
	passwords PasswordLookup
	log       logr.Logger
}

func (a *CurtainMotor) routes(fetchDeviceInfo bool) []route {
	routes := []route{{
		kind:   "curtain_command",
		levels: CurtainCommandLevels,
		handle: func(ctx context.Context, mac string, payload []byte) error {
			return a.executeCommand(ctx, mac, payload, fetchDeviceInfo)
		},
	}, {
		kind:   "curtain_position",
		levels: CurtainSetPositionLevels,
		handle: func(ctx context.Context, mac string, payload []byte) error {
			return a.setPosition(ctx, mac, payload, fetchDeviceInfo)
		},
	}}
	if fetchDeviceInfo {
		routes = append(routes, route{
			kind:   "curtain_device_info",
			levels: CurtainUpdateDeviceInfoLevels,
			handle: func(ctx context.Context, mac string, _ []byte) error {
				return a.updateAndReportDeviceInfo(ctx, mac, a.device(mac), true)
			},
		})
	}
	return routes
}

func (a *CurtainMotor) device(mac string) *switchbot.Curtain {
	return a.registry.Curtain(mac, passwordOf(a.passwords, mac))
}

func (a *CurtainMotor) executeCommand(ctx context.Context, mac string, payload []byte, fetchDeviceInfo bool) error {
	var action func(context.Context) error
	var state string
	reportPosition := false
	curtain := a.device(mac)

	// https://www.home-assistant.io/integrations/cover.mqtt/#payload_open
	command := strings.ToLower(string(payload))
	switch command {
	case "open":
		// > state_opening string (Optional, default: opening)
		action, state = curtain.Open, "opening"
	case "close":
		action, state = curtain.Close, "closing"
	case "stop":
		// there is no "stopped" state: an empty payload clears the retained state
		action, state = curtain.Stop, ""
		reportPosition = true
	default:
		a.log.Info("Ignoring unexpected payload (expected 'OPEN', 'CLOSE', or 'STOP')", "payload", string(payload))
		return nil
	}

	err := action(ctx)
	metrics.Commands.WithLabelValues("curtain", command, metrics.Result(err)).Inc()
	if err != nil {
		a.log.Error(err, "Failed to "+command+" SwitchBot curtain", "mac", mac)
		return permanent(err)
	}
	a.log.Info("SwitchBot curtain commanded", "mac", mac, "command", command)
	a.publish(ctx, CurtainStateLevels, mac, []byte(state))

	if fetchDeviceInfo {
		return a.updateAndReportDeviceInfo(ctx, mac, curtain, reportPosition)
	}
	return nil
}

func (a *CurtainMotor) setPosition(ctx context.Context, mac string, payload []byte, fetchDeviceInfo bool) error {
	position, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil || position < 0 || position > 100 {
		a.log.Info("Ignoring invalid position (expected an integer within [0, 100])", "payload", string(payload))
		return nil
	}

	curtain := a.device(mac)
	err = curtain.SetPosition(ctx, position)
	metrics.Commands.WithLabelValues("curtain", "set_position", metrics.Result(err)).Inc()
	if err != nil {
		a.log.Error(err, "Failed to set position of SwitchBot curtain", "mac", mac, "position", position)
		return permanent(err)
	}
	a.log.Info("SwitchBot curtain position set", "mac", mac, "position", position)

	if fetchDeviceInfo {
		return a.updateAndReportDeviceInfo(ctx, mac, curtain, true)
	}
	return nil
}

func (a *CurtainMotor) updateAndReportDeviceInfo(ctx context.Context, mac string, curtain *switchbot.Curtain, reportPosition bool) error {
	err := curtain.Update(ctx)
	metrics.DeviceInfoUpdates.WithLabelValues("curtain", metrics.Result(err)).Inc()
	if err != nil {
		a.log.Error(err, "Failed to update device info", "mac", mac)
		return permanent(err)
	}
	a.reportBattery(ctx, CurtainBatteryLevels, mac, curtain.Battery())
	if reportPosition {
		// > position_closed 0, position_open 100
		// https://www.home-assistant.io/integrations/cover.mqtt/#position_closed
		position := curtain.Position()
		metrics.CurtainPosition.WithLabelValues(mac).Set(float64(position))
		a.publish(ctx, CurtainPositionLevels, mac, []byte(strconv.Itoa(position)))
	}
	return nil
}
