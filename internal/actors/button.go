package actors

import (
	"context"
	"strings"

	"github.com/asnowfix/switchbot-mqtt/internal/metrics"
	"github.com/asnowfix/switchbot-mqtt/internal/topics"
	"github.com/asnowfix/switchbot-mqtt/pkg/switchbot"
	"github.com/go-logr/logr"
)

// https://www.home-assistant.io/integrations/switch.mqtt/
var buttonLevels = topics.Levels{topics.L("switch"), topics.L("switchbot"), topics.MacAddress}

var (
	ButtonCommandLevels          = buttonLevels.With("set")
	ButtonStateLevels            = buttonLevels.With("state")
	ButtonBatteryLevels          = buttonLevels.With("battery-percentage")
	ButtonUpdateDeviceInfoLevels = buttonLevels.With("request-device-info-update")

	// still published for downward compatibility
	ButtonLegacyBatteryLevels = topics.Levels{topics.L("cover"), topics.L("switchbot"), topics.MacAddress}.With("battery-percentage")
)

// ButtonAutomator controls SwitchBot Bots as Home Assistant switches.
type ButtonAutomator struct {
	*reporter
	registry  *Registry
	passwords PasswordLookup
	log       logr.Logger
}

func (a *ButtonAutomator) routes(fetchDeviceInfo bool) []route {
	routes := []route{{
		kind:   "button_command",
		levels: ButtonCommandLevels,
		handle: func(ctx context.Context, mac string, payload []byte) error {
			return a.executeCommand(ctx, mac, payload, fetchDeviceInfo)
		},
	}}
	if fetchDeviceInfo {
		routes = append(routes, route{
			kind:   "button_device_info",
			levels: ButtonUpdateDeviceInfoLevels,
			handle: func(ctx context.Context, mac string, _ []byte) error {
				return a.updateAndReportDeviceInfo(ctx, mac, a.device(mac))
			},
		})
	}
	return routes
}

func (a *ButtonAutomator) device(mac string) *switchbot.Bot {
	return a.registry.Bot(mac, passwordOf(a.passwords, mac))
}

func (a *ButtonAutomator) executeCommand(ctx context.Context, mac string, payload []byte, fetchDeviceInfo bool) error {
	var action func(context.Context) error
	var state string
	bot := a.device(mac)

	// https://www.home-assistant.io/integrations/switch.mqtt/#payload_on
	switch strings.ToLower(string(payload)) {
	case "on":
		action, state = bot.TurnOn, "ON"
	case "off":
		action, state = bot.TurnOff, "OFF"
	default:
		a.log.Info("Ignoring unexpected payload (expected 'ON' or 'OFF')", "payload", string(payload))
		return nil
	}

	err := action(ctx)
	metrics.Commands.WithLabelValues("bot", strings.ToLower(state), metrics.Result(err)).Inc()
	if err != nil {
		a.log.Error(err, "Failed to switch SwitchBot", "mac", mac, "state", state)
		return permanent(err)
	}
	a.log.Info("SwitchBot switched", "mac", mac, "state", state)
	a.publish(ctx, ButtonStateLevels, mac, []byte(state))

	if fetchDeviceInfo {
		return a.updateAndReportDeviceInfo(ctx, mac, bot)
	}
	return nil
}

// updateAndReportDeviceInfo reports on mac as given in the topic, which may
// differ in case from the one the cached handle was created with.
func (a *ButtonAutomator) updateAndReportDeviceInfo(ctx context.Context, mac string, bot *switchbot.Bot) error {
	err := bot.Update(ctx)
	metrics.DeviceInfoUpdates.WithLabelValues("bot", metrics.Result(err)).Inc()
	if err != nil {
		a.log.Error(err, "Failed to update device info", "mac", mac)
		return permanent(err)
	}
	// > battery: Percentage of battery that is left.
	// https://www.home-assistant.io/integrations/sensor/#device-class
	a.reportBattery(ctx, ButtonBatteryLevels, mac, bot.Battery())
	a.reportBattery(ctx, ButtonLegacyBatteryLevels, mac, bot.Battery())
	return nil
}
