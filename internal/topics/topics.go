// Package topics builds and parses the MQTT topics devices are addressed by.
//
// A topic is described as a list of levels. Each level is either a literal
// string or the MAC address placeholder, which stands for the Bluetooth MAC
// address of the addressed device.
package topics

import (
	"fmt"
	"regexp"
	"strings"
)

// Level is one level of an MQTT topic: either a literal or MacAddress.
type Level struct {
	literal     string
	placeholder bool
}

// MacAddress is the placeholder level replaced by a device's MAC address.
var MacAddress = Level{placeholder: true}

// L returns a literal topic level.
func L(s string) Level {
	return Level{literal: s}
}

func (l Level) IsPlaceholder() bool {
	return l.placeholder
}

func (l Level) String() string {
	if l.placeholder {
		return "MAC_ADDRESS"
	}
	return l.literal
}

// Levels is an ordered list of topic levels.
type Levels []Level

// With returns a copy of ls with the given literal levels appended.
func (ls Levels) With(literals ...string) Levels {
	out := make(Levels, 0, len(ls)+len(literals))
	out = append(out, ls...)
	for _, s := range literals {
		out = append(out, L(s))
	}
	return out
}

// DefaultPrefix is prepended to every topic, for historic reasons.
const DefaultPrefix = "homeassistant/"

// Join renders the levels as a topic, replacing the placeholder with mac.
// Subscriptions pass "+" as mac to match any device.
func Join(prefix string, levels Levels, mac string) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		if l.placeholder {
			parts[i] = mac
		} else {
			parts[i] = l.literal
		}
	}
	return prefix + strings.Join(parts, "/")
}

// Parse matches topic against prefix and levels, returning the MAC address
// found at the placeholder level. The MAC address may be empty.
func Parse(prefix string, topic string, levels Levels) (string, error) {
	if !strings.HasPrefix(topic, prefix) {
		return "", fmt.Errorf("unexpected MQTT topic %q", topic)
	}
	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) != len(levels) {
		return "", fmt.Errorf("unexpected MQTT topic %q", topic)
	}
	mac := ""
	for i, l := range levels {
		if l.placeholder {
			mac = parts[i]
		} else if l.literal != parts[i] {
			return "", fmt.Errorf("unexpected MQTT topic %q", topic)
		}
	}
	return mac, nil
}

var macAddressRegexp = regexp.MustCompile(`^[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}$`)

// ValidMacAddress reports whether s is a colon-separated MAC address.
func ValidMacAddress(s string) bool {
	return macAddressRegexp.MatchString(s)
}
