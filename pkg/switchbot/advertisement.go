package switchbot

import (
	"fmt"
)

// Model identifies the kind of device, as advertised in the first service data byte.
type Model byte

const (
	ModelBot     Model = 'H'
	ModelCurtain Model = 'c'
)

func (m Model) String() string {
	switch m {
	case ModelBot:
		return "bot"
	case ModelCurtain:
		return "curtain"
	default:
		return fmt.Sprintf("unknown(%#02x)", byte(m))
	}
}

// Info is the device state carried by an advertisement.
type Info struct {
	Model   Model `json:"model"`
	Battery int   `json:"battery"`

	// bot
	SwitchMode bool `json:"switch_mode,omitempty"`
	On         bool `json:"on,omitempty"`

	// curtain, in device orientation: 0 is open, 100 is closed
	Position   int  `json:"position,omitempty"`
	Calibrated bool `json:"calibrated,omitempty"`
	LightLevel int  `json:"light_level,omitempty"`
}

// ParseAdvertisement decodes SwitchBot service data (without the service UUID).
func ParseAdvertisement(data []byte) (Info, error) {
	if len(data) < 3 {
		return Info{}, fmt.Errorf("%w: %d bytes of service data", ErrUnexpectedAdvertisement, len(data))
	}
	info := Info{
		Model:   Model(data[0] & 0x7f),
		Battery: int(data[2] & 0x7f),
	}
	switch info.Model {
	case ModelBot:
		info.SwitchMode = data[1]&0x80 != 0
		info.On = info.SwitchMode && data[1]&0x40 != 0
	case ModelCurtain:
		if len(data) < 4 {
			return Info{}, fmt.Errorf("%w: %d bytes of curtain service data", ErrUnexpectedAdvertisement, len(data))
		}
		info.Calibrated = data[1]&0x40 != 0
		info.Position = min(max(int(data[3]&0x7f), 0), 100)
		if len(data) > 4 {
			info.LightLevel = int(data[4]>>4) & 0x0f
		}
	default:
		return Info{}, fmt.Errorf("%w: model %s", ErrUnexpectedAdvertisement, info.Model)
	}
	return info, nil
}
