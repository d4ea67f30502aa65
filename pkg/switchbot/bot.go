package switchbot

import (
	"context"

	"github.com/go-logr/logr"
)

// Bot is a SwitchBot button automator.
type Bot struct {
	*device
}

func NewBot(log logr.Logger, transport Transport, mac string, options Options) *Bot {
	return &Bot{device: newDevice(log.WithName("Bot"), transport, mac, options)}
}

func (b *Bot) TurnOn(ctx context.Context) error {
	return b.sendCommand(ctx, b.commandKey(actionOn))
}

func (b *Bot) TurnOff(ctx context.Context) error {
	return b.sendCommand(ctx, b.commandKey(actionOff))
}

func (b *Bot) Press(ctx context.Context) error {
	return b.sendCommand(ctx, b.commandKey(actionPress))
}

// Update refreshes the battery level from the bot's advertisement.
func (b *Bot) Update(ctx context.Context) error {
	return b.update(ctx, ModelBot)
}

func (b *Bot) commandKey(action byte) []byte {
	if b.password == "" {
		return []byte{commandPrefix, commandBot, action}
	}
	key := []byte{commandPrefix, commandBotPassword}
	key = append(key, encodePassword(b.password)...)
	return append(key, action)
}
