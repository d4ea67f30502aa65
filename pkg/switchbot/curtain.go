package switchbot

import (
	"context"

	"github.com/go-logr/logr"
)

// Curtain is a SwitchBot curtain motor.
//
// Positions are exposed in reverse mode: 100 is fully open, 0 is fully closed,
// which is what Home Assistant covers expect. The device itself uses the
// opposite orientation.
type Curtain struct {
	*device
	position int
}

func NewCurtain(log logr.Logger, transport Transport, mac string, options Options) *Curtain {
	return &Curtain{device: newDevice(log.WithName("Curtain"), transport, mac, options)}
}

func (c *Curtain) Open(ctx context.Context) error {
	return c.move(ctx, 100)
}

func (c *Curtain) Close(ctx context.Context) error {
	return c.move(ctx, 0)
}

// SetPosition moves the curtain to position, in percent open.
func (c *Curtain) SetPosition(ctx context.Context, position int) error {
	return c.move(ctx, min(max(position, 0), 100))
}

func (c *Curtain) Stop(ctx context.Context) error {
	return c.sendCommand(ctx, []byte{commandPrefix, commandCurtain, 0x45, 0x00, 0x01})
}

// Position returns the last known position in percent open. It is updated
// optimistically by moves, and from the device by Update.
func (c *Curtain) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Update refreshes battery level and position from the curtain's advertisement.
func (c *Curtain) Update(ctx context.Context) error {
	if err := c.update(ctx, ModelCurtain); err != nil {
		return err
	}
	c.mu.Lock()
	c.position = 100 - c.info.Position
	c.mu.Unlock()
	return nil
}

func (c *Curtain) move(ctx context.Context, position int) error {
	key := make([]byte, 0, curtainPositionLength)
	key = append(key, commandPrefix, commandCurtain, 0x45, 0x01, 0x05, 0xff, byte(100-position))
	if err := c.sendCommand(ctx, key); err != nil {
		return err
	}
	c.mu.Lock()
	c.position = position
	c.mu.Unlock()
	return nil
}
