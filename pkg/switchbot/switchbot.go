// Package switchbot drives SwitchBot Bot and Curtain devices over Bluetooth Low Energy.
//
// Commands are written to the device's command characteristic and
// acknowledged through a notification, whose first byte is 0x01 on success.
// Battery level and curtain position are read from the service data the
// devices advertise.
package switchbot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"
)

const DefaultRetryCount = 3

const DefaultRetryDelay = 200 * time.Millisecond

const DefaultScanTimeout = 5 * time.Second

var (
	// ErrPermissionDenied is returned when the process is not allowed to use the Bluetooth adapter.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCommandFailed is returned when a device rejects a command.
	ErrCommandFailed = errors.New("command failed")

	// ErrNotFound is returned when a device did not advertise before the scan timed out.
	ErrNotFound = errors.New("device not found")

	ErrUnexpectedAdvertisement = errors.New("unexpected advertisement")
)

// PermissionHint explains how to let an unprivileged process manage the Bluetooth adapter.
const PermissionHint = "insufficient permissions to enable Bluetooth low energy mode;" +
	" grant the capability with `sudo setcap cap_net_admin+ep <path-to-switchbot-mqtt>`" +
	" and restart switchbot-mqtt (in docker-based setups: --cap-add NET_ADMIN)"

// Transport exchanges raw frames with devices, identified by their MAC address.
type Transport interface {
	// Command writes payload to the device and returns its response notification.
	Command(ctx context.Context, mac string, payload []byte) ([]byte, error)
	// Advertisement waits up to timeout for the device's service data.
	Advertisement(ctx context.Context, mac string, timeout time.Duration) ([]byte, error)
}

const (
	responseOk byte = 0x01

	commandPrefix         byte = 0x57
	commandBot            byte = 0x01
	commandBotPassword    byte = 0x11
	commandCurtain        byte = 0x0f
	actionPress           byte = 0x00
	actionOn              byte = 0x01
	actionOff             byte = 0x02
	curtainPositionLength      = 7
)

// Options configures a device handle.
type Options struct {
	Password    string
	RetryCount  int
	RetryDelay  time.Duration
	ScanTimeout time.Duration
}

type device struct {
	mac       string
	password  string
	transport Transport
	options   Options
	log       logr.Logger

	mu   sync.Mutex
	info Info
}

func newDevice(log logr.Logger, transport Transport, mac string, options Options) *device {
	if options.RetryCount < 1 {
		options.RetryCount = DefaultRetryCount
	}
	if options.RetryDelay <= 0 {
		options.RetryDelay = DefaultRetryDelay
	}
	if options.ScanTimeout <= 0 {
		options.ScanTimeout = DefaultScanTimeout
	}
	return &device{
		mac:       mac,
		password:  options.Password,
		transport: transport,
		options:   options,
		log:       log.WithValues("mac", mac),
	}
}

func (d *device) Mac() string {
	return d.mac
}

// Battery returns the battery level in percent, as of the last update.
func (d *device) Battery() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info.Battery
}

// Info returns the state parsed from the last advertisement.
func (d *device) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// sendCommand writes payload, retrying up to RetryCount attempts in total.
func (d *device) sendCommand(ctx context.Context, payload []byte) error {
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		d.log.V(1).Info("Sending command", "payload", fmt.Sprintf("%x", payload), "attempt", attempt)
		rsp, err := d.transport.Command(ctx, d.mac, payload)
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		if len(rsp) == 0 || rsp[0] != responseOk {
			return struct{}{}, fmt.Errorf("%w: device %s responded %x", ErrCommandFailed, d.mac, rsp)
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(d.options.RetryDelay)),
		backoff.WithMaxTries(uint(d.options.RetryCount)),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.log.V(1).Info("Command attempt failed", "error", err.Error(), "retry_in", next)
		}),
	)
	return err
}

// update scans for the device's advertisement and parses it.
func (d *device) update(ctx context.Context, model Model) error {
	data, err := d.transport.Advertisement(ctx, d.mac, d.options.ScanTimeout)
	if err != nil {
		return err
	}
	info, err := ParseAdvertisement(data)
	if err != nil {
		return err
	}
	if info.Model != model {
		return fmt.Errorf("%w: %s is a %s, expected %s", ErrUnexpectedAdvertisement, d.mac, info.Model, model)
	}
	d.log.V(1).Info("Updated device info", "info", info)
	d.mu.Lock()
	d.info = info
	d.mu.Unlock()
	return nil
}

// encodePassword returns the CRC32 of the password, as expected by password-protected devices.
func encodePassword(password string) []byte {
	return binary.BigEndian.AppendUint32(nil, crc32.ChecksumIEEE([]byte(password)))
}
