package switchbot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"tinygo.org/x/bluetooth"
)

const responseTimeout = 5 * time.Second

var (
	serviceUUID      = mustParseUUID("cba20d00-224d-11e6-9fb8-0002a5d5c51b")
	writeCharUUID    = mustParseUUID("cba20002-224d-11e6-9fb8-0002a5d5c51b")
	notifyCharUUID   = mustParseUUID("cba20003-224d-11e6-9fb8-0002a5d5c51b")
	legacyDataUUID   = bluetooth.New16BitUUID(0x0d00)
	serviceDataUUIDs = []bluetooth.UUID{legacyDataUUID, bluetooth.New16BitUUID(0xfd3d)}
)

func mustParseUUID(s string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return uuid
}

// BluetoothTransport talks to devices through the host's default Bluetooth adapter.
// The adapter is used by one operation at a time.
type BluetoothTransport struct {
	adapter *bluetooth.Adapter
	log     logr.Logger

	mu      sync.Mutex
	enabled bool
}

func NewBluetoothTransport(log logr.Logger) *BluetoothTransport {
	return &BluetoothTransport{
		adapter: bluetooth.DefaultAdapter,
		log:     log.WithName("BluetoothTransport"),
	}
}

func (t *BluetoothTransport) enable() error {
	if t.enabled {
		return nil
	}
	t.log.Info("Enabling Bluetooth adapter")
	if err := t.adapter.Enable(); err != nil {
		if denied := permissionDenied(err); denied != nil {
			return denied
		}
		return fmt.Errorf("failed to enable Bluetooth adapter: %w", err)
	}
	t.enabled = true
	return nil
}

// permissionDenied maps adapter errors caused by missing privileges to
// ErrPermissionDenied, and returns nil for any other error.
func permissionDenied(err error) error {
	if err == nil || !isPermissionError(err) {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, PermissionHint, err)
}

func isPermissionError(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted")
}

// scan returns the first scan result of the device with the given MAC address.
func (t *BluetoothTransport) scan(ctx context.Context, mac string, timeout time.Duration) (bluetooth.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan bluetooth.ScanResult, 1)
	scanning := make(chan struct{})
	stopper := make(chan struct{})
	go func() {
		defer close(stopper)
		select {
		case <-ctx.Done():
			// no-op if the scan already stopped
			_ = t.adapter.StopScan()
		case <-scanning:
		}
	}()

	t.log.V(1).Info("Scanning", "mac", mac, "timeout", timeout)
	err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !strings.EqualFold(result.Address.String(), mac) {
			return
		}
		select {
		case found <- result:
			_ = adapter.StopScan()
		default:
		}
	})
	// the stopper must not interrupt the next scan
	close(scanning)
	<-stopper
	if err != nil {
		if denied := permissionDenied(err); denied != nil {
			return bluetooth.ScanResult{}, denied
		}
		return bluetooth.ScanResult{}, fmt.Errorf("failed to scan for %s: %w", mac, err)
	}

	select {
	case result := <-found:
		return result, nil
	default:
		if err := context.Cause(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return bluetooth.ScanResult{}, err
		}
		return bluetooth.ScanResult{}, fmt.Errorf("%w: %s within %v", ErrNotFound, mac, timeout)
	}
}

func (t *BluetoothTransport) Advertisement(ctx context.Context, mac string, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.enable(); err != nil {
		return nil, err
	}
	result, err := t.scan(ctx, mac, timeout)
	if err != nil {
		return nil, err
	}
	for _, element := range result.ServiceData() {
		for _, uuid := range serviceDataUUIDs {
			if element.UUID == uuid {
				return element.Data, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s advertised no SwitchBot service data", ErrUnexpectedAdvertisement, mac)
}

func (t *BluetoothTransport) Command(ctx context.Context, mac string, payload []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.enable(); err != nil {
		return nil, err
	}
	result, err := t.scan(ctx, mac, DefaultScanTimeout)
	if err != nil {
		return nil, err
	}

	t.log.V(1).Info("Connecting", "mac", mac)
	dev, err := t.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", mac, err)
	}
	defer func() {
		if err := dev.Disconnect(); err != nil {
			t.log.V(1).Info("Disconnect failed", "mac", mac, "error", err.Error())
		}
	}()

	services, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return nil, fmt.Errorf("failed to discover SwitchBot service of %s: %v", mac, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{writeCharUUID, notifyCharUUID})
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics of %s: %w", mac, err)
	}
	var write, notify *bluetooth.DeviceCharacteristic
	for i := range chars {
		switch chars[i].UUID() {
		case writeCharUUID:
			write = &chars[i]
		case notifyCharUUID:
			notify = &chars[i]
		}
	}
	if write == nil || notify == nil {
		return nil, fmt.Errorf("%s lacks the SwitchBot command characteristics", mac)
	}

	responses := make(chan []byte, 1)
	err = notify.EnableNotifications(func(buf []byte) {
		rsp := make([]byte, len(buf))
		copy(rsp, buf)
		select {
		case responses <- rsp:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enable notifications on %s: %w", mac, err)
	}

	if _, err := write.WriteWithoutResponse(payload); err != nil {
		return nil, fmt.Errorf("failed to write command to %s: %w", mac, err)
	}

	select {
	case rsp := <-responses:
		t.log.V(1).Info("Received response", "mac", mac, "response", fmt.Sprintf("%x", rsp))
		return rsp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(responseTimeout):
		return nil, fmt.Errorf("no response from %s within %v", mac, responseTimeout)
	}
}
