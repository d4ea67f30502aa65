package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/asnowfix/switchbot-mqtt/mymqtt"
	"github.com/asnowfix/switchbot-mqtt/pkg/switchbot"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mac = "aa:bb:cc:11:22:33"

type fakeTransport struct {
	mu       sync.Mutex
	commands [][]byte
	err      error
}

func (f *fakeTransport) Command(ctx context.Context, mac string, payload []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, payload)
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0x01}, nil
}

func (f *fakeTransport) Advertisement(ctx context.Context, mac string, timeout time.Duration) ([]byte, error) {
	return []byte{'H', 0x00, 0x63}, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) Config {
	return Config{
		Mqtt:                mymqtt.Options{Timeout: 5 * time.Second},
		TopicPrefix:         "homeassistant/",
		Retries:             1,
		FetchDeviceInfo:     true,
		EmbeddedBroker:      true,
		EmbeddedBrokerPort:  freePort(t),
		NoMdns:              true,
		WatchdogInterval:    time.Minute,
		WatchdogMaxFailures: 3,
	}
}

// start runs the daemon in the background; logs are discarded as paho and
// mochi goroutines may outlive the test.
func start(t *testing.T, ctx context.Context, config Config, transport switchbot.Transport) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, logr.Discard(), config, transport) }()
	return done
}

func connect(t *testing.T, ctx context.Context, port int) *mymqtt.Client {
	t.Helper()
	var c *mymqtt.Client
	require.Eventually(t, func() bool {
		var err error
		c, err = mymqtt.NewClientE(ctx, logr.Discard(), mymqtt.Options{Host: "127.0.0.1", Port: port, Timeout: time.Second, ClientId: "test"})
		if err != nil {
			return false
		}
		if err := c.Connect(ctx); err != nil {
			return false
		}
		return true
	}, 5*time.Second, 100*time.Millisecond)
	t.Cleanup(c.Close)
	return c
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
		return nil
	}
}

func TestRunSwitchesBot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	config := testConfig(t)
	transport := &fakeTransport{}
	done := start(t, ctx, config, transport)

	c := connect(t, ctx, config.EmbeddedBrokerPort)
	received := make(chan mymqtt.Message, 64)
	require.NoError(t, c.Subscribe(ctx, "homeassistant/+/switchbot/+/#", func(msg mymqtt.Message) { received <- msg }))

	states := map[string]string{}
	require.Eventually(t, func() bool {
		_ = c.Publish(ctx, "homeassistant/switch/switchbot/"+mac+"/set", []byte("ON"), false)
		deadline := time.After(200 * time.Millisecond)
		for {
			select {
			case msg := <-received:
				if msg.Topic != "homeassistant/switch/switchbot/"+mac+"/set" {
					states[msg.Topic] = string(msg.Payload)
				}
			case <-deadline:
				return len(states) == 3
			}
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, map[string]string{
		"homeassistant/switch/switchbot/" + mac + "/state":              "ON",
		"homeassistant/switch/switchbot/" + mac + "/battery-percentage": "99",
		"homeassistant/cover/switchbot/" + mac + "/battery-percentage":  "99",
	}, states)

	cancel()
	assert.NoError(t, wait(t, done))
}

func TestRunStopsOnPermissionDenied(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	config := testConfig(t)
	transport := &fakeTransport{err: fmt.Errorf("enable: %w", switchbot.ErrPermissionDenied)}
	done := start(t, ctx, config, transport)

	c := connect(t, ctx, config.EmbeddedBrokerPort)
	var err error
	require.Eventually(t, func() bool {
		_ = c.Publish(ctx, "homeassistant/cover/switchbot-curtain/"+mac+"/set", []byte("OPEN"), false)
		select {
		case err = <-done:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, err, switchbot.ErrPermissionDenied)
	assert.ErrorContains(t, err, "setcap")
}

func TestRunServesHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	config := testConfig(t)
	config.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", freePort(t))
	done := start(t, ctx, config, &fakeTransport{})

	require.Eventually(t, func() bool {
		rsp, err := http.Get("http://" + config.MetricsAddr + "/health")
		if err != nil {
			return false
		}
		defer rsp.Body.Close()
		_, _ = io.Copy(io.Discard, rsp.Body)
		return rsp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	rsp, err := http.Get("http://" + config.MetricsAddr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(rsp.Body)
	rsp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	assert.NoError(t, wait(t, done))
}

func TestRunFailsWithMissingPasswordFile(t *testing.T) {
	config := testConfig(t)
	config.EmbeddedBroker = false
	config.Mqtt.Host = "127.0.0.1"
	config.DevicePasswordFile = "/nonexistent/passwords.json"
	err := Run(context.Background(), logr.Discard(), config, &fakeTransport{})
	assert.Error(t, err)
}

func TestRunFailsWithoutUsername(t *testing.T) {
	config := testConfig(t)
	config.EmbeddedBroker = false
	config.Mqtt.Host = "127.0.0.1"
	config.Mqtt.Password = "secret"
	err := Run(context.Background(), logr.Discard(), config, &fakeTransport{})
	assert.ErrorIs(t, err, mymqtt.ErrMissingUsername)
}
