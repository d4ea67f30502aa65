package actors

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/asnowfix/switchbot-mqtt/mymqtt"
	"github.com/asnowfix/switchbot-mqtt/pkg/switchbot"
)

type published struct {
	topic   string
	payload string
	retain  bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, payload: string(payload), retain: retain})
	return f.err
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

type fakeTransport struct {
	mu       sync.Mutex
	commands map[string][][]byte
	response []byte
	err      error
	adv      map[string][]byte
	advErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		commands: make(map[string][][]byte),
		response: []byte{0x01},
		adv:      make(map[string][]byte),
	}
}

func (f *fakeTransport) Command(ctx context.Context, mac string, payload []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mac = strings.ToLower(mac)
	f.commands[mac] = append(f.commands[mac], append([]byte(nil), payload...))
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeTransport) Advertisement(ctx context.Context, mac string, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.advErr != nil {
		return nil, f.advErr
	}
	data, ok := f.adv[strings.ToLower(mac)]
	if !ok {
		return nil, switchbot.ErrNotFound
	}
	return data, nil
}

func (f *fakeTransport) sent(mac string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands[strings.ToLower(mac)]
}

type fakeSubscriber struct {
	handlers map[string]mymqtt.Handler
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, topic string, handler mymqtt.Handler) error {
	if f.handlers == nil {
		f.handlers = make(map[string]mymqtt.Handler)
	}
	f.handlers[topic] = handler
	return nil
}
