package switchbot

import (
	"context"
	"sync"
	"time"
)

type fakeTransport struct {
	mu        sync.Mutex
	commands  [][]byte
	responses [][]byte
	errs      []error
	adv       []byte
	advErr    error
}

func (f *fakeTransport) Command(ctx context.Context, mac string, payload []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, payload)
	i := len(f.commands) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return []byte{responseOk}, nil
}

func (f *fakeTransport) Advertisement(ctx context.Context, mac string, timeout time.Duration) ([]byte, error) {
	return f.adv, f.advErr
}
