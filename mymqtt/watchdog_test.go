package mymqtt

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
)

type fakeConnectivity struct {
	connected atomic.Bool
}

func (f *fakeConnectivity) IsConnected() bool {
	return f.connected.Load()
}

func TestWatchdogGivesUp(t *testing.T) {
	w := NewWatchdog(testr.New(t), &fakeConnectivity{}, 5*time.Millisecond, 3)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, w.Run(ctx))
	assert.NoError(t, ctx.Err())
}

func TestWatchdogStopsWithContext(t *testing.T) {
	fc := &fakeConnectivity{}
	fc.connected.Store(true)
	w := NewWatchdog(testr.New(t), fc, 5*time.Millisecond, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, w.Run(ctx))
}
