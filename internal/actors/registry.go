package actors

import (
	"fmt"

	"github.com/asnowfix/switchbot-mqtt/internal/tools"
	"github.com/asnowfix/switchbot-mqtt/pkg/switchbot"
	"github.com/dgraph-io/ristretto"
	"github.com/go-logr/logr"
)

// Registry hands out device handles, reusing them across messages so that
// state such as a curtain's last known position is kept.
type Registry struct {
	transport switchbot.Transport
	options   switchbot.Options
	log       logr.Logger
	cache     *ristretto.Cache
}

// NewRegistry returns a registry keeping up to maxDevices handles.
func NewRegistry(log logr.Logger, transport switchbot.Transport, options switchbot.Options, maxDevices int64) (*Registry, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * maxDevices,
		MaxCost:     maxDevices,
		BufferItems: 64,
		// every handle costs 1
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create device cache: %w", err)
	}
	return &Registry{
		transport: transport,
		options:   options,
		log:       log,
		cache:     cache,
	}, nil
}

func (r *Registry) key(kind string, mac string, password string) string {
	return fmt.Sprintf("%s|%s|%s", kind, tools.NormalizeMac(mac), password)
}

func (r *Registry) Bot(mac string, password string) *switchbot.Bot {
	key := r.key("bot", mac, password)
	if v, ok := r.cache.Get(key); ok {
		if bot, ok := v.(*switchbot.Bot); ok {
			return bot
		}
	}
	options := r.options
	options.Password = password
	bot := switchbot.NewBot(r.log, r.transport, mac, options)
	r.cache.Set(key, bot, 1)
	r.cache.Wait()
	return bot
}

func (r *Registry) Curtain(mac string, password string) *switchbot.Curtain {
	key := r.key("curtain", mac, password)
	if v, ok := r.cache.Get(key); ok {
		if curtain, ok := v.(*switchbot.Curtain); ok {
			return curtain
		}
	}
	options := r.options
	options.Password = password
	curtain := switchbot.NewCurtain(r.log, r.transport, mac, options)
	r.cache.Set(key, curtain, 1)
	r.cache.Wait()
	return curtain
}

func (r *Registry) Close() {
	r.cache.Close()
}
