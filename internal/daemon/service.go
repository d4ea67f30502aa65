package daemon

import (
	"context"
	"os"

	"github.com/asnowfix/switchbot-mqtt/hlog"
	"github.com/kardianos/service"
)

// program runs the daemon under the system service manager.
type program struct {
	run    func(context.Context) error
	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

func newProgram(ctx context.Context, run func(context.Context) error) *program {
	ctx, cancel := context.WithCancel(ctx)
	return &program{
		run:    run,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan error, 1),
	}
}

func (p *program) Start(s service.Service) error {
	// Start should not block
	go func() {
		err := p.run(p.ctx)
		p.done <- err
		if err != nil && p.ctx.Err() == nil {
			hlog.Logger.Error(err, "Daemon failed")
			// let the service manager restart us
			os.Exit(1)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel()
	return <-p.done
}

func serviceConfig(arguments []string) *service.Config {
	return &service.Config{
		Name:        hlog.Program,
		DisplayName: "SwitchBot MQTT",
		Description: "Controls SwitchBot Bots and Curtains over Bluetooth on behalf of Home Assistant's MQTT integration",
		Arguments:   arguments,
	}
}

// RunService runs the daemon as a service, until the service manager stops it.
func RunService(ctx context.Context, run func(context.Context) error) error {
	s, err := service.New(newProgram(ctx, run), serviceConfig(nil))
	if err != nil {
		return err
	}
	return s.Run()
}

// Interactive reports whether the process was started from a terminal or
// by the service manager.
func Interactive() bool {
	return service.Interactive()
}
