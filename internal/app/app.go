package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
)

type App struct {
	srv        Runner
	side       []Service
	complexity uint8
}

// New builds an App; side services (admin HTTP and the like) may be omitted.
func New(srv Runner, complexity uint8, side ...Service) *App {
	return &App{srv: srv, side: side, complexity: complexity}
}

func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext waits for the Runner and all side services. A failing side
// service stops the whole App.
func (a *App) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sideErrs := make(chan error, len(a.side))
	for _, svc := range a.side {
		go func(svc Service) {
			err := svc.Serve(ctx)
			if err != nil {
				cancel()
			}
			sideErrs <- err
		}(svc)
	}

	err := a.srv.Run(ctx, a.complexity)
	cancel()
	for range a.side {
		err = errors.Join(err, <-sideErrs)
	}
	return err
}
