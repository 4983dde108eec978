package app

import (
	"context"
)

//go:generate mockgen -source=interfaces.go -destination=./app_mock.go -package=app

type Runner interface {
	Run(ctx context.Context, complexity uint8) error
}

// Service runs alongside the Runner and stops when its ctx is cancelled.
type Service interface {
	Serve(ctx context.Context) error
}
