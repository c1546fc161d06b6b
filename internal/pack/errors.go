package pack

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrNoExtensions    = errors.New("empty extension list")
	ErrTaskTimeout     = errors.New("task timed out")
	ErrTaskPanic       = errors.New("task panicked")
	ErrPoolUnavailable = errors.New("worker pool unavailable")
)

func configError(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

func configErrorf(format string, args ...any) error {
	return configError(fmt.Errorf(format, args...))
}
