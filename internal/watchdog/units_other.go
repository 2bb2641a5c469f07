//go:build !linux

package watchdog

import (
	"context"
	"errors"
)

var ErrUnsupported = errors.New("systemd units: unsupported OS (linux only)")

type Units struct{}

func NewUnits() *Units { return &Units{} }

func (u *Units) ActiveState(context.Context, string) (string, error) { return "", ErrUnsupported }

func (u *Units) StartUnit(context.Context, string) error { return ErrUnsupported }

func (u *Units) Close() error { return nil }
