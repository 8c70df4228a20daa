//go:build !linux

package probe

import (
	"context"
	"errors"
)

var ErrUnsupported = errors.New("probe: systemd units are linux only")

type DBusUnits struct{}

func NewDBusUnits() *DBusUnits { return &DBusUnits{} }

func (*DBusUnits) ActiveState(context.Context, string) (string, error) {
	return "", ErrUnsupported
}

func (*DBusUnits) Close() {}
