//go:build linux

package probe

import (
	"errors"
	"fmt"
	"testing"

	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestIsNoSuchUnit(t *testing.T) {
	t.Parallel()
	noUnit := godbus.Error{Name: errNoSuchUnit, Body: []any{"Unit x.service not loaded."}}

	assert.True(t, isNoSuchUnit(noUnit))
	assert.True(t, isNoSuchUnit(fmt.Errorf("get: %w", noUnit)))
	assert.False(t, isNoSuchUnit(godbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}))
	assert.False(t, isNoSuchUnit(errors.New("connection reset")))
}
