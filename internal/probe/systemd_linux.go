//go:build linux

package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
)

const errNoSuchUnit = "org.freedesktop.systemd1.NoSuchUnit"

// DBusUnits reads unit state over the systemd D-Bus API. The connection is
// opened on first use and reopened after an error.
type DBusUnits struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func NewDBusUnits() *DBusUnits { return &DBusUnits{} }

func (d *DBusUnits) ActiveState(ctx context.Context, unit string) (string, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return "", err
	}
	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnit(err) {
			return "not-found", nil
		}
		d.reset(conn)
		return "", err
	}
	if ls, _ := props["LoadState"].(string); ls == "not-found" {
		return "not-found", nil
	}
	state, ok := props["ActiveState"].(string)
	if !ok {
		return "", fmt.Errorf("ActiveState missing for %s", unit)
	}
	return state, nil
}

func isNoSuchUnit(err error) bool {
	var de godbus.Error
	if errors.As(err, &de) {
		return de.Name == errNoSuchUnit
	}
	return strings.Contains(err.Error(), "NoSuchUnit")
}

func (d *DBusUnits) connect(ctx context.Context) (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	d.conn = conn
	return conn, nil
}

func (d *DBusUnits) reset(conn *dbus.Conn) {
	d.mu.Lock()
	if d.conn == conn {
		d.conn.Close()
		d.conn = nil
	}
	d.mu.Unlock()
}

func (d *DBusUnits) Close() {
	d.mu.Lock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	d.mu.Unlock()
}
