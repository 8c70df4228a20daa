package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dynpoll/internal/poller"
	logx "dynpoll/pkg/logx"
)

var ErrUnitNotActive = errors.New("unit not active")

// UnitStater reports a systemd unit's ActiveState ("active", "failed", ...).
type UnitStater interface {
	ActiveState(ctx context.Context, unit string) (string, error)
}

// UnitName appends ".service" when unit has no unit-type suffix.
func UnitName(unit string) string {
	u := strings.TrimSpace(unit)
	if i := strings.LastIndexByte(u, '.'); i > 0 {
		switch u[i+1:] {
		case "service", "socket", "timer", "target", "mount", "path", "slice", "scope", "device", "swap", "automount":
			return u
		}
	}
	return u + ".service"
}

// Systemd returns an executor that fails unless unit is active.
func Systemd(units UnitStater, unit string, log logx.Logger) (poller.Executor, error) {
	if units == nil {
		return nil, errors.New("probe: unit stater required")
	}
	if strings.TrimSpace(unit) == "" {
		return nil, errors.New("probe: unit required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	name := UnitName(unit)
	return func(ctx context.Context) error {
		state, err := units.ActiveState(ctx, name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		id, _ := poller.JobIDFromContext(ctx)
		log.Debug("unit state", logx.String("job", string(id)), logx.String("unit", name), logx.String("state", state))
		if state != "active" {
			return fmt.Errorf("%w: %s is %s", ErrUnitNotActive, name, state)
		}
		return nil
	}, nil
}
