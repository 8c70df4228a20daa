package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "dynpoll/pkg/logx"
)

type fakeUnits struct {
	states map[string]string
	err    error
	asked  []string
}

func (f *fakeUnits) ActiveState(_ context.Context, unit string) (string, error) {
	f.asked = append(f.asked, unit)
	if f.err != nil {
		return "", f.err
	}
	if s, ok := f.states[unit]; ok {
		return s, nil
	}
	return "not-found", nil
}

func TestUnitName(t *testing.T) {
	assert.Equal(t, "nginx.service", UnitName("nginx"))
	assert.Equal(t, "nginx.service", UnitName(" nginx.service "))
	assert.Equal(t, "backup.timer", UnitName("backup.timer"))
	assert.Equal(t, "my.app.service", UnitName("my.app"))
}

func TestSystemdProbe(t *testing.T) {
	units := &fakeUnits{states: map[string]string{"nginx.service": "active", "db.service": "failed"}}

	ok, err := Systemd(units, "nginx", logx.Nop())
	require.NoError(t, err)
	assert.NoError(t, ok(context.Background()))

	bad, err := Systemd(units, "db", logx.Nop())
	require.NoError(t, err)
	err = bad(context.Background())
	assert.ErrorIs(t, err, ErrUnitNotActive)
	assert.Contains(t, err.Error(), "failed")

	missing, err := Systemd(units, "ghost", logx.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, missing(context.Background()), ErrUnitNotActive)

	assert.Equal(t, []string{"nginx.service", "db.service", "ghost.service"}, units.asked)
}

func TestSystemdProbeErrors(t *testing.T) {
	boom := errors.New("bus down")
	exec, err := Systemd(&fakeUnits{err: boom}, "x", logx.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, exec(context.Background()), boom)

	_, err = Systemd(nil, "x", logx.Nop())
	assert.Error(t, err)
	_, err = Systemd(&fakeUnits{}, " ", logx.Nop())
	assert.Error(t, err)
}
