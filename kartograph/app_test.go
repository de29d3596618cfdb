//go:build unit

package kartograph

import (
	"sync/atomic"
	"testing"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appFunc func(l *Launcher) error

func (f appFunc) Run(l *Launcher) error { return f(l) }

func TestLauncherAddValidation(t *testing.T) {
	t.Parallel()

	noop := appFunc(func(*Launcher) error { return nil })

	t.Run("nil receiver", func(t *testing.T) {
		t.Parallel()

		var l *Launcher

		require.ErrorIs(t, l.Add("relay", noop), ErrNilLauncher)
	})

	t.Run("empty name", func(t *testing.T) {
		t.Parallel()

		l := NewLauncher(WithLogger(log.NewNop()))

		require.ErrorIs(t, l.Add("   ", noop), ErrEmptyApp)
	})

	t.Run("nil app", func(t *testing.T) {
		t.Parallel()

		l := NewLauncher(WithLogger(log.NewNop()))

		require.ErrorIs(t, l.Add("relay", nil), ErrNilApp)
	})
}

func TestLauncherRunWithErrorRequiresLogger(t *testing.T) {
	t.Parallel()

	l := NewLauncher()

	require.ErrorIs(t, l.RunWithError(), ErrLoggerNil)
}

func TestLauncherRunsAllApps(t *testing.T) {
	t.Parallel()

	var ran atomic.Int32

	app := appFunc(func(*Launcher) error {
		ran.Add(1)
		return nil
	})

	l := NewLauncher(
		WithLogger(log.NewNop()),
		RunApp("first", app),
		RunApp("second", app),
	)

	require.NoError(t, l.RunWithError())
	assert.Equal(t, int32(2), ran.Load())
}

func TestLauncherSurfacesConfigErrors(t *testing.T) {
	t.Parallel()

	l := NewLauncher(
		WithLogger(log.NewNop()),
		RunApp("", appFunc(func(*Launcher) error { return nil })),
	)

	err := l.RunWithError()

	require.ErrorIs(t, err, ErrConfigFailed)
	require.ErrorIs(t, err, ErrEmptyApp)
}

func TestLauncherSurvivesPanickingApp(t *testing.T) {
	t.Parallel()

	var ran atomic.Int32

	l := NewLauncher(
		WithLogger(log.NewNop()),
		RunApp("panics", appFunc(func(*Launcher) error { panic("boom") })),
		RunApp("healthy", appFunc(func(*Launcher) error {
			ran.Add(1)
			return nil
		})),
	)

	require.NoError(t, l.RunWithError())
	assert.Equal(t, int32(1), ran.Load())
}

func TestLauncherZeroValueIsUsable(t *testing.T) {
	t.Parallel()

	l := &Launcher{Logger: log.NewNop()}

	require.NoError(t, l.Add("relay", appFunc(func(*Launcher) error { return nil })))
	require.NoError(t, l.RunWithError())
}
