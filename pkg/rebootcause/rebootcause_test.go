package rebootcause

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/netplatform/pmon-go/pkg/persistence"
	"github.com/netplatform/pmon-go/pkg/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hwCause struct {
	rc  platform.RebootCause
	err error
}

func (h hwCause) RebootCause(context.Context) (platform.RebootCause, error) { return h.rc, h.err }

type fixture struct {
	dir   string
	file  string
	store *persistence.StateStore
	boot  time.Time
}

func newFixture(t *testing.T, software string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:   dir,
		file:  filepath.Join(dir, "reboot-cause", "reboot-cause.txt"),
		store: persistence.NewStateStore(filepath.Join(dir, "state.json")),
		boot:  time.Date(2026, 3, 3, 10, 2, 0, 0, time.UTC),
	}
	if software != "" {
		require.NoError(t, os.MkdirAll(filepath.Dir(f.file), 0755))
		require.NoError(t, os.WriteFile(f.file, []byte(software+"\n"), 0644))
	}
	return f
}

func (f *fixture) determiner(hw HardwareSource) *Determiner {
	return &Determiner{
		Hardware:  hw,
		CauseFile: f.file,
		Store:     f.store,
		Platform:  "x86_64-acme_ds4000-r0",
		BootTime:  func() (time.Time, error) { return f.boot, nil },
	}
}

const userReboot = "User issued 'reboot' command [User: admin, Time: Tue 03 Mar 2026 10:01:02 AM UTC]"

func TestDeterminePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		hw       HardwareSource
		software string
		want     string
		hardware bool
	}{
		{"HardwareWins", hwCause{rc: platform.RebootCause{Cause: platform.CausePowerLoss}}, userReboot, platform.CausePowerLoss, true},
		{"NonHardwareUsesSoftware", hwCause{rc: platform.RebootCause{Cause: platform.CauseNonHardware}}, userReboot, "User issued 'reboot' command", false},
		{"HardwareErrorUsesSoftware", hwCause{err: errors.New("i2c read failed")}, userReboot, "User issued 'reboot' command", false},
		{"NoHardwareSource", nil, userReboot, "User issued 'reboot' command", false},
		{"NothingKnown", hwCause{rc: platform.RebootCause{Cause: platform.CauseNonHardware}}, "", platform.CauseUnknown, false},
		{"SoftwareUnknown", nil, "Unknown", platform.CauseUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.software)
			res, err := f.determiner(tt.hw).Determine(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Cause)
			assert.Equal(t, tt.hardware, res.Hardware)
			assert.True(t, res.Recorded)
			assert.Equal(t, f.boot, res.BootTime)
			assert.False(t, res.Time.IsZero())
		})
	}
}

func TestDetermineConsumesCauseFile(t *testing.T) {
	f := newFixture(t, userReboot)
	res, err := f.determiner(nil).Determine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "User: admin, Time: Tue 03 Mar 2026 10:01:02 AM UTC", res.Detail)

	data, err := os.ReadFile(f.file)
	require.NoError(t, err)
	assert.Equal(t, "Unknown\n", string(data))
}

func TestDetermineOncePerBoot(t *testing.T) {
	f := newFixture(t, userReboot)
	d := f.determiner(nil)

	first, err := d.Determine(context.Background())
	require.NoError(t, err)
	require.True(t, first.Recorded)

	// Daemon restart within the same boot.
	second, err := d.Determine(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Recorded)
	assert.Equal(t, first.Cause, second.Cause)

	hist, err := d.History()
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	// Next boot, unexpected: the file now says Unknown.
	f.boot = f.boot.Add(time.Hour)
	third, err := d.Determine(context.Background())
	require.NoError(t, err)
	assert.True(t, third.Recorded)
	assert.Equal(t, platform.CauseUnknown, third.Cause)

	hist, _ = d.History()
	require.Len(t, hist, 2)
	assert.Equal(t, platform.CauseUnknown, hist[0].Cause)
}

func TestHistoryBounded(t *testing.T) {
	f := newFixture(t, "")
	d := f.determiner(hwCause{rc: platform.RebootCause{Cause: platform.CauseWatchdog}})
	d.Limit = 3

	for i := 0; i < 5; i++ {
		f.boot = f.boot.Add(time.Hour)
		_, err := d.Determine(context.Background())
		require.NoError(t, err)
	}
	hist, err := d.History()
	require.NoError(t, err)
	assert.Len(t, hist, 3)
	assert.Equal(t, f.boot, hist[0].BootTime)
}

func TestParseCause(t *testing.T) {
	assert.Equal(t, platform.RebootCause{}, ParseCause("  \n"))
	assert.Equal(t, platform.RebootCause{}, ParseCause("Unknown\n"))
	assert.Equal(t, platform.RebootCause{Cause: "Kernel Panic"}, ParseCause("Kernel Panic\n"))
	assert.Equal(t,
		platform.RebootCause{Cause: "User issued 'fast-reboot' command", Detail: "User: admin"},
		ParseCause("User issued 'fast-reboot' command [User: admin]\nstale second line"))
}
