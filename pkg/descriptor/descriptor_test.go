package descriptor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlatform = "x86_64-acme_ds4000-r0"

func loadSample(t *testing.T) *Descriptor {
	t.Helper()
	d, err := Load(filepath.Join("testdata", samplePlatform+".yaml"))
	require.NoError(t, err)
	return d
}

func TestLoadSample(t *testing.T) {
	d := loadSample(t)

	assert.Equal(t, samplePlatform, d.Platform)
	assert.Equal(t, "ACME-DS4000-32C", d.HwSKU)
	assert.Equal(t, "DS4000", d.Chassis.Name)
	assert.Equal(t, "/sys/bus/i2c/devices/0-0056/eeprom", d.SysEEPROM.Path)
	assert.Equal(t, "/dev/watchdog0", d.Watchdog.Device)
	assert.Equal(t, 50, d.ThermalPolicy.DefaultSpeed)

	require.Len(t, d.FanDrawers, 1)
	require.Len(t, d.FanDrawers[0].Fans, 1)
	fan := d.FanDrawers[0].Fans[0]
	assert.Equal(t, "FAN-1F", fan.Name)
	assert.Equal(t, 24000, fan.MaxRPM)
	assert.Equal(t, 255, fan.PWMMax)
	assert.Equal(t, 20, fan.Tolerance)

	assert.Equal(t, "DS4000: 4 ports, 1 fans, 1 psus, 1 thermals, 1 components", d.String())
	assert.Equal(t, 100*time.Millisecond, d.Ports.ResetHoldOrDefault())
}

func TestSourceParams(t *testing.T) {
	d := loadSample(t)

	t.Run("I2C", func(t *testing.T) {
		src := d.PSUs[0].Presence
		p, err := src.I2C()
		require.NoError(t, err)
		assert.Equal(t, I2CParams{Bus: 0, Addr: 0x60, Reg: 0x03}, p)
		assert.Equal(t, uint64(0x01), src.Mask)
		assert.True(t, src.Invert)
		assert.Equal(t, ParseBool, src.ParseMode())
	})

	t.Run("IPMI", func(t *testing.T) {
		p, err := d.PSUs[0].Power.IPMI()
		require.NoError(t, err)
		assert.Equal(t, "PSU1_POUT", p.Sensor)
	})

	t.Run("ScalarIsConst", func(t *testing.T) {
		src := d.Thermals[0].High
		assert.Equal(t, KindConst, src.Kind)
		p, err := src.Const()
		require.NoError(t, err)
		assert.Equal(t, 85, p.Value)
	})

	t.Run("Map", func(t *testing.T) {
		assert.Equal(t, "amber", d.Chassis.StatusLED.Map["2"])
		assert.Equal(t, "Power Loss", d.Chassis.RebootCause.Map["1"])
	})

	t.Run("UnknownParam", func(t *testing.T) {
		src := &Source{Kind: KindSysfs, Params: map[string]any{"path": "/x", "bogus": 1}}
		assert.Error(t, src.Validate())
	})

	t.Run("DefaultParseMode", func(t *testing.T) {
		assert.Equal(t, ParseInt, (&Source{Kind: KindI2C}).ParseMode())
		assert.Equal(t, ParseString, (&Source{Kind: KindSysfs}).ParseMode())
	})

	t.Run("HexStringAddress", func(t *testing.T) {
		src := &Source{Kind: KindI2C, Params: map[string]any{"bus": "4", "addr": "0x50", "reg": 2}}
		p, err := src.I2C()
		require.NoError(t, err)
		assert.Equal(t, I2CParams{Bus: 4, Addr: 0x50, Reg: 2}, p)
	})
}

func TestPortTemplates(t *testing.T) {
	d := loadSample(t)
	ports := d.Ports

	assert.Equal(t, []int{0, 1, 2, 3}, ports.Indices())
	assert.True(t, ports.Contains(3))
	assert.False(t, ports.Contains(4))

	assert.Equal(t, "Ethernet0", ports.PortName(0))
	assert.Equal(t, "Ethernet8", ports.PortName(2))
	assert.Equal(t, "QSFP28", ports.TypeOf(1))
	assert.Equal(t, "", ports.TypeOf(9))
	assert.Equal(t, "/sys/bus/i2c/devices/20-0050/eeprom", ports.EEPROMPath(2))

	src := ports.SourceFor(ports.Presence, 1)
	p, err := src.Sysfs()
	require.NoError(t, err)
	assert.Equal(t, "/sys/bus/i2c/devices/19-0050/present", p.Path)

	// The template itself is untouched.
	p, err = ports.Presence.Sysfs()
	require.NoError(t, err)
	assert.Equal(t, "/sys/bus/i2c/devices/{bus}-0050/present", p.Path)
}

func TestPortNameDefault(t *testing.T) {
	p := &PortSpec{Count: 2, First: 1}
	assert.Equal(t, "Ethernet1", p.PortName(1))
	assert.Equal(t, DefaultResetHold, p.ResetHoldOrDefault())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"MissingPlatform", `chassis: {name: x}`},
		{"UnknownKind", `
platform: p
thermals:
  - name: t
    temperature: {kind: smbus, path: /x}
`},
		{"MissingTemperature", `
platform: p
thermals:
  - name: t
`},
		{"DuplicateFan", `
platform: p
fans:
  - name: f
  - name: f
`},
		{"BadParseMode", `
platform: p
thermals:
  - name: t
    temperature: {kind: sysfs, path: /x, parse: decimal}
`},
		{"UnresolvedPlaceholder", `
platform: p
ports:
  count: 2
  presence: {kind: sysfs, path: "/sys/{cage}/present"}
`},
		{"ShortVarsTable", `
platform: p
ports:
  count: 2
  vars: {bus: [1]}
`},
		{"BadLPModeControl", `
platform: p
ports:
  count: 1
  lpmodeControl: magic
`},
		{"InstallWithoutImage", `
platform: p
components:
  - name: BIOS
    version: "1.0"
    install: [flashrom]
`},
		{"BitmapOutsidePorts", `
platform: p
ports:
  count: 8
  presenceBitmap:
    - source: {kind: i2c, bus: 1, addr: 0x60, reg: 0x10}
      firstPort: 4
      bits: 8
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "error = %v", err)
		})
	}
}

func TestManager(t *testing.T) {
	t.Run("LoadDir", func(t *testing.T) {
		m, err := NewManager("testdata")
		require.NoError(t, err)
		assert.Equal(t, []string{samplePlatform}, m.List())

		d, err := m.Get(samplePlatform)
		require.NoError(t, err)
		assert.Equal(t, "DS4000", d.Chassis.Name)

		_, err = m.Get("x86_64-unknown-r0")
		assert.ErrorIs(t, err, ErrUnknownPlatform)
	})

	t.Run("MissingDir", func(t *testing.T) {
		m, err := NewManager(filepath.Join(t.TempDir(), "absent"))
		require.NoError(t, err)
		assert.Empty(t, m.List())
	})

	t.Run("SkipsOtherFiles", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("not yaml: ["), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("platform: b\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("platform: a\n"), 0o644))

		m, err := NewManager(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, m.List())
	})

	t.Run("InvalidFile", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("chassis: {}\n"), 0o644))

		_, err := NewManager(dir)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}
