package sysfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAttr(t *testing.T, root, p, content string) {
	t.Helper()
	full := filepath.Join(root, p)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestReadAccessors(t *testing.T) {
	root := t.TempDir()
	fs := New(root)

	writeAttr(t, root, "/sys/fan1_input", "12000\n")
	writeAttr(t, root, "/sys/hex", "0x1f\n")
	writeAttr(t, root, "/sys/rawhex", "3c\n")
	writeAttr(t, root, "/sys/temp", " 41.5 \n")
	writeAttr(t, root, "/sys/present", "1\n")
	writeAttr(t, root, "/sys/fault", "off")
	writeAttr(t, root, "/sys/junk", "abc")

	t.Run("int", func(t *testing.T) {
		v, err := fs.ReadInt("/sys/fan1_input")
		require.NoError(t, err)
		assert.Equal(t, int64(12000), v)
	})

	t.Run("int hex prefix", func(t *testing.T) {
		v, err := fs.ReadInt("/sys/hex")
		require.NoError(t, err)
		assert.Equal(t, int64(0x1f), v)
	})

	t.Run("uint base16", func(t *testing.T) {
		v, err := fs.ReadUint("/sys/rawhex", 16)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x3c), v)

		v, err = fs.ReadUint("/sys/hex", 16)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x1f), v)
	})

	t.Run("float", func(t *testing.T) {
		v, err := fs.ReadFloat("/sys/temp")
		require.NoError(t, err)
		assert.InDelta(t, 41.5, v, 0.001)
	})

	t.Run("bool", func(t *testing.T) {
		v, err := fs.ReadBool("/sys/present")
		require.NoError(t, err)
		assert.True(t, v)

		v, err = fs.ReadBool("/sys/fault")
		require.NoError(t, err)
		assert.False(t, v)
	})

	t.Run("parse error", func(t *testing.T) {
		_, err := fs.ReadInt("/sys/junk")
		assert.ErrorIs(t, err, ErrParse)

		_, err = fs.ReadBool("/sys/junk")
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := fs.ReadString("/sys/nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, errors.Is(err, os.ErrNotExist))
		assert.False(t, fs.Exists("/sys/nope"))
		assert.True(t, fs.Exists("/sys/present"))
	})
}

func TestReadBytes(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	writeAttr(t, root, "/eeprom", "0123456789")

	b, err := fs.ReadBytes("/eeprom", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), b)

	b, err = fs.ReadBytes("/eeprom", 6, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("6789"), b)

	b, err = fs.ReadBytes("/eeprom", 8, 4)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, []byte("89"), b)

	_, err = fs.ReadBytes("/missing", 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWrite(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	writeAttr(t, root, "/sys/pwm1", "0")
	writeAttr(t, root, "/sys/lpmode", "0")

	require.NoError(t, fs.WriteInt("/sys/pwm1", 153))
	v, err := fs.ReadInt("/sys/pwm1")
	require.NoError(t, err)
	assert.Equal(t, int64(153), v)

	require.NoError(t, fs.WriteBool("/sys/lpmode", true))
	s, err := fs.ReadString("/sys/lpmode")
	require.NoError(t, err)
	assert.Equal(t, "1", s)

	err = fs.WriteString("/sys/absent", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGlob(t *testing.T) {
	root := t.TempDir()
	fs := New(root)
	writeAttr(t, root, "/sys/class/hwmon/hwmon0/temp1_input", "1")
	writeAttr(t, root, "/sys/class/hwmon/hwmon1/temp1_input", "1")

	got, err := fs.Glob("/sys/class/hwmon/hwmon*/temp1_input")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/sys/class/hwmon/hwmon0/temp1_input",
		"/sys/class/hwmon/hwmon1/temp1_input",
	}, got)
}

func TestDefaultRootFromEnv(t *testing.T) {
	t.Setenv(RootEnv, "/tmp/fake")
	assert.Equal(t, "/tmp/fake", Default().Root())

	t.Setenv(RootEnv, "")
	assert.Equal(t, "/", Default().Root())
	assert.Equal(t, "/sys/x", Default().Path("/sys/x"))
}

func TestExpand(t *testing.T) {
	got := Expand("/sys/bus/i2c/devices/{bus}-0050/port{port}/eeprom", map[string]any{
		"bus":  18,
		"port": 3,
	})
	assert.Equal(t, "/sys/bus/i2c/devices/18-0050/port3/eeprom", got)

	assert.Equal(t, "/a/{missing}", Expand("/a/{missing}", map[string]any{"x": 1}))
	assert.Equal(t, "/plain", Expand("/plain", nil))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"bus", "index"}, Placeholders("/{bus}/{index}/{bus}"))
	assert.Empty(t, Placeholders("/plain"))
	assert.Empty(t, Placeholders("/broken{"))
}
