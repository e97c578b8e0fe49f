package sysfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RootEnv is the environment variable that overrides the default root.
const RootEnv = "PMON_SYSFS_ROOT"

// Errors returned by attribute accessors.
var (
	// ErrNotFound is returned when the attribute file does not exist.
	// It also matches os.ErrNotExist.
	ErrNotFound = notFoundError{}

	// ErrParse is returned when an attribute's content cannot be parsed.
	ErrParse = errors.New("cannot parse attribute")
)

type notFoundError struct{}

func (notFoundError) Error() string        { return "attribute not found" }
func (notFoundError) Is(target error) bool { return target == os.ErrNotExist }

// FS resolves attribute paths below a root directory.
type FS struct {
	root string
}

// New returns an FS rooted at root. An empty root means "/".
func New(root string) *FS {
	if root == "" {
		root = "/"
	}
	return &FS{root: root}
}

// Default returns an FS rooted at $PMON_SYSFS_ROOT, or "/" if unset.
func Default() *FS {
	return New(os.Getenv(RootEnv))
}

// Root returns the root directory.
func (fs *FS) Root() string {
	return fs.root
}

// Path returns the host path for an attribute path.
func (fs *FS) Path(p string) string {
	if fs.root == "/" {
		return filepath.Clean(p)
	}
	return filepath.Join(fs.root, p)
}

// Exists reports whether the attribute exists.
func (fs *FS) Exists(p string) bool {
	_, err := os.Stat(fs.Path(p))
	return err == nil
}

// Glob returns attribute paths (relative to the root) matching pattern.
func (fs *FS) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(fs.Path(pattern))
	if err != nil {
		return nil, err
	}
	if fs.root == "/" {
		return matches, nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(fs.root, m)
		if err != nil {
			return nil, err
		}
		out = append(out, "/"+filepath.ToSlash(rel))
	}
	return out, nil
}

func (fs *FS) read(p string) ([]byte, error) {
	data, err := os.ReadFile(fs.Path(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// ReadString returns the attribute content with surrounding whitespace removed.
func (fs *FS) ReadString(p string) (string, error) {
	data, err := fs.read(p)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadInt parses a decimal attribute. Values prefixed with 0x are read as hex.
func (fs *FS) ReadInt(p string) (int64, error) {
	s, err := fs.ReadString(p)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %q", p, ErrParse, s)
	}
	return v, nil
}

// ReadUint parses an unsigned attribute in the given base. Base 16 accepts
// an optional 0x prefix.
func (fs *FS) ReadUint(p string, base int) (uint64, error) {
	s, err := fs.ReadString(p)
	if err != nil {
		return 0, err
	}
	if base == 16 {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %q", p, ErrParse, s)
	}
	return v, nil
}

// ReadFloat parses a floating point attribute.
func (fs *FS) ReadFloat(p string) (float64, error) {
	s, err := fs.ReadString(p)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %q", p, ErrParse, s)
	}
	return v, nil
}

// ReadBool parses a boolean attribute. Accepted forms are 1/0, true/false,
// on/off and yes/no in any case.
func (fs *FS) ReadBool(p string) (bool, error) {
	s, err := fs.ReadString(p)
	if err != nil {
		return false, err
	}
	v, ok := ParseBool(s)
	if !ok {
		return false, fmt.Errorf("%s: %w: %q", p, ErrParse, s)
	}
	return v, nil
}

// ParseBool parses the boolean forms accepted by ReadBool.
func ParseBool(s string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "on", "yes":
		return true, true
	case "0", "false", "off", "no":
		return false, true
	}
	return false, false
}

// ReadBytes reads n bytes at offset off from a binary attribute such as an
// eeprom. Short reads return the bytes available together with io.ErrUnexpectedEOF.
func (fs *FS) ReadBytes(p string, off int64, n int) ([]byte, error) {
	f, err := os.Open(fs.Path(p))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer f.Close()

	buf := make([]byte, n)
	got, err := f.ReadAt(buf, off)
	if err != nil && !(errors.Is(err, io.EOF) && got == n) {
		if errors.Is(err, io.EOF) {
			return buf[:got], io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return buf, nil
}

// WriteString writes s to the attribute.
func (fs *FS) WriteString(p, s string) error {
	f, err := os.OpenFile(fs.Path(p), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return fmt.Errorf("failed to open %s: %w", p, err)
	}
	_, werr := f.WriteString(s)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("failed to write %s: %w", p, werr)
	}
	return cerr
}

// WriteInt writes a decimal integer to the attribute.
func (fs *FS) WriteInt(p string, v int64) error {
	return fs.WriteString(p, strconv.FormatInt(v, 10))
}

// WriteBool writes 1 or 0 to the attribute.
func (fs *FS) WriteBool(p string, v bool) error {
	if v {
		return fs.WriteString(p, "1")
	}
	return fs.WriteString(p, "0")
}

// WriteBytes writes data at offset off of a binary attribute.
func (fs *FS) WriteBytes(p string, off int64, data []byte) error {
	f, err := os.OpenFile(fs.Path(p), os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return fmt.Errorf("failed to open %s: %w", p, err)
	}
	_, werr := f.WriteAt(data, off)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("failed to write %s: %w", p, werr)
	}
	return cerr
}
