package onie

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// Layout constants of the TlvInfo header.
const (
	Magic      = "TlvInfo\x00"
	Version    = 0x01
	HeaderSize = 11

	// MaxSize is the largest EEPROM image the format allows.
	MaxSize = 2048

	// MaxValueLen is the largest value a single TLV can hold.
	MaxValueLen = 255

	// DateLayout is the manufacture date format, MM/DD/YYYY HH:NN:SS.
	DateLayout = "01/02/2006 15:04:05"
)

// Decode errors.
var (
	ErrBadHeader  = errors.New("not a TlvInfo eeprom")
	ErrBadVersion = errors.New("unsupported TlvInfo version")
	ErrTruncated  = errors.New("eeprom data truncated")
	ErrMissingCRC = errors.New("eeprom has no CRC-32 record")
	ErrBadCRC     = errors.New("eeprom CRC-32 mismatch")
	ErrNoField    = errors.New("field not present")
	ErrTooLarge   = errors.New("eeprom data too large")
)

// Info is a decoded system EEPROM.
type Info struct {
	Version uint8

	// TLVs in EEPROM order, excluding the CRC record.
	TLVs []TLV

	// CRC is the stored checksum; CRCValid reports whether it matched.
	// HasCRC is false when the image ended without a CRC record.
	CRC      uint32
	CRCValid bool
	HasCRC   bool
}

// Decode parses a TlvInfo image. When the stored checksum does not match,
// the decoded Info is returned together with ErrBadCRC so that callers can
// still display the content.
func Decode(data []byte) (*Info, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncated
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, ErrBadHeader
	}
	info := &Info{Version: data[8]}
	if info.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, info.Version)
	}
	total := int(binary.BigEndian.Uint16(data[9:11]))
	end := HeaderSize + total
	if end > len(data) {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrTruncated, total, len(data)-HeaderSize)
	}

	pos := HeaderSize
	for pos < end {
		if pos+2 > end {
			return nil, fmt.Errorf("%w: record header at offset %d", ErrTruncated, pos)
		}
		code, n := Code(data[pos]), int(data[pos+1])
		if pos+2+n > end {
			return nil, fmt.Errorf("%w: record 0x%02X at offset %d", ErrTruncated, uint8(code), pos)
		}
		value := data[pos+2 : pos+2+n]

		if code == CodeCRC32 {
			if n != 4 {
				return nil, fmt.Errorf("%w: CRC record length %d", ErrBadCRC, n)
			}
			info.CRC = binary.BigEndian.Uint32(value)
			info.HasCRC = true
			info.CRCValid = crc32.ChecksumIEEE(data[:pos+2]) == info.CRC
			if !info.CRCValid {
				return info, ErrBadCRC
			}
			return info, nil
		}

		info.TLVs = append(info.TLVs, TLV{Code: code, Value: append([]byte(nil), value...)})
		pos += 2 + n
	}
	return info, ErrMissingCRC
}

// ReadFrom decodes the image stored in r, reading the header first to learn
// how many bytes follow.
func ReadFrom(r io.ReaderAt) (*Info, error) {
	hdr := make([]byte, HeaderSize)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr[:len(Magic)]) != Magic {
		return nil, ErrBadHeader
	}
	total := int(binary.BigEndian.Uint16(hdr[9:11]))
	if HeaderSize+total > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, HeaderSize+total)
	}
	data := make([]byte, HeaderSize+total)
	n, err := r.ReadAt(data, 0)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(data)) {
		if errors.Is(err, io.EOF) {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return Decode(data)
}

// Encode serializes info with a freshly computed checksum.
func Encode(info *Info) ([]byte, error) {
	total := 6 // CRC record
	for _, t := range info.TLVs {
		if t.Code == CodeCRC32 {
			continue
		}
		if len(t.Value) > MaxValueLen {
			return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, t.Code, len(t.Value))
		}
		total += 2 + len(t.Value)
	}
	if HeaderSize+total > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, HeaderSize+total)
	}

	buf := make([]byte, 0, HeaderSize+total)
	buf = append(buf, Magic...)
	buf = append(buf, Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(total))
	for _, t := range info.TLVs {
		if t.Code == CodeCRC32 {
			continue
		}
		buf = append(buf, byte(t.Code), byte(len(t.Value)))
		buf = append(buf, t.Value...)
	}
	buf = append(buf, byte(CodeCRC32), 4)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf, nil
}

// Get returns the first record with the given code.
func (i *Info) Get(code Code) (TLV, bool) {
	for _, t := range i.TLVs {
		if t.Code == code {
			return t, true
		}
	}
	return TLV{}, false
}

// Set replaces the value of the first record with code, or appends a new one.
func (i *Info) Set(code Code, value []byte) error {
	if code == CodeCRC32 {
		return fmt.Errorf("CRC-32 is computed on encode")
	}
	if len(value) > MaxValueLen {
		return fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, code, len(value))
	}
	for n := range i.TLVs {
		if i.TLVs[n].Code == code && code != CodeVendorExtension {
			i.TLVs[n].Value = value
			return nil
		}
	}
	i.TLVs = append(i.TLVs, TLV{Code: code, Value: value})
	return nil
}

// Remove deletes every record with code and reports whether any existed.
func (i *Info) Remove(code Code) bool {
	kept := i.TLVs[:0]
	for _, t := range i.TLVs {
		if t.Code != code {
			kept = append(kept, t)
		}
	}
	removed := len(kept) != len(i.TLVs)
	i.TLVs = kept
	return removed
}

// Text returns a text field, or "" when absent.
func (i *Info) Text(code Code) string {
	t, ok := i.Get(code)
	if !ok {
		return ""
	}
	return strings.TrimRight(string(t.Value), "\x00")
}

func (i *Info) ProductName() string   { return i.Text(CodeProductName) }
func (i *Info) PartNumber() string    { return i.Text(CodePartNumber) }
func (i *Info) SerialNumber() string  { return i.Text(CodeSerialNumber) }
func (i *Info) LabelRevision() string { return i.Text(CodeLabelRevision) }
func (i *Info) PlatformName() string  { return i.Text(CodePlatformName) }
func (i *Info) ONIEVersion() string   { return i.Text(CodeONIEVersion) }
func (i *Info) Manufacturer() string  { return i.Text(CodeManufacturer) }
func (i *Info) CountryCode() string   { return i.Text(CodeCountryCode) }
func (i *Info) Vendor() string        { return i.Text(CodeVendor) }
func (i *Info) DiagVersion() string   { return i.Text(CodeDiagVersion) }
func (i *Info) ServiceTag() string    { return i.Text(CodeServiceTag) }

// BaseMAC returns the base ethernet address.
func (i *Info) BaseMAC() (net.HardwareAddr, error) {
	t, ok := i.Get(CodeBaseMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoField, CodeBaseMAC)
	}
	if len(t.Value) != 6 {
		return nil, fmt.Errorf("base MAC has %d bytes", len(t.Value))
	}
	return net.HardwareAddr(t.Value), nil
}

// MACCount returns the number of consecutive MAC addresses reserved.
func (i *Info) MACCount() (uint16, error) {
	t, ok := i.Get(CodeMACCount)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoField, CodeMACCount)
	}
	if len(t.Value) != 2 {
		return 0, fmt.Errorf("MAC count has %d bytes", len(t.Value))
	}
	return binary.BigEndian.Uint16(t.Value), nil
}

// DeviceVersion returns the single byte hardware revision.
func (i *Info) DeviceVersion() (uint8, error) {
	t, ok := i.Get(CodeDeviceVersion)
	if !ok || len(t.Value) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoField, CodeDeviceVersion)
	}
	return t.Value[0], nil
}

// ManufactureDate parses the manufacture date record.
func (i *Info) ManufactureDate() (time.Time, error) {
	s := i.Text(CodeManufactureDate)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoField, CodeManufactureDate)
	}
	return time.Parse(DateLayout, s)
}

// VendorExtensions returns every 0xFD record.
func (i *Info) VendorExtensions() []VendorExtension {
	var out []VendorExtension
	for _, t := range i.TLVs {
		if t.Code != CodeVendorExtension || len(t.Value) < 4 {
			continue
		}
		out = append(out, VendorExtension{
			IANA: binary.BigEndian.Uint32(t.Value[:4]),
			Data: t.Value[4:],
		})
	}
	return out
}

// FormatValue renders a record value for display.
func FormatValue(t TLV) string {
	switch t.Code {
	case CodeBaseMAC:
		if len(t.Value) == 6 {
			return strings.ToUpper(net.HardwareAddr(t.Value).String())
		}
	case CodeMACCount:
		if len(t.Value) == 2 {
			return strconv.Itoa(int(binary.BigEndian.Uint16(t.Value)))
		}
	case CodeDeviceVersion:
		if len(t.Value) == 1 {
			return strconv.Itoa(int(t.Value[0]))
		}
	case CodeCRC32:
		if len(t.Value) == 4 {
			return fmt.Sprintf("0x%08X", binary.BigEndian.Uint32(t.Value))
		}
	case CodeVendorExtension:
		parts := make([]string, len(t.Value))
		for n, b := range t.Value {
			parts[n] = fmt.Sprintf("0x%02X", b)
		}
		return strings.Join(parts, " ")
	}
	if !t.Code.Known() {
		return fmt.Sprintf("% X", t.Value)
	}
	return strings.TrimRight(string(t.Value), "\x00")
}

// ParseValue converts the display form of a value back into record bytes.
func ParseValue(code Code, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch code {
	case CodeBaseMAC:
		mac, err := net.ParseMAC(s)
		if err != nil || len(mac) != 6 {
			return nil, fmt.Errorf("invalid MAC %q", s)
		}
		return mac, nil
	case CodeMACCount:
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid MAC count %q: %w", s, err)
		}
		return binary.BigEndian.AppendUint16(nil, uint16(v)), nil
	case CodeDeviceVersion:
		v, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid device version %q: %w", s, err)
		}
		return []byte{uint8(v)}, nil
	case CodeManufactureDate:
		if _, err := time.Parse(DateLayout, s); err != nil {
			return nil, fmt.Errorf("invalid manufacture date %q: want MM/DD/YYYY HH:NN:SS", s)
		}
	case CodeCountryCode:
		if len(s) != 2 {
			return nil, fmt.Errorf("country code must be 2 characters")
		}
	case CodeVendorExtension:
		var out []byte
		for _, f := range strings.Fields(s) {
			v, err := strconv.ParseUint(f, 0, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid vendor extension byte %q", f)
			}
			out = append(out, uint8(v))
		}
		return out, nil
	case CodeCRC32:
		return nil, fmt.Errorf("CRC-32 is computed on encode")
	}
	if len(s) > MaxValueLen {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, code, len(s))
	}
	return []byte(s), nil
}

// Field is one display row.
type Field struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	Len   int    `json:"len"`
	Value string `json:"value"`
}

// Fields returns the display rows of info, including the CRC record when
// the image had one.
func (i *Info) Fields() []Field {
	rows := make([]Field, 0, len(i.TLVs)+1)
	for _, t := range i.TLVs {
		rows = append(rows, Field{Name: t.Code.String(), Code: t.Code.Hex(), Len: len(t.Value), Value: FormatValue(t)})
	}
	if i.HasCRC {
		crc := TLV{Code: CodeCRC32, Value: binary.BigEndian.AppendUint32(nil, i.CRC)}
		rows = append(rows, Field{Name: crc.Code.String(), Code: crc.Code.Hex(), Len: 4, Value: FormatValue(crc)})
	}
	return rows
}
