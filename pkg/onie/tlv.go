package onie

import (
	"fmt"
	"strings"
)

// Code is a TLV type code.
type Code uint8

// TLV type codes defined by the ONIE TlvInfo format.
const (
	CodeProductName     Code = 0x21
	CodePartNumber      Code = 0x22
	CodeSerialNumber    Code = 0x23
	CodeBaseMAC         Code = 0x24
	CodeManufactureDate Code = 0x25
	CodeDeviceVersion   Code = 0x26
	CodeLabelRevision   Code = 0x27
	CodePlatformName    Code = 0x28
	CodeONIEVersion     Code = 0x29
	CodeMACCount        Code = 0x2A
	CodeManufacturer    Code = 0x2B
	CodeCountryCode     Code = 0x2C
	CodeVendor          Code = 0x2D
	CodeDiagVersion     Code = 0x2E
	CodeServiceTag      Code = 0x2F
	CodeVendorExtension Code = 0xFD
	CodeCRC32           Code = 0xFE
)

var codeNames = map[Code]string{
	CodeProductName:     "Product Name",
	CodePartNumber:      "Part Number",
	CodeSerialNumber:    "Serial Number",
	CodeBaseMAC:         "Base MAC Address",
	CodeManufactureDate: "Manufacture Date",
	CodeDeviceVersion:   "Device Version",
	CodeLabelRevision:   "Label Revision",
	CodePlatformName:    "Platform Name",
	CodeONIEVersion:     "ONIE Version",
	CodeMACCount:        "MAC Addresses",
	CodeManufacturer:    "Manufacturer",
	CodeCountryCode:     "Country Code",
	CodeVendor:          "Vendor Name",
	CodeDiagVersion:     "Diag Version",
	CodeServiceTag:      "Service Tag",
	CodeVendorExtension: "Vendor Extension",
	CodeCRC32:           "CRC-32",
}

// String returns the display name used by "show platform syseeprom".
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown 0x%02X", uint8(c))
}

// Hex returns the code formatted as 0xNN.
func (c Code) Hex() string {
	return fmt.Sprintf("0x%02X", uint8(c))
}

// Known reports whether c is a code defined by the format.
func (c Code) Known() bool {
	_, ok := codeNames[c]
	return ok
}

// CodeByName resolves a display name, a snake_case key such as
// "serial_number", or a hex code such as "0x23".
func CodeByName(name string) (Code, bool) {
	var v uint8
	if _, err := fmt.Sscanf(strings.ToLower(name), "0x%x", &v); err == nil {
		return Code(v), true
	}
	norm := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(name))
	for c, n := range codeNames {
		if strings.ToLower(strings.ReplaceAll(n, "-", " ")) == norm {
			return c, true
		}
	}
	switch norm {
	case "vendor":
		return CodeVendor, true
	case "crc", "crc32":
		return CodeCRC32, true
	case "mac count", "num macs":
		return CodeMACCount, true
	case "base mac", "mac base":
		return CodeBaseMAC, true
	}
	return 0, false
}

// TLV is a single type-length-value record.
type TLV struct {
	Code  Code
	Value []byte
}

// VendorExtension is the payload of a 0xFD record: an IANA private
// enterprise number followed by vendor defined bytes.
type VendorExtension struct {
	IANA uint32
	Data []byte
}
