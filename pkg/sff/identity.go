package sff

import (
	"errors"
	"fmt"
	"strings"
)

// Identifier is the SFF-8024 module type byte.
type Identifier uint8

// Module identifiers.
const (
	IdentifierUnknown Identifier = 0x00
	IdentifierGBIC    Identifier = 0x01
	IdentifierSFP     Identifier = 0x03
	IdentifierQSFP    Identifier = 0x0C
	IdentifierQSFPP   Identifier = 0x0D
	IdentifierQSFP28  Identifier = 0x11
	IdentifierQSFPDD  Identifier = 0x18
	IdentifierOSFP    Identifier = 0x19
	IdentifierQSFP112 Identifier = 0x1E
)

// String returns the conventional module type name.
func (id Identifier) String() string {
	switch id {
	case IdentifierGBIC:
		return "GBIC"
	case IdentifierSFP:
		return "SFP/SFP+/SFP28"
	case IdentifierQSFP:
		return "QSFP"
	case IdentifierQSFPP:
		return "QSFP+ or later"
	case IdentifierQSFP28:
		return "QSFP28 or later"
	case IdentifierQSFPDD:
		return "QSFP-DD Double Density 8X Pluggable Transceiver"
	case IdentifierOSFP:
		return "OSFP 8X Pluggable Transceiver"
	case IdentifierQSFP112:
		return "QSFP112"
	default:
		return fmt.Sprintf("Unknown (0x%02X)", uint8(id))
	}
}

// Family groups identifiers that share a memory map.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilySFF8472 // SFP: A0h/A2h pages
	FamilySFF8636 // QSFP: lower page + upper page 00h
	FamilyCMIS    // QSFP-DD, OSFP
)

// Family returns the memory map used by id.
func (id Identifier) Family() Family {
	switch id {
	case IdentifierGBIC, IdentifierSFP:
		return FamilySFF8472
	case IdentifierQSFP, IdentifierQSFPP, IdentifierQSFP28:
		return FamilySFF8636
	case IdentifierQSFPDD, IdentifierOSFP, IdentifierQSFP112:
		return FamilyCMIS
	default:
		return FamilyUnknown
	}
}

// Lanes returns the number of host lanes for the module family.
func (id Identifier) Lanes() int {
	switch id.Family() {
	case FamilySFF8472:
		return 1
	case FamilySFF8636:
		return 4
	case FamilyCMIS:
		return 8
	default:
		return 0
	}
}

var connectorNames = map[uint8]string{
	0x01: "SC",
	0x07: "LC",
	0x0B: "Optical pigtail",
	0x0C: "MPO 1x12",
	0x0D: "MPO 2x16",
	0x21: "Copper pigtail",
	0x22: "RJ45",
	0x23: "No separable connector",
	0x24: "MXC 2x16",
	0x25: "CS optical connector",
	0x26: "SN optical connector",
	0x27: "MPO 2x12",
	0x28: "MPO 1x16",
}

// ConnectorName returns the SFF-8024 connector name for code.
func ConnectorName(code uint8) string {
	if n, ok := connectorNames[code]; ok {
		return n
	}
	return fmt.Sprintf("Unknown (0x%02X)", code)
}

// Errors returned by the parsers.
var (
	ErrShortData         = errors.New("transceiver eeprom data too short")
	ErrUnknownIdentifier = errors.New("unknown transceiver identifier")
)

// Info is the identity block of a transceiver EEPROM.
type Info struct {
	Identifier     Identifier `json:"identifier"`
	Type           string     `json:"type"`
	VendorName     string     `json:"vendor_name"`
	VendorOUI      string     `json:"vendor_oui"`
	VendorPN       string     `json:"vendor_pn"`
	VendorRev      string     `json:"vendor_rev"`
	VendorSN       string     `json:"vendor_sn"`
	VendorDate     string     `json:"vendor_date"`
	Connector      string     `json:"connector"`
	NominalBitRate int        `json:"nominal_bit_rate_mbps,omitempty"`
}

type layout struct {
	name, oui, pn, rev, sn, date field
	connector, bitrate           int
}

type field struct{ off, n int }

var layouts = map[Family]layout{
	FamilySFF8472: {
		name: field{20, 16}, oui: field{37, 3}, pn: field{40, 16},
		rev: field{56, 4}, sn: field{68, 16}, date: field{84, 8},
		connector: 2, bitrate: 12,
	},
	FamilySFF8636: {
		name: field{148, 16}, oui: field{165, 3}, pn: field{168, 16},
		rev: field{184, 2}, sn: field{196, 16}, date: field{212, 8},
		connector: 130, bitrate: 140,
	},
	FamilyCMIS: {
		name: field{129, 16}, oui: field{145, 3}, pn: field{148, 16},
		rev: field{164, 2}, sn: field{166, 16}, date: field{182, 8},
		connector: 203, bitrate: -1,
	},
}

// ParseInfo decodes the identity fields from the first 256 bytes of a
// module's EEPROM (A0h for SFP, lower + upper page 00h otherwise).
func ParseInfo(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, ErrShortData
	}
	id := Identifier(data[0])
	l, ok := layouts[id.Family()]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownIdentifier, uint8(id))
	}
	need := l.date.off + l.date.n
	if l.connector >= need {
		need = l.connector + 1
	}
	if len(data) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortData, len(data), need)
	}

	info := &Info{
		Identifier: id,
		Type:       id.String(),
		VendorName: ascii(data, l.name),
		VendorOUI:  fmt.Sprintf("%02X-%02X-%02X", data[l.oui.off], data[l.oui.off+1], data[l.oui.off+2]),
		VendorPN:   ascii(data, l.pn),
		VendorRev:  ascii(data, l.rev),
		VendorSN:   ascii(data, l.sn),
		VendorDate: formatDate(data[l.date.off : l.date.off+l.date.n]),
		Connector:  ConnectorName(data[l.connector]),
	}
	if l.bitrate >= 0 {
		info.NominalBitRate = int(data[l.bitrate]) * 100
	}
	return info, nil
}

func ascii(data []byte, f field) string {
	b := data[f.off : f.off+f.n]
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c >= 0x20 && c < 0x7f {
			out = append(out, c)
		}
	}
	return strings.TrimSpace(string(out))
}

// formatDate renders the YYMMDDLL date code as "20YY-MM-DD lot LL".
func formatDate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) < 6 {
		return s
	}
	out := fmt.Sprintf("20%s-%s-%s", s[0:2], s[2:4], s[4:6])
	if lot := strings.TrimSpace(s[6:]); lot != "" {
		out += " lot " + lot
	}
	return out
}
