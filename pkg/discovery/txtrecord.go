package discovery

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info. Long values are truncated.
func EncodeTXT(info *Info) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyPlatform] = truncate(info.Platform)
	txt[TXTKeyVersion] = truncate(info.Version)

	// Optional fields
	if info.HwSKU != "" {
		txt[TXTKeyHwSKU] = truncate(info.HwSKU)
	}
	if info.Serial != "" {
		txt[TXTKeySerial] = truncate(info.Serial)
	}

	return txt
}

// DecodeTXT parses TXT records of a _pmon._tcp instance.
func DecodeTXT(txt TXTRecordMap) (*Info, error) {
	info := &Info{}

	var ok bool
	info.Platform, ok = txt[TXTKeyPlatform]
	if !ok || info.Platform == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyPlatform)
	}
	info.Version, ok = txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}

	info.HwSKU = txt[TXTKeyHwSKU]
	info.Serial = txt[TXTKeySerial]
	return info, nil
}

func truncate(s string) string {
	if len(s) > MaxTXTValueLen {
		return s[:MaxTXTValueLen]
	}
	return s
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// InstanceName returns the instance name for info: Instance, or the host
// name, cut to the DNS label limit.
func InstanceName(info *Info, hostname string) string {
	name := info.Instance
	if name == "" {
		name = hostname
	}
	if i := strings.IndexByte(name, '.'); i > 0 && info.Instance == "" {
		name = name[:i]
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

func joinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
