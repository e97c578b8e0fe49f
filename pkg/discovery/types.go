package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of pmond.
	ServiceType = "_pmon._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default API port.
	DefaultPort = 8787
)

// TXT record keys.
const (
	TXTKeyPlatform = "platform"
	TXTKeyHwSKU    = "hwsku"
	TXTKeySerial   = "serial"
	TXTKeyVersion  = "ver"
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTValueLen leaves room for the key in a 255 byte TXT string.
	MaxTXTValueLen = 200
)

// BrowseTimeout is the default timeout for Find.
const BrowseTimeout = 5 * time.Second

// Errors.
var (
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrNotAdvertising      = errors.New("not advertising")
)

// Info is what a switch announces about itself.
type Info struct {
	// Instance is the DNS-SD instance name; the host name when empty.
	Instance string

	Port uint16

	Platform string
	HwSKU    string
	Serial   string
	Version  string
}

// Service is a discovered pmond instance.
type Service struct {
	Info

	// Host is the advertised host name.
	Host string

	// Addresses are the IP addresses the service was seen on.
	Addresses []string
}

// URL returns the API base URL of the first address.
func (s *Service) URL() string {
	if len(s.Addresses) == 0 {
		return ""
	}
	return "http://" + joinHostPort(s.Addresses[0], s.Port)
}
