package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration

	Logger *slog.Logger
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       120 * time.Second,
	}
}

// registration is the part of *zeroconf.Server the advertiser uses.
type registration interface {
	SetText(text []string)
	Shutdown()
}

type registerFunc func(instance string, port int, text []string, ifaces []net.Interface, ttl time.Duration) (registration, error)

func zeroconfRegister(instance string, port int, text []string, ifaces []net.Interface, ttl time.Duration) (registration, error) {
	var opts []zeroconf.ServerOption
	if ttl > 0 {
		opts = append(opts, zeroconf.TTL(uint32(ttl.Seconds())))
	}
	return zeroconf.Register(instance, ServiceType, Domain, port, text, ifaces, opts...)
}

// Advertiser announces one _pmon._tcp instance.
type Advertiser struct {
	config   AdvertiserConfig
	register registerFunc
	hostname func() (string, error)

	mu     sync.Mutex
	server registration
	info   Info
}

// NewAdvertiser creates a new mDNS advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Advertiser{
		config:   config,
		register: zeroconfRegister,
		hostname: os.Hostname,
	}
}

// getInterfaces returns the network interfaces to use for advertising.
// Returns nil to use all interfaces.
func (a *Advertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		a.config.Logger.Warn("advertising on all interfaces",
			slog.String("interface", a.config.Interface), slog.Any("error", err))
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts advertising info, replacing an earlier advertisement.
func (a *Advertiser) Advertise(info Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	host, err := a.hostname()
	if err != nil && info.Instance == "" {
		return fmt.Errorf("failed to get host name: %w", err)
	}
	instance := InstanceName(&info, host)
	if err := ValidateInstanceName(instance); err != nil {
		return err
	}

	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
		info.Port = DefaultPort
	}

	server, err := a.register(instance, port, TXTRecordsToStrings(EncodeTXT(&info)), a.getInterfaces(), a.config.TTL)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}
	info.Instance = instance
	a.server = server
	a.info = info

	a.config.Logger.Info("advertising",
		slog.String("service", ServiceType),
		slog.String("instance", instance),
		slog.Int("port", port))
	return nil
}

// Update replaces the TXT records of the running advertisement.
func (a *Advertiser) Update(info Info) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAdvertising
	}
	info.Instance, info.Port = a.info.Instance, a.info.Port
	a.server.SetText(TXTRecordsToStrings(EncodeTXT(&info)))
	a.info = info
	return nil
}

// Info returns what is currently advertised.
func (a *Advertiser) Info() (Info, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info, a.server != nil
}

// Stop stops the advertisement. It is safe to call more than once.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
