package discovery

import (
	"context"
	"net"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// Browse reports pmond instances until ctx is done. Services are
// aggregated by instance name: addresses seen on several interfaces are
// merged, and a service is reported again when it gains an address.
func Browse(ctx context.Context, config BrowserConfig) (<-chan *Service, error) {
	out := make(chan *Service)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)

		services := make(map[string]*Service)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToService(entry)
				if svc == nil {
					continue
				}
				if existing, found := services[svc.Instance]; found {
					n := len(existing.Addresses)
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					if len(existing.Addresses) == n {
						continue
					}
					svc.Addresses = append([]string(nil), existing.Addresses...)
				} else {
					services[svc.Instance] = svc
					svc = copyService(svc)
				}
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, browserOptions(config)...)
	}()

	return out, nil
}

// Find browses for timeout and returns the instances seen, in discovery
// order.
func Find(ctx context.Context, config BrowserConfig) ([]*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, BrowseTimeout)
	defer cancel()

	ch, err := Browse(ctx, config)
	if err != nil {
		return nil, err
	}
	var out []*Service
	index := make(map[string]int)
	for svc := range ch {
		if i, ok := index[svc.Instance]; ok {
			out[i] = svc
			continue
		}
		index[svc.Instance] = len(out)
		out = append(out, svc)
	}
	return out, nil
}

// browserOptions returns zeroconf client options based on config.
func browserOptions(config BrowserConfig) []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	// Select specific interface if configured
	if config.Interface != "" {
		iface, err := net.InterfaceByName(config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// entryToService converts a zeroconf entry, or returns nil when its TXT
// records are not those of pmond.
func entryToService(entry *zeroconf.ServiceEntry) *Service {
	info, err := DecodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}
	info.Instance = entry.Instance
	info.Port = uint16(entry.Port)

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Service{
		Info:      *info,
		Host:      entry.HostName,
		Addresses: addrs,
	}
}

func copyService(s *Service) *Service {
	c := *s
	c.Addresses = append([]string(nil), s.Addresses...)
	return &c
}

// mergeAddresses appends the addresses of add not yet in existing.
func mergeAddresses(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range add {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes addresses from a zeroconf entry from the list.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
