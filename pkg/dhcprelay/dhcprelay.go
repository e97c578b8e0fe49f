// Package dhcprelay generates the DHCP relay programs of a switch from its
// CONFIG_DB tables.
//
// Every VLAN with DHCP servers and an address of the same family gets one
// relay. IPv4 relays are dhcrelay processes, one per VLAN, listening
// downstream on the VLAN (-id) and upstream on every port channel and
// routed interface (-iu). IPv6 relays are entries of the single dhcp6relay
// process.
package dhcprelay

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/netplatform/pmon-go/pkg/dbmon"
)

// CONFIG_DB tables read by FromSnapshot.
const (
	TableVlan          = "VLAN"
	TableVlanInterface = "VLAN_INTERFACE"
	TableVlanMember    = "VLAN_MEMBER"
	TablePortChannel   = "PORTCHANNEL"
	TableInterface     = "INTERFACE"
	TableDHCPRelay     = "DHCP_RELAY"
)

// Tables lists every table the generator depends on.
var Tables = []string{TableVlan, TableVlanInterface, TableVlanMember, TablePortChannel, TableInterface, TableDHCPRelay}

// Default program paths.
const (
	DHCRelayPath   = "/usr/sbin/dhcrelay"
	DHCP6RelayPath = "/usr/sbin/dhcp6relay"
	AliasMapFile   = "/tmp/port-name-alias-map.txt"
)

// Vlan is the relay-relevant configuration of one VLAN.
type Vlan struct {
	Name          string
	Members       []string
	Addresses     []netip.Prefix
	DHCPServers   []string
	DHCPv6Servers []string
}

// Config is the input of Generate.
type Config struct {
	Vlans        []Vlan
	PortChannels []string

	// Interfaces are routed ports and sub-interfaces with an address.
	Interfaces []string
}

// Program is one relay process.
type Program struct {
	Name string   `json:"name"`
	Path string   `json:"path"`
	Args []string `json:"args"`
}

// CommandLine returns the program and its arguments joined by spaces.
func (p Program) CommandLine() string {
	return strings.Join(append([]string{p.Path}, p.Args...), " ")
}

// Relay6 is one VLAN served by dhcp6relay.
type Relay6 struct {
	Vlan    string   `json:"vlan"`
	Servers []string `json:"servers"`

	// LinkAddress is the VLAN's global IPv6 address used as link-address.
	LinkAddress string `json:"link_address"`
}

// Result is the output of Generate.
type Result struct {
	V4 []Program `json:"v4,omitempty"`
	V6 []Relay6  `json:"v6,omitempty"`

	// Skipped maps VLANs that got no relay of a family to the reason,
	// e.g. "Vlan2000/ipv4".
	Skipped map[string]string `json:"skipped,omitempty"`
}

// Empty reports whether no relay is needed.
func (r *Result) Empty() bool {
	return len(r.V4) == 0 && len(r.V6) == 0
}

// Generate computes the relays for cfg. The output is sorted by VLAN name
// and does not depend on input order.
func Generate(cfg Config) *Result {
	res := &Result{Skipped: make(map[string]string)}

	vlans := append([]Vlan(nil), cfg.Vlans...)
	sort.Slice(vlans, func(i, j int) bool { return naturalLess(vlans[i].Name, vlans[j].Name) })

	members := make(map[string]bool)
	for _, v := range vlans {
		for _, m := range v.Members {
			members[m] = true
		}
	}
	upstream := upstreamInterfaces(cfg, members)

	for _, v := range vlans {
		if servers := uniqueSorted(v.DHCPServers); len(servers) > 0 {
			switch {
			case !hasFamily(v.Addresses, true):
				res.Skipped[v.Name+"/ipv4"] = "no IPv4 address"
			case len(upstream) == 0:
				res.Skipped[v.Name+"/ipv4"] = "no upstream interface"
			default:
				res.V4 = append(res.V4, dhcrelay(v.Name, upstream, servers))
			}
		}
		if servers := uniqueSorted(v.DHCPv6Servers); len(servers) > 0 {
			link, ok := globalIPv6(v.Addresses)
			if !ok {
				res.Skipped[v.Name+"/ipv6"] = "no global IPv6 address"
				continue
			}
			res.V6 = append(res.V6, Relay6{Vlan: v.Name, Servers: servers, LinkAddress: link.String()})
		}
	}
	return res
}

func dhcrelay(vlan string, upstream, servers []string) Program {
	args := []string{"-d", "-m", "discard", "-a", "%h:%p", "%P", "--name-alias-map-file", AliasMapFile, "-id", vlan}
	for _, u := range upstream {
		args = append(args, "-iu", u)
	}
	args = append(args, servers...)
	return Program{Name: "isc-dhcpv4-relay-" + vlan, Path: DHCRelayPath, Args: args}
}

// upstreamInterfaces returns the port channels and routed interfaces that
// are not VLAN members. Sub-interface names are kept as configured.
func upstreamInterfaces(cfg Config, members map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{cfg.PortChannels, cfg.Interfaces} {
		for _, name := range list {
			if name == "" || members[name] || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return naturalLess(out[i], out[j]) })
	return out
}

func hasFamily(prefixes []netip.Prefix, v4 bool) bool {
	for _, p := range prefixes {
		if p.Addr().Is4() == v4 {
			return true
		}
	}
	return false
}

func globalIPv6(prefixes []netip.Prefix) (netip.Addr, bool) {
	for _, p := range prefixes {
		a := p.Addr()
		if a.Is6() && !a.Is4In6() && a.IsGlobalUnicast() {
			return a, true
		}
	}
	return netip.Addr{}, false
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FromSnapshot builds a Config from CONFIG_DB tables. Malformed addresses
// are returned as an error together with the rest of the config.
func FromSnapshot(snap dbmon.Snapshot) (Config, error) {
	var cfg Config
	var errs []string

	byName := make(map[string]*Vlan)
	for name, entry := range snap[TableVlan] {
		byName[name] = &Vlan{Name: name, DHCPServers: listField(entry, "dhcp_servers")}
	}
	for key, entry := range snap[TableDHCPRelay] {
		if v, ok := byName[key]; ok {
			v.DHCPv6Servers = listField(entry, "dhcpv6_servers")
		}
	}
	for key := range snap[TableVlanMember] {
		vlan, port, ok := dbmon.SplitKey(key)
		if v, found := byName[vlan]; ok && found {
			v.Members = append(v.Members, port)
		}
	}
	for key := range snap[TableVlanInterface] {
		vlan, addr, ok := dbmon.SplitKey(key)
		if !ok {
			continue
		}
		v, found := byName[vlan]
		if !found {
			continue
		}
		p, err := netip.ParsePrefix(addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s|%s: %v", TableVlanInterface, key, err))
			continue
		}
		v.Addresses = append(v.Addresses, p)
	}
	for _, v := range byName {
		sort.Strings(v.Members)
		sort.Slice(v.Addresses, func(i, j int) bool { return v.Addresses[i].String() < v.Addresses[j].String() })
		cfg.Vlans = append(cfg.Vlans, *v)
	}

	for name := range snap[TablePortChannel] {
		cfg.PortChannels = append(cfg.PortChannels, name)
	}
	ifaces := make(map[string]bool)
	for key := range snap[TableInterface] {
		name, _, _ := dbmon.SplitKey(key)
		ifaces[name] = true
	}
	for name := range ifaces {
		cfg.Interfaces = append(cfg.Interfaces, name)
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return cfg, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// listField reads a CONFIG_DB list field, stored as "<name>@" with comma
// separated values.
func listField(e dbmon.Entry, name string) []string {
	v, ok := e[name+"@"]
	if !ok {
		v, ok = e[name]
	}
	if !ok || v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// naturalLess orders Vlan100 before Vlan1000 and Ethernet4 before Ethernet12.
func naturalLess(a, b string) bool {
	pa, na := splitTrailingNumber(a)
	pb, nb := splitTrailingNumber(b)
	if pa != pb || na < 0 || nb < 0 {
		return a < b
	}
	return na < nb
}

func splitTrailingNumber(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) || len(s)-i > 9 {
		return s, -1
	}
	n := 0
	for _, c := range s[i:] {
		n = n*10 + int(c-'0')
	}
	return s[:i], n
}
