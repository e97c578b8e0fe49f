package model

import (
	"errors"
	"sort"
	"sync"
)

// Inventory errors.
var (
	ErrComponentNotFound  = errors.New("component not found")
	ErrDuplicateComponent = errors.New("duplicate component")
)

// Inventory is the top-level container in the Inventory > Component >
// Attribute model. It describes one switch.
type Inventory struct {
	mu sync.RWMutex

	// Platform is the ONIE platform string.
	platform string

	hwsku  string
	serial string

	// Components indexed by key ("<type>/<name>").
	components map[string]*Component
}

// NewInventory creates an empty inventory for a platform.
func NewInventory(platform, hwsku string) *Inventory {
	return &Inventory{
		platform:   platform,
		hwsku:      hwsku,
		components: make(map[string]*Component),
	}
}

// Platform returns the platform name.
func (inv *Inventory) Platform() string {
	return inv.platform
}

// HwSKU returns the hardware SKU.
func (inv *Inventory) HwSKU() string {
	return inv.hwsku
}

// Serial returns the chassis serial number.
func (inv *Inventory) Serial() string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.serial
}

// SetSerial sets the chassis serial number.
func (inv *Inventory) SetSerial(serial string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.serial = serial
}

// Add adds a component. Returns an error if the key is already taken.
func (inv *Inventory) Add(c *Component) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if _, exists := inv.components[c.Key()]; exists {
		return ErrDuplicateComponent
	}
	inv.components[c.Key()] = c
	return nil
}

// Remove deletes a component by type and name.
func (inv *Inventory) Remove(t ComponentType, name string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.components, Key(t, name))
}

// Get returns a component by type and name.
func (inv *Inventory) Get(t ComponentType, name string) (*Component, error) {
	return inv.Lookup(Key(t, name))
}

// Lookup returns a component by key.
func (inv *Inventory) Lookup(key string) (*Component, error) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	c, exists := inv.components[key]
	if !exists {
		return nil, ErrComponentNotFound
	}
	return c, nil
}

// Components returns all components ordered by type, then name.
func (inv *Inventory) Components() []*Component {
	inv.mu.RLock()
	result := make([]*Component, 0, len(inv.components))
	for _, c := range inv.components {
		result = append(result, c)
	}
	inv.mu.RUnlock()

	sortComponents(result)
	return result
}

// ByType returns the components of one type ordered by name.
func (inv *Inventory) ByType(t ComponentType) []*Component {
	inv.mu.RLock()
	var result []*Component
	for _, c := range inv.components {
		if c.Type() == t {
			result = append(result, c)
		}
	}
	inv.mu.RUnlock()

	sortComponents(result)
	return result
}

// Len returns the number of components.
func (inv *Inventory) Len() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.components)
}

// Port-style names ("Ethernet4", "Ethernet12") sort numerically.
func sortComponents(cs []*Component) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Type() != cs[j].Type() {
			return cs[i].Type() < cs[j].Type()
		}
		return naturalLess(cs[i].Name(), cs[j].Name())
	})
}

// naturalLess compares strings treating digit runs as numbers.
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			na, ra := splitDigits(a)
			nb, rb := splitDigits(b)
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			a, b = ra, rb
		case a[0] != b[0]:
			return a[0] < b[0]
		default:
			a, b = a[1:], b[1:]
		}
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	// Leading zeros do not change the value.
	n := s[:i]
	for len(n) > 1 && n[0] == '0' {
		n = n[1:]
	}
	return n, s[i:]
}

// InventoryInfo is a snapshot of the inventory for serialization.
type InventoryInfo struct {
	Platform   string           `json:"platform"`
	HwSKU      string           `json:"hwsku,omitempty"`
	Serial     string           `json:"serial,omitempty"`
	Components []*ComponentInfo `json:"components"`
}

// Info returns a snapshot of the inventory.
func (inv *Inventory) Info() *InventoryInfo {
	cs := inv.Components()
	info := &InventoryInfo{
		Platform:   inv.platform,
		HwSKU:      inv.hwsku,
		Serial:     inv.Serial(),
		Components: make([]*ComponentInfo, 0, len(cs)),
	}
	for _, c := range cs {
		info.Components = append(info.Components, c.Info())
	}
	return info
}
