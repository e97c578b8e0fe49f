package model

import (
	"context"
	"errors"
	"sync"
)

// Component errors.
var (
	ErrAttributeNotFound    = errors.New("attribute not found")
	ErrUnknownComponentType = errors.New("unknown component type")
)

// Component is a field replaceable unit or sensor with attributes and
// commands.
type Component struct {
	mu sync.RWMutex

	componentType ComponentType
	name          string

	// parent is the key of the containing component, e.g. a fan drawer.
	parent string

	// Attributes in insertion order.
	attributes map[string]*Attribute
	order      []string

	commands map[string]*Command

	subscribers []ComponentSubscriber
}

// ComponentSubscriber is notified when attributes change.
type ComponentSubscriber interface {
	// OnAttributeChanged is called when an attribute value changes.
	OnAttributeChanged(c *Component, attr string, value any)
}

// NewComponent creates a component.
func NewComponent(componentType ComponentType, name string) *Component {
	return &Component{
		componentType: componentType,
		name:          name,
		attributes:    make(map[string]*Attribute),
		commands:      make(map[string]*Command),
	}
}

// Key returns the inventory key "<type>/<name>".
func Key(t ComponentType, name string) string {
	return t.String() + "/" + name
}

// Type returns the component type.
func (c *Component) Type() ComponentType {
	return c.componentType
}

// Name returns the component name.
func (c *Component) Name() string {
	return c.name
}

// Key returns the inventory key of the component.
func (c *Component) Key() string {
	return Key(c.componentType, c.name)
}

// Parent returns the key of the containing component, or "".
func (c *Component) Parent() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parent
}

// SetParent sets the containing component key.
func (c *Component) SetParent(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parent = key
}

// AddAttribute adds an attribute to the component.
func (c *Component) AddAttribute(attr *Attribute) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.attributes[attr.Name()]; !exists {
		c.order = append(c.order, attr.Name())
	}
	c.attributes[attr.Name()] = attr
}

// GetAttribute returns an attribute by name.
func (c *Component) GetAttribute(name string) (*Attribute, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	attr, exists := c.attributes[name]
	if !exists {
		return nil, ErrAttributeNotFound
	}
	return attr, nil
}

// ReadAttribute reads an attribute value by name.
func (c *Component) ReadAttribute(name string) (any, error) {
	attr, err := c.GetAttribute(name)
	if err != nil {
		return nil, err
	}
	if !attr.Metadata().Access.CanRead() {
		return nil, ErrAttributeNotFound // Treat non-readable as not found
	}
	return attr.Value(), nil
}

// WriteAttribute writes a writable attribute and notifies subscribers on change.
func (c *Component) WriteAttribute(name string, value any) error {
	attr, err := c.GetAttribute(name)
	if err != nil {
		return err
	}
	changed, err := attr.SetValue(value)
	if err != nil {
		return err
	}
	if changed {
		c.notifyAttributeChanged(name, value)
	}
	return nil
}

// SetAttributeInternal sets an attribute value without checking write access.
// Subscribers are notified only when the value changes.
func (c *Component) SetAttributeInternal(name string, value any) error {
	attr, err := c.GetAttribute(name)
	if err != nil {
		return err
	}
	changed, err := attr.SetValueInternal(value)
	if err != nil {
		return err
	}
	if changed {
		c.notifyAttributeChanged(name, value)
	}
	return nil
}

// ReadAllAttributes returns all readable attribute values.
func (c *Component) ReadAllAttributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]any, len(c.attributes))
	for name, attr := range c.attributes {
		if attr.Metadata().Access.CanRead() {
			result[name] = attr.Value()
		}
	}
	return result
}

// AttributeList returns the readable attribute names in insertion order.
func (c *Component) AttributeList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.order))
	for _, name := range c.order {
		if c.attributes[name].Metadata().Access.CanRead() {
			names = append(names, name)
		}
	}
	return names
}

// AddCommand adds a command to the component.
func (c *Component) AddCommand(cmd *Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands[cmd.Name()] = cmd
}

// GetCommand returns a command by name.
func (c *Component) GetCommand(name string) (*Command, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cmd, exists := c.commands[name]
	if !exists {
		return nil, ErrCommandNotFound
	}
	return cmd, nil
}

// InvokeCommand invokes a command by name.
func (c *Component) InvokeCommand(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	cmd, err := c.GetCommand(name)
	if err != nil {
		return nil, err
	}
	return cmd.Invoke(ctx, params)
}

// CommandList returns the names of all commands.
func (c *Component) CommandList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	return names
}

// Subscribe adds a subscriber for change notifications.
func (c *Component) Subscribe(sub ComponentSubscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, sub)
}

// Unsubscribe removes a subscriber.
func (c *Component) Unsubscribe(sub ComponentSubscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.subscribers {
		if s == sub {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// notifyAttributeChanged notifies all subscribers of an attribute change.
func (c *Component) notifyAttributeChanged(attr string, value any) {
	c.mu.RLock()
	subs := make([]ComponentSubscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.RUnlock()

	for _, sub := range subs {
		sub.OnAttributeChanged(c, attr, value)
	}
}

// GetDirtyAttributes returns attributes that have changed since the last report.
func (c *Component) GetDirtyAttributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]any)
	for name, attr := range c.attributes {
		if attr.IsDirty() {
			result[name] = attr.Value()
		}
	}
	return result
}

// ClearDirtyAttributes clears the dirty flag on all attributes.
func (c *Component) ClearDirtyAttributes() {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, attr := range c.attributes {
		attr.ClearDirty()
	}
}

// ComponentInfo is a snapshot of a component for serialization.
type ComponentInfo struct {
	Type       ComponentType  `json:"type"`
	Name       string         `json:"name"`
	Parent     string         `json:"parent,omitempty"`
	Attributes map[string]any `json:"attributes"`
	Commands   []string       `json:"commands,omitempty"`
}

// Info returns a snapshot of the component.
func (c *Component) Info() *ComponentInfo {
	return &ComponentInfo{
		Type:       c.componentType,
		Name:       c.name,
		Parent:     c.Parent(),
		Attributes: c.ReadAllAttributes(),
		Commands:   c.CommandList(),
	}
}
