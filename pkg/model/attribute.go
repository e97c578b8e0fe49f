package model

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Access flags for attributes.
type Access uint8

const (
	// AccessRead allows reading the attribute.
	AccessRead Access = 1 << iota

	// AccessWrite allows writing the attribute.
	AccessWrite

	// AccessSubscribe allows subscribing to changes.
	AccessSubscribe

	// AccessReadOnly is read and subscribe.
	AccessReadOnly = AccessRead | AccessSubscribe

	// AccessReadWrite is read, write, and subscribe.
	AccessReadWrite = AccessRead | AccessWrite | AccessSubscribe
)

// CanRead returns true if reading is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite returns true if writing is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// CanSubscribe returns true if subscribing is allowed.
func (a Access) CanSubscribe() bool { return a&AccessSubscribe != 0 }

// String returns the access flags as a string.
func (a Access) String() string {
	var s string
	if a.CanRead() {
		s += "R"
	}
	if a.CanWrite() {
		s += "W"
	}
	if a.CanSubscribe() {
		s += "S"
	}
	if s == "" {
		return "-"
	}
	return s
}

// DataType represents the type of an attribute value.
type DataType uint8

const (
	DataTypeUnknown DataType = iota
	DataTypeBool
	DataTypeInt
	DataTypeFloat
	DataTypeString
	DataTypeEnum
)

// String returns the data type name.
func (d DataType) String() string {
	names := []string{"unknown", "bool", "int", "float", "string", "enum"}
	if int(d) < len(names) {
		return names[d]
	}
	return "unknown"
}

// AttributeMetadata describes an attribute's properties.
type AttributeMetadata struct {
	// Name identifies the attribute within its component, e.g. "speed".
	Name string

	Type   DataType
	Access Access

	// Nullable indicates if nil is a valid value. Nil marks a reading that
	// is currently unavailable.
	Nullable bool

	// MinValue and MaxValue bound numeric values.
	MinValue any
	MaxValue any

	// Values lists the allowed values of an enum attribute.
	Values []string

	Default any

	// Unit is the unit of measurement (e.g., "%", "C", "W").
	Unit string

	Description string
}

// Attribute represents an attribute instance with its current value.
type Attribute struct {
	mu       sync.RWMutex
	metadata *AttributeMetadata
	value    any
	dirty    bool // True if value changed since last report
}

// Attribute errors.
var (
	ErrAttributeNotWritable = errors.New("attribute is not writable")
	ErrAttributeNotNullable = errors.New("attribute does not accept null")
	ErrAttributeValueType   = errors.New("invalid value type for attribute")
	ErrAttributeOutOfRange  = errors.New("value out of range")
)

// NewAttribute creates a new attribute with the given metadata.
func NewAttribute(meta *AttributeMetadata) *Attribute {
	return &Attribute{
		metadata: meta,
		value:    meta.Default,
	}
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.metadata.Name
}

// Metadata returns the attribute metadata.
func (a *Attribute) Metadata() *AttributeMetadata {
	return a.metadata
}

// Value returns the current attribute value.
func (a *Attribute) Value() any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// SetValue sets the attribute value and reports whether it changed.
// Returns an error if the attribute is not writable or the value is invalid.
func (a *Attribute) SetValue(value any) (bool, error) {
	if !a.metadata.Access.CanWrite() {
		return false, ErrAttributeNotWritable
	}
	return a.SetValueInternal(value)
}

// SetValueInternal sets the value without checking write access and reports
// whether it changed. Used by monitoring code to update read-only attributes.
func (a *Attribute) SetValueInternal(value any) (bool, error) {
	if value == nil && !a.metadata.Nullable {
		return false, ErrAttributeNotNullable
	}
	if value != nil {
		if err := a.validateValue(value); err != nil {
			return false, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if reflect.DeepEqual(a.value, value) {
		return false, nil
	}
	a.value = value
	a.dirty = true
	return true, nil
}

// validateValue checks if the value matches the expected type and range.
func (a *Attribute) validateValue(value any) error {
	switch a.metadata.Type {
	case DataTypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %s expects bool", ErrAttributeValueType, a.metadata.Name)
		}
	case DataTypeInt:
		if !isIntegerType(value) {
			return fmt.Errorf("%w: %s expects integer", ErrAttributeValueType, a.metadata.Name)
		}
	case DataTypeFloat:
		if !isNumericType(value) {
			return fmt.Errorf("%w: %s expects number", ErrAttributeValueType, a.metadata.Name)
		}
	case DataTypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w: %s expects string", ErrAttributeValueType, a.metadata.Name)
		}
	case DataTypeEnum:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects string", ErrAttributeValueType, a.metadata.Name)
		}
		if len(a.metadata.Values) > 0 && !contains(a.metadata.Values, s) {
			return fmt.Errorf("%w: %s does not allow %q", ErrAttributeOutOfRange, a.metadata.Name, s)
		}
	}

	if a.metadata.MinValue != nil || a.metadata.MaxValue != nil {
		return a.checkRange(value)
	}
	return nil
}

// checkRange validates numeric range constraints.
func (a *Attribute) checkRange(value any) error {
	v, ok := toFloat64(value)
	if !ok {
		return nil
	}
	if a.metadata.MinValue != nil {
		lo, _ := toFloat64(a.metadata.MinValue)
		if v < lo {
			return fmt.Errorf("%w: %v < %v", ErrAttributeOutOfRange, value, a.metadata.MinValue)
		}
	}
	if a.metadata.MaxValue != nil {
		hi, _ := toFloat64(a.metadata.MaxValue)
		if v > hi {
			return fmt.Errorf("%w: %v > %v", ErrAttributeOutOfRange, value, a.metadata.MaxValue)
		}
	}
	return nil
}

// IsDirty returns true if the value changed since the last ClearDirty call.
func (a *Attribute) IsDirty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dirty
}

// ClearDirty clears the dirty flag.
func (a *Attribute) ClearDirty() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirty = false
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func isIntegerType(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

func isNumericType(v any) bool {
	_, ok := toFloat64(v)
	return ok
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
