// Package model implements the platform inventory data model.
//
// # Hierarchy
//
// The inventory is a two level hierarchy:
//
//	Inventory > Component > Attribute
//
// An Inventory represents one switch. It holds Components, each a field
// replaceable unit or sensor identified by type and name:
//
//	Inventory (x86_64-acme_ds4000-r0)
//	├── chassis/DS4000
//	├── fan/FAN-1F
//	├── psu/PSU 1
//	├── thermal/CPU Core
//	├── transceiver/Ethernet0
//	└── ...
//
// # Attributes
//
// Attributes are named values with metadata (type, access, unit, range).
// Monitoring code updates them with SetAttributeInternal; subscribers are
// notified only when a value actually changes, so periodic refreshes of an
// unchanged sensor produce no events.
//
// # Commands
//
// Components may carry commands such as a transceiver reset. Commands are
// invoked by name with a parameter map.
package model
