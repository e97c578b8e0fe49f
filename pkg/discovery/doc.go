// Package discovery announces pmond on the management network with
// mDNS/DNS-SD and finds running instances.
//
// # Service (_pmon._tcp)
//
// Every switch running pmond registers one instance of _pmon._tcp on the
// port of its HTTP API. The instance name is the host name of the switch.
//
// TXT records:
//   - platform: ONIE platform string, e.g. x86_64-acme_ds4000-r0
//   - hwsku: hardware SKU (optional)
//   - serial: chassis serial number from the system EEPROM (optional)
//   - ver: pmond version
//
// The TXT records are updated in place when the serial number becomes known
// after the EEPROM has been read.
package discovery
