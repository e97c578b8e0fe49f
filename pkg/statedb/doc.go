// Package statedb publishes platform state into the switch's Redis state
// database.
//
// Each component is written to one hash named "<TABLE>|<name>", following
// the table layout other switch services expect:
//
//	CHASSIS_INFO|chassis 1
//	EEPROM_INFO|0x21
//	FAN_INFO|FAN-1F
//	FAN_DRAWER_INFO|FanTray1
//	PSU_INFO|PSU 1
//	TEMPERATURE_INFO|CPU Core
//	TRANSCEIVER_INFO|Ethernet0
//	TRANSCEIVER_DOM_SENSOR|Ethernet0
//	TRANSCEIVER_STATUS|Ethernet0
//	REBOOT_CAUSE|2024-05-01T10:00:00Z
//
// Readings that are unavailable are written as "N/A". When Redis becomes
// unreachable the Publisher stops writing, pings the server with
// exponential backoff and reports through Resync once it is reachable
// again so that the caller can republish everything. Callers run Ready
// before each publish pass; it also notices a server that restarted
// empty while nothing was being written.
package statedb
