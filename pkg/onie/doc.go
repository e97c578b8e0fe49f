// Package onie decodes and encodes the ONIE TlvInfo system EEPROM format.
//
// An image starts with the 8 byte magic "TlvInfo\x00", a version byte and a
// big-endian 16 bit length of the records that follow. Each record is a one
// byte type code, a one byte length and the value. The last record is always
// the CRC-32 (type 0xFE), computed over every byte that precedes its value.
package onie
