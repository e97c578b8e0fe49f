// Package sff decodes pluggable transceiver EEPROMs: the identity block
// (vendor, part and serial numbers, connector) and the digital optical
// monitoring values for SFF-8472 (SFP), SFF-8636 (QSFP) and CMIS (QSFP-DD,
// OSFP) modules.
package sff
