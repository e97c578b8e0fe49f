package sff

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MinPowerDBm is reported for a zero optical power reading.
const MinPowerDBm = -40.0

// Lane holds the per-lane monitors.
type Lane struct {
	TxBiasMA  float64 `json:"tx_bias_ma"`
	TxPowerMW float64 `json:"tx_power_mw"`
	RxPowerMW float64 `json:"rx_power_mw"`
}

// TxPowerDBm returns the transmit power in dBm.
func (l Lane) TxPowerDBm() float64 { return MWToDBm(l.TxPowerMW) }

// RxPowerDBm returns the receive power in dBm.
func (l Lane) RxPowerDBm() float64 { return MWToDBm(l.RxPowerMW) }

// DOM is a digital optical monitoring snapshot. Values assume internally
// calibrated modules.
type DOM struct {
	TemperatureC float64 `json:"temperature_c"`
	VoltageV     float64 `json:"voltage_v"`
	Lanes        []Lane  `json:"lanes,omitempty"`
}

// MWToDBm converts milliwatts to dBm, clamping non-positive input to MinPowerDBm.
func MWToDBm(mw float64) float64 {
	if mw <= 0 {
		return MinPowerDBm
	}
	dbm := 10 * math.Log10(mw)
	if dbm < MinPowerDBm {
		return MinPowerDBm
	}
	return dbm
}

type domLayout struct {
	temp, vcc    int
	bias, tx, rx int // first lane; -1 when not in this page
	lanes        int
	size         int
}

var domLayouts = map[Family]domLayout{
	// SFF-8472 A2h page.
	FamilySFF8472: {temp: 96, vcc: 98, bias: 100, tx: 102, rx: 104, lanes: 1, size: 106},
	// SFF-8636 lower page.
	FamilySFF8636: {temp: 22, vcc: 26, rx: 34, bias: 42, tx: 50, lanes: 4, size: 58},
	// CMIS lower page; lane monitors live in banked page 11h.
	FamilyCMIS: {temp: 14, vcc: 16, bias: -1, tx: -1, rx: -1, size: 18},
}

// ParseDOM decodes the monitor values for a module of type id. For SFP
// modules data is the A2h page; for all others it is the lower page.
func ParseDOM(id Identifier, data []byte) (*DOM, error) {
	l, ok := domLayouts[id.Family()]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownIdentifier, uint8(id))
	}
	if len(data) < l.size {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortData, len(data), l.size)
	}

	dom := &DOM{
		TemperatureC: float64(int16(binary.BigEndian.Uint16(data[l.temp:]))) / 256,
		VoltageV:     float64(binary.BigEndian.Uint16(data[l.vcc:])) / 10000,
	}
	if l.lanes == 0 {
		return dom, nil
	}
	dom.Lanes = make([]Lane, l.lanes)
	for n := range dom.Lanes {
		off := 2 * n
		dom.Lanes[n] = Lane{
			TxBiasMA:  float64(binary.BigEndian.Uint16(data[l.bias+off:])) * 0.002,
			TxPowerMW: float64(binary.BigEndian.Uint16(data[l.tx+off:])) * 0.0001,
			RxPowerMW: float64(binary.BigEndian.Uint16(data[l.rx+off:])) * 0.0001,
		}
	}
	return dom, nil
}

// SFF-8636 low power control.
const (
	// PowerControlOffset is the lower page byte holding power override bits.
	PowerControlOffset = 93

	powerOverride = 0x01
	powerSet      = 0x02
)

// PowerControlByte returns the byte to write at PowerControlOffset to force
// low power mode on or off through software override.
func PowerControlByte(lpmode bool) byte {
	if lpmode {
		return powerOverride | powerSet
	}
	return powerOverride
}

// LowPowerFromControl reports whether a PowerControlOffset value forces low
// power mode.
func LowPowerFromControl(b byte) bool {
	return b&powerOverride != 0 && b&powerSet != 0
}
