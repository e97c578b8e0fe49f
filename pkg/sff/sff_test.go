package sff

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(buf []byte, off int, s string, width int) {
	copy(buf[off:off+width], []byte(s+"                ")[:width])
}

func sfpA0() []byte {
	b := make([]byte, 256)
	b[0] = byte(IdentifierSFP)
	b[2] = 0x07 // LC
	b[12] = 103 // 10.3 GBd
	put(b, 20, "FINISAR CORP.", 16)
	copy(b[37:40], []byte{0x00, 0x90, 0x65})
	put(b, 40, "FTLX8571D3BCL", 16)
	put(b, 56, "A", 4)
	put(b, 68, "ALR0V0E", 16)
	put(b, 84, "15062201", 8)
	return b
}

func qsfpPage0() []byte {
	b := make([]byte, 256)
	b[0] = byte(IdentifierQSFP28)
	b[128] = byte(IdentifierQSFP28)
	b[130] = 0x23
	b[140] = 255
	put(b, 148, "Mellanox", 16)
	copy(b[165:168], []byte{0x00, 0x02, 0xc9})
	put(b, 168, "MCP1600-C003", 16)
	put(b, 184, "A2", 2)
	put(b, 196, "MT1703VS03457", 16)
	put(b, 212, "170119  ", 8)
	return b
}

func TestParseInfoSFP(t *testing.T) {
	info, err := ParseInfo(sfpA0())
	require.NoError(t, err)

	assert.Equal(t, IdentifierSFP, info.Identifier)
	assert.Equal(t, "SFP/SFP+/SFP28", info.Type)
	assert.Equal(t, "FINISAR CORP.", info.VendorName)
	assert.Equal(t, "00-90-65", info.VendorOUI)
	assert.Equal(t, "FTLX8571D3BCL", info.VendorPN)
	assert.Equal(t, "A", info.VendorRev)
	assert.Equal(t, "ALR0V0E", info.VendorSN)
	assert.Equal(t, "2015-06-22 lot 01", info.VendorDate)
	assert.Equal(t, "LC", info.Connector)
	assert.Equal(t, 10300, info.NominalBitRate)
}

func TestParseInfoQSFP(t *testing.T) {
	info, err := ParseInfo(qsfpPage0())
	require.NoError(t, err)

	assert.Equal(t, "QSFP28 or later", info.Type)
	assert.Equal(t, "Mellanox", info.VendorName)
	assert.Equal(t, "00-02-C9", info.VendorOUI)
	assert.Equal(t, "MCP1600-C003", info.VendorPN)
	assert.Equal(t, "A2", info.VendorRev)
	assert.Equal(t, "MT1703VS03457", info.VendorSN)
	assert.Equal(t, "2017-01-19", info.VendorDate)
	assert.Equal(t, "No separable connector", info.Connector)
	assert.Equal(t, 4, info.Identifier.Lanes())
}

func TestParseInfoErrors(t *testing.T) {
	_, err := ParseInfo(nil)
	assert.ErrorIs(t, err, ErrShortData)

	_, err = ParseInfo([]byte{0x7f, 0, 0})
	assert.ErrorIs(t, err, ErrUnknownIdentifier)

	_, err = ParseInfo(qsfpPage0()[:200])
	assert.ErrorIs(t, err, ErrShortData)
}

func TestParseInfoStripsNonPrintable(t *testing.T) {
	b := sfpA0()
	put(b, 20, "ACME", 16)
	b[24] = 0x00
	b[25] = 0xff
	info, err := ParseInfo(b)
	require.NoError(t, err)
	assert.Equal(t, "ACME", info.VendorName)
}

func TestParseDOMSFP(t *testing.T) {
	a2 := make([]byte, 256)
	binary.BigEndian.PutUint16(a2[96:], uint16(int16(35*256+128))) // 35.5 C
	binary.BigEndian.PutUint16(a2[98:], 33000)                     // 3.3 V
	binary.BigEndian.PutUint16(a2[100:], 3000)                     // 6 mA
	binary.BigEndian.PutUint16(a2[102:], 5000)                     // 0.5 mW
	binary.BigEndian.PutUint16(a2[104:], 10000)                    // 1 mW

	dom, err := ParseDOM(IdentifierSFP, a2)
	require.NoError(t, err)
	assert.InDelta(t, 35.5, dom.TemperatureC, 0.001)
	assert.InDelta(t, 3.3, dom.VoltageV, 0.0001)
	require.Len(t, dom.Lanes, 1)
	assert.InDelta(t, 6.0, dom.Lanes[0].TxBiasMA, 0.0001)
	assert.InDelta(t, 0.5, dom.Lanes[0].TxPowerMW, 0.0001)
	assert.InDelta(t, 0.0, dom.Lanes[0].RxPowerDBm(), 0.0001)
	assert.InDelta(t, -3.0103, dom.Lanes[0].TxPowerDBm(), 0.001)
}

func TestParseDOMQSFP(t *testing.T) {
	lower := make([]byte, 128)
	binary.BigEndian.PutUint16(lower[22:], uint16(0xFF00)) // -1 C
	binary.BigEndian.PutUint16(lower[26:], 32500)
	for lane := 0; lane < 4; lane++ {
		binary.BigEndian.PutUint16(lower[34+2*lane:], uint16(1000*(lane+1)))
		binary.BigEndian.PutUint16(lower[42+2*lane:], 4000)
		binary.BigEndian.PutUint16(lower[50+2*lane:], 0)
	}

	dom, err := ParseDOM(IdentifierQSFP28, lower)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, dom.TemperatureC, 0.001)
	assert.InDelta(t, 3.25, dom.VoltageV, 0.0001)
	require.Len(t, dom.Lanes, 4)
	assert.InDelta(t, 0.4, dom.Lanes[3].RxPowerMW, 0.0001)
	assert.InDelta(t, 8.0, dom.Lanes[2].TxBiasMA, 0.0001)
	assert.Equal(t, MinPowerDBm, dom.Lanes[0].TxPowerDBm())
}

func TestParseDOMCMIS(t *testing.T) {
	lower := make([]byte, 128)
	binary.BigEndian.PutUint16(lower[14:], 40*256)
	binary.BigEndian.PutUint16(lower[16:], 33100)

	dom, err := ParseDOM(IdentifierQSFPDD, lower)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, dom.TemperatureC, 0.001)
	assert.Empty(t, dom.Lanes)
}

func TestParseDOMErrors(t *testing.T) {
	_, err := ParseDOM(IdentifierSFP, make([]byte, 100))
	assert.ErrorIs(t, err, ErrShortData)

	_, err = ParseDOM(Identifier(0x7f), make([]byte, 256))
	assert.ErrorIs(t, err, ErrUnknownIdentifier)
}

func TestMWToDBm(t *testing.T) {
	assert.Equal(t, MinPowerDBm, MWToDBm(0))
	assert.Equal(t, MinPowerDBm, MWToDBm(-1))
	assert.Equal(t, MinPowerDBm, MWToDBm(1e-9))
	assert.InDelta(t, 10.0, MWToDBm(10), 0.0001)
	assert.False(t, math.IsInf(MWToDBm(0), -1))
}

func TestPowerControl(t *testing.T) {
	assert.Equal(t, byte(0x03), PowerControlByte(true))
	assert.Equal(t, byte(0x01), PowerControlByte(false))
	assert.True(t, LowPowerFromControl(0x03))
	assert.False(t, LowPowerFromControl(0x02))
	assert.False(t, LowPowerFromControl(0x01))
}

func TestIdentifierString(t *testing.T) {
	assert.Equal(t, "QSFP+ or later", IdentifierQSFPP.String())
	assert.Equal(t, "Unknown (0x7F)", Identifier(0x7f).String())
	assert.Equal(t, FamilyUnknown, Identifier(0x7f).Family())
	assert.Equal(t, "Unknown (0x99)", ConnectorName(0x99))
}
