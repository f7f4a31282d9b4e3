package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pcapEpoch = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

type testFrame struct {
	pduType  byte
	addr     [6]byte // most significant byte first
	rssi     int8
	noSignal bool
	ad       []byte
}

func (f testFrame) encode() []byte {
	phdr := make([]byte, phdrLen)
	phdr[0] = 37
	phdr[1] = byte(f.rssi)
	if !f.noSignal {
		binary.LittleEndian.PutUint16(phdr[8:], phdrSignalValid)
	}

	pdu := make([]byte, 0, 6+len(f.ad))
	for i := 5; i >= 0; i-- {
		pdu = append(pdu, f.addr[i])
	}
	pdu = append(pdu, f.ad...)

	ll := make([]byte, 4, 4+2+len(pdu)+3)
	binary.LittleEndian.PutUint32(ll, advAccessAddress)
	ll = append(ll, f.pduType, byte(len(pdu)))
	ll = append(ll, pdu...)
	ll = append(ll, 0, 0, 0) // CRC
	return append(phdr, ll...)
}

func manufacturerAD(company uint16, payload ...byte) []byte {
	ad := []byte{byte(3 + len(payload)), adTypeManufacturer, byte(company), byte(company >> 8)}
	return append(ad, payload...)
}

func nameAD(name string) []byte {
	return append([]byte{byte(1 + len(name)), adTypeCompleteName}, name...)
}

func writePCAP(t *testing.T, linkType layers.LinkType, frames ...[]byte) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65535, linkType))
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     pcapEpoch.Add(time.Duration(i) * time.Second),
			CaptureLength: len(f),
			Length:        len(f),
		}
		require.NoError(t, w.WritePacket(ci, f))
	}
	return &buf
}

func TestReadPCAP(t *testing.T) {
	t.Parallel()

	airtag := testFrame{
		pduType: pduAdvNonconnInd,
		addr:    [6]byte{0xC1, 0x02, 0x03, 0x04, 0x05, 0x06},
		rssi:    -63,
		ad:      append([]byte{0x02, 0x01, 0x06}, manufacturerAD(CompanyApple, 0x12, 0x19, 0x00, 0x01)...),
	}
	govee := testFrame{
		pduType: pduAdvInd,
		addr:    [6]byte{0xA4, 0xC1, 0x38, 0x00, 0x00, 0x01},
		rssi:    -78,
		ad:      nameAD("GVH5075_1234 Govee"),
	}
	direct := testFrame{pduType: pduAdvDirectInd, addr: [6]byte{1, 2, 3, 4, 5, 6}, rssi: -90}
	noSignal := airtag
	noSignal.noSignal = true
	connect := testFrame{pduType: 0x5, addr: [6]byte{1, 1, 1, 1, 1, 1}, rssi: -50}

	buf := writePCAP(t, LinkTypeBLELLWithPHDR,
		airtag.encode(), govee.encode(), direct.encode(), noSignal.encode(), connect.encode(), []byte{1, 2, 3})

	obs, stats, err := ReadPCAP(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, PCAPStats{Packets: 6, Advertisements: 3, Skipped: 3}, stats)
	require.Len(t, obs, 3)

	assert.Equal(t, "C1:02:03:04:05:06", obs[0].Address)
	assert.Equal(t, -63, obs[0].RSSI)
	assert.Equal(t, "AirTag", obs[0].DeviceType)
	assert.True(t, obs[0].IsTarget)
	assert.Equal(t, "0x12", obs[0].StatusByte)
	assert.Equal(t, CompanyApple, obs[0].ManufacturerID)
	assert.Equal(t, pcapEpoch, obs[0].Timestamp)

	assert.Equal(t, "A4:C1:38:00:00:01", obs[1].Address)
	assert.Equal(t, "Govee IoT", obs[1].DeviceType)
	assert.Equal(t, "GVH5075_1234 Govee", obs[1].LocalName)
	assert.False(t, obs[1].IsTarget)

	assert.Equal(t, "Unknown BLE", obs[2].DeviceType)
	assert.Equal(t, -90, obs[2].RSSI)
}

func TestReadPCAP_WrongLinkType(t *testing.T) {
	t.Parallel()

	buf := writePCAP(t, layers.LinkTypeEthernet)
	_, _, err := ReadPCAP(context.Background(), buf)
	assert.ErrorIs(t, err, ErrUnsupportedLinkType)
}

func TestReadPCAP_Cancelled(t *testing.T) {
	t.Parallel()

	f := testFrame{pduType: pduAdvInd, addr: [6]byte{1, 2, 3, 4, 5, 6}, rssi: -60}
	buf := writePCAP(t, LinkTypeBLELLWithPHDR, f.encode())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := ReadPCAP(ctx, buf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadPCAP_NotACapture(t *testing.T) {
	t.Parallel()

	_, _, err := ReadPCAP(context.Background(), bytes.NewReader([]byte("timestamp,address\n")))
	assert.Error(t, err)
}

func TestParseADStructures_Truncated(t *testing.T) {
	t.Parallel()

	var adv advertisement
	data := append(nameAD("Tag"), 0x09, adTypeManufacturer, 0x4C)
	parseADStructures(data, &adv)
	assert.Equal(t, "Tag", adv.localName)
	assert.Zero(t, adv.manufacturerID)
}
