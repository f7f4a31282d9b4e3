package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/beacon.report/internal/ble"
	"github.com/banshee-data/beacon.report/internal/monitoring"
)

// LinkTypeBLELLWithPHDR is LINKTYPE_BLUETOOTH_LE_LL_WITH_PHDR: a 10-byte
// radio header followed by the link-layer packet.
const LinkTypeBLELLWithPHDR layers.LinkType = 256

const (
	phdrLen = 10
	// phdrSignalValid is set in the radio header flags when the signal
	// power byte is meaningful.
	phdrSignalValid = 0x0002

	advAccessAddress = 0x8E89BED6

	pduAdvInd        = 0x0
	pduAdvDirectInd  = 0x1
	pduAdvNonconnInd = 0x2
	pduScanRsp       = 0x4
	pduAdvScanInd    = 0x6

	adTypeShortName    = 0x08
	adTypeCompleteName = 0x09
	adTypeManufacturer = 0xFF
)

var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// PCAPStats counts what ReadPCAP saw.
type PCAPStats struct {
	Packets        int `json:"packets"`
	Advertisements int `json:"advertisements"`
	// Skipped frames are not advertising PDUs, are truncated, or carry no
	// valid signal power.
	Skipped int `json:"skipped"`
}

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// ReadPCAP decodes advertising PDUs from a pcap or pcapng stream into
// observations, one per advertisement that carries a signal power. The
// packet timestamp is the observation time.
func ReadPCAP(ctx context.Context, r io.Reader) ([]ble.Observation, PCAPStats, error) {
	var stats PCAPStats

	br := bufio.NewReader(r)
	src, err := openPacketReader(br)
	if err != nil {
		return nil, stats, err
	}
	if lt := src.LinkType(); lt != LinkTypeBLELLWithPHDR {
		return nil, stats, fmt.Errorf("link type %d: %w", lt, ErrUnsupportedLinkType)
	}

	var obs []ble.Observation
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		data, ci, err := src.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		adv, ok := decodeAdvertisement(data)
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Advertisements++

		c := Classify(adv.manufacturerID, adv.manufacturerData, adv.localName)
		obs = append(obs, ble.Observation{
			Address:        adv.address,
			Timestamp:      ci.Timestamp.UTC(),
			RSSI:           adv.rssi,
			DeviceType:     c.DeviceType,
			IsTarget:       c.IsTarget,
			StatusByte:     c.StatusByte,
			LocalName:      adv.localName,
			ManufacturerID: adv.manufacturerID,
		})
	}

	monitoring.Stagef("ingest", "pcap: %d frames, %d advertisements, %d skipped",
		stats.Packets, stats.Advertisements, stats.Skipped)
	return obs, stats, nil
}

func openPacketReader(br *bufio.Reader) (packetReader, error) {
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if string(magic) == string(pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("open pcapng: %w", err)
		}
		return ng, nil
	}
	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("open pcap: %w", err)
	}
	return pr, nil
}

type advertisement struct {
	address          string
	rssi             int
	manufacturerID   int
	manufacturerData []byte
	localName        string
}

// decodeAdvertisement parses one LINKTYPE 256 frame. Only advertising
// channel PDUs that carry an advertiser address are accepted.
func decodeAdvertisement(frame []byte) (advertisement, bool) {
	var adv advertisement
	if len(frame) < phdrLen+4+2 {
		return adv, false
	}
	flags := binary.LittleEndian.Uint16(frame[8:10])
	if flags&phdrSignalValid == 0 {
		return adv, false
	}
	adv.rssi = int(int8(frame[1]))

	ll := frame[phdrLen:]
	if binary.LittleEndian.Uint32(ll[0:4]) != advAccessAddress {
		return adv, false
	}
	pduType := ll[4] & 0x0F
	length := int(ll[5])
	payload := ll[6:]
	if length > len(payload) {
		return adv, false
	}
	payload = payload[:length]

	switch pduType {
	case pduAdvInd, pduAdvDirectInd, pduAdvNonconnInd, pduScanRsp, pduAdvScanInd:
	default:
		return adv, false
	}
	if len(payload) < 6 {
		return adv, false
	}
	adv.address = formatAddress(payload[:6])
	if pduType == pduAdvDirectInd {
		return adv, true
	}

	parseADStructures(payload[6:], &adv)
	return adv, true
}

// parseADStructures walks length-type-value AD structures, keeping the
// first manufacturer record and the local name. Truncated trailing data is
// ignored.
func parseADStructures(data []byte, adv *advertisement) {
	for i := 0; i < len(data); {
		l := int(data[i])
		if l == 0 || i+1+l > len(data) {
			return
		}
		typ, value := data[i+1], data[i+2:i+1+l]
		switch typ {
		case adTypeManufacturer:
			if adv.manufacturerID == 0 && len(value) >= 2 {
				adv.manufacturerID = int(binary.LittleEndian.Uint16(value[:2]))
				adv.manufacturerData = append([]byte(nil), value[2:]...)
			}
		case adTypeCompleteName:
			adv.localName = string(value)
		case adTypeShortName:
			if adv.localName == "" {
				adv.localName = string(value)
			}
		}
		i += 1 + l
	}
}

// formatAddress renders a little-endian device address as colon-separated
// upper-case hex, most significant byte first.
func formatAddress(b []byte) string {
	var sb strings.Builder
	for i := len(b) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02X", b[i])
		if i > 0 {
			sb.WriteByte(':')
		}
	}
	return sb.String()
}
