package capture

import (
	"fmt"
	"strings"
)

// Bluetooth SIG company identifiers seen in the wild.
const (
	CompanyApple     = 76
	CompanyMicrosoft = 6
	CompanyXiaomi    = 89
	CompanyGoogle    = 224
	CompanySamsung   = 117
	CompanyTile      = 529
)

// DeviceTypeAirTag is the device type of target devices.
const DeviceTypeAirTag = "AirTag"

var manufacturerNames = map[int]string{
	CompanyMicrosoft: "Microsoft",
	CompanyXiaomi:    "Xiaomi",
	CompanyGoogle:    "Google",
	CompanySamsung:   "Samsung",
	CompanyTile:      "Tile",
	34818:            "Govee",
	34819:            "Govee",
}

// airTagStatus holds the first manufacturer-data bytes observed on AirTags.
var airTagStatus = map[byte]bool{0x01: true, 0x07: true, 0x12: true, 0x1C: true}

// Classification is the outcome of Classify.
type Classification struct {
	DeviceType string
	IsTarget   bool
	StatusByte string // "0x12"; empty when not an Apple frame with payload
}

// Classify derives a device type from the advertised manufacturer id, its
// payload (without the company id) and the local name. manufacturerID is 0
// when the advertisement carries no manufacturer data.
//
// Apple frames with more than two payload bytes are AirTags when the first
// byte is a known AirTag status; other known companies map to their name;
// failing that the local name is consulted.
func Classify(manufacturerID int, payload []byte, localName string) Classification {
	if manufacturerID == CompanyApple {
		if len(payload) > 2 {
			status := payload[0]
			c := Classification{DeviceType: "Apple Device (Other)", StatusByte: FormatStatusByte(status)}
			if airTagStatus[status] {
				c.DeviceType = DeviceTypeAirTag
				c.IsTarget = true
			}
			return c
		}
		return Classification{DeviceType: "Apple Device (Unknown)"}
	}

	if name, ok := manufacturerNames[manufacturerID]; ok {
		return Classification{DeviceType: name}
	}

	switch {
	case strings.Contains(localName, "Govee"):
		return Classification{DeviceType: "Govee IoT"}
	case strings.Contains(localName, "DESKTOP"), strings.Contains(localName, "PC"):
		return Classification{DeviceType: "Windows PC"}
	}
	return Classification{DeviceType: "Unknown BLE"}
}

// FormatStatusByte renders a status byte the way the CSV stores it.
func FormatStatusByte(b byte) string {
	return fmt.Sprintf("0x%02x", b)
}
