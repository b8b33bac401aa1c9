// Package audio enumerates capture devices and delivers PCM16 frames
// from the selected microphone.
package audio

import (
	"strings"

	"glean/encoder"
)

const WAVHeaderSize = 44

var btKeywords = []string{
	"airpods", "anker soundcore", "beats", "bluetooth", "bose",
	"galaxy buds", "jabra", "jbl ", "pixel buds", "plantronics",
	"powerbeats", "sennheiser momentum", "skullcandy",
	"sony wf-", "sony wh-", "tozo", "wf-1000", "wh-1000",
	" bt ", " bt)", " bt]",
}

// IsBluetooth reports whether the device name looks like a Bluetooth
// headset. Those run a low-bitrate mono profile while capturing, which
// hurts recognition quality, so the picker warns about them.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DefaultConfig matches the recognizer's expected input format.
func DefaultConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}
