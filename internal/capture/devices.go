package capture

import (
	"strconv"

	"github.com/gordonklaus/portaudio"

	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/media"
)

// EnumerateAudioDevices lists every portaudio device on the default host
// API, classified as Input or Output per spec §6's AudioDevice shape. A
// device with both input and output channels is reported once per
// capability it offers (e.g. a loopback-capable output shows up as an
// Output device alongside any physical microphones).
func EnumerateAudioDevices() ([]media.AudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, rerrors.NewStartupError(rerrors.DeviceNotFound, "capture.enumerate_audio_devices", err)
	}
	defer portaudio.Terminate()

	host, err := portaudio.DefaultHostApi()
	if err != nil {
		return nil, rerrors.NewStartupError(rerrors.DeviceNotFound, "capture.enumerate_audio_devices", err)
	}

	var out []media.AudioDevice
	for _, dev := range host.Devices {
		if dev.MaxInputChannels > 0 {
			out = append(out, media.AudioDevice{
				ID:        dev.Name,
				Name:      dev.Name,
				Type:      media.AudioDeviceInput,
				IsDefault: host.DefaultInputDevice != nil && dev.Name == host.DefaultInputDevice.Name,
			})
		}
		if dev.MaxOutputChannels > 0 {
			out = append(out, media.AudioDevice{
				ID:        dev.Name,
				Name:      dev.Name,
				Type:      media.AudioDeviceOutput,
				IsDefault: host.DefaultOutputDevice != nil && dev.Name == host.DefaultOutputDevice.Name,
			})
		}
	}
	return out, nil
}

// EnumerateCaptureSources lists the video capture sources this build can
// open. Platform monitor/window enumeration is out of scope (spec §4.C7
// Non-goals); this reports the single synthetic pattern source every
// PatternVideoSource id resolves to, at the width and height passed in, so
// GetCaptureSources has a real, non-empty answer to give the UI.
func EnumerateCaptureSources(width, height int) []media.CaptureSource {
	return []media.CaptureSource{
		{
			ID:     "monitor:" + strconv.Itoa(0),
			Name:   "Primary Display",
			Type:   media.CaptureSourceMonitor,
			Width:  width,
			Height: height,
		},
	}
}
