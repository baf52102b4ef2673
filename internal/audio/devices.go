// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"

	"rtbuffer/internal/config"
)

var ErrInvalidDevice = errors.New("invalid device ID")

// PortAudio entry points, replaced in tests.
var (
	paLibInitialize              = portaudio.Initialize
	paLibTerminate               = portaudio.Terminate
	paLibDevicesFunc             = portaudio.Devices
	paLibDefaultInputDeviceFunc  = portaudio.DefaultInputDevice
	paLibDefaultOutputDeviceFunc = portaudio.DefaultOutputDevice
	paDevicesFunc                = paDevices
)

// Initialize sets up the PortAudio subsystem. Pair it with Terminate.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// HostDevices returns every device the host reports.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = deviceFromInfo(i, info)
	}
	return devices, nil
}

// InputDevice returns the device with the given ID, or the default input
// device for config.MinDeviceID.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	return lookupDevice(deviceID, "input", paLibDefaultInputDeviceFunc, func(d *portaudio.DeviceInfo) int {
		return d.MaxInputChannels
	})
}

// OutputDevice is InputDevice for playback.
func OutputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	return lookupDevice(deviceID, "output", paLibDefaultOutputDeviceFunc, func(d *portaudio.DeviceInfo) int {
		return d.MaxOutputChannels
	})
}

func lookupDevice(deviceID int, direction string, defaultDevice func() (*portaudio.DeviceInfo, error),
	channels func(*portaudio.DeviceInfo) int) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	if deviceID == config.MinDeviceID {
		device, err := defaultDevice()
		if err != nil {
			return nil, fmt.Errorf("default %s device: %w", direction, err)
		}
		return device, nil
	}

	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDevice, deviceID)
	}
	device := devices[deviceID]
	if channels(device) == 0 {
		return nil, fmt.Errorf("%w: device %d (%s) does not support %s", ErrInvalidDevice, deviceID, device.Name, direction)
	}
	return device, nil
}

// ListDevices writes a human readable device list to w.
func ListDevices(w io.Writer) error {
	devices, err := HostDevices()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")
	for _, d := range devices {
		fmt.Fprintf(w, "[%d] %s (%s)", d.ID, d.Name, d.Kind())
		if d.HostAPI != "" {
			fmt.Fprintf(w, " via %s", d.HostAPI)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		fmt.Fprintf(w, "    Input latency: Low=%.2fms, High=%.2fms\n",
			d.LowInputLatency.Seconds()*1000, d.HighInputLatency.Seconds()*1000)
		fmt.Fprintf(w, "    Output latency: Low=%.2fms, High=%.2fms\n\n",
			d.LowOutputLatency.Seconds()*1000, d.HighOutputLatency.Seconds()*1000)
	}
	return nil
}

// paDevices never returns a nil slice without an error.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}
