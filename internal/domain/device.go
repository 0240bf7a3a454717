package domain

import (
	"strings"

	"github.com/DRSN-tech/image-search/pkg/e"
)

type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
	DeviceMPS  Device = "mps"
)

func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case "", DeviceAuto:
		return DeviceAuto, nil
	case DeviceCPU, DeviceCUDA, DeviceMPS:
		return d, nil
	default:
		return "", e.Wrap(s, e.ErrUnknownDevice)
	}
}
