package ibl

import (
	"fmt"
	"strings"
)

// DeviceType is the preferred kind of OpenCL device. Other devices are still
// used when no device of the preferred kind exists.
type DeviceType int

const (
	DeviceTypeGPU = DeviceType(iota)
	DeviceTypeCPU
	DeviceTypeAccelerator
)

func (d DeviceType) String() string {
	switch d {
	case DeviceTypeCPU:
		return "cpu"
	case DeviceTypeAccelerator:
		return "accelerator"
	default:
		return "gpu"
	}
}

func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(s) {
	case "", "gpu":
		return DeviceTypeGPU, nil
	case "cpu":
		return DeviceTypeCPU, nil
	case "accelerator":
		return DeviceTypeAccelerator, nil
	}
	return 0, fmt.Errorf("unknown device type %q", s)
}
