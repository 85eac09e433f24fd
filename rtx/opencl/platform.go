// Package opencl probes the OpenCL platforms and devices available on the
// host so they can be listed next to the ray tracing backends.
package opencl

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"

	"github.com/jgillich/go-opencl/cl"
)

type DeviceType uint8

// Supported device types.
const (
	CpuDevice DeviceType = 1 << iota
	GpuDevice
	OtherDevice
	AllDevices DeviceType = 0xFF
)

var (
	indentRegex = regexp.MustCompile("(?m)^")

	// Returned when the OpenCL runtime cannot enumerate any platforms.
	ErrNoPlatforms = errors.New("opencl: no platforms available")
)

func (dt DeviceType) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	return "Unknown"
}

// An OpenCL device as reported by its platform.
type Device struct {
	Name          string
	Vendor        string
	Type          DeviceType
	Version       string
	DriverVersion string

	ComputeUnits int
	ClockSpeed   int
	MemoryBytes  uint64
}

// Implements Stringer.
func (d Device) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d computation units, %d Mhz clock, %d MB memory, %3.1f GFlops approximate speed",
		d.Name,
		d.Type,
		d.ComputeUnits,
		d.ClockSpeed,
		d.MemoryBytes>>20,
		d.SpeedEstimate(),
	)
}

// Estimate device speed in GFlops assuming one fused multiply-add per
// compute unit and clock cycle.
func (d Device) SpeedEstimate() float32 {
	return float32(d.ComputeUnits) * float32(d.ClockSpeed) * 2 / 1000
}

// Information about an OpenCL platform and its devices.
type PlatformInfo struct {
	Profile    string
	Version    string
	Name       string
	Vendor     string
	Extensions string
	Devices    []Device
}

func (pl PlatformInfo) String() string {
	var buf bytes.Buffer

	fmt.Fprintf(
		&buf,
		"Version:    %s\nName:       %s\nVendor:     %s\nExtensions: %s\nDevices:\n",
		pl.Version,
		pl.Name,
		pl.Vendor,
		pl.Extensions,
	)

	for dIdx, d := range pl.Devices {
		fmt.Fprintf(&buf, "  Device %02d:\n", dIdx)
		buf.WriteString(indentRegex.ReplaceAllString(d.String(), "    "))
		buf.WriteString("\n\n")
	}

	return buf.String()
}

// Get information about the available OpenCL platforms and devices.
func GetPlatformInfo() ([]PlatformInfo, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPlatforms, err)
	}

	infoList := make([]PlatformInfo, len(platforms))
	for pIdx, p := range platforms {
		infoList[pIdx] = PlatformInfo{
			Profile:    p.Profile(),
			Version:    p.Version(),
			Name:       p.Name(),
			Vendor:     p.Vendor(),
			Extensions: p.Extensions(),
		}

		devices, err := p.GetDevices(cl.DeviceTypeAll)
		if err != nil && err != cl.ErrDeviceNotFound {
			return nil, fmt.Errorf("opencl: could not enumerate devices for platform %q: %w", p.Name(), err)
		}

		for _, d := range devices {
			infoList[pIdx].Devices = append(infoList[pIdx].Devices, Device{
				Name:          d.Name(),
				Vendor:        d.Vendor(),
				Type:          deviceType(d.Type()),
				Version:       d.Version(),
				DriverVersion: d.DriverVersion(),
				ComputeUnits:  d.MaxComputeUnits(),
				ClockSpeed:    d.MaxClockFrequency(),
				MemoryBytes:   uint64(d.GlobalMemSize()),
			})
		}
	}

	return infoList, nil
}

func deviceType(t cl.DeviceType) DeviceType {
	switch {
	case t&cl.DeviceTypeGPU != 0:
		return GpuDevice
	case t&cl.DeviceTypeCPU != 0:
		return CpuDevice
	}
	return OtherDevice
}
