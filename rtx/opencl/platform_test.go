package opencl

import (
	"strings"
	"testing"
)

func TestDeviceTypeString(t *testing.T) {
	type spec struct {
		devType DeviceType
		exp     string
	}

	specs := []spec{
		{CpuDevice, "CPU"},
		{GpuDevice, "GPU"},
		{OtherDevice, "Other"},
		{AllDevices, "Unknown"},
	}

	for index, s := range specs {
		if got := s.devType.String(); got != s.exp {
			t.Errorf("[spec %d] expected %q; got %q", index, s.exp, got)
		}
	}
}

func TestSpeedEstimate(t *testing.T) {
	d := Device{ComputeUnits: 8, ClockSpeed: 1500}
	if exp, got := float32(24), d.SpeedEstimate(); exp != got {
		t.Fatalf("expected speed estimate %f; got %f", exp, got)
	}
}

func TestPlatformInfoString(t *testing.T) {
	pl := PlatformInfo{
		Name:    "test platform",
		Version: "OpenCL 1.2",
		Devices: []Device{
			{Name: "dev0", Type: GpuDevice, ComputeUnits: 2, ClockSpeed: 1000, MemoryBytes: 64 << 20},
		},
	}

	out := pl.String()
	for _, exp := range []string{
		"Name:       test platform",
		"  Device 00:",
		"    Name: dev0",
		"    Type: GPU",
		"64 MB memory",
	} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected output to contain %q; got:\n%s", exp, out)
		}
	}
}
