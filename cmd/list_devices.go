package cmd

import (
	"bytes"
	"fmt"

	"github.com/achilleasa/prism/rtx"
	"github.com/achilleasa/prism/rtx/opencl"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// List the devices exposed by the registered ray tracing backends and the
// opencl platforms available on this system.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Backend", "Device", "Vendor", "Compute units", "Max trace depth", "Max instance id"})
	for _, backend := range rtx.Backends() {
		rtxCtx, err := rtx.Open(backend)
		if err != nil {
			logger.Warningf("could not open backend %q: %v", backend, err)
			continue
		}
		for _, dev := range rtxCtx.Devices() {
			table.Append([]string{
				backend,
				dev.Name,
				dev.Vendor,
				fmt.Sprintf("%d", dev.ComputeUnits),
				fmt.Sprintf("%d", dev.MaxTraceDepth),
				fmt.Sprintf("%d", dev.MaxInstanceID),
			})
		}
		rtxCtx.Close()
	}
	table.Render()
	logger.Noticef("ray tracing backends\n%s", buf.String())

	clPlatforms, err := opencl.GetPlatformInfo()
	if err != nil {
		logger.Warningf("could not probe opencl platforms: %v", err)
		return nil
	}

	buf.Reset()
	buf.WriteString(fmt.Sprintf("\nSystem provides %d opencl platform(s):\n\n", len(clPlatforms)))
	for pIdx, platformInfo := range clPlatforms {
		buf.WriteString(fmt.Sprintf("[Platform %02d]\n%s\n", pIdx, platformInfo))
	}
	logger.Notice(buf.String())
	return nil
}
