package renderer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/achilleasa/prism/tracer"
	"github.com/olekukonko/tablewriter"
)

func fmtDuration(d time.Duration) string {
	return fmt.Sprintf("%.2f ms", float64(d.Nanoseconds())/1e6)
}

// Format acceleration structure build statistics as a table.
func AccelStatsTable(stats []tracer.AccelStats) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Structure", "Inputs", "Output", "Temp", "Compacted", "Build time"})

	var (
		totalCompacted uint64
		totalTime      time.Duration
	)
	for _, stat := range stats {
		table.Append([]string{
			stat.Name,
			fmt.Sprintf("%d", stat.Inputs),
			fmt.Sprintf("%d", stat.OutputSize),
			fmt.Sprintf("%d", stat.TempSize),
			fmt.Sprintf("%d", stat.CompactedSize),
			fmtDuration(stat.BuildTime),
		})
		totalCompacted += stat.CompactedSize
		totalTime += stat.BuildTime
	}
	table.SetFooter([]string{"", "", "", "TOTAL", fmt.Sprintf("%d", totalCompacted), fmtDuration(totalTime)})

	table.Render()
	return buf.String()
}

// Format frame statistics as a table.
func FrameStatsTable(stats tracer.FrameStats) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Size", "Upload", "Render", "Download"})
	table.Append([]string{
		fmt.Sprintf("%d", stats.Frames),
		fmt.Sprintf("%dx%d", stats.Width, stats.Height),
		fmtDuration(stats.UploadTime),
		fmtDuration(stats.RenderTime),
		fmtDuration(stats.DownloadTime),
	})
	table.SetFooter([]string{"", "", "", "TOTAL", fmtDuration(stats.UploadTime + stats.RenderTime + stats.DownloadTime)})

	table.Render()
	return buf.String()
}
