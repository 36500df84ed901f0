package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// TrafficPlotter accumulates per-interval traffic counts during a run and
// renders them as PNG time-series plots afterwards. Call Sample() for every
// observed frame, then GeneratePlots() once the run is over.
type TrafficPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	interval  time.Duration

	buckets   []trafficBucket
	startTime time.Time
}

// trafficBucket is one interval's accumulated counts.
type trafficBucket struct {
	start   time.Time
	packets int64
	bytes   int64
	rdmx    int64
}

// NewTrafficPlotter creates a plotter that buckets samples at the given
// interval. An interval of zero defaults to one second.
func NewTrafficPlotter(interval time.Duration) *TrafficPlotter {
	if interval <= 0 {
		interval = time.Second
	}
	return &TrafficPlotter{interval: interval}
}

// Start enables sampling and sets the output directory for plots.
func (tp *TrafficPlotter) Start(outputDir string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create plot output dir: %w", err)
	}

	tp.enabled = true
	tp.outputDir = outputDir
	tp.buckets = nil
	tp.startTime = time.Time{}
	return nil
}

// Stop disables sampling.
func (tp *TrafficPlotter) Stop() {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.enabled = false
}

// IsEnabled reports whether the plotter is currently sampling.
func (tp *TrafficPlotter) IsEnabled() bool {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.enabled
}

// Sample records one frame observed at ts.
func (tp *TrafficPlotter) Sample(size int, isRDMX bool, ts time.Time) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if !tp.enabled {
		return
	}

	if tp.startTime.IsZero() {
		tp.startTime = ts.Truncate(tp.interval)
	}

	bucketStart := ts.Truncate(tp.interval)
	n := len(tp.buckets)
	if n == 0 || tp.buckets[n-1].start.Before(bucketStart) {
		tp.buckets = append(tp.buckets, trafficBucket{start: bucketStart})
		n++
	}

	b := &tp.buckets[n-1]
	b.packets++
	b.bytes += int64(size)
	if isRDMX {
		b.rdmx++
	}
}

// SampleCount returns the number of intervals with data.
func (tp *TrafficPlotter) SampleCount() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.buckets)
}

// GeneratePlots renders the accumulated buckets as PNG files in the output
// directory and returns the number of plots written.
func (tp *TrafficPlotter) GeneratePlots() (int, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(tp.buckets) == 0 {
		return 0, nil
	}

	perSec := tp.interval.Seconds()
	packetPts := make(plotter.XYs, 0, len(tp.buckets))
	rdmxPts := make(plotter.XYs, 0, len(tp.buckets))
	bytePts := make(plotter.XYs, 0, len(tp.buckets))
	for _, b := range tp.buckets {
		x := b.start.Sub(tp.startTime).Seconds()
		packetPts = append(packetPts, plotter.XY{X: x, Y: float64(b.packets) / perSec})
		rdmxPts = append(rdmxPts, plotter.XY{X: x, Y: float64(b.rdmx) / perSec})
		bytePts = append(bytePts, plotter.XY{X: x, Y: float64(b.bytes) / perSec / 1024})
	}

	plotCount := 0

	// Packet rate plot: total and rdmx-recognized lines
	pRate := plot.New()
	pRate.Title.Text = "Packet Rate"
	pRate.X.Label.Text = "Seconds"
	pRate.Y.Label.Text = "Packets/s"

	packetLine, err := plotter.NewLine(packetPts)
	if err != nil {
		return plotCount, fmt.Errorf("packet rate line: %w", err)
	}
	packetLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	packetLine.Width = vg.Points(1)
	pRate.Add(packetLine)
	pRate.Legend.Add("packets", packetLine)

	rdmxLine, err := plotter.NewLine(rdmxPts)
	if err != nil {
		return plotCount, fmt.Errorf("rdmx rate line: %w", err)
	}
	rdmxLine.Color = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	rdmxLine.Width = vg.Points(1)
	pRate.Add(rdmxLine)
	pRate.Legend.Add("rdmx", rdmxLine)

	rateFile := filepath.Join(tp.outputDir, "packet_rate.png")
	if err := pRate.Save(14*vg.Inch, 6*vg.Inch, rateFile); err != nil {
		return plotCount, fmt.Errorf("save %s: %w", rateFile, err)
	}
	plotCount++

	// Throughput plot
	pBytes := plot.New()
	pBytes.Title.Text = "Throughput"
	pBytes.X.Label.Text = "Seconds"
	pBytes.Y.Label.Text = "KB/s"

	byteLine, err := plotter.NewLine(bytePts)
	if err != nil {
		return plotCount, fmt.Errorf("throughput line: %w", err)
	}
	byteLine.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	byteLine.Width = vg.Points(1)
	pBytes.Add(byteLine)

	bytesFile := filepath.Join(tp.outputDir, "throughput.png")
	if err := pBytes.Save(14*vg.Inch, 6*vg.Inch, bytesFile); err != nil {
		return plotCount, fmt.Errorf("save %s: %w", bytesFile, err)
	}
	plotCount++

	return plotCount, nil
}

// GetOutputDir returns the configured output directory.
func (tp *TrafficPlotter) GetOutputDir() string {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.outputDir
}
