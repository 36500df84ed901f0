// Package main provides an offline analysis tool for RDMX capture files.
// It walks a capture container once, decodes every record's header stack,
// aggregates per-flow statistics, and exports the results as JSON, CSV,
// charts, and optionally rows in a SQLite capture database.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/rdmxcap/internal/capdb"
	"github.com/banshee-data/rdmxcap/internal/capture"
	"github.com/banshee-data/rdmxcap/internal/flow"
	"github.com/banshee-data/rdmxcap/internal/monitor"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
)

// Config holds configuration for the capture analysis.
type Config struct {
	CaptureFile string
	OutputDir   string
	DBPath      string
	ExportCSV   bool
	ExportJSON  bool
	Charts      bool
	Plots       bool
	TopFlows    int
	Verbose     bool
}

// AnalysisResult holds the results of one capture analysis.
type AnalysisResult struct {
	CaptureFile      string           `json:"capture_file"`
	Magic            uint32           `json:"magic"`
	VersionMajor     uint16           `json:"version_major"`
	VersionMinor     uint16           `json:"version_minor"`
	SnapLen          uint32           `json:"snaplen"`
	LinkType         uint32           `json:"link_type"`
	RecordCount      int64            `json:"record_count"`
	TotalBytes       int64            `json:"total_bytes"`
	EthernetCount    int64            `json:"ethernet_count"`
	IPv4Count        int64            `json:"ipv4_count"`
	UDPCount         int64            `json:"udp_count"`
	RDMXCount        int64            `json:"rdmx_count"`
	FlowCount        int              `json:"flow_count"`
	SizeStats        flow.SizeStats   `json:"size_stats"`
	TopFlows         []FlowExport     `json:"top_flows,omitempty"`
	TargetHistogram  map[string]int64 `json:"target_histogram,omitempty"`
	FirstSeen        string           `json:"first_seen,omitempty"`
	LastSeen         string           `json:"last_seen,omitempty"`
	DurationSecs     float64          `json:"duration_secs"`
	PacketsPerSec    float64          `json:"packets_per_sec"`
	BytesPerSec      float64          `json:"bytes_per_sec"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	RunID            string           `json:"run_id,omitempty"`
}

// FlowExport represents one flow's aggregate for export.
type FlowExport struct {
	Flow        string  `json:"flow"`
	SrcIP       string  `json:"src_ip"`
	SrcPort     int     `json:"src_port"`
	DstIP       string  `json:"dst_ip"`
	DstPort     int     `json:"dst_port"`
	Packets     int64   `json:"packets"`
	Bytes       int64   `json:"bytes"`
	RDMXPackets int64   `json:"rdmx_packets"`
	MeanSize    float64 `json:"mean_size"`
	P95Size     float64 `json:"p95_size"`
	FirstSeen   string  `json:"first_seen"`
	LastSeen    string  `json:"last_seen"`

	firstSeen time.Time
	lastSeen  time.Time
}

func main() {
	config := parseFlags()

	if config.CaptureFile == "" {
		fmt.Fprintln(os.Stderr, "Error: capture file is required")
		flag.Usage()
		os.Exit(1)
	}

	if config.OutputDir != "" {
		if err := os.MkdirAll(config.OutputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	result, err := analyzeCapture(config)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	printSummary(result)

	if err := exportResults(config, result); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.CaptureFile, "file", "", "Path to the capture file (required)")
	flag.StringVar(&config.OutputDir, "output", ".", "Output directory for results")
	flag.StringVar(&config.DBPath, "db", "", "SQLite database path (optional, for persistence)")
	flag.BoolVar(&config.ExportCSV, "csv", true, "Export flows to CSV")
	flag.BoolVar(&config.ExportJSON, "json", true, "Export full results to JSON")
	flag.BoolVar(&config.Charts, "charts", false, "Write interactive HTML charts")
	flag.BoolVar(&config.Plots, "plots", false, "Write PNG traffic plots")
	flag.IntVar(&config.TopFlows, "top", 20, "Number of top flows to export")
	flag.BoolVar(&config.Verbose, "v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Offline RDMX capture analyzer\n\n")
		fmt.Fprintf(os.Stderr, "This tool walks a capture container once and reports:\n")
		fmt.Fprintf(os.Stderr, "  1. Per-layer recognition counts (Ethernet, IPv4, UDP, RDMX)\n")
		fmt.Fprintf(os.Stderr, "  2. Packet size distribution\n")
		fmt.Fprintf(os.Stderr, "  3. Per-flow aggregates and the RDMX target histogram\n")
		fmt.Fprintf(os.Stderr, "  4. Optional SQLite persistence, charts, and plots\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -file capture.rdmxcap -output ./results\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -file capture.rdmxcap -db runs.db -charts -plots\n", os.Args[0])
	}

	flag.Parse()
	return config
}

func analyzeCapture(config Config) (*AnalysisResult, error) {
	startTime := time.Now()

	reader, err := capture.Open(config.CaptureFile)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	header := reader.Header()
	result := &AnalysisResult{
		CaptureFile:     config.CaptureFile,
		Magic:           header.Magic,
		VersionMajor:    header.VersionMajor,
		VersionMinor:    header.VersionMinor,
		SnapLen:         header.SnapLen,
		LinkType:        header.LinkType,
		TargetHistogram: make(map[string]int64),
	}

	table := flow.NewTable(header)
	var sizes []float64
	var firstSeen, lastSeen time.Time

	var plotter *monitor.TrafficPlotter
	if config.Plots {
		plotter = monitor.NewTrafficPlotter(time.Second)
		if err := plotter.Start(config.OutputDir); err != nil {
			return nil, err
		}
	}

	for {
		rec, err := reader.Next()
		if errors.Is(err, capture.ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, err
		}

		result.RecordCount++
		result.TotalBytes += int64(len(rec.Payload))
		sizes = append(sizes, float64(len(rec.Payload)))

		hdr := rdmx.Decode(rec.Payload)
		if hdr.IsEthernet {
			result.EthernetCount++
		}
		if hdr.IsIPv4 {
			result.IPv4Count++
		}
		if hdr.IsUDP {
			result.UDPCount++
		}
		if hdr.IsRDMX {
			result.RDMXCount++
			result.TargetHistogram[strconv.FormatUint(hdr.RDMX.Target, 10)]++
		}

		table.Observe(rec, hdr)

		ts := header.RecordTime(rec)
		if firstSeen.IsZero() || ts.Before(firstSeen) {
			firstSeen = ts
		}
		if ts.After(lastSeen) {
			lastSeen = ts
		}

		if plotter != nil {
			plotter.Sample(len(rec.Payload), hdr.IsRDMX, ts)
		}

		if config.Verbose && result.RecordCount%100000 == 0 {
			log.Printf("Processed %d records", result.RecordCount)
		}
	}

	result.FlowCount = table.Len()
	result.SizeStats = flow.ComputeSizeStats(sizes)
	result.TopFlows = exportFlows(table.Top(config.TopFlows))

	if !firstSeen.IsZero() {
		result.FirstSeen = firstSeen.Format(time.RFC3339Nano)
		result.LastSeen = lastSeen.Format(time.RFC3339Nano)
		result.DurationSecs = lastSeen.Sub(firstSeen).Seconds()
		if result.DurationSecs > 0 {
			result.PacketsPerSec = float64(result.RecordCount) / result.DurationSecs
			result.BytesPerSec = float64(result.TotalBytes) / result.DurationSecs
		}
	}

	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	// Persist to DB if requested
	if config.DBPath != "" {
		runID, err := persistToDatabase(config.DBPath, result, firstSeen, lastSeen)
		if err != nil {
			log.Printf("Warning: database persistence failed: %v", err)
		} else {
			result.RunID = runID
		}
	}

	if plotter != nil {
		if _, err := plotter.GeneratePlots(); err != nil {
			log.Printf("Warning: plot generation failed: %v", err)
		}
	}

	return result, nil
}

// exportFlows converts flow table entries to their export form.
func exportFlows(entries []flow.Entry) []FlowExport {
	out := make([]FlowExport, 0, len(entries))
	for _, e := range entries {
		stats := e.Agg.SizeStats()
		out = append(out, FlowExport{
			Flow:        e.Key.String(),
			SrcIP:       rdmx.IPv4String(e.Key.SrcIP),
			SrcPort:     int(e.Key.SrcPort),
			DstIP:       rdmx.IPv4String(e.Key.DstIP),
			DstPort:     int(e.Key.DstPort),
			Packets:     e.Agg.Packets,
			Bytes:       e.Agg.Bytes,
			RDMXPackets: e.Agg.RDMXPackets,
			MeanSize:    stats.Mean,
			P95Size:     stats.P95,
			FirstSeen:   e.Agg.FirstSeen.Format(time.RFC3339Nano),
			LastSeen:    e.Agg.LastSeen.Format(time.RFC3339Nano),
			firstSeen:   e.Agg.FirstSeen,
			lastSeen:    e.Agg.LastSeen,
		})
	}
	return out
}

func printSummary(result *AnalysisResult) {
	fmt.Println("\n========== Capture Analysis Summary ==========")
	fmt.Printf("File: %s\n", result.CaptureFile)
	fmt.Printf("Magic: 0x%08X (version %d.%d)\n", result.Magic, result.VersionMajor, result.VersionMinor)
	fmt.Printf("Duration: %.1f seconds\n", result.DurationSecs)
	fmt.Printf("Processing time: %d ms\n", result.ProcessingTimeMs)
	fmt.Println()
	fmt.Printf("Records: %d (%s bytes)\n", result.RecordCount, rdmx.FormatWithCommas(result.TotalBytes))
	if result.RecordCount > 0 {
		fmt.Printf("Recognized: %d ethernet (%.1f%%), %d ipv4, %d udp, %d rdmx (%.1f%%)\n",
			result.EthernetCount, 100*float64(result.EthernetCount)/float64(result.RecordCount),
			result.IPv4Count, result.UDPCount,
			result.RDMXCount, 100*float64(result.RDMXCount)/float64(result.RecordCount))
	}
	fmt.Printf("Rates: %.1f packets/s, %.1f KB/s\n", result.PacketsPerSec, result.BytesPerSec/1024)
	fmt.Println()
	fmt.Printf("Packet sizes: min %.0f, max %.0f, mean %.1f, p95 %.0f\n",
		result.SizeStats.Min, result.SizeStats.Max, result.SizeStats.Mean, result.SizeStats.P95)
	fmt.Printf("Flows: %d\n", result.FlowCount)
	if len(result.TargetHistogram) > 0 {
		fmt.Println("\nRDMX targets:")
		targets := make([]string, 0, len(result.TargetHistogram))
		for target := range result.TargetHistogram {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			fmt.Printf("  target %s: %d packets\n", target, result.TargetHistogram[target])
		}
	}
	if result.RunID != "" {
		fmt.Printf("\nPersisted as run %s\n", result.RunID)
	}
	fmt.Println("==============================================")
}

func exportResults(config Config, result *AnalysisResult) error {
	baseName := strings.TrimSuffix(filepath.Base(config.CaptureFile), filepath.Ext(config.CaptureFile))

	// Export JSON
	if config.ExportJSON {
		jsonPath := filepath.Join(config.OutputDir, baseName+"_analysis.json")
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("JSON marshal: %w", err)
		}
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		fmt.Printf("JSON results: %s\n", jsonPath)
	}

	// Export CSV
	if config.ExportCSV && len(result.TopFlows) > 0 {
		csvPath := filepath.Join(config.OutputDir, baseName+"_flows.csv")
		if err := exportFlowsCSV(csvPath, result.TopFlows); err != nil {
			return fmt.Errorf("write CSV: %w", err)
		}
		fmt.Printf("CSV flows: %s\n", csvPath)
	}

	// Export charts
	if config.Charts && len(result.TopFlows) > 0 {
		chartPath := filepath.Join(config.OutputDir, baseName+"_flows.html")
		if err := exportFlowsChart(chartPath, result.TopFlows); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		fmt.Printf("Flow chart: %s\n", chartPath)
	}

	return nil
}

func exportFlowsCSV(path string, flows []FlowExport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"flow", "src_ip", "src_port", "dst_ip", "dst_port",
		"packets", "bytes", "rdmx_packets", "mean_size", "p95_size",
		"first_seen", "last_seen",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, fl := range flows {
		row := []string{
			fl.Flow,
			fl.SrcIP,
			strconv.Itoa(fl.SrcPort),
			fl.DstIP,
			strconv.Itoa(fl.DstPort),
			strconv.FormatInt(fl.Packets, 10),
			strconv.FormatInt(fl.Bytes, 10),
			strconv.FormatInt(fl.RDMXPackets, 10),
			strconv.FormatFloat(fl.MeanSize, 'f', 1, 64),
			strconv.FormatFloat(fl.P95Size, 'f', 0, 64),
			fl.FirstSeen,
			fl.LastSeen,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}

// exportFlowsChart writes an interactive bar chart of the top flows.
func exportFlowsChart(path string, flows []FlowExport) error {
	x := make([]string, 0, len(flows))
	bytesSeries := make([]opts.BarData, 0, len(flows))
	rdmxSeries := make([]opts.BarData, 0, len(flows))
	for _, fl := range flows {
		x = append(x, fl.Flow)
		bytesSeries = append(bytesSeries, opts.BarData{Value: fl.Bytes})
		rdmxSeries = append(rdmxSeries, opts.BarData{Value: fl.RDMXPackets})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Capture Flows", Width: "1200px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Top Flows by Volume", Subtitle: time.Now().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("bytes", bytesSeries).
		AddSeries("rdmx packets", rdmxSeries)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func persistToDatabase(dbPath string, result *AnalysisResult, firstSeen, lastSeen time.Time) (string, error) {
	db, err := capdb.NewDB(dbPath)
	if err != nil {
		return "", fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.MigrateLatest(); err != nil {
		return "", fmt.Errorf("apply migrations: %w", err)
	}

	run := &capdb.AnalysisRun{
		CapturePath: result.CaptureFile,
		Magic:       result.Magic,
		LinkType:    result.LinkType,
		RecordCount: result.RecordCount,
		RDMXCount:   result.RDMXCount,
		TotalBytes:  result.TotalBytes,
		FlowCount:   int64(result.FlowCount),
	}
	if !firstSeen.IsZero() {
		run.FirstSeenUnixNanos = firstSeen.UnixNano()
		run.LastSeenUnixNanos = lastSeen.UnixNano()
	}

	runID, err := db.InsertAnalysisRun(run)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stats := make([]capdb.FlowStat, 0, len(result.TopFlows))
	for _, fl := range result.TopFlows {
		fs := capdb.FlowStat{
			SrcIP:       fl.SrcIP,
			DstIP:       fl.DstIP,
			SrcPort:     fl.SrcPort,
			DstPort:     fl.DstPort,
			Packets:     fl.Packets,
			Bytes:       fl.Bytes,
			RDMXPackets: fl.RDMXPackets,
			MeanSize:    fl.MeanSize,
			P95Size:     fl.P95Size,
		}
		if !fl.firstSeen.IsZero() {
			fs.FirstSeenUnixNanos = fl.firstSeen.UnixNano()
			fs.LastSeenUnixNanos = fl.lastSeen.UnixNano()
		}
		stats = append(stats, fs)
	}
	if err := db.InsertFlowStats(runID, stats); err != nil {
		return "", fmt.Errorf("insert flow stats: %w", err)
	}

	return runID, nil
}
