package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTrafficPlotterSampling(t *testing.T) {
	tp := NewTrafficPlotter(time.Second)
	if err := tp.Start(t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tp.Sample(100, true, base)
	tp.Sample(200, false, base.Add(200*time.Millisecond))
	tp.Sample(300, true, base.Add(1500*time.Millisecond))

	if tp.SampleCount() != 2 {
		t.Errorf("Expected 2 buckets, got %d", tp.SampleCount())
	}

	tp.mu.Lock()
	first := tp.buckets[0]
	second := tp.buckets[1]
	tp.mu.Unlock()

	if first.packets != 2 || first.bytes != 300 || first.rdmx != 1 {
		t.Errorf("First bucket = %+v, want 2 packets / 300 bytes / 1 rdmx", first)
	}
	if second.packets != 1 || second.bytes != 300 || second.rdmx != 1 {
		t.Errorf("Second bucket = %+v, want 1 packet / 300 bytes / 1 rdmx", second)
	}
}

func TestTrafficPlotterDisabled(t *testing.T) {
	tp := NewTrafficPlotter(time.Second)

	tp.Sample(100, false, time.Now())
	if tp.SampleCount() != 0 {
		t.Error("Expected no samples recorded before Start")
	}

	if err := tp.Start(t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tp.Stop()
	tp.Sample(100, false, time.Now())
	if tp.SampleCount() != 0 {
		t.Error("Expected no samples recorded after Stop")
	}
}

func TestTrafficPlotterGeneratePlots(t *testing.T) {
	outputDir := t.TempDir()
	tp := NewTrafficPlotter(time.Second)
	if err := tp.Start(outputDir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		tp.Sample(500+i*10, i%2 == 0, base.Add(time.Duration(i)*500*time.Millisecond))
	}

	n, err := tp.GeneratePlots()
	if err != nil {
		t.Fatalf("GeneratePlots failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 plots, got %d", n)
	}

	for _, name := range []string{"packet_rate.png", "throughput.png"} {
		path := filepath.Join(outputDir, name)
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("Expected plot file %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("Plot file %s is empty", name)
		}
	}
}

func TestTrafficPlotterGeneratePlotsEmpty(t *testing.T) {
	tp := NewTrafficPlotter(time.Second)
	if err := tp.Start(t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	n, err := tp.GeneratePlots()
	if err != nil {
		t.Fatalf("GeneratePlots on empty data failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 plots for empty data, got %d", n)
	}
}

func TestTrafficPlotterNoOutputDir(t *testing.T) {
	tp := NewTrafficPlotter(time.Second)
	if _, err := tp.GeneratePlots(); err == nil {
		t.Error("Expected error when no output directory is configured")
	}
}
