package rdmx

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/rdmxcap/internal/monitoring"
)

// StatsSnapshot represents a snapshot of current traffic statistics
type StatsSnapshot struct {
	PacketsPerSec float64
	MBPerSec      float64
	RDMXPerSec    float64
	DroppedCount  int64
	Timestamp     time.Time
	DecodeEnabled bool
}

// PacketStats tracks capture traffic statistics with thread-safe operations
type PacketStats struct {
	mu             sync.Mutex
	packetCount    int64
	byteCount      int64
	droppedCount   int64
	rdmxCount      int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	now := time.Now()
	return &PacketStats{
		lastReset: now,
		startTime: now,
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDropped increments dropped packet count
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddRDMX increments the count of packets recognized as RDMX
func (ps *PacketStats) AddRDMX() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rdmxCount++
}

// GetAndReset returns current stats and resets counters
func (ps *PacketStats) GetAndReset() (packets int64, bytes int64, dropped int64, rdmx int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	dropped = ps.droppedCount
	rdmx = ps.rdmxCount

	ps.packetCount = 0
	ps.byteCount = 0
	ps.droppedCount = 0
	ps.rdmxCount = 0
	ps.lastReset = now

	return
}

// LogStats logs formatted statistics and stores snapshot for web interface
func (ps *PacketStats) LogStats(decodePackets bool) {
	packets, bytes, dropped, rdmx, duration := ps.GetAndReset()
	if packets > 0 || dropped > 0 {
		packetsPerSec := float64(packets) / duration.Seconds()
		mbPerSec := float64(bytes) / duration.Seconds() / (1024 * 1024)
		rdmxPerSec := float64(rdmx) / duration.Seconds()

		// Store snapshot for web interface
		ps.mu.Lock()
		ps.latestSnapshot = &StatsSnapshot{
			PacketsPerSec: packetsPerSec,
			MBPerSec:      mbPerSec,
			RDMXPerSec:    rdmxPerSec,
			DroppedCount:  dropped,
			Timestamp:     time.Now(),
			DecodeEnabled: decodePackets,
		}
		ps.mu.Unlock()

		var logMsg string
		if decodePackets && rdmx > 0 {
			logMsg = fmt.Sprintf("Capture stats (/sec): %.2f MB, %.1f packets, %s rdmx",
				mbPerSec, packetsPerSec, FormatWithCommas(int64(rdmxPerSec)))
		} else {
			logMsg = fmt.Sprintf("Capture stats (/sec): %.2f MB, %.1f packets",
				mbPerSec, packetsPerSec)
		}

		if dropped > 0 {
			logMsg += fmt.Sprintf(", %d dropped on forward", dropped)
		}

		monitoring.Logf("%s", logMsg)
	}
}

// GetUptime returns the time since the stats were created
func (ps *PacketStats) GetUptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Since(ps.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot for web interface
func (ps *PacketStats) GetLatestSnapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *ps.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := strconv.FormatInt(n, 10)

	neg := false
	if len(str) > 0 && str[0] == '-' {
		neg = true
		str = str[1:]
	}
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	var out []byte
	for i := 0; i < len(str); i++ {
		if i > 0 && (len(str)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, str[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
