// Package flow aggregates decoded capture traffic into per-flow counters
// for offline analysis.
package flow

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/rdmxcap/internal/capture"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
)

// Key identifies one UDP flow by its address/port pair. Addresses are
// host-order IPv4 values as produced by rdmx.Decode.
type Key struct {
	SrcIP   uint32
	DstIP   uint32
	SrcPort uint16
	DstPort uint16
}

// String renders the key as "src:port -> dst:port" with dotted quads.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d",
		rdmx.IPv4String(k.SrcIP), k.SrcPort,
		rdmx.IPv4String(k.DstIP), k.DstPort)
}

// Aggregate accumulates counters for one flow.
type Aggregate struct {
	Packets      int64
	Bytes        int64
	RDMXPackets  int64
	TargetCounts map[uint64]int64 // RDMX target id -> packets
	FirstSeen    time.Time
	LastSeen     time.Time

	sizes []float64 // per-packet payload sizes, for SizeStats
}

// SizeStats computes the payload size distribution of this flow.
func (a *Aggregate) SizeStats() SizeStats {
	return ComputeSizeStats(a.sizes)
}

// Entry pairs a flow key with a snapshot of its aggregate.
type Entry struct {
	Key Key
	Agg Aggregate
}

// Table tracks per-flow aggregates with thread-safe operations. A table
// aggregates the records of one capture container; the global header is
// needed to interpret record timestamps.
type Table struct {
	mu     sync.Mutex
	header capture.GlobalHeader
	flows  map[Key]*Aggregate
}

// NewTable creates an empty flow table for a container with the given
// global header.
func NewTable(header capture.GlobalHeader) *Table {
	return &Table{
		header: header,
		flows:  make(map[Key]*Aggregate),
	}
}

// Observe feeds one record and its decoded headers into the table. Records
// whose payload is not recognized as UDP are skipped, since the address
// and port fields would be garbage; Observe reports whether the record was
// counted.
func (t *Table) Observe(rec *capture.Record, hdr rdmx.Headers) bool {
	if !hdr.IsUDP {
		return false
	}

	key := Key{
		SrcIP:   hdr.IPv4.SrcIP,
		DstIP:   hdr.IPv4.DstIP,
		SrcPort: hdr.UDP.SrcPort,
		DstPort: hdr.UDP.DstPort,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	agg := t.flows[key]
	if agg == nil {
		agg = &Aggregate{TargetCounts: make(map[uint64]int64)}
		t.flows[key] = agg
	}

	size := int64(len(rec.Payload))
	agg.Packets++
	agg.Bytes += size
	agg.sizes = append(agg.sizes, float64(size))

	if hdr.IsRDMX {
		agg.RDMXPackets++
		agg.TargetCounts[hdr.RDMX.Target]++
	}

	ts := t.header.RecordTime(rec)
	if agg.FirstSeen.IsZero() || ts.Before(agg.FirstSeen) {
		agg.FirstSeen = ts
	}
	if ts.After(agg.LastSeen) {
		agg.LastSeen = ts
	}

	return true
}

// Len returns the number of distinct flows observed.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// Top returns snapshots of the n highest-volume flows by byte count,
// descending. Pass n <= 0 for all flows.
func (t *Table) Top(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]Entry, 0, len(t.flows))
	for key, agg := range t.flows {
		entries = append(entries, Entry{Key: key, Agg: snapshotAggregate(agg)})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Agg.Bytes != entries[j].Agg.Bytes {
			return entries[i].Agg.Bytes > entries[j].Agg.Bytes
		}
		// Stable order for equal volumes
		return entries[i].Key.String() < entries[j].Key.String()
	})

	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries
}

// snapshotAggregate deep-copies an aggregate so callers can use it without
// holding the table lock.
func snapshotAggregate(agg *Aggregate) Aggregate {
	out := *agg
	out.TargetCounts = make(map[uint64]int64, len(agg.TargetCounts))
	for target, count := range agg.TargetCounts {
		out.TargetCounts[target] = count
	}
	out.sizes = append([]float64(nil), agg.sizes...)
	return out
}
