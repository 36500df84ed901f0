package flow

import (
	"testing"

	"github.com/banshee-data/rdmxcap/internal/capture"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
)

// makeHeaders builds decoded headers for a UDP flow with the given
// endpoints. isRDMX also marks the payload as carrying the encapsulation.
func makeHeaders(srcIP, dstIP uint32, srcPort, dstPort uint16, target uint64, isRDMX bool) rdmx.Headers {
	h := rdmx.Headers{
		IsEthernet: true,
		IsIPv4:     true,
		IsUDP:      true,
		IsRDMX:     isRDMX,
	}
	h.IPv4.SrcIP = srcIP
	h.IPv4.DstIP = dstIP
	h.UDP.SrcPort = srcPort
	h.UDP.DstPort = dstPort
	if isRDMX {
		h.RDMX.Magic = rdmx.RDMX_MAGIC
		h.RDMX.Target = target
	}
	return h
}

// makeRecord builds a capture record with a payload of the given size.
func makeRecord(sec, frac uint32, size int) *capture.Record {
	return &capture.Record{
		TimestampSec:  sec,
		TimestampFrac: frac,
		CapturedLen:   uint32(size),
		OriginalLen:   uint32(size),
		Payload:       make([]byte, size),
	}
}

func nanoHeader() capture.GlobalHeader {
	return capture.GlobalHeader{Magic: capture.MagicNanoLE}
}

func TestTableObserveSingleFlow(t *testing.T) {
	table := NewTable(nanoHeader())

	hdr := makeHeaders(0xC0A80101, 0xC0A80102, 2368, 4791, 7, true)

	if !table.Observe(makeRecord(100, 0, 500), hdr) {
		t.Fatal("Observe returned false for UDP record")
	}
	if !table.Observe(makeRecord(101, 0, 700), hdr) {
		t.Fatal("Observe returned false for UDP record")
	}

	if table.Len() != 1 {
		t.Fatalf("Expected 1 flow, got %d", table.Len())
	}

	entries := table.Top(0)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	agg := entries[0].Agg
	if agg.Packets != 2 {
		t.Errorf("Expected 2 packets, got %d", agg.Packets)
	}
	if agg.Bytes != 1200 {
		t.Errorf("Expected 1200 bytes, got %d", agg.Bytes)
	}
	if agg.RDMXPackets != 2 {
		t.Errorf("Expected 2 rdmx packets, got %d", agg.RDMXPackets)
	}
	if agg.TargetCounts[7] != 2 {
		t.Errorf("Expected target 7 count 2, got %d", agg.TargetCounts[7])
	}
}

func TestTableSkipsNonUDP(t *testing.T) {
	table := NewTable(nanoHeader())

	hdr := makeHeaders(1, 2, 3, 4, 0, false)
	hdr.IsUDP = false

	if table.Observe(makeRecord(100, 0, 64), hdr) {
		t.Error("Expected Observe to skip non-UDP record")
	}
	if table.Len() != 0 {
		t.Errorf("Expected empty table, got %d flows", table.Len())
	}
}

func TestTableSeparatesFlows(t *testing.T) {
	table := NewTable(nanoHeader())

	a := makeHeaders(0x0A000001, 0x0A000002, 1000, 2000, 1, true)
	b := makeHeaders(0x0A000001, 0x0A000002, 1001, 2000, 1, true) // different src port
	c := makeHeaders(0x0A000003, 0x0A000002, 1000, 2000, 2, true) // different src ip

	table.Observe(makeRecord(1, 0, 100), a)
	table.Observe(makeRecord(2, 0, 100), b)
	table.Observe(makeRecord(3, 0, 100), c)

	if table.Len() != 3 {
		t.Errorf("Expected 3 distinct flows, got %d", table.Len())
	}
}

func TestTableFirstLastSeen(t *testing.T) {
	table := NewTable(nanoHeader())
	hdr := makeHeaders(1, 2, 3, 4, 0, true)

	// Records arrive out of order
	table.Observe(makeRecord(200, 0, 10), hdr)
	table.Observe(makeRecord(100, 500, 10), hdr)
	table.Observe(makeRecord(300, 0, 10), hdr)

	entries := table.Top(1)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	agg := entries[0].Agg
	if agg.FirstSeen.Unix() != 100 {
		t.Errorf("Expected FirstSeen at 100s, got %v", agg.FirstSeen.Unix())
	}
	if agg.LastSeen.Unix() != 300 {
		t.Errorf("Expected LastSeen at 300s, got %v", agg.LastSeen.Unix())
	}
}

func TestTableTopOrdering(t *testing.T) {
	table := NewTable(nanoHeader())

	small := makeHeaders(1, 2, 10, 20, 0, true)
	big := makeHeaders(3, 4, 30, 40, 0, true)
	mid := makeHeaders(5, 6, 50, 60, 0, true)

	table.Observe(makeRecord(1, 0, 100), small)
	table.Observe(makeRecord(1, 0, 900), big)
	table.Observe(makeRecord(1, 0, 500), mid)

	entries := table.Top(2)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries from Top(2), got %d", len(entries))
	}
	if entries[0].Agg.Bytes != 900 {
		t.Errorf("Expected top flow with 900 bytes, got %d", entries[0].Agg.Bytes)
	}
	if entries[1].Agg.Bytes != 500 {
		t.Errorf("Expected second flow with 500 bytes, got %d", entries[1].Agg.Bytes)
	}

	all := table.Top(0)
	if len(all) != 3 {
		t.Errorf("Expected Top(0) to return all 3 flows, got %d", len(all))
	}
}

func TestTableSnapshotIsolation(t *testing.T) {
	table := NewTable(nanoHeader())
	hdr := makeHeaders(1, 2, 3, 4, 9, true)

	table.Observe(makeRecord(1, 0, 100), hdr)
	entries := table.Top(1)

	// Mutating the table afterwards must not change the snapshot
	table.Observe(makeRecord(2, 0, 100), hdr)

	if entries[0].Agg.Packets != 1 {
		t.Errorf("Snapshot changed after Observe: packets = %d", entries[0].Agg.Packets)
	}
	if entries[0].Agg.TargetCounts[9] != 1 {
		t.Errorf("Snapshot target counts changed: %d", entries[0].Agg.TargetCounts[9])
	}
}

func TestTableNonRDMXNotCounted(t *testing.T) {
	table := NewTable(nanoHeader())

	// Plain UDP, no RDMX encapsulation
	hdr := makeHeaders(1, 2, 3, 4, 0, false)
	table.Observe(makeRecord(1, 0, 100), hdr)

	agg := table.Top(1)[0].Agg
	if agg.Packets != 1 {
		t.Errorf("Expected 1 packet, got %d", agg.Packets)
	}
	if agg.RDMXPackets != 0 {
		t.Errorf("Expected 0 rdmx packets, got %d", agg.RDMXPackets)
	}
	if len(agg.TargetCounts) != 0 {
		t.Errorf("Expected no target counts, got %v", agg.TargetCounts)
	}
}

func TestKeyString(t *testing.T) {
	key := Key{
		SrcIP:   0xC0A80101,
		DstIP:   0x0A000001,
		SrcPort: 2368,
		DstPort: 4791,
	}

	expected := "192.168.1.1:2368 -> 10.0.0.1:4791"
	if got := key.String(); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestAggregateSizeStats(t *testing.T) {
	table := NewTable(nanoHeader())
	hdr := makeHeaders(1, 2, 3, 4, 0, true)

	for _, size := range []int{100, 200, 300, 400, 500} {
		table.Observe(makeRecord(1, 0, size), hdr)
	}

	agg := table.Top(1)[0].Agg
	s := agg.SizeStats()

	if s.Count != 5 {
		t.Errorf("Expected count 5, got %d", s.Count)
	}
	if s.Min != 100 || s.Max != 500 {
		t.Errorf("Expected min/max 100/500, got %f/%f", s.Min, s.Max)
	}
	if s.Mean != 300 {
		t.Errorf("Expected mean 300, got %f", s.Mean)
	}
}
