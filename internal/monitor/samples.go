// Package monitor provides the HTTP monitoring interface for the rdmxwatch
// service: a status page, JSON stats and flow APIs, chart pages, and
// optional capture-database admin routes.
package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/rdmxcap/internal/flow"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
)

// PacketSample is one observed frame, reduced to what the charts and flow
// API need.
type PacketSample struct {
	Time   time.Time `json:"time"`
	Size   int       `json:"size"`
	IsRDMX bool      `json:"is_rdmx"`
	Target uint64    `json:"target,omitempty"`
	Key    flow.Key  `json:"-"`
	HasKey bool      `json:"-"`
}

// SampleRing keeps the most recent packet samples in a fixed-size ring. It
// implements network.HeaderSink so it can be wired directly into the UDP
// listener pipeline.
type SampleRing struct {
	mu      sync.Mutex
	samples []PacketSample
	next    int
	full    bool
}

// NewSampleRing creates a ring holding up to capacity samples.
func NewSampleRing(capacity int) *SampleRing {
	if capacity <= 0 {
		capacity = 4096
	}
	return &SampleRing{samples: make([]PacketSample, capacity)}
}

// HandleHeaders records one frame and its decoded headers.
func (r *SampleRing) HandleHeaders(frame []byte, hdr rdmx.Headers) {
	s := PacketSample{
		Time:   time.Now(),
		Size:   len(frame),
		IsRDMX: hdr.IsRDMX,
	}
	if hdr.IsRDMX {
		s.Target = hdr.RDMX.Target
	}
	if hdr.IsUDP {
		s.Key = flow.Key{
			SrcIP:   hdr.IPv4.SrcIP,
			DstIP:   hdr.IPv4.DstIP,
			SrcPort: hdr.UDP.SrcPort,
			DstPort: hdr.UDP.DstPort,
		}
		s.HasKey = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = s
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

// Recent returns the stored samples in arrival order, oldest first.
func (r *SampleRing) Recent() []PacketSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]PacketSample(nil), r.samples[:r.next]...)
	}
	out := make([]PacketSample, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)
	return out
}

// Len returns the number of samples currently stored.
func (r *SampleRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.samples)
	}
	return r.next
}

// FlowSummary is one flow's aggregate over the samples in the ring.
type FlowSummary struct {
	Flow    string `json:"flow"`
	Packets int64  `json:"packets"`
	Bytes   int64  `json:"bytes"`
	RDMX    int64  `json:"rdmx_packets"`
}

// TopFlows aggregates the ring's UDP samples by flow and returns the n
// highest-volume flows by byte count, descending. Pass n <= 0 for all.
func (r *SampleRing) TopFlows(n int) []FlowSummary {
	type agg struct {
		packets int64
		bytes   int64
		rdmx    int64
	}
	flows := make(map[flow.Key]*agg)
	for _, s := range r.Recent() {
		if !s.HasKey {
			continue
		}
		a := flows[s.Key]
		if a == nil {
			a = &agg{}
			flows[s.Key] = a
		}
		a.packets++
		a.bytes += int64(s.Size)
		if s.IsRDMX {
			a.rdmx++
		}
	}

	out := make([]FlowSummary, 0, len(flows))
	for key, a := range flows {
		out = append(out, FlowSummary{
			Flow:    key.String(),
			Packets: a.packets,
			Bytes:   a.bytes,
			RDMX:    a.rdmx,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Flow < out[j].Flow
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
