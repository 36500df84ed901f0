//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/rdmxcap/internal/monitoring"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
)

// ReplayCaptureFile reads captured frames from a capture file via libpcap
// and runs them through the same pipeline as the live listener: statistics,
// optional forwarding, and header decoding into the sink. It serves as a
// cross-check of the native container reader against libpcap's view of the
// same file. This function is only available when building with the 'pcap'
// build tag.
func ReplayCaptureFile(ctx context.Context, captureFile string, udpPort int, sink HeaderSink, stats PacketStatsInterface, forwarder *PacketForwarder) error {
	handle, err := pcap.OpenOffline(captureFile)
	if err != nil {
		return fmt.Errorf("failed to open capture file %s: %w", captureFile, err)
	}
	defer handle.Close()

	// Restrict replay to UDP traffic on the configured port
	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	monitoring.Logf("Replay BPF filter set: %s", filterStr)

	if stats == nil {
		stats = &noopStats{}
	}

	if forwarder != nil {
		forwarder.Start(ctx)
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	rdmxCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("Replay stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				// End of capture file
				elapsed := time.Since(startTime)
				monitoring.Logf("Replay complete: %d packets (%d rdmx) in %v", packetCount, rdmxCount, elapsed)
				return nil
			}

			// Confirm the frame carries UDP (shouldn't fail with the BPF
			// filter in place), then hand the whole frame on: the header
			// decoder expects Ethernet from byte zero.
			if packet.Layer(layers.LayerTypeUDP) == nil {
				continue
			}

			frame := packet.Data()
			if len(frame) == 0 {
				continue
			}

			packetCount++
			stats.AddPacket(len(frame))

			if forwarder != nil {
				forwarder.ForwardAsync(frame)
			}

			hdr := rdmx.Decode(frame)
			if hdr.IsRDMX {
				rdmxCount++
				stats.AddRDMX()
			}
			if sink != nil {
				sink.HandleHeaders(frame, hdr)
			}

			// Log progress periodically
			if packetCount%10000 == 0 {
				elapsed := time.Since(startTime)
				monitoring.Logf("Replay progress: %d packets in %v (%.0f pkt/s)",
					packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
			}
		}
	}
}

// CountCapturePackets counts the UDP packets matching the given port in a
// capture file. This enables progress reporting before a long replay.
func CountCapturePackets(captureFile string, udpPort int) (uint64, error) {
	handle, err := pcap.OpenOffline(captureFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture file %s for counting: %w", captureFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return 0, fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	var count uint64
	for packet := range packetSource.Packets() {
		if packet == nil {
			break
		}
		count++
	}

	monitoring.Logf("Capture packet count: %d packets matching filter '%s' in %s", count, filterStr, captureFile)
	return count, nil
}
