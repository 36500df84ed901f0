//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"fmt"
)

// ReplayCaptureFile is a stub implementation when libpcap support is disabled.
// Build with -tags=pcap to enable capture file replay.
func ReplayCaptureFile(ctx context.Context, captureFile string, udpPort int, sink HeaderSink, stats PacketStatsInterface, forwarder *PacketForwarder) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable capture file replay")
}

// CountCapturePackets is a stub that returns an error when pcap support is not compiled in.
func CountCapturePackets(captureFile string, udpPort int) (uint64, error) {
	return 0, fmt.Errorf("PCAP support not compiled in (requires pcap build tag)")
}
