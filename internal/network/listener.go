// Package network receives, forwards, and replays RDMX capture traffic.
//
// Datagrams on the wire are full captured frames (Ethernet header onward),
// as produced by the replay tool or an upstream capture agent, so the
// header decoder applies from byte zero on both the live and replay paths.
package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/rdmxcap/internal/monitoring"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
)

// PacketStatsInterface provides packet statistics management
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddRDMX()
	LogStats(decodePackets bool)
}

// HeaderSink receives each frame together with its decoded header stack.
type HeaderSink interface {
	HandleHeaders(frame []byte, hdr rdmx.Headers)
}

// UDPListener receives captured frames over UDP and runs them through
// statistics, optional forwarding, and the header decoder.
type UDPListener struct {
	address       string
	rcvBuf        int
	logInterval   time.Duration
	source        PacketSource
	factory       PacketSourceFactory
	stats         PacketStatsInterface
	forwarder     *PacketForwarder
	sink          HeaderSink
	disableDecode bool
	udpPort       int
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address       string
	RcvBuf        int
	LogInterval   time.Duration
	Stats         PacketStatsInterface
	Forwarder     *PacketForwarder
	Sink          HeaderSink
	SourceFactory PacketSourceFactory
	DisableDecode bool
	UDPPort       int // UDP port for normal operation (also used for replay filtering)
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to avoid
	// nil pointer dereferences in the packet handling and logging paths.
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	// Default a sensible log interval if not provided
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	factory := config.SourceFactory
	if factory == nil {
		factory = &UDPPacketSourceFactory{}
	}

	return &UDPListener{
		address:       config.Address,
		rcvBuf:        config.RcvBuf,
		logInterval:   logInterval,
		factory:       factory,
		stats:         stats,
		forwarder:     config.Forwarder,
		sink:          config.Sink,
		disableDecode: config.DisableDecode,
		udpPort:       config.UDPPort,
	}
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int)         {}
func (n *noopStats) AddDropped()                 {}
func (n *noopStats) AddRDMX()                    {}
func (n *noopStats) LogStats(decodePackets bool) {}

// Start begins listening for UDP packets and processing them
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	source, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.source = source
	defer source.Close()

	// Set receive buffer size
	if err := source.SetReadBuffer(l.rcvBuf); err != nil {
		monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
	}

	monitoring.Logf("UDP listener started on %s with receive buffer %d bytes", l.address, l.rcvBuf)

	// Start forwarder if configured
	if l.forwarder != nil {
		l.forwarder.Start(ctx)
	}

	// Start statistics logging
	go l.startStatsLogging(ctx)

	// Captured frames are at most the container payload bound (10000
	// bytes), leave some margin.
	buffer := make([]byte, 10240)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			source.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, _, err := source.ReadPacket(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue // Continue on timeout to check context
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			l.handlePacket(buffer[:n])
		}
	}
}

// startStatsLogging starts a goroutine that periodically logs packet statistics
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Trigger an initial stats report shortly after startup to avoid a long
	// silence on first-run. Then continue on the configured interval.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats(!l.disableDecode)
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats(!l.disableDecode)
		}
	}
}

// handlePacket processes a single received frame. Decoding is total, so
// unlike a parser there is no error path: unrecognized traffic simply
// leaves the recognition flags unset.
func (l *UDPListener) handlePacket(frame []byte) {
	l.stats.AddPacket(len(frame))

	// Forward frame asynchronously if forwarding is enabled
	if l.forwarder != nil {
		l.forwarder.ForwardAsync(frame)
	}

	if l.disableDecode {
		return
	}

	hdr := rdmx.Decode(frame)
	if hdr.IsRDMX {
		l.stats.AddRDMX()
	}
	if l.sink != nil {
		l.sink.HandleHeaders(frame, hdr)
	}
}

// Close closes the UDP listener and releases resources
func (l *UDPListener) Close() error {
	if l.source != nil {
		return l.source.Close()
	}
	return nil
}
