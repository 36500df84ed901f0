package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/rdmxcap/internal/monitoring"
)

// PacketStats interface for drop tracking on the forwarding path
type PacketStats interface {
	AddDropped()
}

// PacketForwarder handles asynchronous forwarding of frames to another
// address. Forwarding never blocks the receive path: when the buffer is
// full the frame is dropped and counted.
type PacketForwarder struct {
	conn        *net.UDPConn
	channel     chan []byte
	stats       PacketStats
	logInterval time.Duration
	address     string
}

// NewPacketForwarder creates a forwarder that sends frames to the specified address
func NewPacketForwarder(addr string, port int, stats PacketStats, logInterval time.Duration) (*PacketForwarder, error) {
	forwardAddress := fmt.Sprintf("%s:%d", addr, port)
	forwardUDPAddr, err := net.ResolveUDPAddr("udp", forwardAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %v", err)
	}

	conn, err := net.DialUDP("udp", nil, forwardUDPAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %v", err)
	}

	return &PacketForwarder{
		conn:        conn,
		channel:     make(chan []byte, 1000), // Buffer 1000 frames
		stats:       stats,
		logInterval: logInterval,
		address:     forwardAddress,
	}, nil
}

// Start begins the forwarding goroutine that drains the channel. Write
// errors are counted and reported at the configured log interval.
func (f *PacketForwarder) Start(ctx context.Context) {
	go func() {
		droppedCount := 0
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-f.channel:
				_, err := f.conn.Write(frame)
				if err != nil {
					droppedCount++
					lastError = err
				}
			case <-ticker.C:
				// Only log if we have dropped frames in this interval
				if droppedCount > 0 && lastError != nil {
					monitoring.Logf("\033[93mDropped %d forwarded frames due to errors (latest: %v)\033[0m", droppedCount, lastError)
					droppedCount = 0 // Reset counter after logging
					lastError = nil
				}
			}
		}
	}()

	monitoring.Logf("Forwarding frames to %s", f.address)
}

// ForwardAsync queues a frame for forwarding without blocking. If the
// buffer is full, the frame is dropped and the drop counter incremented.
func (f *PacketForwarder) ForwardAsync(frame []byte) {
	// Copy the frame: the caller reuses its receive buffer
	frameCopy := make([]byte, len(frame))
	copy(frameCopy, frame)

	select {
	case f.channel <- frameCopy:
		// Queued for forwarding
	default:
		f.stats.AddDropped()
	}
}

// Close closes the UDP connection and channel
func (f *PacketForwarder) Close() error {
	close(f.channel)
	return f.conn.Close()
}
