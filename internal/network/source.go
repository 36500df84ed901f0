package network

import (
	"net"
	"time"
)

// PacketSource defines an interface for reading datagrams. It abstracts a
// UDP socket so the listener can be tested without real network
// connections.
type PacketSource interface {
	// ReadPacket reads one datagram into b.
	ReadPacket(b []byte) (n int, addr *net.UDPAddr, err error)

	// SetReadBuffer sets the size of the operating system's receive buffer.
	SetReadBuffer(bytes int) error

	// SetReadDeadline sets the deadline for future ReadPacket calls.
	SetReadDeadline(t time.Time) error

	// Close closes the source.
	Close() error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr
}

// PacketSourceFactory creates packet sources. It enables dependency
// injection of socket creation.
type PacketSourceFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (PacketSource, error)
}

// UDPPacketSource wraps *net.UDPConn to implement PacketSource.
type UDPPacketSource struct {
	conn *net.UDPConn
}

// NewUDPPacketSource wraps an existing *net.UDPConn.
func NewUDPPacketSource(conn *net.UDPConn) *UDPPacketSource {
	return &UDPPacketSource{conn: conn}
}

func (s *UDPPacketSource) ReadPacket(b []byte) (n int, addr *net.UDPAddr, err error) {
	return s.conn.ReadFromUDP(b)
}

func (s *UDPPacketSource) SetReadBuffer(bytes int) error {
	return s.conn.SetReadBuffer(bytes)
}

func (s *UDPPacketSource) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *UDPPacketSource) Close() error {
	return s.conn.Close()
}

func (s *UDPPacketSource) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// UDPPacketSourceFactory implements PacketSourceFactory using net.ListenUDP.
type UDPPacketSourceFactory struct{}

func (f *UDPPacketSourceFactory) ListenUDP(network string, laddr *net.UDPAddr) (PacketSource, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return NewUDPPacketSource(conn), nil
}

// MockPacket is one datagram queued in a MockPacketSource.
type MockPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockPacketSource implements PacketSource for testing. It replays a fixed
// packet sequence and then simulates read timeouts.
type MockPacketSource struct {
	// Packets holds the datagrams to return from ReadPacket.
	Packets []MockPacket
	// ReadIndex tracks the current position in Packets.
	ReadIndex int
	// Closed indicates whether Close was called.
	Closed bool
	// ReadBufferSize holds the value set by SetReadBuffer.
	ReadBufferSize int
	// ReadDeadline holds the value set by SetReadDeadline.
	ReadDeadline time.Time
	// LocalAddress is returned by LocalAddr.
	LocalAddress *net.UDPAddr
	// ReadError is returned on the next ReadPacket call if set.
	ReadError error
	// SetReadBufferError is returned by SetReadBuffer if set.
	SetReadBufferError error
}

// NewMockPacketSource creates a mock source that replays the given packets.
func NewMockPacketSource(packets []MockPacket) *MockPacketSource {
	return &MockPacketSource{
		Packets: packets,
		LocalAddress: &net.UDPAddr{
			IP:   net.ParseIP("127.0.0.1"),
			Port: 4791,
		},
	}
}

func (m *MockPacketSource) ReadPacket(b []byte) (n int, addr *net.UDPAddr, err error) {
	if m.Closed {
		return 0, nil, net.ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		return 0, nil, err
	}
	if m.ReadIndex >= len(m.Packets) {
		// Simulate timeout when no more packets
		return 0, nil, &net.OpError{
			Op:  "read",
			Net: "udp",
			Err: &timeoutError{},
		}
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	n = copy(b, pkt.Data)
	return n, pkt.Addr, nil
}

func (m *MockPacketSource) SetReadBuffer(bytes int) error {
	if m.SetReadBufferError != nil {
		return m.SetReadBufferError
	}
	m.ReadBufferSize = bytes
	return nil
}

func (m *MockPacketSource) SetReadDeadline(t time.Time) error {
	m.ReadDeadline = t
	return nil
}

func (m *MockPacketSource) Close() error {
	m.Closed = true
	return nil
}

func (m *MockPacketSource) LocalAddr() net.Addr {
	return m.LocalAddress
}

// Reset rewinds the mock source for reuse.
func (m *MockPacketSource) Reset() {
	m.ReadIndex = 0
	m.Closed = false
	m.ReadBufferSize = 0
	m.ReadDeadline = time.Time{}
	m.ReadError = nil
}

// MockPacketSourceFactory implements PacketSourceFactory for testing.
type MockPacketSourceFactory struct {
	// Source is returned from ListenUDP.
	Source *MockPacketSource
	// Error is returned by ListenUDP if set.
	Error error
	// ListenCalls records all ListenUDP calls.
	ListenCalls []MockListenCall
}

// MockListenCall records one call to ListenUDP.
type MockListenCall struct {
	Network string
	Addr    *net.UDPAddr
}

func NewMockPacketSourceFactory(source *MockPacketSource) *MockPacketSourceFactory {
	return &MockPacketSourceFactory{Source: source}
}

func (f *MockPacketSourceFactory) ListenUDP(network string, laddr *net.UDPAddr) (PacketSource, error) {
	f.ListenCalls = append(f.ListenCalls, MockListenCall{
		Network: network,
		Addr:    laddr,
	})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Source, nil
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
