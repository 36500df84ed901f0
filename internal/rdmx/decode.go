// Package rdmx decodes the layered header stack carried in RDMX capture
// payloads and tracks live decode statistics.
package rdmx

import (
	"encoding/binary"
	"fmt"
)

/*
RDMX Header Stack Layout

RDMX traffic is a custom RDMA-like encapsulation carried over UDP/IPv4 on
Ethernet. Every payload handed to Decode is expected to begin with the
following 52-byte header stack; everything after it is application data.

HEADER STACK (52 bytes total, offsets relative to payload start):
├── Ethernet (14 bytes)
│   ├── 0–5    destination MAC (raw bytes)
│   ├── 6–11   source MAC (raw bytes)
│   └── 12–13  ethertype (0x0800 = IPv4)
├── IPv4 (20 bytes, no options)
│   ├── 14     version/IHL (0x45 = IPv4, 20-byte header)
│   ├── 15     DSCP/ECN
│   ├── 16–17  total length
│   ├── 18–19  identification
│   ├── 20–21  flags + fragment offset
│   ├── 22     TTL
│   ├── 23     protocol (0x11 = UDP)
│   ├── 24–25  header checksum
│   ├── 26–29  source address
│   └── 30–33  destination address
├── UDP (8 bytes)
│   ├── 34–35  source port
│   ├── 36–37  destination port
│   ├── 38–39  length
│   └── 40–41  checksum
└── RDMX (10 bytes)
    ├── 42–43  magic (0x0122)
    └── 44–51  target identifier (8 bytes)

All multi-byte fields are big-endian on the wire and converted to host
order on decode. The single-byte IPv4 fields and the MAC arrays are copied
as-is.

RECOGNITION FLAGS:
Decode computes four flags in strict cumulative order, each gating the
next: IsEthernet (ethertype 0x0800), IsIPv4 (version/IHL 0x45), IsUDP
(protocol 0x11), IsRDMX (magic 0x0122). A payload that fails a layer check
simply leaves that flag and all deeper flags false; Decode itself never
fails. Payloads shorter than the full stack are decoded against a
zero-padded scratch copy, so field values beyond the truncation point read
as zero and their layer checks come out false.
*/

// RDMX header stack constants. These define the fixed wire format of the
// combined Ethernet+IPv4+UDP+RDMX header region.
const (
	ETHERNET_HEADER_SIZE = 14                                                                           // Ethernet II header: two MACs + ethertype
	IPV4_HEADER_SIZE     = 20                                                                           // IPv4 header without options
	UDP_HEADER_SIZE      = 8                                                                            // UDP header
	RDMX_HEADER_SIZE     = 10                                                                           // RDMX encapsulation: magic + target
	HEADER_STACK_SIZE    = ETHERNET_HEADER_SIZE + IPV4_HEADER_SIZE + UDP_HEADER_SIZE + RDMX_HEADER_SIZE // 52 bytes total

	// Field offsets within the combined header stack
	OFF_DST_MAC        = 0
	OFF_SRC_MAC        = 6
	OFF_ETHERTYPE      = 12
	OFF_VERSION_IHL    = 14
	OFF_DSCP           = 15
	OFF_TOTAL_LENGTH   = 16
	OFF_IDENTIFICATION = 18
	OFF_FLAGS_FRAGMENT = 20
	OFF_TTL            = 22
	OFF_PROTOCOL       = 23
	OFF_IP_CHECKSUM    = 24
	OFF_SRC_IP         = 26
	OFF_DST_IP         = 30
	OFF_SRC_PORT       = 34
	OFF_DST_PORT       = 36
	OFF_UDP_LENGTH     = 38
	OFF_UDP_CHECKSUM   = 40
	OFF_RDMX_MAGIC     = 42
	OFF_RDMX_TARGET    = 44

	// Layer recognition values
	ETHERTYPE_IPV4   = 0x0800 // IPv4 over Ethernet
	IPV4_VERSION_IHL = 0x45   // version 4, 20-byte header, no options
	PROTOCOL_UDP     = 0x11   // IP protocol number 17
	RDMX_MAGIC       = 0x0122 // RDMX encapsulation marker
)

// EthernetHeader holds the Ethernet II fields in host order.
type EthernetHeader struct {
	DstMAC    [6]byte // destination MAC, raw wire bytes
	SrcMAC    [6]byte // source MAC, raw wire bytes
	EtherType uint16  // payload type (0x0800 = IPv4)
}

// IPv4Header holds the fixed 20-byte IPv4 fields in host order.
type IPv4Header struct {
	VersionIHL     byte   // version (high nibble) and header length in words (low nibble)
	DSCP           byte   // DSCP/ECN byte
	TotalLength    uint16 // datagram length including header
	Identification uint16
	FlagsFragment  uint16 // flags (3 bits) + fragment offset (13 bits)
	TTL            byte
	Protocol       byte // transport protocol (0x11 = UDP)
	Checksum       uint16
	SrcIP          uint32
	DstIP          uint32
}

// UDPHeader holds the UDP fields in host order.
type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16 // UDP length including header
	Checksum uint16
}

// RDMXHeader holds the RDMX encapsulation fields in host order.
type RDMXHeader struct {
	Magic  uint16 // RDMX marker (0x0122)
	Target uint64 // 64-bit target identifier
}

// Headers is the decoded, host-order view of one payload's header stack
// plus the cumulative recognition flags. It is a pure value: it holds no
// reference to the input buffer and no external resource.
type Headers struct {
	Ethernet EthernetHeader
	IPv4     IPv4Header
	UDP      UDPHeader
	RDMX     RDMXHeader

	// Recognition flags, cumulative in this order. A later flag can only
	// be true if every earlier one is true.
	IsEthernet bool // ethertype is IPv4
	IsIPv4     bool // and version/IHL is 0x45
	IsUDP      bool // and protocol is UDP
	IsRDMX     bool // and RDMX magic matches
}

// Decode extracts the header stack from payload. It is total: it never
// fails, whatever the length or content of the input. The payload is
// copied into a fixed 52-byte zero-padded scratch buffer before
// extraction, so short inputs produce zero field values past the
// truncation point rather than an error, and the corresponding layer
// checks come out false.
//
// Decode reads only from its argument and is safe to call concurrently
// from any number of goroutines.
func Decode(payload []byte) Headers {
	var buf [HEADER_STACK_SIZE]byte
	copy(buf[:], payload)

	var h Headers

	copy(h.Ethernet.DstMAC[:], buf[OFF_DST_MAC:OFF_DST_MAC+6])
	copy(h.Ethernet.SrcMAC[:], buf[OFF_SRC_MAC:OFF_SRC_MAC+6])
	h.Ethernet.EtherType = binary.BigEndian.Uint16(buf[OFF_ETHERTYPE:])

	h.IPv4.VersionIHL = buf[OFF_VERSION_IHL]
	h.IPv4.DSCP = buf[OFF_DSCP]
	h.IPv4.TotalLength = binary.BigEndian.Uint16(buf[OFF_TOTAL_LENGTH:])
	h.IPv4.Identification = binary.BigEndian.Uint16(buf[OFF_IDENTIFICATION:])
	h.IPv4.FlagsFragment = binary.BigEndian.Uint16(buf[OFF_FLAGS_FRAGMENT:])
	h.IPv4.TTL = buf[OFF_TTL]
	h.IPv4.Protocol = buf[OFF_PROTOCOL]
	h.IPv4.Checksum = binary.BigEndian.Uint16(buf[OFF_IP_CHECKSUM:])
	h.IPv4.SrcIP = binary.BigEndian.Uint32(buf[OFF_SRC_IP:])
	h.IPv4.DstIP = binary.BigEndian.Uint32(buf[OFF_DST_IP:])

	h.UDP.SrcPort = binary.BigEndian.Uint16(buf[OFF_SRC_PORT:])
	h.UDP.DstPort = binary.BigEndian.Uint16(buf[OFF_DST_PORT:])
	h.UDP.Length = binary.BigEndian.Uint16(buf[OFF_UDP_LENGTH:])
	h.UDP.Checksum = binary.BigEndian.Uint16(buf[OFF_UDP_CHECKSUM:])

	h.RDMX.Magic = binary.BigEndian.Uint16(buf[OFF_RDMX_MAGIC:])
	h.RDMX.Target = binary.BigEndian.Uint64(buf[OFF_RDMX_TARGET:])

	h.IsEthernet = h.Ethernet.EtherType == ETHERTYPE_IPV4
	h.IsIPv4 = h.IsEthernet && h.IPv4.VersionIHL == IPV4_VERSION_IHL
	h.IsUDP = h.IsIPv4 && h.IPv4.Protocol == PROTOCOL_UDP
	h.IsRDMX = h.IsUDP && h.RDMX.Magic == RDMX_MAGIC

	return h
}

// MACString renders a MAC address in the usual colon-separated form.
func MACString(mac [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// IPv4String renders a host-order IPv4 address as a dotted quad.
func IPv4String(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}
