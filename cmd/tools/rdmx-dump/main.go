// Package main implements rdmx-dump, a small capture walker: it opens one
// RDMX capture container, prints each record's timestamp, length, and
// leading bytes, and optionally the decoded header recognition flags.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/rdmxcap/internal/capture"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
)

var (
	file    = flag.String("file", "", "Path to the capture file (required)")
	maxRecs = flag.Int("max", 0, "Stop after this many records (0 = all)")
	decode  = flag.Bool("decode", true, "Decode and print header recognition flags")
	verbose = flag.Bool("v", false, "Print full decoded headers per record")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -file capture.rdmxcap [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Walks an RDMX capture container and prints each record.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: capture file is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	reader, err := capture.Open(*file)
	if err != nil {
		return err
	}
	defer reader.Close()

	header := reader.Header()
	fmt.Printf("Capture          : %s\n", *file)
	fmt.Printf("Magic            : 0x%08X (version %d.%d, snaplen %d)\n\n",
		header.Magic, header.VersionMajor, header.VersionMinor, header.SnapLen)

	count := 0
	for {
		rec, err := reader.Next()
		if errors.Is(err, capture.ErrEndOfStream) {
			break
		}
		if err != nil {
			return err
		}

		printRecord(rec)
		count++
		if *maxRecs > 0 && count >= *maxRecs {
			break
		}
	}

	fmt.Printf("%d records\n", count)
	return nil
}

func printRecord(rec *capture.Record) {
	fmt.Printf("Timestamp        : %d seconds, %d ns\n", rec.TimestampSec, rec.TimestampFrac)
	fmt.Printf("Data Length      : %d bytes\n", rec.CapturedLen)
	fmt.Printf("First three bytes: %s\n", leadingBytes(rec.Payload, 3))

	if *decode {
		hdr := rdmx.Decode(rec.Payload)
		fmt.Printf("Recognized       : %s\n", flagSummary(hdr))
		if hdr.IsRDMX {
			fmt.Printf("RDMX target      : %d\n", hdr.RDMX.Target)
		}
		if *verbose {
			printHeaders(hdr)
		}
	}
	fmt.Println()
}

// leadingBytes renders up to n leading payload bytes in hex; shorter
// payloads render what is there.
func leadingBytes(payload []byte, n int) string {
	if len(payload) < n {
		n = len(payload)
	}
	if n == 0 {
		return "(empty payload)"
	}
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += "  "
		}
		out += fmt.Sprintf("0x%02X", payload[i])
	}
	return out
}

// flagSummary renders the cumulative recognition flags as the deepest
// recognized layer.
func flagSummary(hdr rdmx.Headers) string {
	switch {
	case hdr.IsRDMX:
		return "ethernet ipv4 udp rdmx"
	case hdr.IsUDP:
		return "ethernet ipv4 udp"
	case hdr.IsIPv4:
		return "ethernet ipv4"
	case hdr.IsEthernet:
		return "ethernet"
	default:
		return "(none)"
	}
}

func printHeaders(hdr rdmx.Headers) {
	fmt.Printf("  Ethernet: %s -> %s type 0x%04X\n",
		rdmx.MACString(hdr.Ethernet.SrcMAC), rdmx.MACString(hdr.Ethernet.DstMAC), hdr.Ethernet.EtherType)
	fmt.Printf("  IPv4    : %s -> %s proto 0x%02X ttl %d len %d\n",
		rdmx.IPv4String(hdr.IPv4.SrcIP), rdmx.IPv4String(hdr.IPv4.DstIP),
		hdr.IPv4.Protocol, hdr.IPv4.TTL, hdr.IPv4.TotalLength)
	fmt.Printf("  UDP     : %d -> %d len %d\n", hdr.UDP.SrcPort, hdr.UDP.DstPort, hdr.UDP.Length)
	fmt.Printf("  RDMX    : magic 0x%04X target %d\n", hdr.RDMX.Magic, hdr.RDMX.Target)
}
