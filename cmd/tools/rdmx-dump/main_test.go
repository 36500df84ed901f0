package main

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/rdmxcap/internal/capture"
	"github.com/banshee-data/rdmxcap/internal/rdmx"
)

// writeCapture builds a minimal capture container with the given payloads.
func writeCapture(t *testing.T, magic uint32, payloads ...[]byte) string {
	t.Helper()

	var buf []byte
	header := make([]byte, capture.GlobalHeaderLen)
	binary.LittleEndian.PutUint32(header[0:4], magic)
	binary.LittleEndian.PutUint16(header[4:6], 2)
	binary.LittleEndian.PutUint16(header[6:8], 4)
	binary.LittleEndian.PutUint32(header[16:20], 65535)
	buf = append(buf, header...)

	for i, payload := range payloads {
		rec := make([]byte, capture.RecordHeaderLen)
		binary.LittleEndian.PutUint32(rec[0:4], uint32(1700000000+i))
		binary.LittleEndian.PutUint32(rec[4:8], 500)
		binary.LittleEndian.PutUint32(rec[8:12], uint32(len(payload)))
		binary.LittleEndian.PutUint32(rec[12:16], uint32(len(payload)))
		buf = append(buf, rec...)
		buf = append(buf, payload...)
	}

	path := filepath.Join(t.TempDir(), "dump_test.rdmxcap")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatalf("Failed to write capture: %v", err)
	}
	return path
}

func TestRunValidCapture(t *testing.T) {
	path := writeCapture(t, capture.MagicNanoLE, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	*file = path
	*maxRecs = 0

	if err := run(); err != nil {
		t.Fatalf("run() failed on valid capture: %v", err)
	}
}

func TestRunBadMagic(t *testing.T) {
	path := writeCapture(t, 0xDEADBEEF)
	*file = path

	err := run()
	if err == nil {
		t.Fatal("Expected error for bad magic")
	}
	var fe *capture.FormatError
	if !errors.As(err, &fe) || fe.Kind != capture.KindBadMagic {
		t.Errorf("Expected KindBadMagic, got %v", err)
	}
}

func TestLeadingBytes(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		n       int
		want    string
	}{
		{"three bytes", []byte{0xDE, 0xAD, 0xBE, 0xEF}, 3, "0xDE  0xAD  0xBE"},
		{"short payload", []byte{0x01}, 3, "0x01"},
		{"empty payload", nil, 3, "(empty payload)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := leadingBytes(tt.payload, tt.n); got != tt.want {
				t.Errorf("leadingBytes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlagSummary(t *testing.T) {
	tests := []struct {
		name string
		hdr  rdmx.Headers
		want string
	}{
		{"none", rdmx.Headers{}, "(none)"},
		{"ethernet only", rdmx.Headers{IsEthernet: true}, "ethernet"},
		{"through udp", rdmx.Headers{IsEthernet: true, IsIPv4: true, IsUDP: true}, "ethernet ipv4 udp"},
		{"full stack", rdmx.Headers{IsEthernet: true, IsIPv4: true, IsUDP: true, IsRDMX: true}, "ethernet ipv4 udp rdmx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flagSummary(tt.hdr); got != tt.want {
				t.Errorf("flagSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}
