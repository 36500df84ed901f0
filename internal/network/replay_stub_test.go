//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"strings"
	"testing"
)

// TestReplayCaptureFile_Stub tests the stub implementation returns an error
func TestReplayCaptureFile_Stub(t *testing.T) {
	ctx := context.Background()

	err := ReplayCaptureFile(ctx, "test.rdmxcap", 4791, nil, nil, nil)

	if err == nil {
		t.Fatal("Expected error from stub implementation")
	}
	if !strings.HasPrefix(err.Error(), "PCAP support not enabled") {
		t.Errorf("Expected error message to start with 'PCAP support not enabled', got '%s'", err.Error())
	}
}

// TestCountCapturePackets_Stub tests the count stub returns an error
func TestCountCapturePackets_Stub(t *testing.T) {
	count, err := CountCapturePackets("test.rdmxcap", 4791)

	if err == nil {
		t.Fatal("Expected error from stub implementation")
	}
	if count != 0 {
		t.Errorf("Expected zero count from stub, got %d", count)
	}
	if !strings.Contains(err.Error(), "PCAP support not compiled in") {
		t.Errorf("Unexpected stub error message: %s", err.Error())
	}
}
