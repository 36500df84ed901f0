package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// buildGlobalHeader builds a 24-byte container preamble with the given magic
// and plausible values for the unvalidated fields.
func buildGlobalHeader(magic uint32) []byte {
	buf := make([]byte, GlobalHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], 2)  // major version
	binary.LittleEndian.PutUint16(buf[6:8], 4)  // minor version
	binary.LittleEndian.PutUint32(buf[8:12], 0) // reserved
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	binary.LittleEndian.PutUint32(buf[16:20], 65535) // snap length
	binary.LittleEndian.PutUint32(buf[20:24], 1)     // link type (Ethernet)
	return buf
}

// buildRecord builds a 16-byte record header plus payload. The declared
// length may differ from len(payload) to simulate corrupt or truncated
// containers.
func buildRecord(sec, frac, declaredLen uint32, payload []byte) []byte {
	buf := make([]byte, RecordHeaderLen, RecordHeaderLen+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], sec)
	binary.LittleEndian.PutUint32(buf[4:8], frac)
	binary.LittleEndian.PutUint32(buf[8:12], declaredLen)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(payload)))
	return append(buf, payload...)
}

// writeCapture writes the given chunks as one capture file in a temp dir
// and returns its path.
func writeCapture(t *testing.T, chunks ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pcap")
	var file bytes.Buffer
	for _, c := range chunks {
		file.Write(c)
	}
	if err := os.WriteFile(path, file.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write capture file: %v", err)
	}
	return path
}

func TestOpenAcceptsBothMagics(t *testing.T) {
	for _, magic := range []uint32{MagicNanoLE, MagicMicroLE} {
		path := writeCapture(t, buildGlobalHeader(magic))
		r, err := Open(path)
		if err != nil {
			t.Fatalf("Open with magic 0x%08X failed: %v", magic, err)
		}
		if got := r.Header().Magic; got != magic {
			t.Errorf("Header().Magic = 0x%08X, want 0x%08X", got, magic)
		}
		r.Close()
	}
}

func TestOpenParsesGlobalHeader(t *testing.T) {
	path := writeCapture(t, buildGlobalHeader(MagicNanoLE))
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	h := r.Header()
	if h.VersionMajor != 2 || h.VersionMinor != 4 {
		t.Errorf("version = %d.%d, want 2.4", h.VersionMajor, h.VersionMinor)
	}
	if h.SnapLen != 65535 {
		t.Errorf("SnapLen = %d, want 65535", h.SnapLen)
	}
	if h.LinkType != 1 {
		t.Errorf("LinkType = %d, want 1", h.LinkType)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := writeCapture(t, buildGlobalHeader(0xDEADBEEF))
	_, err := Open(path)
	if err == nil {
		t.Fatal("Open accepted a bad magic")
	}
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("error is %T, want *FormatError", err)
	}
	if fe.Kind != KindBadMagic {
		t.Errorf("Kind = %v, want %v", fe.Kind, KindBadMagic)
	}
	if fe.Magic != 0xDEADBEEF {
		t.Errorf("Magic = 0x%08X, want 0xDEADBEEF", fe.Magic)
	}
}

func TestOpenEmptyFileIsTruncatedHeader(t *testing.T) {
	path := writeCapture(t)
	_, err := Open(path)
	if !IsKind(err, KindTruncatedHeader) {
		t.Fatalf("Open(empty) = %v, want truncated header error", err)
	}
}

func TestOpenShortHeaderIsTruncatedHeader(t *testing.T) {
	// Only 10 of the 24 header bytes present.
	path := writeCapture(t, buildGlobalHeader(MagicNanoLE)[:10])
	_, err := Open(path)
	if !IsKind(err, KindTruncatedHeader) {
		t.Fatalf("Open(short header) = %v, want truncated header error", err)
	}
}

func TestOpenMissingFileIsCannotOpen(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.pcap"))
	if !IsKind(err, KindCannotOpen) {
		t.Fatalf("Open(missing) = %v, want cannot-open error", err)
	}
	// The OS-level cause must stay reachable through the wrap chain.
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error chain does not include fs.ErrNotExist: %v", err)
	}
}

func TestNextWalksAllRecords(t *testing.T) {
	payloads := [][]byte{
		{0x01},
		{0x02, 0x03},
		{0x04, 0x05, 0x06},
	}
	chunks := [][]byte{buildGlobalHeader(MagicNanoLE)}
	for i, p := range payloads {
		chunks = append(chunks, buildRecord(uint32(100+i), uint32(i), uint32(len(p)), p))
	}
	path := writeCapture(t, chunks...)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	for i, want := range payloads {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("Next() record %d failed: %v", i, err)
		}
		if rec.TimestampSec != uint32(100+i) {
			t.Errorf("record %d TimestampSec = %d, want %d", i, rec.TimestampSec, 100+i)
		}
		if rec.CapturedLen != uint32(len(want)) {
			t.Errorf("record %d CapturedLen = %d, want %d", i, rec.CapturedLen, len(want))
		}
		if !bytes.Equal(rec.Payload, want) {
			t.Errorf("record %d payload = %x, want %x", i, rec.Payload, want)
		}
	}

	// The count of records before end-of-stream equals what is physically
	// in the file, and the signal repeats on every later call.
	for i := 0; i < 3; i++ {
		if _, err := r.Next(); !errors.Is(err, ErrEndOfStream) {
			t.Fatalf("Next() after exhaustion = %v, want ErrEndOfStream", err)
		}
	}
}

func TestEndToEndSingleRecord(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	path := writeCapture(t,
		buildGlobalHeader(MagicNanoLE),
		buildRecord(1700000000, 42, 4, payload),
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if !bytes.Equal(rec.Payload, payload) {
		t.Errorf("payload = %x, want %x", rec.Payload, payload)
	}
	if rec.TimestampFrac != 42 {
		t.Errorf("TimestampFrac = %d, want 42", rec.TimestampFrac)
	}
	if _, err := r.Next(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("second Next() = %v, want ErrEndOfStream", err)
	}
}

func TestOversizedRecordLength(t *testing.T) {
	// Declared length one above the bound; no payload follows.
	path := writeCapture(t,
		buildGlobalHeader(MagicNanoLE),
		buildRecord(1, 0, MaxPayloadLen+1, nil),
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	_, err = r.Next()
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Kind != KindOversizedPacket {
		t.Fatalf("Next() = %v, want oversized packet error", err)
	}
	if fe.Length != MaxPayloadLen+1 {
		t.Errorf("Length = %d, want %d", fe.Length, MaxPayloadLen+1)
	}
}

func TestRecordAtExactPayloadBound(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, MaxPayloadLen)
	path := writeCapture(t,
		buildGlobalHeader(MagicNanoLE),
		buildRecord(1, 0, MaxPayloadLen, payload),
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next() at exact bound failed: %v", err)
	}
	if len(rec.Payload) != MaxPayloadLen {
		t.Errorf("payload length = %d, want %d", len(rec.Payload), MaxPayloadLen)
	}
}

func TestTruncatedPayloadIsEndOfStream(t *testing.T) {
	// Header declares 8 bytes but only 4 are present before EOF.
	path := writeCapture(t,
		buildGlobalHeader(MagicNanoLE),
		buildRecord(1, 0, 8, []byte{0x01, 0x02, 0x03, 0x04}),
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Next() with short payload = %v, want ErrEndOfStream", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("repeat Next() = %v, want ErrEndOfStream", err)
	}
}

func TestPartialRecordHeaderIsEndOfStream(t *testing.T) {
	// Only 8 of the 16 record header bytes are present.
	path := writeCapture(t,
		buildGlobalHeader(MagicNanoLE),
		buildRecord(1, 0, 4, []byte{1, 2, 3, 4})[:8],
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("Next() with partial record header = %v, want ErrEndOfStream", err)
	}
}

func TestNextAfterCloseIsNotOpen(t *testing.T) {
	path := writeCapture(t,
		buildGlobalHeader(MagicNanoLE),
		buildRecord(1, 0, 1, []byte{0xFF}),
	)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := r.Next(); !IsKind(err, KindNotOpen) {
		t.Fatalf("Next() after Close = %v, want not-open error", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := writeCapture(t, buildGlobalHeader(MagicNanoLE))
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := r.Close(); err != nil {
			t.Errorf("repeated Close returned %v, want nil", err)
		}
	}
}

func TestZeroValueReaderIsNotOpen(t *testing.T) {
	var r Reader
	if _, err := r.Next(); !IsKind(err, KindNotOpen) {
		t.Fatalf("Next() on zero-value reader = %v, want not-open error", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close on zero-value reader returned %v, want nil", err)
	}
}

func TestFormatErrorMessages(t *testing.T) {
	cases := []struct {
		err  *FormatError
		want string
	}{
		{&FormatError{Kind: KindBadMagic, Path: "x.pcap", Magic: 0x01020304}, "unrecognized magic"},
		{&FormatError{Kind: KindOversizedPacket, Path: "x.pcap", Length: 10001}, "exceeds maximum payload"},
		{&FormatError{Kind: KindNotOpen}, "not open"},
		{&FormatError{Kind: KindTruncatedHeader, Path: "x.pcap"}, "truncated"},
	}
	for _, c := range cases {
		if got := c.err.Error(); !bytes.Contains([]byte(got), []byte(c.want)) {
			t.Errorf("Error() = %q, want it to contain %q", got, c.want)
		}
	}
}

func TestRecordTimeResolution(t *testing.T) {
	rec := &Record{TimestampSec: 1700000000, TimestampFrac: 500}

	nano := GlobalHeader{Magic: MagicNanoLE}
	if got := nano.RecordTime(rec); got.UnixNano() != 1700000000*1e9+500 {
		t.Errorf("nanosecond container: got %d ns, want %d", got.UnixNano(), int64(1700000000)*1e9+500)
	}

	micro := GlobalHeader{Magic: MagicMicroLE}
	if got := micro.RecordTime(rec); got.UnixNano() != 1700000000*1e9+500*1000 {
		t.Errorf("microsecond container: got %d ns, want %d", got.UnixNano(), int64(1700000000)*1e9+500*1000)
	}
}
