// Package capture reads RDMX packet capture containers.
//
// A capture file is a sequential container: one 24-byte global header
// followed by any number of records, each a 16-byte record header plus a
// raw payload of the declared length. All container fields are stored
// little-endian and are read without byte swapping; the payload bytes are
// opaque to this package (see the rdmx package for payload decoding).
//
// The reader is strictly forward-only and single-consumer: one goroutine
// opens the file, walks records until ErrEndOfStream, and closes it.
package capture

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"time"
)

// Capture container layout constants. These define the fixed on-disk
// format and must not change.
const (
	// MagicNanoLE and MagicMicroLE are the two accepted magic values.
	// Nominally they distinguish nanosecond from microsecond timestamp
	// fractions, but the fraction field is passed through uninterpreted,
	// so the reader deliberately treats both as equivalent.
	MagicNanoLE  uint32 = 0xA1B23C4D
	MagicMicroLE uint32 = 0xA1B2C3D4

	GlobalHeaderLen = 24 // bytes in the container preamble
	RecordHeaderLen = 16 // bytes in each per-record header

	// MaxPayloadLen bounds the captured length a record header may
	// declare. Anything larger marks the container as corrupt.
	MaxPayloadLen = 10000
)

// GlobalHeader is the parsed 24-byte container preamble. Only the magic is
// validated; every other field is read and exposed as-is.
type GlobalHeader struct {
	Magic        uint32
	VersionMajor uint16
	VersionMinor uint16
	Reserved1    uint32
	Reserved2    uint32
	SnapLen      uint32
	LinkType     uint32 // opaque trailing field, never validated or split
}

// Record is one container entry: the record header fields plus exactly
// CapturedLen payload bytes.
type Record struct {
	TimestampSec  uint32 // whole seconds
	TimestampFrac uint32 // sub-second units, uninterpreted
	CapturedLen   uint32 // bytes of payload present in the container
	OriginalLen   uint32 // original length or reserved; read, not validated
	Payload       []byte
}

// RecordTime converts a record's raw timestamp fields to wall-clock time
// using the fraction resolution implied by the container magic:
// nanoseconds for MagicNanoLE, microseconds for MagicMicroLE. The raw
// fields on the record stay authoritative; this is a convenience for
// callers that want time.Time arithmetic.
func (h GlobalHeader) RecordTime(rec *Record) time.Time {
	frac := int64(rec.TimestampFrac)
	if h.Magic != MagicNanoLE {
		frac *= int64(time.Microsecond)
	}
	return time.Unix(int64(rec.TimestampSec), frac)
}

// Reader walks the records of one open capture file. The zero value is a
// never-opened reader; use Open to construct a usable one.
type Reader struct {
	file   *os.File
	path   string
	header GlobalHeader
	eof    bool
}

// Open opens the capture at path, reads and validates the 24-byte global
// header, and returns a reader positioned at the first record. Failures
// are reported as *FormatError: KindCannotOpen if the file cannot be
// opened, KindTruncatedHeader if fewer than 24 header bytes are available,
// KindBadMagic if the magic matches neither accepted value. The file
// descriptor is released on every failure path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Kind: KindCannotOpen, Path: path, Err: err}
	}

	var buf [GlobalHeaderLen]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		f.Close()
		ferr := &FormatError{Kind: KindTruncatedHeader, Path: path}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			ferr.Err = err
		}
		return nil, ferr
	}

	header := GlobalHeader{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		VersionMajor: binary.LittleEndian.Uint16(buf[4:6]),
		VersionMinor: binary.LittleEndian.Uint16(buf[6:8]),
		Reserved1:    binary.LittleEndian.Uint32(buf[8:12]),
		Reserved2:    binary.LittleEndian.Uint32(buf[12:16]),
		SnapLen:      binary.LittleEndian.Uint32(buf[16:20]),
		LinkType:     binary.LittleEndian.Uint32(buf[20:24]),
	}

	if header.Magic != MagicNanoLE && header.Magic != MagicMicroLE {
		f.Close()
		return nil, &FormatError{Kind: KindBadMagic, Path: path, Magic: header.Magic}
	}

	return &Reader{file: f, path: path, header: header}, nil
}

// Header returns the validated global header.
func (r *Reader) Header() GlobalHeader { return r.header }

// Path returns the path the reader was opened with.
func (r *Reader) Path() string { return r.path }

// Next reads and returns the next record. It returns ErrEndOfStream when
// the sequence is exhausted, and keeps returning it on every later call;
// records are never resurrected. A zero or partial read of the 16-byte
// record header is end-of-stream, and so is a payload cut short after a
// valid record header: a mid-payload truncation is folded into the normal
// "no more packets" signal rather than reported as corruption.
//
// A declared captured length above MaxPayloadLen returns a *FormatError of
// KindOversizedPacket carrying the offending length. Calling Next on a
// closed or never-opened reader returns KindNotOpen.
func (r *Reader) Next() (*Record, error) {
	if r.file == nil {
		return nil, &FormatError{Kind: KindNotOpen, Path: r.path}
	}
	if r.eof {
		return nil, ErrEndOfStream
	}

	var buf [RecordHeaderLen]byte
	if _, err := io.ReadFull(r.file, buf[:]); err != nil {
		r.eof = true
		return nil, ErrEndOfStream
	}

	rec := &Record{
		TimestampSec:  binary.LittleEndian.Uint32(buf[0:4]),
		TimestampFrac: binary.LittleEndian.Uint32(buf[4:8]),
		CapturedLen:   binary.LittleEndian.Uint32(buf[8:12]),
		OriginalLen:   binary.LittleEndian.Uint32(buf[12:16]),
	}

	if rec.CapturedLen > MaxPayloadLen {
		return nil, &FormatError{Kind: KindOversizedPacket, Path: r.path, Length: rec.CapturedLen}
	}

	rec.Payload = make([]byte, rec.CapturedLen)
	if _, err := io.ReadFull(r.file, rec.Payload); err != nil {
		r.eof = true
		return nil, ErrEndOfStream
	}

	return rec, nil
}

// Close releases the underlying file descriptor. It is idempotent: closing
// an already-closed or never-opened reader is a no-op returning nil.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
