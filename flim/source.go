// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// EventSource is a byte-level reader producing raw fixed-width event
// records from a file (spec.md §4.1). It owns the input handle; callers
// must not interleave two iterations. It is restartable by seeking back to
// the data offset established after the header was parsed.
type EventSource struct {
	f          *os.File
	format     RecordFormat
	dataOffset int64
	br         *bufio.Reader
	recBuf     [8]byte // reused by NextRaw; records are at most 8 bytes wide
}

// NewEventSource opens path and returns an EventSource that yields raw
// records of format, starting at dataOffset (the absolute byte offset of
// the first event record, immediately following the device header).
func NewEventSource(path string, format RecordFormat, dataOffset int64) (*EventSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flim: %w", err)
	}
	s := &EventSource{f: f, format: format, dataOffset: dataOffset}
	if err := s.SetToStart(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying file handle.
func (s *EventSource) Close() error {
	return s.f.Close()
}

// SetToStart seeks back to the first event record, so the stream can be
// scanned again (used once for calibration, once more for mapping).
func (s *EventSource) SetToStart() error {
	if _, err := s.f.Seek(s.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("flim: %w", err)
	}
	s.br = bufio.NewReaderSize(s.f, 64*1024)
	return nil
}

// HasMore reports whether at least one more byte is available.
func (s *EventSource) HasMore() bool {
	_, err := s.br.Peek(1)
	return err == nil
}

// NextRaw reads and returns the next raw record. It reuses an internal
// buffer, so no allocation happens per event (spec.md §4.2).
func (s *EventSource) NextRaw() (RawRecord, error) {
	buf := s.recBuf[:s.format.Width]
	if _, err := io.ReadFull(s.br, buf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return 0, ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("flim: %w", err)
	}
	switch s.format.Width {
	case 4:
		return RawRecord(binary.LittleEndian.Uint32(buf)), nil
	case 8:
		return RawRecord(binary.LittleEndian.Uint64(buf)), nil
	default:
		return 0, fmt.Errorf("flim: unsupported record width %d", s.format.Width)
	}
}
