// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package flim reconstructs a time-resolved photon-counting data cube from a
// TTTR (Time-Tagged Time-Resolved) FIFO photon event stream, as produced by
// time-correlated single-photon counting hardware synchronized to a raster
// scanner.
package flim

// RawRecord is a single fixed-width record as read from the device stream,
// opaque until decoded by a Decoder.
type RawRecord uint64

// EventKind classifies a decoded FifoEvent.
type EventKind uint8

const (
	// Invalid marks a record that could not be interpreted.
	Invalid EventKind = iota
	// Photon is a detected photon with a channel and micro-time.
	Photon
	// Marker is an external sync marker (pixel/line/frame).
	Marker
	// Overflow is a macro-time rollover record; it carries no event of its
	// own and only advances the accumulated overflow base.
	Overflow
)

func (k EventKind) String() string {
	switch k {
	case Photon:
		return "Photon"
	case Marker:
		return "Marker"
	case Overflow:
		return "Overflow"
	default:
		return "Invalid"
	}
}

// Mark is a bitmask of external marker lines, as configured by MarkerMask.
type Mark uint8

const (
	MarkPixel     Mark = 1 << 0
	MarkLineStart Mark = 1 << 1
	MarkLineEnd   Mark = 1 << 2
	MarkFrame     Mark = 1 << 3
)

// MarkerMask maps the semantic markers used by the scanner to the raw bit
// positions carried in a device record. A zero field means "absent"; callers
// must be prepared to fall back (see SyncCalibrator).
type MarkerMask struct {
	Pixel     Mark
	LineStart Mark
	LineEnd   Mark
	Frame     Mark
}

// FifoEvent is a single decoded event with reconstructed, wrap-corrected
// macro-time. Fields not relevant to Kind are zero.
type FifoEvent struct {
	Valid     bool
	MacroTime uint64
	MicroTime uint16
	Channel   uint8
	Mark      Mark
	Kind      EventKind
}

// MappedPhoton is the output of the photon-to-pixel mapping: a single
// detected photon placed at its pixel coordinate.
type MappedPhoton struct {
	Frame     uint32
	Z         uint16
	Y         uint16
	X         uint16
	Channel   uint8
	MicroTime uint16
}
