// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

// RecordFormat describes how to pull nsync/dtime/channel fields out of a
// fixed-width raw device record. Picoquant T3 (32 bits) is the only format
// registered by this package; other device formats differ only in record
// width and overflow increment (spec.md §6.1).
type RecordFormat struct {
	// Name identifies the format, e.g. "pt3".
	Name string
	// Width is the record size in bytes (4 or 8).
	Width int
	// OverflowIncrement is added to the overflow base each time an overflow
	// record is seen.
	OverflowIncrement uint64
	// Decode splits a raw record into its fields. special indicates an
	// overflow or marker record rather than a photon.
	Decode func(raw RawRecord) (special bool, nsync uint64, dtime uint16, channel uint8)
}

// PicoquantT3 is the 32-bit little-endian record format documented in
// spec.md §6.1:
//
//	nsync   : bits 0..15  (16 bits)
//	dtime   : bits 16..27 (12 bits)
//	channel : bits 28..31 (4 bits)
//	special = (channel == 15)
var PicoquantT3 = RecordFormat{
	Name:              "pt3",
	Width:             4,
	OverflowIncrement: 1 << 16,
	Decode: func(raw RawRecord) (bool, uint64, uint16, uint8) {
		v := uint32(raw)
		nsync := v & 0xFFFF
		dtime := (v >> 16) & 0xFFF
		channel := uint8((v >> 28) & 0xF)
		return channel == 15, uint64(nsync), uint16(dtime), channel
	},
}

// registry maps file extensions (without the leading dot, lower case) to
// the RecordFormat used to decode them, and is consulted by OpenReader.
// Only ".pt3" is populated, per spec.md §1's non-goal of supporting event
// formats beyond those in §6 — RegisterFormat exists so a caller embedding
// this package can add more without touching it.
var registry = map[string]RecordFormat{
	"pt3": PicoquantT3,
}

// RegisterFormat makes ext (without a leading dot) resolve to format in
// OpenReader. It is not used internally; it exists so additional TTTR
// device formats can be registered without modifying this package.
func RegisterFormat(ext string, format RecordFormat) {
	registry[ext] = format
}

// LookupFormat returns the RecordFormat registered for ext (without a
// leading dot, case sensitive), used by OpenReader's extension dispatch
// (spec.md's "polymorphism over file formats" REDESIGN FLAG).
func LookupFormat(ext string) (RecordFormat, bool) {
	f, ok := registry[ext]
	return f, ok
}
