// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

// Decoder turns raw records from an EventSource into a typed FifoEvent
// stream with monotonically reconstructed macro-time (spec.md §4.2). It
// holds a mutable overflow base and performs no allocation per event.
type Decoder struct {
	src          *EventSource
	format       RecordFormat
	markers      MarkerMask
	overflowBase uint64
}

// NewDecoder wraps src, decoding records as format and interpreting marker
// bits according to markers.
func NewDecoder(src *EventSource, format RecordFormat, markers MarkerMask) *Decoder {
	return &Decoder{src: src, format: format, markers: markers}
}

// Reset clears the accumulated overflow base. Call after src.SetToStart
// when re-scanning the stream from the beginning.
func (d *Decoder) Reset() {
	d.overflowBase = 0
}

// HasMore reports whether the underlying source has at least one more
// record to decode.
func (d *Decoder) HasMore() bool {
	return d.src.HasMore()
}

// Next decodes and returns the next event. Invalid records are still
// returned (with Valid false) to preserve stream position; callers filter
// them. The contract is that MacroTime is monotone non-decreasing across
// calls (spec.md §4.2, invariant 1).
func (d *Decoder) Next() (FifoEvent, error) {
	raw, err := d.src.NextRaw()
	if err != nil {
		return FifoEvent{}, err
	}
	special, nsync, dtime, channel := d.format.Decode(raw)
	if special {
		if dtime == 0 {
			d.overflowBase += d.format.OverflowIncrement
			return FifoEvent{Kind: Overflow, MacroTime: d.overflowBase}, nil
		}
		return FifoEvent{
			Valid:     true,
			Kind:      Marker,
			MacroTime: d.overflowBase + nsync,
			Mark:      Mark(dtime & 0xF),
		}, nil
	}
	return FifoEvent{
		Valid:     true,
		Kind:      Photon,
		MacroTime: d.overflowBase + nsync,
		MicroTime: dtime,
		Channel:   channel,
	}, nil
}
