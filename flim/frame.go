// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

// FrameAssembler pulls events from a Decoder until a frame-end condition is
// reached, buffers them, and yields one frame at a time (spec.md §4.4). The
// frame boundary is the next frame marker, or, absent any frame marker,
// after NY lines. Buffering is bounded to one frame's worth of events.
type FrameAssembler struct {
	dec     *Decoder
	markers MarkerMask
	ny      int

	buf       []FifoEvent
	lineCount int
	done      bool
}

// NewFrameAssembler returns an assembler pulling from dec, using markers to
// recognize frame/line boundaries. ny is consulted only when
// markers.Frame == 0.
func NewFrameAssembler(dec *Decoder, markers MarkerMask, ny int) *FrameAssembler {
	return &FrameAssembler{dec: dec, markers: markers, ny: ny}
}

// LoadNext fills the assembler's internal buffer with the next frame's
// events and reports whether a frame was produced (false at end of
// stream). The returned slice is only valid until the next call to
// LoadNext.
func (a *FrameAssembler) LoadNext() ([]FifoEvent, bool, error) {
	if a.done {
		return nil, false, nil
	}
	a.buf = a.buf[:0]
	a.lineCount = 0
	produced := false

	for a.dec.HasMore() {
		e, err := a.dec.Next()
		if err != nil {
			return nil, false, err
		}
		if !e.Valid {
			continue
		}
		a.buf = append(a.buf, e)
		produced = true

		if a.markers.Frame != 0 {
			if e.Mark&a.markers.Frame != 0 {
				return a.buf, true, nil
			}
			continue
		}
		if a.markers.LineStart != 0 && e.Mark&a.markers.LineStart != 0 {
			a.lineCount++
			if a.lineCount >= a.ny {
				return a.buf, true, nil
			}
		}
	}

	a.done = true
	if !produced {
		return nil, false, nil
	}
	return a.buf, true, nil
}
