// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import "github.com/flimfit/FLIMreader/flim/internal"

// SyncCalibration is produced by Calibrate and consumed by the photon
// mapper (spec.md §3).
type SyncCalibration struct {
	// CountPerLine is the median sync-tick count between a line-start and
	// its line-end marker.
	CountPerLine float64
	// CountsInterline is the median sync-tick count between successive
	// line-starts within a frame.
	CountsInterline float64
	// CountsInterframe is the tick count between the first two observed
	// frame boundaries.
	CountsInterframe float64
	// NX is the number of pixels per line.
	NX int
	// NLine is the number of lines per frame (i.e. n_y).
	NLine int
	// HasInitialFrameMarker reports whether a frame marker preceded the
	// first line of the stream.
	HasInitialFrameMarker bool
}

// CalibrationParams configures Calibrate.
type CalibrationParams struct {
	Markers       MarkerMask
	LineAveraging int // 1 means no averaging.
	// NY and NX are hints; 0 means "derive from the marker stream". NY must
	// be supplied when Markers.Frame == 0, since there is then no way to
	// derive a frame boundary from the stream itself.
	NY int
	NX int
}

// Calibrate scans dec from its current position (the caller must have just
// reset it) and estimates per-line and per-frame sync-clock durations
// (spec.md §4.3). It terminates after observing two full frames, or, if
// Markers.Frame == 0, after params.NY lines.
func Calibrate(dec *Decoder, params CalibrationParams) (SyncCalibration, error) {
	la := params.LineAveraging
	if la < 1 {
		la = 1
	}

	var lineM, interlineM internal.MedianAccumulator
	var sync SyncCalibration

	var frameStart, syncStartCount uint64
	lineActive := false
	linesInFrame := 0
	nLine, nFrame := 0, 0

	for dec.HasMore() && nFrame < 2 {
		e, err := dec.Next()
		if err != nil {
			return SyncCalibration{}, err
		}
		if !e.Valid {
			continue
		}

		if params.Markers.Frame != 0 && e.Mark&params.Markers.Frame != 0 {
			if nLine > 0 {
				if nFrame == 0 {
					frameStart = e.MacroTime
				} else {
					sync.CountsInterframe = float64(e.MacroTime - frameStart)
				}
				nFrame++
				lineActive = false
				linesInFrame = 0
			} else {
				sync.HasInitialFrameMarker = true
			}
		}

		switch {
		case params.Markers.LineEnd != 0 && e.Mark&params.Markers.LineEnd != 0 && lineActive:
			if e.MacroTime >= syncStartCount {
				lineM.Push(e.MacroTime - syncStartCount)
			}
			lineActive = false
		case params.Markers.LineStart != 0 && e.Mark&params.Markers.LineStart != 0:
			if e.MacroTime >= syncStartCount {
				if linesInFrame > 0 {
					interlineM.Push(e.MacroTime - syncStartCount)
				}
				nLine++
				linesInFrame++
			}
			syncStartCount = e.MacroTime
			lineActive = true
		}

		if params.Markers.Frame == 0 && nLine >= params.NY {
			break
		}
	}

	if params.Markers.Frame == 0 {
		nFrame = 1
	}

	sync.CountPerLine = lineM.Median()
	sync.CountsInterline = interlineM.Median()

	if la > 1 {
		factor := float64(la) / float64(la+1)
		sync.CountPerLine *= factor
		sync.CountsInterline *= factor
	}

	if nLine == 0 || nFrame == 0 {
		return SyncCalibration{}, ErrSyncMarkersInvalid
	}

	nY := params.NY
	nX := params.NX
	if nY == 0 {
		nY = nLine / la / nFrame
		if nX == 0 {
			nX = nY
		}
	} else if nX == 0 {
		nX = nY
	}
	sync.NX = nX
	sync.NLine = nY

	if sync.CountPerLine <= 0 || sync.CountsInterline < sync.CountPerLine {
		return SyncCalibration{}, ErrSyncMarkersInvalid
	}

	return sync, nil
}
