// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import "math"

// bidirectionalTolerance is how close counts_interline/count_per_line must
// be to 1 for the mapper to infer a bidirectional raster scan in the
// absence of a pixel marker (spec.md §4.5).
const bidirectionalTolerance = 0.15

// PhotonMapper converts a frame's buffered events into pixel-coordinate
// photons using a SyncCalibration (spec.md §4.5, the "FIFO processor").
type PhotonMapper struct {
	calib         SyncCalibration
	markers       MarkerMask
	lineAveraging int
	bidirectional bool
}

// NewPhotonMapper returns a mapper using calib and markers. lineAveraging
// must match the value used during calibration (1 means no averaging).
func NewPhotonMapper(calib SyncCalibration, markers MarkerMask, lineAveraging int) *PhotonMapper {
	if lineAveraging < 1 {
		lineAveraging = 1
	}
	bidirectional := markers.Pixel == 0 && calib.CountPerLine > 0 &&
		math.Abs(calib.CountsInterline/calib.CountPerLine-1) < bidirectionalTolerance
	return &PhotonMapper{
		calib:         calib,
		markers:       markers,
		lineAveraging: lineAveraging,
		bidirectional: bidirectional,
	}
}

// MapFrame maps one frame's worth of buffered events to photons. Photons
// whose pixel coordinate falls outside the calibrated grid are silently
// dropped (spec.md §3's Photon invariant).
func (m *PhotonMapper) MapFrame(events []FifoEvent) []MappedPhoton {
	var photons []MappedPhoton
	nY, nX := m.calib.NLine, m.calib.NX

	ly := -1
	linesSeen := 0
	var tLine uint64
	lineStarted := false

	for _, e := range events {
		if m.markers.LineStart != 0 && e.Mark&m.markers.LineStart != 0 {
			linesSeen++
			ly = (linesSeen - 1) / m.lineAveraging
			tLine = e.MacroTime
			lineStarted = true
			continue
		}
		if e.Kind != Photon {
			continue
		}
		if !lineStarted || m.calib.CountPerLine <= 0 || e.MacroTime < tLine {
			continue
		}

		u := float64(e.MacroTime-tLine) / m.calib.CountPerLine
		lx := int(u * float64(nX))
		if m.bidirectional && ly%2 == 1 {
			lx = nX - 1 - lx
		}
		if lx < 0 || lx >= nX || ly < 0 || ly >= nY {
			continue
		}
		photons = append(photons, MappedPhoton{
			Y:         uint16(ly),
			X:         uint16(lx),
			Channel:   e.Channel,
			MicroTime: e.MicroTime,
		})
	}
	return photons
}
