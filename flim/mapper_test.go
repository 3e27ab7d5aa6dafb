// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import "testing"

func TestPhotonMapperUnidirectional(t *testing.T) {
	markers := MarkerMask{Pixel: MarkPixel, LineStart: MarkLineStart}
	calib := SyncCalibration{CountPerLine: 100, CountsInterline: 100, NX: 2, NLine: 2}
	m := NewPhotonMapper(calib, markers, 1)
	if m.bidirectional {
		t.Fatal("expected unidirectional mapper when Markers.Pixel is set")
	}

	events := []FifoEvent{
		{Valid: true, Kind: Marker, Mark: MarkLineStart, MacroTime: 1000},
		{Valid: true, Kind: Photon, MacroTime: 1010, Channel: 0, MicroTime: 7},
		{Valid: true, Kind: Photon, MacroTime: 1060, Channel: 0, MicroTime: 9},
		{Valid: true, Kind: Marker, Mark: MarkLineStart, MacroTime: 1100},
		{Valid: true, Kind: Photon, MacroTime: 1110, Channel: 0, MicroTime: 1},
		{Valid: true, Kind: Photon, MacroTime: 1170, Channel: 0, MicroTime: 2},
	}
	photons := m.MapFrame(events)
	if len(photons) != 4 {
		t.Fatalf("len(photons) = %d, want 4", len(photons))
	}
	want := []MappedPhoton{
		{Y: 0, X: 0, MicroTime: 7},
		{Y: 0, X: 1, MicroTime: 9},
		{Y: 1, X: 0, MicroTime: 1},
		{Y: 1, X: 1, MicroTime: 2},
	}
	for i, w := range want {
		if photons[i].Y != w.Y || photons[i].X != w.X || photons[i].MicroTime != w.MicroTime {
			t.Errorf("photons[%d] = %+v, want %+v", i, photons[i], w)
		}
	}
}

func TestPhotonMapperBidirectionalMirrorsOddLines(t *testing.T) {
	markers := MarkerMask{LineStart: MarkLineStart} // no pixel marker
	calib := SyncCalibration{CountPerLine: 100, CountsInterline: 100, NX: 2, NLine: 2}
	m := NewPhotonMapper(calib, markers, 1)
	if !m.bidirectional {
		t.Fatal("expected bidirectional mapper when counts_interline == count_per_line and no pixel marker")
	}

	events := []FifoEvent{
		{Valid: true, Kind: Marker, Mark: MarkLineStart, MacroTime: 1000},
		{Valid: true, Kind: Photon, MacroTime: 1010, Channel: 0}, // line 0: u=0.1 -> lx=0
		{Valid: true, Kind: Marker, Mark: MarkLineStart, MacroTime: 1100},
		{Valid: true, Kind: Photon, MacroTime: 1110, Channel: 0}, // line 1 (odd, mirrored): u=0.1 -> lx=0 -> flipped to 1
	}
	photons := m.MapFrame(events)
	if len(photons) != 2 {
		t.Fatalf("len(photons) = %d, want 2", len(photons))
	}
	if photons[0].Y != 0 || photons[0].X != 0 {
		t.Errorf("photons[0] = %+v, want Y=0 X=0", photons[0])
	}
	if photons[1].Y != 1 || photons[1].X != 1 {
		t.Errorf("photons[1] = %+v, want Y=1 X=1 (mirrored)", photons[1])
	}
}

func TestPhotonMapperDropsOutOfRange(t *testing.T) {
	markers := MarkerMask{Pixel: MarkPixel, LineStart: MarkLineStart}
	calib := SyncCalibration{CountPerLine: 100, CountsInterline: 100, NX: 2, NLine: 1}
	m := NewPhotonMapper(calib, markers, 1)

	events := []FifoEvent{
		{Valid: true, Kind: Photon, MacroTime: 10, Channel: 0}, // before any line-start: dropped
		{Valid: true, Kind: Marker, Mark: MarkLineStart, MacroTime: 1000},
		{Valid: true, Kind: Photon, MacroTime: 1300, Channel: 0}, // u=3.0 -> out of range
	}
	if photons := m.MapFrame(events); len(photons) != 0 {
		t.Fatalf("len(photons) = %d, want 0", len(photons))
	}
}
