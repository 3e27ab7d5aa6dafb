// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import "testing"

func twoFrameMarkerStream(t *testing.T) string {
	t.Helper()
	return writeRecords(t,
		pt3Record(15, uint16(MarkFrame), 0),
		pt3Record(15, uint16(MarkLineStart), 10),
		pt3Record(15, uint16(MarkLineEnd), 110),
		pt3Record(15, uint16(MarkLineStart), 200),
		pt3Record(15, uint16(MarkLineEnd), 300),
		pt3Record(15, uint16(MarkFrame), 400),
		pt3Record(15, uint16(MarkLineStart), 410),
		pt3Record(15, uint16(MarkLineEnd), 510),
		pt3Record(15, uint16(MarkLineStart), 600),
		pt3Record(15, uint16(MarkLineEnd), 700),
		pt3Record(15, uint16(MarkFrame), 800),
	)
}

func TestCalibrateTwoFrameGrid(t *testing.T) {
	path := twoFrameMarkerStream(t)
	markers := MarkerMask{LineStart: MarkLineStart, LineEnd: MarkLineEnd, Frame: MarkFrame}

	src, err := NewEventSource(path, PicoquantT3, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	dec := NewDecoder(src, PicoquantT3, markers)

	calib, err := Calibrate(dec, CalibrationParams{Markers: markers, LineAveraging: 1})
	if err != nil {
		t.Fatal(err)
	}
	if calib.CountPerLine != 100 {
		t.Errorf("CountPerLine = %v, want 100", calib.CountPerLine)
	}
	if calib.CountsInterline != 190 {
		t.Errorf("CountsInterline = %v, want 190", calib.CountsInterline)
	}
	if calib.NX != 2 || calib.NLine != 2 {
		t.Errorf("NX=%d NLine=%d, want 2, 2", calib.NX, calib.NLine)
	}
	if calib.CountsInterframe != 400 {
		t.Errorf("CountsInterframe = %v, want 400", calib.CountsInterframe)
	}
}

func TestCalibrateNoMarkersFails(t *testing.T) {
	path := writeRecords(t, pt3Record(3, 5, 1))
	markers := MarkerMask{LineStart: MarkLineStart, LineEnd: MarkLineEnd, Frame: MarkFrame}

	src, err := NewEventSource(path, PicoquantT3, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	dec := NewDecoder(src, PicoquantT3, markers)

	if _, err := Calibrate(dec, CalibrationParams{Markers: markers, LineAveraging: 1}); err != ErrSyncMarkersInvalid {
		t.Fatalf("Calibrate() error = %v, want ErrSyncMarkersInvalid", err)
	}
}
