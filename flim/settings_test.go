// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadShiftSettingsMissingFile(t *testing.T) {
	dir := t.TempDir()
	shifts, err := LoadShiftSettings(filepath.Join(dir, "acquisition.pt3"))
	if err != nil {
		t.Fatal(err)
	}
	if shifts != ([4]float64{}) {
		t.Errorf("shifts = %v, want all zero", shifts)
	}
}

func TestLoadShiftSettingsIgnoresBracesAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	contents := "{\n\n  shifts.4 = 7.5\n}\n"
	if err := os.WriteFile(filepath.Join(dir, settingsFileName), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	shifts, err := LoadShiftSettings(filepath.Join(dir, "acquisition.pt3"))
	if err != nil {
		t.Fatal(err)
	}
	if want := ([4]float64{0, 0, 0, 7.5}); shifts != want {
		t.Errorf("shifts = %v, want %v", shifts, want)
	}
}

func TestLoadShiftSettingsDottedKeys(t *testing.T) {
	dir := t.TempDir()
	contents := "shifts.1 = 12.5\nshifts.2 = 100\nshifts.3 = -3.25\n"
	if err := os.WriteFile(filepath.Join(dir, settingsFileName), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	shifts, err := LoadShiftSettings(filepath.Join(dir, "acquisition.pt3"))
	if err != nil {
		t.Fatal(err)
	}
	want := [4]float64{12.5, 100, -3.25, 0}
	if shifts != want {
		t.Errorf("shifts = %v, want %v", shifts, want)
	}
}
