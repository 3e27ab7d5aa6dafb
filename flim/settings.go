// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// settingsFileName is the sidecar settings file recognized in an input
// file's parent directory (spec.md §6.2).
const settingsFileName = "PicoquantLoaderSettings.info"

// LoadShiftSettings reads the per-channel time shifts, in picoseconds,
// from PicoquantLoaderSettings.info in inputPath's parent directory. A
// missing file is not an error: all four shifts are zero.
func LoadShiftSettings(inputPath string) ([4]float64, error) {
	var shifts [4]float64

	metaPath := filepath.Join(filepath.Dir(inputPath), settingsFileName)
	f, err := os.Open(metaPath)
	if os.IsNotExist(err) {
		return shifts, nil
	} else if err != nil {
		return shifts, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := parseSettingLine(sc.Text())
		if !ok {
			continue
		}
		idx, ok := shiftIndex(key)
		if !ok {
			continue
		}
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			shifts[idx] = v
		}
	}
	return shifts, sc.Err()
}

// parseSettingLine splits a "key value" or "key = value" line, INFO-file
// style, ignoring blank lines and braces.
func parseSettingLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line == "{" || line == "}" {
		return "", "", false
	}
	line = strings.ReplaceAll(line, "=", " ")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

func shiftIndex(key string) (int, bool) {
	switch key {
	case "shifts.1":
		return 0, true
	case "shifts.2":
		return 1, true
	case "shifts.3":
		return 2, true
	case "shifts.4":
		return 3, true
	default:
		return 0, false
	}
}
