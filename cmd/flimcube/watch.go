// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package main

// watchDir has no non-Linux implementation; -watch simply waits for
// Ctrl-C on these platforms.
func watchDir(dir string) (<-chan string, error) {
	return nil, nil
}
