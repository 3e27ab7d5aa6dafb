// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"log"
	"path/filepath"

	fsnotify "gopkg.in/fsnotify.v1"
)

// watchDir watches dir and reports the path of a .pt3 file each time it is
// created or written to, so a file written in several chunks is reported
// more than once. Re-homed from the upstream idiom of watching the running
// executable's own path for rebuilds.
func watchDir(dir string) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if filepath.Ext(ev.Name) != ".pt3" {
					continue
				}
				out <- ev.Name
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("watch %s: %s", dir, err)
			}
		}
	}()
	return out, nil
}
