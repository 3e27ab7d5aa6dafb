// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package preview serves a live intensity-frame stream over HTTP/WebSocket
// while a Reader's background realignment worker is running (spec.md §5's
// live-preview collaborator).
package preview

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/maruel/interrupt"
	"golang.org/x/net/websocket"
)

// Frame is one published intensity preview frame.
type Frame struct {
	FrameIndex int
	NZ, NY, NX int
	Data       []float64
}

// Server streams the last few seconds of intensity frames to any number
// of connected WebSocket clients.
type Server struct {
	cond      sync.Cond
	frames    [30]*Frame // a few seconds worth at typical scan rates.
	lastIndex int
}

// AddFrame publishes f to any waiting clients.
func (s *Server) AddFrame(f *Frame) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.lastIndex = (s.lastIndex + 1) % len(s.frames)
	s.frames[s.lastIndex] = f
	s.cond.Broadcast()
}

// Start launches an HTTP server on port serving a status page at "/" and
// a live frame stream at "/stream". It returns immediately; shutdown is
// cooperative via github.com/maruel/interrupt.
func Start(port int) *Server {
	s := &Server{
		cond:      *sync.NewCond(&sync.Mutex{}),
		lastIndex: -1,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.root)
	mux.Handle("/stream", websocket.Handler(s.stream))
	fmt.Printf("Listening on %d\n", port)
	go http.ListenAndServe(fmt.Sprintf(":%d", port), loggingHandler{mux})
	go func() {
		<-interrupt.Channel
		s.cond.Broadcast()
	}()
	return s
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	fmt.Fprint(w, statusPage)
}

// stream sends each published Frame as a WebSocket frame: a JSON
// metadata line, then the raw row-major float64 pixels, base64 encoded.
func (s *Server) stream(w *websocket.Conn) {
	log.Printf("websocket %s", w.Config().Origin)
	defer w.Close()
	buf := &bytes.Buffer{}
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	lastIndex := s.lastIndex
	var err error
	for !interrupt.IsSet() && err == nil {
		s.cond.Wait()
		for ; !interrupt.IsSet() && err == nil && lastIndex != s.lastIndex; lastIndex = (lastIndex + 1) % len(s.frames) {
			frame := s.frames[(lastIndex+1)%len(s.frames)]
			s.cond.L.Unlock()

			err = json.NewEncoder(buf).Encode(&struct {
				FrameIndex int
				NZ, NY, NX int
			}{frame.FrameIndex, frame.NZ, frame.NY, frame.NX})
			if err == nil {
				buf.Write([]byte("\n"))
				encoder := base64.NewEncoder(base64.StdEncoding, buf)
				binary.Write(encoder, binary.LittleEndian, frame.Data)
				encoder.Close()
			}
			if err == nil {
				_, err = w.Write(buf.Bytes())
			}
			buf.Reset()

			s.cond.L.Lock()
		}
	}
	if err == nil {
		log.Printf("websocket %s closed", w.Config().Origin)
	} else {
		log.Printf("websocket %s closed: %s", w.Config().Origin, err)
	}
}

const statusPage = `<!DOCTYPE html>
<html><head><title>flimcube preview</title></head>
<body><p>Connect a WebSocket client to /stream for the live intensity feed.</p></body>
</html>
`

type loggingHandler struct {
	handler http.Handler
}

type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (size int, err error) {
	size, err = l.ResponseWriter.Write(data)
	l.length += size
	return
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

// Hijack is needed for websocket.
func (l *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h := l.ResponseWriter.(http.Hijacker)
	return h.Hijack()
}

func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lrw := &loggingResponseWriter{ResponseWriter: w}
	l.handler.ServeHTTP(lrw, r)
	log.Printf("%s - %3d %6db %4s %s\n", r.RemoteAddr, lrw.status, lrw.length, r.Method, r.RequestURI)
}
