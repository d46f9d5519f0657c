// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const frameInterval = 80 * time.Millisecond

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a single-line activity indicator while a slow
// operation runs. Machine mode degrades to one PROGRESS line so piped
// output stays line-oriented.
type Spinner struct {
	mu      sync.Mutex
	text    string
	out     io.Writer
	running bool

	// Both channels are nil until Start launches the animation; machine
	// mode never does.
	cancel chan struct{}
	parked chan struct{}
}

// NewSpinner returns a stopped spinner labeled with text.
func NewSpinner(text string) *Spinner {
	return &Spinner{text: text, out: os.Stdout}
}

// WithWriter redirects spinner output, mainly for tests.
func (s *Spinner) WithWriter(w io.Writer) *Spinner {
	s.out = w
	return s
}

// Start begins the animation. Calling Start on a running spinner is a
// no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	if !ShouldShowProgress() {
		fmt.Fprintf(s.out, "PROGRESS: %s\n", s.text)
		return
	}

	s.cancel = make(chan struct{})
	s.parked = make(chan struct{})
	go s.spin(s.cancel, s.parked)
}

func (s *Spinner) spin(cancel <-chan struct{}, parked chan<- struct{}) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-cancel:
			fmt.Fprint(s.out, "\r\033[K")
			close(parked)
			return
		case <-ticker.C:
			s.mu.Lock()
			text := s.text
			s.mu.Unlock()
			frame := Styles.Highlight.Render(spinnerFrames[i%len(spinnerFrames)])
			fmt.Fprintf(s.out, "\r%s %s", frame, text)
		}
	}
}

// Stop halts the animation and clears its line. Safe to call on a
// spinner that never started.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, parked := s.cancel, s.parked
	s.cancel, s.parked = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	close(cancel)
	<-parked
}

// StopWithSuccess stops the spinner and prints a confirmation line.
func (s *Spinner) StopWithSuccess(text string) {
	s.Stop()
	Success(text)
}

// StopWithError stops the spinner and prints an error line.
func (s *Spinner) StopWithError(text string) {
	s.Stop()
	Error(text)
}
