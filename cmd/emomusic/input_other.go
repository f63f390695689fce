//go:build !linux

package main

import (
	"context"
	"io"
	"os"
)

// readInputDevices falls back to one blocking reader per device. The readers
// end when runInput closes the files.
func readInputDevices(ctx context.Context, files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	for _, f := range files {
		go func(f *os.File) {
			buf := make([]byte, inputEventSize)
			for {
				if _, err := io.ReadFull(f, buf); err != nil {
					select {
					case readErr <- err:
					default:
					}
					return
				}
				ev, err := decodeInputEvent(buf)
				if err != nil {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(f)
	}
}
