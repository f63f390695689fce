package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

func decodeInputEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	if len(buf) < inputEventSize {
		return ev, fmt.Errorf("short input event: %d bytes", len(buf))
	}
	err := binary.Read(bytes.NewReader(buf[:inputEventSize]), binary.LittleEndian, &ev)
	return ev, err
}

// translateKey maps a media key press to a control event. Releases, repeats
// and unmapped keys are ignored.
func translateKey(ev inputEvent) (Event, bool) {
	if ev.Type != EV_KEY || ev.Value != evValuePress {
		return nil, false
	}
	switch ev.Code {
	case KEY_PLAYPAUSE:
		return TogglePlay{}, true
	case KEY_NEXTSONG:
		return Next{}, true
	case KEY_PREVIOUSSONG:
		return Previous{}, true
	case KEY_PLAYCD:
		return Resume{}, true
	case KEY_PAUSECD:
		return Pause{}, true
	case KEY_STOPCD:
		return StopDetection{}, true
	}
	return nil, false
}

// runInput reads media keys from the configured evdev devices and forwards
// the translated control events. Input problems are logged, never fatal.
func runInput(ctx context.Context, devices []string, events chan<- Event, logger *slog.Logger) error {
	if len(devices) == 0 {
		logger.Debug("no input devices configured")
		return nil
	}

	var files []*os.File
	for _, path := range devices {
		f, err := os.Open(path)
		if err != nil {
			logger.Warn("cannot open input device", "device", path, "error", err)
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		logger.Warn("media key input disabled: no device could be opened")
		return nil
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	raw := make(chan inputEvent, 16)
	readErr := make(chan error, 1)
	go readInputDevices(ctx, files, raw, readErr)

	logger.Info("media key input started", "devices", len(files))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if ctx.Err() == nil {
				logger.Error("media key input stopped", "error", err)
			}
			return nil
		case ev := <-raw:
			cev, ok := translateKey(ev)
			if !ok {
				continue
			}
			logger.Debug("media key", "code", ev.Code, "event", fmt.Sprintf("%T", cev))
			select {
			case events <- cev:
			default:
				logger.Warn("event queue full, dropping media key", "code", ev.Code)
			}
		}
	}
}
