package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
)

func encodeInputEvent(t *testing.T, ev inputEvent) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeInputEvent(t *testing.T) {
	want := inputEvent{Sec: 12, Usec: 34, Type: EV_KEY, Code: KEY_NEXTSONG, Value: evValuePress}
	got, err := decodeInputEvent(encodeInputEvent(t, want))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if _, err := decodeInputEvent(make([]byte, inputEventSize-1)); err == nil {
		t.Fatalf("expected error for short buffer")
	}
}

func TestTranslateKey(t *testing.T) {
	cases := []struct {
		code uint16
		want Event
	}{
		{KEY_PLAYPAUSE, TogglePlay{}},
		{KEY_NEXTSONG, Next{}},
		{KEY_PREVIOUSSONG, Previous{}},
		{KEY_PLAYCD, Resume{}},
		{KEY_PAUSECD, Pause{}},
		{KEY_STOPCD, StopDetection{}},
	}
	for _, tc := range cases {
		got, ok := translateKey(inputEvent{Type: EV_KEY, Code: tc.code, Value: evValuePress})
		if !ok || got != tc.want {
			t.Fatalf("code %d: got %#v (%v), want %#v", tc.code, got, ok, tc.want)
		}
	}
}

func TestTranslateKey_IgnoresReleaseRepeatAndUnknown(t *testing.T) {
	for _, ev := range []inputEvent{
		{Type: EV_KEY, Code: KEY_NEXTSONG, Value: evValueRelease},
		{Type: EV_KEY, Code: KEY_NEXTSONG, Value: evValueRepeat},
		{Type: EV_KEY, Code: 30, Value: evValuePress}, // KEY_A
		{Type: 0, Code: KEY_NEXTSONG, Value: evValuePress},
	} {
		if got, ok := translateKey(ev); ok {
			t.Fatalf("expected %+v to be ignored, got %#v", ev, got)
		}
	}
}

func TestRunInput_NoDevicesIsNotFatal(t *testing.T) {
	events := make(chan Event, 1)
	if err := runInput(context.Background(), nil, events, discardLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := runInput(context.Background(), []string{"/nonexistent/input/event99"}, events, discardLogger()); err != nil {
		t.Fatalf("unexpected error for missing device: %v", err)
	}
}
