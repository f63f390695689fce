package main

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/vaishakh3/emomusic/internal/domain"
)

// ============================================================================
// Librespot Integration
// ============================================================================
// librespot runs its onevent hook with the event in environment variables.
// The hook translates playback events into device reports and forwards them
// to the daemon over IPC, so reports arrive faster than the API poller.
//
// Usage (librespot config): onevent = emomusic librespot-hook
// ============================================================================

// parseLibrespotEvent translates a librespot event read through getenv.
// Events with no meaning for the daemon return (nil, nil).
func parseLibrespotEvent(getenv func(string) string) (Event, error) {
	eventType := getenv("PLAYER_EVENT")
	if eventType == "" {
		return nil, fmt.Errorf("PLAYER_EVENT not set")
	}

	switch eventType {
	case "playing":
		return DeviceStateReported{State: reportPlaying}, nil

	case "paused":
		return DeviceStateReported{State: reportPaused}, nil

	case "stopped":
		return DeviceStateReported{State: reportStopped}, nil

	case "track_changed":
		t := librespotTrack(getenv)
		if t.IsZero() {
			return nil, fmt.Errorf("track_changed without TRACK_ID or URI")
		}
		return DeviceStateReported{State: reportPlaying, Track: &t}, nil

	case "volume_changed":
		vol, err := strconv.ParseUint(getenv("VOLUME"), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("parse volume: %w", err)
		}
		return DeviceVolumeReported{Percent: volumePercent(uint16(vol))}, nil

	case "session_disconnected":
		return DeviceLost{}, nil

	case "session_connected", "session_client_changed", "started", "loading", "preloading",
		"seeked", "position_correction", "end_of_track", "unavailable",
		"shuffle_changed", "repeat_changed", "auto_play_changed",
		"filter_explicit_content_changed", "play_request_id_changed":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// librespotTrack builds a Track from the track_changed variables. ARTISTS and
// COVERS are newline-separated lists; the first entry is used.
func librespotTrack(getenv func(string) string) domain.Track {
	uri := getenv("URI")
	id := getenv("TRACK_ID")
	if uri == "" && id != "" {
		uri = "spotify:track:" + id
	}
	return domain.Track{
		ID:          id,
		Title:       getenv("NAME"),
		Artist:      firstLine(getenv("ARTISTS")),
		AlbumArtURL: firstLine(getenv("COVERS")),
		URI:         uri,
	}
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(s)
}

// volumePercent maps librespot's 0-65535 volume onto 0-100.
func volumePercent(v uint16) int {
	return int(math.Round(float64(v) * 100 / spotifyVolumeMax))
}

// runLibrespotHook handles librespot hook mode
func runLibrespotHook(socketPath string, getenv func(string) string, logger *slog.Logger) error {
	ev, err := parseLibrespotEvent(getenv)
	if err != nil {
		return err
	}

	if ev == nil {
		logger.Debug("librespot event ignored", "event", getenv("PLAYER_EVENT"))
		return nil
	}

	logger.Debug("librespot event", "event", getenv("PLAYER_EVENT"), "translated", fmt.Sprintf("%T", ev))

	if _, err := SendIPCEvent(socketPath, ev); err != nil {
		return fmt.Errorf("send IPC event: %w", err)
	}

	logger.Debug("librespot event sent")
	return nil
}
