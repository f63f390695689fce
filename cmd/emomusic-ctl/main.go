package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
)

// ============================================================================
// emomusic-ctl - Command-line IPC Client
// ============================================================================
// This tool sends control events to the emomusic daemon via IPC.
//
// Usage:
//   emomusic-ctl connect
//   emomusic-ctl mood happy
//   emomusic-ctl next
//   emomusic-ctl volume 40
//   emomusic-ctl status
//
// Options:
//   -socket PATH    Unix domain socket path (default: $XDG_RUNTIME_DIR/emomusic.sock)
// ============================================================================

// Event payloads (duplicated from the daemon for a standalone binary)
type SelectMood struct {
	Mood string `json:"mood"`
}

type SetVolume struct {
	Percent int `json:"percent"`
}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Track mirrors the daemon's track JSON.
type Track struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URI    string `json:"uri"`
}

// State is the subset of the daemon snapshot printed by "status".
type State struct {
	Playback   string `json:"playback"`
	DeviceName string `json:"device_name"`
	Track      *Track `json:"track"`
	Volume     *int   `json:"volume_percent"`
	Mood       string `json:"mood"`
	MoodOrigin string `json:"mood_origin"`
	Fetching   bool   `json:"fetching"`
	Queue      struct {
		Tracks []Track `json:"tracks"`
		Index  int     `json:"index"`
	} `json:"queue"`
	Detection struct {
		State string `json:"state"`
		Mood  string `json:"mood"`
	} `json:"detection"`
	Error *struct {
		Kind    string    `json:"kind"`
		Message string    `json:"message"`
		At      time.Time `json:"at"`
	} `json:"error"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	State  *State `json:"state,omitempty"`
}

// simpleCommands maps CLI commands without arguments to event types.
var simpleCommands = map[string]string{
	"connect":       "connect",
	"disconnect":    "disconnect",
	"play":          "play",
	"pause":         "pause",
	"resume":        "resume",
	"toggle":        "toggle_play",
	"next":          "next",
	"previous":      "previous",
	"prev":          "previous",
	"skip-next":     "skip_next",
	"skip-previous": "skip_previous",
	"detect":        "start_detection",
	"detect-stop":   "stop_detection",
}

func main() {
	socketPath := filepath.Join(xdg.RuntimeDir, "emomusic.sock")

	// Parse arguments
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var (
		env EventEnvelope
		err error
	)

	switch cmd := args[0]; cmd {
	case "mood":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: mood requires a label (sad, neutral, happy, energetic)\n")
			os.Exit(1)
		}
		env, err = envelope("select_mood", SelectMood{Mood: args[1]})

	case "volume", "vol":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: volume requires a percent value\n")
			os.Exit(1)
		}
		percent, perr := strconv.Atoi(strings.TrimSuffix(args[1], "%"))
		if perr != nil {
			fmt.Fprintf(os.Stderr, "error: invalid volume: %v\n", perr)
			os.Exit(1)
		}
		env, err = envelope("set_volume", SetVolume{Percent: percent})

	case "status", "state":
		env = EventEnvelope{Type: "get_state"}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		typ, ok := simpleCommands[cmd]
		if !ok {
			fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", cmd)
			printUsage()
			os.Exit(1)
		}
		env = EventEnvelope{Type: typ}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	resp, err := sendEvent(socketPath, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if resp.State != nil {
		printState(*resp.State)
		return
	}
	fmt.Println("ok")
}

func envelope(typ string, payload any) (EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return EventEnvelope{Type: typ, Data: data}, nil
}

func sendEvent(socketPath string, env EventEnvelope) (IPCResponse, error) {
	// Connect to socket
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(env)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal event: %w", err)
	}

	// Send event (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send event: %w", err)
	}

	// Read response
	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}

	return response, nil
}

func printState(s State) {
	device := s.DeviceName
	if device == "" {
		device = "-"
	}
	fmt.Printf("playback:  %s (device %s)\n", s.Playback, device)

	if s.Track != nil {
		fmt.Printf("track:     %s - %s\n", s.Track.Artist, s.Track.Title)
	}
	if s.Volume != nil {
		fmt.Printf("volume:    %d%%\n", *s.Volume)
	}

	mood := s.Mood
	if mood == "" {
		mood = "-"
	} else if s.MoodOrigin != "" {
		mood += " (" + s.MoodOrigin + ")"
	}
	if s.Fetching {
		mood += ", fetching recommendations"
	}
	fmt.Printf("mood:      %s\n", mood)

	if n := len(s.Queue.Tracks); n > 0 {
		fmt.Printf("queue:     %s of %d tracks\n", humanize.Ordinal(s.Queue.Index+1), n)
	} else {
		fmt.Printf("queue:     empty\n")
	}

	det := s.Detection.State
	if s.Detection.Mood != "" {
		det += " (" + s.Detection.Mood + ")"
	}
	fmt.Printf("detection: %s\n", det)

	if s.Error != nil {
		fmt.Printf("error:     [%s] %s, %s\n", s.Error.Kind, s.Error.Message, humanize.Time(s.Error.At))
	}
	if !s.UpdatedAt.IsZero() {
		fmt.Printf("updated:   %s\n", humanize.Time(s.UpdatedAt))
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `emomusic-ctl - Control the emomusic daemon via IPC

Usage:
  emomusic-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: $XDG_RUNTIME_DIR/emomusic.sock)

Commands:
  connect, disconnect      Attach to / release the playback device
  mood <label>             Select a mood: sad, neutral, happy, energetic
  play                     Play the current queue track
  pause, resume, toggle    Pause / resume / toggle playback
  next, previous (prev)    Move through the recommendation queue
  skip-next, skip-previous Use the device's own skip
  volume, vol <percent>    Set device volume (0-100)
  detect, detect-stop      Start / stop camera mood detection
  status, state            Print the daemon state
  help, -h, --help         Show this help message

Examples:
  emomusic-ctl mood happy
  emomusic-ctl volume 35
  emomusic-ctl -socket /run/emomusic.sock status
`)
}
