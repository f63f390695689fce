package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
)

// frame is the daemon's websocket envelope.
type frame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type track struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URI    string `json:"uri"`
}

func main() {
	var (
		wsURL   = flag.String("ws", "ws://127.0.0.1:3001/ws/state", "emomusic state websocket URL")
		command = flag.String("cmd", "", "Send a single control event type and exit (e.g. 'get_state' or 'toggle_play')")
		raw     = flag.Bool("raw", false, "Print every frame as JSON")
	)
	flag.Parse()

	// Parse websocket URL
	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The daemon pings every 20s; answer with pongs (default handler) and
	// expect traffic within a minute.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	// Handle single command mode
	if *command != "" {
		payload, _ := json.Marshal(map[string]string{"type": *command})
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, payload)
		writeMu.Unlock()
		if err != nil {
			log.Fatalf("failed to send command: %v", err)
		}
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Fatalf("failed to read response: %v", err)
			}
			var f frame
			if err := json.Unmarshal(message, &f); err != nil {
				continue
			}
			// Skip state_init and pushed state changes.
			if f.Type == "control_result" || f.Type == "state_snapshot" {
				printPretty(message)
				return
			}
		}
	}

	log.Printf("connected! (press Ctrl+C to exit)")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			handleFrame(message)
		}
	}()

	// Wait for shutdown signal or connection close
	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleFrame prints one state event in a compact, human-readable form.
func handleFrame(message []byte) {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		fmt.Printf("[TEXT] %s\n", message)
		return
	}

	when := ""
	if f.Ts != nil {
		when = " (" + humanize.Time(*f.Ts) + ")"
	}

	switch f.Type {
	case "playback_changed":
		var d struct {
			Playback   string `json:"playback"`
			DeviceName string `json:"device_name"`
			Track      *track `json:"track"`
			Fetching   bool   `json:"fetching"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		line := fmt.Sprintf("[PLAYBACK] %s", d.Playback)
		if d.DeviceName != "" {
			line += " on " + d.DeviceName
		}
		if d.Track != nil {
			line += fmt.Sprintf(": %s - %s", d.Track.Artist, d.Track.Title)
		}
		if d.Fetching {
			line += " [fetching]"
		}
		fmt.Println(line + when)
		return

	case "mood_changed":
		var d struct {
			Mood   string `json:"mood"`
			Origin string `json:"origin"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		fmt.Printf("[MOOD] %s (%s)%s\n", d.Mood, d.Origin, when)
		return

	case "queue_changed":
		var d struct {
			Tracks []track `json:"tracks"`
			Index  int     `json:"index"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		fmt.Printf("[QUEUE] %s of %d tracks%s\n", humanize.Ordinal(d.Index+1), len(d.Tracks), when)
		return

	case "volume_changed":
		var d struct {
			Percent int `json:"volume_percent"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		fmt.Printf("[VOLUME] %d%%%s\n", d.Percent, when)
		return

	case "error_changed":
		var d struct {
			Error *struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		if d.Error == nil {
			fmt.Printf("[ERROR] cleared%s\n", when)
		} else {
			fmt.Printf("[ERROR] %s: %s%s\n", d.Error.Kind, d.Error.Message, when)
		}
		return

	case "detection_changed":
		var d struct {
			State string `json:"state"`
			Mood  string `json:"mood"`
			Error string `json:"error"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			break
		}
		line := "[DETECTION] " + d.State
		if d.Mood != "" {
			line += " -> " + d.Mood
		}
		if d.Error != "" {
			line += ": " + d.Error
		}
		fmt.Println(line + when)
		return
	}

	fmt.Printf("[%s]\n", f.Type)
	printPretty(f.Data)
}

func printPretty(message []byte) {
	var v any
	if err := json.Unmarshal(message, &v); err != nil {
		fmt.Printf("%s\n", message)
		return
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("%s\n", pretty)
}
