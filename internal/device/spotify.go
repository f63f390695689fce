package device

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/vaishakh3/emomusic/internal/domain"
	"github.com/vaishakh3/emomusic/internal/fault"
	"github.com/vaishakh3/emomusic/internal/spotifyapi"
)

// DefaultPollInterval is how often the subscription polls the Web API.
const DefaultPollInterval = time.Second

// SpotifyPlayer drives a named Spotify Connect device (librespot, spotifyd, a
// phone) through the Web API player endpoints.
type SpotifyPlayer struct {
	client       *spotify.Client
	name         string
	pollInterval time.Duration
	logger       *slog.Logger
}

var _ Player = (*SpotifyPlayer)(nil)

// SpotifyPlayerConfig configures NewSpotifyPlayer.
type SpotifyPlayerConfig struct {
	// DeviceName is matched case-insensitively against the account's devices.
	DeviceName   string
	PollInterval time.Duration
}

// NewSpotifyPlayer returns a player bound to an authenticated client.
func NewSpotifyPlayer(client *spotify.Client, cfg SpotifyPlayerConfig, logger *slog.Logger) *SpotifyPlayer {
	if cfg.DeviceName == "" {
		cfg.DeviceName = DefaultName
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpotifyPlayer{
		client:       client,
		name:         cfg.DeviceName,
		pollInterval: cfg.PollInterval,
		logger:       logger,
	}
}

// Connect checks that the Web API is reachable and starts polling for the
// named device. The returned subscription lives until Close or ctx ends.
func (p *SpotifyPlayer) Connect(ctx context.Context) (Subscription, error) {
	if _, err := p.client.PlayerDevices(ctx); err != nil {
		return nil, classify("list devices", err)
	}

	pctx, cancel := context.WithCancel(ctx)
	sub := &pollSubscription{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.poll(pctx, sub)
	return sub, nil
}

// Dispatch starts playback of t on h, replacing whatever was playing.
func (p *SpotifyPlayer) Dispatch(ctx context.Context, h Handle, t domain.Track) error {
	if h == "" {
		return fault.ErrNoDevice
	}
	if t.URI == "" {
		return fmt.Errorf("%w: track %q has no uri", fault.ErrInvalidInput, t.ID)
	}
	err := p.client.PlayOpt(ctx, &spotify.PlayOptions{
		DeviceID: deviceID(h),
		URIs:     []spotify.URI{spotify.URI(t.URI)},
	})
	if err != nil {
		return classify("play "+t.URI, err)
	}
	return nil
}

// Pause pauses playback on h.
func (p *SpotifyPlayer) Pause(ctx context.Context, h Handle) error {
	if h == "" {
		return fault.ErrNoDevice
	}
	if err := p.client.PauseOpt(ctx, &spotify.PlayOptions{DeviceID: deviceID(h)}); err != nil {
		return classify("pause", err)
	}
	return nil
}

// Resume resumes the current context on h.
func (p *SpotifyPlayer) Resume(ctx context.Context, h Handle) error {
	if h == "" {
		return fault.ErrNoDevice
	}
	if err := p.client.PlayOpt(ctx, &spotify.PlayOptions{DeviceID: deviceID(h)}); err != nil {
		return classify("resume", err)
	}
	return nil
}

// TogglePlay pauses if h is playing, otherwise resumes.
func (p *SpotifyPlayer) TogglePlay(ctx context.Context, h Handle) error {
	st, err := p.CurrentState(ctx)
	if err != nil {
		return err
	}
	if st.Device == h && st.Active && !st.Paused {
		return p.Pause(ctx, h)
	}
	return p.Resume(ctx, h)
}

// NextTrack is the device-native skip forward.
func (p *SpotifyPlayer) NextTrack(ctx context.Context, h Handle) error {
	if h == "" {
		return fault.ErrNoDevice
	}
	if err := p.client.NextOpt(ctx, &spotify.PlayOptions{DeviceID: deviceID(h)}); err != nil {
		return classify("next", err)
	}
	return nil
}

// PreviousTrack is the device-native skip back.
func (p *SpotifyPlayer) PreviousTrack(ctx context.Context, h Handle) error {
	if h == "" {
		return fault.ErrNoDevice
	}
	if err := p.client.PreviousOpt(ctx, &spotify.PlayOptions{DeviceID: deviceID(h)}); err != nil {
		return classify("previous", err)
	}
	return nil
}

// SetVolume sets the device volume in percent (clamped to 0..100).
func (p *SpotifyPlayer) SetVolume(ctx context.Context, h Handle, percent int) error {
	if h == "" {
		return fault.ErrNoDevice
	}
	percent = max(0, min(100, percent))
	if err := p.client.VolumeOpt(ctx, percent, &spotify.PlayOptions{DeviceID: deviceID(h)}); err != nil {
		return classify("volume", err)
	}
	return nil
}

// CurrentState reads the account's playback state. When nothing is playing
// anywhere the returned State has Active=false.
func (p *SpotifyPlayer) CurrentState(ctx context.Context) (State, error) {
	ps, err := p.client.PlayerState(ctx)
	if err != nil {
		return State{}, classify("player state", err)
	}
	return stateFromPlayer(ps), nil
}

func stateFromPlayer(ps *spotify.PlayerState) State {
	if ps == nil {
		return State{}
	}
	st := State{
		Device:     Handle(ps.Device.ID),
		DeviceName: ps.Device.Name,
		Paused:     !ps.Playing,
		Volume:     int(ps.Device.Volume),
	}
	if ps.Item != nil {
		st.Active = true
		st.Track = trackFromFull(ps.Item)
	}
	return st
}

func trackFromFull(ft *spotify.FullTrack) domain.Track {
	t := domain.Track{
		ID:    string(ft.ID),
		Title: ft.Name,
		URI:   string(ft.URI),
	}
	if len(ft.Artists) > 0 {
		t.Artist = ft.Artists[0].Name
	}
	if len(ft.Album.Images) > 0 {
		t.AlbumArtURL = ft.Album.Images[0].URL
	}
	return t
}

func deviceID(h Handle) *spotify.ID {
	id := spotify.ID(h)
	return &id
}

// classify maps Web API failures onto the error taxonomy: a 404 from the
// player endpoints means the device is gone, anything else is a network error.
func classify(op string, err error) error {
	if code, ok := spotifyapi.StatusCode(err); ok && code == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %w", op, fault.ErrNoDevice, err)
	}
	return fmt.Errorf("%s: %w: %w", op, fault.ErrNetwork, err)
}

// ============================================================================
// Polling subscription
// ============================================================================

type pollSubscription struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *pollSubscription) Events() <-chan Event { return s.events }

func (s *pollSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// poll watches the device list and playback state, emitting Ready/NotReady
// on presence changes and StateChanged whenever the reported state differs
// from the previous report.
func (p *SpotifyPlayer) poll(ctx context.Context, sub *pollSubscription) {
	defer close(sub.done)
	defer close(sub.events)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	var (
		present Handle
		last    State
		known   bool
	)

	emit := func(ev Event) bool {
		select {
		case sub.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	step := func() bool {
		devices, err := p.client.PlayerDevices(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.logger.Warn("device poll failed", "error", spotifyapi.Describe(err))
			return true
		}

		var found *spotify.PlayerDevice
		for i := range devices {
			if strings.EqualFold(devices[i].Name, p.name) {
				found = &devices[i]
				break
			}
		}

		switch {
		case found != nil && Handle(found.ID) != present:
			if present != "" && !emit(NotReady{Device: present}) {
				return false
			}
			present = Handle(found.ID)
			known = false
			p.logger.Info("playback device ready", "device", present, "name", found.Name)
			if !emit(Ready{Device: present, Name: found.Name}) {
				return false
			}
		case found == nil && present != "":
			p.logger.Info("playback device gone", "device", present)
			gone := present
			present = ""
			known = false
			return emit(NotReady{Device: gone})
		}

		if present == "" {
			return true
		}

		st, err := p.CurrentState(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			p.logger.Warn("player state poll failed", "error", err)
			return true
		}
		if st.Device != present {
			// Playback (if any) is on another device; ours is idle.
			st = State{Device: present, DeviceName: found.Name, Volume: int(found.Volume)}
		}
		if known && st == last {
			return true
		}
		last, known = st, true
		return emit(StateChanged{State: st})
	}

	for {
		if !step() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
