package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vaishakh3/emomusic/internal/detection"
	"github.com/vaishakh3/emomusic/internal/device"
	"github.com/vaishakh3/emomusic/internal/fault"
	"github.com/vaishakh3/emomusic/internal/recommend"
)

// detectionControl is the part of detection.Manager the daemon drives.
type detectionControl interface {
	Start(ctx context.Context) (string, error)
	Stop()
}

// effectRunner executes reducer-emitted Commands against external systems
// and reports observations as Events on the daemon's inbound channel.
//
// Design rules:
//   - It never calls Reduce() directly; it only emits Events.
//   - Device commands run in order on a single worker.
//   - Fetches run concurrently; the reducer discards stale results.
//   - Dispatching a command never blocks the daemon loop.
type effectRunner struct {
	player       device.Player
	fetcher      recommend.Fetcher
	detection    detectionControl
	events       chan<- Event
	fetchTimeout time.Duration
	logger       *slog.Logger

	deviceQ    *commandFIFO
	detectionQ *commandFIFO

	// Owned by the device worker.
	sub       device.Subscription
	forwarder chan struct{}

	fetches sync.WaitGroup
}

type effectRunnerConfig struct {
	Player       device.Player
	Fetcher      recommend.Fetcher
	Detection    detectionControl
	FetchTimeout time.Duration
}

func newEffectRunner(cfg effectRunnerConfig, events chan<- Event, logger *slog.Logger) *effectRunner {
	return &effectRunner{
		player:       cfg.Player,
		fetcher:      cfg.Fetcher,
		detection:    cfg.Detection,
		events:       events,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger,
		deviceQ:      newCommandFIFO(),
		detectionQ:   newCommandFIFO(),
	}
}

// runEffect hands a command to the component that executes it.
func (r *effectRunner) runEffect(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			r.logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		// Never block the daemon loop on a slow requester.
		select {
		case c.Reply <- c.Snapshot:
		default:
			r.logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	case CmdFetchRecommendations:
		r.fetches.Add(1)
		go func() {
			defer r.fetches.Done()
			r.fetch(ctx, c)
		}()

	case CmdStartDetection, CmdStopDetection:
		r.detectionQ.push(cmd)

	default:
		r.deviceQ.push(cmd)
	}
}

// waitFetches blocks until in-flight fetches have returned.
func (r *effectRunner) waitFetches() {
	r.fetches.Wait()
}

// emit delivers an observation to the daemon loop unless ctx is done.
func (r *effectRunner) emit(ctx context.Context, ev Event) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

// ============================================================================
// Recommendations
// ============================================================================

func (r *effectRunner) fetch(ctx context.Context, c CmdFetchRecommendations) {
	if r.fetcher == nil {
		r.emit(ctx, RecommendationsFailed{Gen: c.Gen, Mood: c.Mood, Err: fmt.Errorf("%w: no recommendation source", fault.ErrNotReady)})
		return
	}

	fctx := ctx
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}

	tracks, err := r.fetcher.Recommend(fctx, c.Mood, c.Limit)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("recommendation fetch failed", "mood", c.Mood, "gen", c.Gen, "error", err)
		r.emit(ctx, RecommendationsFailed{Gen: c.Gen, Mood: c.Mood, Err: err})
		return
	}
	r.logger.Info("recommendations fetched", "mood", c.Mood, "gen", c.Gen, "tracks", len(tracks))
	r.emit(ctx, RecommendationsFetched{Gen: c.Gen, Mood: c.Mood, Tracks: tracks})
}

// ============================================================================
// Device worker
// ============================================================================

// runDeviceWorker executes device commands in order until ctx ends. The
// device subscription is closed on every exit path.
func (r *effectRunner) runDeviceWorker(ctx context.Context) error {
	defer r.closeSubscription()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.deviceQ.ready:
			for _, cmd := range r.deviceQ.drain() {
				if ctx.Err() != nil {
					return nil
				}
				r.execDevice(ctx, cmd)
			}
		}
	}
}

func (r *effectRunner) execDevice(ctx context.Context, cmd Command) {
	if r.player == nil {
		r.emit(ctx, CommandFailed{Command: cmd, Err: errNoPlayer{}})
		return
	}

	switch c := cmd.(type) {
	case CmdConnect:
		r.connect(ctx, c.Attempt)
		return
	case CmdDisconnect:
		r.closeSubscription()
		return
	}

	cctx, cancel := context.WithTimeout(ctx, deviceCommandTimeout)
	defer cancel()

	var err error
	switch c := cmd.(type) {
	case CmdDispatch:
		if err = r.player.Dispatch(cctx, c.Device, c.Track); err == nil {
			r.logger.Info("track dispatched", "device", c.Device, "uri", c.Track.URI, "title", c.Track.Title)
			r.emit(ctx, TrackDispatched{Device: c.Device, Track: c.Track})
		}
	case CmdPause:
		err = r.player.Pause(cctx, c.Device)
	case CmdResume:
		err = r.player.Resume(cctx, c.Device)
	case CmdTogglePlay:
		err = r.player.TogglePlay(cctx, c.Device)
	case CmdSkipNext:
		err = r.player.NextTrack(cctx, c.Device)
	case CmdSkipPrevious:
		err = r.player.PreviousTrack(cctx, c.Device)
	case CmdSetVolume:
		if err = r.player.SetVolume(cctx, c.Device, c.Percent); err == nil {
			r.emit(ctx, DeviceVolumeReported{Percent: c.Percent})
		}
	default:
		r.logger.Warn("unknown command type", "command", cmd.String())
		err = errUnknownCommand{cmd: cmd}
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("device command failed", "command", cmd.String(), "error", err)
		r.emit(ctx, CommandFailed{Command: cmd, Err: err})
	}
}

// connect replaces the current subscription with a new one tagged attempt.
func (r *effectRunner) connect(ctx context.Context, attempt uint64) {
	r.closeSubscription()

	r.logger.Info("connecting to playback device", "attempt", attempt)
	sub, err := r.player.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("device connect failed", "attempt", attempt, "error", err)
		r.emit(ctx, ConnectFailed{Attempt: attempt, Err: err})
		return
	}

	r.sub = sub
	r.forwarder = make(chan struct{})
	go r.forward(ctx, sub, attempt, r.forwarder)
}

// closeSubscription unsubscribes and waits for the forwarder to drain.
func (r *effectRunner) closeSubscription() {
	if r.sub == nil {
		return
	}
	if err := r.sub.Close(); err != nil {
		r.logger.Warn("closing device subscription failed", "error", err)
	}
	<-r.forwarder
	r.sub = nil
	r.forwarder = nil
	r.logger.Debug("device subscription closed")
}

// forward translates subscription events into reducer events tagged with attempt.
func (r *effectRunner) forward(ctx context.Context, sub device.Subscription, attempt uint64, done chan<- struct{}) {
	defer close(done)

	lastVolume := -1
	for ev := range sub.Events() {
		switch e := ev.(type) {
		case device.Ready:
			r.emit(ctx, DeviceReady{Attempt: attempt, Device: e.Device, Name: e.Name})
		case device.NotReady:
			r.emit(ctx, DeviceNotReady{Attempt: attempt, Device: e.Device})
		case device.StateChanged:
			r.emit(ctx, reportFromState(e.State, attempt))
			if e.State.Volume != lastVolume {
				lastVolume = e.State.Volume
				r.emit(ctx, DeviceVolumeReported{Percent: e.State.Volume})
			}
		}
	}
	r.emit(ctx, SubscriptionEnded{Attempt: attempt})
}

func reportFromState(st device.State, attempt uint64) DeviceStateReported {
	rep := DeviceStateReported{Device: string(st.Device), Attempt: attempt}
	switch {
	case !st.Active:
		rep.State = reportStopped
	case st.Paused:
		rep.State = reportPaused
	default:
		rep.State = reportPlaying
	}
	if !st.Track.IsZero() {
		t := st.Track
		rep.Track = &t
	}
	return rep
}

// ============================================================================
// Detection worker
// ============================================================================

func (r *effectRunner) runDetectionWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.detectionQ.ready:
			for _, cmd := range r.detectionQ.drain() {
				r.execDetection(ctx, cmd)
			}
		}
	}
}

func (r *effectRunner) execDetection(ctx context.Context, cmd Command) {
	if r.detection == nil {
		r.emit(ctx, CommandFailed{Command: cmd, Err: fmt.Errorf("%w: detection is disabled", fault.ErrNotReady)})
		return
	}
	switch cmd.(type) {
	case CmdStartDetection:
		id, err := r.detection.Start(ctx)
		if err != nil {
			r.emit(ctx, CommandFailed{Command: cmd, Err: err})
			return
		}
		r.logger.Debug("detection started", "session", id)
	case CmdStopDetection:
		r.detection.Stop()
	}
}

// detectionUpdates returns the callback handed to detection.NewManager.
func detectionUpdates(ctx context.Context, events chan<- Event) func(detection.Update) {
	return func(u detection.Update) {
		select {
		case events <- DetectionUpdated{Update: u}:
		case <-ctx.Done():
		}
	}
}

// ============================================================================
// commandFIFO
// ============================================================================

// commandFIFO is an unbounded command queue. push never blocks; ready is
// signalled whenever items are waiting.
type commandFIFO struct {
	mu    sync.Mutex
	items []Command
	ready chan struct{}
}

func newCommandFIFO() *commandFIFO {
	return &commandFIFO{ready: make(chan struct{}, 1)}
}

func (q *commandFIFO) push(c Command) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *commandFIFO) drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// ============================================================================
// Errors
// ============================================================================

// errNoPlayer indicates a device command arrived without a playback collaborator.
type errNoPlayer struct{}

func (errNoPlayer) Error() string { return "no playback device configured" }

func (errNoPlayer) Unwrap() error { return fault.ErrNotReady }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
