package detection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaishakh3/emomusic/internal/fault"
	"github.com/vaishakh3/emomusic/internal/mood"
)

// Config holds the optional session timeouts. Zero disables a timeout.
type Config struct {
	// ModelTimeout bounds LoadModels.
	ModelTimeout time.Duration
	// CameraTimeout bounds the wait for the first frame after Start.
	CameraTimeout time.Duration
}

// Manager owns at most one active detection session at a time.
type Manager struct {
	camera   Camera
	detector Detector
	onUpdate func(Update)
	cfg      Config
	logger   *slog.Logger

	mu sync.Mutex
	// current is the latest session, kept after it finishes so Stop can
	// return a Completed or Error session to Idle.
	current *session
}

type session struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

// NewManager wires a manager. onUpdate is called from session goroutines and
// from Stop; it must not block for long.
func NewManager(camera Camera, detector Detector, cfg Config, onUpdate func(Update), logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	return &Manager{
		camera:   camera,
		detector: detector,
		onUpdate: onUpdate,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start begins a new session and returns its id. A running session is
// stopped first; the new one waits until the old one has released the
// camera. ctx bounds the whole session.
func (m *Manager) Start(ctx context.Context) (string, error) {
	if m.camera == nil || m.detector == nil {
		return "", fmt.Errorf("%w: detection is not configured", fault.ErrNotReady)
	}

	m.mu.Lock()
	prev := m.current
	if prev != nil {
		prev.halt()
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.current = s
	m.mu.Unlock()

	m.logger.Info("detection session starting", "session", s.id)
	go m.run(sctx, s, prev)
	return s.id, nil
}

// Stop ends the latest session, running or finished, and publishes Idle for
// it. Results arriving after Stop returns are discarded. Stop without a
// session since the last Stop is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s == nil {
		return
	}
	s.halt()
	m.logger.Info("detection session stopped", "session", s.id)
	m.onUpdate(Update{SessionID: s.id, State: StateIdle, At: time.Now()})
}

// Close stops the active session and waits for its goroutine to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	m.Stop()
	if s != nil {
		<-s.done
	}
}

// halt marks the session stopped and cancels it. After halt returns no
// further updates are published for the session.
func (s *session) halt() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
}

func (m *Manager) emit(s *session, st State, label mood.Label, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	m.onUpdate(Update{SessionID: s.id, State: st, Mood: label, Err: err, At: time.Now()})
	return true
}

func (m *Manager) fail(s *session, err error) {
	m.logger.Warn("detection session failed", "session", s.id, "error", err)
	m.emit(s, StateError, "", err)
}

func (m *Manager) run(ctx context.Context, s *session, prev *session) {
	defer close(s.done)
	defer s.cancel()

	if prev != nil {
		<-prev.done
	}
	if ctx.Err() != nil {
		return
	}

	if !m.emit(s, StateLoadingModels, "", nil) {
		return
	}
	if err := m.loadModels(ctx); err != nil {
		if ctx.Err() == nil {
			m.fail(s, fmt.Errorf("%w: %w", fault.ErrModelLoad, err))
		}
		return
	}

	if !m.emit(s, StateCameraStarting, "", nil) {
		return
	}
	frames, err := m.camera.Start(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.fail(s, fmt.Errorf("%w: %w", fault.ErrCameraAccess, err))
		}
		return
	}

	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			if err := m.camera.Stop(); err != nil {
				m.logger.Warn("camera stop failed", "session", s.id, "error", err)
			}
		})
	}
	defer release()

	if !m.emit(s, StateDetecting, "", nil) {
		return
	}

	var firstFrame <-chan time.Time
	if m.cfg.CameraTimeout > 0 {
		t := time.NewTimer(m.cfg.CameraTimeout)
		defer t.Stop()
		firstFrame = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-firstFrame:
			m.fail(s, fmt.Errorf("%w: no frame within %s", fault.ErrCameraAccess, m.cfg.CameraTimeout))
			return

		case f, ok := <-frames:
			if !ok {
				if ctx.Err() == nil {
					m.fail(s, fmt.Errorf("%w: frame stream ended", fault.ErrCameraAccess))
				}
				return
			}
			firstFrame = nil

			faces, err := m.detector.Detect(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Debug("frame detection failed", "session", s.id, "seq", f.Seq, "error", err)
				continue
			}

			face, found := bestFace(faces)
			if !found {
				continue
			}

			label := mood.Classify(face.Expressions)
			release()
			m.logger.Info("mood detected", "session", s.id, "mood", label, "confidence", face.Confidence)
			m.emit(s, StateCompleted, label, nil)
			return
		}
	}
}

func (m *Manager) loadModels(ctx context.Context) error {
	if m.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ModelTimeout)
		defer cancel()
	}
	return m.detector.LoadModels(ctx)
}
