package detection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

const (
	// maxSnapshotBytes caps a single snapshot download.
	maxSnapshotBytes = 16 << 20

	// maxGrabFailures is how many consecutive failed grabs end the stream.
	maxGrabFailures = 5

	jpegQuality = 85
)

// SnapshotCameraConfig configures a SnapshotCamera.
type SnapshotCameraConfig struct {
	// URL returns a single JPEG or PNG still per GET (mjpg-streamer
	// ?action=snapshot, go2rtc /api/frame.jpeg, ...).
	URL string
	// FPS is the capture rate. Values <= 0 mean 2.
	FPS int
	// MaxWidth downsizes wider frames, keeping the aspect ratio. 0 keeps the
	// original size.
	MaxWidth int
	Client   *http.Client
}

// SnapshotCamera implements Camera by polling an HTTP snapshot endpoint.
// Frames are delivered through a one-slot mailbox: a slow consumer always
// sees the newest frame.
type SnapshotCamera struct {
	url      string
	interval time.Duration
	maxWidth int
	client   *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Camera = (*SnapshotCamera)(nil)

// NewSnapshotCamera returns a stopped camera.
func NewSnapshotCamera(cfg SnapshotCameraConfig, logger *slog.Logger) *SnapshotCamera {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 2
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCamera{
		url:      cfg.URL,
		interval: time.Second / time.Duration(fps),
		maxWidth: cfg.MaxWidth,
		client:   client,
		logger:   logger,
	}
}

// Start grabs a first frame to prove the camera is reachable, then keeps
// capturing until Stop or ctx ends.
func (c *SnapshotCamera) Start(ctx context.Context) (<-chan Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil, errors.New("camera already started")
	}

	first, err := c.grab(ctx)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)
	out := make(chan Frame, 1)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	out <- Frame{Seq: 1, Data: first, At: time.Now()}
	go c.capture(cctx, out, done)

	c.logger.Debug("camera started", "url", c.url, "interval", c.interval)
	return out, nil
}

// Stop ends capture and waits for the capture goroutine. Stopping a stopped
// camera is a no-op.
func (c *SnapshotCamera) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	c.logger.Debug("camera stopped", "url", c.url)
	return nil
}

func (c *SnapshotCamera) capture(ctx context.Context, out chan Frame, done chan struct{}) {
	defer close(done)
	defer close(out)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	seq := uint64(1)
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		data, err := c.grab(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.logger.Warn("camera grab failed", "error", err, "consecutive", failures)
			if failures >= maxGrabFailures {
				return
			}
			continue
		}
		failures = 0
		seq++
		offer(out, Frame{Seq: seq, Data: data, At: time.Now()})
	}
}

// offer replaces any unread frame with f. out must have capacity 1 and a
// single sender.
func offer(out chan Frame, f Frame) {
	select {
	case out <- f:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- f:
	default:
	}
}

func (c *SnapshotCamera) grab(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return downscale(body, c.maxWidth)
}

// downscale decodes a still, shrinks it to maxWidth if wider and returns it
// as JPEG. JPEG input that needs no resize is returned untouched.
func downscale(data []byte, maxWidth int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if maxWidth <= 0 || width <= maxWidth {
		if format == "jpeg" {
			return data, nil
		}
	} else {
		height = max(1, height*maxWidth/width)
		width = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
