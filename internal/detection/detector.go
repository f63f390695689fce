package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vaishakh3/emomusic/internal/mood"
)

// HTTPDetector talks to a face-api compatible sidecar:
//
//	POST {base}/models/load            -> 2xx once models are ready
//	POST {base}/detect (image/jpeg)    -> [{"detection":{"score":..,"box":{..}},"expressions":{..}}]
type HTTPDetector struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

var _ Detector = (*HTTPDetector)(nil)

// NewHTTPDetector returns a detector for the sidecar at baseURL. A nil client
// gets a 10s timeout client.
func NewHTTPDetector(baseURL string, client *http.Client, logger *slog.Logger) *HTTPDetector {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDetector{
		base:   strings.TrimRight(baseURL, "/"),
		client: client,
		logger: logger,
	}
}

type faceResult struct {
	Detection struct {
		Score float64 `json:"score"`
		Box   Box     `json:"box"`
	} `json:"detection"`
	Expressions map[string]float64 `json:"expressions"`
}

// LoadModels asks the sidecar to load its detection and expression models.
func (d *HTTPDetector) LoadModels(ctx context.Context) error {
	resp, err := d.post(ctx, "/models/load", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Detect sends one frame and returns the faces the sidecar found. Faces
// without any known expression category are dropped.
func (d *HTTPDetector) Detect(ctx context.Context, f Frame) ([]Face, error) {
	resp, err := d.post(ctx, "/detect", "image/jpeg", f.Data)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var results []faceResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}

	faces := make([]Face, 0, len(results))
	for i, r := range results {
		scores, err := mood.NormalizeScores(r.Expressions)
		if err != nil {
			d.logger.Debug("skipping face without expressions", "seq", f.Seq, "index", i, "error", err)
			continue
		}
		faces = append(faces, Face{
			Expressions: scores,
			Box:         r.Detection.Box,
			Confidence:  r.Detection.Score,
		})
	}
	return faces, nil
}

func (d *HTTPDetector) post(ctx context.Context, path, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
