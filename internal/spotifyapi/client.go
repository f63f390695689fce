// Package spotifyapi builds the authenticated Spotify Web API client shared by
// the recommendation fetcher and the playback device.
package spotifyapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the public Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1/"

// Scopes lists the OAuth scopes the daemon needs from whatever login flow
// produced the token.
var Scopes = []string{
	"streaming",
	"user-read-email",
	"user-read-private",
	"user-read-playback-state",
	"user-modify-playback-state",
}

// Options configures NewClient.
type Options struct {
	// BaseURL overrides the Web API root (tests point this at httptest).
	BaseURL string

	// TokenSource supplies the bearer credential. Usually NewFileTokenSource.
	TokenSource oauth2.TokenSource

	// Timeout bounds every HTTP request. Zero means no client-level timeout.
	Timeout time.Duration
}

// NewClient returns a Spotify client that authenticates every request with the
// configured token source. Automatic retries stay disabled: callers surface
// failures instead of retrying.
func NewClient(ctx context.Context, opts Options) (*spotify.Client, error) {
	if opts.TokenSource == nil {
		return nil, errors.New("spotify client: token source is nil")
	}

	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	hc := oauth2.NewClient(ctx, opts.TokenSource)
	hc.Timeout = opts.Timeout

	return spotify.New(hc, spotify.WithBaseURL(base), spotify.WithRetry(false)), nil
}

// StatusCode extracts the HTTP status from a Web API error, if err carries one.
func StatusCode(err error) (int, bool) {
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status, true
	}
	var sep *spotify.Error
	if errors.As(err, &sep) && sep != nil {
		return sep.Status, true
	}
	return 0, false
}

// Describe renders err for logs, including the API status when present.
func Describe(err error) string {
	if code, ok := StatusCode(err); ok {
		return fmt.Sprintf("%v (status %d)", err, code)
	}
	return err.Error()
}
