package spotifyapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// fileTokenSource reads the bearer credential from a file written by an
// external login flow. The file is re-read whenever its modification time
// changes, so a refreshed token is picked up without restarting the daemon.
//
// Accepted formats:
//   - a raw access token (surrounding whitespace ignored)
//   - an oauth2.Token JSON document
//   - {"token": <oauth2.Token>}
type fileTokenSource struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	cached  *oauth2.Token
}

// NewFileTokenSource returns a token source backed by path.
func NewFileTokenSource(path string) oauth2.TokenSource {
	return &fileTokenSource{path: path}
}

func (s *fileTokenSource) Token() (*oauth2.Token, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat token file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && fi.ModTime().Equal(s.modTime) && fi.Size() == s.size {
		return s.cached, nil
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	tok, err := parseToken(b)
	if err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.path, err)
	}

	s.cached = tok
	s.modTime = fi.ModTime()
	s.size = fi.Size()
	return tok, nil
}

func parseToken(b []byte) (*oauth2.Token, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, errors.New("token file is empty")
	}

	if b[0] != '{' {
		return &oauth2.Token{AccessToken: string(b), TokenType: "Bearer"}, nil
	}

	var wrapped struct {
		Token *oauth2.Token `json:"token"`
	}
	if err := json.Unmarshal(b, &wrapped); err == nil && wrapped.Token != nil && wrapped.Token.AccessToken != "" {
		return wrapped.Token, nil
	}

	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errors.New("access_token is empty")
	}
	return &tok, nil
}
