package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthz_ReportsClientCount(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := NewServer(ctx, discardLogger(), make(chan Event, 1), ServerConfig{})
	runTestHub(t, ws.Hub())
	registerTestClient(t, ws.Hub(), "c1", 1)

	srv := httptest.NewServer(newHTTPMux(ws))
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok clients=1\n" {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}
}
