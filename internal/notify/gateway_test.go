package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"patrol/dispatch/internal/notify"

	"github.com/rs/zerolog"
)

func TestNotify_PostsPayload(t *testing.T) {
	t.Parallel()

	var got struct {
		Tokens []string          `json:"tokens"`
		Title  string            `json:"title"`
		Body   string            `json:"body"`
		Data   map[string]string `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notify" {
			t.Errorf("path = %s, want /notify", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := notify.NewGateway(srv.URL, time.Second, zerolog.Nop())
	err := g.Notify(context.Background(), []string{"tok-1", "tok-2"}, "New dispatch", "respond now",
		map[string]string{"dispatch_id": "d-1"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(got.Tokens) != 2 || got.Title != "New dispatch" || got.Data["dispatch_id"] != "d-1" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestNotify_GatewayFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := notify.NewGateway(srv.URL, time.Second, zerolog.Nop())
	if err := g.Notify(context.Background(), []string{"tok"}, "t", "b", nil); err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}

func TestNotify_EmptyURLIsNoOp(t *testing.T) {
	t.Parallel()

	g := notify.NewGateway("", time.Second, zerolog.Nop())
	if err := g.Notify(context.Background(), []string{"tok"}, "t", "b", nil); err != nil {
		t.Fatalf("Notify with no gateway: %v", err)
	}
}

func TestNotify_NoTokensSkipsRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("gateway must not be called without destinations")
	}))
	defer srv.Close()

	g := notify.NewGateway(srv.URL, time.Second, zerolog.Nop())
	if err := g.Notify(context.Background(), nil, "t", "b", nil); err != nil {
		t.Fatalf("Notify with no tokens: %v", err)
	}
}
