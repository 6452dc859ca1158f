package admin

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/server"
)

type fakeHandle struct {
	id     server.ConnID
	player server.Player

	mu     sync.Mutex
	sent   []packet.Packet
	reason string
}

func (h *fakeHandle) ID() server.ConnID { return h.id }
func (h *fakeHandle) Player() server.Player { return h.player }
func (h *fakeHandle) Close(reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reason = reason
	return nil
}
func (h *fakeHandle) Send(p packet.Packet) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, p)
	return nil
}

func (h *fakeHandle) state() (string, []packet.Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason, slices.Clone(h.sent)
}

type fakeBackend struct {
	dir          *server.Directory
	reconfigured []server.ConnID
}

func (b *fakeBackend) Directory() *server.Directory { return b.dir }
func (b *fakeBackend) ConnCount() int { return b.dir.Len() + 1 }

func (b *fakeBackend) Close(id server.ConnID, reason string) error {
	h, ok := b.dir.Get(id)
	if !ok {
		return server.ErrNotFound
	}
	return h.Close(reason)
}

func (b *fakeBackend) Reconfigure(id server.ConnID) error {
	if _, ok := b.dir.Get(id); !ok {
		return server.ErrNotFound
	}
	if id == 2 {
		return server.ErrWrongState
	}
	b.reconfigured = append(b.reconfigured, id)
	return nil
}

func (b *fakeBackend) Broadcast(p packet.Packet, except ...server.ConnID) int {
	return b.dir.Broadcast(p, except...)
}

func newTestHandler(t *testing.T) (*httptest.Server, *fakeBackend, map[server.ConnID]*fakeHandle) {
	t.Helper()
	b := &fakeBackend{dir: server.NewDirectory()}
	handles := map[server.ConnID]*fakeHandle{}
	joined := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, p := range []struct {
		id   server.ConnID
		name string
	}{{2, "Bravo"}, {1, "Alpha"}} {
		h := &fakeHandle{id: p.id, player: server.Player{
			UUID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.name)),
			Name:     p.name,
			Version:  packet.Latest,
			Remote:   "127.0.0.1:1234",
			JoinedAt: joined,
		}}
		if err := b.dir.Insert(h); err != nil {
			t.Fatal(err)
		}
		handles[p.id] = h
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "admin_test_total", Help: "test"}))
	h := New(b, WithGatherer(reg), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, b, handles
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(b)
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestHandler(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK || body != "ok\n" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestMetrics(t *testing.T) {
	ts, _, _ := newTestHandler(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "admin_test_total") {
		t.Errorf("metrics missing registered counter:\n%s", body)
	}
}

func TestListConnections(t *testing.T) {
	ts, _, _ := newTestHandler(t)
	resp, body := do(t, http.MethodGet, ts.URL+"/connections", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var list ConnectionList
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatal(err)
	}
	if list.Open != 3 {
		t.Errorf("open = %d, want 3", list.Open)
	}
	if len(list.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(list.Players))
	}
	if list.Players[0].Name != "Alpha" || list.Players[1].Name != "Bravo" {
		t.Errorf("players not sorted by id: %+v", list.Players)
	}
	p := list.Players[0]
	if p.Protocol != int32(packet.Latest) || p.Version != packet.Latest.Name() {
		t.Errorf("version = %q/%d", p.Version, p.Protocol)
	}
	if p.Remote != "127.0.0.1:1234" {
		t.Errorf("remote = %q", p.Remote)
	}
}

func TestKick(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantReason string
	}{
		{"with reason", "/connections/1/kick", `{"reason":"go away"}`, http.StatusNoContent, "go away"},
		{"default reason", "/connections/1/kick", "", http.StatusNoContent, DefaultKickReason},
		{"unknown id", "/connections/99/kick", "", http.StatusNotFound, ""},
		{"bad id", "/connections/abc/kick", "", http.StatusBadRequest, ""},
		{"bad body", "/connections/1/kick", "{", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, handles := newTestHandler(t)
			resp, _ := do(t, http.MethodPost, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got, _ := handles[1].state(); got != tt.wantReason {
				t.Errorf("reason = %q, want %q", got, tt.wantReason)
			}
		})
	}
}

func TestReconfigure(t *testing.T) {
	ts, b, _ := newTestHandler(t)
	tests := []struct {
		path string
		want int
	}{
		{"/connections/1/reconfigure", http.StatusNoContent},
		{"/connections/2/reconfigure", http.StatusConflict},
		{"/connections/7/reconfigure", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, _ := do(t, http.MethodPost, ts.URL+tt.path, "")
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
	if len(b.reconfigured) != 1 || b.reconfigured[0] != 1 {
		t.Errorf("reconfigured = %v", b.reconfigured)
	}
}

func TestBroadcast(t *testing.T) {
	ts, _, handles := newTestHandler(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/broadcast", `{"message":"hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]int
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatal(err)
	}
	if out["delivered"] != 2 {
		t.Errorf("delivered = %d, want 2", out["delivered"])
	}
	for id, h := range handles {
		_, sent := h.state()
		if len(sent) != 1 {
			t.Fatalf("conn %d got %d packets", id, len(sent))
		}
		if _, ok := sent[0].(*packet.SystemChat); !ok {
			t.Errorf("conn %d got %T", id, sent[0])
		}
	}

	resp, _ = do(t, http.MethodPost, ts.URL+"/broadcast", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message status = %d", resp.StatusCode)
	}
}
