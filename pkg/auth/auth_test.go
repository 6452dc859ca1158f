package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidUsername(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Notch", true},
		{"a", true},
		{"jeb_", true},
		{"Player_123456789", true},
		{"", false},
		{"Player_1234567890", false},
		{"bad name", false},
		{"dash-name", false},
		{"ünï", false},
	}
	for _, tt := range tests {
		if got := ValidUsername(tt.name); got != tt.want {
			t.Errorf("ValidUsername(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOfflineUUID(t *testing.T) {
	id := OfflineUUID("Notch")
	if id.Version() != 3 {
		t.Errorf("version = %d, want 3", id.Version())
	}
	if id.Variant() != uuid.RFC4122 {
		t.Errorf("variant = %v, want RFC4122", id.Variant())
	}
	if want := uuid.MustParse("b50ad385-829d-3141-a216-7e7d7539ba7f"); id != want {
		t.Errorf("OfflineUUID(Notch) = %s, want %s", id, want)
	}
	if OfflineUUID("notch") == id {
		t.Error("offline uuids must be case sensitive")
	}
}

func TestServerHash(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Notch", "4ed1f46bbe04bc756bcb17c0c7ce3e4632f06a48"},
		{"jeb_", "-7c9d5b0044c130109a5d7b5fb5c317c02b4e28c1"},
		{"simon", "88e16a1019277b15d58faf0541e11910eb756f6"},
	}
	for _, tt := range tests {
		if got := ServerHash(tt.in, nil, nil); got != tt.want {
			t.Errorf("ServerHash(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func testBanList(t *testing.T, l BanList) {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()

	if b, err := l.Lookup(ctx, id, "Griefer"); err != nil || b != nil {
		t.Fatalf("Lookup on empty list = %v, %v", b, err)
	}
	if err := l.Add(ctx, Ban{Name: "Griefer", Reason: "tnt"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(ctx, Ban{Name: "Ghost", ID: id, Reason: "alt"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(ctx, Ban{Name: "Past", Reason: "old", Expires: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		id     uuid.UUID
		player string
		reason string
	}{
		{"by name", uuid.Nil, "Griefer", "tnt"},
		{"name is case insensitive", uuid.Nil, "gRIEFER", "tnt"},
		{"by uuid under a new name", id, "Renamed", "alt"},
		{"expired", uuid.Nil, "Past", ""},
		{"unbanned", uuid.New(), "Friend", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := l.Lookup(ctx, tt.id, tt.player)
			if err != nil {
				t.Fatal(err)
			}
			switch {
			case tt.reason == "" && b != nil:
				t.Errorf("unexpected ban %+v", b)
			case tt.reason != "" && (b == nil || b.Reason != tt.reason):
				t.Errorf("ban = %+v, want reason %q", b, tt.reason)
			}
		})
	}

	all, err := l.List(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("List = %d bans, %v", len(all), err)
	}
	if err := l.Remove(ctx, "GRIEFER"); err != nil {
		t.Fatal(err)
	}
	if b, _ := l.Lookup(ctx, uuid.Nil, "Griefer"); b != nil {
		t.Error("ban survived Remove")
	}
}

func TestMemoryBanList(t *testing.T) {
	testBanList(t, NewMemoryBanList())
}

func TestSQLBanList(t *testing.T) {
	l, err := OpenSQLBanList(filepath.Join(t.TempDir(), "bans.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	testBanList(t, l)
}

func TestMojangVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("serverId") != "abc" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"069a79f444e94726a5befca90e38aaf5","name":"` + q.Get("username") +
			`","properties":[{"name":"textures","value":"e30=","signature":"c2ln"}]}`))
	}))
	defer srv.Close()

	v := &MojangVerifier{Endpoint: srv.URL, Client: srv.Client()}
	p, err := v.Verify(context.Background(), "Notch", "abc", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5") || p.Name != "Notch" {
		t.Errorf("profile = %+v", p)
	}
	if len(p.Properties) != 1 || !p.Properties[0].HasSignature || p.Properties[0].Name != "textures" {
		t.Errorf("properties = %+v", p.Properties)
	}

	if _, err := v.Verify(context.Background(), "Notch", "wrong", ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestMojangVerifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := &MojangVerifier{Endpoint: srv.URL, Client: srv.Client()}
	_, err := v.Verify(context.Background(), "Notch", "abc", "")
	if err == nil || errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v, want a server error", err)
	}
}

func TestOfflineVerifier(t *testing.T) {
	p, err := OfflineVerifier{}.Verify(context.Background(), "Steve", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != OfflineUUID("Steve") {
		t.Errorf("id = %s", p.ID)
	}
}
