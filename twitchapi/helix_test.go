package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/onnwee/chat-tender/testutil"
)

// rewriteTransport redirects all requests to the mock server regardless of the
// host the client dialed.
type rewriteTransport struct {
	transport http.RoundTripper
	host      string
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(rt.host)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	return rt.transport.RoundTrip(req)
}

func testClient(m *testutil.MockTwitchServer) *HelixClient {
	ts := &TokenSource{ClientID: "test-client-id", ClientSecret: "test-secret"}
	ts.SetToken("test-token", time.Now().Add(time.Hour))
	return &HelixClient{
		AppTokenSource: ts,
		ClientID:       "test-client-id",
		HTTPClient: &http.Client{Transport: &rewriteTransport{
			transport: http.DefaultTransport,
			host:      m.URL,
		}},
	}
}

func TestGetUser(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockUserResponse("12345", "somechatter")

	client := testClient(m)
	// @-prefixed mentions resolve the same as bare logins.
	u, err := client.GetUser(context.Background(), "@somechatter")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if u.ID != "12345" || u.Login != "somechatter" {
		t.Errorf("GetUser() = %+v", u)
	}
}

func TestGetUserNotFound(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.Handlers["/helix/users"] = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}})
	}

	_, err := testClient(m).GetUser(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser() error = %v, want ErrUserNotFound", err)
	}
}

func TestGetStream(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockStreamsResponse([]map[string]interface{}{
		{"title": "Live Now", "started_at": "2024-10-15T14:30:00Z"},
	})

	s, err := testClient(m).GetStream(context.Background(), "livechannel")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if s == nil || s.Title != "Live Now" {
		t.Fatalf("GetStream() = %+v, want Live Now", s)
	}
}

func TestGetStreamOffline(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockStreamsResponse(nil)

	s, err := testClient(m).GetStream(context.Background(), "offlinechannel")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if s != nil {
		t.Errorf("GetStream() = %+v, want nil for offline channel", s)
	}
}

func TestStreamUptime(t *testing.T) {
	now := time.Date(2024, 10, 15, 16, 0, 0, 0, time.UTC)
	d, err := StreamUptime(&Stream{StartedAt: "2024-10-15T14:30:00Z"}, now)
	if err != nil {
		t.Fatalf("StreamUptime() error = %v", err)
	}
	if d != 90*time.Minute {
		t.Errorf("StreamUptime() = %v, want 90m", d)
	}
	if _, err := StreamUptime(&Stream{StartedAt: "garbage"}, now); err == nil {
		t.Error("expected error for invalid started_at")
	}
}

func TestSendWhisper(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	var received []string
	m.MockWhisperResponse(&received)

	client := testClient(m)
	client.UserToken = "user-token"
	if err := client.SendWhisper(context.Background(), "111", "222", "psst"); err != nil {
		t.Fatalf("SendWhisper() error = %v", err)
	}
	if len(received) != 1 || received[0] != "111|222|psst" {
		t.Errorf("whispers = %v, want [111|222|psst]", received)
	}
}

func TestSendWhisperRequiresUserToken(t *testing.T) {
	client := &HelixClient{AppTokenSource: &TokenSource{}, ClientID: "cid"}
	if err := client.SendWhisper(context.Background(), "1", "2", "hi"); err == nil {
		t.Error("expected error without user token")
	}
}

func TestSendWhisperUsesTokenSource(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	var received []string
	m.MockWhisperResponse(&received)
	var gotAuth string
	inner := m.Handlers["/helix/whispers"]
	m.Handlers["/helix/whispers"] = func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		inner(w, r)
	}

	// The source wins over the static token, so tokens rotated after startup
	// are the ones that go on the wire.
	client := testClient(m)
	client.UserToken = "stale-token"
	client.UserTokenSource = func(ctx context.Context) (string, error) { return "rotated-token", nil }
	if err := client.SendWhisper(context.Background(), "111", "222", "psst"); err != nil {
		t.Fatalf("SendWhisper() error = %v", err)
	}
	if gotAuth != "Bearer rotated-token" {
		t.Errorf("Authorization = %q, want the rotated token", gotAuth)
	}

	// An empty source result falls back to the static token.
	client.UserTokenSource = func(ctx context.Context) (string, error) { return "", nil }
	if err := client.SendWhisper(context.Background(), "111", "222", "psst"); err != nil {
		t.Fatalf("SendWhisper() with empty source error = %v", err)
	}
	if gotAuth != "Bearer stale-token" {
		t.Errorf("Authorization = %q, want the static fallback", gotAuth)
	}

	// A failing source fails the whisper.
	client.UserTokenSource = func(ctx context.Context) (string, error) { return "", fmt.Errorf("db down") }
	if err := client.SendWhisper(context.Background(), "111", "222", "psst"); err == nil {
		t.Error("expected error when the token source fails")
	}
}

func TestTokenSourceCaching(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockOAuthTokenResponse("fresh", 3600)
	requests := 0
	inner := m.Handlers["/oauth2/token"]
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		requests++
		inner(w, r)
	}

	ts := &TokenSource{
		ClientID:     "cid",
		ClientSecret: "secret",
		HTTPClient: &http.Client{Transport: &rewriteTransport{
			transport: http.DefaultTransport,
			host:      m.URL,
		}},
	}
	for i := 0; i < 3; i++ {
		tok, err := ts.Get(context.Background())
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if tok != "fresh" {
			t.Fatalf("Get() = %q, want fresh", tok)
		}
	}
	if requests != 1 {
		t.Errorf("token endpoint hit %d times, want 1 (cached)", requests)
	}
	ts.Invalidate()
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("Get() after Invalidate error = %v", err)
	}
	if requests != 2 {
		t.Errorf("token endpoint hit %d times after invalidate, want 2", requests)
	}
}
