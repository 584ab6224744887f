// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs:
// user identity resolution, live stream lookup, and whisper delivery.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrUserNotFound is returned when a login or id resolves to no Twitch user.
var ErrUserNotFound = errors.New("user not found")

// User is the identity pair the bot cares about.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Stream describes a live broadcast.
type Stream struct {
	Title     string `json:"title"`
	StartedAt string `json:"started_at"`
}

// HelixClient provides the Helix methods the bot needs. The app token covers
// user and stream lookups; whispers additionally require a user access token
// with the user:manage:whispers scope. UserTokenSource is consulted on every
// whisper so rotated tokens are picked up; UserToken is the static fallback.
type HelixClient struct {
	AppTokenSource  *TokenSource
	ClientID        string
	UserToken       string
	UserTokenSource func(ctx context.Context) (string, error)
	HTTPClient      *http.Client
}

func (hc *HelixClient) userToken(ctx context.Context) (string, error) {
	if hc.UserTokenSource == nil {
		return hc.UserToken, nil
	}
	tok, err := hc.UserTokenSource(ctx)
	if err != nil {
		return "", fmt.Errorf("load user token: %w", err)
	}
	if tok == "" {
		return hc.UserToken, nil
	}
	return tok, nil
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) authedGet(ctx context.Context, rawURL string, query map[string]string) (*http.Response, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	return hc.http().Do(req)
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

// GetUser resolves a login name to its id and display name.
// The leading @ of a chat mention is tolerated.
func (hc *HelixClient) GetUser(ctx context.Context, login string) (*User, error) {
	if len(login) > 0 && login[0] == '@' {
		login = login[1:]
	}
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	resp, err := hc.authedGet(ctx, "https://api.twitch.tv/helix/users", map[string]string{"login": login})
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("helix users request failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, ErrUserNotFound
	}
	return &body.Data[0], nil
}

// GetStream returns the live stream for a channel login, or nil when offline.
func (hc *HelixClient) GetStream(ctx context.Context, login string) (*Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	resp, err := hc.authedGet(ctx, "https://api.twitch.tv/helix/streams", map[string]string{"user_login": login})
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("helix streams request failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	return &body.Data[0], nil
}

// StreamUptime parses started_at and returns how long the stream has been live.
func StreamUptime(s *Stream, now time.Time) (time.Duration, error) {
	started, err := time.Parse(time.RFC3339, s.StartedAt)
	if err != nil {
		return 0, fmt.Errorf("parse started_at: %w", err)
	}
	return now.Sub(started), nil
}

// SendWhisper delivers a private message from the bot to a user.
// Requires a user token with the user:manage:whispers scope; Twitch
// rate-limits whispers aggressively and may drop them for accounts without a
// verified phone.
func (hc *HelixClient) SendWhisper(ctx context.Context, fromID, toID, text string) error {
	tok, err := hc.userToken(ctx)
	if err != nil {
		return err
	}
	if tok == "" {
		return errors.New("whisper requires a user token")
	}
	if fromID == "" || toID == "" {
		return errors.New("whisper requires from and to user ids")
	}
	payload, err := json.Marshal(map[string]string{"message": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.twitch.tv/helix/whispers", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set("from_user_id", fromID)
	q.Set("to_user_id", toID)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("helix whisper failed: %s: %s", resp.Status, string(b))
	}
	return nil
}
