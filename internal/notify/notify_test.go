package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name string
	err  error
	got  []Message
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.got = append(r.got, msg)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventPenalty, " "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), Message{Event: EventPublished, Title: "skip"}))
	require.NoError(t, n.Notify(context.Background(), Message{Event: EventPenalty, Title: "keep"}))

	require.Len(t, s.got, 1)
	assert.Equal(t, "keep", s.got[0].Title)
	assert.True(t, n.Enabled(EventPenalty))
	assert.False(t, n.Enabled(EventBatch))
}

func TestNotifierEmptyEventsAllowsAll(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())
	require.NoError(t, n.Notify(context.Background(), Message{Event: EventBatch}))
	assert.Len(t, s.got, 1)

	none := NewNotifier(nil, nil, discardLogger())
	assert.False(t, none.Enabled(EventBatch))
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), Message{Event: EventPenalty})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.got, 1)
}

func TestDiscordSender(t *testing.T) {
	var payload struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Message{
		Event:  EventPenalty,
		Title:  "Penalty: BOND_01",
		Body:   "Performance ratio below threshold",
		Fields: []Field{{Name: "PR", Value: "50.00"}},
	})
	require.NoError(t, err)
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, "Penalty: BOND_01", payload.Embeds[0].Title)
	assert.Equal(t, colorPenalty, payload.Embeds[0].Color)
	assert.Equal(t, "PR", payload.Embeds[0].Fields[0].Name)
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Message{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestTelegramSender(t *testing.T) {
	var payload map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	err := s.Send(context.Background(), Message{
		Title:  "Published",
		Body:   "BOND_01 2024-01-01",
		Fields: []Field{{Name: "tx", Value: "0xabc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "*Published*\nBOND_01 2024-01-01\ntx: `0xabc`", payload["text"])
}
