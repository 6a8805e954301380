package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
)

type fakeFeed struct {
	backlog []domain.FeedEvent
	updates chan []byte
}

func (f *fakeFeed) LiveFeed(_ context.Context, bondID string) ([]domain.FeedEvent, error) {
	if bondID != "B1" {
		return nil, fmt.Errorf("bond %s: %w", bondID, domain.ErrNotFound)
	}
	return f.backlog, nil
}

func (f *fakeFeed) Subscribe(context.Context, string) (<-chan []byte, error) {
	return f.updates, nil
}

func newTestHub(t *testing.T, feed *fakeFeed) *httptest.Server {
	t.Helper()
	hub := NewHub(feed, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/oracle/{bond_id}", hub.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func wsURL(srv *httptest.Server, bondID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/oracle/" + bondID
}

func TestHubReplaysBacklogThenStreams(t *testing.T) {
	feed := &fakeFeed{
		backlog: []domain.FeedEvent{{
			Type:   "ORACLE_UPDATE",
			BondID: "B1",
			Record: domain.AuditRecord{Date: "2024-01-01", PerformanceRatio: 85},
		}},
		updates: make(chan []byte, 1),
	}
	srv := newTestHub(t, feed)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "B1"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	msgType, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	var first domain.FeedEvent
	require.NoError(t, json.Unmarshal(raw, &first))
	assert.Equal(t, "2024-01-01", first.Record.Date)

	feed.updates <- []byte(`{"type":"ORACLE_UPDATE","bond_id":"B1","data":{"date":"2024-01-02"}}`)
	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	var second domain.FeedEvent
	require.NoError(t, json.Unmarshal(raw, &second))
	assert.Equal(t, "ORACLE_UPDATE", second.Type)
	assert.Equal(t, "2024-01-02", second.Record.Date)
}

func TestHubUnknownBond(t *testing.T) {
	srv := newTestHub(t, &fakeFeed{updates: make(chan []byte)})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
