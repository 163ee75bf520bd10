// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/consolerelay/lib/chat"
	"github.com/bureau-foundation/consolerelay/lib/clock"
	"github.com/bureau-foundation/consolerelay/lib/ref"
	"github.com/bureau-foundation/consolerelay/lib/testutil"
)

const testTimeout = 10 * time.Second

// homeserver is an in-process Matrix homeserver covering the endpoints
// the connector uses. Long-poll /sync requests block until the test
// pushes a batch of events with deliver.
type homeserver struct {
	t      *testing.T
	server *httptest.Server
	done   chan struct{}

	batches chan []Event
	polling chan struct{}

	mu           sync.Mutex
	history      []Event
	displayNames map[string]string
	failSyncs    int
	syncQueries  []url.Values
	sent         []MessageContent
	joined       []string
	batch        int
}

func newHomeserver(t *testing.T) *homeserver {
	t.Helper()
	h := &homeserver{
		t:            t,
		done:         make(chan struct{}),
		batches:      make(chan []Event, 16),
		polling:      make(chan struct{}, 16),
		displayNames: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/client/v3/account/whoami", h.whoami)
	mux.HandleFunc("GET /_matrix/client/v3/directory/room/{alias}", h.resolveAlias)
	mux.HandleFunc("POST /_matrix/client/v3/join/{room}", h.join)
	mux.HandleFunc("PUT /_matrix/client/v3/rooms/{room}/send/{type}/{txn}", h.send)
	mux.HandleFunc("GET /_matrix/client/v3/profile/{user}/displayname", h.displayName)
	mux.HandleFunc("GET /_matrix/client/v3/sync", h.sync)

	h.server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "Bearer "+testToken {
			writeMatrixError(writer, http.StatusUnauthorized, ErrCodeUnknownToken, "Unknown access token")
			return
		}
		mux.ServeHTTP(writer, request)
	}))
	t.Cleanup(h.server.Close)
	// Registered after server.Close so it runs first and releases
	// parked long-polls.
	t.Cleanup(func() { close(h.done) })
	return h
}

func (h *homeserver) whoami(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, WhoAmIResponse{UserID: testUser})
}

func (h *homeserver) resolveAlias(writer http.ResponseWriter, request *http.Request) {
	if request.PathValue("alias") != "#minecraft:example.org" {
		writeMatrixError(writer, http.StatusNotFound, ErrCodeNotFound, "Room alias not found")
		return
	}
	writeJSON(writer, ResolveAliasResponse{RoomID: testRoom})
}

func (h *homeserver) join(writer http.ResponseWriter, request *http.Request) {
	room := request.PathValue("room")
	h.mu.Lock()
	h.joined = append(h.joined, room)
	h.mu.Unlock()
	writeJSON(writer, map[string]string{"room_id": room})
}

func (h *homeserver) send(writer http.ResponseWriter, request *http.Request) {
	if request.PathValue("room") != testRoom.String() {
		writeMatrixError(writer, http.StatusForbidden, ErrCodeForbidden, "Not in room")
		return
	}
	var content MessageContent
	if err := json.NewDecoder(request.Body).Decode(&content); err != nil {
		h.t.Errorf("decoding send body: %v", err)
	}
	h.mu.Lock()
	h.sent = append(h.sent, content)
	h.mu.Unlock()
	writeJSON(writer, SendEventResponse{EventID: "$sent"})
}

func (h *homeserver) displayName(writer http.ResponseWriter, request *http.Request) {
	h.mu.Lock()
	name, ok := h.displayNames[request.PathValue("user")]
	h.mu.Unlock()
	if !ok {
		writeMatrixError(writer, http.StatusNotFound, ErrCodeNotFound, "Profile not found")
		return
	}
	writeJSON(writer, DisplayNameResponse{DisplayName: name})
}

func (h *homeserver) sync(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	h.mu.Lock()
	h.syncQueries = append(h.syncQueries, query)
	if h.failSyncs > 0 {
		h.failSyncs--
		h.mu.Unlock()
		writeMatrixError(writer, http.StatusInternalServerError, ErrCodeUnknown, "Internal error")
		return
	}
	h.batch++
	nextBatch := fmt.Sprintf("s%d", h.batch)
	history := h.history
	h.mu.Unlock()

	if query.Get("since") == "" {
		writeJSON(writer, syncResponse(nextBatch, history))
		return
	}

	select {
	case h.polling <- struct{}{}:
	default:
	}
	select {
	case events := <-h.batches:
		writeJSON(writer, syncResponse(nextBatch, events))
	case <-request.Context().Done():
	case <-h.done:
	}
}

func syncResponse(nextBatch string, events []Event) SyncResponse {
	response := SyncResponse{NextBatch: nextBatch}
	if len(events) > 0 {
		response.Rooms.Join = map[ref.RoomID]JoinedRoom{
			testRoom: {Timeline: TimelineSection{Events: events}},
		}
	}
	return response
}

func (h *homeserver) deliver(events ...Event) {
	h.batches <- events
}

func (h *homeserver) sentMessages() []MessageContent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]MessageContent(nil), h.sent...)
}

func (h *homeserver) queries() []url.Values {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]url.Values(nil), h.syncQueries...)
}

func textEvent(sender, body string) Event {
	return Event{
		Type:    "m.room.message",
		Sender:  ref.MustParseUserID(sender),
		Content: map[string]any{"msgtype": "m.text", "body": body},
	}
}

func newTestConnector(t *testing.T, h *homeserver, room string, token string) *Connector {
	t.Helper()
	client, err := NewClient(ClientConfig{HomeserverURL: h.server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(ref.UserID{}, testBuffer(t, token))
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	connector, err := NewConnector(ConnectorConfig{
		Session:         session,
		Room:            room,
		RetryDelay:      time.Millisecond,
		MaxSyncFailures: 3,
	})
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}
	t.Cleanup(func() { connector.Close() })
	return connector
}

func connect(t *testing.T, connector *Connector) {
	t.Helper()
	if err := connector.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
}

// startListen runs Listen in the background and returns the channel of
// delivered messages and the channel carrying Listen's result.
func startListen(t *testing.T, ctx context.Context, connector *Connector) (<-chan chat.Message, <-chan error) {
	t.Helper()
	messages := make(chan chat.Message, 16)
	result := make(chan error, 1)
	go func() {
		result <- connector.Listen(ctx, func(_ context.Context, message chat.Message) {
			messages <- message
		})
	}()
	return messages, result
}

func TestNewConnectorValidation(t *testing.T) {
	session := &DirectSession{}
	tests := []struct {
		name   string
		config ConnectorConfig
	}{
		{name: "missing session", config: ConnectorConfig{Room: "!console:example.org"}},
		{name: "missing room", config: ConnectorConfig{Session: session}},
		{name: "bare room name", config: ConnectorConfig{Session: session, Room: "console"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewConnector(test.config); err == nil {
				t.Error("NewConnector succeeded, want error")
			}
		})
	}
}

func TestConnectorConnectByRoomID(t *testing.T) {
	h := newHomeserver(t)
	connector := newTestConnector(t, h, testRoom.String(), testToken)
	connect(t, connector)

	if connector.RoomID() != testRoom {
		t.Errorf("RoomID() = %s, want %s", connector.RoomID(), testRoom)
	}
	h.mu.Lock()
	joined := h.joined
	h.mu.Unlock()
	if len(joined) != 1 || joined[0] != testRoom.String() {
		t.Errorf("joined = %v, want [%s]", joined, testRoom)
	}
}

func TestConnectorConnectByAlias(t *testing.T) {
	h := newHomeserver(t)
	connector := newTestConnector(t, h, "#minecraft:example.org", testToken)
	connect(t, connector)

	if connector.RoomID() != testRoom {
		t.Errorf("RoomID() = %s, want alias resolved to %s", connector.RoomID(), testRoom)
	}
}

func TestConnectorConnectErrors(t *testing.T) {
	t.Run("rejected token", func(t *testing.T) {
		h := newHomeserver(t)
		connector := newTestConnector(t, h, testRoom.String(), "syt_wrong")
		err := connector.Connect(context.Background())
		if !IsMatrixError(err, ErrCodeUnknownToken) {
			t.Errorf("Connect error = %v, want M_UNKNOWN_TOKEN", err)
		}
	})

	t.Run("unknown alias", func(t *testing.T) {
		h := newHomeserver(t)
		connector := newTestConnector(t, h, "#nowhere:example.org", testToken)
		err := connector.Connect(context.Background())
		if !IsMatrixError(err, ErrCodeNotFound) {
			t.Errorf("Connect error = %v, want M_NOT_FOUND", err)
		}
	})

	t.Run("token for another user", func(t *testing.T) {
		h := newHomeserver(t)
		client, err := NewClient(ClientConfig{HomeserverURL: h.server.URL})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		session, err := client.SessionFromToken(ref.MustParseUserID("@other:example.org"), testBuffer(t, testToken))
		if err != nil {
			t.Fatalf("SessionFromToken failed: %v", err)
		}
		connector, err := NewConnector(ConnectorConfig{Session: session, Room: testRoom.String()})
		if err != nil {
			t.Fatalf("NewConnector failed: %v", err)
		}
		if err := connector.Connect(context.Background()); err == nil || !strings.Contains(err.Error(), "belongs to") {
			t.Errorf("Connect error = %v, want user mismatch", err)
		}
	})
}

func TestConnectorSend(t *testing.T) {
	h := newHomeserver(t)
	connector := newTestConnector(t, h, testRoom.String(), testToken)

	if err := connector.Send(context.Background(), "too early"); err == nil {
		t.Error("Send before Connect succeeded")
	}

	connect(t, connector)
	for _, text := range []string{"Steve joined the game", "Steve left the game"} {
		if err := connector.Send(context.Background(), text); err != nil {
			t.Fatalf("Send(%q) failed: %v", text, err)
		}
	}

	sent := h.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("homeserver received %d messages, want 2", len(sent))
	}
	for index, want := range []string{"Steve joined the game", "Steve left the game"} {
		if sent[index].MsgType != "m.text" || sent[index].Body != want {
			t.Errorf("message %d = %+v, want m.text %q", index, sent[index], want)
		}
	}
}

func TestConnectorSendFailure(t *testing.T) {
	h := newHomeserver(t)
	connector := newTestConnector(t, h, "!elsewhere:example.org", testToken)
	connect(t, connector)

	err := connector.Send(context.Background(), "hello")
	if !IsMatrixError(err, ErrCodeForbidden) {
		t.Errorf("Send error = %v, want M_FORBIDDEN", err)
	}
	if len(h.sentMessages()) != 0 {
		t.Error("failed send was recorded by the homeserver")
	}
}

func TestConnectorDisplayName(t *testing.T) {
	h := newHomeserver(t)
	h.displayNames["@alice:example.org"] = "Alice"
	h.displayNames["@blank:example.org"] = ""
	connector := newTestConnector(t, h, testRoom.String(), testToken)
	connect(t, connector)

	tests := []struct {
		name     string
		senderID string
		want     string
		wantErr  bool
	}{
		{name: "profile name", senderID: "@alice:example.org", want: "Alice"},
		{name: "empty profile name", senderID: "@blank:example.org", want: "blank"},
		{name: "no profile", senderID: "@ghost:example.org", want: "ghost"},
		{name: "malformed sender", senderID: "alice", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			name, err := connector.DisplayName(context.Background(), test.senderID)
			if (err != nil) != test.wantErr {
				t.Fatalf("DisplayName(%q) error = %v, wantErr %t", test.senderID, err, test.wantErr)
			}
			if name != test.want {
				t.Errorf("DisplayName(%q) = %q, want %q", test.senderID, name, test.want)
			}
		})
	}
}

// TestConnectorListen checks that history from before Listen is not
// replayed, and that own messages and non-text events are skipped.
func TestConnectorListen(t *testing.T) {
	h := newHomeserver(t)
	h.history = []Event{textEvent("@alice:example.org", "old news")}
	connector := newTestConnector(t, h, testRoom.String(), testToken)
	connect(t, connector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, result := startListen(t, ctx, connector)

	h.deliver(
		textEvent(testUser.String(), "[Server] Steve joined the game"),
		Event{
			Type:    "m.room.message",
			Sender:  ref.MustParseUserID("@alice:example.org"),
			Content: map[string]any{"msgtype": "m.notice", "body": "a notice"},
		},
		Event{
			Type:    "m.reaction",
			Sender:  ref.MustParseUserID("@alice:example.org"),
			Content: map[string]any{"body": "not a message"},
		},
		textEvent("@alice:example.org", ""),
		textEvent("@alice:example.org", "status"),
	)
	h.deliver(textEvent("@bob:example.org", "hi"))

	first := testutil.RequireReceive(t, messages, testTimeout, "waiting for first chat message")
	if first != (chat.Message{SenderID: "@alice:example.org", Text: "status"}) {
		t.Errorf("first message = %+v, want alice's status", first)
	}
	second := testutil.RequireReceive(t, messages, testTimeout, "waiting for second chat message")
	if second != (chat.Message{SenderID: "@bob:example.org", Text: "hi"}) {
		t.Errorf("second message = %+v, want bob's hi", second)
	}

	cancel()
	err := testutil.RequireReceive(t, result, testTimeout, "waiting for Listen to return")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Listen error = %v, want context.Canceled", err)
	}
	select {
	case extra := <-messages:
		t.Errorf("unexpected extra message %+v", extra)
	default:
	}

	queries := h.queries()
	if len(queries) < 2 {
		t.Fatalf("saw %d sync requests, want at least 2", len(queries))
	}
	if queries[0].Get("since") != "" || queries[0].Get("timeout") != "0" {
		t.Errorf("initial sync query = %v, want no since and timeout=0", queries[0])
	}
	if queries[1].Get("since") != "s1" || queries[1].Get("timeout") != "30000" {
		t.Errorf("long-poll query = %v, want since=s1 timeout=30000", queries[1])
	}
	if queries[0].Get("filter") == "" {
		t.Error("sync request carried no filter")
	}
}

func TestConnectorListenRetriesTransientFailures(t *testing.T) {
	h := newHomeserver(t)
	h.failSyncs = 2
	connector := newTestConnector(t, h, testRoom.String(), testToken)
	connect(t, connector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, result := startListen(t, ctx, connector)

	h.deliver(textEvent("@alice:example.org", "still here"))
	message := testutil.RequireReceive(t, messages, testTimeout, "waiting for message after retries")
	if message.Text != "still here" {
		t.Errorf("message = %+v, want %q", message, "still here")
	}

	cancel()
	testutil.RequireReceive(t, result, testTimeout, "waiting for Listen to return")
}

func TestConnectorListenWaitsRetryDelay(t *testing.T) {
	h := newHomeserver(t)
	h.failSyncs = 1
	client, err := NewClient(ClientConfig{HomeserverURL: h.server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(ref.UserID{}, testBuffer(t, testToken))
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	fake := clock.Fake(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))
	connector, err := NewConnector(ConnectorConfig{
		Session:    session,
		Room:       testRoom.String(),
		RetryDelay: time.Minute,
		Clock:      fake,
	})
	if err != nil {
		t.Fatalf("NewConnector failed: %v", err)
	}
	t.Cleanup(func() { connector.Close() })
	connect(t, connector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, result := startListen(t, ctx, connector)

	testutil.RequireReturns(t, func() bool {
		fake.WaitForTimers(1)
		return true
	}, testTimeout, "retry timer armed")
	if got := len(h.queries()); got != 1 {
		t.Errorf("saw %d sync requests before the retry delay, want 1", got)
	}

	fake.Advance(time.Minute)
	h.deliver(textEvent("@alice:example.org", "after the pause"))
	message := testutil.RequireReceive(t, messages, testTimeout, "waiting for message after retry delay")
	if message.Text != "after the pause" {
		t.Errorf("message = %+v, want %q", message, "after the pause")
	}

	cancel()
	testutil.RequireReceive(t, result, testTimeout, "waiting for Listen to return")
}

func TestConnectorListenSessionError(t *testing.T) {
	h := newHomeserver(t)
	h.failSyncs = 100
	connector := newTestConnector(t, h, testRoom.String(), testToken)
	connect(t, connector)

	_, result := startListen(t, context.Background(), connector)
	err := testutil.RequireReceive(t, result, testTimeout, "waiting for Listen to give up")
	if err == nil || !strings.Contains(err.Error(), "3 consecutive times") {
		t.Errorf("Listen error = %v, want failure after 3 consecutive syncs", err)
	}
	if !IsMatrixError(err, ErrCodeUnknown) {
		t.Errorf("Listen error = %v, want wrapped M_UNKNOWN", err)
	}
	if got := len(h.queries()); got != 3 {
		t.Errorf("saw %d sync requests, want 3", got)
	}
}

func TestConnectorListenBeforeConnect(t *testing.T) {
	h := newHomeserver(t)
	connector := newTestConnector(t, h, testRoom.String(), testToken)
	if err := connector.Listen(context.Background(), func(context.Context, chat.Message) {}); err == nil {
		t.Error("Listen before Connect succeeded")
	}
}

func TestConnectorCloseIsIdempotent(t *testing.T) {
	h := newHomeserver(t)
	connector := newTestConnector(t, h, testRoom.String(), testToken)
	connect(t, connector)
	for range 2 {
		if err := connector.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}
}

func TestConnectorCallsAfterClose(t *testing.T) {
	h := newHomeserver(t)
	connector := newTestConnector(t, h, testRoom.String(), testToken)
	connect(t, connector)
	if err := connector.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := connector.Send(context.Background(), "too late"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send after Close = %v, want ErrSessionClosed", err)
	}
	if _, err := connector.DisplayName(context.Background(), "@alice:example.org"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("DisplayName after Close = %v, want ErrSessionClosed", err)
	}
	err := connector.Listen(context.Background(), func(context.Context, chat.Message) {})
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Listen after Close = %v, want ErrSessionClosed", err)
	}
	if sent := h.sentMessages(); len(sent) != 0 {
		t.Errorf("homeserver received %d messages after Close", len(sent))
	}
}

func TestConnectorCloseStopsListen(t *testing.T) {
	h := newHomeserver(t)
	connector := newTestConnector(t, h, testRoom.String(), testToken)
	connect(t, connector)

	_, result := startListen(t, context.Background(), connector)
	testutil.RequireReceive(t, h.polling, testTimeout, "waiting for the long-poll to park")

	if err := connector.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := testutil.RequireReceive(t, result, testTimeout, "waiting for Listen to return after Close"); err != nil {
		t.Errorf("Listen after Close = %v, want nil", err)
	}
}

func TestMessageSyncFilter(t *testing.T) {
	var filter struct {
		Room struct {
			Rooms    []string `json:"rooms"`
			Timeline struct {
				Types []string `json:"types"`
				Limit int      `json:"limit"`
			} `json:"timeline"`
			State struct {
				Types []string `json:"types"`
			} `json:"state"`
		} `json:"room"`
	}
	if err := json.Unmarshal([]byte(messageSyncFilter(testRoom)), &filter); err != nil {
		t.Fatalf("filter is not valid JSON: %v", err)
	}
	if len(filter.Room.Rooms) != 1 || filter.Room.Rooms[0] != testRoom.String() {
		t.Errorf("rooms = %v, want [%s]", filter.Room.Rooms, testRoom)
	}
	if len(filter.Room.Timeline.Types) != 1 || filter.Room.Timeline.Types[0] != "m.room.message" {
		t.Errorf("timeline types = %v, want [m.room.message]", filter.Room.Timeline.Types)
	}
	if filter.Room.Timeline.Limit != messageTimelineLimit {
		t.Errorf("timeline limit = %d, want %d", filter.Room.Timeline.Limit, messageTimelineLimit)
	}
	if filter.Room.State.Types == nil || len(filter.Room.State.Types) != 0 {
		t.Errorf("state types = %v, want empty list", filter.Room.State.Types)
	}
}
