package websocket

import (
	"campus-relay/auth"
	"campus-relay/domain"
	"campus-relay/domain/event"
	"campus-relay/repositories"
	"campus-relay/runtime"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type relay struct {
	server    *httptest.Server
	store     repositories.ConversationRepository
	lifecycle *runtime.Lifecycle
}

func startRelay(t *testing.T, tokens TokenValidator, cfg Config) relay {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repositories.NewConversationRepository(db, log, nil)
	presence := runtime.NewPresenceRegistry()
	router := runtime.NewRoomRouter(log)
	delivery := runtime.NewDelivery(log, router, presence, nil)
	lifecycle := runtime.NewLifecycle(log, presence, router, delivery)
	dispatcher := runtime.NewDispatcher(log, store, presence, router, lifecycle, delivery)

	server := httptest.NewServer(NewHandler(log, lifecycle, dispatcher, tokens, cfg))
	t.Cleanup(server.Close)
	return relay{server: server, store: store, lifecycle: lifecycle}
}

func (r relay) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, name, ref string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(event.Frame{Event: name, Data: payload, Ref: ref})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// next reads frames until one named name arrives.
func next(t *testing.T, conn *websocket.Conn, name string) event.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", name)
		var frame event.Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		if frame.Event == name {
			return frame
		}
	}
}

// nextStatus reads frames until the presence change of user arrives.
func nextStatus(t *testing.T, conn *websocket.Conn, user domain.UserID) event.UserStatusChanged {
	t.Helper()
	for {
		frame := next(t, conn, event.NameUserStatusChanged)
		var changed event.UserStatusChanged
		require.NoError(t, json.Unmarshal(frame.Data, &changed))
		if changed.UserID == user {
			return changed
		}
	}
}

func (r relay) waitConnections(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.lifecycle.Connections() == n }, time.Second, 5*time.Millisecond)
}

func Test_Message_Relayed_Between_Participants(t *testing.T) {
	req := require.New(t)
	r := startRelay(t, nil, Config{})
	participants, err := domain.NewParticipants("b1", "s1")
	req.NoError(err)
	conv, err := r.store.CreateConversation(context.Background(), participants, "i1")
	req.NoError(err)

	// Given the buyer and the seller online in the conversation room
	buyer := r.dial(t, "/")
	seller := r.dial(t, "/")
	send(t, buyer, domain.CommandOnline, "", domain.OnlineCommand{UserID: "b1"})
	send(t, seller, domain.CommandOnline, "", domain.OnlineCommand{UserID: "s1"})
	nextStatus(t, buyer, "b1")
	nextStatus(t, seller, "s1")
	send(t, buyer, domain.CommandJoinConversation, "", domain.JoinChatCommand{ConversationID: conv.ID})
	send(t, seller, domain.CommandJoinChat, "", domain.JoinChatCommand{ConversationID: conv.ID})

	// When the buyer sends a message
	send(t, buyer, domain.CommandSendMessage, "m1", domain.SendMessageCommand{
		ConversationID: conv.ID, SenderID: "b1", Content: "Is the lamp still available?",
	})

	// Then the seller receives the persisted message
	frame := next(t, seller, event.NameReceiveMessage)
	var message domain.Message
	req.NoError(json.Unmarshal(frame.Data, &message))
	req.Equal("Is the lamp still available?", message.Content)
	req.EqualValues("b1", message.SenderID)
	req.EqualValues("s1", message.ReceiverID)

	// And it is part of the transcript
	stored, err := r.store.GetConversation(context.Background(), conv.ID)
	req.NoError(err)
	req.Equal(message.ID, stored.MessageIDs[0])
}

func Test_Errors_Only_Reach_The_Sender(t *testing.T) {
	req := require.New(t)
	r := startRelay(t, nil, Config{})

	conn := r.dial(t, "/")

	// When an unknown event arrives
	send(t, conn, "dance", "r1", map[string]string{})

	// Then an error correlated by ref comes back
	frame := next(t, conn, event.NameError)
	var raised event.ErrorRaised
	req.NoError(json.Unmarshal(frame.Data, &raised))
	req.Equal("validation_error", raised.Code)
	req.Equal("r1", raised.Ref)
	req.Equal("dance", raised.Event)

	// And the connection stays usable
	send(t, conn, "ping", "", nil)
	next(t, conn, event.NamePong)
}

func Test_Rate_Limited_Connection(t *testing.T) {
	req := require.New(t)
	r := startRelay(t, nil, Config{RateLimit: 0.001, RateBurst: 1})

	conn := r.dial(t, "/")
	send(t, conn, "ping", "", nil)
	next(t, conn, event.NamePong)

	// The burst is spent, the next frame is refused
	send(t, conn, "ping", "p2", nil)
	frame := next(t, conn, event.NameError)
	var raised event.ErrorRaised
	req.NoError(json.Unmarshal(frame.Data, &raised))
	req.Equal("rate_limited", raised.Code)
}

func Test_Token_Binds_The_Connection(t *testing.T) {
	req := require.New(t)
	tokens := auth.NewTokenManager("a-long-enough-test-secret")
	r := startRelay(t, tokens, Config{})

	// Given no token, the upgrade is refused
	url := "ws" + strings.TrimPrefix(r.server.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	// Given a valid token, the user is online as soon as the connection opens
	token, err := tokens.GenerateToken("b1", time.Minute)
	req.NoError(err)
	watcherToken, err := tokens.GenerateToken("w1", time.Minute)
	req.NoError(err)
	watcher := r.dial(t, "/?token="+watcherToken)
	r.waitConnections(t, 1)
	conn := r.dial(t, "/?token="+token)

	changed := nextStatus(t, watcher, "b1")
	req.Equal(event.UserStatusChanged{UserID: "b1", Status: domain.Online}, changed)

	// And the connection cannot claim another identity
	send(t, conn, domain.CommandOnline, "o1", domain.OnlineCommand{UserID: "s1"})
	frame := next(t, conn, event.NameError)
	var raised event.ErrorRaised
	req.NoError(json.Unmarshal(frame.Data, &raised))
	req.Equal("validation_error", raised.Code)
}

func Test_Closing_The_Socket_Disconnects(t *testing.T) {
	req := require.New(t)
	r := startRelay(t, nil, Config{})

	watcher := r.dial(t, "/")
	r.waitConnections(t, 1)
	conn := r.dial(t, "/")
	send(t, conn, domain.CommandOnline, "", domain.OnlineCommand{UserID: "b1"})
	req.Equal(domain.Online, nextStatus(t, watcher, "b1").Status)

	// When the client goes away
	req.NoError(conn.Close())

	// Then everybody learns it is offline
	req.Equal(domain.Offline, nextStatus(t, watcher, "b1").Status)
	r.waitConnections(t, 1)
}
