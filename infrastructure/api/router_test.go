package api

import (
	"campus-relay/domain"
	"campus-relay/infrastructure/search"
	"campus-relay/repositories"
	"campus-relay/services"
	"context"
	goerrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, checks map[string]HealthCheck) (*httptest.Server, *search.Index) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repositories.NewConversationRepository(db, log, nil)
	index, err := search.Open("", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	server := httptest.NewServer(NewRouter(log, services.NewChatService(store, index, log), ws, checks).Handler())
	t.Cleanup(server.Close)
	return server, index
}

func post(t *testing.T, server *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/conversations", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func Test_Request_Chat_Then_Conflict(t *testing.T) {
	req := require.New(t)
	server, _ := newServer(t, nil)
	body := `{"itemId":"i1","buyerId":"b1","sellerId":"s1"}`

	// Given a first request
	resp, created := post(t, server, body)
	req.Equal(http.StatusCreated, resp.StatusCode)
	req.Equal(string(domain.StatusPending), created["status"])

	// When the buyer asks again for the same item
	resp, conflict := post(t, server, body)

	// Then the existing conversation is returned for redirection
	req.Equal(http.StatusConflict, resp.StatusCode)
	req.Equal("conflict", conflict["code"])
	req.Equal(created["id"], conflict["existingConversationId"])
}

func Test_Request_Chat_Rejected(t *testing.T) {
	req := require.New(t)
	server, _ := newServer(t, nil)

	for _, body := range []string{
		`{"itemId":"i1","buyerId":"b1","sellerId":"b1"}`,
		`{"itemId":"","buyerId":"b1","sellerId":"s1"}`,
		`not json`,
	} {
		resp, decoded := post(t, server, body)
		req.Equal(http.StatusBadRequest, resp.StatusCode, body)
		req.Equal("validation_error", decoded["code"])
	}
}

func Test_Transcript_And_Listing(t *testing.T) {
	req := require.New(t)
	server, _ := newServer(t, nil)

	_, created := post(t, server, `{"itemId":"i1","buyerId":"b1","sellerId":"s1"}`)

	resp, err := http.Get(server.URL + "/api/conversations/" + created["id"].(string) + "/messages")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	var transcript transcriptResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&transcript))
	req.Empty(transcript.Messages)
	req.Nil(transcript.Cursor)

	missing, err := http.Get(server.URL + "/api/conversations/missing/messages")
	req.NoError(err)
	defer missing.Body.Close()
	req.Equal(http.StatusNotFound, missing.StatusCode)

	list, err := http.Get(server.URL + "/api/users/s1/conversations")
	req.NoError(err)
	defer list.Body.Close()
	var conversations []domain.Conversation
	req.NoError(json.NewDecoder(list.Body).Decode(&conversations))
	req.Len(conversations, 1)
}

func Test_Health_And_Routes(t *testing.T) {
	req := require.New(t)
	healthy := true
	server, _ := newServer(t, map[string]HealthCheck{
		"store": func() error {
			if healthy {
				return nil
			}
			return goerrors.New("circuit open")
		},
	})

	resp, err := http.Get(server.URL + "/healthz")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	healthy = false
	resp, err = http.Get(server.URL + "/healthz")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/ws")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusTeapot, resp.StatusCode)
}

func Test_Search_Transcript(t *testing.T) {
	req := require.New(t)
	server, index := newServer(t, nil)
	_, created := post(t, server, `{"itemId":"i1","buyerId":"b1","sellerId":"s1"}`)
	id := domain.ConversationID(created["id"].(string))

	// Given an indexed message of the conversation
	message := domain.Message{ID: uuid.New(), ConversationID: id, SenderID: "b1",
		Content: "Can you drop the bike near the library?", CreatedAt: time.Now().UTC()}
	req.NoError(index.Index(context.Background(), message))

	// When searching its content
	resp, err := http.Get(server.URL + "/api/conversations/" + string(id) + "/search?q=library")
	req.NoError(err)
	defer resp.Body.Close()

	// Then the message is found
	req.Equal(http.StatusOK, resp.StatusCode)
	var hits []domain.SearchHit
	req.NoError(json.NewDecoder(resp.Body).Decode(&hits))
	req.Len(hits, 1)
	req.Equal(message.ID, hits[0].MessageID)

	// And malformed searches are refused
	for _, query := range []string{"?q=", "?q=bike&limit=x"} {
		bad, err := http.Get(server.URL + "/api/conversations/" + string(id) + "/search" + query)
		req.NoError(err)
		bad.Body.Close()
		req.Equal(http.StatusBadRequest, bad.StatusCode, query)
	}

	missing, err := http.Get(server.URL + "/api/conversations/missing/search?q=bike")
	req.NoError(err)
	missing.Body.Close()
	req.Equal(http.StatusNotFound, missing.StatusCode)
}
