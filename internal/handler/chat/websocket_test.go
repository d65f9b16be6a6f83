package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aisouls/backend/internal/model/chat"
)

func dialSession(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + sessionID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Data      map[string]any `json:"data"`
	Error     string         `json:"error"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocketConversation(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{})
	server := httptest.NewServer(r)
	defer server.Close()

	resp := doJSON(t, r, http.MethodPost, "/session", map[string]string{"persona": "Leonardo da Vinci"})
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decode[chat.Snapshot](t, resp)

	conn := dialSession(t, server, created.ID)

	hello := readFrame(t, conn)
	assert.Equal(t, frameSession, hello.Type)
	assert.Equal(t, created.ID, hello.SessionID)
	assert.Equal(t, false, hello.Data["started"])

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "start"}))
	started := readFrame(t, conn)
	assert.Equal(t, frameSession, started.Type)
	assert.Equal(t, true, started.Data["started"])

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "message", Content: "What is beauty?"}))
	assert.Equal(t, frameThinking, readFrame(t, conn).Type)
	reply := readFrame(t, conn)
	assert.Equal(t, frameReply, reply.Type)
	assert.Equal(t, `answer to "What is beauty?"`, reply.Data["content"])

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "message", Content: " "}))
	assert.Equal(t, frameThinking, readFrame(t, conn).Type)
	failed := readFrame(t, conn)
	assert.Equal(t, frameError, failed.Type)
	assert.NotEmpty(t, failed.Error)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "dance"}))
	assert.Equal(t, frameError, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "select", Persona: "Jesus Christ"}))
	switched := readFrame(t, conn)
	assert.Equal(t, frameSession, switched.Type)
	assert.Equal(t, "Jesus Christ", switched.Data["persona"])
	assert.Equal(t, false, switched.Data["started"])
}

func TestWebSocketSelectWithoutPersonaKeepsConversation(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{})
	server := httptest.NewServer(r)
	defer server.Close()

	started := createStartedSession(t, r, "Nikola Tesla")
	conn := dialSession(t, server, started.ID)
	require.Equal(t, frameSession, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "message", Content: "What powers the world?"}))
	assert.Equal(t, frameThinking, readFrame(t, conn).Type)
	require.Equal(t, frameReply, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "select"}))
	rejected := readFrame(t, conn)
	assert.Equal(t, frameError, rejected.Type)
	assert.Equal(t, "persona is required", rejected.Error)

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "state"}))
	state := readFrame(t, conn)
	assert.Equal(t, frameSession, state.Type)
	assert.Equal(t, "Nikola Tesla", state.Data["persona"])
	assert.Equal(t, true, state.Data["started"])
	assert.Len(t, state.Data["turns"], 3)
}

func TestWebSocketUnknownSession(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{})
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
