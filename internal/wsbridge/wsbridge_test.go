package wsbridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/sdrcore/internal/fanout"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func newServerConn(t *testing.T) (server *Conn, client *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-connCh
	t.Cleanup(func() { serverConn.Close() })

	return NewConn(serverConn), clientConn
}

func TestDeliverWritesBinaryFrame(t *testing.T) {
	server, client := newServerConn(t)

	require.NoError(t, server.Deliver(fanout.Message{Binary: []byte("hello")}))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, []byte("hello"), data)
}

func TestDeliverWritesJSONFrame(t *testing.T) {
	server, client := newServerConn(t)

	require.NoError(t, server.Deliver(fanout.Message{JSON: map[string]string{"type": "ping"}}))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Contains(t, string(data), `"type":"ping"`)
}

func TestBindRegistersSubscriberOnChannel(t *testing.T) {
	server, client := newServerConn(t)
	ch := fanout.NewChannel(fanout.KindMain)

	server.Bind(ch, 1, fanout.KindMain)
	require.Equal(t, 1, ch.Len())

	ch.Broadcast(fanout.Message{Binary: []byte("x")})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestReadControlInvokesHandlerPerMessage(t *testing.T) {
	server, client := newServerConn(t)

	type ctrlMsg struct {
		Type string `json:"type"`
	}
	received := make(chan ctrlMsg, 1)
	done := make(chan error, 1)
	go func() {
		done <- ReadControl[ctrlMsg](server, func(m ctrlMsg) { received <- m })
	}()

	require.NoError(t, client.WriteJSON(ctrlMsg{Type: "tune"}))

	select {
	case m := <-received:
		assert.Equal(t, "tune", m.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for control message")
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadControl did not return after client close")
	}
}
