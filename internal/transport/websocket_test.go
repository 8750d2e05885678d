package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/changyunjeff/campus-mp/internal/transport"
)

func echoServer(t *testing.T, gotAuth chan<- string, closeCodes chan<- int) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					closeCodes <- ce.Code
				}
				return
			}
			if string(data) == "bye" {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4001, "kicked"))
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func TestWebSocket(t *testing.T) {
	auth := make(chan string, 4)
	codes := make(chan int, 4)
	srv := echoServer(t, auth, codes)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("EchoAndNormalClose", func(t *testing.T) {
		frames := make(chan transport.Frame, 4)
		tr := transport.NewWebSocket(wsURL(srv), "tok", nil)
		sock, err := tr.Open(ctx, transport.Handlers{OnMessage: func(f transport.Frame) { frames <- f }})
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok", <-auth)

		require.NoError(t, sock.Send(ctx, transport.Frame{Data: []byte(`{"type":1}`)}))
		require.NoError(t, sock.Send(ctx, transport.Frame{Binary: true, Data: []byte{0x09}}))

		f := <-frames
		assert.False(t, f.Binary)
		assert.Equal(t, `{"type":1}`, string(f.Data))
		f = <-frames
		assert.True(t, f.Binary)

		require.NoError(t, sock.Close(transport.CloseNormal, "bye"))
		select {
		case code := <-codes:
			assert.Equal(t, websocket.CloseNormalClosure, code)
		case <-time.After(2 * time.Second):
			t.Fatal("server did not see close frame")
		}
	})

	t.Run("ServerCloseReportsCode", func(t *testing.T) {
		closed := make(chan int, 1)
		tr := transport.NewWebSocket(wsURL(srv), "", nil)
		sock, err := tr.Open(ctx, transport.Handlers{OnClose: func(code int, _ string) { closed <- code }})
		require.NoError(t, err)
		<-auth

		require.NoError(t, sock.Send(ctx, transport.Frame{Data: []byte("bye")}))
		select {
		case code := <-closed:
			assert.Equal(t, 4001, code)
		case <-time.After(2 * time.Second):
			t.Fatal("no close callback")
		}
	})

	t.Run("DialFailure", func(t *testing.T) {
		tr := transport.NewWebSocket("ws://127.0.0.1:1/ws", "", nil)
		_, err := tr.Open(ctx, transport.Handlers{})
		assert.Error(t, err)
	})
}
