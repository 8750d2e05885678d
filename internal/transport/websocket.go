package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const closeWriteWait = time.Second

// WebSocket dials a fixed URL with a bearer token.
type WebSocket struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewWebSocket(url, token string, logger *zap.Logger) *WebSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WebSocket{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ Transport = (*WebSocket)(nil)

func (w *WebSocket) Open(ctx context.Context, h Handlers) (Socket, error) {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", w.url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", w.url, err)
	}
	s := &wsSocket{conn: conn, logger: w.logger}
	go s.readLoop(h)
	return s, nil
}

type wsSocket struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *wsSocket) readLoop(h Handlers) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			code, reason := CloseAbnormal, err.Error()
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code, reason = ce.Code, ce.Text
			}
			s.conn.Close()
			if h.OnClose != nil {
				h.OnClose(code, reason)
			}
			return
		}
		if h.OnMessage != nil {
			h.OnMessage(Frame{Binary: mt == websocket.BinaryMessage, Data: data})
		}
	}
}

func (s *wsSocket) Send(ctx context.Context, f Frame) error {
	mt := websocket.TextMessage
	if f.Binary {
		mt = websocket.BinaryMessage
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(mt, f.Data)
}

// Close sends a close frame with the given code and tears the connection down.
func (s *wsSocket) Close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		msg := websocket.FormatCloseMessage(code, reason)
		if werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait)); werr != nil {
			s.logger.Debug("ws_close_frame_failed", zap.Error(werr))
		}
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
