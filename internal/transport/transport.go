// Package transport is the socket boundary under the connection manager.
package transport

import "context"

// Close codes used by the client.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	// CloseAbnormal is reported locally when the connection drops without a
	// close frame. It is never sent.
	CloseAbnormal = 1006
)

// Frame is one websocket message. Binary frames carry heartbeats; every
// envelope travels as text.
type Frame struct {
	Binary bool
	Data   []byte
}

// Handlers receive socket events. OnMessage is called from a single reader
// goroutine in arrival order. OnClose is called at most once.
type Handlers struct {
	OnMessage func(Frame)
	OnClose   func(code int, reason string)
}

// Socket is an open connection.
type Socket interface {
	Send(ctx context.Context, f Frame) error
	Close(code int, reason string) error
}

// Transport opens sockets. Open blocks until the handshake completes.
type Transport interface {
	Open(ctx context.Context, h Handlers) (Socket, error)
}
