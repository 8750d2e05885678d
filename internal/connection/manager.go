// Package connection owns the single long-lived socket to the relay: dialing,
// heartbeats, and fixed-interval reconnection.
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/metrics"
	"github.com/changyunjeff/campus-mp/internal/protocol"
	"github.com/changyunjeff/campus-mp/internal/transport"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Dispatcher receives every decoded inbound envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, env protocol.Envelope)
}

type Config struct {
	HeartbeatInterval time.Duration
	ReconnectInterval time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ReconnectInterval: 10 * time.Second,
		DialTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// Manager is the connection state machine. All fields below mu are guarded by it.
//
// gen identifies the current socket (or dial attempt). Callbacks and timers
// carry the generation they were created for and do nothing once it moves on,
// so a closed socket can never schedule a second reconnect.
type Manager struct {
	transport transport.Transport
	dispatch  Dispatcher
	identity  domain.IdentityProvider
	clock     clock.Clock
	cfg       Config
	logger    *zap.Logger

	mu              sync.Mutex
	state           State
	socket          transport.Socket
	gen             uint64
	earlyClose      bool
	inflight        chan struct{}
	shouldReconnect bool
	attempts        int
	reconnectTimer  *clock.Timer
	reconnectSeq    uint64
	heartbeatStop   chan struct{}
}

func New(tr transport.Transport, d Dispatcher, id domain.IdentityProvider, clk clock.Clock, cfg Config, logger *zap.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Manager{
		transport:       tr,
		dispatch:        d,
		identity:        id,
		clock:           clk,
		cfg:             cfg,
		logger:          logger,
		shouldReconnect: true,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool { return m.State() == Connected }

// Attempts is the number of consecutive failed dials since the last success.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Connect opens the socket. It returns immediately when already connected or
// when a reconnect is pending, and waits for an attempt already in flight.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Connected, Reconnecting:
		m.mu.Unlock()
		return nil
	case Connecting:
		wait := m.inflight
		m.mu.Unlock()
		select {
		case <-wait:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	gen, done := m.beginDialLocked()
	m.mu.Unlock()
	return m.dial(ctx, gen, done)
}

// Disconnect closes the socket with a normal closure and disables
// automatic reconnection until EnableReconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.shouldReconnect = false
	m.cancelReconnectLocked()
	m.stopHeartbeatLocked()
	m.gen++
	sock := m.socket
	m.socket = nil
	m.setStateLocked(Disconnected)
	m.mu.Unlock()

	if sock != nil {
		if err := sock.Close(transport.CloseNormal, "client disconnect"); err != nil {
			m.logger.Debug("ws_close_failed", zap.Error(err))
		}
	}
	m.logger.Info("ws_disconnected")
}

// EnableReconnect re-arms automatic recovery, typically after a fresh login.
func (m *Manager) EnableReconnect() {
	m.mu.Lock()
	m.shouldReconnect = true
	m.mu.Unlock()
}

// Send writes an envelope, connecting first if needed. It returns
// ErrNotConnected when no connection could be established.
func (m *Manager) Send(ctx context.Context, p protocol.Payload) error {
	if err := m.Connect(ctx); err != nil {
		return err
	}
	return m.TrySend(ctx, p)
}

// TrySend writes an envelope only if a connection is already up.
func (m *Manager) TrySend(ctx context.Context, p protocol.Payload) error {
	m.mu.Lock()
	sock, state := m.socket, m.state
	m.mu.Unlock()
	if state != Connected || sock == nil {
		return domain.ErrNotConnected
	}

	data, err := protocol.Encode(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.Kind(), err)
	}
	if err := m.write(ctx, sock, transport.Frame{Data: data}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	metrics.MessagesSent.WithLabelValues(p.Kind().String()).Inc()
	return nil
}

func (m *Manager) write(ctx context.Context, sock transport.Socket, f transport.Frame) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.WriteTimeout)
		defer cancel()
	}
	return sock.Send(ctx, f)
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	metrics.ConnectionState.Set(float64(s))
}

func (m *Manager) beginDialLocked() (uint64, chan struct{}) {
	m.gen++
	m.earlyClose = false
	done := make(chan struct{})
	m.inflight = done
	m.setStateLocked(Connecting)
	return m.gen, done
}

func (m *Manager) dial(ctx context.Context, gen uint64, done chan struct{}) error {
	defer close(done)

	dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	sock, err := m.transport.Open(dctx, transport.Handlers{
		OnMessage: func(f transport.Frame) { m.handleFrame(gen, f) },
		OnClose:   func(code int, reason string) { m.handleClose(gen, code, reason) },
	})
	cancel()

	m.mu.Lock()
	if m.inflight == done {
		m.inflight = nil
	}
	if gen != m.gen {
		// Disconnected while dialing.
		m.mu.Unlock()
		if sock != nil {
			sock.Close(transport.CloseNormal, "client disconnect")
		}
		return domain.ErrNotConnected
	}
	if err == nil && m.earlyClose {
		err = fmt.Errorf("socket closed during handshake")
	}
	if err != nil {
		m.attempts++
		attempt := m.attempts
		m.gen++
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		if sock != nil {
			sock.Close(transport.CloseGoingAway, "handshake aborted")
		}
		m.logger.Warn("ws_connect_failed", zap.Int("attempt", attempt), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}

	m.socket = sock
	m.attempts = 0
	m.setStateLocked(Connected)
	m.cancelReconnectLocked()
	m.startHeartbeatLocked(gen, sock)
	m.mu.Unlock()

	m.logger.Info("ws_connected")
	m.requestOffline(ctx, sock)
	return nil
}

// requestOffline asks the relay to flush envelopes queued while we were away.
func (m *Manager) requestOffline(ctx context.Context, sock transport.Socket) {
	if m.identity == nil || m.identity.Identity() == "" {
		return
	}
	data, err := protocol.Encode(protocol.FetchOffline{
		From:      m.identity.Identity(),
		Timestamp: m.clock.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	if err := m.write(context.WithoutCancel(ctx), sock, transport.Frame{Data: data}); err != nil {
		m.logger.Warn("fetch_offline_failed", zap.Error(err))
	}
}

func (m *Manager) handleFrame(gen uint64, f transport.Frame) {
	m.mu.Lock()
	current := gen == m.gen
	m.mu.Unlock()
	if !current {
		return
	}
	if f.Binary {
		return
	}
	env, err := protocol.Decode(f.Data)
	if err != nil {
		metrics.DroppedFrames.Inc()
		m.logger.Warn("ws_frame_dropped", zap.Int("bytes", len(f.Data)), zap.Error(err))
		return
	}
	m.dispatch.Dispatch(context.Background(), env)
}

func (m *Manager) handleClose(gen uint64, code int, reason string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.state == Connecting {
		m.earlyClose = true
		m.mu.Unlock()
		return
	}
	m.socket = nil
	m.stopHeartbeatLocked()
	m.gen++
	m.scheduleReconnectLocked()
	state := m.state
	m.mu.Unlock()

	m.logger.Warn("ws_closed", zap.Int("code", code), zap.String("reason", reason), zap.Stringer("next", state))
}

// fail tears down the current socket after a write error on the heartbeat.
func (m *Manager) fail(gen uint64, sock transport.Socket, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.socket = nil
	m.stopHeartbeatLocked()
	m.gen++
	m.setStateLocked(Disconnected)
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	m.logger.Warn("ws_heartbeat_failed", zap.Error(cause))
	sock.Close(transport.CloseGoingAway, "heartbeat failed")
}

// scheduleReconnectLocked arms the single reconnect timer, or settles in
// Disconnected when reconnection is disabled.
func (m *Manager) scheduleReconnectLocked() {
	if !m.shouldReconnect {
		m.setStateLocked(Disconnected)
		return
	}
	m.setStateLocked(Reconnecting)
	if m.reconnectTimer != nil {
		return
	}
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.reconnectTimer = m.clock.AfterFunc(m.cfg.ReconnectInterval, func() { m.fireReconnect(seq) })
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectSeq++
}

func (m *Manager) fireReconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.reconnectSeq {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	if !m.shouldReconnect || m.state != Reconnecting {
		m.mu.Unlock()
		return
	}
	gen, done := m.beginDialLocked()
	attempt := m.attempts
	m.mu.Unlock()

	metrics.Reconnects.Inc()
	m.logger.Info("ws_reconnecting", zap.Int("attempt", attempt+1))
	_ = m.dial(context.Background(), gen, done)
}

func (m *Manager) startHeartbeatLocked(gen uint64, sock transport.Socket) {
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.heartbeatStop = stop
	ticker := m.clock.Ticker(m.cfg.HeartbeatInterval)
	go m.heartbeat(gen, sock, ticker, stop)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

func (m *Manager) heartbeat(gen uint64, sock transport.Socket, ticker *clock.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := m.write(context.Background(), sock, transport.Frame{Binary: true, Data: protocol.PingFrame()})
			if err != nil {
				m.fail(gen, sock, err)
				return
			}
		}
	}
}
