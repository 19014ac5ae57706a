package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/game"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// Unreliable frames are dropped while this many frames are waiting.
	unreliableBacklog = 64
	// Sessions with this many waiting frames are disconnected.
	maxBacklog = 4096

	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 20 * time.Second
)

// session is one connected websocket client.
type session struct {
	id     game.ClientID
	conn   *websocket.Conn
	logger *slog.Logger

	mutex    sync.Mutex
	pos      r3.Vec
	pending  [][]byte
	dropped  int
	overflow bool
	notify   chan struct{}
}

func newSession(id game.ClientID, conn *websocket.Conn, logger *slog.Logger) *session {
	return &session{
		id:     id,
		conn:   conn,
		logger: logger.With("session", id),
		notify: make(chan struct{}, 1),
	}
}

func (s *session) position() r3.Vec {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.pos
}

func (s *session) setPosition(pos r3.Vec) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.pos = pos
}

// send queues a frame. Reliable frames are always queued, unreliable ones
// only while the backlog is short. Returns whether the frame was queued.
func (s *session) send(frame []byte, reliable bool) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !reliable && len(s.pending) >= unreliableBacklog {
		s.dropped++
		return false
	}
	if len(s.pending) >= maxBacklog {
		s.overflow = true
	}
	s.pending = append(s.pending, frame)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

func (s *session) take() ([][]byte, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	frames := s.pending
	s.pending = nil
	return frames, s.overflow
}

// writeLoop writes queued frames until ctx is done or writing fails.
func (s *session) writeLoop(ctx context.Context) error {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return juicevox.WithStack(err)
			}
		case <-s.notify:
			frames, overflow := s.take()
			if overflow {
				return juicevox.WithStack(errBacklog)
			}
			for _, frame := range frames {
				if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
					return juicevox.WithStack(err)
				}
				if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
					return juicevox.WithStack(err)
				}
			}
		}
	}
}

// readLoop handles frames from the client until the connection fails.
func (s *session) readLoop() error {
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return juicevox.WithStack(err)
		}
		typ, msg, err := s.conn.ReadMessage()
		if err != nil {
			return juicevox.WithStack(err)
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if err := s.handle(msg); err != nil {
			s.logger.Debug("bad frame from client", "err", err)
		}
	}
}

func (s *session) handle(msg []byte) error {
	cmd, r, err := DecodeCommand(msg)
	if err != nil {
		return err
	}
	switch cmd {
	case ToServerPlayerPos:
		pos, err := DecodePlayerPos(r)
		if err != nil {
			return err
		}
		s.setPosition(pos)
		return nil
	}
	return juicevox.WithStack(ErrUnknownCommand)
}
