// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backdoor

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/litronsim/pkg/litron"
)

// Watch interval bounds
const (
	DefaultWatchInterval = 250 * time.Millisecond
	MinWatchInterval     = 10 * time.Millisecond
)

// Server serves the introspection channel of one device over WebSocket.
// It implements http.Handler.
type Server struct {
	bd       litron.Backdoor
	upgrader websocket.Upgrader
	username string
	password string
	log      logrus.FieldLogger
}

// Option configures a Server
type Option func(*Server)

// WithBasicAuth requires HTTP Basic credentials on the upgrade request
func WithBasicAuth(username, password string) Option {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// WithLogger sets the logger for session events
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) { s.log = log }
}

// NewServer creates a backdoor server for bd
func NewServer(bd litron.Backdoor, opts ...Option) *Server {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Server{
		bd:  bd,
		log: discard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) authorized(r *http.Request) bool {
	if s.username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) == 1
	return userOK && passOK
}

// ServeHTTP upgrades the request and serves requests until the peer
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="litronsim"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("backdoor upgrade failed")
		return
	}

	log := s.log.WithField("peer", r.RemoteAddr)
	log.Info("backdoor session opened")

	ctx, cancel := context.WithCancel(r.Context())
	sess := &session{srv: s, conn: conn, log: log}
	sess.serve(ctx)
	cancel()
	sess.stopWatch()
	conn.Close()

	log.Info("backdoor session closed")
}

// session is one WebSocket peer
type session struct {
	srv  *Server
	conn *websocket.Conn
	log  logrus.FieldLogger

	writeMu sync.Mutex

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func (s *session) serve(ctx context.Context) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Debug("backdoor read ended")
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		op, payload, err := ParseMessage(data)
		if err != nil {
			s.log.WithError(err).Warn("backdoor dropped message")
			continue
		}

		if err := s.handle(ctx, op, payload); err != nil {
			s.log.WithError(err).Debug("backdoor write failed")
			return
		}
	}
}

func (s *session) handle(ctx context.Context, op uint8, payload map[int]interface{}) error {
	bd := s.srv.bd
	reply := map[int]interface{}{}

	switch op {
	case OpGet:
		name, _ := GetMapString(payload, KeyField)
		reply[KeyField] = name
		v, err := bd.Get(name)
		if err != nil {
			reply[KeyError] = err.Error()
		} else {
			reply[KeyValue] = v
		}

	case OpSet:
		name, _ := GetMapString(payload, KeyField)
		value := normalizeValue(payload[KeyValue])
		reply[KeyField] = name
		if err := bd.Set(name, value); err != nil {
			reply[KeyError] = err.Error()
			s.log.WithFields(logrus.Fields{"field": name, "value": value}).WithError(err).Warn("backdoor set rejected")
		} else {
			s.log.WithFields(logrus.Fields{"field": name, "value": value}).Info("backdoor set")
		}

	case OpList:
		reply[KeyFields] = bd.Fields()

	case OpSnapshot:
		reply[KeySnapshot] = bd.Snapshot()

	case OpWatch:
		interval := DefaultWatchInterval
		if ms, ok := GetMapUint(payload, KeyInterval); ok && ms > 0 {
			interval = time.Duration(ms) * time.Millisecond
		}
		if interval < MinWatchInterval {
			interval = MinWatchInterval
		}
		s.startWatch(ctx, interval)
		return nil

	default:
		reply[KeyError] = ErrUnknownOp.Error()
	}

	return s.send(op|ReplyFlag, reply)
}

func (s *session) send(op uint8, payload map[int]interface{}) error {
	data, err := EncodeMessage(op, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// startWatch replaces any running watch with one at interval. The first
// snapshot is sent immediately.
func (s *session) startWatch(ctx context.Context, interval time.Duration) {
	s.stopWatch()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.watchMu.Lock()
	s.watchCancel = cancel
	s.watchDone = done
	s.watchMu.Unlock()

	s.log.WithField("interval", interval).Debug("backdoor watch started")

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			snap := s.srv.bd.Snapshot()
			if err := s.send(OpWatch|ReplyFlag, map[int]interface{}{KeySnapshot: snap}); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *session) stopWatch() {
	s.watchMu.Lock()
	cancel, done := s.watchCancel, s.watchDone
	s.watchCancel, s.watchDone = nil, nil
	s.watchMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
